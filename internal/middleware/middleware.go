package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter implements a token bucket rate limiter per IP
type RateLimiter struct {
	ips   map[string]*rate.Limiter
	mu    *sync.RWMutex
	rate  rate.Limit
	burst int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		ips:   make(map[string]*rate.Limiter),
		mu:    &sync.RWMutex{},
		rate:  r,
		burst: b,
	}
}

// GetLimiter returns the rate limiter for the provided IP
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.ips[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.ips[ip] = limiter
	}

	return limiter
}

// RateLimit middleware implements rate limiting per IP
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := rl.GetLimiter(ip)
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, APIResponse{
				Status:  "error",
				Message: "Rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// APIResponse standardizes API response format
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return secure.New(secure.Config{
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		IENoOpen:              true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
	})
}

// ValidateJSON rejects mutating requests without a JSON content type
func ValidateJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodDelete {
			ct := c.ContentType()
			if ct != "application/json" {
				c.JSON(http.StatusUnsupportedMediaType, APIResponse{
					Status:  "error",
					Message: "Content-Type must be application/json",
				})
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

// ReadinessChecker reports whether model artifacts are loaded and the
// service can accept inference traffic.
type ReadinessChecker interface {
	Ready() bool
}

// RequireReady rejects inference requests until the checker reports ready.
func RequireReady(checker ReadinessChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !checker.Ready() {
			c.JSON(http.StatusServiceUnavailable, APIResponse{
				Status:  "error",
				Message: "Model artifacts not loaded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

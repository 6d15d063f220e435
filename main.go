package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	v1 "github.com/0ritam/XAI-Dashboard/api/v1"
	"github.com/0ritam/XAI-Dashboard/config"
	"github.com/0ritam/XAI-Dashboard/internal/artifacts"
	"github.com/0ritam/XAI-Dashboard/internal/audit"
	"github.com/0ritam/XAI-Dashboard/internal/explain"
	"github.com/0ritam/XAI-Dashboard/internal/inference"
	"github.com/0ritam/XAI-Dashboard/internal/metrics"
	"github.com/0ritam/XAI-Dashboard/internal/middleware"
	"github.com/0ritam/XAI-Dashboard/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting XAI student outcome prediction server")

	// .env is optional, real environments set variables directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", zap.Error(err))
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Model artifacts are mandatory, the service cannot run without them
	bundle, err := artifacts.Load(cfg.Artifacts.Dir, logger)
	if err != nil {
		logger.Fatal("failed to load model artifacts",
			zap.String("dir", cfg.Artifacts.Dir),
			zap.Error(err))
	}
	logger.Info("model artifacts loaded",
		zap.String("model_version", bundle.Manifest.ModelVersion),
		zap.Int("features", len(bundle.FeatureNames)),
		zap.Strings("classes", bundle.ClassesInOrder()))

	// Inference pipeline
	encoder := inference.NewEncoderAdapter(bundle.Encoders,
		inference.UnknownPolicy(cfg.Encoding.UnknownPolicy), logger)
	assembler := inference.NewAssembler(encoder, bundle.FeatureNames, logger)
	predictor := inference.NewPredictor(bundle.Model, bundle.ClassesInOrder(), len(bundle.FeatureNames))

	// Explanation pipeline
	surrogateCfg := explain.SurrogateConfig{
		Samples:     cfg.Explain.Surrogate.Samples,
		Seed:        cfg.Explain.Surrogate.Seed,
		KernelWidth: cfg.Explain.Surrogate.KernelWidth,
		Ridge:       cfg.Explain.Surrogate.Ridge,
	}
	surrogate := explain.NewLocalSurrogate(bundle.Model.PredictProbabilities, bundle.Stats, surrogateCfg)
	attributor := explain.NewTreeAttributor(bundle.Model)
	aggregator, err := explain.NewAggregator(attributor, surrogate, bundle.FeatureNames, cfg.Explain.TopK, logger)
	if err != nil {
		logger.Fatal("failed to initialize explanation aggregator", zap.Error(err))
	}

	// Redis persistence is optional, absence disables explanation retrieval
	dataStore, err := store.NewStore(cfg.RedisURL)
	if err != nil {
		logger.Warn("failed to initialize Redis store, explanation persistence disabled", zap.Error(err))
		dataStore = nil
	} else {
		defer dataStore.Close()
	}

	// Elasticsearch audit logging is optional as well
	auditLogger, err := audit.NewLogger(
		cfg.ElasticsearchAddrs,
		cfg.ElasticsearchUser,
		cfg.ElasticsearchPass,
		cfg.ElasticsearchIndex,
	)
	if err != nil {
		logger.Warn("failed to initialize Elasticsearch audit logger, audit disabled", zap.Error(err))
		auditLogger = nil
	}

	// Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.ValidateJSON())

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.Security.RateLimit), cfg.Security.RateLimitBurst)
	router.Use(limiter.RateLimit())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	serviceStats := metrics.NewServiceMetrics()
	handler := v1.NewHandler(bundle, assembler, predictor, aggregator, dataStore, auditLogger, serviceStats, logger)
	handler.RegisterRoutes(router, middleware.RequireReady(handler))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.Bool("tls", cfg.Server.TLS.Enabled))
		var serveErr error
		if cfg.Server.TLS.Enabled {
			server.TLSConfig = config.GetTLSConfig()
			serveErr = server.ListenAndServeTLS(cfg.Server.TLS.CertPath, cfg.Server.TLS.KeyPath)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(serveErr))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

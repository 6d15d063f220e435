package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port string `yaml:"port"`
		TLS  struct {
			Enabled  bool   `yaml:"enabled"`
			CertPath string `yaml:"cert_path"`
			KeyPath  string `yaml:"key_path"`
		} `yaml:"tls"`
	} `yaml:"server"`

	Artifacts struct {
		Dir string `yaml:"dir"`
	} `yaml:"artifacts"`

	Redis struct {
		PoolSize     int `yaml:"pool_size"`
		MinIdleConns int `yaml:"min_idle_conns"`
		MaxRetries   int `yaml:"max_retries"`
	} `yaml:"redis"`

	Elasticsearch struct {
		MaxRetries int           `yaml:"max_retries"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"elasticsearch"`

	Explain struct {
		TopK      int `yaml:"top_k"`
		Surrogate struct {
			Samples     int     `yaml:"samples"`
			Seed        int64   `yaml:"seed"`
			KernelWidth float64 `yaml:"kernel_width"`
			Ridge       float64 `yaml:"ridge"`
		} `yaml:"surrogate"`
	} `yaml:"explain"`

	Encoding struct {
		UnknownPolicy string `yaml:"unknown_policy"`
	} `yaml:"encoding"`

	Security struct {
		RateLimit      int `yaml:"rate_limit"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		MaxRequestSize int `yaml:"max_request_size"`
	} `yaml:"security"`

	// Runtime configuration
	RedisURL           string
	ElasticsearchAddrs []string
	ElasticsearchUser  string
	ElasticsearchPass  string
	ElasticsearchIndex string
}

// LoadConfig loads the configuration from a file
func LoadConfig() (*Config, error) {
	// Default config file path
	configPath := "config/config.yaml"

	// Check if config path is set in environment
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	// Parse config
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	cfg.applyDefaults()

	// Load environment variables
	if dir := os.Getenv("ARTIFACTS_DIR"); dir != "" {
		cfg.Artifacts.Dir = dir
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379"
	}

	cfg.ElasticsearchAddrs = []string{os.Getenv("ELASTICSEARCH_URL")}
	if cfg.ElasticsearchAddrs[0] == "" {
		cfg.ElasticsearchAddrs = []string{"http://localhost:9200"}
	}

	cfg.ElasticsearchUser = os.Getenv("ELASTICSEARCH_USER")
	cfg.ElasticsearchPass = os.Getenv("ELASTICSEARCH_PASS")
	cfg.ElasticsearchIndex = os.Getenv("ELASTICSEARCH_INDEX")
	if cfg.ElasticsearchIndex == "" {
		cfg.ElasticsearchIndex = "predictions"
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8000"
	}
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = "artifacts"
	}
	if cfg.Explain.TopK <= 0 {
		cfg.Explain.TopK = 10
	}
	if cfg.Explain.Surrogate.Samples <= 0 {
		cfg.Explain.Surrogate.Samples = 200
	}
	if cfg.Explain.Surrogate.Seed == 0 {
		cfg.Explain.Surrogate.Seed = 42
	}
	if cfg.Explain.Surrogate.KernelWidth <= 0 {
		cfg.Explain.Surrogate.KernelWidth = 0.75
	}
	if cfg.Explain.Surrogate.Ridge <= 0 {
		cfg.Explain.Surrogate.Ridge = 1e-3
	}
	if cfg.Encoding.UnknownPolicy == "" {
		cfg.Encoding.UnknownPolicy = "first-class"
	}
	if cfg.Security.RateLimit <= 0 {
		cfg.Security.RateLimit = 100
	}
	if cfg.Security.RateLimitBurst <= 0 {
		cfg.Security.RateLimitBurst = 20
	}
}

// GetTLSConfig returns a TLS configuration for the server
func GetTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:               tls.VersionTLS13,
		PreferServerCipherSuites: true,
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

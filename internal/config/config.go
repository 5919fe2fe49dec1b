package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the faultline service.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Cache       CacheConfig       `yaml:"cache"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// CorrelationConfig controls the timeline annotation window.
type CorrelationConfig struct {
	Window time.Duration `yaml:"window"`
}

// IngestConfig controls ingestion rate limiting.
type IngestConfig struct {
	// RateLimit is events per second; zero disables the limiter.
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
}

// CacheConfig controls caching of computed timelines.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	TimelineTTL time.Duration `yaml:"timelineTTL"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FAULTLINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    "faultline.db",
		},
		Correlation: CorrelationConfig{Window: 5 * time.Minute},
		Ingest: IngestConfig{
			RateLimit: 100,
			RateBurst: 200,
		},
		Cache: CacheConfig{
			Enabled:     true,
			TimelineTTL: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q, want sqlite or memory", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.Path == "" {
		return errors.New("storage path is required for the sqlite backend")
	}
	if cfg.Correlation.Window <= 0 {
		return fmt.Errorf("correlation window must be positive, got %s", cfg.Correlation.Window)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FAULTLINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("FAULTLINE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("FAULTLINE_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("FAULTLINE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("FAULTLINE_CORRELATION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Correlation.Window = d
		}
	}
	if v := os.Getenv("FAULTLINE_INGEST_RATE_LIMIT"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ingest.RateLimit = rate
		}
	}
	if v := os.Getenv("FAULTLINE_INGEST_RATE_BURST"); v != "" {
		if burst, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.RateBurst = burst
		}
	}
	if v := os.Getenv("FAULTLINE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("FAULTLINE_CACHE_TIMELINE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TimelineTTL = d
		}
	}
	if v := os.Getenv("FAULTLINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FAULTLINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

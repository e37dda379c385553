package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nulzo/model-curator/pkg/api"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Providers  []ProviderConfig `mapstructure:"providers"`
	Curation   CurationConfig   `mapstructure:"curation"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// ProviderConfig represents the configuration for a single AI provider.
type ProviderConfig struct {
	ID      string            `mapstructure:"id" json:"id" validate:"required"`
	Type    string            `mapstructure:"type" json:"type" validate:"required"`
	Name    string            `mapstructure:"name" json:"name"`
	APIKey  string            `mapstructure:"api_key" json:"-"`
	BaseURL string            `mapstructure:"base_url" json:"base_url" validate:"omitempty,url"`
	Models  []api.ModelInfo   `mapstructure:"models" json:"models"`
	Config  map[string]string `mapstructure:"config" json:"config"`
	Enabled bool              `mapstructure:"enabled" json:"enabled"`
	Timeout time.Duration     `mapstructure:"timeout" json:"timeout"`
	Default bool              `mapstructure:"default" json:"default"`
}

// DisplayName falls back to the id when no name was configured.
func (p ProviderConfig) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type ServerConfig struct {
	Port    string   `mapstructure:"port"`
	Env     string   `mapstructure:"env"`
	APIKeys []string `mapstructure:"api_keys"`
	// AutoDetect loads providers found in the environment at startup.
	AutoDetect      bool          `mapstructure:"auto_detect"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type DatabaseConfig struct {
	DSN     string `mapstructure:"dsn"`
	Enabled bool   `mapstructure:"enabled"`
	// Retention bounds how long attempt logs are kept. Zero keeps everything.
	Retention time.Duration `mapstructure:"retention"`
	// PruneSchedule is a cron expression or descriptor; empty disables pruning.
	PruneSchedule string `mapstructure:"prune_schedule"`
}

// CurationConfig drives avoidance and automatic switching.
type CurationConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	AutoSwitch             bool          `mapstructure:"auto_switch"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	MinReliability         float64       `mapstructure:"min_reliability"`
	MinRequests            int           `mapstructure:"min_requests"`
	QualityRefreshInterval time.Duration `mapstructure:"quality_refresh_interval"`
	HealthCheckInterval    time.Duration `mapstructure:"health_check_interval"`
}

type ThresholdsConfig struct {
	MaxAverageLatency time.Duration `mapstructure:"max_avg_latency"`
	MaxErrorRate      float64       `mapstructure:"max_error_rate"`
	MinThroughput     float64       `mapstructure:"min_throughput"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

type CacheConfig struct {
	ModelsTTL time.Duration `mapstructure:"models_ttl"`
	HealthTTL time.Duration `mapstructure:"health_ttl"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	// Endpoint is an OTLP/HTTP collector host:port; empty writes spans to stdout.
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.auto_detect", false)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.retention", 30*24*time.Hour)
	v.SetDefault("database.prune_schedule", "@hourly")
	v.SetDefault("database.dsn", "file:curator.db?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000")
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("curation.enabled", true)
	v.SetDefault("curation.auto_switch", true)
	v.SetDefault("curation.max_consecutive_failures", 10)
	v.SetDefault("curation.min_reliability", 0.3)
	v.SetDefault("curation.min_requests", 20)
	v.SetDefault("curation.quality_refresh_interval", 5*time.Minute)
	v.SetDefault("curation.health_check_interval", time.Minute)

	v.SetDefault("thresholds.max_avg_latency", 10*time.Second)
	v.SetDefault("thresholds.max_error_rate", 0.2)
	v.SetDefault("thresholds.min_throughput", 0.0)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", 200*time.Millisecond)
	v.SetDefault("retry.max_delay", 5*time.Second)
	v.SetDefault("retry.multiplier", 2.0)

	v.SetDefault("cache.models_ttl", 10*time.Minute)
	v.SetDefault("cache.health_ttl", 30*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "model-curator")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	// Environment Variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Resolve API Keys
	for i, p := range cfg.Providers {
		if strings.HasPrefix(p.APIKey, "ENV:") {
			envVar := strings.TrimPrefix(p.APIKey, "ENV:")
			// Check process environment first (explicit override)
			val := os.Getenv(envVar)
			if val == "" {
				val = v.GetString(envVar)
			}
			cfg.Providers[i].APIKey = val
		}
	}

	return &cfg, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and only here
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Data sources and artifacts
	Data DataConfig

	// Pipeline knobs (YAML). Empty means forecast.DefaultPipelineConfig().
	PipelineConfigPath string

	// External market data
	MarketData MarketDataConfig

	// Database (optional, only needed for postgres: sources)
	Database DatabaseConfig

	// Redis (optional macro cache + training lock)
	Redis RedisConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// DataConfig locates the three tabular inputs and the artifact directory
type DataConfig struct {
	TargetSource            string
	SecondarySource         string
	SecondaryFallbackSource string
	ArtifactDir             string
}

// ModelPath is the serialized model artifact
func (d DataConfig) ModelPath() string {
	return filepath.Join(d.ArtifactDir, "cbio_prediction_model.json")
}

// FeaturesPath is the serialized feature-list artifact
func (d DataConfig) FeaturesPath() string {
	return filepath.Join(d.ArtifactDir, "model_features.json")
}

// MarketDataConfig holds the chart API settings
type MarketDataConfig struct {
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int // 0 disables retry; the pipeline itself never retries
	RatePerSecond int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	CacheTTL time.Duration
	LockTTL  time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database URL was configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// SchedulerConfig holds the retraining schedule
type SchedulerConfig struct {
	Enabled     bool
	RetrainCron string // with seconds field
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Data: DataConfig{
			TargetSource:            getEnv("TARGET_SOURCE", "data/cbio_corrigido_final.csv"),
			SecondarySource:         getEnv("SECONDARY_SOURCE", "data/agro_final_pronto.csv"),
			SecondaryFallbackSource: getEnv("SECONDARY_FALLBACK_SOURCE", "data/CEPEAcsv.csv"),
			ArtifactDir:             getEnv("ARTIFACT_DIR", "data"),
		},

		PipelineConfigPath: getEnv("PIPELINE_CONFIG", ""),

		MarketData: MarketDataConfig{
			BaseURL:       getEnv("MARKET_DATA_BASE_URL", "https://query1.finance.yahoo.com"),
			Timeout:       getEnvAsDuration("MARKET_DATA_TIMEOUT", "30s"),
			MaxRetries:    getEnvAsInt("MARKET_DATA_MAX_RETRIES", 0),
			RatePerSecond: getEnvAsInt("MARKET_DATA_RATE_PER_SECOND", 2),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 5),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			CacheTTL: getEnvAsDuration("REDIS_CACHE_TTL", "24h"),
			LockTTL:  getEnvAsDuration("REDIS_LOCK_TTL", "30m"),
		},

		Scheduler: SchedulerConfig{
			Enabled:     getEnvAsBool("SCHEDULER_ENABLED", false),
			RetrainCron: getEnv("RETRAIN_CRON", "0 0 19 * * 1-5"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Data.TargetSource == "" {
		return fmt.Errorf("TARGET_SOURCE is required")
	}
	if c.Data.SecondarySource == "" {
		return fmt.Errorf("SECONDARY_SOURCE is required")
	}
	if c.Data.ArtifactDir == "" {
		return fmt.Errorf("ARTIFACT_DIR is required")
	}

	if c.MarketData.MaxRetries < 0 {
		return fmt.Errorf("MARKET_DATA_MAX_RETRIES must not be negative")
	}
	if c.MarketData.RatePerSecond <= 0 {
		return fmt.Errorf("MARKET_DATA_RATE_PER_SECOND must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

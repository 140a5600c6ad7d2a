package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Panel data
	Data DataConfig

	// Backtest defaults (flags and query params override these)
	Backtest BacktestConfig

	// Scheduler
	Scheduler SchedulerConfig

	// API
	API APIConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
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

// DataConfig says where the price and fundamentals panels come from
type DataConfig struct {
	Source          string // csv, postgres
	Dir             string
	PriceFile       string // relative to Dir
	FundamentalsDir string // relative to Dir, one <quarter>.csv per quarter
}

// PricePath returns the absolute price panel path
func (d DataConfig) PricePath() string {
	return filepath.Join(d.Dir, d.PriceFile)
}

// FundamentalsPath returns the absolute fundamentals directory
func (d DataConfig) FundamentalsPath() string {
	return filepath.Join(d.Dir, d.FundamentalsDir)
}

// BacktestConfig holds default run parameters
type BacktestConfig struct {
	K              int
	InitialCapital float64
	RandomState    int64
	SellThreshold  float64
	Model          string
	Benchmark      string
	StrategyFile   string
}

// SchedulerConfig holds cron settings for background jobs
type SchedulerConfig struct {
	BaselineCron  string
	PanelSyncCron string // only registered when DATABASE_URL is set
	OutputDir     string
}

// APIConfig holds HTTP server limits
type APIConfig struct {
	RateLimit   float64 // requests per second per client
	Burst       int
	CORSOrigins []string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8000"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Data: DataConfig{
			Source:          getEnv("DATA_SOURCE", "csv"),
			Dir:             getEnv("DATA_DIR", "data"),
			PriceFile:       getEnv("PRICE_FILE", "prices.csv"),
			FundamentalsDir: getEnv("FUNDAMENTALS_DIR", "fundamentals"),
		},

		Backtest: BacktestConfig{
			K:              getEnvAsInt("BACKTEST_K", 10),
			InitialCapital: getEnvAsFloat("BACKTEST_INITIAL_CAPITAL", 100000),
			RandomState:    int64(getEnvAsInt("BACKTEST_RANDOM_STATE", 42)),
			SellThreshold:  getEnvAsFloat("BACKTEST_SELL_THRESHOLD", 0.3),
			Model:          getEnv("BACKTEST_MODEL", "RandomForest"),
			Benchmark:      getEnv("BACKTEST_BENCHMARK", "SPY"),
			StrategyFile:   getEnv("STRATEGY_FILE", ""),
		},

		Scheduler: SchedulerConfig{
			BaselineCron:  getEnv("BASELINE_CRON", "0 0 6 * * 1-5"),
			PanelSyncCron: getEnv("PANEL_SYNC_CRON", "0 30 5 * * 1-5"),
			OutputDir:     getEnv("BASELINE_OUTPUT_DIR", "data/baseline"),
		},

		API: APIConfig{
			RateLimit:   getEnvAsFloat("API_RATE_LIMIT", 2),
			Burst:       getEnvAsInt("API_RATE_BURST", 5),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", "http://localhost:5173"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.Data.Source {
	case "csv":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATA_SOURCE=postgres")
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be one of: csv, postgres")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Backtest.K <= 0 {
		return fmt.Errorf("BACKTEST_K must be positive")
	}
	if !(c.Backtest.InitialCapital > 0) || math.IsInf(c.Backtest.InitialCapital, 0) {
		return fmt.Errorf("BACKTEST_INITIAL_CAPITAL must be positive")
	}
	if !(c.Backtest.SellThreshold >= 0 && c.Backtest.SellThreshold <= 1) {
		return fmt.Errorf("BACKTEST_SELL_THRESHOLD must be in [0,1]")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	// Also try relative to executable
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
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

func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, defaultValue), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
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

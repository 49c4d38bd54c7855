package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"radiustrend/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API (optional: market data endpoints are public)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market Data
	Symbol       string
	Interval     string
	HistoryLimit int // Bars of history to load/fetch for sequential computation

	// Radius Trend Parameters
	RadiusStep       float64 // Band-steepening rate (e.g., 0.15)
	RadiusMulti      float64 // Reversal offset multiplier (e.g., 2.0)
	RadiusStepPeriod int     // Step period and smoothing window (e.g., 3)

	// Live mode: stream klines and recompute on each closed bar
	Live bool

	// Database
	DBPath string

	// Optional CSV export of the computed series ("" disables export)
	CSVPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Connection Settings (for the Binance client)
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Market Data
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	cfg.Interval = getEnv("INTERVAL", "1h")
	if cfg.Interval == "" {
		errs = append(errs, "INTERVAL must be set")
	}

	cfg.HistoryLimit, err = getEnvAsIntRequired("HISTORY_LIMIT", 500)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HISTORY_LIMIT: %v", err))
	} else if cfg.HistoryLimit <= 0 {
		errs = append(errs, "HISTORY_LIMIT must be positive")
	}

	// Radius Trend Parameters
	cfg.RadiusStep, err = getEnvAsFloatRequired("RADIUS_STEP", 0.15)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RADIUS_STEP: %v", err))
	} else if cfg.RadiusStep <= 0 {
		errs = append(errs, "RADIUS_STEP must be positive")
	}

	cfg.RadiusMulti, err = getEnvAsFloatRequired("RADIUS_MULTI", 2.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RADIUS_MULTI: %v", err))
	} else if cfg.RadiusMulti <= 0 {
		errs = append(errs, "RADIUS_MULTI must be positive")
	}

	cfg.RadiusStepPeriod, err = getEnvAsIntRequired("RADIUS_STEP_PERIOD", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RADIUS_STEP_PERIOD: %v", err))
	} else if cfg.RadiusStepPeriod < 1 {
		errs = append(errs, "RADIUS_STEP_PERIOD must be at least 1")
	}

	// Live mode
	cfg.Live = getEnvAsBool("LIVE", false)

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/radius_trend.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// CSV export (optional)
	cfg.CSVPath = getEnv("CSV_PATH", "")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
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

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
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

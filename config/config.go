package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"quanttrader/internal/adapters/logger" // Import the logger package for LogLevel
)

// BrokerType selects the broker variant wired at startup.
type BrokerType string

const (
	BrokerSimulated BrokerType = "simulated"
	BrokerBinance   BrokerType = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Backend API
	APIBaseURL string
	APIToken   string

	// Poll loop
	PollInterval time.Duration // Sleep between polling cycles
	SignalLimit  int           // Max signals fetched per cycle

	// Broker selection
	Broker BrokerType

	// Binance broker (only used when Broker == BrokerBinance)
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceAccountID string
	IsTestnet        bool

	// Feature flags
	PositionSyncEnabled      bool
	ExecutionTrackingEnabled bool

	// Reconciler
	SyncInterval time.Duration

	// Tracker retry policy
	MaxRetries int
	RetryDelay time.Duration

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // "text" or "json"

	// Optional local execution journal (disabled when empty)
	JournalDBPath string

	// Optional Prometheus exposition endpoint (disabled when empty)
	MetricsAddr string
}

// Load reads configuration from environment variables (.env file supported).
func Load() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Backend API
	cfg.APIBaseURL = strings.TrimRight(getEnv("TRADER_API_BASE_URL", ""), "/")
	cfg.APIToken = getEnv("TRADER_API_TOKEN", "")
	if cfg.APIBaseURL == "" {
		errs = append(errs, "TRADER_API_BASE_URL must be set")
	}
	if cfg.APIToken == "" {
		errs = append(errs, "TRADER_API_TOKEN must be set")
	}

	// Poll loop
	pollSeconds, err := getEnvAsFloatRequired("TRADER_POLL_INTERVAL", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADER_POLL_INTERVAL: %v", err))
	} else if pollSeconds <= 0 {
		errs = append(errs, "TRADER_POLL_INTERVAL must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds * float64(time.Second))

	cfg.SignalLimit = getEnvAsInt("TRADER_SIGNAL_LIMIT", 50)
	if cfg.SignalLimit <= 0 {
		errs = append(errs, "TRADER_SIGNAL_LIMIT must be positive")
	}

	// Broker selection
	switch bt := BrokerType(strings.ToLower(getEnv("TRADER_BROKER", string(BrokerSimulated)))); bt {
	case BrokerSimulated, BrokerBinance:
		cfg.Broker = bt
	default:
		errs = append(errs, fmt.Sprintf("unknown TRADER_BROKER %q (expected %q or %q)", bt, BrokerSimulated, BrokerBinance))
	}

	// Binance broker sub-config
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.BinanceAccountID = getEnv("BINANCE_ACCOUNT_ID", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	if cfg.Broker == BrokerBinance {
		if cfg.BinanceAPIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set when TRADER_BROKER=binance")
		}
		if cfg.BinanceSecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set when TRADER_BROKER=binance")
		}
	}

	// Feature flags
	cfg.PositionSyncEnabled = getEnvAsBool("POSITION_SYNC_ENABLED", true)
	cfg.ExecutionTrackingEnabled = getEnvAsBool("EXECUTION_TRACKING_ENABLED", true)

	// Reconciler
	syncSeconds, err := getEnvAsFloatRequired("SYNC_INTERVAL_SECONDS", 60.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYNC_INTERVAL_SECONDS: %v", err))
	} else if syncSeconds <= 0 {
		errs = append(errs, "SYNC_INTERVAL_SECONDS must be positive")
	}
	cfg.SyncInterval = time.Duration(syncSeconds * float64(time.Second))

	// Tracker retry policy
	cfg.MaxRetries, err = getEnvAsIntRequired("MAX_RETRIES", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_RETRIES: %v", err))
	} else if cfg.MaxRetries < 0 {
		errs = append(errs, "MAX_RETRIES cannot be negative")
	}

	retrySeconds, err := getEnvAsFloatRequired("RETRY_DELAY_SECONDS", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RETRY_DELAY_SECONDS: %v", err))
	} else if retrySeconds < 0 {
		errs = append(errs, "RETRY_DELAY_SECONDS cannot be negative")
	}
	cfg.RetryDelay = time.Duration(retrySeconds * float64(time.Second))

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("unknown LOG_FORMAT %q (expected \"text\" or \"json\")", cfg.LogFormat))
	}

	// Optional extras
	cfg.JournalDBPath = getEnv("JOURNAL_DB_PATH", "")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

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

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP; an empty URL disables ledger events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Group locking
	LockBackend string
	RedisURL    string
	LockTTL     time.Duration

	// Services
	SettleMaxRetries int
	CacheSize        int
	CacheTTL         time.Duration

	// Workers
	RecurringInterval time.Duration
	ReportStartupSync bool
	MetricsAddr       string

	// Google Sheets reports; an empty spreadsheet ID keeps reports in memory
	GoogleSpreadsheetID   string
	GoogleReportSheetName string

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	validDataBackends = []string{"memory", "sqlite"}
	validLockBackends = []string{"local", "redis"}
	validLogFormats   = []string{"text", "json"}
)

func Load() *Config {
	return &Config{
		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/conti.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "conti"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		LockBackend: getEnv("LOCK_BACKEND", "local"),
		RedisURL:    getEnv("REDIS_URL", ""),
		LockTTL:     getEnvDuration("LOCK_TTL", 30*time.Second),

		SettleMaxRetries: getEnvInt("SETTLE_MAX_RETRIES", 3),
		CacheSize:        getEnvInt("CACHE_SIZE", 256),
		CacheTTL:         getEnvDuration("CACHE_TTL", 5*time.Minute),

		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),
		ReportStartupSync: getEnvBool("REPORT_STARTUP_SYNC", true),
		MetricsAddr:       getEnv("METRICS_ADDR", ""),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleReportSheetName: getEnv("GOOGLE_REPORT_SHEET_NAME", "Conti"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if !slices.Contains(validDataBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validDataBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if !slices.Contains(validLockBackends, c.LockBackend) {
		errors = append(errors, fmt.Sprintf("invalid lock backend '%s': must be one of %v", c.LockBackend, validLockBackends))
	}
	if c.LockBackend == "redis" {
		if c.RedisURL == "" {
			errors = append(errors, "REDIS_URL is required when using redis lock backend")
		} else if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': must use redis or rediss scheme", c.RedisURL))
		}
	}
	if c.LockTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid lock TTL %v: must be at least 1 second", c.LockTTL))
	}

	if c.SettleMaxRetries < 1 || c.SettleMaxRetries > 20 {
		errors = append(errors, fmt.Sprintf("invalid settle max retries %d: must be between 1 and 20", c.SettleMaxRetries))
	}
	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}

	if c.RecurringInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at least 1 second", c.RecurringInterval))
	} else if c.RecurringInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at most 24 hours", c.RecurringInterval))
	}

	if c.GoogleSpreadsheetID != "" && strings.TrimSpace(c.GoogleReportSheetName) == "" {
		errors = append(errors, "Google report sheet name cannot be empty when a spreadsheet ID is provided")
	}

	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

package backend

import (
	"errors"
	"fmt"
	"time"

	"conti/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type         BackendType
	SQLiteDBPath string

	Lock     LockType
	RedisURL string
	LockTTL  time.Duration

	// Empty AMQPURL disables event publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Empty GoogleSpreadsheetID keeps reports in memory
	GoogleSpreadsheetID   string
	GoogleReportSheetName string

	CacheSize int
	CacheTTL  time.Duration

	// WithMetrics registers ledger metrics on the default Prometheus registry.
	WithMetrics bool
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	c := Config{
		Type:                  BackendType(appConfig.DataBackend),
		SQLiteDBPath:          appConfig.SQLiteDBPath,
		Lock:                  LockType(appConfig.LockBackend),
		RedisURL:              appConfig.RedisURL,
		LockTTL:               appConfig.LockTTL,
		AMQPURL:               appConfig.AMQPURL,
		AMQPExchange:          appConfig.AMQPExchange,
		AMQPQueue:             appConfig.AMQPQueue,
		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleReportSheetName: appConfig.GoogleReportSheetName,
		CacheSize:             appConfig.CacheSize,
		CacheTTL:              appConfig.CacheTTL,
		WithMetrics:           appConfig.MetricsAddr != "",
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required for sqlite backend")
	}
	if c.Lock == "" {
		return nil
	}
	if !c.Lock.IsValid() {
		return fmt.Errorf("invalid lock type: %s", c.Lock)
	}
	if c.Lock == RedisLock && c.RedisURL == "" {
		return errors.New("Redis URL is required for redis locking")
	}
	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{SQLiteBackend.String(), MemoryBackend.String()}
}

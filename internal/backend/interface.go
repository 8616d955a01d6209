package backend

import (
	"context"

	"conti/internal/amqp"
	"conti/internal/cache"
	"conti/internal/locking"
	"conti/internal/metrics"
	"conti/internal/sheets"
	"conti/internal/storage"
)

// Backend bundles the infrastructure the services and workers run on.
type Backend struct {
	Store   storage.Store
	Locker  locking.Locker
	Cache   *cache.BalanceCache
	Metrics *metrics.LedgerMetrics
	// Events is nil when AMQP is not configured.
	Events  *amqp.Client
	Reports sheets.ReportStore
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and its cleanup function
type BackendResult struct {
	Backend *Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType selects the ledger store.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// IsValid checks if the backend type is valid
func (bt BackendType) IsValid() bool {
	return bt == SQLiteBackend || bt == MemoryBackend
}

func (bt BackendType) String() string {
	return string(bt)
}

// LockType selects the group lock implementation.
type LockType string

const (
	LocalLock LockType = "local"
	RedisLock LockType = "redis"
)

func (lt LockType) IsValid() bool {
	return lt == LocalLock || lt == RedisLock
}

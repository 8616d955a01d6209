package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"conti/internal/amqp"
	"conti/internal/cache"
	"conti/internal/locking"
	"conti/internal/metrics"
	"conti/internal/services"
	"conti/internal/sheets"
	gsheet "conti/internal/sheets/google"
	sheetsmem "conti/internal/sheets/memory"
	"conti/internal/storage"
	"conti/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger, registerer: prometheus.DefaultRegisterer}
}

// WithRegisterer overrides where metrics are registered.
func (f *DefaultFactory) WithRegisterer(reg prometheus.Registerer) *DefaultFactory {
	f.registerer = reg
	return f
}

// CreateBackend implements Factory.CreateBackend. Resources opened before a
// failure are released before returning.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (_ *BackendResult, err error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var closers []CleanupFunc
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			_ = cleanup()
		}
	}()

	b := &Backend{}

	b.Store, err = f.createStore(config)
	if err != nil {
		return nil, err
	}
	closers = append(closers, b.Store.Close)

	var closeLock func() error
	b.Locker, closeLock, err = f.createLocker(ctx, config)
	if err != nil {
		return nil, err
	}
	if closeLock != nil {
		closers = append(closers, closeLock)
	}

	if config.CacheSize > 0 {
		b.Cache = cache.NewBalanceCache(config.CacheSize, config.CacheTTL)
		mgr := cache.NewManager()
		mgr.Register(b.Cache)
		if config.CacheTTL > 0 {
			mgr.StartCleanup(config.CacheTTL)
		}
		closers = append(closers, func() error { mgr.Stop(); return nil })
	}

	if config.WithMetrics {
		b.Metrics = metrics.NewLedgerMetrics(f.registerer)
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without ledger events", "error", err)
		} else {
			b.Events = client
			closers = append(closers, client.Close)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	b.Reports, err = f.createReports(ctx, config)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Initialized backend",
		"store", config.Type,
		"lock", b.lockName(),
		"amqp_enabled", b.Events != nil,
		"cache_size", config.CacheSize,
		"google_reports", config.GoogleSpreadsheetID != "")

	return &BackendResult{Backend: b, Cleanup: cleanup}, nil
}

func (f *DefaultFactory) createStore(config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory store")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createLocker(ctx context.Context, config Config) (locking.Locker, func() error, error) {
	if config.Lock != RedisLock {
		return locking.NewLocal(), nil, nil
	}
	l, closeFn, err := locking.NewRedisFromURL(ctx, config.RedisURL, config.LockTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Redis lock: %w", err)
	}
	return l, closeFn, nil
}

func (f *DefaultFactory) createReports(ctx context.Context, config Config) (sheets.ReportStore, error) {
	if config.GoogleSpreadsheetID == "" {
		return sheetsmem.New(), nil
	}
	cli, err := gsheet.New(ctx, config.GoogleSpreadsheetID, config.GoogleReportSheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets reports", "spreadsheet_id", config.GoogleSpreadsheetID)
	return cli, nil
}

func (b *Backend) lockName() string {
	if _, ok := b.Locker.(*locking.Redis); ok {
		return string(RedisLock)
	}
	return string(LocalLock)
}

// Deps returns the service dependencies backed by b.
func (b *Backend) Deps() services.Deps {
	d := services.Deps{
		Store:   b.Store,
		Locker:  b.Locker,
		Cache:   b.Cache,
		Metrics: b.Metrics,
	}
	// A nil *amqp.Client must not become a non-nil interface.
	if b.Events != nil {
		d.Events = b.Events
	}
	return d
}

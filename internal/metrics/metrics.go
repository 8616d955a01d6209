// Package metrics exposes Prometheus instrumentation for ledger operations.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conti/internal/core"
)

// LedgerMetrics is safe to use as a nil pointer; every method is then a no-op.
type LedgerMetrics struct {
	duration     *prometheus.HistogramVec
	failures     *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
	transfers    prometheus.Counter
	occurrences  prometheus.Counter
	cacheLookups *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conti",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ledger operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "operation_failures_total",
			Help:      "Failed ledger operations by error kind.",
		}, []string{"op", "kind"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "settlement_conflicts_total",
			Help:      "Settlement attempts rejected because the group changed.",
		}, []string{"group"}),
		transfers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "transfers_planned_total",
			Help:      "Transfers produced by the settlement planner.",
		}),
		occurrences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "recurring_occurrences_total",
			Help:      "Recurring expense occurrences materialized.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "balance_cache_lookups_total",
			Help:      "Balance cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.duration, m.failures, m.conflicts, m.transfers, m.occurrences, m.cacheLookups)
	return m
}

// Observe records the outcome of op started at start.
func (m *LedgerMetrics) Observe(op string, start time.Time, err error) {
	if m == nil || m.duration == nil {
		return
	}
	op = normalizeLabel(op)
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(op, string(core.KindOf(err))).Inc()
		var conflict *core.ConcurrencyConflictError
		if errors.As(err, &conflict) {
			m.conflicts.WithLabelValues(normalizeLabel(conflict.GroupID)).Inc()
		}
	}
}

func (m *LedgerMetrics) AddTransfers(n int) {
	if m == nil || m.transfers == nil || n <= 0 {
		return
	}
	m.transfers.Add(float64(n))
}

func (m *LedgerMetrics) AddOccurrences(n int) {
	if m == nil || m.occurrences == nil || n <= 0 {
		return
	}
	m.occurrences.Add(float64(n))
}

func (m *LedgerMetrics) CacheLookup(hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

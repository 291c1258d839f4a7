// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SubmissionsAccepted prometheus.Counter
	SubmissionsRejected prometheus.Counter
	SubmissionsRetried  prometheus.Counter
	WeeksPublished      prometheus.Counter
	RetryCacheEvictions prometheus.Counter

	// Histograms (seconds)
	SubmitDuration      prometheus.Observer
	LeaderboardDuration prometheus.Observer

	// Gauges
	RetryCacheSize prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SubmissionsAccepted = promauto.NewCounter(prometheus.CounterOpts{Name: "ledger_submissions_accepted_total", Help: "Number of score submissions accepted"})
		SubmissionsRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "ledger_submissions_rejected_total", Help: "Number of score submissions rejected by validation"})
		SubmissionsRetried = promauto.NewCounter(prometheus.CounterOpts{Name: "ledger_submissions_retried_total", Help: "Number of submissions resumed from the retry cache"})
		WeeksPublished = promauto.NewCounter(prometheus.CounterOpts{Name: "ledger_weeks_published_total", Help: "Number of weeks published"})
		RetryCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{Name: "ledger_retry_cache_evictions_total", Help: "Number of pending submissions expired unreclaimed"})
		SubmitDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ledger_submit_duration_seconds", Help: "Score submission duration seconds", Buckets: prometheus.DefBuckets})
		LeaderboardDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ledger_leaderboard_duration_seconds", Help: "Leaderboard read duration seconds", Buckets: prometheus.DefBuckets})
		RetryCacheSize = promauto.NewGauge(prometheus.GaugeOpts{Name: "ledger_retry_cache_size", Help: "Current number of pending submissions in the retry cache"})
	})
}

// SetRetryCacheSize records the current retry cache population.
func SetRetryCacheSize(n int) {
	if RetryCacheSize != nil {
		RetryCacheSize.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

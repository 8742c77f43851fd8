// Package metrics records per-run counters for logins, token cache use,
// secret fetches and filter commands. A nil *Recorder is valid and records
// nothing, so callers never need to check whether metrics are enabled.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheInvalid  = "invalid"
	CacheBypassed = "bypassed"
	CacheSaved    = "saved"
)

// Recorder owns a private registry so a run's metrics never mix with any
// other registry in the process.
type Recorder struct {
	registry *prometheus.Registry

	loginsTotal     *prometheus.CounterVec
	tokenCacheTotal *prometheus.CounterVec
	fetchesTotal    *prometheus.CounterVec
	filterRunsTotal *prometheus.CounterVec
	resolveDuration prometheus.Histogram
}

// New creates a Recorder with all metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		loginsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_inject_logins_total",
				Help: "Total number of login attempts against Vault",
			},
			[]string{"method", "result"},
		),
		tokenCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_inject_token_cache_total",
				Help: "Token cache lookups and writes by outcome",
			},
			[]string{"result"},
		),
		fetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_inject_fetches_total",
				Help: "Total number of secret fetches by storage type",
			},
			[]string{"storage", "result"},
		),
		filterRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_inject_filter_runs_total",
				Help: "Total number of filter command runs",
			},
			[]string{"result"},
		),
		resolveDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vault_inject_resolve_duration_seconds",
				Help:    "Time spent resolving all secret mappings",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
	}
}

// RecordLogin records a login attempt.
func (r *Recorder) RecordLogin(method string, err error) {
	if r == nil {
		return
	}
	r.loginsTotal.WithLabelValues(method, result(err)).Inc()
}

// RecordTokenCache records a token cache outcome, one of the Cache* constants.
func (r *Recorder) RecordTokenCache(outcome string) {
	if r == nil {
		return
	}
	r.tokenCacheTotal.WithLabelValues(outcome).Inc()
}

// RecordFetch records a secret fetch from the given storage type.
func (r *Recorder) RecordFetch(storage string, err error) {
	if r == nil {
		return
	}
	r.fetchesTotal.WithLabelValues(storage, result(err)).Inc()
}

// RecordFilterRun records one filter command execution.
func (r *Recorder) RecordFilterRun(err error) {
	if r == nil {
		return
	}
	r.filterRunsTotal.WithLabelValues(result(err)).Inc()
}

// ObserveResolve records how long the whole resolution took.
func (r *Recorder) ObserveResolve(d time.Duration) {
	if r == nil {
		return
	}
	r.resolveDuration.Observe(d.Seconds())
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteFile writes all metrics in the Prometheus text format, suitable for
// the node_exporter textfile collector.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

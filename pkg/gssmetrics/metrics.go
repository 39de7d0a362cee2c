// Package gssmetrics exposes Prometheus instrumentation for the
// credential/context lifecycle engine: upcalls issued and deduplicated,
// downcall errors by category, active Contexts, Credential cache hit
// rate, and wrap/unwrap latency by service level.
package gssmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks Prometheus metrics for the engine.
//
// All metrics use the "gssauth_" prefix. Methods handle a nil receiver
// gracefully, so a nil *Metrics acts as a no-op (zero overhead when
// metrics are disabled).
type Metrics struct {
	// UpcallsIssued counts upcalls actually written to a pipe.
	UpcallsIssued prometheus.Counter

	// UpcallsDeduplicated counts upcalls that joined an already-pending
	// upcall for the same uid and service instead of writing a new message.
	UpcallsDeduplicated prometheus.Counter

	// DowncallErrors counts downcalls that carried an error frame, by
	// category (key_expired, access_denied, retryable).
	DowncallErrors *prometheus.CounterVec

	// ActiveContexts tracks the current number of live Contexts.
	ActiveContexts prometheus.Gauge

	// ContextDestructions counts Context teardowns.
	ContextDestructions prometheus.Counter

	// CacheLookups counts Credential cache lookups by outcome (hit, miss).
	CacheLookups *prometheus.CounterVec

	// CacheEvictions counts Credentials reclaimed by EvictOldest.
	CacheEvictions prometheus.Counter

	// WrapDuration tracks WrapRequest/UnwrapResponse latency by service
	// level and direction (wrap, unwrap).
	WrapDuration *prometheus.HistogramVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New creates and registers the engine's Prometheus metrics.
//
// If registerer is nil, prometheus.DefaultRegisterer is used. Idempotent:
// uses sync.Once so repeated calls (e.g. across test cases) return the
// same registered instance.
func New(registerer prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		m := &Metrics{
			UpcallsIssued: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "gssauth_upcalls_issued_total",
					Help: "Total upcalls written to the keying daemon pipe",
				},
			),
			UpcallsDeduplicated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "gssauth_upcalls_deduplicated_total",
					Help: "Total upcalls that joined an already-pending request for the same uid and service",
				},
			),
			DowncallErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gssauth_downcall_errors_total",
					Help: "Total downcalls carrying an error frame, by category",
				},
				[]string{"category"},
			),
			ActiveContexts: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "gssauth_active_contexts",
					Help: "Current number of live security contexts",
				},
			),
			ContextDestructions: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "gssauth_context_destructions_total",
					Help: "Total security context teardowns",
				},
			),
			CacheLookups: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gssauth_credential_cache_lookups_total",
					Help: "Total Credential cache lookups by outcome",
				},
				[]string{"outcome"},
			),
			CacheEvictions: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "gssauth_credential_cache_evictions_total",
					Help: "Total Credentials reclaimed by cache eviction",
				},
			),
			WrapDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "gssauth_wrap_duration_seconds",
					Help:    "Wrap/unwrap processing duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"service", "direction"},
			),
		}

		registerer.MustRegister(
			m.UpcallsIssued,
			m.UpcallsDeduplicated,
			m.DowncallErrors,
			m.ActiveContexts,
			m.ContextDestructions,
			m.CacheLookups,
			m.CacheEvictions,
			m.WrapDuration,
		)

		metricsInstance = m
	})

	return metricsInstance
}

// RecordUpcallIssued records an upcall actually written to the pipe.
func (m *Metrics) RecordUpcallIssued() {
	if m == nil {
		return
	}
	m.UpcallsIssued.Inc()
}

// RecordUpcallDeduplicated records an upcall that joined a pending one.
func (m *Metrics) RecordUpcallDeduplicated() {
	if m == nil {
		return
	}
	m.UpcallsDeduplicated.Inc()
}

// RecordDowncallError records a downcall error frame by category.
func (m *Metrics) RecordDowncallError(category string) {
	if m == nil {
		return
	}
	m.DowncallErrors.WithLabelValues(category).Inc()
}

// RecordContextCreated records a newly established Context.
func (m *Metrics) RecordContextCreated() {
	if m == nil {
		return
	}
	m.ActiveContexts.Inc()
}

// RecordContextDestroyed records a Context teardown.
func (m *Metrics) RecordContextDestroyed() {
	if m == nil {
		return
	}
	m.ContextDestructions.Inc()
	m.ActiveContexts.Dec()
}

// RecordCacheHit records a Credential cache lookup that found an entry.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a Credential cache lookup that created an entry.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// RecordCacheEviction records a Credential reclaimed by EvictOldest.
func (m *Metrics) RecordCacheEviction() {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
}

// RecordWrapDuration records WrapRequest/UnwrapResponse latency.
//
// direction is "wrap" or "unwrap"; service is the name returned by
// ServiceLevelName.
func (m *Metrics) RecordWrapDuration(service, direction string, duration time.Duration) {
	if m == nil {
		return
	}
	m.WrapDuration.WithLabelValues(service, direction).Observe(duration.Seconds())
}

// ServiceLevelName returns the string name for a wireauth service level
// (1=none, 2=integrity, 3=privacy), for use as a metric label.
func ServiceLevelName(service uint32) string {
	switch service {
	case 1:
		return "none"
	case 2:
		return "integrity"
	case 3:
		return "privacy"
	default:
		return "unknown"
	}
}

package service

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the timetable
// pipeline.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	cacheLatency      prometheus.Observer
	cacheHitRatio     prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	synthesisDuration prometheus.Observer
	renderDuration    prometheus.Observer
	renderRestarts    prometheus.Counter
	syncDuration      prometheus.Observer
	notifications     *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "week_cache_latency_seconds",
		Help:    "Latency for week cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "week_cache_hit_ratio",
		Help: "Ratio of week cache hits to total lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "week_cache_hits_total",
		Help: "Total week cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "week_cache_misses_total",
		Help: "Total week cache misses",
	})

	synthesisDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_synthesis_seconds",
		Help:    "Duration of timetable synthesis",
		Buckets: prometheus.DefBuckets,
	})

	renderDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_render_seconds",
		Help:    "Duration of timetable image rendering",
		Buckets: prometheus.DefBuckets,
	})

	renderRestarts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "renderer_restarts_total",
		Help: "Total forced renderer process restarts",
	})

	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "upstream_sync_seconds",
		Help:    "Duration of upstream week synchronization",
		Buckets: prometheus.DefBuckets,
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notifications by kind and outcome",
	}, []string{"kind", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(cacheLatency, cacheHitRatio, cacheHits, cacheMisses,
		synthesisDuration, renderDuration, renderRestarts, syncDuration, notifications, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		cacheLatency:      cacheLatency,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		synthesisDuration: synthesisDuration,
		renderDuration:    renderDuration,
		renderRestarts:    renderRestarts,
		syncDuration:      syncDuration,
		notifications:     notifications,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveSynthesis tracks a synthesis run.
func (m *MetricsService) ObserveSynthesis(duration time.Duration) {
	if m == nil || m.synthesisDuration == nil {
		return
	}
	m.synthesisDuration.Observe(duration.Seconds())
}

// ObserveRender tracks one render attempt.
func (m *MetricsService) ObserveRender(duration time.Duration) {
	if m == nil || m.renderDuration == nil {
		return
	}
	m.renderDuration.Observe(duration.Seconds())
}

// RecordRendererRestart counts a forced renderer restart.
func (m *MetricsService) RecordRendererRestart() {
	if m == nil || m.renderRestarts == nil {
		return
	}
	m.renderRestarts.Inc()
}

// ObserveSync tracks one upstream synchronization.
func (m *MetricsService) ObserveSync(duration time.Duration) {
	if m == nil || m.syncDuration == nil {
		return
	}
	m.syncDuration.Observe(duration.Seconds())
}

// RecordNotification counts a scheduled or dispatched notification.
func (m *MetricsService) RecordNotification(kind, outcome string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

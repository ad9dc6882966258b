package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/essay-correction-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, caching and the correction workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	transitions    *prometheus.CounterVec
	renders        *prometheus.CounterVec
	renderDuration prometheus.Observer
	artifactReuse  prometheus.Counter
	dispatches     *prometheus.CounterVec
	dispatchTime   prometheus.Observer
	aiSuggestions  *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "essay_transitions_total",
		Help: "Essay status transitions by target status",
	}, []string{"to"})

	renders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "essay_artifact_renders_total",
		Help: "Corrected PDF render attempts by result",
	}, []string{"result"})

	renderDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "essay_artifact_render_seconds",
		Help:    "Duration of corrected PDF generation",
		Buckets: prometheus.DefBuckets,
	})

	artifactReuse := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "essay_artifact_reuse_total",
		Help: "Deliveries that reused an already generated PDF",
	})

	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "essay_email_dispatch_total",
		Help: "Corrected essay email dispatches by result",
	}, []string{"result"})

	dispatchTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "essay_email_dispatch_seconds",
		Help:    "Duration of corrected essay email dispatch",
		Buckets: prometheus.DefBuckets,
	})

	aiSuggestions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_suggestions_total",
		Help: "AI correction suggestions generated by essay type",
	}, []string{"type"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		transitions, renders, renderDuration, artifactReuse, dispatches, dispatchTime, aiSuggestions, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		transitions:     transitions,
		renders:         renders,
		renderDuration:  renderDuration,
		artifactReuse:   artifactReuse,
		dispatches:      dispatches,
		dispatchTime:    dispatchTime,
		aiSuggestions:   aiSuggestions,
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordTransition counts a successful status change.
func (m *MetricsService) RecordTransition(to models.EssayStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(to)).Inc()
}

// ObserveRender records one renderer invocation.
func (m *MetricsService) ObserveRender(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(resultLabel(success)).Inc()
	m.renderDuration.Observe(duration.Seconds())
}

// RecordArtifactReuse counts a delivery that skipped generation.
func (m *MetricsService) RecordArtifactReuse() {
	if m == nil {
		return
	}
	m.artifactReuse.Inc()
}

// ObserveDispatch records one email dispatch attempt.
func (m *MetricsService) ObserveDispatch(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(resultLabel(success)).Inc()
	m.dispatchTime.Observe(duration.Seconds())
}

// RecordAISuggestion counts a generated suggestion.
func (m *MetricsService) RecordAISuggestion(essayType models.EssayType) {
	if m == nil {
		return
	}
	m.aiSuggestions.WithLabelValues(string(essayType)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

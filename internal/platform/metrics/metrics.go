package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cms"

// Metrics holds the Prometheus collectors exported by the content service.
type Metrics struct {
	registry *prometheus.Registry

	// Content resolution
	ResolveRequests     *prometheus.CounterVec
	ResolveFallbackHits prometheus.Counter

	// Content writes
	UpsertResults         *prometheus.CounterVec
	UpsertConflictRetries prometheus.Counter

	// Preview relay
	PreviewConnections *prometheus.GaugeVec
	PreviewMessages    *prometheus.CounterVec

	// Overlays
	OverlaySelections *prometheus.CounterVec
	OverlayDismissals prometheus.Counter

	// HTTP
	HTTPDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry along with the Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		ResolveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_requests_total",
			Help:      "Dictionary resolutions by outcome (ok, store_error).",
		}, []string{"outcome"}),
		ResolveFallbackHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_fallback_hits_total",
			Help:      "Keys served from the fallback language.",
		}),
		UpsertResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upsert_results_total",
			Help:      "Content writes by result (inserted, updated, error).",
		}, []string{"result"}),
		UpsertConflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upsert_conflict_retries_total",
			Help:      "Content writes retried after a concurrent insert conflict.",
		}),
		PreviewConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "preview_connections",
			Help:      "Open preview relay connections by role.",
		}, []string{"role"}),
		PreviewMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_messages_total",
			Help:      "Preview messages by type and result (relayed, dropped).",
		}, []string{"type", "result"}),
		OverlaySelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_selections_total",
			Help:      "Overlays chosen for a page view by display style.",
		}, []string{"style"}),
		OverlayDismissals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_dismissals_total",
			Help:      "Recorded overlay dismissals.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ResolveRequests,
		m.ResolveFallbackHits,
		m.UpsertResults,
		m.UpsertConflictRetries,
		m.PreviewConnections,
		m.PreviewMessages,
		m.OverlaySelections,
		m.OverlayDismissals,
		m.HTTPDuration,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncResolve(outcome string) {
	if m == nil || m.ResolveRequests == nil {
		return
	}
	m.ResolveRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddFallbackHits(n int) {
	if m == nil || m.ResolveFallbackHits == nil || n <= 0 {
		return
	}
	m.ResolveFallbackHits.Add(float64(n))
}

func (m *Metrics) IncUpsert(result string) {
	if m == nil || m.UpsertResults == nil {
		return
	}
	m.UpsertResults.WithLabelValues(result).Inc()
}

func (m *Metrics) IncUpsertRetry() {
	if m == nil || m.UpsertConflictRetries == nil {
		return
	}
	m.UpsertConflictRetries.Inc()
}

func (m *Metrics) AddPreviewConnection(role string, delta float64) {
	if m == nil || m.PreviewConnections == nil {
		return
	}
	m.PreviewConnections.WithLabelValues(role).Add(delta)
}

func (m *Metrics) IncPreviewMessage(messageType, result string) {
	if m == nil || m.PreviewMessages == nil {
		return
	}
	m.PreviewMessages.WithLabelValues(messageType, result).Inc()
}

func (m *Metrics) IncOverlaySelection(style string) {
	if m == nil || m.OverlaySelections == nil {
		return
	}
	m.OverlaySelections.WithLabelValues(style).Inc()
}

func (m *Metrics) IncOverlayDismissal() {
	if m == nil || m.OverlayDismissals == nil {
		return
	}
	m.OverlayDismissals.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil || m.HTTPDuration == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for the Sluice core.
type Metrics struct {
	registry *prometheus.Registry

	// Governor metrics.
	GovernorCallsTotal    *prometheus.CounterVec
	GovernorPacingWait    prometheus.Histogram
	GovernorCoolDownUntil prometheus.Gauge

	// Snapshot collection metrics.
	CollectionsTotal *prometheus.CounterVec
	CollectDuration  prometheus.Histogram

	// Dataset reads.
	DatasetRequestsTotal *prometheus.CounterVec

	// Redistribution metrics.
	PreviewsTotal   prometheus.Counter
	ApplyLinesTotal *prometheus.CounterVec

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		GovernorCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_governor_calls_total",
			Help: "Total number of governed upstream calls by outcome.",
		}, []string{"endpoint", "kind"}),

		GovernorPacingWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sluice_governor_pacing_wait_seconds",
			Help:    "Time spent waiting for a dispatch slot.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		GovernorCoolDownUntil: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sluice_governor_cool_down_until_seconds",
			Help: "Unix time at which the upstream rate-limit cool-down ends.",
		}),

		CollectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_snapshot_collections_total",
			Help: "Total snapshot collection passes by resulting status.",
		}, []string{"status"}),

		CollectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sluice_snapshot_collect_duration_seconds",
			Help:    "Duration of snapshot collection passes.",
			Buckets: prometheus.DefBuckets,
		}),

		DatasetRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_dataset_requests_total",
			Help: "Total dataset requests by verdict.",
		}, []string{"status"}),

		PreviewsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sluice_budget_previews_total",
			Help: "Total budget previews computed.",
		}),

		ApplyLinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_budget_apply_lines_total",
			Help: "Total per-entity apply outcomes.",
		}, []string{"outcome"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sluice_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sluice_server_start_time_seconds",
			Help: "Unix time at which the server started.",
		}),
	}

	reg.MustRegister(
		m.GovernorCallsTotal,
		m.GovernorPacingWait,
		m.GovernorCoolDownUntil,
		m.CollectionsTotal,
		m.CollectDuration,
		m.DatasetRequestsTotal,
		m.PreviewsTotal,
		m.ApplyLinesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ServerStartTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ExpositionHandler returns the Prometheus text-format handler for /metrics.
func (m *Metrics) ExpositionHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MarkServerStart records the server start time.
func (m *Metrics) MarkServerStart() {
	m.ServerStartTime.Set(float64(time.Now().Unix()))
}

// IncGovernorCall implements the governor's MetricsRecorder.
func (m *Metrics) IncGovernorCall(endpoint, kind string) {
	m.GovernorCallsTotal.WithLabelValues(endpoint, kind).Inc()
}

// ObservePacingWait implements the governor's MetricsRecorder.
func (m *Metrics) ObservePacingWait(seconds float64) {
	m.GovernorPacingWait.Observe(seconds)
}

// SetCoolDownUntil implements the governor's MetricsRecorder.
func (m *Metrics) SetCoolDownUntil(unixSeconds float64) {
	m.GovernorCoolDownUntil.Set(unixSeconds)
}

// IncCollection implements the snapshot collector's CollectorMetrics.
func (m *Metrics) IncCollection(status string) {
	m.CollectionsTotal.WithLabelValues(status).Inc()
}

// ObserveCollectDuration implements the snapshot collector's CollectorMetrics.
func (m *Metrics) ObserveCollectDuration(seconds float64) {
	m.CollectDuration.Observe(seconds)
}

// IncDatasetRequest records a dataset read verdict.
func (m *Metrics) IncDatasetRequest(status string) {
	m.DatasetRequestsTotal.WithLabelValues(status).Inc()
}

// IncPreview implements the budget engine's EngineMetrics.
func (m *Metrics) IncPreview() {
	m.PreviewsTotal.Inc()
}

// IncApplyLine implements the budget engine's EngineMetrics.
func (m *Metrics) IncApplyLine(outcome string) {
	m.ApplyLinesTotal.WithLabelValues(outcome).Inc()
}

// IncHTTPRequest records a completed HTTP request.
func (m *Metrics) IncHTTPRequest(method, pathPattern string, statusCode int) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusCodeLabel(statusCode)).Inc()
}

// ObserveHTTPDuration records request latency.
func (m *Metrics) ObserveHTTPDuration(method, pathPattern string, seconds float64) {
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
}

func statusCodeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Package metrics exposes Prometheus collectors for the audio pipeline, quota arbiter, and backends.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector murmur records. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	// Capture
	FramesCaptured prometheus.Counter
	FramesDropped  prometheus.Counter
	QueueDepth     prometheus.Gauge

	// Quota
	QuotaChecks   *prometheus.CounterVec
	QuotaTracked  *prometheus.CounterVec
	QuotaStoreErr *prometheus.CounterVec

	// Backends
	Selections      *prometheus.CounterVec
	BackendCalls    *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec

	// Boundary
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "murmur_capture_frames_total",
			Help: "Frames produced by the capture device",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "murmur_capture_frames_dropped_total",
			Help: "Frames discarded by the drop-oldest overflow policy",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "murmur_capture_queue_depth",
			Help: "Frames waiting in the capture queue",
		}),

		QuotaChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_quota_checks_total",
			Help: "Quota checks by service and availability",
		}, []string{"service", "available"}),
		QuotaTracked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_quota_units_total",
			Help: "Quota units consumed by service",
		}, []string{"service"}),
		QuotaStoreErr: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_quota_store_errors_total",
			Help: "Counter store failures by operation",
		}, []string{"op"}),

		Selections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_backend_selections_total",
			Help: "Backend selections by service type and variant",
		}, []string{"type", "variant"}),
		BackendCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_backend_calls_total",
			Help: "Backend calls by backend and result",
		}, []string{"backend", "result"}),
		BackendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "murmur_backend_call_duration_seconds",
			Help:    "Backend call latency",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}, []string{"backend"}),

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_requests_total",
			Help: "Boundary requests by command and outcome",
		}, []string{"command", "ok"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "murmur_request_duration_seconds",
			Help:    "Boundary request latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"command"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FrameCaptured() {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) QuotaChecked(service string, available bool) {
	if m == nil {
		return
	}
	m.QuotaChecks.WithLabelValues(service, strconv.FormatBool(available)).Inc()
}

func (m *Metrics) QuotaConsumed(service string, units int) {
	if m == nil {
		return
	}
	m.QuotaTracked.WithLabelValues(service).Add(float64(units))
}

func (m *Metrics) QuotaStoreFailed(op string) {
	if m == nil {
		return
	}
	m.QuotaStoreErr.WithLabelValues(op).Inc()
}

func (m *Metrics) BackendSelected(serviceType, variant string) {
	if m == nil {
		return
	}
	m.Selections.WithLabelValues(serviceType, variant).Inc()
}

// BackendCall records one backend invocation; result is ok, failed, or not_initialized.
func (m *Metrics) BackendCall(backend, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BackendCalls.WithLabelValues(backend, result).Inc()
	m.BackendDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func (m *Metrics) Request(command string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(command, strconv.FormatBool(ok)).Inc()
	m.RequestDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

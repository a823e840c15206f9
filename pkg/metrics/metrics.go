// Package metrics holds the Prometheus collectors for connections, stream
// delivery and the HTTP API. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all collectors, registered on their own registry.
type Metrics struct {
	reg *prometheus.Registry

	// Connection metrics
	ActiveConnections prometheus.Gauge
	ConnectAttempts   *prometheus.CounterVec
	Disconnects       prometheus.Counter
	CloseErrors       prometheus.Counter

	// Delivery metrics
	Deliveries     *prometheus.CounterVec
	ActivePumps    prometheus.Gauge
	DeliveryTime   prometheus.Histogram
	ProviderErrors *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "t140cast_active_connections",
			Help: "Current number of live device connections",
		}),
		ConnectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "t140cast_connect_attempts_total",
			Help: "Connect attempts by protocol and outcome",
		}, []string{"protocol", "outcome"}),
		Disconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "t140cast_disconnects_total",
			Help: "Total number of device disconnects",
		}),
		CloseErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "t140cast_transport_close_errors_total",
			Help: "Transport close failures swallowed during disconnect",
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "t140cast_deliveries_total",
			Help: "Per-target stream delivery attempts by result",
		}, []string{"result"}),
		ActivePumps: f.NewGauge(prometheus.GaugeOpts{
			Name: "t140cast_active_stream_pumps",
			Help: "Streams currently being pumped to transports",
		}),
		DeliveryTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "t140cast_delivery_duration_seconds",
			Help:    "Time from attach until a pump stops",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "t140cast_provider_errors_total",
			Help: "Failures to obtain a stream from a provider",
		}, []string{"provider"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "t140cast_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "t140cast_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Connected records a connect outcome ("ok", "error", "existing").
func (m *Metrics) Connected(protocol, outcome string) {
	if m == nil {
		return
	}
	m.ConnectAttempts.WithLabelValues(protocol, outcome).Inc()
	if outcome == "ok" {
		m.ActiveConnections.Inc()
	}
}

// Disconnected records a removed connection.
func (m *Metrics) Disconnected(closeErr error) {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
	m.Disconnects.Inc()
	if closeErr != nil {
		m.CloseErrors.Inc()
	}
}

// Delivery records one per-target result ("attached", "not_connected",
// "attach_failed").
func (m *Metrics) Delivery(result string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(result).Inc()
}

// PumpStarted records an attached stream and returns a func to call when it
// stops.
func (m *Metrics) PumpStarted() (stopped func()) {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.ActivePumps.Inc()
	return func() {
		m.ActivePumps.Dec()
		m.DeliveryTime.Observe(time.Since(start).Seconds())
	}
}

// ProviderError records a failure to open a provider stream.
func (m *Metrics) ProviderError(provider string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

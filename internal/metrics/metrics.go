package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "home_radio"

// Metrics owns the station's collectors and the registry they are exposed
// from. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	listeners   *prometheus.GaugeVec
	bytesSent   *prometheus.CounterVec
	trackStarts *prometheus.CounterVec
	selections  *prometheus.CounterVec
	imports     *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		listeners: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners",
			Help:      "Number of connected stream listeners.",
		}, []string{"mode"}),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_sent_total",
			Help:      "Audio bytes written to listeners.",
		}, []string{"mode"}),
		trackStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_starts_total",
			Help:      "Tracks opened by stream sessions.",
		}, []string{"mode"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Operator selections by kind.",
		}, []string{"kind"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Track imports by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time to complete non-streaming HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.registry.MustRegister(
		m.listeners,
		m.bytesSent,
		m.trackStarts,
		m.selections,
		m.imports,
		m.requests,
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ListenerConnected counts a listener until the returned func is called.
func (m *Metrics) ListenerConnected(mode string) (done func()) {
	if m == nil {
		return func() {}
	}
	g := m.listeners.WithLabelValues(mode)
	g.Inc()
	return g.Dec
}

// BytesSent adds n bytes written in the given mode.
func (m *Metrics) BytesSent(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesSent.WithLabelValues(mode).Add(float64(n))
}

// TrackStarted counts a track opened by a session.
func (m *Metrics) TrackStarted(mode string) {
	if m == nil {
		return
	}
	m.trackStarts.WithLabelValues(mode).Inc()
}

// Selection counts an operator selection ("fixed" or "random").
func (m *Metrics) Selection(kind string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(kind).Inc()
}

// Import counts an import outcome.
func (m *Metrics) Import(result string) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(result).Inc()
}

// ObserveRequest records a finished HTTP request. Streams are counted but kept
// out of the latency histogram since their duration is the listening time.
func (m *Metrics) ObserveRequest(method string, code int, elapsed time.Duration, streaming bool) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	if !streaming {
		m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
	}
}

// TrackGauge exposes a library size reported by count.
func (m *Metrics) TrackGauge(count func() int) {
	if m == nil || count == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "library_tracks",
		Help:      "Audio files currently indexed in the library.",
	}, func() float64 { return float64(count()) }))
}

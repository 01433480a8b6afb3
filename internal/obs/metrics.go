package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry for one service. Each service
// gets its own registry so tests can build many servers in one process.
type Metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	injectedErrors *prometheus.CounterVec
	injectedDelay  prometheus.Histogram
	constLabels    prometheus.Labels
}

// NewMetrics registers the HTTP and fault-injection collectors under the
// given app_name constant label.
func NewMetrics(appName string) *Metrics {
	constLabels := prometheus.Labels{"app_name": appName}
	m := &Metrics{
		registry:    prometheus.NewRegistry(),
		constLabels: constLabels,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "noteboard_http_requests_total",
			Help:        "HTTP requests by method, route pattern and status.",
			ConstLabels: constLabels,
		}, []string{"method", "path", "status_code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "noteboard_http_request_duration_seconds",
			Help:        "HTTP request latency by method and route pattern.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "path"}),
		injectedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "noteboard_fault_injected_errors_total",
			Help:        "Responses short-circuited by error injection, by status code.",
			ConstLabels: constLabels,
		}, []string{"status_code"}),
		injectedDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "noteboard_fault_injected_delay_seconds",
			Help:        "Artificial delay added to guarded requests.",
			ConstLabels: constLabels,
			Buckets:     []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.injectedErrors,
		m.injectedDelay,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, fn))
}

// Handler serves the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency. It must wrap the ServeMux
// directly so the matched pattern is visible on the request after routing.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped, recorder := NewResponseRecorder(w)
		next.ServeHTTP(wrapped, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(recorder.StatusCode())).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// InjectedError implements fault.Recorder.
func (m *Metrics) InjectedError(status int) {
	m.injectedErrors.WithLabelValues(strconv.Itoa(status)).Inc()
}

// InjectedDelay implements fault.Recorder.
func (m *Metrics) InjectedDelay(d time.Duration) {
	m.injectedDelay.Observe(d.Seconds())
}

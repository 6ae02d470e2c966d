package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	devicesControlled *prometheus.CounterVec
	deviceDuration    prometheus.Histogram
	logins            *prometheus.CounterVec
	controlRequests   *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		devicesControlled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lightctl_devices_controlled_total",
			Help: "Device instruction sequences by outcome.",
		}, []string{"outcome"}),
		deviceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lightctl_device_duration_seconds",
			Help:    "Time spent applying one device's instruction sequence.",
			Buckets: prometheus.DefBuckets,
		}),
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lightctl_vendor_logins_total",
			Help: "Vendor logins by result.",
		}, []string{"result"}),
		controlRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lightctl_control_requests_total",
			Help: "Dispatched control requests by overall success.",
		}, []string{"success"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lightctl_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lightctl_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) ObserveDevice(outcome string, d time.Duration) {
	m.devicesControlled.WithLabelValues(outcome).Inc()
	m.deviceDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveLogin(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveControl(success bool, _ int) {
	m.controlRequests.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labelled by route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return h.Hijack()
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Package metrics holds the Prometheus collectors of the server and worker.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ordem"

type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight    prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	mutations       *prometheus.CounterVec
	MessagesSent    prometheus.Counter
	RealtimeConns   prometheus.Gauge
	Recomputes      prometheus.Counter
	ChangesConsumed *prometheus.CounterVec
	SweepExpired    prometheus.Counter
}

// New builds the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "records", Name: "mutations_total",
			Help: "Record mutations by table and operation.",
		}, []string{"table", "op"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "messaging", Name: "messages_sent_total",
			Help: "Messages stored by the conversation writers.",
		}),
		RealtimeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "realtime", Name: "connections",
			Help: "Open change feed websocket connections.",
		}),
		Recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "finance", Name: "recomputes_total",
			Help: "Monthly aggregate recomputations.",
		}),
		ChangesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "changes_consumed_total",
			Help: "Change events handled by the worker.",
		}, []string{"result"}),
		SweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "subscriptions_expired_total",
			Help: "Subscriptions expired by the sweep job.",
		}),
	}
	m.Registry.MustRegister(
		m.httpInFlight, m.httpRequests, m.httpDuration, m.mutations,
		m.MessagesSent, m.RealtimeConns, m.Recomputes, m.ChangesConsumed, m.SweepExpired,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordMutation counts one write on table. A nil receiver records nothing.
func (m *Metrics) RecordMutation(table, op string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(table, op).Inc()
}

func (m *Metrics) IncRecompute() {
	if m == nil {
		return
	}
	m.Recomputes.Inc()
}

func (m *Metrics) IncMessagesSent() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

// InstrumentHandler wraps next with request count, duration and in-flight
// metrics, labelled by the pattern routes matches.
func (m *Metrics) InstrumentHandler(next http.Handler, routes Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := RouteLabel(routes, r)
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the websocket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// OtherRoute labels requests that match no registered pattern.
const OtherRoute = "other"

// Router resolves the pattern a request would be served by. *http.ServeMux
// satisfies it.
type Router interface {
	Handler(r *http.Request) (http.Handler, string)
}

// RouteLabel is the registered pattern serving r, without its method, so
// path values such as ids never reach a label. Paths outside the route
// table share OtherRoute.
func RouteLabel(routes Router, r *http.Request) string {
	if routes == nil {
		return OtherRoute
	}
	_, pattern := routes.Handler(r)
	if pattern == "" {
		return OtherRoute
	}
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = pattern[i+1:]
	}
	return pattern
}

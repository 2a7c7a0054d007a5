package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classhub/pkg/types"
)

const namespace = "classhub"

// Metrics groups the service collectors on a private registry.
// Every method is safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	messagesPublished   prometheus.Counter
	deliveries          prometheus.Counter
	subscriptions       prometheus.Gauge
	sends               *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	enrollments         *prometheus.CounterVec
	connections         prometheus.Gauge
	authorLookups       *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers all collectors plus the go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "messages_published_total",
			Help: "Messages fanned out by the hub.",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "deliveries_total",
			Help: "Mailbox deliveries across all subscriptions.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hub", Name: "subscriptions",
			Help: "Open class subscriptions.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chat", Name: "sends_total",
			Help: "Chat send attempts by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "transitions_total",
			Help: "Class status transitions by target status and result.",
		}, []string{"to", "result"}),
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "enrollments_total",
			Help: "Enroll and unenroll attempts by result.",
		}, []string{"op", "result"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "websocket", Name: "connections",
			Help: "Registered websocket connections.",
		}),
		authorLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chat", Name: "author_lookups_total",
			Help: "Author lookups by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesPublished,
		m.deliveries,
		m.subscriptions,
		m.sends,
		m.transitions,
		m.enrollments,
		m.connections,
		m.authorLookups,
		m.httpRequests,
		m.httpRequestDuration,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePublish records one fan-out to the given number of subscribers
func (m *Metrics) ObservePublish(fanout int) {
	if m == nil {
		return
	}
	m.messagesPublished.Inc()
	m.deliveries.Add(float64(fanout))
}

func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.subscriptions.Dec()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// ObserveSend classifies a send result by error category
func (m *Metrics) ObserveSend(err error) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveTransition records a lifecycle transition attempt
func (m *Metrics) ObserveTransition(to types.ClassStatus, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(to), resultLabel(err)).Inc()
}

// ObserveEnrollment records an enroll or unenroll attempt
func (m *Metrics) ObserveEnrollment(op string, err error) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(op, resultLabel(err)).Inc()
}

// ObserveAuthorLookup records whether an author resolved
func (m *Metrics) ObserveAuthorLookup(err error) {
	if m == nil {
		return
	}
	m.authorLookups.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrValidation):
		return "validation"
	case errors.Is(err, types.ErrAuth):
		return "auth"
	case errors.Is(err, types.ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	case errors.Is(err, types.ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, types.ErrSend):
		return "send"
	case errors.Is(err, types.ErrFetch):
		return "fetch"
	default:
		return "error"
	}
}

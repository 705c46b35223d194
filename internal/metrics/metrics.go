// Package metrics exposes relay counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deadcode"

// Webhook outcome labels.
const (
	OutcomeRelayed      = "relayed"
	OutcomeIgnored      = "ignored"
	OutcomeUnauthorized = "unauthorized"
	OutcomeMalformed    = "malformed"
	OutcomeUndelivered  = "undelivered"
	OutcomeProvisioned  = "provisioned"
	OutcomeRejected     = "rejected"
)

// Metrics holds every collector the relay records to.
type Metrics struct {
	Webhooks        *prometheus.CounterVec
	MessagesSent    prometheus.Counter
	IRCState        *prometheus.GaugeVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the relay collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by provider and outcome.",
		}, []string{"provider", "outcome"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "irc",
			Name:      "messages_sent_total",
			Help:      "Formatted lines handed to the IRC connection.",
		}),
		IRCState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "irc",
			Name:      "state",
			Help:      "1 for the current IRC connection state, 0 otherwise.",
		}, []string{"state"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_code"}),
	}
	reg.MustRegister(m.Webhooks, m.MessagesSent, m.IRCState, m.RequestDuration)
	return m
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the exposition format for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Webhook counts one delivery. Safe on a nil receiver.
func (m *Metrics) Webhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.Webhooks.WithLabelValues(provider, outcome).Inc()
}

// Sent counts one relayed line. Safe on a nil receiver.
func (m *Metrics) Sent() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

// SetIRCState marks current as the only active state among all.
func (m *Metrics) SetIRCState(current string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.IRCState.WithLabelValues(s).Set(0)
	}
	m.IRCState.WithLabelValues(current).Set(1)
}

// Middleware records request durations labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

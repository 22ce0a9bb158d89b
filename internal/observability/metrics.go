// Package observability exposes the background's Prometheus metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several instances can coexist in one process.
type Metrics struct {
	registry    *prometheus.Registry
	messages    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	connections *prometheus.GaugeVec
	httpCount   *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sidebridge",
				Subsystem: "bridge",
				Name:      "messages_total",
				Help:      "Messages handled by the dispatcher.",
			},
			[]string{"route", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sidebridge",
				Subsystem: "bridge",
				Name:      "message_duration_seconds",
				Help:      "Time from dispatch to reply in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		connections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "sidebridge",
				Subsystem: "transport",
				Name:      "connections",
				Help:      "Open surface connections per transport.",
			},
			[]string{"transport"},
		),
		httpCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sidebridge",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sidebridge",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
	m.registry.MustRegister(
		m.messages,
		m.duration,
		m.connections,
		m.httpCount,
		m.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveMessage implements bridge.Recorder.
func (m *Metrics) ObserveMessage(route, outcome string, elapsed time.Duration) {
	m.messages.WithLabelValues(route, outcome).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ConnectionOpened(transport string) {
	m.connections.WithLabelValues(transport).Inc()
}

func (m *Metrics) ConnectionClosed(transport string) {
	m.connections.WithLabelValues(transport).Dec()
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpCount.WithLabelValues(method, path, statusLabel).Inc()
	m.httpLatency.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

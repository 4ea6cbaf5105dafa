// Package metrics exports Prometheus metrics for the monitor pipeline, the
// realtime fan-out, and the provider layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter aggregates all service metrics behind one registry.
type Exporter struct {
	registry *prometheus.Registry

	// Monitor pipeline metrics
	eventsIngested  prometheus.Counter
	eventsForwarded prometheus.Counter
	eventsDropped   *prometheus.CounterVec
	historyRows     prometheus.Counter

	// Realtime fan-out metrics
	wsClients   prometheus.Gauge
	wsBroadcast prometheus.Counter

	// Provider metrics
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

// NewExporter creates and registers all metrics.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.eventsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "channelwatch",
		Subsystem: "monitor",
		Name:      "events_ingested_total",
		Help:      "Messages received from monitored sources",
	})
	e.eventsForwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "channelwatch",
		Subsystem: "monitor",
		Name:      "events_forwarded_total",
		Help:      "Alerts forwarded to the target channel",
	})
	e.eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "channelwatch",
		Subsystem: "monitor",
		Name:      "events_dropped_total",
		Help:      "Messages dropped before forwarding",
	}, []string{"reason"})
	e.historyRows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "channelwatch",
		Subsystem: "monitor",
		Name:      "history_rows_total",
		Help:      "Per-user history rows persisted",
	})

	e.wsClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "channelwatch",
		Subsystem: "realtime",
		Name:      "ws_clients",
		Help:      "Connected websocket clients",
	})
	e.wsBroadcast = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "channelwatch",
		Subsystem: "realtime",
		Name:      "ws_messages_total",
		Help:      "Event frames delivered to websocket clients",
	})

	e.providerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "channelwatch",
		Subsystem: "ai",
		Name:      "provider_calls_total",
		Help:      "LLM provider calls by outcome",
	}, []string{"provider", "status"})
	e.providerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "channelwatch",
		Subsystem: "ai",
		Name:      "provider_latency_seconds",
		Help:      "LLM provider call latency in seconds",
		Buckets:   cfg.LatencyBuckets,
	}, []string{"provider"})

	registry.MustRegister(
		e.eventsIngested,
		e.eventsForwarded,
		e.eventsDropped,
		e.historyRows,
		e.wsClients,
		e.wsBroadcast,
		e.providerCalls,
		e.providerLatency,
	)
	return e
}

// RecordIngested counts one received message.
func (e *Exporter) RecordIngested() { e.eventsIngested.Inc() }

// RecordForwarded counts one forwarded alert.
func (e *Exporter) RecordForwarded() { e.eventsForwarded.Inc() }

// RecordDropped counts a dropped message with the stage that dropped it.
func (e *Exporter) RecordDropped(reason string) {
	e.eventsDropped.WithLabelValues(reason).Inc()
}

// RecordHistoryRows counts persisted history rows.
func (e *Exporter) RecordHistoryRows(n int) {
	e.historyRows.Add(float64(n))
}

// SetWSClients sets the connected client gauge.
func (e *Exporter) SetWSClients(n int) { e.wsClients.Set(float64(n)) }

// RecordWSBroadcast counts delivered event frames.
func (e *Exporter) RecordWSBroadcast(n int) { e.wsBroadcast.Add(float64(n)) }

// RecordProviderCall records one provider call with its latency.
func (e *Exporter) RecordProviderCall(provider string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.providerCalls.WithLabelValues(provider, status).Inc()
	e.providerLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

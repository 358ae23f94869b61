package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "healthstore"

// Metrics holds all application metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	OrderOperations     *prometheus.CounterVec
	VitalsClassified    *prometheus.CounterVec
	CriticalVitals      prometheus.Counter
	LowStockAlerts      prometheus.Counter
	OutboxPublished     prometheus.Counter
	OutboxFailed        prometheus.Counter
	OutboxPending       prometheus.Gauge
	KafkaProduced       *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
	CacheLookups        *prometheus.CounterVec
	WebsocketClients    prometheus.Gauge
}

// NewMetrics creates all metrics and registers them, plus the Go and process
// collectors, with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "route"}),
		OrderOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order ledger operations by outcome",
		}, []string{"operation", "outcome"}),
		VitalsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vitals_classified_total",
			Help:      "Classified vital measurements by metric and status",
		}, []string{"metric", "status"}),
		CriticalVitals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vitals_critical_total",
			Help:      "Vital records persisted with isCritical=true",
		}),
		LowStockAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_low_stock_alerts_total",
			Help:      "Stock changes that left a medicine at or below its minimum level",
		}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events published to Kafka",
		}),
		OutboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_failed_total",
			Help:      "Outbox publish attempts that failed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending_events",
			Help:      "Unpublished outbox events",
		}),
		KafkaProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_produced_total",
			Help:      "Kafka messages produced by topic",
		}, []string{"topic"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result",
		}, []string{"cache", "result"}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected alert websocket clients",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.OrderOperations,
		m.VitalsClassified,
		m.CriticalVitals,
		m.LowStockAlerts,
		m.OutboxPublished,
		m.OutboxFailed,
		m.OutboxPending,
		m.KafkaProduced,
		m.CircuitBreakerState,
		m.CacheLookups,
		m.WebsocketClients,
	)

	return m
}

// Handler serves the Prometheus exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.OrderOperations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) VitalClassified(metric, status string) {
	if m == nil {
		return
	}
	m.VitalsClassified.WithLabelValues(metric, status).Inc()
}

func (m *Metrics) CriticalVital() {
	if m == nil {
		return
	}
	m.CriticalVitals.Inc()
}

func (m *Metrics) LowStock() {
	if m == nil {
		return
	}
	m.LowStockAlerts.Inc()
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) Published(topic string) {
	if m == nil {
		return
	}
	m.OutboxPublished.Inc()
	m.KafkaProduced.WithLabelValues(topic).Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.OutboxFailed.Inc()
}

func (m *Metrics) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) SetWebsocketClients(n int) {
	if m == nil {
		return
	}
	m.WebsocketClients.Set(float64(n))
}

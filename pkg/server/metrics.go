package server

import (
	"net/http"
	"time"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "tinyme"

// Request results used as the "result" label
const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultError    = "error"
)

// Metrics holds the Prometheus collectors scraped at /metrics
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	events          *prometheus.CounterVec
	trades          prometheus.Counter
	tradedQuantity  prometheus.Counter
	activations     prometheus.Counter
	bookDepth       *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Requests handled by type and result",
		}, []string{"type", "result"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent handling a request inside the engine",
			Buckets:   []float64{.00001, .000025, .00005, .0001, .00025, .0005, .001, .0025, .005, .01},
		}, []string{"type"}),

		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_published_total",
			Help:      "Events published by type",
		}, []string{"type"}),

		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "trades_total",
			Help:      "Trades executed",
		}),

		tradedQuantity: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "traded_quantity_total",
			Help:      "Shares traded",
		}),

		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stop_activations_total",
			Help:      "Stop-limit orders activated",
		}),

		bookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "orderbook_depth",
			Help:      "Resting orders by security and side",
		}, []string{"isin", "side"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.events,
		m.trades,
		m.tradedQuantity,
		m.activations,
		m.bookDepth,
	)
	return m
}

// Registry exposes the registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRequest(requestType, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(requestType, result).Inc()
	m.requestDuration.WithLabelValues(requestType).Observe(elapsed.Seconds())
}

func (m *Metrics) observeEvents(events []*messaging.Event) {
	if m == nil {
		return
	}
	for _, event := range events {
		m.events.WithLabelValues(string(event.Type)).Inc()
	}
}

func (m *Metrics) observeTrades(trades []core.Trade) {
	if m == nil {
		return
	}
	for _, trade := range trades {
		m.trades.Inc()
		m.tradedQuantity.Add(float64(trade.Quantity))
	}
}

func (m *Metrics) observeActivations(n int) {
	if m == nil || n == 0 {
		return
	}
	m.activations.Add(float64(n))
}

func (m *Metrics) observeBook(security *core.Security) {
	if m == nil || security == nil {
		return
	}
	book := security.OrderBook()
	m.bookDepth.WithLabelValues(security.ISIN(), core.Buy.String()).Set(float64(book.Len(core.Buy)))
	m.bookDepth.WithLabelValues(security.ISIN(), core.Sell.String()).Set(float64(book.Len(core.Sell)))
}

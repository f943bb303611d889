package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	matchingMetrics     *MatchingMetrics
	matchingMetricsOnce sync.Once
)

// MatchingMetrics holds the counters the matchers report to
type MatchingMetrics struct {
	// Number of matching attempts by protocol and outcome
	matchesTotal metric.Int64Counter
	// Number of trades by protocol
	tradesTotal metric.Int64Counter
	// Shares traded by protocol
	tradedQuantity metric.Int64Counter
	// Stop-limit orders released from the inactive book
	activationsTotal metric.Int64Counter
}

// GetMatchingMetrics returns the MatchingMetrics singleton. Instruments are
// created against the global meter provider the first time it is called.
func GetMatchingMetrics() *MatchingMetrics {
	matchingMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(instrumentationName)
		m := &MatchingMetrics{}

		var err error
		if m.matchesTotal, err = meter.Int64Counter(
			"matching.matches.total",
			metric.WithDescription("Total number of matching attempts"),
			metric.WithUnit("{match}"),
		); err != nil {
			matchingMetrics = &MatchingMetrics{}
			return
		}
		if m.tradesTotal, err = meter.Int64Counter(
			"matching.trades.total",
			metric.WithDescription("Total number of trades"),
			metric.WithUnit("{trade}"),
		); err != nil {
			matchingMetrics = &MatchingMetrics{}
			return
		}
		if m.tradedQuantity, err = meter.Int64Counter(
			"matching.traded_quantity.total",
			metric.WithDescription("Total number of shares traded"),
			metric.WithUnit("{share}"),
		); err != nil {
			matchingMetrics = &MatchingMetrics{}
			return
		}
		if m.activationsTotal, err = meter.Int64Counter(
			"matching.stop_activations.total",
			metric.WithDescription("Total number of stop-limit orders activated"),
			metric.WithUnit("{order}"),
		); err != nil {
			matchingMetrics = &MatchingMetrics{}
			return
		}
		matchingMetrics = m
	})
	return matchingMetrics
}

// RecordMatch counts one matching attempt and the trades it produced
func (m *MatchingMetrics) RecordMatch(ctx context.Context, protocol, outcome string, trades, quantity int64) {
	if m.matchesTotal == nil {
		return
	}
	m.matchesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("match.protocol", protocol),
		attribute.String("match.outcome", outcome),
	))
	if trades == 0 {
		return
	}
	attrs := metric.WithAttributes(attribute.String("match.protocol", protocol))
	m.tradesTotal.Add(ctx, trades, attrs)
	m.tradedQuantity.Add(ctx, quantity, attrs)
}

// RecordActivations counts stop-limit orders released for a security
func (m *MatchingMetrics) RecordActivations(ctx context.Context, security string, count int64) {
	if m.activationsTotal == nil || count == 0 {
		return
	}
	m.activationsTotal.Add(ctx, count, metric.WithAttributes(attribute.String("security.isin", security)))
}

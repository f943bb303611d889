package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/erain9/tinyme/pkg/otel"
)

var (
	requestMetrics     *RequestMetrics
	requestMetricsOnce sync.Once
)

// RequestMetrics holds the instruments for engine request monitoring
type RequestMetrics struct {
	// Latency of a request from submission to the last published event
	latency metric.Float64Histogram

	// Traffic
	requestsTotal    metric.Int64Counter
	requestsInFlight metric.Int64UpDownCounter

	// Requests that ended with a rejection or a validation error
	rejectionsTotal metric.Int64Counter

	// Depth of the engine queue
	queueDepth metric.Int64UpDownCounter
}

// NewRequestMetrics creates the request instruments on meter
func NewRequestMetrics(meter metric.Meter) (*RequestMetrics, error) {
	latency, err := meter.Float64Histogram(
		"engine.request.duration",
		metric.WithDescription("Time (seconds) spent handling a request"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestsTotal, err := meter.Int64Counter(
		"engine.requests.total",
		metric.WithDescription("Total number of requests handled"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestsInFlight, err := meter.Int64UpDownCounter(
		"engine.requests.in_flight",
		metric.WithDescription("Number of requests waiting for or inside the engine"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	rejectionsTotal, err := meter.Int64Counter(
		"engine.rejections.total",
		metric.WithDescription("Total number of rejected requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64UpDownCounter(
		"engine.queue.depth",
		metric.WithDescription("Number of tasks queued on the engine goroutine"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	return &RequestMetrics{
		latency:          latency,
		requestsTotal:    requestsTotal,
		requestsInFlight: requestsInFlight,
		rejectionsTotal:  rejectionsTotal,
		queueDepth:       queueDepth,
	}, nil
}

// GetRequestMetrics returns the RequestMetrics singleton, built on the
// global meter provider. It never returns nil.
func GetRequestMetrics() *RequestMetrics {
	requestMetricsOnce.Do(func() {
		m, err := NewRequestMetrics(otel.GetMeterProvider().Meter(instrumentationName))
		if err != nil {
			m = &RequestMetrics{}
		}
		requestMetrics = m
	})
	return requestMetrics
}

// RecordRequest records one finished request of the given type
func (m *RequestMetrics) RecordRequest(ctx context.Context, requestType string, duration time.Duration, rejected bool) {
	if m.requestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("request.type", requestType))
	m.requestsTotal.Add(ctx, 1, attrs)
	m.latency.Record(ctx, duration.Seconds(), attrs)
	if rejected {
		m.rejectionsTotal.Add(ctx, 1, attrs)
	}
}

// AddInFlight moves the in-flight gauge by delta
func (m *RequestMetrics) AddInFlight(ctx context.Context, delta int64) {
	if m.requestsInFlight == nil {
		return
	}
	m.requestsInFlight.Add(ctx, delta)
}

// AddQueueDepth moves the engine queue gauge by delta
func (m *RequestMetrics) AddQueueDepth(ctx context.Context, delta int64) {
	if m.queueDepth == nil {
		return
	}
	m.queueDepth.Add(ctx, delta)
}

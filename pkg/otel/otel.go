package otel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	ServiceOrder          = "order-service"
	ServiceMatchingEngine = "matching-engine"
)

var (
	mu                     sync.RWMutex
	orderServiceTracer     trace.Tracer
	matchingEngineTracer   trace.Tracer
	orderTracerProvider    *sdktrace.TracerProvider
	matchingTracerProvider *sdktrace.TracerProvider
	meterProvider          *sdkmetric.MeterProvider
)

// Config holds the OpenTelemetry configuration
type Config struct {
	ServiceVersion   string
	Endpoint         string
	ShutdownTimeout  time.Duration
	MetricInterval   time.Duration
	CollectorEnabled bool
}

// Init installs tracer and meter providers exporting to an OTLP collector.
// With the collector disabled it does nothing and spans go to the global
// no-op provider. The returned function flushes and shuts everything down.
func Init(cfg Config) (func(), error) {
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "0.1.0"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.MetricInterval == 0 {
		cfg.MetricInterval = 5 * time.Second
	}
	if !cfg.CollectorEnabled {
		return func() {}, nil
	}

	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("otlp connection to %s: %w", cfg.Endpoint, err)
	}

	var shutdowns []func(context.Context) error

	orderTP, err := newTracerProvider(conn, newResource(ServiceOrder, cfg.ServiceVersion))
	if err != nil {
		log.Warn().Err(err).Str("service", ServiceOrder).Msg("tracing disabled")
	}
	matchingTP, err := newTracerProvider(conn, newResource(ServiceMatchingEngine, cfg.ServiceVersion))
	if err != nil {
		log.Warn().Err(err).Str("service", ServiceMatchingEngine).Msg("tracing disabled")
	}
	mp, err := newMeterProvider(conn, cfg.MetricInterval, newResource(ServiceMatchingEngine, cfg.ServiceVersion))
	if err != nil {
		log.Warn().Err(err).Msg("metrics export disabled")
	}

	mu.Lock()
	if orderTP != nil {
		orderTracerProvider = orderTP
		orderServiceTracer = orderTP.Tracer(ServiceOrder)
		shutdowns = append(shutdowns, orderTP.Shutdown)
		// request spans are the roots, so the order service owns the global provider
		otel.SetTracerProvider(orderTP)
	}
	if matchingTP != nil {
		matchingTracerProvider = matchingTP
		matchingEngineTracer = matchingTP.Tracer(ServiceMatchingEngine)
		shutdowns = append(shutdowns, matchingTP.Shutdown)
	}
	if mp != nil {
		meterProvider = mp
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}
	mu.Unlock()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		for _, shutdown := range shutdowns {
			if err := shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("telemetry shutdown")
			}
		}
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Msg("closing otlp connection")
		}
	}, nil
}

func newResource(serviceName, serviceVersion string) *sdkresource.Resource {
	extra, err := sdkresource.New(
		context.Background(),
		sdkresource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		sdkresource.WithOS(),
		sdkresource.WithProcess(),
		sdkresource.WithHost(),
	)
	if err != nil {
		log.Warn().Err(err).Msg("partial telemetry resource")
	}
	merged, err := sdkresource.Merge(sdkresource.Default(), extra)
	if err != nil {
		return sdkresource.Default()
	}
	return merged
}

func newTracerProvider(conn *grpc.ClientConn, resource *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	), nil
}

func newMeterProvider(conn *grpc.ClientConn, interval time.Duration, resource *sdkresource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(context.Background(), otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(resource),
	), nil
}

// GetOrderServiceTracer returns the tracer for request handling spans
func GetOrderServiceTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return orderServiceTracer
}

// GetMatchingEngineTracer returns the tracer for matching spans
func GetMatchingEngineTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return matchingEngineTracer
}

// GetTracerProvider returns the provider of the named service, falling back
// to the global one
func GetTracerProvider(serviceName string) trace.TracerProvider {
	mu.RLock()
	defer mu.RUnlock()
	switch serviceName {
	case ServiceOrder:
		if orderTracerProvider != nil {
			return orderTracerProvider
		}
	case ServiceMatchingEngine:
		if matchingTracerProvider != nil {
			return matchingTracerProvider
		}
	}
	return otel.GetTracerProvider()
}

// GetMeterProvider returns the installed meter provider or the global one
func GetMeterProvider() metric.MeterProvider {
	mu.RLock()
	defer mu.RUnlock()
	if meterProvider != nil {
		return meterProvider
	}
	return otel.GetMeterProvider()
}

// InitForTesting routes both services to tracer
func InitForTesting(tracer trace.Tracer) {
	mu.Lock()
	defer mu.Unlock()
	orderServiceTracer = tracer
	matchingEngineTracer = tracer
}

// ResetForTesting forgets the tracers installed by Init or InitForTesting
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	orderServiceTracer = nil
	matchingEngineTracer = nil
	orderTracerProvider = nil
	matchingTracerProvider = nil
}

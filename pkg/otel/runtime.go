package otel

import (
	"time"

	hostmetrics "go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
)

// StartRuntimeMetrics starts Go runtime (memory, GC) and host (CPU, network)
// metric collection against the installed meter provider
func StartRuntimeMetrics(readInterval time.Duration) error {
	if readInterval <= 0 {
		readInterval = 30 * time.Second
	}
	provider := GetMeterProvider()
	if err := runtime.Start(
		runtime.WithMinimumReadMemStatsInterval(readInterval),
		runtime.WithMeterProvider(provider),
	); err != nil {
		return err
	}
	return hostmetrics.Start(hostmetrics.WithMeterProvider(provider))
}

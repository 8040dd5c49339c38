// Package tracing wires the orchestrator's spans (internal/orchestrator's
// package-level tracer) to a real exporter. Grounded on
// evalgo-org-eve/otel/init.go's resource+sampler+TracerProvider
// construction, swapped to the stdout exporter since no OTLP collector is
// assumed present for a CLI batch run.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Init installs a global TracerProvider that writes spans as JSON to w.
// When enabled is false, sampling is set to NeverSample so span creation
// stays cheap while the provider (and C8's existing `tracer` var) keep
// working unmodified. Returns a shutdown func that flushes and detaches
// the provider; callers should defer it.
func Init(serviceName string, w io.Writer, enabled bool) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.NeverSample()
	if enabled {
		sampler = sdktrace.AlwaysSample()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

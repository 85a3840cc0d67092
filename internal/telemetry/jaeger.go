package telemetry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

/*
LEARNING: JAEGER INTEGRATION

  relay / boardctl → OpenTelemetry SDK → Jaeger exporter → collector → UI

Spans are batched and flushed by the returned shutdown function, so always
call it before the process exits.
*/

// Version is reported as service.version on every span.
const Version = "1.0.0"

// InitJaeger installs a global tracer provider exporting to jaegerEndpoint.
// It returns the flush-and-stop function.
func InitJaeger(serviceName, jaegerEndpoint string, logger zerolog.Logger) (func(context.Context) error, error) {
	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		// Room traffic is chatty; keep one trace in ten unless the caller's
		// parent span was sampled.
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))),
	)
	otel.SetTracerProvider(tp)

	logger.Info().
		Str("service", serviceName).
		Str("endpoint", jaegerEndpoint).
		Msg("jaeger tracing initialized")

	return tp.Shutdown, nil
}

// Noop is the shutdown function used when tracing is disabled.
func Noop(context.Context) error { return nil }

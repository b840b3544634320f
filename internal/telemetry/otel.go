// Package telemetry sets up OpenTelemetry tracing for the gateway.
package telemetry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/vnmchuo/translate-gateway/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceVersion = "0.1.0"

// InitTracer installs a global tracer provider and returns its shutdown
// function. Exporter type "none" leaves the global no-op provider in place.
func InitTracer(serviceName string, cfg *config.Config) (func(), error) {
	exporter, err := newExporter(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		return func() {}, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"", // empty schema URL avoids a conflict with Default()
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	// Inbound trace context is extracted by the proxy and injected into backend calls.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("telemetry: tracer shutdown: %v", err)
		}
	}, nil
}

// newExporter returns nil when tracing is off.
func newExporter(ctx context.Context, cfg *config.Config) (sdktrace.SpanExporter, error) {
	switch cfg.OTELExporterType {
	case "otlp":
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTELExporterEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		return exp, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, nil
	}
}

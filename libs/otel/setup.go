// Package otelx wires OpenTelemetry tracing for slotbook processes.
package otelx

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/md-rashed-zaman/slotbook/libs/config"
)

type Config struct {
	Enabled      bool
	ServiceName  string
	Version      string
	Environment  string
	OTLPEndpoint string // host:port of an OTLP gRPC collector
	Insecure     bool
	SampleRatio  float64
}

// ConfigFromEnv reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE,
// OTEL_SAMPLING_RATIO, SERVICE_VERSION and DEPLOY_ENV. A sampling ratio outside [0,1] falls back to 1.
func ConfigFromEnv(serviceName string) Config {
	ratio := 1.0
	if f, err := strconv.ParseFloat(strings.TrimSpace(config.String("OTEL_SAMPLING_RATIO", "1")), 64); err == nil && f >= 0 && f <= 1 {
		ratio = f
	}
	return Config{
		Enabled:      config.Bool("OTEL_ENABLED", true),
		ServiceName:  serviceName,
		Version:      config.String("SERVICE_VERSION", "dev"),
		Environment:  config.String("DEPLOY_ENV", "local"),
		OTLPEndpoint: strings.TrimSpace(config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317")),
		Insecure:     config.Bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		SampleRatio:  ratio,
	}
}

// Setup installs the W3C propagators and, when enabled, a batching tracer provider. The returned func
// flushes pending spans and must run during shutdown.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.OTLPEndpoint == "" {
		return nil, errors.New("otel: exporter endpoint is empty")
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithTimeout(3 * time.Second),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

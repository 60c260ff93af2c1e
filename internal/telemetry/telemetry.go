// Package telemetry sets up OpenTelemetry tracing for the daemon. Spans
// are exported over OTLP/HTTP when enabled; otherwise a no-op tracer
// provider is used and nothing leaves the process.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/core"
)

// ModuleID identifies the telemetry module.
const ModuleID core.ModuleID = "telemetry"

// ServiceName is reported as service.name on every span.
const ServiceName = "daybook"

// Provider owns the tracer provider. Stop flushes pending spans.
type Provider struct {
	tp     trace.TracerProvider
	sdk    *sdktrace.TracerProvider
	logger *slog.Logger
}

// New builds a Provider from cfg. A disabled config yields a no-op
// provider.
func New(ctx context.Context, cfg config.TelemetryConfig, version string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "telemetry")

	if !cfg.Enabled {
		return &Provider{tp: noop.NewTracerProvider(), logger: logger}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	logger.Info("telemetry: exporting traces", "endpoint", cfg.Endpoint, "sample_ratio", cfg.SampleRatio)
	return &Provider{tp: sdk, sdk: sdk, logger: logger}, nil
}

// Tracer returns a named tracer.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p.sdk != nil }

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: ModuleID}
}

// Stop implements core.Stopper. Pending spans are flushed before the
// exporter shuts down.
func (p *Provider) Stop(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	if err := p.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}

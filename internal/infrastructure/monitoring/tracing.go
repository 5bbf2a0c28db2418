package monitoring

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/didagent/pkg/errors"
)

// TracingManager owns the OpenTelemetry pipeline. Spans cover HTTP requests
// and individual sync cycles.
// TracingManager 管理 OpenTelemetry 链路追踪。
type TracingManager struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// TracingConfig carries exporter settings.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRate  float64
}

// NewTracingManager wires a Jaeger exporter when tracing is enabled; a
// disabled manager hands out no-op spans.
func NewTracingManager(cfg TracingConfig) (*TracingManager, error) {
	if !cfg.Enabled {
		return &TracingManager{tracer: otel.Tracer(cfg.ServiceName)}, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create jaeger exporter")
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build tracing resource")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)
	otel.SetTracerProvider(provider)

	return &TracingManager{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}, nil
}

// StartSpan opens a span under the current context.
func (m *TracingManager) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Shutdown flushes pending spans.
func (m *TracingManager) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

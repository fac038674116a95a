package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Exporter names accepted by TracingConfig.Exporter
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TracingConfig configures span export
type TracingConfig struct {
	// Exporter is one of none, stdout or otlp
	Exporter string

	// Endpoint is the OTLP gRPC collector address (host:port)
	Endpoint string

	// Insecure disables TLS towards the collector
	Insecure bool

	// Headers are sent with every OTLP export request
	Headers map[string]string

	// SamplingRate is the trace sampling rate (0.0 to 1.0)
	SamplingRate float64

	// ExportTimeout bounds a single export
	ExportTimeout time.Duration

	// Output receives stdout exporter spans (default: stderr)
	Output io.Writer
}

// DefaultTracingConfig disables export
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Exporter:      ExporterNone,
		SamplingRate:  1.0,
		ExportTimeout: 30 * time.Second,
	}
}

// Tracer starts rollout spans
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NoopTracer returns a tracer that records nothing
func NoopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("fleetroll")}
}

// NewTracer creates a tracer exporting through the configured exporter
func NewTracer(cfg TracingConfig, serviceName, serviceVersion string) (*Tracer, error) {
	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		return NoopTracer(), nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case ExporterOTLP:
		exporter, err = createOTLPExporter(cfg)
	case ExporterStdout:
		exporter, err = createStdoutExporter(cfg)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	batchOpts := []sdktrace.BatchSpanProcessorOption{}
	if cfg.ExportTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithExportTimeout(cfg.ExportTimeout))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
		sdktrace.WithBatcher(exporter, batchOpts...),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
	}, nil
}

// NewTracerWithProvider wraps an existing provider
func NewTracerWithProvider(provider *sdktrace.TracerProvider) *Tracer {
	return &Tracer{provider: provider, tracer: provider.Tracer("fleetroll")}
}

func createOTLPExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("otlp exporter requires an endpoint")
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent("fleetroll")),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	return otlptracegrpc.New(context.Background(), opts...)
}

func createStdoutExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return stdouttrace.New(
		stdouttrace.WithWriter(out),
		stdouttrace.WithPrettyPrint(),
	)
}

// StartRunSpan starts the span covering a whole rollout
func (t *Tracer) StartRunSpan(ctx context.Context, runID, from, target string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "rollout.run", trace.WithAttributes(
		AttrRunID.String(runID),
		AttrFromState.String(from),
		AttrTargetState.String(target),
	))
}

// StartStepSpan starts the span for one rollout step
func (t *Tracer) StartStepSpan(ctx context.Context, state string, index int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "rollout.step", trace.WithAttributes(
		AttrState.String(state),
		AttrStepIndex.Int(index),
	))
}

// StartSpan starts a span with the given attributes
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks the span as successful
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Shutdown flushes pending spans and stops the exporter
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// TraceID returns the trace ID of the span in ctx, or ""
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// Attribute keys used on rollout spans
var (
	AttrRunID       = attribute.Key("rollout.run_id")
	AttrFromState   = attribute.Key("rollout.from")
	AttrTargetState = attribute.Key("rollout.target")
	AttrMode        = attribute.Key("rollout.mode")
	AttrState       = attribute.Key("step.state")
	AttrStepIndex   = attribute.Key("step.index")
	AttrDrained     = attribute.Key("step.drained")
	AttrNewAgents   = attribute.Key("step.new_agents")
	AttrHealthy     = attribute.Key("step.healthy")
)

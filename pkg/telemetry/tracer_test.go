package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopTracer(t *testing.T) {
	tracer, err := NewTracer(DefaultTracingConfig(), "fleetroll", "test")
	require.NoError(t, err)

	ctx, span := tracer.StartRunSpan(context.Background(), "run-1", "ALL_OLD", "ALL_NEW")
	span.End()
	assert.Empty(t, TraceID(ctx))
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestUnsupportedExporter(t *testing.T) {
	_, err := NewTracer(TracingConfig{Exporter: "jaeger"}, "fleetroll", "test")
	assert.Error(t, err)

	_, err = NewTracer(TracingConfig{Exporter: ExporterOTLP}, "fleetroll", "test")
	assert.Error(t, err, "otlp without endpoint")
}

func TestStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	tracer, err := NewTracer(TracingConfig{Exporter: ExporterStdout, SamplingRate: 1, Output: &buf}, "fleetroll", "test")
	require.NoError(t, err)

	_, span := tracer.StartStepSpan(context.Background(), "CANARY_NEW", 1)
	span.End()
	require.NoError(t, tracer.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "rollout.step")
	assert.Contains(t, buf.String(), "CANARY_NEW")
}

func TestSpanHierarchy(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := NewTracerWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	ctx, run := tracer.StartRunSpan(context.Background(), "run-1", "ALL_OLD", "ALL_NEW")
	assert.NotEmpty(t, TraceID(ctx))

	_, step := tracer.StartStepSpan(ctx, "CANARY_NEW", 1)
	RecordError(step, errors.New("apply failed"))
	step.End()
	RecordSuccess(run)
	run.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "rollout.step", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
}

// Package tracing wires OpenTelemetry spans around the phases of a run.
package tracing

import (
	"context"
	"fmt"
	"io"
	"time"

	"civicrelay/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "civicrelay"

// Attribute keys shared by all spans
const (
	AttrTenant   = attribute.Key("civicrelay.tenant")
	AttrCommand  = attribute.Key("civicrelay.command")
	AttrRunID    = attribute.Key("civicrelay.run_id")
	AttrEntityID = attribute.Key("civicrelay.entity_id")
	AttrChannel  = attribute.Key("civicrelay.channel")
	AttrPurpose  = attribute.Key("civicrelay.purpose")
)

// DefaultTracingConfig returns sensible defaults
func DefaultTracingConfig() models.TracingConfig {
	return models.TracingConfig{
		ServiceName:  "civicrelay",
		Environment:  "production",
		OTLPEndpoint: "localhost:4318",
		SampleRate:   1.0,
		Enabled:      false,
		UseStdout:    true,
	}
}

// TracingManager manages OpenTelemetry setup and lifecycle
type TracingManager struct {
	config         models.TracingConfig
	logger         *logrus.Logger
	stdout         io.Writer
	tracerProvider *trace.TracerProvider
}

// NewTracingManager creates a new tracing manager. Spans exported to stdout
// go to w, so they can share the run log file.
func NewTracingManager(config models.TracingConfig, w io.Writer, logger *logrus.Logger) *TracingManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &TracingManager{
		config: config,
		logger: logger,
		stdout: w,
	}
}

// Initialize sets up OpenTelemetry tracing
func (tm *TracingManager) Initialize(ctx context.Context) error {
	if !tm.config.Enabled {
		tm.logger.Debug("OpenTelemetry tracing is disabled")
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(tm.config.ServiceName),
			semconv.DeploymentEnvironmentKey.String(tm.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter trace.SpanExporter
	if tm.config.UseStdout {
		opts := []stdouttrace.Option{}
		if tm.stdout != nil {
			opts = append(opts, stdouttrace.WithWriter(tm.stdout))
		}
		exporter, err = stdouttrace.New(opts...)
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	} else {
		exporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(tm.config.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
		}
		tm.logger.WithField("endpoint", tm.config.OTLPEndpoint).Debug("Using OTLP HTTP trace exporter")
	}

	tm.install(trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(tm.config.SampleRate))),
	))

	tm.logger.WithFields(logrus.Fields{
		"service":     tm.config.ServiceName,
		"sample_rate": tm.config.SampleRate,
	}).Debug("OpenTelemetry tracing initialized")
	return nil
}

func (tm *TracingManager) install(tp *trace.TracerProvider) {
	tm.tracerProvider = tp
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
}

// Shutdown flushes pending spans. A CLI run ends right after, so anything
// not flushed here is lost.
func (tm *TracingManager) Shutdown(ctx context.Context) error {
	if tm.tracerProvider == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := tm.tracerProvider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	tm.tracerProvider = nil
	return nil
}

// StartSpan starts a new span with the given name and context
func StartSpan(ctx context.Context, spanName string, attributes ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, spanName, oteltrace.WithAttributes(attributes...))
}

// StartRun opens the root span of one CLI invocation and stores the run id
// in the context.
func StartRun(ctx context.Context, command, tenant, runID string) (context.Context, oteltrace.Span) {
	ctx = WithRunID(ctx, runID)
	return StartSpan(ctx, "run."+command,
		AttrCommand.String(command),
		AttrTenant.String(tenant),
		AttrRunID.String(runID))
}

// StartPhase opens a child span for one phase of a run (search, detect, archive...).
func StartPhase(ctx context.Context, phase string, attributes ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return StartSpan(ctx, "phase."+phase, attributes...)
}

// End records err on the span, if any, and ends it.
func End(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// AddSpanAttributes adds attributes to the current span
func AddSpanAttributes(ctx context.Context, attributes ...attribute.KeyValue) {
	span := oteltrace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attributes...)
	}
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error, attributes ...attribute.KeyValue) {
	span := oteltrace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err, oteltrace.WithAttributes(attributes...))
		span.SetStatus(codes.Error, err.Error())
	}
}

// GetOtelTraceID returns the trace ID from the current context, empty when
// no valid span is active.
func GetOtelTraceID(ctx context.Context) string {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID adds the run correlation id to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// GetRunID extracts the run correlation id from context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(runIDKey).(string); ok {
		return runID
	}
	return ""
}

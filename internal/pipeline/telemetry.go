package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/remindd/internal/conversation"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/remindd/internal/pipeline"

// Metrics provides OpenTelemetry metrics for the pipeline package.
type Metrics struct {
	processedTotal  metric.Int64Counter
	failuresTotal   metric.Int64Counter
	processDuration metric.Float64Histogram

	initialized bool
}

// NewMetrics creates a new Metrics instance with the provided meter.
// If meter is nil, uses the global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.processedTotal, err = meter.Int64Counter(
		"pipeline.messages.processed.total",
		metric.WithDescription("Messages resolved to a terminal state"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	m.failuresTotal, err = meter.Int64Counter(
		"pipeline.failures.total",
		metric.WithDescription("Fatal processing failures handed back for redelivery"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	m.processDuration, err = meter.Float64Histogram(
		"pipeline.process.duration.seconds",
		metric.WithDescription("End-to-end processing duration per message"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordOutcome records the terminal state reached for one message.
// User and session IDs are intentionally kept off metrics to avoid
// cardinality explosion; correlation happens via spans and logs.
func (m *Metrics) RecordOutcome(ctx context.Context, state State, duration time.Duration) {
	if m == nil || !m.initialized {
		return
	}
	attrs := metric.WithAttributes(attribute.String("state", string(state)))
	m.processedTotal.Add(ctx, 1, attrs)
	m.processDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFailure records a fatal failure at the named pipeline stage.
func (m *Metrics) RecordFailure(ctx context.Context, stage string) {
	if m == nil || !m.initialized {
		return
	}
	m.failuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// Tracer returns a tracer for the pipeline package.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// StartSpan starts a processing span annotated with message identity.
func StartSpan(ctx context.Context, name string, msg *conversation.InboundMessage, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("pipeline.message_id", msg.ID),
		attribute.String("pipeline.session_id", msg.SessionID),
		attribute.String("pipeline.user_id", msg.UserID),
	}
	allOpts := append([]trace.SpanStartOption{trace.WithAttributes(attrs...)}, opts...)
	return Tracer().Start(ctx, name, allOpts...)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
	}
}

// SetSpanStatus sets the status on the current span.
func SetSpanStatus(ctx context.Context, code codes.Code, description string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(code, description)
	}
}

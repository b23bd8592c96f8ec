package task

import (
	"context"
	"time"

	"github.com/phrazzld/sketchpad-api/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName is the scope name for job engine traces and metrics.
const instrumentationName = "github.com/phrazzld/sketchpad-api/internal/task"

// Attempt outcomes recorded on spans and metrics.
const (
	outcomeCompleted = "completed"
	outcomeRequeued  = "requeued"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
	outcomeDropped   = "dropped"
)

// telemetry holds the instruments shared by the executor and the reaper.
// With no providers configured globally the OTel API hands out noop
// implementations.
type telemetry struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	attempts metric.Int64Counter
	reaped   metric.Int64Counter
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) *telemetry {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	// Instrument constructors return noop instruments alongside any error.
	duration, _ := meter.Float64Histogram(
		"sketchpad.job.attempt.duration",
		metric.WithDescription("Duration of job attempts in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"sketchpad.job.attempts",
		metric.WithDescription("Total number of job attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	reaped, _ := meter.Int64Counter(
		"sketchpad.job.reaped",
		metric.WithDescription("Jobs recovered from expired leases"),
		metric.WithUnit("{job}"),
	)

	return &telemetry{
		tracer:   tp.Tracer(instrumentationName),
		duration: duration,
		attempts: attempts,
		reaped:   reaped,
	}
}

func (t *telemetry) startAttempt(ctx context.Context, job *domain.Job, workerID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "sketchpad.job.attempt",
		trace.WithAttributes(
			attribute.String("sketchpad.job.id", job.ID.String()),
			attribute.String("sketchpad.job.kind", string(job.Kind)),
			attribute.Int("sketchpad.job.attempt", job.AttemptCount),
			attribute.Int("sketchpad.job.max_attempts", job.MaxAttempts),
			attribute.String("sketchpad.worker.id", workerID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *telemetry) recordAttempt(ctx context.Context, kind domain.Kind, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome),
	)
	t.duration.Record(ctx, elapsed.Seconds(), attrs)
	t.attempts.Add(ctx, 1, attrs)
}

func (t *telemetry) recordReaped(ctx context.Context, status domain.JobStatus) {
	t.reaped.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

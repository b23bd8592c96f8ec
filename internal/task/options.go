package task

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// options are shared by the engine components; each constructor reads the
// fields that apply to it.
type options struct {
	now     func() time.Time
	tracer  trace.TracerProvider
	meter   metric.MeterProvider
	limiter *rate.Limiter
}

// Option configures the executor, worker pool, reaper or retention sweeper.
type Option func(*options)

// WithClock replaces the wall clock. Times are converted to UTC.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = func() time.Time { return now().UTC() }
	}
}

// WithTracerProvider sets the provider attempt spans are created from.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithMeterProvider sets the provider attempt metrics are recorded on.
// Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meter = mp }
}

// WithRateLimiter throttles generator calls across all slots.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

func buildOptions(opts []Option) options {
	o := options{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "brainstem"

// Metrics holds all BrainStem metric instruments.
type Metrics struct {
	ToolCalls        metric.Int64Counter
	ToolCallErrors   metric.Int64Counter
	ToolCallDuration metric.Float64Histogram
	GuardDecisions   metric.Int64Counter
	RateLimited      metric.Int64Counter
	BreakerOpens     metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ToolCalls, err = meter.Int64Counter("brainstem.toolcalls",
		metric.WithDescription("Number of tool invocations"))
	if err != nil {
		return nil, err
	}

	m.ToolCallErrors, err = meter.Int64Counter("brainstem.toolcalls.errors",
		metric.WithDescription("Number of failed tool invocations"))
	if err != nil {
		return nil, err
	}

	m.ToolCallDuration, err = meter.Float64Histogram("brainstem.toolcall.duration_seconds",
		metric.WithDescription("Tool invocation duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.GuardDecisions, err = meter.Int64Counter("brainstem.guard.decisions",
		metric.WithDescription("Number of guard evaluations, by decision"))
	if err != nil {
		return nil, err
	}

	m.RateLimited, err = meter.Int64Counter("brainstem.ratelimited",
		metric.WithDescription("Number of requests rejected by the rate limiter"))
	if err != nil {
		return nil, err
	}

	m.BreakerOpens, err = meter.Int64Counter("brainstem.breaker.opens",
		metric.WithDescription("Number of circuit breaker open transitions"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

package llm

import (
	"context"
	"errors"
	"time"

	"transcription-icd-coder/internal/observability/metrics"
)

// Instrumented bounds each call with a timeout and records latency and
// errors per provider and function.
type Instrumented struct {
	next    Client
	metrics *metrics.Metrics
	timeout time.Duration
}

// Instrument wraps c. A zero timeout leaves the caller's deadline untouched.
func Instrument(c Client, m *metrics.Metrics, timeout time.Duration) *Instrumented {
	return &Instrumented{next: c, metrics: m, timeout: timeout}
}

func (i *Instrumented) Call(ctx context.Context, req Request) (*FunctionCall, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	call, err := i.next.Call(ctx, req)
	if i.metrics != nil {
		i.metrics.RecordLLMCall(i.next.Name(), req.Function.Name, time.Since(start).Seconds(), errorType(err))
	}
	return call, err
}

func (i *Instrumented) Name() string  { return i.next.Name() }
func (i *Instrumented) Model() string { return i.next.Model() }

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrNoFunctionCall):
		return "no_function_call"
	default:
		return "service"
	}
}

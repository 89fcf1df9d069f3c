package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcription-icd-coder/internal/observability/metrics"
	"transcription-icd-coder/internal/schema"
	"transcription-icd-coder/internal/service/llm"
	"transcription-icd-coder/internal/service/llm/mock"
)

var fn = schema.Function{
	Name:       "match_icd_code",
	Properties: []schema.Property{{Name: "icd_code", Type: schema.TypeString}},
	Required:   []string{"icd_code"},
}

func TestInvoke(t *testing.T) {
	tests := []struct {
		name    string
		resp    mock.Response
		wantErr error
	}{
		{"valid", mock.Response{Arguments: `{"icd_code":"A00"}`}, nil},
		{"no call", mock.Response{Missing: true}, llm.ErrNoFunctionCall},
		{"wrong name", mock.Response{Name: "other", Arguments: `{"icd_code":"A00"}`}, llm.ErrUnexpectedFunction},
		{"invalid args", mock.Response{Arguments: `{}`}, schema.ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mock.New().Script(fn.Name, tt.resp)

			args, err := llm.Invoke(context.Background(), c, schema.New(), llm.Request{Function: fn})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "A00", *args.String("icd_code"))
		})
	}
}

// nilClient returns neither a call nor an error.
type nilClient struct{}

func (nilClient) Call(context.Context, llm.Request) (*llm.FunctionCall, error) { return nil, nil }
func (nilClient) Name() string                                                 { return "nil" }
func (nilClient) Model() string                                                { return "nil" }

func TestInvoke_NilCall(t *testing.T) {
	_, err := llm.Invoke(context.Background(), nilClient{}, schema.New(), llm.Request{Function: fn})
	assert.ErrorIs(t, err, llm.ErrNoFunctionCall)
}

// slowClient blocks until its context is done.
type slowClient struct{}

func (slowClient) Call(ctx context.Context, _ llm.Request) (*llm.FunctionCall, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (slowClient) Name() string  { return "slow" }
func (slowClient) Model() string { return "slow-1" }

func TestInstrumented_Timeout(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	c := llm.Instrument(slowClient{}, m, 10*time.Millisecond)

	_, err := c.Call(context.Background(), llm.Request{Function: fn})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMErrors.WithLabelValues("slow", fn.Name, "timeout")))
	assert.Equal(t, "slow", c.Name())
	assert.Equal(t, "slow-1", c.Model())
}

func TestInstrumented_RecordsErrorTypes(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	inner := mock.New().Script(fn.Name,
		mock.Response{Arguments: `{"icd_code":"A00"}`},
		mock.Response{Missing: true},
		mock.Response{Err: errors.New("502 bad gateway")},
	)
	c := llm.Instrument(inner, m, 0)

	for i := 0; i < 3; i++ {
		_, _ = c.Call(context.Background(), llm.Request{Function: fn})
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.LLMLatency))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMErrors.WithLabelValues("mock", fn.Name, "no_function_call")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMErrors.WithLabelValues("mock", fn.Name, "service")))
}

func TestInstrumented_NilMetrics(t *testing.T) {
	c := llm.Instrument(mock.New().Script(fn.Name, mock.Response{Arguments: `{"icd_code":"A00"}`}), nil, time.Second)

	call, err := c.Call(context.Background(), llm.Request{Function: fn})
	require.NoError(t, err)
	assert.Equal(t, fn.Name, call.Name)
}

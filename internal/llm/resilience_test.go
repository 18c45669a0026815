package llm

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	calls atomic.Int32
	fn    func(call int32) (*CompletionResponse, error)
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) Complete(_ context.Context, _ CompletionRequest) (*CompletionResponse, error) {
	return f.fn(f.calls.Add(1))
}

func fastConfig() ResilienceConfig {
	return ResilienceConfig{
		RetryMaxAttempts:    3,
		RetryInitialDelay:   time.Millisecond,
		BreakerMinRequests:  2,
		BreakerFailureRatio: 1,
		BreakerOpenTimeout:  time.Minute,
	}
}

func TestResilientRetriesTransientFailures(t *testing.T) {
	fake := &fakeCompleter{fn: func(call int32) (*CompletionResponse, error) {
		if call < 3 {
			return nil, &StatusError{Provider: "fake", StatusCode: http.StatusServiceUnavailable, Err: errors.New("busy")}
		}
		return &CompletionResponse{Content: "{}"}, nil
	}}

	resp, err := NewResilient(fake, fastConfig()).Complete(context.Background(), CompletionRequest{Operation: "test"})

	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Content)
	assert.EqualValues(t, 3, fake.calls.Load())
}

func TestResilientDoesNotRetryClientErrors(t *testing.T) {
	fake := &fakeCompleter{fn: func(int32) (*CompletionResponse, error) {
		return nil, &StatusError{Provider: "fake", StatusCode: http.StatusUnauthorized, Err: errors.New("bad key")}
	}}

	_, err := NewResilient(fake, fastConfig()).Complete(context.Background(), CompletionRequest{})

	require.Error(t, err)
	assert.EqualValues(t, 1, fake.calls.Load())
}

func TestResilientOpensBreakerAfterRepeatedFailures(t *testing.T) {
	fake := &fakeCompleter{fn: func(int32) (*CompletionResponse, error) {
		return nil, &StatusError{Provider: "fake", StatusCode: http.StatusBadRequest, Err: errors.New("nope")}
	}}
	r := NewResilient(fake, fastConfig())

	for i := 0; i < 2; i++ {
		_, err := r.Complete(context.Background(), CompletionRequest{})
		require.Error(t, err)
		assert.False(t, IsCircuitOpen(err))
	}

	_, err := r.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.EqualValues(t, 2, fake.calls.Load())
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(ErrEmptyResponse))
	assert.True(t, IsRetryable(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, IsRetryable(&StatusError{StatusCode: http.StatusBadGateway}))
	assert.False(t, IsRetryable(&StatusError{StatusCode: http.StatusBadRequest}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

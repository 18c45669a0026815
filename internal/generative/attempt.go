// Package generative runs a model-backed producer with a deterministic fallback.
package generative

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/llm"
	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/pkg/logger"
)

// Provenance records which path produced a result.
type Provenance string

const (
	Generated Provenance = "generated"
	Heuristic Provenance = "heuristic"
)

type Result[T any] struct {
	Value      T
	Provenance Provenance
	Outcome    llm.Outcome
	// Err is the generator failure that forced the fallback, if any.
	Err error
}

// Attempt runs gen within timeout and falls back to heuristic whenever gen is
// nil, fails, panics, times out or yields a value that does not decode. The
// returned value is always fully one or the other, never a blend.
func Attempt[T any](
	ctx context.Context,
	operation string,
	timeout time.Duration,
	gen func(context.Context) (T, error),
	heuristic func() T,
) Result[T] {
	result := run(ctx, timeout, gen)
	if result.Outcome == llm.OutcomeValid {
		result.Provenance = Generated
	} else {
		logger.Warn("Generative call failed, using heuristic",
			zap.String("operation", operation),
			zap.String("outcome", string(result.Outcome)),
			zap.Error(result.Err),
		)
		result.Value = heuristic()
		result.Provenance = Heuristic
	}

	metrics.LLMCalls.WithLabelValues(operation, string(result.Outcome)).Inc()
	metrics.GenerativeProvenance.WithLabelValues(operation, string(result.Provenance)).Inc()
	return result
}

func run[T any](ctx context.Context, timeout time.Duration, gen func(context.Context) (T, error)) (result Result[T]) {
	if gen == nil {
		result.Outcome = llm.OutcomeUnavailable
		result.Err = llm.ErrNoProvider
		return result
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			var zero T
			result.Value = zero
			result.Outcome = llm.OutcomeUnavailable
			result.Err = fmt.Errorf("generator panicked: %v", r)
		}
	}()

	value, err := gen(ctx)
	if err != nil {
		result.Outcome = llm.OutcomeOf(err)
		result.Err = err
		return result
	}
	result.Value = value
	result.Outcome = llm.OutcomeValid
	return result
}

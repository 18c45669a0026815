package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/pkg/logger"
	"github.com/platform-factory/backend/pkg/retry"
)

type ResilienceConfig struct {
	// RequestsPerMinute caps outbound calls to the provider. Zero disables the throttle.
	RequestsPerMinute   int
	RetryMaxAttempts    int
	RetryInitialDelay   time.Duration
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

func (cfg ResilienceConfig) normalize() ResilienceConfig {
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 2
	}
	if cfg.RetryInitialDelay <= 0 {
		cfg.RetryInitialDelay = 500 * time.Millisecond
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = 5
	}
	if cfg.BreakerFailureRatio <= 0 || cfg.BreakerFailureRatio > 1 {
		cfg.BreakerFailureRatio = 0.6
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}
	return cfg
}

// Resilient wraps a Completer with an outbound throttle, retries on transient
// failures and a circuit breaker that fails fast while the provider is down.
type Resilient struct {
	next    Completer
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*CompletionResponse]
	retry   retry.Config
}

func NewResilient(next Completer, cfg ResilienceConfig) *Resilient {
	cfg = cfg.normalize()

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	name := next.Name()
	breaker := gobreaker.NewCircuitBreaker[*CompletionResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("LLM circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &Resilient{
		next:    next,
		limiter: limiter,
		breaker: breaker,
		retry: retry.Config{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialDelay:   cfg.RetryInitialDelay,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Retryable:      IsRetryable,
			Logger:         logger.GetLogger(),
		},
	}
}

func (r *Resilient) Name() string {
	return r.next.Name()
}

func (r *Resilient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := r.breaker.Execute(func() (*CompletionResponse, error) {
		cfg := r.retry
		cfg.Operation = req.Operation
		return retry.DoWithResult(ctx, cfg, func(ctx context.Context) (*CompletionResponse, error) {
			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					return nil, fmt.Errorf("llm throttle: %w", err)
				}
			}
			return r.next.Complete(ctx, req)
		})
	})
	if err != nil {
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = r.next.Name()
	}
	metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(resp.Usage.CompletionTokens))

	return resp, nil
}

// IsCircuitOpen reports whether err came from a tripped breaker rather than the provider.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/platform-factory/backend/pkg/config"
	"github.com/platform-factory/backend/pkg/logger"
)

// NewFromConfig builds the configured provider behind the resilience wrapper.
// It returns a nil Completer for provider none or when no API key is set, so
// every stage runs on its heuristic without calling out.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	if cfg.Provider == "none" || cfg.Provider == "" {
		return nil, nil
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("LLM provider has no API key, falling back to heuristics",
			zap.String("provider", cfg.Provider),
		)
		return nil, nil
	}

	var next Completer
	switch cfg.Provider {
	case "openai":
		next = NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	case "gemini":
		client, err := NewGeminiClient(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		next = client
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	return NewResilient(next, ResilienceConfig{
		RequestsPerMinute:  cfg.RequestsPerMinute,
		RetryMaxAttempts:   cfg.RetryMaxAttempts,
		BreakerMinRequests: cfg.BreakerMinRequest,
		BreakerOpenTimeout: time.Duration(cfg.BreakerOpenSec) * time.Second,
	}), nil
}

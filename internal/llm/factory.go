package llm

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/internal/config"
	"github.com/hyperjump/ragprobe/internal/errdefs"
)

// New builds the provider selected by cfg.Provider and wraps it in Limited.
// API keys are read from the environment variable named by cfg.APIKeyEnv.
func New(ctx context.Context, cfg *config.LLMConfig, logger *zap.Logger) (*Limited, error) {
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	var (
		m   Model
		err error
	)
	switch cfg.Provider {
	case "openai":
		m, err = NewOpenAI(apiKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	case "ollama":
		m, err = NewOllama(cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	case "gemini":
		m, err = NewGemini(ctx, apiKey, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", errdefs.ErrConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("chat model ready", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
	}
	return NewLimited(m, cfg.Provider, cfg.RequestsPerSecond, cfg.Burst, cfg.Timeout, WithLogger(logger)), nil
}

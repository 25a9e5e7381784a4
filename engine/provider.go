package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Supported providers.
const (
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ProviderConfig selects and configures the model provider.
type ProviderConfig struct {
	Provider string
	Endpoint string // base URL for ollama and OpenAI-compatible servers
	APIKey   string
	Model    string // provider default model
}

// NewProviderModel initializes the langchaingo model for cfg.
func NewProviderModel(ctx context.Context, cfg ProviderConfig, logger *logrus.Logger) (llms.Model, error) {
	providerLogger := logger.WithFields(logrus.Fields{
		"provider": cfg.Provider,
		"model":    cfg.Model,
	})

	var (
		llm llms.Model
		err error
	)

	switch cfg.Provider {
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required when using gemini provider")
		}
		llm, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		)

	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.Endpoint != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
		}
		llm, err = openai.New(opts...)

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required when using anthropic provider")
		}
		llm, err = anthropic.New(anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model))

	case ProviderOllama:
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.Endpoint),
			ollama.WithModel(cfg.Model),
		)

	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}

	if err != nil {
		providerLogger.WithError(err).Error("Failed to initialize LLM")
		return nil, fmt.Errorf("failed to initialize %s LLM: %w", cfg.Provider, err)
	}

	providerLogger.Info("LLM initialized successfully")
	return llm, nil
}

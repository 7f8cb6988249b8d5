package llmservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// NewModel creates the chat model for the configured provider
func NewModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("config", map[string]string{
		"provider": llmConfig.Provider,
		"base_url": llmConfig.BaseURL,
		"model":    llmConfig.Model,
	}).Msg("Creating llm client")

	switch llmConfig.Provider {
	case config.ProviderOpenAI:
		token := strings.TrimPrefix(llmConfig.Key, "Bearer ")
		if token == "" {
			token = "none"
		}
		opts := []openai.Option{
			openai.WithToken(token),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai client: %w", err)
		}
		return llm, nil
	default:
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
		}
		return llm, nil
	}
}

// Generator runs single, non-streaming prompts against a model
type Generator struct {
	model   llms.Model
	timeout time.Duration
	limiter *rate.Limiter
}

func NewGenerator(model llms.Model, timeout time.Duration, rps float64) *Generator {
	g := &Generator{model: model, timeout: timeout}
	if rps > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return g
}

// NewGeneratorFromConfig builds the model and wraps it in a Generator
func NewGeneratorFromConfig(llmConfig *config.LLMConfig) (*Generator, error) {
	model, err := NewModel(llmConfig)
	if err != nil {
		return nil, err
	}
	return NewGenerator(model, llmConfig.Timeout, llmConfig.RateLimit), nil
}

// Generate returns the full completion for prompt. Any failure, including
// the timeout, is reported as models.ErrProviderError.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limit: %w", models.ErrProviderError, err)
		}
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: generate: %w", models.ErrProviderError, err)
	}
	log.Debug().Dur("took", time.Since(start)).Int("prompt_len", len(prompt)).Msg("Generated content")
	return out, nil
}

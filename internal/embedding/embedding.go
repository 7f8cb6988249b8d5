package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// NewEmbedder creates the embedder for the configured provider, wrapped with
// the per-call timeout and rate limit from cfg.
func NewEmbedder(cfg *config.LLMConfig) (*Client, error) {
	var (
		inner embeddings.Embedder
		err   error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		inner, err = NewOpenAIEmbedder(cfg)
	default:
		inner, err = NewOllamaEmbedder(cfg)
	}
	if err != nil {
		return nil, err
	}
	return NewClient(inner, WithTimeout(cfg.Timeout), WithRateLimit(cfg.RateLimit)), nil
}

// new ollama embedder
func NewOllamaEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(llmConfig.BaseURL),
		ollama.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// NewOpenAIEmbedder creates an embedder for OpenAI-compatible endpoints
func NewOpenAIEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating openai embedder")

	// local OpenAI-compatible servers accept any token
	token := strings.TrimPrefix(llmConfig.Key, "Bearer ")
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(llmConfig.Model),
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// GenerateEmbedding embeds every chunk on a pool of workers goroutines.
// The result is order-paired with chunks. The first embedding error is returned.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, workers int) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks generated from content")
		return nil, nil
	}
	if workers < 1 {
		workers = 1
	}

	pool, err := ants.NewPool(min(workers, len(chunks)))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	chunkEmbeddings := make([]models.ChunkEmbedding, len(chunks))
	for i, chunk := range chunks {
		i, chunk := i, chunk
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vector, err := embedder.EmbedQuery(ctx, chunk.Content)
			if err != nil {
				setErr(fmt.Errorf("chunk %d: %w", chunk.ChunkID, err))
				return
			}
			chunkEmbeddings[i] = models.ChunkEmbedding{Chunk: chunk, Embedding: vector}
		})
		if err != nil {
			wg.Done()
			setErr(fmt.Errorf("failed to submit chunk %d: %w", chunk.ChunkID, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	log.Debug().Int("chunks", len(chunkEmbeddings)).Msg("Generated embeddings")
	return chunkEmbeddings, nil
}

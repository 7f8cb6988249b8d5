package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/chromemdb"
	"document-qa/internal/config"
	"document-qa/internal/models"
)

// Generator produces a completion for a single prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RAG answers questions against a built index
type RAG struct {
	expander    *Expander
	retriever   *Retriever
	synthesizer *Synthesizer
}

func NewRAG(generator Generator, embedder embeddings.Embedder, cfg *config.Config) *RAG {
	return &RAG{
		expander:    NewExpander(generator, cfg.RAG.NumVariants),
		retriever:   NewRetriever(embedder, cfg.RAG.TopK),
		synthesizer: NewSynthesizer(generator),
	}
}

// Query runs expand, retrieve and answer for question against index.
// Blank questions fail with models.ErrEmptyQuestion before any provider call.
func (r *RAG) Query(ctx context.Context, index *chromemdb.Index, question string) (*models.PromptResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, models.ErrEmptyQuestion
	}
	if index == nil {
		return nil, models.ErrNoDocument
	}

	variants := r.expander.Expand(ctx, question)

	chunks, err := r.retriever.Retrieve(ctx, index, variants)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("variants", len(variants)).Int("chunks", len(chunks)).Msg("Retrieved context")

	answer, err := r.synthesizer.Answer(ctx, chunks, question)
	if err != nil {
		return nil, err
	}

	return &models.PromptResponse{
		Query:    question,
		Variants: variants,
		Chunks:   chunks,
		Source:   formatSources(chunks),
		Content:  answer,
	}, nil
}

// formatSources lists where the context came from, one line per chunk
func formatSources(chunks []models.RetrievedChunk) string {
	var source strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&source, "%s", c.Source)
		if c.PageNumber > 0 {
			fmt.Fprintf(&source, " p.%d", c.PageNumber)
		}
		fmt.Fprintf(&source, " #%d (%.3f)\n", c.ChunkID, c.Similarity)
	}
	return strings.TrimSuffix(source.String(), "\n")
}

package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/chromemdb"
	"document-qa/internal/chunker"
	"document-qa/internal/config"
	"document-qa/internal/embedding"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"
)

// Indexer turns a document into a searchable index:
// provision the embedding model, extract, split, embed, index.
type Indexer struct {
	extractor   parser.Parser
	splitter    *chunker.Splitter
	embedder    embeddings.Embedder
	provisioner llmservice.Provisioner
	embedModel  string
	collection  string
	workers     int
}

func NewIndexer(extractor parser.Parser, embedder embeddings.Embedder, provisioner llmservice.Provisioner, cfg *config.Config) *Indexer {
	return &Indexer{
		extractor:   extractor,
		splitter:    chunker.New(chunker.WithChunkSize(cfg.RAG.ChunkSize), chunker.WithOverlap(cfg.RAG.ChunkOverlap)),
		embedder:    embedder,
		provisioner: provisioner,
		embedModel:  cfg.EmbedLLM.Model,
		collection:  cfg.RAG.CollectionName,
		workers:     cfg.RAG.EmbedWorkers,
	}
}

// Build returns the index of doc. Errors wrap models.ErrProviderUnavailable,
// models.ErrFileNotFound or models.ErrExtractionFailed.
func (ix *Indexer) Build(ctx context.Context, doc models.Document) (*chromemdb.Index, error) {
	start := time.Now()
	logger := log.With().Str("document", doc.Name).Str("id", doc.ID).Logger()

	if err := ix.provisioner.EnsureModel(ctx, ix.embedModel); err != nil {
		return nil, err
	}

	segments, err := ix.extractor.Extract(doc.Path)
	if err != nil {
		return nil, err
	}

	chunks := textChunks(ix.splitter.Split(segments))
	if len(chunks) == 0 {
		logger.Warn().Msg("Document has no text, building an empty index")
	}
	logger.Info().Int("segments", len(segments)).Int("chunks", len(chunks)).Msg("Split document")

	embedded, err := embedding.GenerateEmbedding(ctx, ix.embedder, chunks, ix.workers)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding %s: %v", models.ErrProviderUnavailable, doc.Name, err)
	}

	index, err := chromemdb.NewIndex(ctx, ix.collection, doc.ID, embedded)
	if err != nil {
		return nil, fmt.Errorf("%w: indexing %s: %v", models.ErrProviderUnavailable, doc.Name, err)
	}
	logger.Info().Dur("took", time.Since(start)).Int("chunks", index.Count()).Msg("Document indexed")
	return index, nil
}

// textChunks drops chunks holding only whitespace; they carry nothing to retrieve
func textChunks(chunks []models.Chunk) []models.Chunk {
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) != "" {
			out = append(out, c)
		}
	}
	return out
}

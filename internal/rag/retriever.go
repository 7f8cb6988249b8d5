package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"

	"document-qa/internal/chromemdb"
	"document-qa/internal/models"
)

// Retriever probes the index once per query variant and merges the hits
type Retriever struct {
	embedder embeddings.Embedder
	topK     int
}

func NewRetriever(embedder embeddings.Embedder, topK int) *Retriever {
	return &Retriever{embedder: embedder, topK: topK}
}

// Retrieve returns the union of the top-k chunks of every variant. A chunk
// found by several variants appears once, with its best similarity. Results
// are ordered by similarity, then by ChunkID. No hits is an empty slice and a
// nil error.
func (r *Retriever) Retrieve(ctx context.Context, index *chromemdb.Index, variants []string) ([]models.RetrievedChunk, error) {
	if index == nil {
		return nil, models.ErrNoDocument
	}
	if len(variants) == 0 || index.Count() == 0 {
		return []models.RetrievedChunk{}, nil
	}

	hits := make([][]models.RetrievedChunk, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range variants {
		i, variant := i, variant
		g.Go(func() error {
			vector, err := r.embedder.EmbedQuery(gctx, variant)
			if err != nil {
				return fmt.Errorf("%w: embed variant %q: %v", models.ErrProviderError, variant, err)
			}
			res, err := index.Search(gctx, vector, r.topK)
			if err != nil {
				return fmt.Errorf("%w: search: %v", models.ErrProviderError, err)
			}
			hits[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeHits(hits), nil
}

func mergeHits(hits [][]models.RetrievedChunk) []models.RetrievedChunk {
	best := make(map[int]models.RetrievedChunk)
	for _, res := range hits {
		for _, hit := range res {
			if cur, ok := best[hit.ChunkID]; !ok || hit.Similarity > cur.Similarity {
				best[hit.ChunkID] = hit
			}
		}
	}

	merged := make([]models.RetrievedChunk, 0, len(best))
	for _, hit := range best {
		merged = append(merged, hit)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Similarity != merged[j].Similarity {
			return merged[i].Similarity > merged[j].Similarity
		}
		return merged[i].ChunkID < merged[j].ChunkID
	})
	return merged
}

package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

// Index is the in-memory vector index of exactly one document.
// It is immutable once built and safe for concurrent searches.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	documentID string
	dimension  int
	chunks     map[string]models.Chunk
}

// meta data will have source filename, page number, chunk id
const (
	metaSource = "source"
	metaPage   = "page"
	metaChunk  = "chunk_id"
)

var errNoEmbeddingFunc = errors.New("index only accepts precomputed embeddings")

// chunk vectors are always computed before indexing; text is never embedded here
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// NewIndex builds the index for documentID from embedded chunks.
// All embeddings must share one dimension.
func NewIndex(ctx context.Context, collectionName, documentID string, embedded []models.ChunkEmbedding) (*Index, error) {
	dimension := 0
	for _, ce := range embedded {
		if len(ce.Embedding) == 0 {
			return nil, fmt.Errorf("chunk %d has no embedding", ce.ChunkID)
		}
		if dimension == 0 {
			dimension = len(ce.Embedding)
		}
		if len(ce.Embedding) != dimension {
			return nil, fmt.Errorf("chunk %d: embedding dimension %d, expected %d", ce.ChunkID, len(ce.Embedding), dimension)
		}
	}

	name := collectionName + "-" + documentID
	db := chromem.NewDB()
	collection, err := db.CreateCollection(name, map[string]string{"document_id": documentID}, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %v", err)
	}

	idx := &Index{
		db:         db,
		collection: collection,
		name:       name,
		documentID: documentID,
		dimension:  dimension,
		chunks:     make(map[string]models.Chunk, len(embedded)),
	}

	docs := make([]chromem.Document, 0, len(embedded))
	for _, ce := range embedded {
		id := strconv.Itoa(ce.ChunkID)
		if _, dup := idx.chunks[id]; dup {
			return nil, fmt.Errorf("duplicate chunk id %d", ce.ChunkID)
		}
		idx.chunks[id] = ce.Chunk
		docs = append(docs, chromem.Document{
			ID:      id,
			Content: ce.Content,
			Metadata: map[string]string{
				metaSource: ce.Source,
				metaPage:   strconv.Itoa(ce.PageNumber),
				metaChunk:  id,
			},
			Embedding: ce.Embedding,
		})
	}

	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("failed to add documents: %v", err)
		}
	}
	log.Debug().Str("collection", name).Int("chunks", len(docs)).Int("dimension", dimension).Msg("Built vector index")
	return idx, nil
}

// DocumentID returns the identity of the indexed document
func (i *Index) DocumentID() string { return i.documentID }

func (i *Index) Name() string { return i.name }

// Count returns the number of indexed chunks
func (i *Index) Count() int { return i.collection.Count() }

// Dimension returns the embedding length, 0 for an empty index
func (i *Index) Dimension() int { return i.dimension }

// Search returns up to k chunks ordered by cosine similarity to vector.
// k is clamped to the index size; an empty index yields no results.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]models.RetrievedChunk, error) {
	if len(vector) == 0 {
		return nil, errors.New("query embedding must be provided")
	}
	count := i.Count()
	if count == 0 || k <= 0 {
		return []models.RetrievedChunk{}, nil
	}
	if len(vector) != i.dimension {
		return nil, fmt.Errorf("query embedding dimension %d, index has %d", len(vector), i.dimension)
	}

	results, err := i.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       min(k, count),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	retrieved := make([]models.RetrievedChunk, 0, len(results))
	for _, res := range results {
		chunk, ok := i.chunks[res.ID]
		if !ok {
			log.Warn().Str("id", res.ID).Msg("Search returned unknown chunk")
			continue
		}
		retrieved = append(retrieved, models.RetrievedChunk{Chunk: chunk, Similarity: res.Similarity})
	}
	return retrieved, nil
}

// Close drops the collection. The index must not be searched afterwards.
func (i *Index) Close() error {
	if err := i.db.DeleteCollection(i.name); err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	return nil
}

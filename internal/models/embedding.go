package models

import "time"

// Document identifies an uploaded file. ID is derived from the file content.
type Document struct {
	ID   string
	Path string
	Name string
}

// Segment is a piece of extracted text with its source location
type Segment struct {
	Content    string
	Source     string
	PageNumber int
}

// Chunk represents a parsed chunk with metadata.
// ChunkID is the 1-based position of the chunk in reading order across the
// whole document, Offset is the rune offset of the chunk inside its segment.
type Chunk struct {
	Content    string
	Source     string
	PageNumber int
	ChunkID    int
	Offset     int
}

type ChunkEmbedding struct {
	Chunk
	Embedding []float32
}

// RetrievedChunk is a chunk returned by a similarity lookup
type RetrievedChunk struct {
	Chunk
	Similarity float32
}

type PromptResponse struct {
	Query    string
	Variants []string
	Chunks   []RetrievedChunk
	Source   string
	Content  string
}

// QAExchange is one answered question. Exchanges are never modified once created.
type QAExchange struct {
	Question  string
	Answer    string
	CreatedAt time.Time
}

package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-qa/internal/chromemdb"
	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/mock"
	"document-qa/internal/models"
	"document-qa/internal/parser"
)

const (
	skyText    = "The sky is blue. Water boils at 100 degrees Celsius."
	recipeText = `Pancakes

Whisk two eggs with a cup of milk. Add a cup of flour and a pinch of salt.

Heat a buttered pan and pour a ladle of batter. Flip when bubbles appear and cook until golden.`
	notEnoughInfo = "I don't have enough information from the provided document to answer that."
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RAG.ChunkSize = 20
	cfg.RAG.ChunkOverlap = 5
	return cfg
}

func writeDoc(t *testing.T, name, content string) models.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	doc, err := helper.NewDocument(path)
	require.NoError(t, err)
	return doc
}

func isExpansion(prompt string) bool {
	return strings.Contains(prompt, "Original question:")
}

// groundedModel answers only from the context section of the prompt
func groundedModel(variants string) func(context.Context, string) (string, error) {
	return func(_ context.Context, prompt string) (string, error) {
		if isExpansion(prompt) {
			return variants, nil
		}
		ctxStart := strings.Index(prompt, "Context:")
		qStart := strings.Index(prompt, "Question:")
		contextText := prompt[ctxStart:qStart]
		switch {
		case strings.Contains(contextText, "100") && strings.Contains(strings.ToLower(prompt[qStart:]), "water"):
			return "<think>the context mentions boiling</think>\nWater boils at 100 degrees Celsius.", nil
		default:
			return notEnoughInfo, nil
		}
	}
}

func buildIndex(t *testing.T, embedder *mock.Embedder, cfg *config.Config, doc models.Document) *chromemdb.Index {
	t.Helper()
	index, err := NewIndexer(parser.New(), embedder, &mock.Provisioner{}, cfg).Build(context.Background(), doc)
	require.NoError(t, err)
	return index
}

func TestQuery_AnswersFromDocument(t *testing.T) {
	cfg := testConfig()
	embedder := mock.NewEmbedder()
	generator := &mock.Generator{GenerateFunc: groundedModel("1. At what temperature does water boil?\n2. What is the boiling point of water?")}

	index := buildIndex(t, embedder, cfg, writeDoc(t, "sky.txt", skyText))
	require.GreaterOrEqual(t, index.Count(), 2)

	resp, err := NewRAG(generator, embedder, cfg).Query(context.Background(), index, "What temperature does water boil at?")
	require.NoError(t, err)

	var found bool
	for _, c := range resp.Chunks {
		if strings.Contains(c.Content, "100") {
			found = true
		}
	}
	assert.True(t, found, "retrieved context should contain the boiling point")
	assert.Equal(t, "Water boils at 100 degrees Celsius.", resp.Content)
	assert.Equal(t, []string{
		"What temperature does water boil at?",
		"At what temperature does water boil?",
		"What is the boiling point of water?",
	}, resp.Variants)
	assert.Contains(t, resp.Source, "sky.txt")
}

func TestQuery_UnrelatedQuestion(t *testing.T) {
	cfg := config.Default()
	embedder := mock.NewEmbedder()
	generator := &mock.Generator{GenerateFunc: groundedModel("Which city is the capital of France?")}

	index := buildIndex(t, embedder, cfg, writeDoc(t, "recipe.md", recipeText))

	resp, err := NewRAG(generator, embedder, cfg).Query(context.Background(), index, "What is the capital of France?")
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "don't have enough information")
	assert.NotContains(t, resp.Content, "Paris")

	prompts := generator.Prompts()
	answerPrompt := prompts[len(prompts)-1]
	assert.Contains(t, answerPrompt, "based ONLY on the following context")
	assert.Contains(t, answerPrompt, "Question: What is the capital of France?")
}

func TestQuery_EmptyQuestion(t *testing.T) {
	embedder := mock.NewEmbedder()
	generator := &mock.Generator{}
	r := NewRAG(generator, embedder, testConfig())

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := r.Query(context.Background(), nil, q)
		assert.ErrorIs(t, err, models.ErrEmptyQuestion)
	}
	assert.Zero(t, generator.Calls())
	assert.Zero(t, embedder.Calls())

	_, err := r.Query(context.Background(), nil, "question")
	assert.ErrorIs(t, err, models.ErrNoDocument)
}

func TestQuery_SynthesisFailure(t *testing.T) {
	cfg := testConfig()
	embedder := mock.NewEmbedder()
	generator := &mock.Generator{GenerateFunc: func(_ context.Context, prompt string) (string, error) {
		if isExpansion(prompt) {
			return "variant", nil
		}
		return "", errors.New("model crashed")
	}}
	index := buildIndex(t, embedder, cfg, writeDoc(t, "sky.txt", skyText))

	_, err := NewRAG(generator, embedder, cfg).Query(context.Background(), index, "Why is the sky blue?")
	assert.ErrorIs(t, err, models.ErrProviderError)
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		max      int
		want     []string
	}{
		{
			name:     "numbered list",
			response: "1. first\n2) second\n\n- third\n* fourth\n• fifth\nsixth",
			max:      5,
			want:     []string{"q?", "first", "second", "third", "fourth", "fifth"},
		},
		{
			name:     "fewer lines than asked",
			response: "only one\n\n   \n",
			max:      5,
			want:     []string{"q?", "only one"},
		},
		{
			name:     "duplicates and the original are dropped",
			response: "Q?\nsame\nsame\n",
			max:      5,
			want:     []string{"q?", "same"},
		},
		{
			name:     "reasoning blocks are ignored",
			response: "<think>\nhmm\n</think>\nvariant",
			max:      5,
			want:     []string{"q?", "variant"},
		},
		{
			name: "generation error",
			err:  errors.New("timeout"),
			max:  5,
			want: []string{"q?"},
		},
		{
			name:     "expansion disabled",
			response: "ignored",
			max:      0,
			want:     []string{"q?"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator := &mock.Generator{GenerateFunc: func(context.Context, string) (string, error) {
				return tt.response, tt.err
			}}
			assert.Equal(t, tt.want, NewExpander(generator, tt.max).Expand(context.Background(), "  q?  "))
		})
	}
}

func TestExpand_UsesTemplate(t *testing.T) {
	generator := &mock.Generator{}
	NewExpander(generator, 5).Expand(context.Background(), "How hot is the sun?")
	require.Equal(t, 1, generator.Calls())
	assert.Contains(t, generator.Prompts()[0], "generate five\ndifferent versions")
	assert.True(t, strings.HasSuffix(generator.Prompts()[0], "Original question: How hot is the sun?"))
}

func TestRetrieve_Deduplicates(t *testing.T) {
	embedder := mock.NewEmbedder()
	chunks := []models.ChunkEmbedding{}
	for i, text := range []string{"rivers flow to the sea", "mountains are tall", "the sea is salty"} {
		chunk := models.Chunk{Content: text, ChunkID: i + 1}
		chunks = append(chunks, models.ChunkEmbedding{Chunk: chunk, Embedding: mock.Vector(text, mock.DefaultDimension)})
	}
	index, err := chromemdb.NewIndex(context.Background(), "test", "doc", chunks)
	require.NoError(t, err)

	got, err := NewRetriever(embedder, 2).Retrieve(context.Background(), index, []string{"the sea", "the sea", "sea water"})
	require.NoError(t, err)

	seen := map[int]int{}
	for _, c := range got {
		seen[c.ChunkID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "chunk %d returned %d times", id, n)
	}
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
	}
	assert.Equal(t, 3, embedder.Calls())
}

func TestRetrieve_EmptyAndErrors(t *testing.T) {
	embedder := mock.NewEmbedder()
	empty, err := chromemdb.NewIndex(context.Background(), "test", "empty", nil)
	require.NoError(t, err)

	got, err := NewRetriever(embedder, 4).Retrieve(context.Background(), empty, []string{"anything"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	index, err := chromemdb.NewIndex(context.Background(), "test", "doc", []models.ChunkEmbedding{
		{Chunk: models.Chunk{Content: "a", ChunkID: 1}, Embedding: mock.Vector("a", mock.DefaultDimension)},
	})
	require.NoError(t, err)
	embedder.SetErr(errors.New("connection refused"))
	_, err = NewRetriever(embedder, 4).Retrieve(context.Background(), index, []string{"a"})
	assert.ErrorIs(t, err, models.ErrProviderError)
}

func TestMergeHits(t *testing.T) {
	hit := func(id int, sim float32) models.RetrievedChunk {
		return models.RetrievedChunk{Chunk: models.Chunk{ChunkID: id}, Similarity: sim}
	}
	got := mergeHits([][]models.RetrievedChunk{
		{hit(2, 0.5), hit(1, 0.4)},
		{hit(1, 0.9), hit(3, 0.5)},
	})
	assert.Equal(t, []models.RetrievedChunk{hit(1, 0.9), hit(2, 0.5), hit(3, 0.5)}, got)
}

func TestSynthesizer(t *testing.T) {
	generator := &mock.Generator{GenerateFunc: func(context.Context, string) (string, error) {
		return "  <think>reasoning</think>\n\n The answer.  ", nil
	}}
	chunks := []models.RetrievedChunk{
		{Chunk: models.Chunk{Content: "first", ChunkID: 1}},
		{Chunk: models.Chunk{Content: "second", ChunkID: 2}},
	}
	answer, err := NewSynthesizer(generator).Answer(context.Background(), chunks, "What?")
	require.NoError(t, err)
	assert.Equal(t, "The answer.", answer)
	assert.Contains(t, generator.Prompts()[0], "Context:\nfirst\n---\nsecond\n\nQuestion: What?")

	// empty context still reaches the model
	_, err = NewSynthesizer(generator).Answer(context.Background(), nil, "What?")
	require.NoError(t, err)
	assert.Equal(t, 2, generator.Calls())
}

func TestIndexer_Build(t *testing.T) {
	cfg := testConfig()
	embedder := mock.NewEmbedder()
	provisioner := &mock.Provisioner{}
	doc := writeDoc(t, "sky.txt", skyText)

	index, err := NewIndexer(parser.New(), embedder, provisioner, cfg).Build(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, index.DocumentID())
	assert.Equal(t, embedder.Calls(), index.Count())
	assert.Equal(t, []string{cfg.EmbedLLM.Model}, provisioner.Models())
}

func TestIndexer_SkipsBlankChunks(t *testing.T) {
	cfg := testConfig()
	cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap = 10, 2
	embedder := mock.NewEmbedder()
	doc := writeDoc(t, "gaps.txt", "alpha"+strings.Repeat("\n", 30)+"omega")

	index, err := NewIndexer(parser.New(), embedder, &mock.Provisioner{}, cfg).Build(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 2, index.Count())
	for _, text := range embedder.Texts() {
		assert.NotEmpty(t, strings.TrimSpace(text))
	}
}

func TestIndexer_BuildErrors(t *testing.T) {
	cfg := testConfig()
	doc := writeDoc(t, "sky.txt", skyText)

	_, err := NewIndexer(parser.New(), mock.NewEmbedder(), &mock.Provisioner{Err: models.ErrProviderUnavailable}, cfg).
		Build(context.Background(), doc)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)

	missing := models.Document{ID: "x", Path: filepath.Join(t.TempDir(), "gone.txt"), Name: "gone.txt"}
	_, err = NewIndexer(parser.New(), mock.NewEmbedder(), &mock.Provisioner{}, cfg).Build(context.Background(), missing)
	assert.ErrorIs(t, err, models.ErrFileNotFound)

	unsupported := writeDoc(t, "image.png", "not text")
	_, err = NewIndexer(parser.New(), mock.NewEmbedder(), &mock.Provisioner{}, cfg).Build(context.Background(), unsupported)
	assert.ErrorIs(t, err, models.ErrExtractionFailed)

	failing := mock.NewEmbedder()
	failing.Err = errors.New("connection refused")
	_, err = NewIndexer(parser.New(), failing, &mock.Provisioner{}, cfg).Build(context.Background(), doc)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

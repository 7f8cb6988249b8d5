// Package mock provides deterministic providers for tests.
package mock

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
)

const DefaultDimension = 256

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Embedder maps text to a bag-of-words vector: every word adds one to the
// bucket its FNV hash falls in. Texts sharing words get similar vectors.
type Embedder struct {
	Dimension int
	// Gate, when set, blocks every call until it is closed or receives
	Gate chan struct{}
	// Err, when set, is returned by every call
	Err error

	mu    sync.Mutex
	calls atomic.Int64
	texts []string
}

var _ embeddings.Embedder = (*Embedder)(nil)

func NewEmbedder() *Embedder {
	return &Embedder{Dimension: DefaultDimension}
}

// Calls returns the number of texts embedded so far
func (e *Embedder) Calls() int { return int(e.calls.Load()) }

// Texts returns every text embedded so far, in call order
func (e *Embedder) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.texts...)
}

func (e *Embedder) SetErr(err error) {
	e.mu.Lock()
	e.Err = err
	e.mu.Unlock()
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.Gate != nil {
		select {
		case <-e.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.calls.Add(1)

	e.mu.Lock()
	e.texts = append(e.texts, text)
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return Vector(text, e.dimension()), nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Embedder) dimension() int {
	if e.Dimension <= 0 {
		return DefaultDimension
	}
	return e.Dimension
}

// Vector is the bag-of-words embedding of text. Bucket 0 carries a small bias
// so that no vector is all zeros.
func Vector(text string, dimension int) []float32 {
	v := make([]float32, dimension)
	v[0] = 0.1
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[1+int(h.Sum32()%uint32(dimension-1))]++
	}
	return v
}

// Generator returns scripted completions and records the prompts it saw
type Generator struct {
	// GenerateFunc produces the completion. A nil func echoes "answer".
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	fn := g.GenerateFunc
	g.mu.Unlock()
	if fn == nil {
		return "answer", nil
	}
	return fn(ctx, prompt)
}

func (g *Generator) SetGenerateFunc(fn func(ctx context.Context, prompt string) (string, error)) {
	g.mu.Lock()
	g.GenerateFunc = fn
	g.mu.Unlock()
}

func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// Provisioner counts EnsureModel calls and fails with Err when set
type Provisioner struct {
	Err error

	mu     sync.Mutex
	models []string
}

func (p *Provisioner) EnsureModel(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.models = append(p.models, name)
	return p.Err
}

func (p *Provisioner) Models() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.models...)
}

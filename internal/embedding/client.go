package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/time/rate"

	"document-qa/internal/models"
)

// Client bounds every call of the wrapped embedder with a timeout and an
// optional rate limit. Failures are reported as models.ErrProviderError.
type Client struct {
	embedder embeddings.Embedder
	timeout  time.Duration
	limiter  *rate.Limiter
}

var _ embeddings.Embedder = (*Client)(nil)

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRateLimit allows at most rps calls per second. Zero disables limiting.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func NewClient(embedder embeddings.Embedder, opts ...ClientOption) *Client {
	c := &Client{embedder: embedder}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", models.ErrProviderError, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: embed query: empty vector", models.ErrProviderError)
	}
	return vector, nil
}

func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed documents: %w", models.ErrProviderError, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embed documents: got %d vectors for %d texts", models.ErrProviderError, len(vectors), len(texts))
	}
	return vectors, nil
}

func (c *Client) prepare(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("%w: rate limit: %w", models.ErrProviderError, err)
		}
	}
	if c.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

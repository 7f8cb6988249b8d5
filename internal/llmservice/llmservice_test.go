package llmservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

type fakeModel struct {
	reply  string
	err    error
	delay  time.Duration
	prompt string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompt = text.Text
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestGenerator_Generate(t *testing.T) {
	model := &fakeModel{reply: "an answer"}
	out, err := NewGenerator(model, time.Second, 0).Generate(context.Background(), "a prompt")
	require.NoError(t, err)
	assert.Equal(t, "an answer", out)
	assert.Equal(t, "a prompt", model.prompt)
}

func TestGenerator_ErrorsAreProviderErrors(t *testing.T) {
	_, err := NewGenerator(&fakeModel{err: errors.New("boom")}, time.Second, 0).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, models.ErrProviderError)

	_, err = NewGenerator(&fakeModel{delay: time.Second}, 20*time.Millisecond, 0).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, models.ErrProviderError)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerator_RateLimit(t *testing.T) {
	g := NewGenerator(&fakeModel{reply: "ok"}, time.Second, 20)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := g.Generate(context.Background(), "p")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(&config.LLMConfig{Provider: config.ProviderOllama, BaseURL: "http://localhost:11434", Model: "llama3.2:3b"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	m, err = NewModel(&config.LLMConfig{Provider: config.ProviderOpenAI, BaseURL: "http://localhost:8080/v1", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}

type ollamaStub struct {
	mu     sync.Mutex
	models map[string]bool
	shows  atomic.Int32
	pulls  atomic.Int32
	fail   atomic.Bool
}

func (s *ollamaStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/show", func(w http.ResponseWriter, r *http.Request) {
		s.shows.Add(1)
		var req modelRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		ok := s.models[req.Model]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		s.pulls.Add(1)
		var req modelRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if s.fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"pull model manifest: file does not exist"}`))
			return
		}
		time.Sleep(20 * time.Millisecond)
		s.mu.Lock()
		s.models[req.Model] = true
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	return mux
}

func TestOllamaProvisioner_PullsMissingModelOnce(t *testing.T) {
	stub := &ollamaStub{models: map[string]bool{}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	p := NewOllamaProvisioner(srv.URL, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.EnsureModel(context.Background(), "nomic-embed-text"))
		}()
	}
	wg.Wait()

	require.NoError(t, p.EnsureModel(context.Background(), "nomic-embed-text"))
	assert.Equal(t, int32(1), stub.pulls.Load())
}

func TestOllamaProvisioner_ExistingModelIsNotPulled(t *testing.T) {
	stub := &ollamaStub{models: map[string]bool{"llama3.2:3b": true}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	require.NoError(t, NewOllamaProvisioner(srv.URL, time.Second).EnsureModel(context.Background(), "llama3.2:3b"))
	assert.Equal(t, int32(0), stub.pulls.Load())
}

func TestOllamaProvisioner_Failures(t *testing.T) {
	stub := &ollamaStub{models: map[string]bool{}}
	stub.fail.Store(true)
	srv := httptest.NewServer(stub.handler())

	p := NewOllamaProvisioner(srv.URL, time.Second)
	err := p.EnsureModel(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "file does not exist")

	// failures are not memoized
	stub.fail.Store(false)
	require.NoError(t, p.EnsureModel(context.Background(), "missing"))

	srv.Close()
	err = NewOllamaProvisioner(srv.URL, time.Second).EnsureModel(context.Background(), "other")
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestNewProvisioner(t *testing.T) {
	assert.IsType(t, NopProvisioner{}, NewProvisioner(&config.LLMConfig{Provider: config.ProviderOpenAI}))
	assert.IsType(t, &OllamaProvisioner{}, NewProvisioner(&config.LLMConfig{Provider: config.ProviderOllama, BaseURL: "http://localhost:11434"}))
	assert.NoError(t, NopProvisioner{}.EnsureModel(context.Background(), "x"))
}

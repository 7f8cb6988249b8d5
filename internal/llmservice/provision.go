package llmservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// Provisioner makes sure a model is available on its provider before use
type Provisioner interface {
	EnsureModel(ctx context.Context, name string) error
}

// NewProvisioner returns the provisioner matching the provider of llmConfig.
// OpenAI-compatible endpoints have no pull API, so nothing is done for them.
func NewProvisioner(llmConfig *config.LLMConfig) Provisioner {
	if llmConfig.Provider == config.ProviderOllama {
		return NewOllamaProvisioner(llmConfig.BaseURL, llmConfig.Timeout)
	}
	return NopProvisioner{}
}

type NopProvisioner struct{}

func (NopProvisioner) EnsureModel(context.Context, string) error { return nil }

// OllamaProvisioner pulls missing models through the Ollama HTTP API.
// A model that was found or pulled once is not checked again.
type OllamaProvisioner struct {
	client  *http.Client
	baseURL string

	mu    sync.Mutex
	ready map[string]bool
	group singleflight.Group
}

type modelRequest struct {
	Model  string `json:"model"`
	Stream *bool  `json:"stream,omitempty"`
}

type pullResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// pulls can take minutes for large models
const minPullTimeout = 10 * time.Minute

func NewOllamaProvisioner(baseURL string, timeout time.Duration) *OllamaProvisioner {
	return &OllamaProvisioner{
		client:  &http.Client{Timeout: max(timeout, minPullTimeout)},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		ready:   make(map[string]bool),
	}
}

func (p *OllamaProvisioner) EnsureModel(ctx context.Context, name string) error {
	p.mu.Lock()
	ok := p.ready[name]
	p.mu.Unlock()
	if ok {
		return nil
	}

	ch := p.group.DoChan(name, func() (interface{}, error) {
		if err := p.ensure(context.WithoutCancel(ctx), name); err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.ready[name] = true
		p.mu.Unlock()
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: ensure model %s: %w", models.ErrProviderUnavailable, name, ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

func (p *OllamaProvisioner) ensure(ctx context.Context, name string) error {
	found, err := p.show(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	if found {
		log.Debug().Str("model", name).Msg("Model already available")
		return nil
	}

	log.Info().Str("model", name).Msg("Pulling model")
	if err := p.pull(ctx, name); err != nil {
		return fmt.Errorf("%w: pull %s: %v", models.ErrProviderUnavailable, name, err)
	}
	log.Info().Str("model", name).Msg("Model pulled")
	return nil
}

// show reports whether the model exists locally
func (p *OllamaProvisioner) show(ctx context.Context, name string) (bool, error) {
	resp, err := p.post(ctx, "/api/show", modelRequest{Model: name})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("show %s: unexpected status %d", name, resp.StatusCode)
	}
}

func (p *OllamaProvisioner) pull(ctx context.Context, name string) error {
	stream := false
	resp, err := p.post(ctx, "/api/pull", modelRequest{Model: name, Stream: &stream})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var result pullResponse
	_ = json.Unmarshal(body, &result)

	if resp.StatusCode != http.StatusOK {
		if result.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, result.Error)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if result.Error != "" {
		return fmt.Errorf("%s", result.Error)
	}
	return nil
}

func (p *OllamaProvisioner) post(ctx context.Context, path string, payload modelRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama unreachable at %s: %w", p.baseURL, err)
	}
	return resp, nil
}

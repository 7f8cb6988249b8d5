package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-qa/internal/models"
)

// ollamaServer answers the model endpoints used for provisioning
func ollamaServer(t *testing.T, available ...string) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu     sync.Mutex
		pulled []string
		have   = map[string]bool{}
	)
	for _, m := range available {
		have[m] = true
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/show", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Model string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		defer mu.Unlock()
		if !have[req.Model] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Model string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		defer mu.Unlock()
		have[req.Model] = true
		pulled = append(pulled, req.Model)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &pulled
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`llm:
  base_url: %[1]s
  model: gen-model
embed_llm:
  base_url: %[1]s
  model: embed-model
`, baseURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestApp_RequiredFlags(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}

	err := app.Run([]string{"document-qa", "ask", "--file", "notes.txt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}

func TestApp_InvalidLogLevel(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}

	err := app.Run([]string{"document-qa", "--log-level", "loud", "pull"})
	assert.ErrorContains(t, err, "invalid log level")
}

func TestPullCommand(t *testing.T) {
	srv, pulled := ollamaServer(t, "gen-model")
	cfgPath := writeConfig(t, srv.URL)

	out := &bytes.Buffer{}
	app := newApp()
	app.Writer = out

	require.NoError(t, app.Run([]string{"document-qa", "--config", cfgPath, "pull"}))
	assert.Equal(t, "embed-model ready\ngen-model ready\n", out.String())
	assert.Equal(t, []string{"embed-model"}, *pulled)
}

func TestPullCommand_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag:\n  chunk_size: 10\n  chunk_overlap: 20\n"), 0o644))

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"document-qa", "--config", path, "pull"})
	assert.ErrorContains(t, err, "error loading config")
}

func TestChatCommand_WatchNeedsFile(t *testing.T) {
	srv, _ := ollamaServer(t, "gen-model", "embed-model")
	cfgPath := writeConfig(t, srv.URL)
	logFile := filepath.Join(t.TempDir(), "chat.log")

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"document-qa", "--config", cfgPath, "chat", "--watch", "--log-file", logFile})
	assert.ErrorContains(t, err, "--watch needs --file")
	assert.FileExists(t, logFile)
}

func TestPrintResponse(t *testing.T) {
	out := &bytes.Buffer{}
	printResponse(out, &models.PromptResponse{
		Query:   "Why is the sky blue?",
		Source:  "sky.txt #0 (0.912)",
		Content: "Rayleigh scattering.",
	})
	assert.Equal(t, "Why is the sky blue?\n\nsky.txt #0 (0.912)\n\nRayleigh scattering.\n\n", out.String())
}

func TestDropHistoryCommand_DatabaseDisabled(t *testing.T) {
	srv, _ := ollamaServer(t)
	cfgPath := writeConfig(t, srv.URL)

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"document-qa", "--config", cfgPath, "drop-history"})
	assert.ErrorContains(t, err, "database is not enabled")
}

func TestRedirectLogs_CreatesFolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chat.log")
	closeLog, err := redirectLogs(path)
	require.NoError(t, err)
	require.NoError(t, closeLog())
	assert.FileExists(t, path)
}

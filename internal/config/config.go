package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DriverPgDriver = "pgdriver"
	DriverPostgres = "postgres"
)

const (
	defaultBaseURL        = "http://localhost:11434"
	defaultModel          = "llama3.2:3b"
	defaultEmbeddingModel = "nomic-embed-text"
	defaultCollection     = "uploaded_doc_rag"
	defaultChunkSize      = 1200 // characters
	defaultChunkOverlap   = 300  // characters
	defaultTopK           = 4
	defaultNumVariants    = 5
	defaultEmbedWorkers   = 4
	defaultTimeout        = 120 * time.Second
)

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Database DatabaseConfig `yaml:"database"`
}

// LLMConfig configures one model endpoint
type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Key       string        `yaml:"key"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 disables
}

type RAGConfig struct {
	CollectionName string `yaml:"collection_name"`
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	TopK           int    `yaml:"top_k"`
	NumVariants    int    `yaml:"num_variants"`
	EmbedWorkers   int    `yaml:"embed_workers"`
}

// DatabaseConfig enables the optional Postgres history store
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: ProviderOllama,
			BaseURL:  defaultBaseURL,
			Model:    defaultModel,
			Timeout:  defaultTimeout,
		},
		EmbedLLM: LLMConfig{
			Provider: ProviderOllama,
			BaseURL:  defaultBaseURL,
			Model:    defaultEmbeddingModel,
			Timeout:  defaultTimeout,
		},
		RAG: RAGConfig{
			CollectionName: defaultCollection,
			ChunkSize:      defaultChunkSize,
			ChunkOverlap:   defaultChunkOverlap,
			TopK:           defaultTopK,
			NumVariants:    defaultNumVariants,
			EmbedWorkers:   defaultEmbedWorkers,
		},
		Database: DatabaseConfig{
			Driver: DriverPgDriver,
		},
	}
}

// LoadConfig reads the yaml file at path on top of the defaults.
// A missing file is not an error. Values from a .env file in the working
// directory are loaded into the environment first.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return
	}
	if c.LLM.Provider == ProviderOpenAI && c.LLM.Key == "" {
		c.LLM.Key = key
	}
	if c.EmbedLLM.Provider == ProviderOpenAI && c.EmbedLLM.Key == "" {
		c.EmbedLLM.Key = key
	}
}

func (c *Config) applyDefaults() {
	for _, l := range []*LLMConfig{&c.LLM, &c.EmbedLLM} {
		if l.Provider == "" {
			l.Provider = ProviderOllama
		}
		if l.BaseURL == "" && l.Provider == ProviderOllama {
			l.BaseURL = defaultBaseURL
		}
		if l.Timeout <= 0 {
			l.Timeout = defaultTimeout
		}
	}
	if c.RAG.CollectionName == "" {
		c.RAG.CollectionName = defaultCollection
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.NumVariants <= 0 {
		c.RAG.NumVariants = defaultNumVariants
	}
	if c.RAG.EmbedWorkers <= 0 {
		c.RAG.EmbedWorkers = defaultEmbedWorkers
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPgDriver
	}
}

// Validate checks the configuration for values the pipeline cannot work with
func (c *Config) Validate() error {
	for name, l := range map[string]LLMConfig{"llm": c.LLM, "embed_llm": c.EmbedLLM} {
		if l.Provider != ProviderOllama && l.Provider != ProviderOpenAI {
			return fmt.Errorf("config %s: unknown provider %q", name, l.Provider)
		}
		if l.Model == "" {
			return fmt.Errorf("config %s: model is required", name)
		}
		if l.RateLimit < 0 {
			return fmt.Errorf("config %s: rate_limit must not be negative", name)
		}
	}
	if c.RAG.ChunkSize <= 0 {
		return errors.New("config rag: chunk_size must be positive")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return errors.New("config rag: chunk_overlap must be in [0, chunk_size)")
	}
	if c.Database.Enabled {
		if c.Database.DSN == "" {
			return errors.New("config database: dsn is required when enabled")
		}
		if c.Database.Driver != DriverPgDriver && c.Database.Driver != DriverPostgres {
			return fmt.Errorf("config database: unknown driver %q", c.Database.Driver)
		}
	}
	return nil
}

// Fingerprint identifies the settings that change chunking or embedding output.
// Two configs with the same fingerprint produce the same index for a document.
func (c *Config) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d",
		c.EmbedLLM.Provider, c.EmbedLLM.Model, c.RAG.CollectionName, c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// Redacted returns a copy safe for logging, with secrets masked
func (c *Config) Redacted() Config {
	out := *c
	for _, l := range []*LLMConfig{&out.LLM, &out.EmbedLLM} {
		if l.Key != "" {
			l.Key = "***"
		}
	}
	if out.Database.Password != "" {
		out.Database.Password = "***"
	}
	return out
}

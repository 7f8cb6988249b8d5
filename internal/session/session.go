// Package session holds the state of one user working with one document at a time.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"document-qa/internal/cache"
	"document-qa/internal/chromemdb"
	"document-qa/internal/helper"
	"document-qa/internal/models"
)

// SummaryLength is how many characters of a question the history shows
const SummaryLength = 70

// Querier answers a question against an index
type Querier interface {
	Query(ctx context.Context, index *chromemdb.Index, question string) (*models.PromptResponse, error)
}

type Session struct {
	ID string

	cache   *cache.PipelineCache
	querier Querier
	history HistoryStore

	mu       sync.Mutex
	document models.Document
}

type Option func(*Session)

// WithID sets the session ID instead of a random one
func WithID(id string) Option {
	return func(s *Session) {
		s.ID = id
	}
}

// New creates a session. A nil history keeps the exchanges in memory.
func New(pipeline *cache.PipelineCache, querier Querier, history HistoryStore, opts ...Option) (*Session, error) {
	if history == nil {
		history = NewMemoryHistory()
	}
	s := &Session{cache: pipeline, querier: querier, history: history}
	for _, opt := range opts {
		opt(s)
	}
	if s.ID == "" {
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, err
		}
		s.ID = id
	}
	return s, nil
}

// Load makes the file at path the active document and builds its index.
// A document with different content clears the history first; loading the
// same content again reuses the cached index.
func (s *Session) Load(ctx context.Context, path string) (models.BuildStatus, error) {
	doc, err := helper.NewDocument(path)
	if err != nil {
		return s.cache.Status(), err
	}

	s.mu.Lock()
	changed := s.document.ID != doc.ID
	s.document = doc
	s.mu.Unlock()

	if changed {
		log.Info().Str("session", s.ID).Str("document", doc.Name).Msg("New document, clearing history")
		if err := s.history.Clear(ctx); err != nil {
			return s.cache.Status(), fmt.Errorf("failed to clear history: %w", err)
		}
	}

	if _, err := s.cache.Build(ctx, doc); err != nil {
		return s.cache.Status(), err
	}
	return s.cache.Status(), nil
}

// Ask answers question from the active document and records the exchange.
// Failed questions leave the history untouched.
func (s *Session) Ask(ctx context.Context, question string) (*models.PromptResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, models.ErrEmptyQuestion
	}

	index, doc, ok := s.cache.Active()
	if !ok {
		return nil, models.ErrNoDocument
	}

	resp, err := s.querier.Query(ctx, index, question)
	if err != nil {
		log.Error().Err(err).Str("session", s.ID).Str("document", doc.Name).Msg("Query failed")
		return nil, err
	}

	exchange := models.QAExchange{Question: question, Answer: resp.Content, CreatedAt: time.Now()}
	if err := s.history.Append(ctx, exchange); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("Failed to record exchange")
	}
	return resp, nil
}

// History returns the exchanges newest first
func (s *Session) History(ctx context.Context) ([]models.QAExchange, error) {
	exchanges, err := s.history.List(ctx)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}

func (s *Session) ClearHistory(ctx context.Context) error {
	return s.history.Clear(ctx)
}

// Reset forgets the active document, its index and the history
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.document = models.Document{}
	s.mu.Unlock()

	s.cache.Invalidate()
	return s.history.Clear(ctx)
}

func (s *Session) Status() models.BuildStatus {
	return s.cache.Status()
}

// Document returns the active document, if any
func (s *Session) Document() (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document, s.document.ID != ""
}

// Summarize shortens a question for the history list
func Summarize(question string) string {
	if utf8.RuneCountInString(question) <= SummaryLength {
		return question
	}
	return string([]rune(question)[:SummaryLength]) + "..."
}

package session

import (
	"context"
	"sync"

	"document-qa/internal/models"
)

// HistoryStore keeps the question and answer log of a session, oldest first
type HistoryStore interface {
	Append(ctx context.Context, exchange models.QAExchange) error
	List(ctx context.Context) ([]models.QAExchange, error)
	Clear(ctx context.Context) error
}

// MemoryHistory is the default in-process HistoryStore
type MemoryHistory struct {
	mu        sync.RWMutex
	exchanges []models.QAExchange
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Append(_ context.Context, exchange models.QAExchange) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exchanges = append(h.exchanges, exchange)
	return nil
}

func (h *MemoryHistory) List(context.Context) ([]models.QAExchange, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.QAExchange, len(h.exchanges))
	copy(out, h.exchanges)
	return out, nil
}

func (h *MemoryHistory) Clear(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exchanges = nil
	return nil
}

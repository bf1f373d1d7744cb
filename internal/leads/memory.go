package leads

import (
	"context"
	"sync"

	"github.com/leadwatch/pkg/models"
)

// MemoryStore keeps leads in a map for development runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	leads map[int64]models.Lead
}

// NewMemoryStore returns an empty in-memory sink.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leads: make(map[int64]models.Lead)}
}

// CreateOrUpdate applies the same keep-strongest upsert rule as the
// Postgres store.
func (s *MemoryStore) CreateOrUpdate(_ context.Context, lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.leads[lead.TelegramID]; ok && existing.InterestScore > lead.InterestScore {
		return nil
	}
	s.leads[lead.TelegramID] = lead
	return nil
}

// Get returns a stored lead.
func (s *MemoryStore) Get(telegramID int64) (models.Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[telegramID]
	return lead, ok
}

// All returns every stored lead.
func (s *MemoryStore) All() []models.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, l)
	}
	return out
}

// Len reports the stored lead count.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leads)
}

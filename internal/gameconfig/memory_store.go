package gameconfig

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rhythmcheck/backend/internal/models"
)

// MemoryStore implements Store and EventStore in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	cfg    *models.GameConfig
	audit  []models.ConfigAudit
	events map[uuid.UUID]models.MultiplierEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[uuid.UUID]models.MultiplierEvent)}
}

func (s *MemoryStore) Load(ctx context.Context) (*models.GameConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil, ErrNotConfigured
	}
	return cloneConfig(s.cfg), nil
}

func (s *MemoryStore) Save(ctx context.Context, cfg *models.GameConfig, audit models.ConfigAudit, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if s.cfg != nil {
		current = s.cfg.Version
	}
	if current != expectedVersion {
		return ErrStaleConfig
	}
	s.cfg = cloneConfig(cfg)
	audit.Fields = append([]string(nil), audit.Fields...)
	s.audit = append(s.audit, audit)
	return nil
}

func (s *MemoryStore) ListAudit(ctx context.Context, limit int) ([]models.ConfigAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ConfigAudit, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.audit[i])
	}
	return out, nil
}

func (s *MemoryStore) CreateEvent(ctx context.Context, e models.MultiplierEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
	return nil
}

func (s *MemoryStore) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrEventNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context) ([]models.MultiplierEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MultiplierEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sortEvents(out)
	return out, nil
}

func (s *MemoryStore) ListEventsAt(ctx context.Context, at time.Time) ([]models.MultiplierEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MultiplierEvent
	for _, e := range s.events {
		if !at.Before(e.StartsAt) && at.Before(e.EndsAt) {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

func sortEvents(events []models.MultiplierEvent) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartsAt.Equal(events[j].StartsAt) {
			return events[i].StartsAt.Before(events[j].StartsAt)
		}
		return events[i].ID.String() < events[j].ID.String()
	})
}

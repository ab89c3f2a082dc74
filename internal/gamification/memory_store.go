package gamification

import (
	"context"
	"sort"
	"sync"

	"github.com/rhythmcheck/backend/internal/models"
)

// MemoryStore implements StatsStore in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	stats    map[int64]models.ProgressionStats
	unlocked map[int64][]models.UnlockedAchievement
	events   map[int64][]models.XPEvent
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stats:    make(map[int64]models.ProgressionStats),
		unlocked: make(map[int64][]models.UnlockedAchievement),
		events:   make(map[int64][]models.XPEvent),
	}
}

func (s *MemoryStore) GetStats(ctx context.Context, learnerID int64) (*models.ProgressionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[learnerID]
	if !ok {
		return nil, &UnknownLearnerError{LearnerID: learnerID}
	}
	out := st.Clone()
	return &out, nil
}

func (s *MemoryStore) CreateStats(ctx context.Context, stats *models.ProgressionStats) error {
	if err := stats.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stats[stats.LearnerID]; ok {
		return ErrStatsExist
	}
	s.stats[stats.LearnerID] = stats.Clone()
	return nil
}

func (s *MemoryStore) ApplyTransition(ctx context.Context, t Transition) (*models.ProgressionStats, error) {
	if err := t.Stats.Validate(); err != nil {
		return nil, err
	}
	id := t.Stats.LearnerID

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.stats[id]
	if !ok {
		return nil, &UnknownLearnerError{LearnerID: id}
	}
	if cur.Version != t.ExpectedVersion {
		return nil, ErrConcurrentUpdate
	}
	for _, u := range t.Unlocks {
		for _, have := range s.unlocked[id] {
			if have.AchievementID == u.AchievementID {
				return nil, ErrConcurrentUpdate
			}
		}
	}

	next := t.Stats.Clone()
	next.Version = cur.Version + 1
	s.stats[id] = next
	s.unlocked[id] = append(s.unlocked[id], t.Unlocks...)
	for _, e := range t.Events {
		s.nextID++
		e.ID = s.nextID
		s.events[id] = append(s.events[id], e)
	}

	out := next.Clone()
	return &out, nil
}

func (s *MemoryStore) ListUnlocked(ctx context.Context, learnerID int64) ([]models.UnlockedAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.UnlockedAchievement(nil), s.unlocked[learnerID]...), nil
}

func (s *MemoryStore) ListLearners(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.stats))
	for id := range s.stats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ListXPEvents returns the newest events first.
func (s *MemoryStore) ListXPEvents(ctx context.Context, learnerID int64, limit int) ([]models.XPEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.events[learnerID]
	out := make([]models.XPEvent, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

// MemoryCatalog implements AchievementCatalog, preserving insertion order.
// Upsert keeps the active flag of an existing entry, like the Postgres catalog.
type MemoryCatalog struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]models.Achievement
}

func NewMemoryCatalog(achievements []models.Achievement) *MemoryCatalog {
	c := &MemoryCatalog{byID: make(map[string]models.Achievement)}
	for _, a := range achievements {
		c.put(a)
	}
	return c
}

func (c *MemoryCatalog) put(a models.Achievement) {
	if _, ok := c.byID[a.ID]; !ok {
		c.order = append(c.order, a.ID)
	}
	c.byID[a.ID] = a
}

func (c *MemoryCatalog) ListActive(ctx context.Context) ([]models.Achievement, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Achievement
	for _, id := range c.order {
		if a := c.byID[id]; a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *MemoryCatalog) ListAll(ctx context.Context) ([]models.Achievement, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Achievement, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out, nil
}

func (c *MemoryCatalog) SetActive(ctx context.Context, id string, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.byID[id]
	if !ok {
		return ErrAchievementNotFound
	}
	a.Active = active
	c.byID[id] = a
	return nil
}

func (c *MemoryCatalog) Upsert(ctx context.Context, a models.Achievement) error {
	if err := ValidateAchievement(a); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.byID[a.ID]; ok {
		a.Active = existing.Active
	}
	c.put(a)
	return nil
}

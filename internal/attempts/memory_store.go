package attempts

import (
	"context"
	"sort"
	"sync"

	"github.com/rhythmcheck/backend/internal/models"
)

// MemoryStore implements RecordingStore, AttemptStore and ProfileStore in
// process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	recordings map[string]models.Recording
	attempts   []models.Attempt
	profiles   map[int64]models.Profile
	nextID     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recordings: make(map[string]models.Recording),
		profiles:   make(map[int64]models.Profile),
	}
}

func (s *MemoryStore) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recordings[id]
	if !ok {
		return nil, ErrRecordingNotFound
	}
	out := cloneRecording(rec)
	return &out, nil
}

func (s *MemoryStore) ListRecordings(ctx context.Context) ([]models.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Recording, 0, len(s.recordings))
	for _, rec := range s.recordings {
		out = append(out, cloneRecording(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpsertRecording(ctx context.Context, rec models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.recordings[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	}
	s.recordings[rec.ID] = cloneRecording(rec)
	return nil
}

func (s *MemoryStore) CreateAttempt(ctx context.Context, a models.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[a.LearnerID]; !ok {
		return ErrProfileNotFound
	}
	if _, ok := s.recordings[a.RecordingID]; !ok {
		return ErrRecordingNotFound
	}
	s.attempts = append(s.attempts, cloneAttempt(a))
	return nil
}

func (s *MemoryStore) ListAttempts(ctx context.Context, learnerID *int64) ([]models.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Attempt
	for _, a := range s.attempts {
		if learnerID != nil && a.LearnerID != *learnerID {
			continue
		}
		out = append(out, cloneAttempt(a))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, learnerID int64) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[learnerID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LearnerID < out[j].LearnerID })
	return out, nil
}

func (s *MemoryStore) CreateProfile(ctx context.Context, name string, role models.Role) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p := models.Profile{LearnerID: s.nextID, Name: name, Role: role}
	s.profiles[p.LearnerID] = p
	return &p, nil
}

// Stored values are deep-copied on the way in and out so callers never
// share maps with the store.
func cloneRecording(rec models.Recording) models.Recording {
	out := rec
	out.Schema.Fields = append([]models.FieldSpec(nil), rec.Schema.Fields...)
	out.Reference = cloneReference(rec.Reference)
	return out
}

func cloneReference(ref models.ReferenceAnswer) models.ReferenceAnswer {
	if ref == nil {
		return nil
	}
	out := make(models.ReferenceAnswer, len(ref))
	for k, v := range ref {
		v.Alternatives = append([]models.Alternative(nil), v.Alternatives...)
		out[k] = v
	}
	return out
}

func cloneAttempt(a models.Attempt) models.Attempt {
	out := a
	out.Submission = make(models.Submission, len(a.Submission))
	for k, v := range a.Submission {
		out.Submission[k] = v
	}
	out.Reference = cloneReference(a.Reference)
	out.Comparisons = append([]models.FieldComparison(nil), a.Comparisons...)
	return out
}

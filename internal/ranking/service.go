package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rhythmcheck/backend/internal/gameconfig"
	"github.com/rhythmcheck/backend/internal/models"
	"golang.org/x/sync/singleflight"
)

// AttemptSource lists attempts ordered by occurrence. A nil learnerID
// lists every learner's attempts.
type AttemptSource interface {
	ListAttempts(ctx context.Context, learnerID *int64) ([]models.Attempt, error)
}

type ProfileSource interface {
	ListProfiles(ctx context.Context) ([]models.Profile, error)
}

type ConfigSource interface {
	Get(ctx context.Context) (*models.GameConfig, error)
}

type snapshot struct {
	ranked      []models.RankingEntry
	generatedAt time.Time
}

// Service serves leaderboards from a ranking snapshot that is rebuilt at
// most once per TTL. Concurrent rebuilds collapse into one.
type Service struct {
	attempts AttemptSource
	profiles ProfileSource
	config   ConfigSource
	ttl      time.Duration
	now      func() time.Time
	log      *slog.Logger
	sf       singleflight.Group

	mu      sync.RWMutex
	current *snapshot
}

func NewService(attempts AttemptSource, profiles ProfileSource, config ConfigSource, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		attempts: attempts,
		profiles: profiles,
		config:   config,
		ttl:      ttl,
		now:      time.Now,
		log:      logger.With(slog.String("component", "ranking")),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Leaderboard returns the top entries and learnerID's placement. The result
// is only as fresh as the cached snapshot.
func (s *Service) Leaderboard(ctx context.Context, learnerID int64, topN int) (*models.Leaderboard, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	lb := View(snap.ranked, learnerID, topN)
	lb.GeneratedAt = snap.generatedAt
	return &lb, nil
}

// Invalidate drops the cached snapshot so the next request rebuilds it.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Service) cached(now time.Time) *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current != nil && s.ttl > 0 && now.Sub(s.current.generatedAt) < s.ttl {
		return s.current
	}
	return nil
}

func (s *Service) snapshot(ctx context.Context) (*snapshot, error) {
	if snap := s.cached(s.now()); snap != nil {
		return snap, nil
	}

	v, err, _ := s.sf.Do("leaderboard", func() (interface{}, error) {
		now := s.now()
		if snap := s.cached(now); snap != nil {
			return snap, nil
		}
		snap, err := s.build(ctx, now)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.current = snap
		s.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

func (s *Service) build(ctx context.Context, now time.Time) (*snapshot, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, gameconfig.Unavailable(err)
	}
	attempts, err := s.attempts.ListAttempts(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	list, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	profiles := make(map[int64]models.Profile, len(list))
	for _, p := range list {
		profiles[p.LearnerID] = p
	}

	ranked := Rank(attempts, profiles, cfg.Ranking)
	s.log.Debug("leaderboard rebuilt",
		slog.Int("attempts", len(attempts)),
		slog.Int("participants", len(ranked)))
	return &snapshot{ranked: ranked, generatedAt: now.UTC()}, nil
}

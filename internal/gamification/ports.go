package gamification

import (
	"context"
	"time"

	"github.com/rhythmcheck/backend/internal/models"
)

// Transition is one all-or-nothing write of a learner's progression: the
// new stats row plus every unlock and XP event that produced it.
type Transition struct {
	Stats           models.ProgressionStats
	ExpectedVersion int64
	Unlocks         []models.UnlockedAchievement
	Events          []models.XPEvent
}

// StatsStore persists progression rows. ApplyTransition must be atomic and
// must fail with ErrConcurrentUpdate when the stored version differs from
// ExpectedVersion or when any unlock already exists.
type StatsStore interface {
	GetStats(ctx context.Context, learnerID int64) (*models.ProgressionStats, error)
	CreateStats(ctx context.Context, stats *models.ProgressionStats) error
	ApplyTransition(ctx context.Context, t Transition) (*models.ProgressionStats, error)
	ListUnlocked(ctx context.Context, learnerID int64) ([]models.UnlockedAchievement, error)
	ListLearners(ctx context.Context) ([]int64, error)
	ListXPEvents(ctx context.Context, learnerID int64, limit int) ([]models.XPEvent, error)
}

// AchievementCatalog is the data-driven set of achievement definitions.
type AchievementCatalog interface {
	ListActive(ctx context.Context) ([]models.Achievement, error)
	ListAll(ctx context.Context) ([]models.Achievement, error)
	SetActive(ctx context.Context, id string, active bool) error
	Upsert(ctx context.Context, a models.Achievement) error
}

type ConfigSource interface {
	Get(ctx context.Context) (*models.GameConfig, error)
}

type EventSource interface {
	ListActiveEvents(ctx context.Context, now time.Time, learnerID int64) ([]models.MultiplierEvent, error)
}

// Locker serializes writers for one learner. The returned release func is
// safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, learnerID int64) (release func(), err error)
}

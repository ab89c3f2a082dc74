package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ── Progression ──────────────────────────────────────────

var (
	ErrNegativeXP      = errors.New("total XP cannot be negative")
	ErrNegativeCounter = errors.New("progression counters cannot be negative")
	ErrStreakOverflow  = errors.New("current streak cannot exceed longest streak")
	ErrMissingLearner  = errors.New("learner ID is required")
)

// ProgressionStats is the per-learner ledger row. Version is bumped on every
// successful write and used for optimistic concurrency at the store boundary.
type ProgressionStats struct {
	LearnerID         int64          `json:"learner_id"`
	TotalXP           int64          `json:"total_xp"`
	Level             int            `json:"level"`
	CurrentStreak     int            `json:"current_streak"`
	LongestStreak     int            `json:"longest_streak"`
	LastActivityAt    *time.Time     `json:"last_activity_at"`
	CompletedAttempts int            `json:"completed_attempts"`
	PerfectScores     int            `json:"perfect_scores"`
	CategoryPasses    map[string]int `json:"category_passes"`
	Version           int64          `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewProgressionStats returns a zeroed row for a learner at level 1.
func NewProgressionStats(learnerID int64, now time.Time) *ProgressionStats {
	return &ProgressionStats{
		LearnerID:      learnerID,
		Level:          1,
		CategoryPasses: map[string]int{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks the row before it is written.
func (s *ProgressionStats) Validate() error {
	if s.LearnerID == 0 {
		return ErrMissingLearner
	}
	if s.TotalXP < 0 {
		return ErrNegativeXP
	}
	if s.CurrentStreak < 0 || s.LongestStreak < 0 || s.CompletedAttempts < 0 || s.PerfectScores < 0 {
		return ErrNegativeCounter
	}
	if s.CurrentStreak > s.LongestStreak {
		return ErrStreakOverflow
	}
	for _, n := range s.CategoryPasses {
		if n < 0 {
			return ErrNegativeCounter
		}
	}
	return nil
}

// Clone returns a deep copy so transitions never mutate the stored snapshot.
func (s ProgressionStats) Clone() ProgressionStats {
	out := s
	if s.LastActivityAt != nil {
		t := *s.LastActivityAt
		out.LastActivityAt = &t
	}
	out.CategoryPasses = make(map[string]int, len(s.CategoryPasses))
	for k, v := range s.CategoryPasses {
		out.CategoryPasses[k] = v
	}
	return out
}

// XP event sources.
const (
	XPSourceAttempt     = "attempt"
	XPSourceAchievement = "achievement"
	XPSourceAdjustment  = "admin_adjustment"
)

type XPEvent struct {
	ID        int64                  `json:"id"`
	LearnerID int64                  `json:"learner_id"`
	Source    string                 `json:"source"`
	XPAmount  int64                  `json:"xp_amount"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ── Achievements ─────────────────────────────────────────

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// DisplayName returns a human-readable label for the rarity.
func (r Rarity) DisplayName() string {
	switch r {
	case RarityCommon:
		return "Common"
	case RarityRare:
		return "Rare"
	case RarityEpic:
		return "Epic"
	case RarityLegendary:
		return "Legendary"
	default:
		return string(r)
	}
}

// PredicateKind tags the closed set of unlock predicate variants.
type PredicateKind string

const (
	PredicateStatThreshold   PredicateKind = "stat_threshold"
	PredicateCategoryMastery PredicateKind = "category_mastery"
	PredicateAttemptScore    PredicateKind = "attempt_score"
	PredicateAllOf           PredicateKind = "all_of"
	PredicateAnyOf           PredicateKind = "any_of"
)

type StatKey string

const (
	StatTotalXP           StatKey = "total_xp"
	StatLevel             StatKey = "level"
	StatCurrentStreak     StatKey = "current_streak"
	StatLongestStreak     StatKey = "longest_streak"
	StatCompletedAttempts StatKey = "completed_attempts"
	StatPerfectScores     StatKey = "perfect_scores"
)

// Predicate is a data-driven unlock rule. Which fields are read depends on Kind:
//   - stat_threshold:   Stat >= Threshold
//   - category_mastery: CategoryPasses[Category] >= Threshold
//   - attempt_score:    the just-completed attempt scored >= MinScore, optionally
//     restricted to Difficulty and/or Category
//   - all_of / any_of:  composition over Of
type Predicate struct {
	Kind       PredicateKind `json:"kind" yaml:"kind"`
	Stat       StatKey       `json:"stat,omitempty" yaml:"stat,omitempty"`
	Threshold  int64         `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Category   string        `json:"category,omitempty" yaml:"category,omitempty"`
	MinScore   int           `json:"min_score,omitempty" yaml:"min_score,omitempty"`
	Difficulty Difficulty    `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Of         []Predicate   `json:"of,omitempty" yaml:"of,omitempty"`
}

type Achievement struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Predicate   Predicate `json:"predicate" yaml:"predicate"`
	XPReward    int       `json:"xp_reward" yaml:"xp_reward"`
	Rarity      Rarity    `json:"rarity" yaml:"rarity"`
	Active      bool      `json:"active" yaml:"active"`
	Hidden      bool      `json:"hidden" yaml:"hidden"`
}

type UnlockedAchievement struct {
	LearnerID     int64     `json:"learner_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// ── Multiplier Events ────────────────────────────────────

// MultiplierFactors are the factors an event may carry: double or triple XP.
var MultiplierFactors = []float64{2, 3}

// MultiplierEvent is a time-boxed XP multiplier. A nil LearnerID makes it global.
type MultiplierEvent struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name" validate:"required,max=100"`
	Factor    float64   `json:"factor" validate:"gte=2,lte=3"`
	StartsAt  time.Time `json:"starts_at" validate:"required"`
	EndsAt    time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	LearnerID *int64    `json:"learner_id,omitempty"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// IsGlobal reports whether the event applies to every learner.
func (e MultiplierEvent) IsGlobal() bool {
	return e.LearnerID == nil
}

// AppliesTo reports whether the event is active for learnerID at the given
// instant. The window is half-open: [StartsAt, EndsAt).
func (e MultiplierEvent) AppliesTo(learnerID int64, at time.Time) bool {
	if at.Before(e.StartsAt) || !at.Before(e.EndsAt) {
		return false
	}
	return e.IsGlobal() || *e.LearnerID == learnerID
}

// ── Response Types ───────────────────────────────────────

type LevelProgress struct {
	Level       int   `json:"level"`
	XPIntoLevel int64 `json:"xp_into_level"`
	XPForNext   int64 `json:"xp_for_next_level"`
	TotalXP     int64 `json:"total_xp"`
}

type StreakInfo struct {
	Current     int  `json:"current"`
	Longest     int  `json:"longest"`
	Incremented bool `json:"incremented"`
	Reset       bool `json:"reset"`
}

type XPBreakdown struct {
	BaseXP        int64   `json:"base_xp"`
	Multiplier    float64 `json:"multiplier"`
	AttemptXP     int64   `json:"attempt_xp"`
	AchievementXP int64   `json:"achievement_xp"`
	TotalXP       int64   `json:"total_xp"`
}

type ProgressionResponse struct {
	Stats        ProgressionStats  `json:"stats"`
	Progress     LevelProgress     `json:"progress"`
	Achievements []AchievementView `json:"achievements"`
}

// AchievementView is an achievement as shown to one learner.
type AchievementView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Rarity      string     `json:"rarity"`
	XPReward    int        `json:"xp_reward"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

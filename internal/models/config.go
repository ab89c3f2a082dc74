package models

import (
	"time"

	"github.com/google/uuid"
)

// GameConfig holds every tunable gamification parameter. It is read by the
// scoring and progression code and mutated only through the config store.
type GameConfig struct {
	PassThreshold     int             `json:"pass_threshold" yaml:"pass_threshold" validate:"gte=0,lte=100"`
	CategoryPoints    map[string]int  `json:"category_points" yaml:"category_points" validate:"required,min=1,dive,keys,required,endkeys,gt=0"`
	NumericPartialCap float64         `json:"numeric_partial_cap" yaml:"numeric_partial_cap" validate:"gt=0,lt=1"`
	XP                XPCurve         `json:"xp" yaml:"xp"`
	Streak            StreakRules     `json:"streak" yaml:"streak"`
	Multipliers       MultiplierRules `json:"multipliers" yaml:"multipliers"`
	Ranking           RankingWeights  `json:"ranking" yaml:"ranking"`
	Version           int64           `json:"version" yaml:"-"`
	UpdatedBy         int64           `json:"updated_by" yaml:"-"`
	UpdatedAt         time.Time       `json:"updated_at" yaml:"-"`
}

// XPCurve maps a score to XP and cumulative XP to a level.
// LevelThresholds[i] is the total XP needed to reach level i+1; the first
// entry must be 0 and the list strictly increasing.
type XPCurve struct {
	MaxBaseXP       int     `json:"max_base_xp" yaml:"max_base_xp" validate:"gt=0,lte=10000"`
	Exponent        float64 `json:"exponent" yaml:"exponent" validate:"gte=1,lte=4"`
	PassBonus       int     `json:"pass_bonus" yaml:"pass_bonus" validate:"gte=0,lte=10000"`
	PerfectBonus    int     `json:"perfect_bonus" yaml:"perfect_bonus" validate:"gte=0,lte=10000"`
	LevelThresholds []int64 `json:"level_thresholds" yaml:"level_thresholds" validate:"min=2,dive,gte=0"`
}

// StreakRules: GraceWindowHours of 0 means calendar mode (activity on the
// next UTC calendar day continues the streak).
type StreakRules struct {
	GraceWindowHours int `json:"grace_window_hours" yaml:"grace_window_hours" validate:"gte=0,lte=168"`
}

const (
	MultiplierPolicyMax   = "max"
	MultiplierPolicyStack = "stack"
)

type MultiplierRules struct {
	Policy string  `json:"policy" yaml:"policy" validate:"oneof=max stack"`
	Cap    float64 `json:"cap" yaml:"cap" validate:"gte=1,lte=10"`
}

type RankingWeights struct {
	DifficultyWeights map[Difficulty]float64 `json:"difficulty_weights" yaml:"difficulty_weights" validate:"required,dive,gt=0"`
	AccuracyWeight    float64                `json:"accuracy_weight" yaml:"accuracy_weight" validate:"gte=0,lte=1"`
	ActivityWeight    float64                `json:"activity_weight" yaml:"activity_weight" validate:"gte=0,lte=1"`
}

// DifficultyWeight returns the configured weight, defaulting to 1.0.
func (w RankingWeights) DifficultyWeight(d Difficulty) float64 {
	if v, ok := w.DifficultyWeights[d]; ok && v > 0 {
		return v
	}
	return 1.0
}

// ConfigAudit records who changed which config fields and when.
type ConfigAudit struct {
	ID        uuid.UUID `json:"id"`
	ActorID   int64     `json:"actor_id"`
	Fields    []string  `json:"fields"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

type ConfigUpdateResult struct {
	Config GameConfig  `json:"config"`
	Audit  ConfigAudit `json:"audit"`
}

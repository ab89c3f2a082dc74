package gameconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rhythmcheck/backend/internal/models"
)

type setter func(cfg *models.GameConfig, raw json.RawMessage) error

// allowed is the complete set of keys an admin update may touch. Version,
// UpdatedBy and UpdatedAt are owned by the store and never patchable.
var allowed = map[string]setter{
	"pass_threshold":      into(func(c *models.GameConfig) any { return &c.PassThreshold }),
	"category_points":     replaceCategoryPoints,
	"numeric_partial_cap": into(func(c *models.GameConfig) any { return &c.NumericPartialCap }),

	"xp.max_base_xp":      into(func(c *models.GameConfig) any { return &c.XP.MaxBaseXP }),
	"xp.exponent":         into(func(c *models.GameConfig) any { return &c.XP.Exponent }),
	"xp.pass_bonus":       into(func(c *models.GameConfig) any { return &c.XP.PassBonus }),
	"xp.perfect_bonus":    into(func(c *models.GameConfig) any { return &c.XP.PerfectBonus }),
	"xp.level_thresholds": replaceThresholds,

	"streak.grace_window_hours": into(func(c *models.GameConfig) any { return &c.Streak.GraceWindowHours }),

	"multipliers.policy": into(func(c *models.GameConfig) any { return &c.Multipliers.Policy }),
	"multipliers.cap":    into(func(c *models.GameConfig) any { return &c.Multipliers.Cap }),

	"ranking.difficulty_weights": replaceDifficultyWeights,
	"ranking.accuracy_weight":    into(func(c *models.GameConfig) any { return &c.Ranking.AccuracyWeight }),
	"ranking.activity_weight":    into(func(c *models.GameConfig) any { return &c.Ranking.ActivityWeight }),
}

// AllowedFields lists patchable keys in sorted order.
func AllowedFields() []string {
	out := make([]string, 0, len(allowed))
	for k := range allowed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// applyPatch copies cfg and applies every key in patch. It returns the
// sorted list of changed keys. Unknown keys are rejected before any value
// is decoded.
func applyPatch(cfg *models.GameConfig, patch map[string]json.RawMessage) (*models.GameConfig, []string, error) {
	if len(patch) == 0 {
		return nil, nil, fmt.Errorf("%w: empty update", ErrInvalidValue)
	}

	fields := make([]string, 0, len(patch))
	for k := range patch {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	for _, k := range fields {
		if _, ok := allowed[k]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrForbiddenField, k)
		}
	}

	next := cloneConfig(cfg)
	for _, k := range fields {
		if err := allowed[k](next, patch[k]); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, k, err)
		}
	}
	return next, fields, nil
}

func into(target func(*models.GameConfig) any) setter {
	return func(cfg *models.GameConfig, raw json.RawMessage) error {
		return decodeStrict(raw, target(cfg))
	}
}

func replaceCategoryPoints(cfg *models.GameConfig, raw json.RawMessage) error {
	var m map[string]int
	if err := decodeStrict(raw, &m); err != nil {
		return err
	}
	cfg.CategoryPoints = m
	return nil
}

func replaceThresholds(cfg *models.GameConfig, raw json.RawMessage) error {
	var th []int64
	if err := decodeStrict(raw, &th); err != nil {
		return err
	}
	cfg.XP.LevelThresholds = th
	return nil
}

func replaceDifficultyWeights(cfg *models.GameConfig, raw json.RawMessage) error {
	var m map[models.Difficulty]float64
	if err := decodeStrict(raw, &m); err != nil {
		return err
	}
	cfg.Ranking.DifficultyWeights = m
	return nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("value is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

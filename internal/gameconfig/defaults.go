package gameconfig

import (
	_ "embed"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/rhythmcheck/backend/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// Defaults returns the built-in game config at version 0.
func Defaults() (*models.GameConfig, error) {
	var cfg models.GameConfig
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("decode default game config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("default game config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges and the cross-field rules the struct tags
// cannot express.
func Validate(cfg *models.GameConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	for cat := range cfg.CategoryPoints {
		if !models.ValidCategories[cat] {
			return fmt.Errorf("%w: unknown category %q in category_points", ErrInvalidValue, cat)
		}
	}

	th := cfg.XP.LevelThresholds
	if th[0] != 0 {
		return fmt.Errorf("%w: xp.level_thresholds must start at 0", ErrInvalidValue)
	}
	for i := 1; i < len(th); i++ {
		if th[i] <= th[i-1] {
			return fmt.Errorf("%w: xp.level_thresholds must be strictly increasing", ErrInvalidValue)
		}
	}

	for d := range cfg.Ranking.DifficultyWeights {
		if !models.ValidDifficulties[d] {
			return fmt.Errorf("%w: unknown difficulty %q in ranking.difficulty_weights", ErrInvalidValue, d)
		}
	}
	if sum := cfg.Ranking.AccuracyWeight + cfg.Ranking.ActivityWeight; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: ranking weights must sum to 1, got %.3f", ErrInvalidValue, sum)
	}
	return nil
}

func cloneConfig(cfg *models.GameConfig) *models.GameConfig {
	out := *cfg
	out.CategoryPoints = make(map[string]int, len(cfg.CategoryPoints))
	for k, v := range cfg.CategoryPoints {
		out.CategoryPoints[k] = v
	}
	out.XP.LevelThresholds = append([]int64(nil), cfg.XP.LevelThresholds...)
	out.Ranking.DifficultyWeights = make(map[models.Difficulty]float64, len(cfg.Ranking.DifficultyWeights))
	for k, v := range cfg.Ranking.DifficultyWeights {
		out.Ranking.DifficultyWeights[k] = v
	}
	return &out
}

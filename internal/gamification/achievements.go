package gamification

import (
	_ "embed"
	"fmt"

	"github.com/rhythmcheck/backend/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// AttemptContext carries the just-completed attempt into attempt-scoped
// predicates. Retroactive checks pass nil.
type AttemptContext struct {
	Score      int
	IsPassing  bool
	IsPerfect  bool
	Category   string
	Difficulty models.Difficulty
}

// DefaultCatalog returns the built-in achievement catalog.
func DefaultCatalog() ([]models.Achievement, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// ParseCatalog decodes and validates a YAML achievement catalog.
func ParseCatalog(data []byte) ([]models.Achievement, error) {
	var doc struct {
		Achievements []models.Achievement `yaml:"achievements"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	seen := make(map[string]bool, len(doc.Achievements))
	for _, a := range doc.Achievements {
		if seen[a.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidAchievement, a.ID)
		}
		seen[a.ID] = true
		if err := ValidateAchievement(a); err != nil {
			return nil, err
		}
	}
	return doc.Achievements, nil
}

// ValidateAchievement checks a catalog entry, including its predicate tree.
func ValidateAchievement(a models.Achievement) error {
	if a.ID == "" || a.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidAchievement)
	}
	if a.XPReward < 0 {
		return fmt.Errorf("%w: %s: negative xp reward", ErrInvalidAchievement, a.ID)
	}
	if err := validatePredicate(a.Predicate); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAchievement, a.ID, err)
	}
	return nil
}

func validatePredicate(p models.Predicate) error {
	switch p.Kind {
	case models.PredicateStatThreshold:
		if _, ok := statValue(&models.ProgressionStats{}, p.Stat); !ok {
			return fmt.Errorf("unknown stat %q", p.Stat)
		}
		if p.Threshold <= 0 {
			return fmt.Errorf("threshold must be positive")
		}
	case models.PredicateCategoryMastery:
		if p.Category == "" || p.Threshold <= 0 {
			return fmt.Errorf("category mastery needs a category and a positive threshold")
		}
	case models.PredicateAttemptScore:
		if p.MinScore < 0 || p.MinScore > 100 {
			return fmt.Errorf("min_score must be within 0-100")
		}
		if p.Difficulty != "" && !models.ValidDifficulties[p.Difficulty] {
			return fmt.Errorf("unknown difficulty %q", p.Difficulty)
		}
	case models.PredicateAllOf, models.PredicateAnyOf:
		if len(p.Of) == 0 {
			return fmt.Errorf("%s needs at least one operand", p.Kind)
		}
		for _, sub := range p.Of {
			if err := validatePredicate(sub); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown predicate kind %q", p.Kind)
	}
	return nil
}

// Satisfied evaluates a predicate against the learner's stats and, when
// present, the just-completed attempt.
func Satisfied(p models.Predicate, stats *models.ProgressionStats, attempt *AttemptContext) bool {
	switch p.Kind {
	case models.PredicateStatThreshold:
		v, ok := statValue(stats, p.Stat)
		return ok && v >= p.Threshold
	case models.PredicateCategoryMastery:
		return int64(stats.CategoryPasses[p.Category]) >= p.Threshold
	case models.PredicateAttemptScore:
		if attempt == nil || attempt.Score < p.MinScore {
			return false
		}
		if p.Difficulty != "" && attempt.Difficulty != p.Difficulty {
			return false
		}
		return p.Category == "" || attempt.Category == p.Category
	case models.PredicateAllOf:
		for _, sub := range p.Of {
			if !Satisfied(sub, stats, attempt) {
				return false
			}
		}
		return len(p.Of) > 0
	case models.PredicateAnyOf:
		for _, sub := range p.Of {
			if Satisfied(sub, stats, attempt) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// NewlySatisfied returns active achievements that are not yet unlocked and
// whose predicate now holds, in catalog order.
func NewlySatisfied(catalog []models.Achievement, unlocked map[string]bool, stats *models.ProgressionStats, attempt *AttemptContext) []models.Achievement {
	var out []models.Achievement
	for _, a := range catalog {
		if !a.Active || unlocked[a.ID] {
			continue
		}
		if Satisfied(a.Predicate, stats, attempt) {
			out = append(out, a)
		}
	}
	return out
}

func statValue(stats *models.ProgressionStats, key models.StatKey) (int64, bool) {
	switch key {
	case models.StatTotalXP:
		return stats.TotalXP, true
	case models.StatLevel:
		return int64(stats.Level), true
	case models.StatCurrentStreak:
		return int64(stats.CurrentStreak), true
	case models.StatLongestStreak:
		return int64(stats.LongestStreak), true
	case models.StatCompletedAttempts:
		return int64(stats.CompletedAttempts), true
	case models.StatPerfectScores:
		return int64(stats.PerfectScores), true
	default:
		return 0, false
	}
}

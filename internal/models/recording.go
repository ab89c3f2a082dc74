package models

import (
	"time"

	"github.com/google/uuid"
)

// ── Recordings ───────────────────────────────────────────

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var ValidDifficulties = map[Difficulty]bool{
	DifficultyEasy:   true,
	DifficultyMedium: true,
	DifficultyHard:   true,
}

// Scoring categories of an ECG interpretation. Each one owns a band of the
// total points, configured in GameConfig.CategoryPoints.
const (
	CategoryRhythm     = "rhythm"
	CategoryRate       = "rate"
	CategoryAxis       = "axis"
	CategoryIntervals  = "intervals"
	CategoryMorphology = "morphology"
)

var ValidCategories = map[string]bool{
	CategoryRhythm:     true,
	CategoryRate:       true,
	CategoryAxis:       true,
	CategoryIntervals:  true,
	CategoryMorphology: true,
}

type FieldKind string

const (
	FieldCategorical FieldKind = "categorical"
	FieldNumeric     FieldKind = "numeric"
	FieldBoolean     FieldKind = "boolean"
)

// FieldSpec describes one gradable field of an interpretation form.
// Points overrides the category band split when > 0. Tolerance only applies
// to numeric fields and is expressed in the field's Unit.
type FieldSpec struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Category  string    `json:"category"`
	Kind      FieldKind `json:"kind"`
	Points    int       `json:"points,omitempty"`
	Tolerance float64   `json:"tolerance,omitempty"`
	Unit      string    `json:"unit,omitempty"`
}

// Schema is the field layout shared by a recording's reference and every
// submission against it.
type Schema struct {
	Category string      `json:"category"`
	Fields   []FieldSpec `json:"fields"`
}

// Alternative is an acceptable-but-imperfect answer with its credit in (0,1).
type Alternative struct {
	Value  string  `json:"value"`
	Credit float64 `json:"credit"`
}

type ReferenceValue struct {
	Value        string        `json:"value"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// ReferenceAnswer is the expert interpretation keyed by field ID.
type ReferenceAnswer map[string]ReferenceValue

// Submission is a learner's interpretation keyed by field ID.
type Submission map[string]string

type Recording struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Category   string          `json:"category"`
	Difficulty Difficulty      `json:"difficulty"`
	Schema     Schema          `json:"schema"`
	Reference  ReferenceAnswer `json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ── Scoring ──────────────────────────────────────────────

// FieldComparison is one scored field. PartialCredit is set only when the
// field was not fully correct but still earned points.
type FieldComparison struct {
	FieldID        string   `json:"field_id"`
	Label          string   `json:"label"`
	Category       string   `json:"category"`
	LearnerValue   string   `json:"learner_value"`
	ReferenceValue string   `json:"reference_value"`
	IsCorrect      bool     `json:"is_correct"`
	PartialCredit  *float64 `json:"partial_credit,omitempty"`
	AwardedPoints  int      `json:"awarded_points"`
	MaxPoints      int      `json:"max_points"`
}

type ScoringResult struct {
	Comparisons []FieldComparison `json:"comparisons"`
	TotalPoints int               `json:"total_points"`
	MaxPoints   int               `json:"max_points"`
	Score       int               `json:"score"`
	IsPassing   bool              `json:"is_passing"`
	IsPerfect   bool              `json:"is_perfect"`
}

// Attempt is the immutable record of one scoring event.
type Attempt struct {
	ID                uuid.UUID         `json:"id"`
	LearnerID         int64             `json:"learner_id"`
	RecordingID       string            `json:"recording_id"`
	RecordingCategory string            `json:"recording_category"`
	Difficulty        Difficulty        `json:"difficulty"`
	Submission        Submission        `json:"submission"`
	Reference         ReferenceAnswer   `json:"reference"`
	Comparisons       []FieldComparison `json:"comparisons"`
	TotalPoints       int               `json:"total_points"`
	MaxPoints         int               `json:"max_points"`
	Score             int               `json:"score"`
	IsPassing         bool              `json:"is_passing"`
	OccurredAt        time.Time         `json:"occurred_at"`
}

// IsPerfect reports whether every point was awarded.
func (a Attempt) IsPerfect() bool {
	return a.MaxPoints > 0 && a.TotalPoints == a.MaxPoints
}

type SubmitAttemptRequest struct {
	RecordingID string     `json:"recording_id" validate:"required,max=64"`
	Fields      Submission `json:"fields" validate:"required"`
}

// SubmissionResult mirrors what the client needs right after grading.
type SubmissionResult struct {
	AttemptID            uuid.UUID     `json:"attempt_id"`
	Scoring              ScoringResult `json:"scoring"`
	XP                   XPBreakdown   `json:"xp"`
	Streak               StreakInfo    `json:"streak"`
	Progress             LevelProgress `json:"progress"`
	AchievementsUnlocked []string      `json:"achievements_unlocked"`
}

// UpsertRecordingRequest is the admin payload for a recording, reference included.
type UpsertRecordingRequest struct {
	ID         string          `json:"id" validate:"required,max=64"`
	Title      string          `json:"title" validate:"required,max=255"`
	Category   string          `json:"category" validate:"required,max=50"`
	Difficulty Difficulty      `json:"difficulty" validate:"required,oneof=easy medium hard"`
	Schema     Schema          `json:"schema"`
	Reference  ReferenceAnswer `json:"reference" validate:"required"`
}

// Package scoring compares a learner's structured ECG interpretation against
// the expert reference, field by field.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rhythmcheck/backend/internal/models"
)

const exactEpsilon = 1e-9

// Options is the slice of GameConfig the comparator reads.
type Options struct {
	PassThreshold  int
	CategoryPoints map[string]int
	PartialCap     float64
}

// DefaultOptions returns the production defaults: a 100-point form where
// rhythm carries the largest band.
func DefaultOptions() Options {
	return Options{
		PassThreshold: 80,
		CategoryPoints: map[string]int{
			models.CategoryRhythm:     40,
			models.CategoryRate:       15,
			models.CategoryAxis:       10,
			models.CategoryIntervals:  20,
			models.CategoryMorphology: 15,
		},
		PartialCap: 0.9,
	}
}

// OptionsFromConfig extracts comparator options from the game config.
func OptionsFromConfig(cfg models.GameConfig) Options {
	return Options{
		PassThreshold:  cfg.PassThreshold,
		CategoryPoints: cfg.CategoryPoints,
		PartialCap:     cfg.NumericPartialCap,
	}
}

// Score grades a submission against a reference. It is a pure function: the
// same inputs always produce the same result, and nothing is persisted.
// On error no partial result is returned.
func Score(schema models.Schema, submission models.Submission, reference models.ReferenceAnswer, opts Options) (*models.ScoringResult, error) {
	known, err := fieldIndex(schema)
	if err != nil {
		return nil, err
	}

	if id, ok := firstUnknown(submission, known); ok {
		return nil, &SchemaMismatchError{FieldID: id, Source: "submission"}
	}
	refIDs := make(map[string]string, len(reference))
	for id, v := range reference {
		refIDs[id] = v.Value
	}
	if id, ok := firstUnknown(refIDs, known); ok {
		return nil, &SchemaMismatchError{FieldID: id, Source: "reference"}
	}

	for _, f := range schema.Fields {
		ref, ok := reference[f.ID]
		if !ok || strings.TrimSpace(ref.Value) == "" {
			return nil, &IncompleteReferenceError{FieldID: f.ID, Reason: "missing value"}
		}
		if f.Kind == models.FieldNumeric {
			if _, err := parseNumber(ref.Value); err != nil {
				return nil, &IncompleteReferenceError{FieldID: f.ID, Reason: "value is not numeric"}
			}
		}
	}

	points, err := AllocatePoints(schema, opts.CategoryPoints)
	if err != nil {
		return nil, err
	}

	result := &models.ScoringResult{
		Comparisons: make([]models.FieldComparison, 0, len(schema.Fields)),
	}
	for _, f := range schema.Fields {
		cmp := compareField(f, submission[f.ID], reference[f.ID], points[f.ID], opts.PartialCap)
		result.TotalPoints += cmp.AwardedPoints
		result.MaxPoints += cmp.MaxPoints
		result.Comparisons = append(result.Comparisons, cmp)
	}

	result.Score = int(math.Round(100 * float64(result.TotalPoints) / float64(result.MaxPoints)))
	result.IsPassing = result.Score >= opts.PassThreshold
	result.IsPerfect = result.TotalPoints == result.MaxPoints
	return result, nil
}

// AllocatePoints resolves each field's maximum points. Fields with explicit
// Points keep them; the rest split their category band evenly, with the
// remainder going to the earliest fields so the band is never exceeded.
func AllocatePoints(schema models.Schema, bands map[string]int) (map[string]int, error) {
	if _, err := fieldIndex(schema); err != nil {
		return nil, err
	}
	points := make(map[string]int, len(schema.Fields))
	byCategory := make(map[string][]string)
	var order []string

	for _, f := range schema.Fields {
		if f.Points > 0 {
			points[f.ID] = f.Points
			continue
		}
		if _, seen := byCategory[f.Category]; !seen {
			order = append(order, f.Category)
		}
		byCategory[f.Category] = append(byCategory[f.Category], f.ID)
	}

	for _, category := range order {
		ids := byCategory[category]
		band, ok := bands[category]
		if !ok || band <= 0 {
			return nil, fmt.Errorf("%w: no point band for category %q (field %q)", ErrInvalidSchema, category, ids[0])
		}
		share, rem := band/len(ids), band%len(ids)
		for i, id := range ids {
			p := share
			if i < rem {
				p++
			}
			points[id] = p
		}
	}

	total := 0
	for _, p := range points {
		total += p
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: schema is worth zero points", ErrInvalidSchema)
	}
	return points, nil
}

// fieldIndex returns the set of field ids, rejecting a schema that declares
// the same id twice.
func fieldIndex(schema models.Schema) (map[string]bool, error) {
	known := make(map[string]bool, len(schema.Fields))
	for _, f := range schema.Fields {
		if known[f.ID] {
			return nil, fmt.Errorf("%w: duplicate field id %q", ErrInvalidSchema, f.ID)
		}
		known[f.ID] = true
	}
	return known, nil
}

func compareField(f models.FieldSpec, learner string, ref models.ReferenceValue, maxPoints int, partialCap float64) models.FieldComparison {
	cmp := models.FieldComparison{
		FieldID:        f.ID,
		Label:          f.Label,
		Category:       f.Category,
		LearnerValue:   learner,
		ReferenceValue: ref.Value,
		MaxPoints:      maxPoints,
	}
	if strings.TrimSpace(learner) == "" {
		return cmp
	}

	var credit float64
	switch f.Kind {
	case models.FieldNumeric:
		credit = numericCredit(learner, ref.Value, f.Tolerance, partialCap)
	case models.FieldBoolean:
		if normalizeBool(learner) == normalizeBool(ref.Value) {
			credit = 1
		}
	default:
		credit = categoricalCredit(learner, ref, partialCap)
	}

	if credit >= 1 {
		cmp.IsCorrect = true
		cmp.AwardedPoints = maxPoints
		return cmp
	}
	cmp.AwardedPoints, cmp.PartialCredit = partialAward(maxPoints, credit)
	return cmp
}

// numericCredit gives full credit on an exact match and a linearly decaying
// partial credit inside the tolerance, never reaching full credit.
func numericCredit(learner, reference string, tolerance, partialCap float64) float64 {
	got, err := parseNumber(learner)
	if err != nil {
		return 0
	}
	want, _ := parseNumber(reference)

	diff := math.Abs(got - want)
	if diff <= exactEpsilon {
		return 1
	}
	if tolerance <= 0 || diff >= tolerance {
		return 0
	}
	return math.Min(1-diff/tolerance, partialCap)
}

func categoricalCredit(learner string, ref models.ReferenceValue, partialCap float64) float64 {
	value := normalize(learner)
	if value == normalize(ref.Value) {
		return 1
	}
	for _, alt := range ref.Alternatives {
		if value == normalize(alt.Value) {
			return math.Max(0, math.Min(alt.Credit, partialCap))
		}
	}
	return 0
}

// partialAward converts a credit fraction into whole points strictly below
// maxPoints, keeping awarded == round(maxPoints * credit).
func partialAward(maxPoints int, credit float64) (int, *float64) {
	if math.IsNaN(credit) || credit <= 0 || maxPoints <= 0 {
		return 0, nil
	}
	awarded := int(math.Round(float64(maxPoints) * credit))
	if awarded >= maxPoints {
		awarded = maxPoints - 1
		credit = float64(awarded) / float64(maxPoints)
	}
	if awarded <= 0 {
		return 0, nil
	}
	return awarded, &credit
}

func firstUnknown(values map[string]string, known map[string]bool) (string, bool) {
	ids := make([]string, 0, len(values))
	for id := range values {
		if !known[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	return ids[0], true
}

// parseNumber accepts finite decimal values only; NaN and infinities are
// rejected so they never reach the tolerance arithmetic.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func normalizeBool(s string) string {
	switch normalize(s) {
	case "true", "yes", "y", "1", "present":
		return "true"
	case "false", "no", "n", "0", "absent":
		return "false"
	default:
		return normalize(s)
	}
}

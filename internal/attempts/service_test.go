package attempts

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rhythmcheck/backend/internal/gameconfig"
	"github.com/rhythmcheck/backend/internal/gamification"
	"github.com/rhythmcheck/backend/internal/models"
	"github.com/rhythmcheck/backend/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	svc    *Service
	store  *MemoryStore
	stats  *gamification.MemoryStore
	ledger *gamification.Ledger
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: NewMemoryStore(),
		stats: gamification.NewMemoryStore(),
		now:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }

	catalog, err := gamification.DefaultCatalog()
	require.NoError(t, err)
	cfgStore := gameconfig.NewMemoryStore()
	cfg := gameconfig.NewService(cfgStore, cfgStore, nil).WithClock(clock)
	h.ledger = gamification.NewLedger(h.stats, gamification.NewMemoryCatalog(catalog), cfg, cfg, nil, nil).WithClock(clock)
	h.svc = NewService(h.store, h.store, h.store, cfg, h.ledger, nil).WithClock(clock)

	_, err = h.svc.UpsertRecording(context.Background(), sampleRecording())
	require.NoError(t, err)
	return h
}

func (h *harness) tick() {
	h.now = h.now.Add(time.Minute)
}

func sampleRecording() models.UpsertRecordingRequest {
	return models.UpsertRecordingRequest{
		ID:         "afib-01",
		Title:      "Irregularly irregular",
		Category:   models.CategoryRhythm,
		Difficulty: models.DifficultyMedium,
		Schema: models.Schema{
			Category: "12-lead",
			Fields: []models.FieldSpec{
				{ID: "rhythm", Label: "Rhythm", Category: models.CategoryRhythm, Kind: models.FieldCategorical, Points: 40},
				{ID: "rate", Label: "Rate", Category: models.CategoryRate, Kind: models.FieldNumeric, Points: 15, Tolerance: 10, Unit: "bpm"},
				{ID: "axis", Label: "Axis", Category: models.CategoryAxis, Kind: models.FieldCategorical, Points: 10},
				{ID: "qrs", Label: "QRS duration", Category: models.CategoryIntervals, Kind: models.FieldNumeric, Points: 20, Tolerance: 40, Unit: "ms"},
				{ID: "st", Label: "ST changes", Category: models.CategoryMorphology, Kind: models.FieldCategorical, Points: 15},
			},
		},
		Reference: models.ReferenceAnswer{
			"rhythm": {Value: "atrial fibrillation", Alternatives: []models.Alternative{{Value: "atrial flutter", Credit: 0.5}}},
			"rate":   {Value: "110"},
			"axis":   {Value: "normal"},
			"qrs":    {Value: "90"},
			"st":     {Value: "none"},
		},
	}
}

func perfectFields() models.Submission {
	return models.Submission{
		"rhythm": "Atrial Fibrillation",
		"rate":   "110",
		"axis":   "normal",
		"qrs":    "90",
		"st":     "none",
	}
}

func newLearner(t *testing.T, h *harness) int64 {
	t.Helper()
	p, err := h.svc.CreateLearner(context.Background(), models.CreateLearnerRequest{Name: "Sam Rivera"})
	require.NoError(t, err)
	return p.LearnerID
}

func TestSubmitPerfectAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	learner := newLearner(t, h)

	res, err := h.svc.Submit(ctx, learner, models.SubmitAttemptRequest{RecordingID: "afib-01", Fields: perfectFields()})
	require.NoError(t, err)

	assert.Equal(t, 100, res.Scoring.Score)
	assert.True(t, res.Scoring.IsPassing)
	assert.True(t, res.Scoring.IsPerfect)
	assert.Equal(t, int64(170), res.XP.AttemptXP)
	assert.Equal(t, int64(225), res.XP.TotalXP)
	assert.ElementsMatch(t, []string{"first_read", "perfect_1"}, res.AchievementsUnlocked)
	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, 2, res.Progress.Level)

	stored, err := h.store.ListAttempts(ctx, &learner)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, res.AttemptID, stored[0].ID)
	assert.Equal(t, models.DifficultyMedium, stored[0].Difficulty)
	assert.True(t, stored[0].OccurredAt.Equal(h.now))

	st, err := h.stats.GetStats(ctx, learner)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CategoryPasses[models.CategoryRhythm])
}

func TestSubmitPartialCredit(t *testing.T) {
	h := newHarness(t)
	learner := newLearner(t, h)

	fields := perfectFields()
	fields["rhythm"] = "atrial flutter" // alternative worth half
	fields["qrs"] = "106"               // 16ms off with 40ms tolerance
	fields["axis"] = "left"

	res, err := h.svc.Submit(context.Background(), learner, models.SubmitAttemptRequest{RecordingID: "afib-01", Fields: fields})
	require.NoError(t, err)
	assert.Equal(t, 20+15+0+12+15, res.Scoring.TotalPoints)
	assert.Equal(t, 62, res.Scoring.Score)
	assert.False(t, res.Scoring.IsPassing)
	assert.Equal(t, []string{"first_read"}, res.AchievementsUnlocked)
}

func TestSubmitNonFiniteRateEarnsNothing(t *testing.T) {
	h := newHarness(t)
	learner := newLearner(t, h)

	fields := perfectFields()
	fields["rate"] = "NaN"

	res, err := h.svc.Submit(context.Background(), learner, models.SubmitAttemptRequest{RecordingID: "afib-01", Fields: fields})
	require.NoError(t, err)
	rate := res.Scoring.Comparisons[1]
	assert.Equal(t, "rate", rate.FieldID)
	assert.Zero(t, rate.AwardedPoints)
	assert.Nil(t, rate.PartialCredit)
	assert.Equal(t, 85, res.Scoring.Score)
	assert.False(t, res.Scoring.IsPerfect)
}

func TestSubmitRejectsBeforeStoring(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	learner := newLearner(t, h)

	bad := perfectFields()
	bad["p_wave"] = "absent"

	tests := []struct {
		name    string
		learner int64
		req     models.SubmitAttemptRequest
		want    error
	}{
		{"unknown field", learner, models.SubmitAttemptRequest{RecordingID: "afib-01", Fields: bad}, scoring.ErrSchemaMismatch},
		{"unknown recording", learner, models.SubmitAttemptRequest{RecordingID: "nope", Fields: perfectFields()}, ErrRecordingNotFound},
		{"unknown learner", 999, models.SubmitAttemptRequest{RecordingID: "afib-01", Fields: perfectFields()}, ErrProfileNotFound},
		{"missing recording id", learner, models.SubmitAttemptRequest{Fields: perfectFields()}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Submit(ctx, tt.learner, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	all, err := h.store.ListAttempts(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
	st, err := h.stats.GetStats(ctx, learner)
	require.NoError(t, err)
	assert.Zero(t, st.TotalXP)
}

type failingLedger struct{}

func (failingLedger) EnsureLearner(ctx context.Context, learnerID int64) (*models.ProgressionStats, error) {
	return models.NewProgressionStats(learnerID, time.Now()), nil
}

func (failingLedger) RecordAttempt(context.Context, int64, gamification.AttemptOutcome) (*gamification.AttemptCredit, error) {
	return nil, gameconfig.Unavailable(errors.New("config backend down"))
}

func TestSubmitKeepsAttemptWhenCreditFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	learner := newLearner(t, h)
	h.svc.ledger = failingLedger{}

	_, err := h.svc.Submit(ctx, learner, models.SubmitAttemptRequest{RecordingID: "afib-01", Fields: perfectFields()})
	assert.ErrorIs(t, err, gameconfig.ErrConfigUnavailable)

	all, err := h.store.ListAttempts(ctx, &learner)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertRecordingValidatesReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	missing := sampleRecording()
	delete(missing.Reference, "axis")
	_, err := h.svc.UpsertRecording(ctx, missing)
	assert.ErrorIs(t, err, ErrInvalidRecording)
	assert.ErrorIs(t, err, scoring.ErrIncompleteReference)

	extra := sampleRecording()
	extra.Reference["p_wave"] = models.ReferenceValue{Value: "absent"}
	_, err = h.svc.UpsertRecording(ctx, extra)
	assert.ErrorIs(t, err, scoring.ErrSchemaMismatch)

	empty := sampleRecording()
	empty.Schema.Fields = nil
	_, err = h.svc.UpsertRecording(ctx, empty)
	assert.ErrorIs(t, err, ErrInvalidRecording)

	duplicate := sampleRecording()
	duplicate.Schema.Fields = append(duplicate.Schema.Fields, models.FieldSpec{
		ID: "rate", Label: "Atrial rate", Category: models.CategoryRate, Kind: models.FieldNumeric, Points: 15, Tolerance: 10,
	})
	_, err = h.svc.UpsertRecording(ctx, duplicate)
	assert.ErrorIs(t, err, ErrInvalidRecording)
	assert.ErrorIs(t, err, scoring.ErrInvalidSchema)

	for _, value := range []string{"NaN", "Inf", "-Inf"} {
		nonFinite := sampleRecording()
		nonFinite.Reference["rate"] = models.ReferenceValue{Value: value}
		_, err = h.svc.UpsertRecording(ctx, nonFinite)
		assert.ErrorIs(t, err, ErrInvalidRecording, value)
		assert.ErrorIs(t, err, scoring.ErrIncompleteReference, value)
	}

	badDifficulty := sampleRecording()
	badDifficulty.Difficulty = "brutal"
	_, err = h.svc.UpsertRecording(ctx, badDifficulty)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestHistoryAndStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	learner := newLearner(t, h)

	scores := []string{"110", "140", "110"} // rate field: exact, far off, exact
	for _, rate := range scores {
		f := perfectFields()
		f["rate"] = rate
		_, err := h.svc.Submit(ctx, learner, models.SubmitAttemptRequest{RecordingID: "afib-01", Fields: f})
		require.NoError(t, err)
		h.tick()
	}

	page, err := h.svc.History(ctx, learner, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Attempts, 2)
	assert.True(t, page.Attempts[0].OccurredAt.After(page.Attempts[1].OccurredAt))
	assert.True(t, page.Attempts[0].IsPerfect)
	assert.Equal(t, 85, page.Attempts[1].Score)

	last, err := h.svc.History(ctx, learner, 2, 2)
	require.NoError(t, err)
	assert.Len(t, last.Attempts, 1)

	beyond, err := h.svc.History(ctx, learner, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond.Attempts)

	huge, err := h.svc.History(ctx, learner, math.MaxInt64/2+1, 4)
	require.NoError(t, err)
	assert.Empty(t, huge.Attempts)
	assert.Equal(t, 3, huge.Total)
	assert.Equal(t, 4, huge.PageSize)

	maxPage, err := h.svc.History(ctx, learner, math.MaxInt, 50)
	require.NoError(t, err)
	assert.Empty(t, maxPage.Attempts)

	full, err := h.svc.Attempt(ctx, learner, page.Attempts[0].ID)
	require.NoError(t, err)
	assert.Len(t, full.Comparisons, 5)
	_, err = h.svc.Attempt(ctx, learner+1, page.Attempts[0].ID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	stats, err := h.svc.HistoryStats(ctx, learner)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalAttempts)
	assert.Equal(t, 3, stats.TotalPassed)
	assert.Equal(t, 95.0, stats.AverageScore)
	assert.Equal(t, 3, stats.DifficultyStats.Medium.Attempts)
	assert.Zero(t, stats.DifficultyStats.Hard.Attempts)
	assert.Equal(t, 3, stats.CategoryStats[models.CategoryRhythm].Attempts)
	require.Len(t, stats.RecentTrend, 1)
	assert.Equal(t, "2026-03-02", stats.RecentTrend[0].Date)
}

func TestDominantCategory(t *testing.T) {
	rec := &models.Recording{Category: "12-lead", Schema: models.Schema{Fields: []models.FieldSpec{
		{ID: "a", Category: models.CategoryAxis},
		{ID: "b", Category: models.CategoryMorphology},
		{ID: "c", Category: models.CategoryMorphology},
	}}}
	assert.Equal(t, models.CategoryMorphology, dominantCategory(rec))

	rec.Category = models.CategoryRhythm
	assert.Equal(t, models.CategoryRhythm, dominantCategory(rec))
}

package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rhythmcheck/backend/internal/gameconfig"
	"github.com/rhythmcheck/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ledgerNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	ledger  *Ledger
	stats   *MemoryStore
	catalog *MemoryCatalog
	config  *gameconfig.Service
}

func newHarness(t *testing.T, catalog []models.Achievement) *harness {
	t.Helper()
	cfgStore := gameconfig.NewMemoryStore()
	cfg := gameconfig.NewService(cfgStore, cfgStore, nil).WithClock(func() time.Time { return ledgerNow })
	stats := NewMemoryStore()
	cat := NewMemoryCatalog(catalog)
	l := NewLedger(stats, cat, cfg, cfg, NewMemoryLocker(), nil).WithClock(func() time.Time { return ledgerNow })
	return &harness{ledger: l, stats: stats, catalog: cat, config: cfg}
}

func defaultCatalog(t *testing.T) []models.Achievement {
	t.Helper()
	c, err := DefaultCatalog()
	require.NoError(t, err)
	return c
}

func outcome(score int, passing, perfect bool, at time.Time) AttemptOutcome {
	return AttemptOutcome{
		AttemptID:  "att",
		Score:      score,
		IsPassing:  passing,
		IsPerfect:  perfect,
		Category:   models.CategoryRhythm,
		Difficulty: models.DifficultyMedium,
		OccurredAt: at,
	}
}

func TestRecordAttemptFirstPerfect(t *testing.T) {
	h := newHarness(t, defaultCatalog(t))
	ctx := context.Background()
	_, err := h.ledger.EnsureLearner(ctx, 1)
	require.NoError(t, err)

	credit, err := h.ledger.RecordAttempt(ctx, 1, outcome(100, true, true, ledgerNow))
	require.NoError(t, err)

	assert.Equal(t, int64(170), credit.XP.BaseXP)
	assert.Equal(t, 1.0, credit.XP.Multiplier)
	assert.Equal(t, int64(170), credit.XP.AttemptXP)
	assert.Equal(t, int64(55), credit.XP.AchievementXP)
	assert.Equal(t, int64(225), credit.XP.TotalXP)
	assert.ElementsMatch(t, []string{"first_read", "perfect_1"}, AchievementIDs(credit.Unlocked))

	st := credit.Stats
	assert.Equal(t, int64(225), st.TotalXP)
	assert.Equal(t, 2, st.Level)
	assert.Equal(t, 1, st.CurrentStreak)
	assert.Equal(t, 1, st.CompletedAttempts)
	assert.Equal(t, 1, st.PerfectScores)
	assert.Equal(t, 1, st.CategoryPasses[models.CategoryRhythm])
	assert.Equal(t, int64(1), st.Version)
	assert.Equal(t, models.LevelProgress{Level: 2, XPIntoLevel: 125, XPForNext: 150, TotalXP: 225}, credit.Progress)

	events, err := h.stats.ListXPEvents(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	var total int64
	for _, e := range events {
		total += e.XPAmount
	}
	assert.Equal(t, st.TotalXP, total, "xp event log must add up to total xp")
}

func TestCheckAchievementsIsIdempotent(t *testing.T) {
	h := newHarness(t, defaultCatalog(t))
	ctx := context.Background()
	_, err := h.ledger.EnsureLearner(ctx, 1)
	require.NoError(t, err)
	_, err = h.ledger.OnAttemptCompleted(ctx, 1, outcome(100, true, true, ledgerNow))
	require.NoError(t, err)

	first, err := h.ledger.CheckAchievements(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, first, 2)
	after, err := h.stats.GetStats(ctx, 1)
	require.NoError(t, err)

	second, err := h.ledger.CheckAchievements(ctx, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, second)

	again, err := h.stats.GetStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, after.Version, again.Version)
	assert.Equal(t, after.TotalXP, again.TotalXP)

	unlocked, err := h.stats.ListUnlocked(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, unlocked, 2)
}

func TestAchievementRewardsCascade(t *testing.T) {
	h := newHarness(t, []models.Achievement{
		{ID: "first", Name: "First", XPReward: 100, Active: true,
			Predicate: models.Predicate{Kind: models.PredicateStatThreshold, Stat: models.StatCompletedAttempts, Threshold: 1}},
		{ID: "rich", Name: "Rich", Active: true,
			Predicate: models.Predicate{Kind: models.PredicateStatThreshold, Stat: models.StatTotalXP, Threshold: 120}},
	})
	ctx := context.Background()
	_, err := h.ledger.EnsureLearner(ctx, 1)
	require.NoError(t, err)

	credit, err := h.ledger.RecordAttempt(ctx, 1, outcome(50, false, false, ledgerNow))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "rich"}, AchievementIDs(credit.Unlocked))
	assert.Equal(t, int64(125), credit.Stats.TotalXP)
	assert.Equal(t, 0, credit.Stats.CategoryPasses[models.CategoryRhythm], "failed attempts do not count toward mastery")
}

func TestAttemptScopedAchievement(t *testing.T) {
	h := newHarness(t, defaultCatalog(t))
	ctx := context.Background()
	_, err := h.ledger.EnsureLearner(ctx, 1)
	require.NoError(t, err)

	o := outcome(96, true, false, ledgerNow)
	o.Difficulty = models.DifficultyHard
	credit, err := h.ledger.RecordAttempt(ctx, 1, o)
	require.NoError(t, err)
	assert.Contains(t, AchievementIDs(credit.Unlocked), "hard_ace")

	// a retroactive check has no attempt, so attempt-scoped rules cannot fire
	h2 := newHarness(t, defaultCatalog(t))
	_, err = h2.ledger.EnsureLearner(ctx, 1)
	require.NoError(t, err)
	_, err = h2.ledger.OnAttemptCompleted(ctx, 1, o)
	require.NoError(t, err)
	unlocked, err := h2.ledger.CheckAchievements(ctx, 1, nil)
	require.NoError(t, err)
	assert.NotContains(t, AchievementIDs(unlocked), "hard_ace")
}

func TestUnknownLearner(t *testing.T) {
	h := newHarness(t, defaultCatalog(t))
	ctx := context.Background()

	_, err := h.ledger.RecordAttempt(ctx, 404, outcome(90, true, false, ledgerNow))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownLearner)
	var ule *UnknownLearnerError
	require.True(t, errors.As(err, &ule))
	assert.Equal(t, int64(404), ule.LearnerID)

	_, err = h.ledger.CheckAchievements(ctx, 404, nil)
	assert.ErrorIs(t, err, ErrUnknownLearner)

	_, err = h.stats.GetStats(ctx, 404)
	assert.ErrorIs(t, err, ErrUnknownLearner, "no row may be invented")
}

func TestEnsureLearnerIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	first, err := h.ledger.EnsureLearner(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Level)

	_, err = h.ledger.OnAttemptCompleted(ctx, 3, outcome(90, true, false, ledgerNow))
	require.NoError(t, err)

	again, err := h.ledger.EnsureLearner(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(101), again.TotalXP)

	_, err = h.ledger.EnsureLearner(ctx, 0)
	assert.ErrorIs(t, err, models.ErrMissingLearner)
}

type brokenConfig struct{}

func (brokenConfig) Get(context.Context) (*models.GameConfig, error) {
	return nil, errors.New("config backend down")
}

type brokenEvents struct{}

func (brokenEvents) ListActiveEvents(context.Context, time.Time, int64) ([]models.MultiplierEvent, error) {
	return nil, errors.New("events backend down")
}

func TestConfigUnavailableAbortsTransition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultCatalog(t))
	_, err := h.ledger.EnsureLearner(ctx, 1)
	require.NoError(t, err)

	cases := map[string]*Ledger{
		"config": NewLedger(h.stats, h.catalog, brokenConfig{}, h.config, nil, nil),
		"events": NewLedger(h.stats, h.catalog, h.config, brokenEvents{}, nil, nil),
	}
	for name, l := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := l.RecordAttempt(ctx, 1, outcome(100, true, true, ledgerNow))
			require.Error(t, err)
			assert.ErrorIs(t, err, gameconfig.ErrConfigUnavailable)

			st, err := h.stats.GetStats(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(0), st.TotalXP)
			assert.Equal(t, 0, st.CurrentStreak)
			assert.Equal(t, 0, st.CompletedAttempts)
			assert.Equal(t, int64(0), st.Version)
		})
	}
}

func TestMultiplierEventsApplyToAttemptXPOnly(t *testing.T) {
	h := newHarness(t, defaultCatalog(t))
	ctx := context.Background()
	learner := int64(1)
	_, err := h.ledger.EnsureLearner(ctx, learner)
	require.NoError(t, err)

	_, err = h.config.CreateEvent(ctx, models.MultiplierEvent{
		Name: "weekend", Factor: 2, StartsAt: ledgerNow.Add(-time.Hour), EndsAt: ledgerNow.Add(time.Hour),
	}, 99)
	require.NoError(t, err)
	_, err = h.config.CreateEvent(ctx, models.MultiplierEvent{
		Name: "comeback", Factor: 3, StartsAt: ledgerNow.Add(-time.Hour), EndsAt: ledgerNow.Add(time.Hour), LearnerID: &learner,
	}, 99)
	require.NoError(t, err)

	credit, err := h.ledger.RecordAttempt(ctx, learner, outcome(90, true, false, ledgerNow))
	require.NoError(t, err)
	assert.Equal(t, 3.0, credit.XP.Multiplier, "default policy takes the single highest factor")
	assert.Equal(t, int64(303), credit.XP.AttemptXP)
	// first_read reward is credited unmultiplied
	assert.Equal(t, int64(25), credit.XP.AchievementXP)
	assert.Equal(t, int64(328), credit.Stats.TotalXP)

	_, err = h.config.Update(ctx, map[string]json.RawMessage{
		"multipliers.policy": json.RawMessage(`"stack"`),
		"multipliers.cap":    json.RawMessage(`10`),
	}, 99)
	require.NoError(t, err)

	credit, err = h.ledger.RecordAttempt(ctx, learner, outcome(90, true, false, ledgerNow.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, 6.0, credit.XP.Multiplier)
	assert.Equal(t, int64(606), credit.XP.AttemptXP)
}

func TestStreakWithinGraceWindow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.config.Update(ctx, map[string]json.RawMessage{"streak.grace_window_hours": json.RawMessage(`36`)}, 99)
	require.NoError(t, err)

	last := ledgerNow.Add(-20 * time.Hour)
	st := models.NewProgressionStats(1, last)
	st.CurrentStreak, st.LongestStreak, st.LastActivityAt = 5, 5, &last
	require.NoError(t, h.stats.CreateStats(ctx, st))

	credit, err := h.ledger.RecordAttempt(ctx, 1, outcome(85, true, false, ledgerNow))
	require.NoError(t, err)
	assert.Equal(t, 6, credit.Streak.Current)
	assert.True(t, credit.Streak.Incremented)
	assert.Equal(t, 6, credit.Stats.LongestStreak)
}

func TestConcurrentAttemptsForOneLearnerSerialize(t *testing.T) {
	h := newHarness(t, defaultCatalog(t))
	ctx := context.Background()
	_, err := h.ledger.EnsureLearner(ctx, 1)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.ledger.RecordAttempt(ctx, 1, outcome(50, false, false, ledgerNow.Add(time.Duration(i)*time.Second)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	st, err := h.stats.GetStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, n, st.CompletedAttempts)
	assert.Equal(t, int64(n*25+25), st.TotalXP, "20 attempts plus one first_read reward")
	assert.Equal(t, 1, st.CurrentStreak)

	unlocked, err := h.stats.ListUnlocked(ctx, 1)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, u := range unlocked {
		assert.False(t, seen[u.AchievementID], "duplicate unlock %s", u.AchievementID)
		seen[u.AchievementID] = true
	}
}

func TestStaleVersionIsRejected(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateStats(ctx, models.NewProgressionStats(1, ledgerNow)))

	st, err := s.GetStats(ctx, 1)
	require.NoError(t, err)
	_, err = s.ApplyTransition(ctx, Transition{Stats: *st, ExpectedVersion: 0})
	require.NoError(t, err)
	_, err = s.ApplyTransition(ctx, Transition{Stats: *st, ExpectedVersion: 0})
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
}

func TestAdjustXP(t *testing.T) {
	h := newHarness(t, defaultCatalog(t))
	ctx := context.Background()
	_, err := h.ledger.EnsureLearner(ctx, 1)
	require.NoError(t, err)

	st, unlocked, err := h.ledger.AdjustXP(ctx, 1, 1000, 99, "migration credit")
	require.NoError(t, err)
	assert.Equal(t, []string{"xp_1000"}, AchievementIDs(unlocked))
	assert.Equal(t, int64(1000), st.TotalXP)
	assert.Equal(t, 5, st.Level)

	st, _, err = h.ledger.AdjustXP(ctx, 1, -5000, 99, "fraud reversal")
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.TotalXP)
	assert.Equal(t, 1, st.Level)

	events, err := h.ledger.XPHistory(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.XPSourceAdjustment, events[0].Source)
	assert.Equal(t, int64(-1000), events[0].XPAmount, "logged amount is what was actually removed")

	_, _, err = h.ledger.AdjustXP(ctx, 1, 0, 99, "noop")
	assert.ErrorIs(t, err, ErrInvalidAdjustment)
}

func TestProgressionHidesUnearnedHiddenAchievements(t *testing.T) {
	h := newHarness(t, defaultCatalog(t))
	ctx := context.Background()
	_, err := h.ledger.EnsureLearner(ctx, 1)
	require.NoError(t, err)
	_, err = h.ledger.RecordAttempt(ctx, 1, outcome(100, true, true, ledgerNow))
	require.NoError(t, err)

	resp, err := h.ledger.Progression(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(225), resp.Progress.TotalXP)

	views := map[string]models.AchievementView{}
	for _, v := range resp.Achievements {
		views[v.ID] = v
	}
	assert.NotContains(t, views, "consistent_expert")
	require.Contains(t, views, "first_read")
	assert.True(t, views["first_read"].Unlocked)
	assert.NotNil(t, views["first_read"].UnlockedAt)
	assert.Equal(t, "Common", views["first_read"].Rarity)
	assert.False(t, views["streak_7"].Unlocked)
}

package gamification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhythmcheck/backend/internal/gameconfig"
	"github.com/rhythmcheck/backend/internal/models"
)

const maxTransitionRetries = 3

// AttemptOutcome is what the ledger needs to know about a scored attempt.
type AttemptOutcome struct {
	AttemptID  string
	Score      int
	IsPassing  bool
	IsPerfect  bool
	Category   string
	Difficulty models.Difficulty
	OccurredAt time.Time
}

func (o AttemptOutcome) context() *AttemptContext {
	return &AttemptContext{
		Score:      o.Score,
		IsPassing:  o.IsPassing,
		IsPerfect:  o.IsPerfect,
		Category:   o.Category,
		Difficulty: o.Difficulty,
	}
}

// AttemptCredit is the committed effect of one attempt on a learner.
type AttemptCredit struct {
	Stats    models.ProgressionStats
	XP       models.XPBreakdown
	Streak   models.StreakInfo
	Progress models.LevelProgress
	Unlocked []models.Achievement
}

// Ledger owns every write to ProgressionStats. All writes for one learner
// run under that learner's lock and commit as a single Transition.
type Ledger struct {
	stats   StatsStore
	catalog AchievementCatalog
	config  ConfigSource
	events  EventSource
	locker  Locker
	now     func() time.Time
	log     *slog.Logger
}

func NewLedger(stats StatsStore, catalog AchievementCatalog, config ConfigSource, events EventSource, locker Locker, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Ledger{
		stats:   stats,
		catalog: catalog,
		config:  config,
		events:  events,
		locker:  locker,
		now:     time.Now,
		log:     logger.With(slog.String("component", "gamification")),
	}
}

// WithClock overrides the time source used for retroactive unlocks and
// admin corrections.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// EnsureLearner creates a zeroed stats row if none exists and returns the
// current row.
func (l *Ledger) EnsureLearner(ctx context.Context, learnerID int64) (*models.ProgressionStats, error) {
	if learnerID <= 0 {
		return nil, models.ErrMissingLearner
	}
	err := l.stats.CreateStats(ctx, models.NewProgressionStats(learnerID, l.now().UTC()))
	if err != nil && !errors.Is(err, ErrStatsExist) {
		return nil, fmt.Errorf("create progression stats: %w", err)
	}
	return l.stats.GetStats(ctx, learnerID)
}

// OnAttemptCompleted credits XP, advances the streak and bumps counters for
// one attempt. It does not evaluate achievements.
func (l *Ledger) OnAttemptCompleted(ctx context.Context, learnerID int64, outcome AttemptOutcome) (*AttemptCredit, error) {
	return l.recordAttempt(ctx, learnerID, outcome, false)
}

// RecordAttempt is OnAttemptCompleted followed by CheckAchievements with the
// attempt's details, committed as one transition.
func (l *Ledger) RecordAttempt(ctx context.Context, learnerID int64, outcome AttemptOutcome) (*AttemptCredit, error) {
	return l.recordAttempt(ctx, learnerID, outcome, true)
}

func (l *Ledger) recordAttempt(ctx context.Context, learnerID int64, outcome AttemptOutcome, withAchievements bool) (*AttemptCredit, error) {
	release, err := l.locker.Lock(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("lock learner %d: %w", learnerID, err)
	}
	defer release()

	cfg, err := l.config.Get(ctx)
	if err != nil {
		return nil, gameconfig.Unavailable(err)
	}
	active, err := l.events.ListActiveEvents(ctx, outcome.OccurredAt, learnerID)
	if err != nil {
		return nil, gameconfig.Unavailable(err)
	}
	var catalog []models.Achievement
	if withAchievements {
		if catalog, err = l.catalog.ListActive(ctx); err != nil {
			return nil, fmt.Errorf("list achievements: %w", err)
		}
	}

	var credit *AttemptCredit
	err = l.retry(ctx, func() error {
		stats, err := l.stats.GetStats(ctx, learnerID)
		if err != nil {
			return err
		}
		work := stats.Clone()
		work.UpdatedAt = l.now().UTC()

		xp, streak, ev := applyAttempt(&work, outcome, cfg, active)
		t := Transition{ExpectedVersion: stats.Version, Events: []models.XPEvent{ev}}

		var unlocked []models.Achievement
		if withAchievements {
			have, err := l.unlockedSet(ctx, learnerID)
			if err != nil {
				return err
			}
			var reward int64
			unlocked, reward = applyAchievements(&work, catalog, have, outcome.context(), cfg, outcome.OccurredAt, &t)
			xp.AchievementXP = reward
			xp.TotalXP += reward
		}

		t.Stats = work
		saved, err := l.stats.ApplyTransition(ctx, t)
		if err != nil {
			return err
		}
		credit = &AttemptCredit{
			Stats:    *saved,
			XP:       xp,
			Streak:   streak,
			Progress: LevelProgress(saved.TotalXP, cfg.XP.LevelThresholds),
			Unlocked: unlocked,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("attempt credited",
		slog.Int64("learner_id", learnerID),
		slog.Int64("xp", credit.XP.TotalXP),
		slog.Float64("multiplier", credit.XP.Multiplier),
		slog.Int("streak", credit.Streak.Current),
		slog.Bool("streak_reset", credit.Streak.Reset),
		slog.Int("unlocked", len(credit.Unlocked)))
	return credit, nil
}

// CheckAchievements unlocks every active achievement whose predicate now
// holds. Repeating the call with unchanged stats unlocks nothing.
func (l *Ledger) CheckAchievements(ctx context.Context, learnerID int64, attempt *AttemptContext) ([]models.Achievement, error) {
	release, err := l.locker.Lock(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("lock learner %d: %w", learnerID, err)
	}
	defer release()
	return l.checkAchievementsLocked(ctx, learnerID, attempt)
}

func (l *Ledger) checkAchievementsLocked(ctx context.Context, learnerID int64, attempt *AttemptContext) ([]models.Achievement, error) {
	cfg, err := l.config.Get(ctx)
	if err != nil {
		return nil, gameconfig.Unavailable(err)
	}
	catalog, err := l.catalog.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}

	var unlocked []models.Achievement
	err = l.retry(ctx, func() error {
		stats, err := l.stats.GetStats(ctx, learnerID)
		if err != nil {
			return err
		}
		have, err := l.unlockedSet(ctx, learnerID)
		if err != nil {
			return err
		}

		now := l.now().UTC()
		work := stats.Clone()
		t := Transition{ExpectedVersion: stats.Version}
		unlocked, _ = applyAchievements(&work, catalog, have, attempt, cfg, now, &t)
		if len(unlocked) == 0 {
			return nil
		}
		work.UpdatedAt = now
		t.Stats = work
		_, err = l.stats.ApplyTransition(ctx, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, a := range unlocked {
		l.log.Info("achievement unlocked",
			slog.Int64("learner_id", learnerID),
			slog.String("achievement", a.ID),
			slog.Int("xp_reward", a.XPReward))
	}
	return unlocked, nil
}

// AdjustXP applies an administrative XP correction. It is the only path
// that can lower total XP, which is clamped at zero. Positive corrections
// can unlock achievements.
func (l *Ledger) AdjustXP(ctx context.Context, learnerID, delta, actorID int64, reason string) (*models.ProgressionStats, []models.Achievement, error) {
	if delta == 0 {
		return nil, nil, fmt.Errorf("%w: delta must be non-zero", ErrInvalidAdjustment)
	}

	release, err := l.locker.Lock(ctx, learnerID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock learner %d: %w", learnerID, err)
	}
	defer release()

	cfg, err := l.config.Get(ctx)
	if err != nil {
		return nil, nil, gameconfig.Unavailable(err)
	}
	catalog, err := l.catalog.ListActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list achievements: %w", err)
	}

	var (
		saved    *models.ProgressionStats
		unlocked []models.Achievement
	)
	err = l.retry(ctx, func() error {
		stats, err := l.stats.GetStats(ctx, learnerID)
		if err != nil {
			return err
		}
		have, err := l.unlockedSet(ctx, learnerID)
		if err != nil {
			return err
		}

		now := l.now().UTC()
		work := stats.Clone()
		work.UpdatedAt = now
		before := work.TotalXP
		creditXP(&work, delta, cfg.XP)

		t := Transition{ExpectedVersion: stats.Version}
		t.Events = append(t.Events, models.XPEvent{
			LearnerID: learnerID,
			Source:    models.XPSourceAdjustment,
			XPAmount:  work.TotalXP - before,
			Metadata: map[string]interface{}{
				"actor_id":        actorID,
				"reason":          reason,
				"requested_delta": delta,
			},
			CreatedAt: now,
		})
		unlocked, _ = applyAchievements(&work, catalog, have, nil, cfg, now, &t)

		t.Stats = work
		saved, err = l.stats.ApplyTransition(ctx, t)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	l.log.Info("xp adjusted",
		slog.Int64("learner_id", learnerID),
		slog.Int64("delta", delta),
		slog.Int64("actor_id", actorID),
		slog.String("reason", reason))
	return saved, unlocked, nil
}

// Progression returns a learner's stats, level progress and the
// achievements they can see. Hidden achievements appear only once unlocked.
func (l *Ledger) Progression(ctx context.Context, learnerID int64) (*models.ProgressionResponse, error) {
	stats, err := l.stats.GetStats(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	cfg, err := l.config.Get(ctx)
	if err != nil {
		return nil, gameconfig.Unavailable(err)
	}
	all, err := l.catalog.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	unlocked, err := l.stats.ListUnlocked(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list unlocked: %w", err)
	}
	when := make(map[string]time.Time, len(unlocked))
	for _, u := range unlocked {
		when[u.AchievementID] = u.UnlockedAt
	}

	views := make([]models.AchievementView, 0, len(all))
	for _, a := range all {
		at, ok := when[a.ID]
		if !ok && (a.Hidden || !a.Active) {
			continue
		}
		v := models.AchievementView{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Rarity:      a.Rarity.DisplayName(),
			XPReward:    a.XPReward,
			Unlocked:    ok,
		}
		if ok {
			t := at
			v.UnlockedAt = &t
		}
		views = append(views, v)
	}

	return &models.ProgressionResponse{
		Stats:        *stats,
		Progress:     LevelProgress(stats.TotalXP, cfg.XP.LevelThresholds),
		Achievements: views,
	}, nil
}

// XPHistory returns the learner's most recent XP events, newest first.
func (l *Ledger) XPHistory(ctx context.Context, learnerID int64, limit int) ([]models.XPEvent, error) {
	if _, err := l.stats.GetStats(ctx, learnerID); err != nil {
		return nil, err
	}
	return l.stats.ListXPEvents(ctx, learnerID, limit)
}

func (l *Ledger) unlockedSet(ctx context.Context, learnerID int64) (map[string]bool, error) {
	list, err := l.stats.ListUnlocked(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list unlocked: %w", err)
	}
	set := make(map[string]bool, len(list))
	for _, u := range list {
		set[u.AchievementID] = true
	}
	return set, nil
}

// retry reruns fn on optimistic-concurrency conflicts.
func (l *Ledger) retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < maxTransitionRetries; i++ {
		if err = fn(); !errors.Is(err, ErrConcurrentUpdate) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		l.log.Debug("progression conflict, retrying", slog.Int("attempt", i+1))
	}
	return fmt.Errorf("after %d attempts: %w", maxTransitionRetries, err)
}

// applyAttempt mutates stats for one attempt and returns the XP breakdown,
// the streak change and the XP event to log.
func applyAttempt(stats *models.ProgressionStats, o AttemptOutcome, cfg *models.GameConfig, events []models.MultiplierEvent) (models.XPBreakdown, models.StreakInfo, models.XPEvent) {
	base := AttemptXP(o.Score, o.IsPassing, o.IsPerfect, cfg.XP)
	multiplier := EffectiveMultiplier(events, stats.LearnerID, o.OccurredAt, cfg.Multipliers)
	credited := ApplyMultiplier(base, multiplier)

	streak := AdvanceStreak(stats, o.OccurredAt, cfg.Streak)
	creditXP(stats, credited, cfg.XP)

	stats.CompletedAttempts++
	if o.IsPerfect {
		stats.PerfectScores++
	}
	if o.IsPassing && o.Category != "" {
		if stats.CategoryPasses == nil {
			stats.CategoryPasses = map[string]int{}
		}
		stats.CategoryPasses[o.Category]++
	}

	ev := models.XPEvent{
		LearnerID: stats.LearnerID,
		Source:    models.XPSourceAttempt,
		XPAmount:  credited,
		Metadata: map[string]interface{}{
			"attempt_id": o.AttemptID,
			"score":      o.Score,
			"base_xp":    base,
			"multiplier": multiplier,
		},
		CreatedAt: o.OccurredAt,
	}
	xp := models.XPBreakdown{
		BaseXP:     base,
		Multiplier: multiplier,
		AttemptXP:  credited,
		TotalXP:    credited,
	}
	return xp, streak, ev
}

// applyAchievements unlocks newly satisfied achievements until none remain,
// since a reward can push total XP or level over another threshold. Each
// unlock and its reward are appended to t. Rewards are never multiplied.
func applyAchievements(stats *models.ProgressionStats, catalog []models.Achievement, have map[string]bool, attempt *AttemptContext, cfg *models.GameConfig, at time.Time, t *Transition) ([]models.Achievement, int64) {
	var (
		unlocked []models.Achievement
		reward   int64
	)
	seen := make(map[string]bool, len(have))
	for id := range have {
		seen[id] = true
	}

	for {
		batch := NewlySatisfied(catalog, seen, stats, attempt)
		if len(batch) == 0 {
			return unlocked, reward
		}
		for _, a := range batch {
			seen[a.ID] = true
			t.Unlocks = append(t.Unlocks, models.UnlockedAchievement{
				LearnerID:     stats.LearnerID,
				AchievementID: a.ID,
				UnlockedAt:    at,
			})
			if a.XPReward > 0 {
				creditXP(stats, int64(a.XPReward), cfg.XP)
				reward += int64(a.XPReward)
				t.Events = append(t.Events, models.XPEvent{
					LearnerID: stats.LearnerID,
					Source:    models.XPSourceAchievement,
					XPAmount:  int64(a.XPReward),
					Metadata:  map[string]interface{}{"achievement_id": a.ID},
					CreatedAt: at,
				})
			}
			unlocked = append(unlocked, a)
		}
	}
}

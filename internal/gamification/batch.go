package gamification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rhythmcheck/backend/internal/models"
	"golang.org/x/sync/errgroup"
)

// BatchFailure records one item that failed inside a batch.
type BatchFailure struct {
	LearnerID     int64  `json:"learner_id,omitempty"`
	AchievementID string `json:"achievement_id,omitempty"`
	Error         string `json:"error"`
}

// BatchReport summarises a batch run. A failed item never stops the others.
type BatchReport struct {
	Processed int            `json:"processed"`
	Unlocks   int            `json:"unlocks"`
	Updated   []string       `json:"updated,omitempty"`
	Failures  []BatchFailure `json:"failures"`
}

// RecheckAll runs CheckAchievements for every learner with a stats row,
// at most concurrency at a time. It fails only when ctx is cancelled.
func (l *Ledger) RecheckAll(ctx context.Context, concurrency int) (*BatchReport, error) {
	learners, err := l.stats.ListLearners(ctx)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	var (
		mu     sync.Mutex
		report = &BatchReport{Failures: []BatchFailure{}}
		g      errgroup.Group
	)
	g.SetLimit(concurrency)

	for _, id := range learners {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			unlocked, err := l.CheckAchievements(ctx, id, nil)

			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			if err != nil {
				report.Failures = append(report.Failures, BatchFailure{LearnerID: id, Error: err.Error()})
				l.log.Warn("retroactive achievement check failed",
					slog.Int64("learner_id", id),
					slog.String("error", err.Error()))
				return nil
			}
			report.Unlocks += len(unlocked)
			return nil
		})
	}
	// Only cancellation reaches Wait; per-learner failures stay in the report.
	if err := g.Wait(); err != nil {
		l.log.Warn("retroactive achievement check interrupted",
			slog.Int("learners", report.Processed),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("recheck interrupted after %d of %d learners: %w", report.Processed, len(learners), err)
	}

	l.log.Info("retroactive achievement check finished",
		slog.Int("learners", report.Processed),
		slog.Int("unlocks", report.Unlocks),
		slog.Int("failures", len(report.Failures)))
	return report, nil
}

// BulkSetActive toggles each listed achievement independently. Unknown ids
// are reported as failures without affecting the rest.
func BulkSetActive(ctx context.Context, catalog AchievementCatalog, ids []string, active bool) *BatchReport {
	report := &BatchReport{Failures: []BatchFailure{}, Updated: []string{}}
	for _, id := range ids {
		report.Processed++
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, BatchFailure{AchievementID: id, Error: err.Error()})
			continue
		}
		if err := catalog.SetActive(ctx, id, active); err != nil {
			report.Failures = append(report.Failures, BatchFailure{AchievementID: id, Error: err.Error()})
			continue
		}
		report.Updated = append(report.Updated, id)
	}
	return report
}

// SetAchievementsActive is BulkSetActive over the ledger's catalog.
func (l *Ledger) SetAchievementsActive(ctx context.Context, ids []string, active bool) *BatchReport {
	report := BulkSetActive(ctx, l.catalog, ids, active)
	l.log.Info("achievements toggled",
		slog.Bool("active", active),
		slog.Int("updated", len(report.Updated)),
		slog.Int("failures", len(report.Failures)))
	return report
}

// Achievements lists the full catalog, inactive entries included.
func (l *Ledger) Achievements(ctx context.Context) ([]models.Achievement, error) {
	return l.catalog.ListAll(ctx)
}

// SeedCatalog upserts every achievement into catalog.
func SeedCatalog(ctx context.Context, catalog AchievementCatalog, achievements []models.Achievement) error {
	for _, a := range achievements {
		if err := catalog.Upsert(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

package gamification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rhythmcheck/backend/internal/database"
	"github.com/rhythmcheck/backend/internal/models"
)

// Store is the Postgres StatsStore.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Progression Stats ───────────────────────────────────

const statsColumns = `learner_id, total_xp, level, current_streak, longest_streak,
	last_activity_at, completed_attempts, perfect_scores, category_passes,
	version, created_at, updated_at`

func (s *Store) GetStats(ctx context.Context, learnerID int64) (*models.ProgressionStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM progression_stats WHERE learner_id = $1`, learnerID)
	st, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &UnknownLearnerError{LearnerID: learnerID}
	}
	if err != nil {
		return nil, fmt.Errorf("get progression stats: %w", err)
	}
	return st, nil
}

func scanStats(row *sql.Row) (*models.ProgressionStats, error) {
	var (
		st     models.ProgressionStats
		last   sql.NullTime
		passes []byte
	)
	err := row.Scan(&st.LearnerID, &st.TotalXP, &st.Level, &st.CurrentStreak, &st.LongestStreak,
		&last, &st.CompletedAttempts, &st.PerfectScores, &passes,
		&st.Version, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time.UTC()
		st.LastActivityAt = &t
	}
	st.CategoryPasses = map[string]int{}
	if len(passes) > 0 {
		if err := json.Unmarshal(passes, &st.CategoryPasses); err != nil {
			return nil, fmt.Errorf("decode category passes: %w", err)
		}
	}
	return &st, nil
}

func (s *Store) CreateStats(ctx context.Context, stats *models.ProgressionStats) error {
	if err := stats.Validate(); err != nil {
		return err
	}
	passes, err := json.Marshal(stats.CategoryPasses)
	if err != nil {
		return fmt.Errorf("encode category passes: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO progression_stats (learner_id, total_xp, level, category_passes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (learner_id) DO NOTHING`,
		stats.LearnerID, stats.TotalXP, stats.Level, passes, stats.CreatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return &UnknownLearnerError{LearnerID: stats.LearnerID}
		}
		return fmt.Errorf("create progression stats: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStatsExist
	}
	return nil
}

// ApplyTransition writes the stats row with a version check, then the
// unlocks and XP events, in one transaction.
func (s *Store) ApplyTransition(ctx context.Context, t Transition) (*models.ProgressionStats, error) {
	st := t.Stats
	if err := st.Validate(); err != nil {
		return nil, err
	}
	passes, err := json.Marshal(st.CategoryPasses)
	if err != nil {
		return nil, fmt.Errorf("encode category passes: %w", err)
	}

	var saved *models.ProgressionStats
	err = database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var version int64
		err := tx.QueryRowContext(ctx,
			`UPDATE progression_stats SET
			    total_xp = $2, level = $3, current_streak = $4, longest_streak = $5,
			    last_activity_at = $6, completed_attempts = $7, perfect_scores = $8,
			    category_passes = $9, version = version + 1, updated_at = $10
			 WHERE learner_id = $1 AND version = $11
			 RETURNING version`,
			st.LearnerID, st.TotalXP, st.Level, st.CurrentStreak, st.LongestStreak,
			st.LastActivityAt, st.CompletedAttempts, st.PerfectScores,
			passes, st.UpdatedAt, t.ExpectedVersion,
		).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM progression_stats WHERE learner_id = $1)`, st.LearnerID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check progression stats: %w", err)
			}
			if !exists {
				return &UnknownLearnerError{LearnerID: st.LearnerID}
			}
			return ErrConcurrentUpdate
		}
		if err != nil {
			return fmt.Errorf("update progression stats: %w", err)
		}

		for _, u := range t.Unlocks {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO unlocked_achievements (learner_id, achievement_id, unlocked_at)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (learner_id, achievement_id) DO NOTHING`,
				u.LearnerID, u.AchievementID, u.UnlockedAt)
			if err != nil {
				return fmt.Errorf("record unlock: %w", err)
			}
			// Another writer got there first; its reward is already credited.
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrConcurrentUpdate
			}
		}

		for _, e := range t.Events {
			meta, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("encode xp event metadata: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO xp_events (learner_id, source, xp_amount, metadata, created_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				e.LearnerID, e.Source, e.XPAmount, meta, e.CreatedAt,
			); err != nil {
				return fmt.Errorf("log xp event: %w", err)
			}
		}

		out := st.Clone()
		out.Version = version
		saved = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) ListUnlocked(ctx context.Context, learnerID int64) ([]models.UnlockedAchievement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT learner_id, achievement_id, unlocked_at
		 FROM unlocked_achievements WHERE learner_id = $1
		 ORDER BY unlocked_at, achievement_id`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list unlocked achievements: %w", err)
	}
	defer rows.Close()

	var out []models.UnlockedAchievement
	for rows.Next() {
		var u models.UnlockedAchievement
		if err := rows.Scan(&u.LearnerID, &u.AchievementID, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scan unlocked achievement: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) ListLearners(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT learner_id FROM progression_stats ORDER BY learner_id`)
	if err != nil {
		return nil, fmt.Errorf("list learners: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan learner: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListXPEvents(ctx context.Context, learnerID int64, limit int) ([]models.XPEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, learner_id, source, xp_amount, metadata, created_at
		 FROM xp_events WHERE learner_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, learnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list xp events: %w", err)
	}
	defer rows.Close()

	var out []models.XPEvent
	for rows.Next() {
		var (
			e    models.XPEvent
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.LearnerID, &e.Source, &e.XPAmount, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan xp event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode xp event metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── Achievement Catalog ─────────────────────────────────

// Catalog is the Postgres AchievementCatalog.
type Catalog struct {
	db *sql.DB
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) ListActive(ctx context.Context) ([]models.Achievement, error) {
	return c.query(ctx, `WHERE active`)
}

func (c *Catalog) ListAll(ctx context.Context) ([]models.Achievement, error) {
	return c.query(ctx, ``)
}

func (c *Catalog) query(ctx context.Context, where string) ([]models.Achievement, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, description, predicate, xp_reward, rarity, active, hidden
		 FROM achievements `+where+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var out []models.Achievement
	for rows.Next() {
		var (
			a    models.Achievement
			pred []byte
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &pred, &a.XPReward, &a.Rarity, &a.Active, &a.Hidden); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		if err := json.Unmarshal(pred, &a.Predicate); err != nil {
			return nil, fmt.Errorf("decode predicate for %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *Catalog) SetActive(ctx context.Context, id string, active bool) error {
	res, err := c.db.ExecContext(ctx, `UPDATE achievements SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set achievement active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAchievementNotFound
	}
	return nil
}

// Upsert inserts or refreshes a definition. An existing row keeps its
// active flag so reseeding never undoes an admin toggle.
func (c *Catalog) Upsert(ctx context.Context, a models.Achievement) error {
	if err := ValidateAchievement(a); err != nil {
		return err
	}
	pred, err := json.Marshal(a.Predicate)
	if err != nil {
		return fmt.Errorf("encode predicate: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO achievements (id, name, description, predicate, xp_reward, rarity, active, hidden)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		    name = EXCLUDED.name, description = EXCLUDED.description,
		    predicate = EXCLUDED.predicate, xp_reward = EXCLUDED.xp_reward,
		    rarity = EXCLUDED.rarity, hidden = EXCLUDED.hidden`,
		a.ID, a.Name, a.Description, pred, a.XPReward, a.Rarity, a.Active, a.Hidden)
	if err != nil {
		return fmt.Errorf("upsert achievement: %w", err)
	}
	return nil
}

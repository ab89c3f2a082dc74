package gameconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rhythmcheck/backend/internal/database"
	"github.com/rhythmcheck/backend/internal/models"
)

// PostgresStore implements Store and EventStore over lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context) (*models.GameConfig, error) {
	var (
		body []byte
		cfg  models.GameConfig
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT body, version, updated_by, updated_at FROM game_config WHERE id = 1`,
	).Scan(&body, &cfg.Version, &cfg.UpdatedBy, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("load game config: %w", err)
	}
	version, by, at := cfg.Version, cfg.UpdatedBy, cfg.UpdatedAt
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("decode game config: %w", err)
	}
	cfg.Version, cfg.UpdatedBy, cfg.UpdatedAt = version, by, at
	return &cfg, nil
}

func (s *PostgresStore) Save(ctx context.Context, cfg *models.GameConfig, audit models.ConfigAudit, expectedVersion int64) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode game config: %w", err)
	}

	return database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var res sql.Result
		if expectedVersion == 0 {
			res, err = tx.ExecContext(ctx,
				`INSERT INTO game_config (id, body, version, updated_by, updated_at)
				 VALUES (1, $1, $2, $3, $4)
				 ON CONFLICT (id) DO NOTHING`,
				body, cfg.Version, cfg.UpdatedBy, cfg.UpdatedAt)
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE game_config SET body = $1, version = $2, updated_by = $3, updated_at = $4
				 WHERE id = 1 AND version = $5`,
				body, cfg.Version, cfg.UpdatedBy, cfg.UpdatedAt, expectedVersion)
		}
		if err != nil {
			return fmt.Errorf("save game config: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrStaleConfig
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO game_config_audit (id, actor_id, fields, version, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			audit.ID, audit.ActorID, pq.Array(audit.Fields), audit.Version, audit.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert config audit: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListAudit(ctx context.Context, limit int) ([]models.ConfigAudit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor_id, fields, version, created_at
		 FROM game_config_audit
		 ORDER BY created_at DESC, version DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list config audit: %w", err)
	}
	defer rows.Close()

	var out []models.ConfigAudit
	for rows.Next() {
		var a models.ConfigAudit
		if err := rows.Scan(&a.ID, &a.ActorID, pq.Array(&a.Fields), &a.Version, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan config audit: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateEvent(ctx context.Context, e models.MultiplierEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO multiplier_events (id, name, factor, starts_at, ends_at, learner_id, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Name, e.Factor, e.StartsAt, e.EndsAt, e.LearnerID, e.CreatedBy, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert multiplier event: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM multiplier_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete multiplier event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	return nil
}

const eventColumns = `id, name, factor, starts_at, ends_at, learner_id, created_by, created_at`

func (s *PostgresStore) ListEvents(ctx context.Context) ([]models.MultiplierEvent, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM multiplier_events ORDER BY starts_at, id`)
}

func (s *PostgresStore) ListEventsAt(ctx context.Context, at time.Time) ([]models.MultiplierEvent, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM multiplier_events
		 WHERE starts_at <= $1 AND ends_at > $1
		 ORDER BY starts_at, id`, at)
}

func (s *PostgresStore) queryEvents(ctx context.Context, query string, args ...any) ([]models.MultiplierEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list multiplier events: %w", err)
	}
	defer rows.Close()

	var out []models.MultiplierEvent
	for rows.Next() {
		var (
			e       models.MultiplierEvent
			learner sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Factor, &e.StartsAt, &e.EndsAt, &learner, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan multiplier event: %w", err)
		}
		if learner.Valid {
			id := learner.Int64
			e.LearnerID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

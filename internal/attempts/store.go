package attempts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rhythmcheck/backend/internal/database"
	"github.com/rhythmcheck/backend/internal/models"
)

// Store implements RecordingStore, AttemptStore and ProfileStore over lib/pq.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Recordings ──────────────────────────────────────────

func (s *Store) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, category, difficulty, schema, reference, created_at
		 FROM recordings WHERE id = $1`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

func (s *Store) ListRecordings(ctx context.Context) ([]models.Recording, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, category, difficulty, schema, reference, created_at
		 FROM recordings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *Store) UpsertRecording(ctx context.Context, rec models.Recording) error {
	schema, err := json.Marshal(rec.Schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	reference, err := json.Marshal(rec.Reference)
	if err != nil {
		return fmt.Errorf("encode reference: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recordings (id, title, category, difficulty, schema, reference)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title, category = EXCLUDED.category, difficulty = EXCLUDED.difficulty,
		   schema = EXCLUDED.schema, reference = EXCLUDED.reference`,
		rec.ID, rec.Title, rec.Category, rec.Difficulty, schema, reference)
	if err != nil {
		return fmt.Errorf("upsert recording: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecording(row scanner) (*models.Recording, error) {
	var (
		rec               models.Recording
		schema, reference []byte
	)
	if err := row.Scan(&rec.ID, &rec.Title, &rec.Category, &rec.Difficulty, &schema, &reference, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(schema, &rec.Schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := json.Unmarshal(reference, &rec.Reference); err != nil {
		return nil, fmt.Errorf("decode reference: %w", err)
	}
	return &rec, nil
}

// ── Attempts ────────────────────────────────────────────

func (s *Store) CreateAttempt(ctx context.Context, a models.Attempt) error {
	submission, err := json.Marshal(a.Submission)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	reference, err := json.Marshal(a.Reference)
	if err != nil {
		return fmt.Errorf("encode reference: %w", err)
	}
	comparisons, err := json.Marshal(a.Comparisons)
	if err != nil {
		return fmt.Errorf("encode comparisons: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, learner_id, recording_id, recording_category, difficulty,
		   submission, reference, comparisons, total_points, max_points, score, is_passing, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.LearnerID, a.RecordingID, a.RecordingCategory, a.Difficulty,
		submission, reference, comparisons, a.TotalPoints, a.MaxPoints, a.Score, a.IsPassing, a.OccurredAt)
	if database.IsForeignKeyViolation(err) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *Store) ListAttempts(ctx context.Context, learnerID *int64) ([]models.Attempt, error) {
	const cols = `id, learner_id, recording_id, recording_category, difficulty,
		submission, reference, comparisons, total_points, max_points, score, is_passing, occurred_at`

	var (
		rows *sql.Rows
		err  error
	)
	if learnerID != nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+cols+` FROM attempts WHERE learner_id = $1 ORDER BY occurred_at, id`, *learnerID)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+cols+` FROM attempts ORDER BY occurred_at, id`)
	}
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []models.Attempt
	for rows.Next() {
		var (
			a                                  models.Attempt
			submission, reference, comparisons []byte
		)
		if err := rows.Scan(&a.ID, &a.LearnerID, &a.RecordingID, &a.RecordingCategory, &a.Difficulty,
			&submission, &reference, &comparisons, &a.TotalPoints, &a.MaxPoints, &a.Score, &a.IsPassing, &a.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if err := json.Unmarshal(submission, &a.Submission); err != nil {
			return nil, fmt.Errorf("decode submission: %w", err)
		}
		if err := json.Unmarshal(reference, &a.Reference); err != nil {
			return nil, fmt.Errorf("decode reference: %w", err)
		}
		if err := json.Unmarshal(comparisons, &a.Comparisons); err != nil {
			return nil, fmt.Errorf("decode comparisons: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ── Profiles ────────────────────────────────────────────

func (s *Store) GetProfile(ctx context.Context, learnerID int64) (*models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, role FROM learners WHERE id = $1`, learnerID,
	).Scan(&p.LearnerID, &p.Name, &p.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, role FROM learners ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.LearnerID, &p.Name, &p.Role); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreateProfile(ctx context.Context, name string, role models.Role) (*models.Profile, error) {
	p := models.Profile{Name: name, Role: role}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO learners (name, role) VALUES ($1, $2) RETURNING id`, name, role,
	).Scan(&p.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return &p, nil
}

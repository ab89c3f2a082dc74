package gameconfig

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rhythmcheck/backend/internal/models"
)

var (
	// ErrNotConfigured is returned by a Store that has never been written.
	// The service falls back to the embedded defaults.
	ErrNotConfigured = errors.New("game config not stored")

	// ErrStaleConfig is returned by Save when another update won the race.
	ErrStaleConfig = errors.New("game config changed concurrently")
)

// Store persists the single active config row and its audit trail.
type Store interface {
	Load(ctx context.Context) (*models.GameConfig, error)
	// Save writes cfg and its audit record atomically, provided the stored
	// version still equals expectedVersion (0 meaning "nothing stored").
	Save(ctx context.Context, cfg *models.GameConfig, audit models.ConfigAudit, expectedVersion int64) error
	ListAudit(ctx context.Context, limit int) ([]models.ConfigAudit, error)
}

// EventStore persists multiplier events.
type EventStore interface {
	CreateEvent(ctx context.Context, e models.MultiplierEvent) error
	DeleteEvent(ctx context.Context, id uuid.UUID) error
	ListEvents(ctx context.Context) ([]models.MultiplierEvent, error)
	// ListEventsAt returns events whose window contains at, for any learner.
	ListEventsAt(ctx context.Context, at time.Time) ([]models.MultiplierEvent, error)
}

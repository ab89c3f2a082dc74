package gameconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rhythmcheck/backend/internal/models"
)

// Service is the Event/Config Store: the only writer of GameConfig and
// multiplier events.
type Service struct {
	store  Store
	events EventStore
	now    func() time.Time
	log    *slog.Logger
}

func NewService(store Store, events EventStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		events: events,
		now:    time.Now,
		log:    logger.With(slog.String("component", "gameconfig")),
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Get returns the active config. A store that was never written yields the
// embedded defaults. Any other failure is a ConfigUnavailableError.
func (s *Service) Get(ctx context.Context) (*models.GameConfig, error) {
	cfg, err := s.store.Load(ctx)
	if errors.Is(err, ErrNotConfigured) {
		def, derr := Defaults()
		if derr != nil {
			return nil, Unavailable(derr)
		}
		return def, nil
	}
	if err != nil {
		return nil, Unavailable(err)
	}
	return cfg, nil
}

// Update applies an allow-listed partial update on behalf of actorID,
// validates the result and records an audit entry.
func (s *Service) Update(ctx context.Context, patch map[string]json.RawMessage, actorID int64) (*models.ConfigUpdateResult, error) {
	if actorID == 0 {
		return nil, fmt.Errorf("%w: actor is required", ErrInvalidValue)
	}

	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	next, fields, err := applyPatch(current, patch)
	if err != nil {
		return nil, err
	}
	if err := Validate(next); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	next.Version = current.Version + 1
	next.UpdatedBy = actorID
	next.UpdatedAt = now

	audit := models.ConfigAudit{
		ID:        uuid.New(),
		ActorID:   actorID,
		Fields:    fields,
		Version:   next.Version,
		CreatedAt: now,
	}
	if err := s.store.Save(ctx, next, audit, current.Version); err != nil {
		if errors.Is(err, ErrStaleConfig) {
			return nil, err
		}
		return nil, fmt.Errorf("save game config: %w", err)
	}

	s.log.Info("game config updated",
		slog.Int64("actor_id", actorID),
		slog.Any("fields", fields),
		slog.Int64("version", next.Version))

	return &models.ConfigUpdateResult{Config: *next, Audit: audit}, nil
}

// Audit returns the most recent audit records, newest first.
func (s *Service) Audit(ctx context.Context, limit int) ([]models.ConfigAudit, error) {
	return s.store.ListAudit(ctx, limit)
}

// CreateEvent validates and stores a multiplier event.
func (s *Service) CreateEvent(ctx context.Context, e models.MultiplierEvent, actorID int64) (*models.MultiplierEvent, error) {
	if err := validate.Struct(e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if !slices.Contains(models.MultiplierFactors, e.Factor) {
		return nil, fmt.Errorf("%w: factor must be one of %v, got %v", ErrInvalidValue, models.MultiplierFactors, e.Factor)
	}
	e.ID = uuid.New()
	e.CreatedBy = actorID
	e.CreatedAt = s.now().UTC()
	if err := s.events.CreateEvent(ctx, e); err != nil {
		return nil, err
	}
	s.log.Info("multiplier event created",
		slog.String("event_id", e.ID.String()),
		slog.Float64("factor", e.Factor),
		slog.Bool("global", e.IsGlobal()),
		slog.Int64("actor_id", actorID))
	return &e, nil
}

func (s *Service) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	return s.events.DeleteEvent(ctx, id)
}

func (s *Service) ListEvents(ctx context.Context) ([]models.MultiplierEvent, error) {
	return s.events.ListEvents(ctx)
}

// ListActiveEvents returns events applicable to learnerID at now. Failures
// are reported as ConfigUnavailableError since the ledger cannot price XP
// without them.
func (s *Service) ListActiveEvents(ctx context.Context, now time.Time, learnerID int64) ([]models.MultiplierEvent, error) {
	all, err := s.events.ListEventsAt(ctx, now)
	if err != nil {
		return nil, Unavailable(err)
	}
	out := make([]models.MultiplierEvent, 0, len(all))
	for _, e := range all {
		if e.AppliesTo(learnerID, now) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Package attempts runs the submission use case: grade an interpretation,
// store the immutable attempt, then credit the learner's progression.
package attempts

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhythmcheck/backend/internal/gamification"
	"github.com/rhythmcheck/backend/internal/models"
)

var (
	ErrRecordingNotFound = errors.New("recording not found")
	ErrProfileNotFound   = errors.New("learner profile not found")
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrInvalidRecording  = errors.New("invalid recording")
	ErrInvalidRequest    = errors.New("invalid request")
)

func invalidRequest(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

type RecordingStore interface {
	GetRecording(ctx context.Context, id string) (*models.Recording, error)
	ListRecordings(ctx context.Context) ([]models.Recording, error)
	UpsertRecording(ctx context.Context, rec models.Recording) error
}

// AttemptStore persists attempts. Attempts are never updated once created.
// ListAttempts orders by occurrence, oldest first; a nil learnerID lists
// every learner.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, a models.Attempt) error
	ListAttempts(ctx context.Context, learnerID *int64) ([]models.Attempt, error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, learnerID int64) (*models.Profile, error)
	ListProfiles(ctx context.Context) ([]models.Profile, error)
	CreateProfile(ctx context.Context, name string, role models.Role) (*models.Profile, error)
}

type ConfigSource interface {
	Get(ctx context.Context) (*models.GameConfig, error)
}

// Ledger is the part of the progression ledger a submission drives.
type Ledger interface {
	EnsureLearner(ctx context.Context, learnerID int64) (*models.ProgressionStats, error)
	RecordAttempt(ctx context.Context, learnerID int64, outcome gamification.AttemptOutcome) (*gamification.AttemptCredit, error)
}

package gamification

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLearner is returned when a transition targets a learner with
	// no stats row. The ledger never creates one implicitly.
	ErrUnknownLearner = errors.New("unknown learner")

	// ErrConcurrentUpdate is returned by a store when the stats row changed
	// since it was read. The ledger retries with a fresh read.
	ErrConcurrentUpdate = errors.New("concurrent progression update")

	// ErrStatsExist is returned by CreateStats for a learner that already has a row.
	ErrStatsExist = errors.New("progression stats already exist")

	// ErrAchievementNotFound is returned by catalog lookups.
	ErrAchievementNotFound = errors.New("achievement not found")

	// ErrInvalidAchievement is returned when a catalog entry fails validation.
	ErrInvalidAchievement = errors.New("invalid achievement")

	ErrInvalidAdjustment = errors.New("invalid xp adjustment")
)

type UnknownLearnerError struct {
	LearnerID int64
}

func (e *UnknownLearnerError) Error() string {
	return fmt.Sprintf("no progression stats for learner %d", e.LearnerID)
}

func (e *UnknownLearnerError) Unwrap() error { return ErrUnknownLearner }

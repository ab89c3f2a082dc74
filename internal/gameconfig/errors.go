package gameconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigUnavailable marks any failure to read the active game config.
	// Transitions that need config abort entirely when they see it.
	ErrConfigUnavailable = errors.New("game config unavailable")

	// ErrForbiddenField is returned when an update names a key outside the allow-list.
	ErrForbiddenField = errors.New("forbidden config field")

	// ErrInvalidValue is returned when an update would leave the config out of range.
	ErrInvalidValue = errors.New("invalid config value")

	ErrEventNotFound = errors.New("multiplier event not found")
)

// ConfigUnavailableError wraps the underlying read failure. It matches both
// ErrConfigUnavailable and the cause under errors.Is.
type ConfigUnavailableError struct {
	Err error
}

func (e *ConfigUnavailableError) Error() string {
	return fmt.Sprintf("game config unavailable: %v", e.Err)
}

func (e *ConfigUnavailableError) Unwrap() []error {
	return []error{ErrConfigUnavailable, e.Err}
}

// Unavailable wraps err as a ConfigUnavailableError unless it already is one.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	var cue *ConfigUnavailableError
	if errors.As(err, &cue) {
		return err
	}
	return &ConfigUnavailableError{Err: err}
}

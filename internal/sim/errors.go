package sim

import (
	"errors"
	"fmt"
)

// ErrRoleOutOfTurn reports a broken alternation invariant. It indicates a bug
// in the driving code, not a recoverable runtime condition.
var ErrRoleOutOfTurn = errors.New("transcript alternation violated")

// ErrStepInFlight is returned when Step is called while a previous Step on the
// same engine has not returned. Callers must serialize steps per run.
var ErrStepInFlight = errors.New("step already in flight")

// ConfigError reports an invalid run configuration. The run never leaves Idle.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid run config: %s %s", e.Field, e.Reason)
}

// GenerationError wraps a provider failure with the role that was speaking.
// It is terminal for the run; the partial transcript is preserved.
type GenerationError struct {
	Role Role
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s failed to produce an utterance: %v", e.Role, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

package session

import (
	"errors"
	"fmt"

	"tradetrainer/internal/prediction"
)

var (
	// ErrNotActive is returned when an operation needs the current exercise to be active.
	ErrNotActive = errors.New("exercise is not active")

	// ErrNoExercise is returned when there is no current exercise.
	ErrNoExercise = errors.New("no current exercise")

	// ErrSubmissionInFlight is returned while a validation for the same exercise is pending.
	ErrSubmissionInFlight = errors.New("validation submission already in flight")

	// ErrNonFinite is returned for NaN or infinite validations and outcomes.
	ErrNonFinite = prediction.ErrNonFinite

	// ErrContentUnavailable is returned when an exercise's chart cannot be retrieved or used.
	ErrContentUnavailable = errors.New("exercise content unavailable")

	// ErrNoEligibleExercise is returned when the program has nothing left to practice.
	ErrNoEligibleExercise = errors.New("no eligible exercise")

	// ErrSuperseded is returned when a newer load finished first.
	ErrSuperseded = errors.New("superseded by a newer load")

	// ErrAlreadyWatching is returned by a second concurrent Watch.
	ErrAlreadyWatching = errors.New("session is already watching")

	// ErrUnsupportedVersion is returned for persisted history in an unknown format.
	ErrUnsupportedVersion = errors.New("unsupported history version")
)

// OpError carries the failing operation and its target (CID, account or trader).
type OpError struct {
	Op     string
	Target string
	Err    error
}

func (e *OpError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op, target string, err error) error {
	return &OpError{Op: op, Target: target, Err: err}
}

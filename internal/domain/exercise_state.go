package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownState is returned when decoding a state string that is not one of the known states.
var ErrUnknownState = errors.New("unknown exercise state")

// ExerciseState is the lifecycle state of an exercise.
type ExerciseState string

const (
	StateActive    ExerciseState = "active"
	StateChecking  ExerciseState = "checking"
	StateSkipped   ExerciseState = "skipped"
	StateExpired   ExerciseState = "expired"
	StateSuccess   ExerciseState = "success"
	StateFailed    ExerciseState = "failed"
	StateCorrupted ExerciseState = "corrupted"
)

// AllStates lists every state in declaration order.
var AllStates = []ExerciseState{
	StateActive,
	StateChecking,
	StateSkipped,
	StateExpired,
	StateSuccess,
	StateFailed,
	StateCorrupted,
}

// transitions holds the legal one-step transitions. Terminal states have no entry.
var transitions = map[ExerciseState][]ExerciseState{
	StateActive:   {StateChecking, StateSkipped, StateExpired},
	StateChecking: {StateSuccess, StateFailed, StateExpired, StateCorrupted},
}

// ParseExerciseState converts a string into an ExerciseState.
// Unknown strings return ErrUnknownState.
func ParseExerciseState(s string) (ExerciseState, error) {
	state := ExerciseState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	return state, nil
}

// String returns the string representation.
func (s ExerciseState) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known states.
func (s ExerciseState) IsValid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s ExerciseState) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// CanTransition reports whether s -> to is a legal single transition.
func (s ExerciseState) CanTransition(to ExerciseState) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (s ExerciseState) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, string(s))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and rejects unknown states.
func (s *ExerciseState) UnmarshalText(text []byte) error {
	state, err := ParseExerciseState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

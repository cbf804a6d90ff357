// Package program is the client of the on-chain exercise program.
package program

import (
	"context"
	"errors"

	"tradetrainer/internal/domain"
)

var (
	// ErrAccountNotFound is returned when a program account does not exist.
	ErrAccountNotFound = errors.New("program account not found")

	// ErrReadOnly is returned by write operations on a client without a signer.
	ErrReadOnly = errors.New("program client has no signer")

	// ErrExerciseSealed is returned when validating a sealed exercise.
	ErrExerciseSealed = errors.New("exercise is sealed")

	// ErrExerciseFull is returned when the validation capacity is reached.
	ErrExerciseFull = errors.New("exercise is full")

	// ErrAlreadyValidated is returned when a trader validates the same exercise twice.
	ErrAlreadyValidated = errors.New("exercise already validated by trader")
)

// ExerciseAccount is an exercise address paired with its decoded account.
type ExerciseAccount = domain.ProgramAccount[domain.ExerciseAccount]

// TraderAccount is a trader address paired with its decoded account.
type TraderAccount = domain.ProgramAccount[domain.Trader]

// ExerciseFilters narrows GetFilteredExercises.
type ExerciseFilters struct {
	Authority      string // creator, empty for any
	ExcludeSealed  bool
	ExcludeFull    bool
	NotValidatedBy string // skip exercises this trader already validated
}

// Match reports whether acc passes the non-memcmp filters.
func (f ExerciseFilters) Match(acc *domain.ExerciseAccount) bool {
	if f.Authority != "" && acc.Authority != f.Authority {
		return false
	}
	if f.ExcludeSealed && acc.Sealed {
		return false
	}
	if f.ExcludeFull && acc.Full() {
		return false
	}
	if f.NotValidatedBy != "" {
		if _, ok := acc.ValidationBy(f.NotValidatedBy); ok {
			return false
		}
	}
	return true
}

// TraderFilters narrows GetFilteredTraders.
type TraderFilters struct {
	User string // wallet, empty for all
}

// CreateExerciseParams describes a new exercise.
type CreateExerciseParams struct {
	CID                 string
	ValidationsCapacity uint8
}

// Client is the remote program boundary. Every call either returns the affected
// {publicKey, account} pair or fails with a transport or validation error.
type Client interface {
	CreateExercise(ctx context.Context, params CreateExerciseParams) (*ExerciseAccount, error)
	GetFilteredExercises(ctx context.Context, filters ExerciseFilters) ([]ExerciseAccount, error)
	AddValidation(ctx context.Context, trader, exercise string, value float64) (*ExerciseAccount, error)
	AddOutcome(ctx context.Context, exercise string, outcome float64, solutionCID string) (*ExerciseAccount, error)
	CheckValidation(ctx context.Context, trader, exercise string) (*TraderAccount, error)
	ReloadExercise(ctx context.Context, exercise string) (*ExerciseAccount, error)
	GetFilteredTraders(ctx context.Context, filters TraderFilters) ([]TraderAccount, error)
	ReloadTraderAccount(ctx context.Context, trader string) (*TraderAccount, error)
}

package storage

import (
	"context"

	"tradetrainer/internal/domain"
)

// KVStore is a string key/value store for per-trader session state.
type KVStore interface {
	// Get returns the value stored under key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// SettlementStore is an append-only journal of terminal history items.
type SettlementStore interface {
	// Append records a terminal item for trader. Returns ErrDuplicateKey if (trader, cid) exists
	// and ErrInvalidInput if the item is not terminal.
	Append(ctx context.Context, trader string, item *domain.ExerciseHistoryItem) error

	// GetByTrader retrieves all items for trader, ordered by updated time ASC.
	GetByTrader(ctx context.Context, trader string) ([]*domain.ExerciseHistoryItem, error)

	// Traders returns every trader with at least one journal entry, sorted.
	Traders(ctx context.Context) ([]string, error)
}

// PerformanceStore keeps computed performance snapshots per trader.
type PerformanceStore interface {
	// Insert appends a snapshot. Returns ErrDuplicateKey if (trader, computed_at) exists.
	Insert(ctx context.Context, p *domain.TraderPerformance) error

	// GetLatest returns the most recent snapshot for trader. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, trader string) (*domain.TraderPerformance, error)

	// GetByTrader retrieves all snapshots for trader, ordered by computed_at ASC.
	GetByTrader(ctx context.Context, trader string) ([]*domain.TraderPerformance, error)
}

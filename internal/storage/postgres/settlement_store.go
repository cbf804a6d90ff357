package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/storage"
)

// SettlementStore implements storage.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *Pool
}

// NewSettlementStore creates a new SettlementStore.
func NewSettlementStore(pool *Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettlementStore = (*SettlementStore)(nil)

// Append records a terminal item. Returns ErrDuplicateKey if (trader, cid) exists.
func (s *SettlementStore) Append(ctx context.Context, trader string, item *domain.ExerciseHistoryItem) error {
	if trader == "" || item == nil || item.CID == "" || !item.State.IsTerminal() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO settlements (
			trader, cid, public_key,
			direction, take_profit, stop_loss, post_bars,
			exercise_type, state, validation, outcome,
			created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13
		)
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		trader, item.CID, item.PublicKey,
		string(item.Direction), item.TakeProfit, item.StopLoss, item.PostBars,
		item.Type, item.State.String(), item.Validation, item.Outcome,
		item.CreatedAt, item.UpdatedAt,
	)
	observe("insert_settlement", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// GetByTrader retrieves all items for trader, ordered by updated time ASC.
func (s *SettlementStore) GetByTrader(ctx context.Context, trader string) ([]*domain.ExerciseHistoryItem, error) {
	query := `
		SELECT
			cid, public_key,
			direction, take_profit, stop_loss, post_bars,
			exercise_type, state, validation, outcome,
			created_at, updated_at
		FROM settlements
		WHERE trader = $1
		ORDER BY updated_at ASC, recorded_at ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, trader)
	observe("select_settlements", start, err)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var result []*domain.ExerciseHistoryItem
	for rows.Next() {
		item, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return result, nil
}

// Traders returns every trader with at least one entry, sorted.
func (s *SettlementStore) Traders(ctx context.Context) ([]string, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT trader FROM settlements ORDER BY trader`)
	observe("select_traders", start, err)
	if err != nil {
		return nil, fmt.Errorf("query traders: %w", err)
	}
	defer rows.Close()

	traders, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect traders: %w", err)
	}
	return traders, nil
}

// scanSettlement decodes one row. Unknown states and directions fail closed.
func scanSettlement(row pgx.Row) (*domain.ExerciseHistoryItem, error) {
	var (
		item      domain.ExerciseHistoryItem
		direction string
		state     string
	)
	err := row.Scan(
		&item.CID, &item.PublicKey,
		&direction, &item.TakeProfit, &item.StopLoss, &item.PostBars,
		&item.Type, &state, &item.Validation, &item.Outcome,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan settlement: %w", err)
	}

	if item.State, err = domain.ParseExerciseState(state); err != nil {
		return nil, fmt.Errorf("settlement %s: %w", item.CID, err)
	}
	if err := item.Direction.UnmarshalText([]byte(direction)); err != nil {
		return nil, fmt.Errorf("settlement %s: %w", item.CID, err)
	}
	return &item, nil
}

package clickhouse

import (
	"context"
	"fmt"
	"time"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/storage"
)

// PerformanceStore implements storage.PerformanceStore using ClickHouse.
type PerformanceStore struct {
	conn *Conn
}

// NewPerformanceStore creates a new PerformanceStore.
func NewPerformanceStore(conn *Conn) *PerformanceStore {
	return &PerformanceStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PerformanceStore = (*PerformanceStore)(nil)

const performanceColumns = `
	trader, computed_at,
	attempts, successes, failures, skipped, expired, corrupted,
	win_rate, outcome_mean, best_outcome, worst_outcome,
	max_consecutive_fails`

// Insert appends a snapshot. Returns ErrDuplicateKey if (trader, computed_at) exists.
func (s *PerformanceStore) Insert(ctx context.Context, p *domain.TraderPerformance) error {
	if p == nil || p.Trader == "" || p.ComputedAt < 0 {
		return storage.ErrInvalidInput
	}

	// ReplacingMergeTree would silently replace; keep append-only semantics.
	exists, err := s.exists(ctx, p.Trader, p.ComputedAt)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `INSERT INTO trader_performance (` + performanceColumns + `
	) VALUES (
		?, ?,
		?, ?, ?, ?, ?, ?,
		?, ?, ?, ?,
		?
	)`

	start := time.Now()
	err = s.conn.Exec(ctx, query,
		p.Trader, uint64(p.ComputedAt),
		uint32(p.Attempts), uint32(p.Successes), uint32(p.Failures),
		uint32(p.Skipped), uint32(p.Expired), uint32(p.Corrupted),
		p.WinRate, p.OutcomeMean, p.BestOutcome, p.WorstOutcome,
		uint32(p.MaxConsecutiveFails),
	)
	observe("insert_performance", start, err)
	if err != nil {
		return fmt.Errorf("insert trader performance: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot. Returns ErrNotFound if none.
func (s *PerformanceStore) GetLatest(ctx context.Context, trader string) (*domain.TraderPerformance, error) {
	query := `SELECT ` + performanceColumns + `
		FROM trader_performance FINAL
		WHERE trader = ?
		ORDER BY computed_at DESC
		LIMIT 1`

	snapshots, err := s.query(ctx, "select_latest_performance", query, trader)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, storage.ErrNotFound
	}
	return snapshots[0], nil
}

// GetByTrader retrieves all snapshots for trader, ordered by computed_at ASC.
func (s *PerformanceStore) GetByTrader(ctx context.Context, trader string) ([]*domain.TraderPerformance, error) {
	query := `SELECT ` + performanceColumns + `
		FROM trader_performance FINAL
		WHERE trader = ?
		ORDER BY computed_at ASC`

	return s.query(ctx, "select_performance", query, trader)
}

func (s *PerformanceStore) query(ctx context.Context, op, query string, args ...interface{}) ([]*domain.TraderPerformance, error) {
	start := time.Now()
	rows, err := s.conn.Query(ctx, query, args...)
	observe(op, start, err)
	if err != nil {
		return nil, fmt.Errorf("query trader performance: %w", err)
	}
	defer rows.Close()

	var result []*domain.TraderPerformance
	for rows.Next() {
		var (
			p                                                          domain.TraderPerformance
			computedAt                                                 uint64
			attempts, successes, failures, skipped, expired, corrupted uint32
			maxFails                                                   uint32
		)
		if err := rows.Scan(
			&p.Trader, &computedAt,
			&attempts, &successes, &failures, &skipped, &expired, &corrupted,
			&p.WinRate, &p.OutcomeMean, &p.BestOutcome, &p.WorstOutcome,
			&maxFails,
		); err != nil {
			return nil, fmt.Errorf("scan trader performance: %w", err)
		}
		p.ComputedAt = int64(computedAt)
		p.Attempts = int(attempts)
		p.Successes = int(successes)
		p.Failures = int(failures)
		p.Skipped = int(skipped)
		p.Expired = int(expired)
		p.Corrupted = int(corrupted)
		p.MaxConsecutiveFails = int(maxFails)
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trader performance: %w", err)
	}
	return result, nil
}

func (s *PerformanceStore) exists(ctx context.Context, trader string, computedAt int64) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx,
		`SELECT count() FROM trader_performance WHERE trader = ? AND computed_at = ?`,
		trader, uint64(computedAt))
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

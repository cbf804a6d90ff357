// Package performance aggregates the settlement journal into trader performance snapshots.
package performance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/storage"
)

// Aggregator journals terminal history items and keeps performance snapshots current.
type Aggregator struct {
	settlements  storage.SettlementStore
	performances storage.PerformanceStore
	now          func() time.Time
	log          *logrus.Entry

	mu   sync.Mutex
	last map[string]int64 // trader -> last ComputedAt
}

// NewAggregator creates an Aggregator. A nil logger uses the logrus standard logger.
func NewAggregator(settlements storage.SettlementStore, performances storage.PerformanceStore, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Aggregator{
		settlements:  settlements,
		performances: performances,
		now:          time.Now,
		log:          logger.WithField("component", "performance"),
		last:         make(map[string]int64),
	}
}

// Compute derives the current performance of trader from the journal without persisting it.
func (a *Aggregator) Compute(ctx context.Context, trader string) (*domain.TraderPerformance, error) {
	items, err := a.settlements.GetByTrader(ctx, trader)
	if err != nil {
		return nil, fmt.Errorf("load settlements for %s: %w", trader, err)
	}
	p := computeFromItems(trader, items)
	p.ComputedAt = a.nextComputedAt(trader)
	return p, nil
}

// ComputeAndStore computes and persists a snapshot.
func (a *Aggregator) ComputeAndStore(ctx context.Context, trader string) (*domain.TraderPerformance, error) {
	p, err := a.Compute(ctx, trader)
	if err != nil {
		return nil, err
	}
	if err := a.performances.Insert(ctx, p); err != nil {
		return nil, fmt.Errorf("store performance for %s: %w", trader, err)
	}
	return p, nil
}

// Record journals a terminal item and refreshes the snapshot. Replaying an item that is
// already journaled is not an error and does not produce a new snapshot.
func (a *Aggregator) Record(ctx context.Context, trader string, item *domain.ExerciseHistoryItem) error {
	err := a.settlements.Append(ctx, trader, item)
	if errors.Is(err, storage.ErrDuplicateKey) {
		a.log.WithFields(logrus.Fields{"trader": trader, "cid": item.CID}).Debug("settlement already journaled")
		return nil
	}
	if err != nil {
		return fmt.Errorf("journal %s: %w", item.CID, err)
	}

	p, err := a.ComputeAndStore(ctx, trader)
	if err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"trader":   trader,
		"cid":      item.CID,
		"state":    item.State,
		"attempts": p.Attempts,
		"win_rate": p.WinRate,
	}).Info("performance updated")
	return nil
}

// Latest returns the last stored snapshot, computing one if none exists yet.
func (a *Aggregator) Latest(ctx context.Context, trader string) (*domain.TraderPerformance, error) {
	p, err := a.performances.GetLatest(ctx, trader)
	if errors.Is(err, storage.ErrNotFound) {
		return a.Compute(ctx, trader)
	}
	return p, err
}

// RecomputeAll refreshes snapshots for every journaled trader.
func (a *Aggregator) RecomputeAll(ctx context.Context) (int, error) {
	traders, err := a.settlements.Traders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list traders: %w", err)
	}
	for _, trader := range traders {
		if _, err := a.ComputeAndStore(ctx, trader); err != nil {
			return 0, err
		}
	}
	return len(traders), nil
}

// nextComputedAt returns a strictly increasing Unix ms timestamp per trader.
func (a *Aggregator) nextComputedAt(trader string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	ts := a.now().UnixMilli()
	if last, ok := a.last[trader]; ok && ts <= last {
		ts = last + 1
	}
	a.last[trader] = ts
	return ts
}

package memory

import (
	"context"
	"sort"
	"sync"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/storage"
)

// PerformanceStore is an in-memory implementation of storage.PerformanceStore.
type PerformanceStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.TraderPerformance // keyed by trader, sorted by ComputedAt
}

// NewPerformanceStore creates a new in-memory performance store.
func NewPerformanceStore() *PerformanceStore {
	return &PerformanceStore{
		data: make(map[string][]*domain.TraderPerformance),
	}
}

// Insert appends a snapshot. Returns ErrDuplicateKey if (trader, computed_at) exists.
func (s *PerformanceStore) Insert(_ context.Context, p *domain.TraderPerformance) error {
	if p == nil || p.Trader == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots := s.data[p.Trader]
	for _, existing := range snapshots {
		if existing.ComputedAt == p.ComputedAt {
			return storage.ErrDuplicateKey
		}
	}

	cp := *p
	snapshots = append(snapshots, &cp)
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].ComputedAt < snapshots[j].ComputedAt
	})
	s.data[p.Trader] = snapshots
	return nil
}

// GetLatest returns the most recent snapshot. Returns ErrNotFound if none.
func (s *PerformanceStore) GetLatest(_ context.Context, trader string) (*domain.TraderPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots := s.data[trader]
	if len(snapshots) == 0 {
		return nil, storage.ErrNotFound
	}
	cp := *snapshots[len(snapshots)-1]
	return &cp, nil
}

// GetByTrader retrieves all snapshots for trader, ordered by computed_at ASC.
func (s *PerformanceStore) GetByTrader(_ context.Context, trader string) ([]*domain.TraderPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TraderPerformance, 0, len(s.data[trader]))
	for _, p := range s.data[trader] {
		cp := *p
		result = append(result, &cp)
	}
	return result, nil
}

// Compile-time interface check.
var _ storage.PerformanceStore = (*PerformanceStore)(nil)

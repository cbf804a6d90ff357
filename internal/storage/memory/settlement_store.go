package memory

import (
	"context"
	"sort"
	"sync"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/storage"
)

// SettlementStore is an in-memory implementation of storage.SettlementStore.
type SettlementStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.ExerciseHistoryItem // keyed by trader, insertion order
}

// NewSettlementStore creates a new in-memory settlement journal.
func NewSettlementStore() *SettlementStore {
	return &SettlementStore{
		data: make(map[string][]*domain.ExerciseHistoryItem),
	}
}

// Append records a terminal item. Returns ErrDuplicateKey if (trader, cid) exists.
func (s *SettlementStore) Append(_ context.Context, trader string, item *domain.ExerciseHistoryItem) error {
	if trader == "" || item == nil || item.CID == "" || !item.State.IsTerminal() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data[trader] {
		if existing.CID == item.CID {
			return storage.ErrDuplicateKey
		}
	}
	s.data[trader] = append(s.data[trader], item.Clone())
	return nil
}

// GetByTrader retrieves all items for trader, ordered by updated time ASC.
func (s *SettlementStore) GetByTrader(_ context.Context, trader string) ([]*domain.ExerciseHistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.data[trader]
	result := make([]*domain.ExerciseHistoryItem, 0, len(items))
	for _, item := range items {
		result = append(result, item.Clone())
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result, nil
}

// Traders returns every trader with at least one entry, sorted.
func (s *SettlementStore) Traders(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	traders := make([]string, 0, len(s.data))
	for trader := range s.data {
		traders = append(traders, trader)
	}
	sort.Strings(traders)
	return traders, nil
}

// Compile-time interface check.
var _ storage.SettlementStore = (*SettlementStore)(nil)

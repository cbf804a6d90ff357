package content

import (
	"context"
	"fmt"
	"sync"

	"tradetrainer/internal/domain"
)

// MemoryFetcher serves content from memory. Used for tests and offline runs.
type MemoryFetcher struct {
	mu        sync.Mutex
	charts    map[string]*domain.Chart
	solutions map[string]*domain.Solution
	errs      map[string]error
	fetches   map[string]int
}

// NewMemoryFetcher creates an empty MemoryFetcher.
func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{
		charts:    make(map[string]*domain.Chart),
		solutions: make(map[string]*domain.Solution),
		errs:      make(map[string]error),
		fetches:   make(map[string]int),
	}
}

// PutChart stores a chart under cid.
func (m *MemoryFetcher) PutChart(cid string, chart *domain.Chart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charts[cid] = cloneChart(chart)
}

// PutSolution stores a solution under cid.
func (m *MemoryFetcher) PutSolution(cid string, sol *domain.Solution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.solutions[cid] = sol.Clone()
}

// Fail makes every fetch of cid return err. A nil err clears it.
func (m *MemoryFetcher) Fail(cid string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, cid)
		return
	}
	m.errs[cid] = err
}

// Fetches returns how many times cid was requested.
func (m *MemoryFetcher) Fetches(cid string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[cid]
}

// FetchChart implements Fetcher.
func (m *MemoryFetcher) FetchChart(_ context.Context, cid string) (*domain.Chart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches[cid]++

	if err := m.errs[cid]; err != nil {
		return nil, err
	}
	chart, ok := m.charts[cid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cid)
	}
	if err := chart.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadContent, cid, err)
	}
	return cloneChart(chart), nil
}

// FetchSolution implements Fetcher.
func (m *MemoryFetcher) FetchSolution(_ context.Context, cid string) (*domain.Solution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches[cid]++

	if err := m.errs[cid]; err != nil {
		return nil, err
	}
	sol, ok := m.solutions[cid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cid)
	}
	if err := sol.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadContent, cid, err)
	}
	return sol.Clone(), nil
}

var _ Fetcher = (*MemoryFetcher)(nil)

package content

import (
	"context"
	"sync"

	"tradetrainer/internal/domain"
)

// Cache memoizes successful fetches. Content behind a CID never changes, so entries
// only leave when the cache is full (oldest first).
type Cache struct {
	next Fetcher
	max  int

	mu        sync.Mutex
	charts    map[string]*domain.Chart
	solutions map[string]*domain.Solution
	order     []string // kind|cid in insertion order
}

// NewCache wraps next. max <= 0 means 256 entries.
func NewCache(next Fetcher, max int) *Cache {
	if max <= 0 {
		max = 256
	}
	return &Cache{
		next:      next,
		max:       max,
		charts:    make(map[string]*domain.Chart),
		solutions: make(map[string]*domain.Solution),
	}
}

// FetchChart returns a cached chart or fetches it.
func (c *Cache) FetchChart(ctx context.Context, cid string) (*domain.Chart, error) {
	c.mu.Lock()
	if chart, ok := c.charts[cid]; ok {
		c.mu.Unlock()
		return cloneChart(chart), nil
	}
	c.mu.Unlock()

	chart, err := c.next.FetchChart(ctx, cid)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if _, ok := c.charts[cid]; !ok {
		c.charts[cid] = cloneChart(chart)
		c.remember("c|" + cid)
	}
	c.mu.Unlock()
	return chart, nil
}

// FetchSolution returns a cached solution or fetches it.
func (c *Cache) FetchSolution(ctx context.Context, cid string) (*domain.Solution, error) {
	c.mu.Lock()
	if sol, ok := c.solutions[cid]; ok {
		c.mu.Unlock()
		return sol.Clone(), nil
	}
	c.mu.Unlock()

	sol, err := c.next.FetchSolution(ctx, cid)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if _, ok := c.solutions[cid]; !ok {
		c.solutions[cid] = sol.Clone()
		c.remember("s|" + cid)
	}
	c.mu.Unlock()
	return sol, nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// remember records an insertion and evicts the oldest entry past max. Caller holds mu.
func (c *Cache) remember(key string) {
	c.order = append(c.order, key)
	for len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		switch oldest[0] {
		case 'c':
			delete(c.charts, oldest[2:])
		case 's':
			delete(c.solutions, oldest[2:])
		}
	}
}

func cloneChart(c *domain.Chart) *domain.Chart {
	cp := *c
	cp.Candles = append([]domain.Candle(nil), c.Candles...)
	return &cp
}

var _ Fetcher = (*Cache)(nil)

package session

import (
	"context"
	"errors"
	"sync"

	"tradetrainer/internal/solana"
)

// ErrNoTrader is returned by Manager.Get for an empty trader address.
var ErrNoTrader = errors.New("trader address is required")

// Manager keeps one resumed Session per trader. When a WS client is configured every
// session is watched until the manager's context is cancelled.
type Manager struct {
	ctx  context.Context
	base Options
	ws   solana.WSClient

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager creates a Manager. base is copied for every session with Trader set.
// ws may be nil.
func NewManager(ctx context.Context, base Options, ws solana.WSClient) *Manager {
	return &Manager{
		ctx:      ctx,
		base:     base,
		ws:       ws,
		sessions: make(map[string]*Session),
	}
}

// Get returns the trader's session, creating and resuming it on first use.
func (m *Manager) Get(ctx context.Context, trader string) (*Session, error) {
	if trader == "" {
		return nil, ErrNoTrader
	}
	m.mu.Lock()
	s, ok := m.sessions[trader]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	opts := m.base
	opts.Trader = trader
	fresh := New(opts)
	if err := fresh.Resume(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[trader]; ok {
		return s, nil
	}
	m.sessions[trader] = fresh
	if m.ws != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := fresh.Watch(m.ctx, m.ws); err != nil {
				fresh.log.WithError(err).Warn("watch stopped")
			}
		}()
	}
	return fresh, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Wait blocks until every watcher has returned. Cancel the manager's context first.
func (m *Manager) Wait() {
	m.wg.Wait()
}

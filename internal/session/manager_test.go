package session

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	solanastub "tradetrainer/internal/solana/stub"
)

func TestManager_OneSessionPerTrader(t *testing.T) {
	f := newFixture(t)
	logger, _ := test.NewNullLogger()
	ws := solanastub.NewWSClient()
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ctx, Options{Program: f.program, Content: f.content, Store: f.store, Logger: logger}, ws)
	defer func() {
		cancel()
		m.Wait()
	}()

	first, err := m.Get(f.ctx, "w1")
	require.NoError(t, err)
	again, err := m.Get(f.ctx, "w1")
	require.NoError(t, err)
	other, err := m.Get(f.ctx, "w2")
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.NotSame(t, first, other)
	assert.Equal(t, "w2", other.Trader())
	assert.Equal(t, 2, m.Len())

	_, err = m.Get(f.ctx, "")
	assert.ErrorIs(t, err, ErrNoTrader)

	require.Eventually(t, func() bool {
		first.mu.Lock()
		defer first.mu.Unlock()
		return first.watching
	}, time.Second, 5*time.Millisecond)
}

func TestManager_ResumeFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(f.ctx, HistoryKey("w1"), "not json"))

	m := NewManager(context.Background(), Options{Program: f.program, Content: f.content, Store: f.store}, nil)
	_, err := m.Get(f.ctx, "w1")
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}

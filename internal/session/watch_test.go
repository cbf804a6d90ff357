package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradetrainer/internal/domain"
	solanastub "tradetrainer/internal/solana/stub"
)

func startWatch(t *testing.T, s *Session, ws *solanastub.WSClient) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, ws) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("watch did not return")
		}
	}
}

func TestWatch_SettlesFromFeed(t *testing.T) {
	f := newFixture(t)
	ws := solanastub.NewWSClient()
	defer ws.Close()
	f.program.Feed = ws

	pk := f.addExercise(t, "QmA", 5)
	f.content.PutSolution("QmSol", &domain.Solution{Outcome: 25})
	s := f.newSession(t)

	stop := startWatch(t, s, ws)
	defer stop()

	_, err := s.LoadExercise(f.ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ws.Subscribers(pk) == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err = s.SubmitValidation(f.ctx, 40)
	require.NoError(t, err)

	// still followed while checking
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, ws.Subscribers(pk))

	_, err = f.program.AddOutcome(f.ctx, pk, 25, "QmSol")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.content.Fetches("QmSol") == 1 }, 2*time.Second, 5*time.Millisecond)

	f.program.Delete(pk)
	require.Eventually(t, func() bool {
		history := s.State().History
		return len(history) == 1 && history[0].State == domain.StateSuccess
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return ws.Subscribers(pk) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatch_ExpiresActiveOnSeal(t *testing.T) {
	f := newFixture(t)
	ws := solanastub.NewWSClient()
	defer ws.Close()
	f.program.Feed = ws

	pk := f.addExercise(t, "QmA", 5)
	s := f.newSession(t)

	stop := startWatch(t, s, ws)
	defer stop()

	_, err := s.LoadExercise(f.ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ws.Subscribers(pk) == 1 }, 2*time.Second, 5*time.Millisecond)

	f.program.Seal(pk)
	require.Eventually(t, func() bool { return s.State().LoadNewExercise && s.State().Current == nil }, 2*time.Second, 5*time.Millisecond)

	history := s.State().History
	require.Len(t, history, 1)
	assert.Equal(t, domain.StateExpired, history[0].State)
	require.Eventually(t, func() bool { return ws.Subscribers(pk) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatch_SingleWatcher(t *testing.T) {
	f := newFixture(t)
	ws := solanastub.NewWSClient()
	defer ws.Close()
	s := f.newSession(t)

	stop := startWatch(t, s, ws)
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.watching
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.Watch(context.Background(), ws), ErrAlreadyWatching)
	stop()

	// released once the first watcher returns
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Watch(ctx, ws))
}

func TestWatch_ReleasesSubscriptionsOnCancel(t *testing.T) {
	f := newFixture(t)
	ws := solanastub.NewWSClient()
	defer ws.Close()

	pk := f.addExercise(t, "QmA", 5)
	s := f.newSession(t)
	_, err := s.LoadExercise(f.ctx)
	require.NoError(t, err)

	stop := startWatch(t, s, ws)
	require.Eventually(t, func() bool { return ws.Subscribers(pk) == 1 }, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, 0, ws.Subscribers(pk))
}

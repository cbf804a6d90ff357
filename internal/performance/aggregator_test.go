package performance

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/storage/memory"
)

func newTestAggregator(t *testing.T) (*Aggregator, *memory.PerformanceStore, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	perf := memory.NewPerformanceStore()
	a := NewAggregator(memory.NewSettlementStore(), perf, logger)
	a.now = func() time.Time { return time.UnixMilli(5000) }
	return a, perf, hook
}

func TestAggregator_Record(t *testing.T) {
	a, perf, hook := newTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, a.Record(ctx, "alice", item("a", domain.StateSuccess, f(3), 1)))
	require.NoError(t, a.Record(ctx, "alice", item("b", domain.StateFailed, f(-2), 2)))

	latest, err := perf.GetLatest(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Attempts)
	assert.Equal(t, 0.5, latest.WinRate)

	// frozen clock still yields distinct snapshot keys
	all, err := perf.GetByTrader(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(5000), all[0].ComputedAt)
	assert.Equal(t, int64(5001), all[1].ComputedAt)

	// replay is a no-op
	require.NoError(t, a.Record(ctx, "alice", item("a", domain.StateSuccess, f(3), 1)))
	all, _ = perf.GetByTrader(ctx, "alice")
	assert.Len(t, all, 2)
	assert.Equal(t, "settlement already journaled", hook.LastEntry().Message)
}

func TestAggregator_RecordRejectsOpenItem(t *testing.T) {
	a, _, _ := newTestAggregator(t)
	err := a.Record(context.Background(), "alice", item("a", domain.StateChecking, nil, 1))
	assert.Error(t, err)
}

func TestAggregator_LatestAndRecomputeAll(t *testing.T) {
	a, perf, _ := newTestAggregator(t)
	ctx := context.Background()

	p, err := a.Latest(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Attempts)

	require.NoError(t, a.settlements.Append(ctx, "alice", item("a", domain.StateSuccess, f(1), 1)))
	require.NoError(t, a.settlements.Append(ctx, "bob", item("a", domain.StateExpired, nil, 1)))

	n, err := a.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	bob, err := perf.GetLatest(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, bob.Expired)

	latest, err := a.Latest(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Successes)
}

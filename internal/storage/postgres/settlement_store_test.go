package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/storage"
)

func createTestSettlement(cid string, state domain.ExerciseState, updated time.Time) *domain.ExerciseHistoryItem {
	return &domain.ExerciseHistoryItem{
		CID:        cid,
		PublicKey:  "Ex" + cid,
		Direction:  domain.DirectionShort,
		TakeProfit: 0.03,
		StopLoss:   0.015,
		PostBars:   10,
		Type:       domain.ExerciseTypePrediction,
		State:      state,
		Validation: -40,
		Outcome:    ptr(-12.5),
		CreatedAt:  updated.Add(-time.Minute).UTC(),
		UpdatedAt:  updated.UTC(),
	}
}

func TestSettlementStore_AppendAndGetByTrader(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSettlementStore(pool)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, "alice", createTestSettlement("Qm2", domain.StateFailed, base.Add(time.Hour))))
	require.NoError(t, store.Append(ctx, "alice", createTestSettlement("Qm1", domain.StateSuccess, base)))
	skipped := createTestSettlement("Qm3", domain.StateSkipped, base)
	skipped.Outcome = nil
	require.NoError(t, store.Append(ctx, "bob", skipped))

	items, err := store.GetByTrader(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Qm1", items[0].CID)
	assert.Equal(t, domain.StateSuccess, items[0].State)
	assert.Equal(t, domain.DirectionShort, items[0].Direction)
	require.NotNil(t, items[0].Outcome)
	assert.Equal(t, -12.5, *items[0].Outcome)
	assert.True(t, base.Equal(items[0].UpdatedAt))
	assert.Equal(t, "Qm2", items[1].CID)

	bob, err := store.GetByTrader(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Nil(t, bob[0].Outcome)

	traders, err := store.Traders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, traders)
}

func TestSettlementStore_AppendDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSettlementStore(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Append(ctx, "alice", createTestSettlement("Qm1", domain.StateSuccess, now)))

	err := store.Append(ctx, "alice", createTestSettlement("Qm1", domain.StateFailed, now))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// same CID for another trader is a different key
	require.NoError(t, store.Append(ctx, "bob", createTestSettlement("Qm1", domain.StateFailed, now)))
}

func TestSettlementStore_RejectsOpenItems(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSettlementStore(pool)
	err := store.Append(context.Background(), "alice", createTestSettlement("Qm1", domain.StateChecking, time.Now()))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSettlementStore_UnknownStateFailsClosed(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()
	_, err := pool.Exec(ctx, `
		INSERT INTO settlements (trader, cid, public_key, direction, take_profit, stop_loss, post_bars,
			exercise_type, state, validation, outcome, created_at, updated_at)
		VALUES ('alice', 'Qm9', 'Ex9', 'long', 0.1, 0.1, 0, 'prediction', 'archived', 5, NULL, $1, $1)`, now)
	require.NoError(t, err)

	_, err = NewSettlementStore(pool).GetByTrader(ctx, "alice")
	assert.Error(t, err)
}

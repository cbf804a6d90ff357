package stub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradetrainer/internal/program"
	"tradetrainer/internal/solana"
	solanastub "tradetrainer/internal/solana/stub"
)

func key(t *testing.T) string {
	t.Helper()
	kp, err := solana.GenerateKeypair()
	require.NoError(t, err)
	return kp.PublicKey().String()
}

func TestClient_ValidationLifecycle(t *testing.T) {
	ctx := context.Background()
	c := NewClient(key(t))
	trader := key(t)

	ex, err := c.CreateExercise(ctx, program.CreateExerciseParams{CID: "Qm1", ValidationsCapacity: 1})
	require.NoError(t, err)

	_, err = c.AddValidation(ctx, trader, ex.PublicKey, 40)
	require.NoError(t, err)

	_, err = c.AddValidation(ctx, key(t), ex.PublicKey, 10)
	assert.ErrorIs(t, err, program.ErrExerciseFull)

	_, err = c.AddOutcome(ctx, ex.PublicKey, 25, "QmSol")
	require.NoError(t, err)

	acc, err := c.CheckValidation(ctx, trader, ex.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), acc.Account.Successes)

	// settling twice does not double count
	acc, err = c.CheckValidation(ctx, trader, ex.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), acc.Account.Successes)
	assert.Equal(t, 100.0, acc.Account.Performance)
}

func TestClient_FailNext(t *testing.T) {
	c := NewClient(key(t))
	boom := errors.New("rpc down")
	c.FailNext("ReloadTraderAccount", 2, boom)

	_, err := c.ReloadTraderAccount(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	_, err = c.ReloadTraderAccount(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	_, err = c.ReloadTraderAccount(context.Background(), "x")
	assert.ErrorIs(t, err, program.ErrAccountNotFound)
	assert.Equal(t, 3, c.Calls("ReloadTraderAccount"))
}

func TestClient_PublishesToFeed(t *testing.T) {
	ctx := context.Background()
	feed := solanastub.NewWSClient()
	c := NewClient(key(t))
	c.Feed = feed

	ex, err := c.CreateExercise(ctx, program.CreateExerciseParams{CID: "Qm1", ValidationsCapacity: 2})
	require.NoError(t, err)

	sub, err := feed.SubscribeAccount(ctx, ex.PublicKey)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	c.Seal(ex.PublicKey)
	n := <-sub.Notifications()
	decoded, err := program.DecodeExercise(n.Info.Data)
	require.NoError(t, err)
	assert.True(t, decoded.Sealed)

	c.Delete(ex.PublicKey)
	n2 := <-sub.Notifications()
	assert.True(t, n2.Info.Empty())
	assert.Greater(t, n2.Slot, n.Slot)
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradetrainer/internal/storage"
)

func TestKVStore_Memory(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, "tradetrainer:alice:history")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Set(ctx, "tradetrainer:alice:history", `{"version":1,"items":[]}`))
	require.NoError(t, store.Set(ctx, "tradetrainer:alice:history", `{"version":1,"items":[{}]}`))

	got, err := store.Get(ctx, "tradetrainer:alice:history")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1,"items":[{}]}`, got)

	require.NoError(t, store.Delete(ctx, "tradetrainer:alice:history"))
	require.NoError(t, store.Delete(ctx, "tradetrainer:alice:history"))
	_, err = store.Get(ctx, "tradetrainer:alice:history")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.Set(ctx, "", "x"), storage.ErrInvalidInput)
}

func TestKVStore_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trainer.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "tradetrainer:bob:last-exercise", "Ex1"))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "tradetrainer:bob:last-exercise")
	require.NoError(t, err)
	assert.Equal(t, "Ex1", got)
}

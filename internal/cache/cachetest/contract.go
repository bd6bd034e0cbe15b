// Package cachetest содержит общий набор проверок контракта cache.Store,
// который прогоняется для каждого бэкенда.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/scan-gate/internal/cache"
)

type record struct {
	Name string `json:"name"`
	Used int    `json:"used"`
}

// RunContract проверяет базовое поведение хранилища.
// expire должен сдвинуть время хранилища вперёд на указанную длительность.
func RunContract(t *testing.T, store cache.Store, expire func(d time.Duration)) {
	t.Helper()
	ctx := context.Background()

	t.Run("set and get struct", func(t *testing.T) {
		want := record{Name: "alice", Used: 3}
		require.NoError(t, store.Set(ctx, "contract:rec", want, 0))

		var got record
		found, err := store.Get(ctx, "contract:rec", &got)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want, got)
	})

	t.Run("get missing key", func(t *testing.T) {
		var got record
		found, err := store.Get(ctx, "contract:missing", &got)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "contract:n", 1, 0))
		require.NoError(t, store.Set(ctx, "contract:n", 2, 0))

		var got int
		found, err := store.Get(ctx, "contract:n", &got)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 2, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "contract:del", "value", 0))
		require.NoError(t, store.Delete(ctx, "contract:del"))
		require.NoError(t, store.Delete(ctx, "contract:del"))

		var got string
		found, err := store.Get(ctx, "contract:del", &got)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "contract:ttl", true, 2*time.Second))
		require.NoError(t, store.Set(ctx, "contract:forever", true, 0))

		var got bool
		found, err := store.Get(ctx, "contract:ttl", &got)
		require.NoError(t, err)
		assert.True(t, found)

		expire(3 * time.Second)

		found, err = store.Get(ctx, "contract:ttl", &got)
		require.NoError(t, err)
		assert.False(t, found)

		found, err = store.Get(ctx, "contract:forever", &got)
		require.NoError(t, err)
		assert.True(t, found)
	})
}

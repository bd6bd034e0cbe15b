package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/scan-gate/internal/cache/cachetest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemory_Contract(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cachetest.RunContract(t, NewMemory(WithClock(clock.Now)), clock.Advance)
}

func TestMemory_StoresCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	value := map[string]int{"used": 1}
	require.NoError(t, m.Set(ctx, "k", value, 0))
	value["used"] = 99

	var got map[string]int
	found, err := m.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, got["used"])
}

func TestMemory_ExpiredEntriesAreEvicted(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", 1, time.Second))
	assert.Equal(t, 1, m.Len())

	clock.Advance(time.Second)
	var got int
	found, err := m.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_GetInvalidJSONTarget(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", "text", 0))

	var got int
	found, err := m.Get(ctx, "k", &got)
	assert.Error(t, err)
	assert.False(t, found)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Set(ctx, "shared", i, 0)
			var got int
			_, _ = m.Get(ctx, "shared", &got)
		}(i)
	}
	wg.Wait()

	var got int
	found, err := m.Get(ctx, "shared", &got)
	require.NoError(t, err)
	assert.True(t, found)
}

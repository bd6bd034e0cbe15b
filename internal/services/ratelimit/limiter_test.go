package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/scan-gate/internal/cache"
	"github.com/magabrotheeeer/scan-gate/internal/models"
)

var defaultLimits = Limits{
	models.TierAnonymous:         5,
	models.TierAuthenticatedFree: 10,
	models.TierPremium:           100,
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newLimiter(store cache.Store, c *clock) *Limiter {
	return New(store, time.Minute, defaultLimits, WithClock(c.now))
}

func TestCheckAndIncrement_WindowScenario(t *testing.T) {
	// Окно [12:00:00, 12:01:00), запросы в t=0..4, t=10 и t=61 секунд.
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: base}
	store := cache.NewMemory(cache.WithClock(c.now))
	limiter := newLimiter(store, c)
	ctx := context.Background()
	id := models.AnonymousIdentity("dev-abc123")

	for i := range 5 {
		c.t = base.Add(time.Duration(i) * time.Second)
		d, err := limiter.CheckAndIncrement(ctx, id, models.TierAnonymous)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 5, d.Limit)
		assert.Equal(t, 4-i, d.Remaining)
		assert.Equal(t, base.Add(time.Minute), d.ResetAt)
	}

	c.t = base.Add(10 * time.Second)
	d, err := limiter.CheckAndIncrement(ctx, id, models.TierAnonymous)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 50*time.Second, d.RetryAfter)

	c.t = base.Add(61 * time.Second)
	d, err = limiter.CheckAndIncrement(ctx, id, models.TierAnonymous)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
	assert.Equal(t, base.Add(2*time.Minute), d.ResetAt)
}

func TestCheckAndIncrement_TierLimits(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		tier  models.Tier
		limit int
	}{
		{tier: models.TierAnonymous, limit: 5},
		{tier: models.TierAuthenticatedFree, limit: 10},
		{tier: models.TierPremium, limit: 100},
		{tier: models.Tier("unknown"), limit: 5},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			c := &clock{t: base}
			limiter := newLimiter(cache.NewMemory(cache.WithClock(c.now)), c)
			ctx := context.Background()
			id := models.AuthenticatedIdentity("acc-" + string(tt.tier))

			for i := range tt.limit {
				d, err := limiter.CheckAndIncrement(ctx, id, tt.tier)
				require.NoError(t, err)
				require.True(t, d.Allowed, "request %d", i)
			}
			d, err := limiter.CheckAndIncrement(ctx, id, tt.tier)
			require.NoError(t, err)
			assert.False(t, d.Allowed)
			assert.Equal(t, tt.limit, d.Limit)
		})
	}
}

func TestCheckAndIncrement_SeparateIdentitiesAndTiers(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: base}
	limiter := newLimiter(cache.NewMemory(cache.WithClock(c.now)), c)
	ctx := context.Background()
	a := models.AnonymousIdentity("a")

	for range 5 {
		_, err := limiter.CheckAndIncrement(ctx, a, models.TierAnonymous)
		require.NoError(t, err)
	}

	d, err := limiter.CheckAndIncrement(ctx, models.AnonymousIdentity("b"), models.TierAnonymous)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Смена уровня у той же идентичности начинает новый счётчик.
	d, err = limiter.CheckAndIncrement(ctx, a, models.TierAuthenticatedFree)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCheckAndIncrement_WindowAlignedToEpoch(t *testing.T) {
	c := &clock{t: time.UnixMilli(7_500).UTC()}
	limiter := New(cache.NewMemory(cache.WithClock(c.now)), 7*time.Second, defaultLimits, WithClock(c.now))

	d, err := limiter.CheckAndIncrement(context.Background(), models.AnonymousIdentity("a"), models.TierAnonymous)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(14_000).UTC(), d.ResetAt)
}

func TestCheckAndIncrement_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &cache.Cache{Db: client}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: base}
	limiter := newLimiter(store, c)
	ctx := context.Background()
	id := models.AnonymousIdentity("dev-redis")

	for range 5 {
		d, err := limiter.CheckAndIncrement(ctx, id, models.TierAnonymous)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := limiter.CheckAndIncrement(ctx, id, models.TierAnonymous)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, 2*time.Minute, mr.TTL(keys[0]))

	t.Run("store failure allows with error", func(t *testing.T) {
		mr.SetError("ERR simulated failure")
		t.Cleanup(func() { mr.SetError("") })

		d, err := limiter.CheckAndIncrement(ctx, models.AnonymousIdentity("other"), models.TierAnonymous)
		assert.ErrorIs(t, err, cache.ErrStoreUnavailable)
		assert.True(t, d.Allowed)
		assert.Equal(t, 5, d.Limit)
	})
}

// Package ratelimit реализует лимитер с фиксированным окном поверх cache.Store.
//
// Счётчик окна хранится под ключом kvkey.RateWindow с TTL в два окна,
// поэтому старые окна исчезают сами.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/scan-gate/internal/cache"
	"github.com/magabrotheeeer/scan-gate/internal/lib/kvkey"
	"github.com/magabrotheeeer/scan-gate/internal/models"
)

// Limits максимальное число запросов за окно по уровням.
type Limits map[models.Tier]int

// Limiter проверяет и увеличивает счётчик окна.
type Limiter struct {
	store  cache.Store
	window time.Duration
	limits Limits
	now    func() time.Time
}

// Option настраивает Limiter.
type Option func(*Limiter)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New создаёт Limiter. Уровень без явного лимита получает лимит анонимного.
func New(store cache.Store, window time.Duration, limits Limits, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		window: window,
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit возвращает лимит для уровня.
func (l *Limiter) Limit(tier models.Tier) int {
	if n, ok := l.limits[tier]; ok {
		return n
	}
	return l.limits[models.TierAnonymous]
}

// Window возвращает длину окна.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// CheckAndIncrement считает запрос в текущем окне.
// Отклонённый запрос счётчик не увеличивает. При ошибке хранилища возвращается
// разрешающее решение вместе с ошибкой: что делать дальше, решает вызывающий.
func (l *Limiter) CheckAndIncrement(ctx context.Context, identity models.Identity, tier models.Tier) (models.RateDecision, error) {
	const op = "ratelimit.CheckAndIncrement"

	now := l.now()
	start := l.windowStart(now)
	resetAt := start.Add(l.window)
	limit := l.Limit(tier)
	key := kvkey.RateWindow{Tier: tier, Identity: identity, WindowStart: start}.String()

	decision := models.RateDecision{
		Allowed:   true,
		Limit:     limit,
		Remaining: max(0, limit-1),
		ResetAt:   resetAt,
	}

	var count int
	if _, err := l.store.Get(ctx, key, &count); err != nil {
		return decision, fmt.Errorf("%s: %w", op, err)
	}

	if count >= limit {
		return models.RateDecision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}

	if err := l.store.Set(ctx, key, count+1, 2*l.window); err != nil {
		return decision, fmt.Errorf("%s: %w", op, err)
	}
	decision.Remaining = max(0, limit-count-1)
	return decision, nil
}

// windowStart округляет момент вниз до кратного окну от эпохи Unix.
func (l *Limiter) windowStart(now time.Time) time.Time {
	ms := now.UnixMilli()
	w := l.window.Milliseconds()
	if w <= 0 {
		return now
	}
	return time.UnixMilli(ms - ms%w).UTC()
}

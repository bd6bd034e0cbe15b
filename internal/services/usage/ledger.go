// Package usage ведёт учёт бесплатного использования: счётчики анонимных
// идентичностей, остаток бесплатных проверок аккаунта и перенос анонимного
// использования в аккаунт при входе.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/scan-gate/internal/cache"
	"github.com/magabrotheeeer/scan-gate/internal/lib/kvkey"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/models"
)

var (
	// ErrQuotaExceeded бесплатный лимит исчерпан.
	ErrQuotaExceeded = errors.New("free quota exceeded")
	// ErrAlreadyMigrated анонимная идентичность уже перенесена в аккаунт.
	ErrAlreadyMigrated = errors.New("anonymous identity already migrated")
	// ErrAccountNotFound запись аккаунта отсутствует.
	ErrAccountNotFound = errors.New("account not found")
	// ErrNotAnonymous для миграции передана не анонимная идентичность.
	ErrNotAnonymous = errors.New("identity is not anonymous")
)

// Ledger реализует проверку и списание квоты поверх cache.Store.
//
// Чтение и запись счётчика не атомарны: два параллельных запроса одной
// идентичности могут прочитать одно значение и потерять одно списание.
type Ledger struct {
	store     cache.Store
	log       *slog.Logger
	freeLimit int
	linkBonus int
	now       func() time.Time
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New создаёт Ledger с бесплатным лимитом и бонусом за привязку аккаунта.
func New(store cache.Store, log *slog.Logger, freeLimit, linkBonus int, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		log:       log,
		freeLimit: freeLimit,
		linkBonus: linkBonus,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FreeLimit возвращает бесплатный лимит анонимной идентичности.
func (l *Ledger) FreeLimit() int {
	return l.freeLimit
}

// CheckAndConsume проверяет, можно ли выполнить одну проверку, и списывает её.
// Премиум никогда не списывает счётчики. При отказе возвращается ErrQuotaExceeded,
// при недоступности хранилища возвращается обёрнутая cache.ErrStoreUnavailable.
func (l *Ledger) CheckAndConsume(ctx context.Context, identity models.Identity, tier models.Tier) (models.Consumption, error) {
	const op = "usage.CheckAndConsume"

	switch tier {
	case models.TierPremium:
		return models.Consumption{Allowed: true, Unlimited: true}, nil
	case models.TierAuthenticatedFree:
		c, err := l.consumeAccount(ctx, identity.Subject())
		if err != nil {
			return c, fmt.Errorf("%s: %w", op, err)
		}
		return c, nil
	default:
		c, err := l.consumeAnonymous(ctx, identity)
		if err != nil {
			return c, fmt.Errorf("%s: %w", op, err)
		}
		return c, nil
	}
}

func (l *Ledger) consumeAccount(ctx context.Context, accountID string) (models.Consumption, error) {
	var account models.Account
	found, err := l.store.Get(ctx, kvkey.Account(accountID), &account)
	if err != nil {
		return models.Consumption{}, err
	}
	if !found {
		return models.Consumption{}, ErrAccountNotFound
	}
	if account.IsPremium {
		return models.Consumption{Allowed: true, Unlimited: true}, nil
	}
	if account.FreeUsesRemaining <= 0 {
		return models.Consumption{Allowed: false, Remaining: 0}, ErrQuotaExceeded
	}

	account.FreeUsesRemaining--
	account.TotalScans++
	account.LastActiveAt = l.now()
	if err := l.store.Set(ctx, kvkey.Account(accountID), account, 0); err != nil {
		return models.Consumption{}, err
	}
	return models.Consumption{Allowed: true, Remaining: account.FreeUsesRemaining}, nil
}

// consumeAnonymous списывает анонимную квоту. Идентичность, перенесённая в
// аккаунт, считается исчерпанной: её запись удалена при переносе.
func (l *Ledger) consumeAnonymous(ctx context.Context, identity models.Identity) (models.Consumption, error) {
	var rec models.AnonymousUsage
	found, err := l.store.Get(ctx, kvkey.Usage(identity), &rec)
	if err != nil {
		return models.Consumption{}, err
	}
	if !found {
		_, migrated, err := l.MigratedTo(ctx, identity)
		if err != nil {
			return models.Consumption{}, err
		}
		if migrated {
			return models.Consumption{Allowed: false, Remaining: 0}, ErrQuotaExceeded
		}
	}
	if rec.PremiumOverride {
		return models.Consumption{Allowed: true, Unlimited: true}, nil
	}
	if rec.Used >= l.freeLimit {
		return models.Consumption{Allowed: false, Remaining: 0}, ErrQuotaExceeded
	}

	rec.Used++
	if err := l.store.Set(ctx, kvkey.Usage(identity), rec, 0); err != nil {
		return models.Consumption{}, err
	}
	return models.Consumption{Allowed: true, Remaining: l.freeLimit - rec.Used}, nil
}

// Snapshot возвращает текущее использование без изменения счётчиков.
func (l *Ledger) Snapshot(ctx context.Context, resolved models.ResolvedIdentity) (models.UsageSnapshot, error) {
	const op = "usage.Snapshot"

	if resolved.Authenticated() && resolved.Account != nil {
		acc := resolved.Account
		used := l.freeLimit - acc.FreeUsesRemaining
		if used < 0 {
			used = 0
		}
		return models.UsageSnapshot{
			Used:          used,
			Limit:         l.freeLimit,
			Premium:       acc.IsPremium,
			Authenticated: true,
		}, nil
	}

	var rec models.AnonymousUsage
	found, err := l.store.Get(ctx, kvkey.Usage(resolved.Identity), &rec)
	if err != nil {
		return models.UsageSnapshot{}, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		_, migrated, err := l.MigratedTo(ctx, resolved.Identity)
		if err != nil {
			return models.UsageSnapshot{}, fmt.Errorf("%s: %w", op, err)
		}
		if migrated {
			rec.Used = l.freeLimit
		}
	}
	return models.UsageSnapshot{
		Used:    rec.Used,
		Limit:   l.freeLimit,
		Premium: rec.PremiumOverride,
	}, nil
}

// Migrate переносит анонимное использование в аккаунт. Повторный вызов для той же
// анонимной идентичности возвращает ErrAlreadyMigrated и ничего не меняет.
// Отсутствие анонимной записи не ошибка: возвращается Migrated == false.
func (l *Ledger) Migrate(ctx context.Context, anonymous models.Identity, accountID string) (models.MigrationResult, error) {
	const op = "usage.Migrate"
	log := l.log.With(sl.Op(op), slog.String("anonymous", anonymous.String()), slog.String("account_id", accountID))

	if anonymous == "" || anonymous.IsAuthenticated() {
		return models.MigrationResult{}, fmt.Errorf("%s: %w", op, ErrNotAnonymous)
	}

	var marker models.MigrationMarker
	found, err := l.store.Get(ctx, kvkey.Migration(anonymous), &marker)
	if err != nil {
		return models.MigrationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if found {
		return models.MigrationResult{}, fmt.Errorf("%s: %w", op, ErrAlreadyMigrated)
	}

	var account models.Account
	found, err = l.store.Get(ctx, kvkey.Account(accountID), &account)
	if err != nil {
		return models.MigrationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return models.MigrationResult{}, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}

	var rec models.AnonymousUsage
	found, err = l.store.Get(ctx, kvkey.Usage(anonymous), &rec)
	if err != nil {
		return models.MigrationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return models.MigrationResult{Migrated: false, Account: &account}, nil
	}

	free := l.freeLimit + l.linkBonus - rec.Used
	if free < 0 {
		free = 0
	}
	account.FreeUsesRemaining = free
	account.TotalScans = rec.Used
	if rec.PremiumOverride {
		account.IsPremium = true
	}
	account.LastActiveAt = l.now()

	if err := l.store.Set(ctx, kvkey.Account(accountID), account, 0); err != nil {
		return models.MigrationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := l.store.Set(ctx, kvkey.Migration(anonymous),
		models.MigrationMarker{AccountID: accountID, MigratedAt: l.now()}, 0); err != nil {
		return models.MigrationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := l.store.Delete(ctx, kvkey.Usage(anonymous)); err != nil {
		log.Warn("migrated usage record was not deleted", sl.Err(err))
	}

	log.Info("anonymous usage migrated", slog.Int("used", rec.Used), slog.Int("free_uses_remaining", free))
	return models.MigrationResult{
		Migrated:      true,
		MigratedScans: rec.Used,
		BonusUses:     l.linkBonus,
		Account:       &account,
	}, nil
}

// MigratedTo возвращает аккаунт, в который была перенесена анонимная идентичность.
func (l *Ledger) MigratedTo(ctx context.Context, anonymous models.Identity) (string, bool, error) {
	const op = "usage.MigratedTo"
	var marker models.MigrationMarker
	found, err := l.store.Get(ctx, kvkey.Migration(anonymous), &marker)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return marker.AccountID, found, nil
}

// RecordFlag увеличивает счётчик найденных угроз аккаунта.
func (l *Ledger) RecordFlag(ctx context.Context, accountID string) error {
	const op = "usage.RecordFlag"
	var account models.Account
	found, err := l.store.Get(ctx, kvkey.Account(accountID), &account)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	account.TotalFlags++
	if err := l.store.Set(ctx, kvkey.Account(accountID), account, 0); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

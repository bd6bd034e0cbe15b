// Package billing применяет проверенные платёжные события к аккаунтам
// и анонимным идентичностям.
//
// События приходят от коллаборатора, который проверяет подпись вебхука
// платёжного провайдера и публикует BillingEvent в очередь.
package billing

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
	// ErrStaleEvent событие старше последнего применённого к цели.
	ErrStaleEvent = errors.New("stale billing event")
	// ErrDuplicateEvent событие с таким event_id уже применено.
	ErrDuplicateEvent = errors.New("duplicate billing event")
	// ErrUnknownTarget не удалось определить аккаунт или анонимную идентичность.
	ErrUnknownTarget = errors.New("unknown billing target")
)

// Типы событий.
const (
	EventCheckoutCompleted   = "checkout.completed"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
	EventSubscriptionPaused  = "subscription.paused"
	EventInvoicePaid         = "invoice.paid"
)

const dedupeTTL = 30 * 24 * time.Hour

// Event платёжное событие из очереди.
type Event struct {
	EventID           string     `json:"event_id" validate:"required"`
	Type              string     `json:"type" validate:"required,oneof=checkout.completed subscription.updated subscription.deleted subscription.paused invoice.paid"`
	OccurredAt        time.Time  `json:"occurred_at" validate:"required"`
	AccountID         string     `json:"account_id,omitempty"`
	AnonymousID       string     `json:"anonymous_id,omitempty"`
	CustomerID        string     `json:"customer_id,omitempty"`
	SubscriptionID    string     `json:"subscription_id,omitempty"`
	Plan              string     `json:"plan,omitempty"`
	Status            string     `json:"status,omitempty"`
	PeriodEnd         *time.Time `json:"period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	AmountCents       int64      `json:"amount_cents" validate:"gte=0"`
}

// changesState сообщает, меняет ли событие состояние подписки.
// Только такие события проверяются на устаревание.
func (e Event) changesState() bool {
	return e.Type != EventInvoicePaid
}

// customerOwner владелец customer_id у платёжного провайдера.
type customerOwner struct {
	AccountID   string `json:"account_id,omitempty"`
	AnonymousID string `json:"anonymous_id,omitempty"`
}

// Migrations сообщает, в какой аккаунт перенесена анонимная идентичность.
type Migrations interface {
	MigratedTo(ctx context.Context, anonymous models.Identity) (string, bool, error)
}

// Service применяет события к хранилищу.
type Service struct {
	store      cache.Store
	migrations Migrations
	log        *slog.Logger
}

// NewService создаёт Service.
func NewService(store cache.Store, migrations Migrations, log *slog.Logger) *Service {
	return &Service{
		store:      store,
		migrations: migrations,
		log:        log,
	}
}

// Apply применяет событие. ErrDuplicateEvent и ErrStaleEvent означают,
// что событие безопасно подтвердить без изменений.
func (s *Service) Apply(ctx context.Context, ev Event) error {
	const op = "billing.Apply"
	log := s.log.With(sl.Op(op), slog.String("event_id", ev.EventID), slog.String("type", ev.Type))

	var seen time.Time
	found, err := s.store.Get(ctx, kvkey.BillingEvent(ev.EventID), &seen)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if found {
		return fmt.Errorf("%s: %w", op, ErrDuplicateEvent)
	}

	accountID, anonymous, err := s.target(ctx, ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if accountID != "" {
		err = s.applyToAccount(ctx, accountID, ev)
	} else {
		err = s.applyToAnonymous(ctx, anonymous, ev)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if ev.Type == EventCheckoutCompleted && ev.CustomerID != "" {
		owner := customerOwner{AccountID: accountID}
		if accountID == "" {
			owner.AnonymousID = anonymous.Subject()
		}
		if err := s.store.Set(ctx, kvkey.CustomerOwner(ev.CustomerID), owner, 0); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.store.Set(ctx, kvkey.BillingEvent(ev.EventID), ev.OccurredAt, dedupeTTL); err != nil {
		log.Warn("failed to store dedupe marker", sl.Err(err))
	}
	log.Info("billing event applied", slog.String("account_id", accountID), slog.String("anonymous", anonymous.String()))
	return nil
}

// target определяет цель события. Анонимная идентичность, уже перенесённая
// в аккаунт, заменяется этим аккаунтом.
func (s *Service) target(ctx context.Context, ev Event) (string, models.Identity, error) {
	accountID, anonymousID := ev.AccountID, ev.AnonymousID

	if accountID == "" && anonymousID == "" && ev.CustomerID != "" {
		var owner customerOwner
		found, err := s.store.Get(ctx, kvkey.CustomerOwner(ev.CustomerID), &owner)
		if err != nil {
			return "", "", err
		}
		if found {
			accountID, anonymousID = owner.AccountID, owner.AnonymousID
		}
	}

	if accountID != "" {
		return accountID, "", nil
	}
	if anonymousID == "" {
		return "", "", ErrUnknownTarget
	}

	anonymous := models.AnonymousIdentity(anonymousID)
	migratedTo, migrated, err := s.migrations.MigratedTo(ctx, anonymous)
	if err != nil {
		return "", "", err
	}
	if migrated {
		return migratedTo, "", nil
	}
	return "", anonymous, nil
}

func (s *Service) applyToAccount(ctx context.Context, accountID string, ev Event) error {
	var account models.Account
	found, err := s.store.Get(ctx, kvkey.Account(accountID), &account)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownTarget
	}

	b := &account.Billing
	if ev.changesState() {
		if b.LastEventAt != nil && ev.OccurredAt.Before(*b.LastEventAt) {
			return ErrStaleEvent
		}
		occurred := ev.OccurredAt
		b.LastEventAt = &occurred
	}

	if ev.CustomerID != "" {
		b.CustomerID = ev.CustomerID
	}
	if ev.SubscriptionID != "" {
		b.SubscriptionID = ev.SubscriptionID
	}
	if ev.Plan != "" {
		b.Plan = ev.Plan
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		account.IsPremium = true
		b.Status = statusOr(ev.Status, "active")
		recordPayment(b, ev)
	case EventSubscriptionUpdated:
		b.Status = ev.Status
		b.PeriodEnd = ev.PeriodEnd
		b.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
		account.IsPremium = premiumStatus(ev.Status)
	case EventSubscriptionDeleted:
		account.IsPremium = false
		b.Status = statusOr(ev.Status, "canceled")
		b.CancelAtPeriodEnd = false
	case EventSubscriptionPaused:
		account.IsPremium = false
		b.Status = statusOr(ev.Status, "paused")
	case EventInvoicePaid:
		recordPayment(b, ev)
	}

	return s.store.Set(ctx, kvkey.Account(accountID), account, 0)
}

func (s *Service) applyToAnonymous(ctx context.Context, anonymous models.Identity, ev Event) error {
	var rec models.AnonymousUsage
	if _, err := s.store.Get(ctx, kvkey.Usage(anonymous), &rec); err != nil {
		return err
	}

	if ev.changesState() {
		if rec.LastEventAt != nil && ev.OccurredAt.Before(*rec.LastEventAt) {
			return ErrStaleEvent
		}
		occurred := ev.OccurredAt
		rec.LastEventAt = &occurred
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		rec.PremiumOverride = true
	case EventSubscriptionUpdated:
		rec.PremiumOverride = premiumStatus(ev.Status)
	case EventSubscriptionDeleted, EventSubscriptionPaused:
		rec.PremiumOverride = false
	case EventInvoicePaid:
		return nil
	}
	return s.store.Set(ctx, kvkey.Usage(anonymous), rec, 0)
}

func recordPayment(b *models.Billing, ev Event) {
	if ev.AmountCents <= 0 {
		return
	}
	for _, p := range b.PaymentHistory {
		if p.EventID == ev.EventID {
			return
		}
	}
	b.PaymentHistory = append(b.PaymentHistory, models.PaymentEvent{
		EventID:     ev.EventID,
		Type:        ev.Type,
		AmountCents: ev.AmountCents,
		OccurredAt:  ev.OccurredAt,
	})
	b.LifetimeValueCents += ev.AmountCents
}

func premiumStatus(status string) bool {
	return status == "active" || status == "trialing"
}

func statusOr(status, fallback string) string {
	if status == "" {
		return fallback
	}
	return status
}

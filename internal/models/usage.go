package models

import "time"

// AnonymousUsage счётчик использования для анонимной идентичности.
// PremiumOverride выставляется оплатой, сделанной до входа в аккаунт.
type AnonymousUsage struct {
	Used            int        `json:"used"`
	PremiumOverride bool       `json:"premium_override"`
	LastEventAt     *time.Time `json:"last_event_at,omitempty"`
}

// MigrationMarker отметка о том, что анонимная идентичность уже перенесена в аккаунт.
type MigrationMarker struct {
	AccountID  string    `json:"account_id"`
	MigratedAt time.Time `json:"migrated_at"`
}

// Consumption результат списания бесплатного использования.
type Consumption struct {
	Allowed   bool
	Remaining int
	// Unlimited true для премиума, Remaining тогда не используется.
	Unlimited bool
}

// UsageSnapshot состояние квоты для эндпоинта /usage.
type UsageSnapshot struct {
	Used          int  `json:"used"`
	Limit         int  `json:"limit"`
	Premium       bool `json:"premium"`
	Authenticated bool `json:"authenticated"`
}

// MigrationResult итог переноса анонимного использования в аккаунт.
type MigrationResult struct {
	Migrated      bool
	MigratedScans int
	BonusUses     int
	Account       *Account
}

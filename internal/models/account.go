package models

import "time"

// Account хранимая запись пользователя, ключом служит account_id.
//
// FreeUsesRemaining имеет смысл только при IsPremium == false.
type Account struct {
	AccountID         string    `json:"account_id"`
	Email             string    `json:"email,omitempty"`
	DisplayName       string    `json:"display_name,omitempty"`
	AvatarURL         string    `json:"avatar_url,omitempty"`
	FreeUsesRemaining int       `json:"free_uses_remaining"`
	TotalScans        int       `json:"total_scans"`
	TotalFlags        int       `json:"total_flags"`
	IsPremium         bool      `json:"is_premium"`
	CreatedAt         time.Time `json:"created_at"`
	LastActiveAt      time.Time `json:"last_active_at"`
	Billing           Billing   `json:"billing"`
}

// Billing биллинговое состояние аккаунта. Пишется потребителем платёжных событий.
type Billing struct {
	CustomerID         string         `json:"customer_id,omitempty"`
	SubscriptionID     string         `json:"subscription_id,omitempty"`
	Plan               string         `json:"plan,omitempty"`
	Status             string         `json:"status,omitempty"`
	PeriodEnd          *time.Time     `json:"period_end,omitempty"`
	CancelAtPeriodEnd  bool           `json:"cancel_at_period_end"`
	PaymentHistory     []PaymentEvent `json:"payment_history,omitempty"`
	LifetimeValueCents int64          `json:"lifetime_value_cents"`
	LastEventAt        *time.Time     `json:"last_event_at,omitempty"`
}

// PaymentEvent запись об оплате в истории аккаунта.
type PaymentEvent struct {
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// SafetyScore процент "чистых" проверок от всей активности, 0 при отсутствии активности.
func (a *Account) SafetyScore() int {
	total := a.TotalScans + a.TotalFlags
	if total <= 0 {
		return 0
	}
	return int(float64(a.TotalScans)/float64(total)*100 + 0.5)
}

// SessionMarker серверная отметка живой сессии. Отсутствие маркера означает выход.
type SessionMarker struct {
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountView представление аккаунта для клиента.
type AccountView struct {
	AccountID         string    `json:"account_id"`
	Email             string    `json:"email,omitempty"`
	DisplayName       string    `json:"display_name,omitempty"`
	AvatarURL         string    `json:"avatar_url,omitempty"`
	FreeUsesRemaining int       `json:"free_uses_remaining"`
	TotalScans        int       `json:"total_scans"`
	TotalFlags        int       `json:"total_flags"`
	SafetyScore       int       `json:"safety_score"`
	IsPremium         bool      `json:"is_premium"`
	Plan              string    `json:"plan,omitempty"`
	SubscriptionState string    `json:"subscription_status,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastActiveAt      time.Time `json:"last_active_at"`
}

// View возвращает представление аккаунта без платёжной истории.
func (a *Account) View() AccountView {
	return AccountView{
		AccountID:         a.AccountID,
		Email:             a.Email,
		DisplayName:       a.DisplayName,
		AvatarURL:         a.AvatarURL,
		FreeUsesRemaining: a.FreeUsesRemaining,
		TotalScans:        a.TotalScans,
		TotalFlags:        a.TotalFlags,
		SafetyScore:       a.SafetyScore(),
		IsPremium:         a.IsPremium,
		Plan:              a.Billing.Plan,
		SubscriptionState: a.Billing.Status,
		CreatedAt:         a.CreatedAt,
		LastActiveAt:      a.LastActiveAt,
	}
}

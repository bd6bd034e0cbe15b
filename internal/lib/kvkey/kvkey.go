// Package kvkey строит ключи хранилища. Все ключи формируются только здесь,
// чтобы пространства имён не пересекались.
package kvkey

import (
	"fmt"
	"time"

	"github.com/magabrotheeeer/scan-gate/internal/models"
)

// Account ключ записи аккаунта.
func Account(accountID string) string {
	return "account:" + accountID
}

// Session ключ маркера сессии аккаунта.
func Session(accountID string) string {
	return "session:" + accountID
}

// Usage ключ анонимного счётчика использования.
func Usage(identity models.Identity) string {
	return "usage:" + identity.String()
}

// Migration ключ отметки о выполненной миграции анонимной идентичности.
func Migration(identity models.Identity) string {
	return "migrated:" + identity.String()
}

// BillingEvent ключ дедупликации платёжного события.
func BillingEvent(eventID string) string {
	return "billing_event:" + eventID
}

// CustomerOwner ключ обратного отображения customer_id -> владелец.
func CustomerOwner(customerID string) string {
	return "customer_owner:" + customerID
}

// RateWindow составной ключ счётчика окна лимитера.
type RateWindow struct {
	Tier        models.Tier
	Identity    models.Identity
	WindowStart time.Time
}

// String сериализует ключ. Идентичность идёт последней, так как может содержать ':'.
func (k RateWindow) String() string {
	return fmt.Sprintf("ratelimit:%s:%d:%s", k.Tier, k.WindowStart.UnixMilli(), k.Identity)
}

package jwt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Устаревшая схема: base64 от JSON без подписи. Существует только для того,
// чтобы не разлогинить пользователей с уже выданными токенами.

// legacyPayload формат старых токенов. exp задан как unix-время в миллисекундах.
type legacyPayload struct {
	AccountID string `json:"google_id"`
	Email     string `json:"email,omitempty"`
	Exp       int64  `json:"exp"`
}

var legacyEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func decodeLegacy(raw string) (*legacyPayload, bool) {
	raw = strings.TrimSpace(raw)
	for _, enc := range legacyEncodings {
		data, err := enc.DecodeString(raw)
		if err != nil {
			continue
		}
		var p legacyPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, false
		}
		if p.AccountID == "" || p.Exp == 0 {
			return nil, false
		}
		return &p, true
	}
	return nil, false
}

// IsLegacy сообщает, декодируется ли строка в объект с идентификатором аккаунта и сроком.
func IsLegacy(raw string) bool {
	_, ok := decodeLegacy(raw)
	return ok
}

func parseLegacy(raw string, now time.Time) (*Session, error) {
	const op = "jwt.parseLegacy"
	p, ok := decodeLegacy(raw)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNoValidCredential)
	}
	expiresAt := time.UnixMilli(p.Exp)
	if !now.Before(expiresAt) {
		return nil, fmt.Errorf("%s: %w", op, ErrExpired)
	}
	return &Session{
		AccountID: p.AccountID,
		Email:     p.Email,
		ExpiresAt: expiresAt,
		Scheme:    SchemeLegacy,
	}, nil
}

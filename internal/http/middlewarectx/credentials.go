// Package middlewarectx содержит HTTP middleware и помощники для извлечения
// учётных данных, разрешения идентичности и ответа на решения гейта.
package middlewarectx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/magabrotheeeer/scan-gate/internal/services/identity"
)

const (
	// SessionTokenName имя cookie и query-параметра с токеном сессии.
	SessionTokenName = "session_token"
	maxPeekBody      = 64 << 10
)

// Credentials извлекает сырые учётные данные запроса. Токен ищется в заголовке
// Authorization, cookie session_token и query session_token, в этом порядке.
// Отпечаток берётся из поля fingerprint JSON-тела, тело при этом сохраняется
// для следующего обработчика.
func Credentials(r *http.Request, cookieName string) identity.Credentials {
	return CredentialsWithFingerprint(r, cookieName, peekFingerprint(r))
}

// CredentialsWithFingerprint как Credentials, но отпечаток уже известен
// обработчику, и тело запроса не читается.
func CredentialsWithFingerprint(r *http.Request, cookieName, fingerprint string) identity.Credentials {
	creds := identity.Credentials{
		Bearer:      BearerToken(r),
		Fingerprint: fingerprint,
	}
	if c, err := r.Cookie(cookieName); err == nil {
		creds.CookieID = c.Value
	}
	return creds
}

// BearerToken возвращает токен сессии из запроса или пустую строку.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionTokenName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get(SessionTokenName)
}

func peekFingerprint(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
	if err != nil || len(buf) > maxPeekBody {
		return ""
	}

	var body struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.Unmarshal(buf, &body); err != nil {
		return ""
	}
	return body.Fingerprint
}

// Package models содержит доменные структуры сервиса: идентичность вызывающего,
// уровни доверия, аккаунты, анонимное использование и решения лимитера.
package models

import "strings"

const (
	authenticatedPrefix = "authenticated:"
	anonymousPrefix     = "anonymous:"
)

// Identity канонический ключ вызывающей стороны.
// Либо "authenticated:<account_id>", либо "anonymous:<fingerprint_or_uuid>".
type Identity string

// AuthenticatedIdentity строит идентичность для проверенного аккаунта.
func AuthenticatedIdentity(accountID string) Identity {
	return Identity(authenticatedPrefix + accountID)
}

// AnonymousIdentity строит идентичность для отпечатка устройства или cookie.
func AnonymousIdentity(id string) Identity {
	return Identity(anonymousPrefix + id)
}

// IsAuthenticated сообщает, принадлежит ли идентичность аккаунту.
func (i Identity) IsAuthenticated() bool {
	return strings.HasPrefix(string(i), authenticatedPrefix)
}

// Subject возвращает часть после префикса: account_id или анонимный id.
func (i Identity) Subject() string {
	s := string(i)
	if rest, ok := strings.CutPrefix(s, authenticatedPrefix); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(s, anonymousPrefix); ok {
		return rest
	}
	return s
}

func (i Identity) String() string {
	return string(i)
}

// Kind способ, которым была установлена идентичность.
type Kind string

const (
	KindAuthenticated Kind = "authenticated"
	KindAnonymous     Kind = "anonymous"
)

// Tier уровень доверия/квоты.
type Tier string

const (
	TierAnonymous         Tier = "anonymous"
	TierAuthenticatedFree Tier = "free"
	TierPremium           Tier = "premium"
)

// TierFor вычисляет уровень по факту аутентификации и премиум-флагу аккаунта.
func TierFor(authenticated, premium bool) Tier {
	switch {
	case authenticated && premium:
		return TierPremium
	case authenticated:
		return TierAuthenticatedFree
	default:
		return TierAnonymous
	}
}

// Source откуда взялась анонимная идентичность.
type Source string

const (
	SourceToken       Source = "token"
	SourceFingerprint Source = "fingerprint"
	SourceCookie      Source = "cookie"
	SourceNewCookie   Source = "new_cookie"
)

// ResolvedIdentity результат разрешения учётных данных запроса.
type ResolvedIdentity struct {
	Kind     Kind
	Identity Identity
	Tier     Tier
	Source   Source
	// Account заполнен только для KindAuthenticated.
	Account *Account
	// Anonymous идентичность устройства/cookie, даже если запрос аутентифицирован.
	// Используется при привязке аккаунта.
	Anonymous Identity
	// NewCookie не пуст, если был сгенерирован новый идентификатор для cookie.
	NewCookie string
}

// Authenticated сообщает, аутентифицирован ли вызывающий.
func (r ResolvedIdentity) Authenticated() bool {
	return r.Kind == KindAuthenticated
}

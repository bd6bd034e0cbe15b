// Package jwt реализует кодек токенов сессии.
//
// Поддерживаются две схемы: текущая (подписанный HS256 JWT) и устаревшая
// (base64 от JSON без подписи). Схема определяется чистой функцией Classify
// до проверки токена.
package jwt

import (
	"errors"
	"time"
)

var (
	// ErrInvalidSignature подпись или структура токена не прошли проверку.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired срок действия токена истёк.
	ErrExpired = errors.New("token expired")
	// ErrNoValidCredential строка не похожа ни на одну известную схему.
	ErrNoValidCredential = errors.New("no valid credential")
	// ErrLegacyDisabled устаревший токен, приём которых выключен.
	ErrLegacyDisabled = errors.New("legacy tokens are disabled")
)

// Session данные, извлечённые из проверенного токена.
type Session struct {
	AccountID string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Scheme    Scheme
}

// Maker описывает интерфейс для выпуска и проверки токенов сессии.
type Maker interface {
	// GenerateToken выпускает токен текущей схемы и возвращает момент его истечения.
	GenerateToken(accountID, email string) (string, time.Time, error)
	// ParseToken проверяет токен любой поддерживаемой схемы.
	ParseToken(tokenStr string) (*Session, error)
}

// MakerImpl реализует Maker с использованием секретного ключа и времени жизни токена.
type MakerImpl struct {
	secretKey    []byte
	tokenTTL     time.Duration
	acceptLegacy bool
	now          func() time.Time
}

// Option настраивает MakerImpl.
type Option func(*MakerImpl)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(m *MakerImpl) {
		m.now = now
	}
}

// WithLegacy включает или выключает приём устаревших токенов.
//
// TODO: удалить вместе с legacy.go, когда истечёт последний выпущенный base64-токен.
func WithLegacy(accept bool) Option {
	return func(m *MakerImpl) {
		m.acceptLegacy = accept
	}
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
// По умолчанию устаревшие токены принимаются.
func NewJWTMaker(secretKey string, ttl time.Duration, opts ...Option) *MakerImpl {
	m := &MakerImpl{
		secretKey:    []byte(secretKey),
		tokenTTL:     ttl,
		acceptLegacy: true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL время жизни выпускаемых токенов.
func (j *MakerImpl) TTL() time.Duration {
	return j.tokenTTL
}

// ParseToken классифицирует токен и проверяет его соответствующей схемой.
func (j *MakerImpl) ParseToken(tokenStr string) (*Session, error) {
	switch Classify(tokenStr) {
	case SchemeSigned:
		return j.parseSigned(tokenStr)
	case SchemeLegacy:
		if !j.acceptLegacy {
			return nil, ErrLegacyDisabled
		}
		return parseLegacy(tokenStr, j.now())
	default:
		return nil, ErrNoValidCredential
	}
}

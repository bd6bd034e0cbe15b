// Package identity разрешает учётные данные запроса в каноническую идентичность
// и уровень доверия.
//
// Порядок: токен (заголовок, cookie, query) -> отпечаток устройства -> cookie
// с постоянным случайным идентификатором. Ошибки разрешения никогда не
// поднимаются наверх: вызывающий понижается до анонимного уровня.
package identity

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/scan-gate/internal/cache"
	"github.com/magabrotheeeer/scan-gate/internal/lib/jwt"
	"github.com/magabrotheeeer/scan-gate/internal/lib/kvkey"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/models"
)

const (
	maxFingerprintLen = 256
	maxCookieIDLen    = 128
)

// Credentials сырые учётные данные, извлечённые из запроса.
type Credentials struct {
	// Bearer токен из Authorization, cookie session_token или query, в этом приоритете.
	Bearer      string
	Fingerprint string
	// CookieID значение cookie с анонимным идентификатором.
	CookieID string
}

// TokenParser проверяет токены сессии.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.Session, error)
}

// Resolver превращает Credentials в models.ResolvedIdentity.
type Resolver struct {
	store             cache.Store
	tokens            TokenParser
	log               *slog.Logger
	fingerprintMinLen int
	newID             func() string
}

// Option настраивает Resolver.
type Option func(*Resolver)

// WithIDGenerator подменяет генератор идентификаторов для новой cookie.
func WithIDGenerator(gen func() string) Option {
	return func(r *Resolver) {
		r.newID = gen
	}
}

// NewResolver создаёт Resolver. fingerprintMinLen минимальная длина отпечатка.
// Это проверка на правдоподобие, а не граница безопасности: отпечаток присылает клиент.
func NewResolver(store cache.Store, tokens TokenParser, log *slog.Logger, fingerprintMinLen int, opts ...Option) *Resolver {
	r := &Resolver{
		store:             store,
		tokens:            tokens,
		log:               log,
		fingerprintMinLen: fingerprintMinLen,
		newID:             func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve определяет идентичность вызывающего. Единственный побочный эффект:
// генерация нового идентификатора для cookie, если иных данных нет.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) models.ResolvedIdentity {
	const op = "identity.Resolve"
	log := r.log.With(sl.Op(op))

	anon, source := r.anonymous(creds)

	if creds.Bearer != "" {
		account, ok := r.authenticate(ctx, log, creds.Bearer)
		if ok {
			return models.ResolvedIdentity{
				Kind:      models.KindAuthenticated,
				Identity:  models.AuthenticatedIdentity(account.AccountID),
				Tier:      models.TierFor(true, account.IsPremium),
				Source:    models.SourceToken,
				Account:   account,
				Anonymous: anon,
			}
		}
	}

	res := models.ResolvedIdentity{
		Kind:   models.KindAnonymous,
		Tier:   models.TierAnonymous,
		Source: source,
	}
	if anon == "" {
		id := r.newID()
		anon = models.AnonymousIdentity(id)
		res.Source = models.SourceNewCookie
		res.NewCookie = id
	}
	res.Identity = anon
	res.Anonymous = anon
	return res
}

// authenticate проверяет токен, маркер сессии и наличие аккаунта.
// Любая неудача означает "не аутентифицирован", а не ошибку.
func (r *Resolver) authenticate(ctx context.Context, log *slog.Logger, token string) (*models.Account, bool) {
	session, err := r.tokens.ParseToken(token)
	if err != nil {
		log.Debug("bearer credential rejected", sl.Err(err))
		return nil, false
	}

	var marker models.SessionMarker
	found, err := r.store.Get(ctx, kvkey.Session(session.AccountID), &marker)
	if err != nil {
		log.Warn("failed to read session marker, downgrading", sl.Err(err))
		return nil, false
	}
	if !found {
		log.Debug("session marker missing, treating as logged out")
		return nil, false
	}

	var account models.Account
	found, err = r.store.Get(ctx, kvkey.Account(session.AccountID), &account)
	if err != nil {
		log.Warn("failed to load account, downgrading", sl.Err(err))
		return nil, false
	}
	if !found {
		log.Debug("account for valid session not found")
		return nil, false
	}
	return &account, true
}

// anonymous возвращает анонимную идентичность без генерации новой.
func (r *Resolver) anonymous(creds Credentials) (models.Identity, models.Source) {
	if fp := strings.TrimSpace(creds.Fingerprint); r.looksLikeFingerprint(fp) {
		return models.AnonymousIdentity(fp), models.SourceFingerprint
	}
	if id := strings.TrimSpace(creds.CookieID); id != "" && len(id) <= maxCookieIDLen && printable(id) {
		return models.AnonymousIdentity(id), models.SourceCookie
	}
	return "", ""
}

func (r *Resolver) looksLikeFingerprint(fp string) bool {
	return len(fp) >= r.fingerprintMinLen && len(fp) <= maxFingerprintLen && printable(fp)
}

func printable(s string) bool {
	for _, c := range s {
		if !unicode.IsPrint(c) || unicode.IsSpace(c) {
			return false
		}
	}
	return true
}

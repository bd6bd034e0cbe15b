// Package session выпускает и отзывает сессии аккаунтов.
// Вызывается OAuth-коллаборатором после успешного входа и эндпоинтом выхода.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/scan-gate/internal/cache"
	"github.com/magabrotheeeer/scan-gate/internal/lib/jwt"
	"github.com/magabrotheeeer/scan-gate/internal/lib/kvkey"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/models"
)

// Profile данные пользователя от провайдера входа.
type Profile struct {
	AccountID   string `json:"account_id" validate:"required,max=128"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

// LoginResult выпущенный токен и актуальная запись аккаунта.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
	Created   bool
}

// Service управляет аккаунтами и маркерами сессий.
type Service struct {
	store     cache.Store
	tokens    jwt.Maker
	log       *slog.Logger
	tokenTTL  time.Duration
	freeLimit int
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт Service.
func NewService(store cache.Store, tokens jwt.Maker, log *slog.Logger, tokenTTL time.Duration, freeLimit int, opts ...Option) *Service {
	s := &Service{
		store:     store,
		tokens:    tokens,
		log:       log,
		tokenTTL:  tokenTTL,
		freeLimit: freeLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login создаёт аккаунт при первом входе или обновляет профиль,
// записывает маркер сессии и выпускает токен.
func (s *Service) Login(ctx context.Context, p Profile) (*LoginResult, error) {
	const op = "session.Login"
	log := s.log.With(sl.Op(op), slog.String("account_id", p.AccountID))
	now := s.now()

	var account models.Account
	found, err := s.store.Get(ctx, kvkey.Account(p.AccountID), &account)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		account = models.Account{
			AccountID:         p.AccountID,
			FreeUsesRemaining: s.freeLimit,
			CreatedAt:         now,
		}
	}
	if p.Email != "" {
		account.Email = p.Email
	}
	if p.DisplayName != "" {
		account.DisplayName = p.DisplayName
	}
	if p.AvatarURL != "" {
		account.AvatarURL = p.AvatarURL
	}
	account.LastActiveAt = now

	if err := s.store.Set(ctx, kvkey.Account(p.AccountID), account, 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	marker := models.SessionMarker{AccountID: p.AccountID, CreatedAt: now}
	if err := s.store.Set(ctx, kvkey.Session(p.AccountID), marker, s.tokenTTL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token, expiresAt, err := s.tokens.GenerateToken(account.AccountID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !found {
		log.Info("account created")
	} else {
		log.Debug("session refreshed")
	}
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Account:   &account,
		Created:   !found,
	}, nil
}

// Logout удаляет маркер сессии. Все выпущенные токены аккаунта перестают
// проходить разрешение, даже если ещё не истекли.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	const op = "session.Logout"
	if err := s.store.Delete(ctx, kvkey.Session(accountID)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("session revoked", sl.Op(op), slog.String("account_id", accountID))
	return nil
}

// Package gate принимает решение о допуске запроса к платной операции.
//
// Порядок проверок: разрешение идентичности, лимитер, квота. Лимитер при
// сбое хранилища пропускает запрос, квота при сбое хранилища запрос отклоняет.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/scan-gate/internal/lib/metrics"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/models"
	"github.com/magabrotheeeer/scan-gate/internal/services/identity"
	"github.com/magabrotheeeer/scan-gate/internal/services/usage"
)

// Kind тип решения гейта.
type Kind string

const (
	KindAllow           Kind = "allow"
	KindRateLimited     Kind = "rate_limited"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindUnauthenticated Kind = "unauthenticated"
	KindUnavailable     Kind = "unavailable"
)

// Resolver разрешает учётные данные.
type Resolver interface {
	Resolve(ctx context.Context, creds identity.Credentials) models.ResolvedIdentity
}

// Limiter лимитер запросов.
type Limiter interface {
	CheckAndIncrement(ctx context.Context, id models.Identity, tier models.Tier) (models.RateDecision, error)
}

// Ledger учёт бесплатного использования.
type Ledger interface {
	CheckAndConsume(ctx context.Context, id models.Identity, tier models.Tier) (models.Consumption, error)
}

// Verdict решение по запросу.
type Verdict struct {
	Kind     Kind
	Identity models.ResolvedIdentity
	// Rate nil, если лимитер недоступен.
	Rate  *models.RateDecision
	Usage models.Consumption
	// RetryAfter заполнен для KindRateLimited.
	RetryAfter time.Duration
	// Reason машиночитаемая причина отказа, Hint подсказка для клиента.
	Reason string
	Hint   string
}

// Allowed сообщает, допущен ли запрос.
func (v Verdict) Allowed() bool {
	return v.Kind == KindAllow
}

// Options параметры проверки для конкретного маршрута.
type Options struct {
	// RequireAuth отклоняет неаутентифицированных до лимитера и квоты.
	RequireAuth bool
	// SkipQuota выполняет только лимитер, без списания квоты.
	SkipQuota bool
}

// Gate объединяет Resolver, Limiter и Ledger.
type Gate struct {
	resolver Resolver
	limiter  Limiter
	ledger   Ledger
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New создаёт Gate. m может быть nil.
func New(log *slog.Logger, resolver Resolver, limiter Limiter, ledger Ledger, m *metrics.Metrics) *Gate {
	return &Gate{
		resolver: resolver,
		limiter:  limiter,
		ledger:   ledger,
		metrics:  m,
		log:      log,
	}
}

// Admit проверяет запрос и при допуске списывает одну единицу квоты.
func (g *Gate) Admit(ctx context.Context, creds identity.Credentials, opts Options) Verdict {
	const op = "gate.Admit"

	resolved := g.resolver.Resolve(ctx, creds)
	log := g.log.With(sl.Op(op), sl.Identity(resolved.Identity.String(), string(resolved.Tier)))

	v := g.admit(ctx, log, resolved, opts)
	g.metrics.Verdict(string(v.Kind), string(resolved.Tier))
	return v
}

func (g *Gate) admit(ctx context.Context, log *slog.Logger, resolved models.ResolvedIdentity, opts Options) Verdict {
	v := Verdict{Identity: resolved}

	if opts.RequireAuth && !resolved.Authenticated() {
		v.Kind = KindUnauthenticated
		v.Reason = "authentication_required"
		v.Hint = "sign in to continue"
		return v
	}

	decision, err := g.limiter.CheckAndIncrement(ctx, resolved.Identity, resolved.Tier)
	if err != nil {
		log.Warn("rate limiter store failed, allowing request", sl.Err(err))
		g.metrics.StoreFailure("ratelimit")
	} else {
		v.Rate = &decision
		if !decision.Allowed {
			v.Kind = KindRateLimited
			v.RetryAfter = decision.RetryAfter
			v.Reason = "rate_limited"
			v.Hint = "slow down and retry after the indicated delay"
			return v
		}
	}

	if opts.SkipQuota {
		v.Kind = KindAllow
		return v
	}

	consumption, err := g.ledger.CheckAndConsume(ctx, resolved.Identity, resolved.Tier)
	v.Usage = consumption
	switch {
	case err == nil:
		v.Kind = KindAllow
	case errors.Is(err, usage.ErrQuotaExceeded):
		v.Kind = KindQuotaExceeded
		v.Reason = "free_limit_reached"
		if resolved.Authenticated() {
			v.Hint = "upgrade to premium for unlimited scans"
		} else {
			v.Hint = "sign in to get more free scans"
		}
	default:
		log.Error("usage ledger failed, denying request", sl.Err(err))
		g.metrics.StoreFailure("usage")
		v.Kind = KindUnavailable
		v.Reason = "usage_unavailable"
		v.Hint = "try again later"
	}
	return v
}

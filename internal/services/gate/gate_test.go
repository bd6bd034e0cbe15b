package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/scan-gate/internal/cache"
	"github.com/magabrotheeeer/scan-gate/internal/lib/jwt"
	"github.com/magabrotheeeer/scan-gate/internal/lib/kvkey"
	"github.com/magabrotheeeer/scan-gate/internal/lib/metrics"
	"github.com/magabrotheeeer/scan-gate/internal/models"
	"github.com/magabrotheeeer/scan-gate/internal/services/identity"
	"github.com/magabrotheeeer/scan-gate/internal/services/ratelimit"
	"github.com/magabrotheeeer/scan-gate/internal/services/usage"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, creds identity.Credentials) models.ResolvedIdentity {
	args := m.Called(ctx, creds)
	return args.Get(0).(models.ResolvedIdentity)
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) CheckAndIncrement(ctx context.Context, id models.Identity, tier models.Tier) (models.RateDecision, error) {
	args := m.Called(ctx, id, tier)
	return args.Get(0).(models.RateDecision), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CheckAndConsume(ctx context.Context, id models.Identity, tier models.Tier) (models.Consumption, error) {
	args := m.Called(ctx, id, tier)
	return args.Get(0).(models.Consumption), args.Error(1)
}

var (
	anonID = models.ResolvedIdentity{
		Kind:     models.KindAnonymous,
		Identity: models.AnonymousIdentity("dev-abc123"),
		Tier:     models.TierAnonymous,
		Source:   models.SourceFingerprint,
	}
	freeID = models.ResolvedIdentity{
		Kind:     models.KindAuthenticated,
		Identity: models.AuthenticatedIdentity("acc-1"),
		Tier:     models.TierAuthenticatedFree,
		Source:   models.SourceToken,
		Account:  &models.Account{AccountID: "acc-1"},
	}
)

func TestAdmit(t *testing.T) {
	allowRate := models.RateDecision{Allowed: true, Limit: 5, Remaining: 4}
	creds := identity.Credentials{Fingerprint: "dev-abc123"}

	tests := []struct {
		name       string
		resolved   models.ResolvedIdentity
		opts       Options
		setupMocks func(*MockLimiter, *MockLedger)
		wantKind   Kind
		wantReason string
		wantRate   bool
	}{
		{
			name:     "allow anonymous",
			resolved: anonID,
			setupMocks: func(l *MockLimiter, u *MockLedger) {
				l.On("CheckAndIncrement", mock.Anything, anonID.Identity, models.TierAnonymous).Return(allowRate, nil).Once()
				u.On("CheckAndConsume", mock.Anything, anonID.Identity, models.TierAnonymous).
					Return(models.Consumption{Allowed: true, Remaining: 4}, nil).Once()
			},
			wantKind: KindAllow,
			wantRate: true,
		},
		{
			name:     "rate limited skips ledger",
			resolved: anonID,
			setupMocks: func(l *MockLimiter, _ *MockLedger) {
				l.On("CheckAndIncrement", mock.Anything, anonID.Identity, models.TierAnonymous).
					Return(models.RateDecision{Allowed: false, Limit: 5, RetryAfter: 50 * time.Second}, nil).Once()
			},
			wantKind:   KindRateLimited,
			wantReason: "rate_limited",
			wantRate:   true,
		},
		{
			name:     "quota exceeded",
			resolved: anonID,
			setupMocks: func(l *MockLimiter, u *MockLedger) {
				l.On("CheckAndIncrement", mock.Anything, anonID.Identity, models.TierAnonymous).Return(allowRate, nil).Once()
				u.On("CheckAndConsume", mock.Anything, anonID.Identity, models.TierAnonymous).
					Return(models.Consumption{}, usage.ErrQuotaExceeded).Once()
			},
			wantKind:   KindQuotaExceeded,
			wantReason: "free_limit_reached",
			wantRate:   true,
		},
		{
			name:     "limiter store failure fails open",
			resolved: freeID,
			setupMocks: func(l *MockLimiter, u *MockLedger) {
				l.On("CheckAndIncrement", mock.Anything, freeID.Identity, models.TierAuthenticatedFree).
					Return(models.RateDecision{Allowed: true}, cache.ErrStoreUnavailable).Once()
				u.On("CheckAndConsume", mock.Anything, freeID.Identity, models.TierAuthenticatedFree).
					Return(models.Consumption{Allowed: true, Remaining: 2}, nil).Once()
			},
			wantKind: KindAllow,
		},
		{
			name:     "ledger store failure fails closed",
			resolved: freeID,
			setupMocks: func(l *MockLimiter, u *MockLedger) {
				l.On("CheckAndIncrement", mock.Anything, freeID.Identity, models.TierAuthenticatedFree).Return(allowRate, nil).Once()
				u.On("CheckAndConsume", mock.Anything, freeID.Identity, models.TierAuthenticatedFree).
					Return(models.Consumption{}, errors.New("usage.CheckAndConsume: store down")).Once()
			},
			wantKind:   KindUnavailable,
			wantReason: "usage_unavailable",
			wantRate:   true,
		},
		{
			name:       "require auth rejects anonymous without touching counters",
			resolved:   anonID,
			opts:       Options{RequireAuth: true},
			setupMocks: func(*MockLimiter, *MockLedger) {},
			wantKind:   KindUnauthenticated,
			wantReason: "authentication_required",
		},
		{
			name:     "skip quota",
			resolved: freeID,
			opts:     Options{RequireAuth: true, SkipQuota: true},
			setupMocks: func(l *MockLimiter, _ *MockLedger) {
				l.On("CheckAndIncrement", mock.Anything, freeID.Identity, models.TierAuthenticatedFree).Return(allowRate, nil).Once()
			},
			wantKind: KindAllow,
			wantRate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := new(MockResolver)
			limiter := new(MockLimiter)
			ledger := new(MockLedger)
			resolver.On("Resolve", mock.Anything, creds).Return(tt.resolved).Once()
			tt.setupMocks(limiter, ledger)

			g := New(newNoopLogger(), resolver, limiter, ledger, metrics.New(prometheus.NewRegistry()))
			v := g.Admit(context.Background(), creds, tt.opts)

			assert.Equal(t, tt.wantKind, v.Kind)
			assert.Equal(t, tt.wantReason, v.Reason)
			assert.Equal(t, tt.wantKind == KindAllow, v.Allowed())
			assert.Equal(t, tt.wantRate, v.Rate != nil)
			assert.Equal(t, tt.resolved.Identity, v.Identity.Identity)
			if tt.wantKind == KindRateLimited {
				assert.Equal(t, 50*time.Second, v.RetryAfter)
			}

			resolver.AssertExpectations(t)
			limiter.AssertExpectations(t)
			ledger.AssertExpectations(t)
		})
	}
}

func TestAdmit_Hints(t *testing.T) {
	for _, tt := range []struct {
		name     string
		resolved models.ResolvedIdentity
		want     string
	}{
		{name: "anonymous", resolved: anonID, want: "sign in to get more free scans"},
		{name: "free", resolved: freeID, want: "upgrade to premium for unlimited scans"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			resolver := new(MockResolver)
			limiter := new(MockLimiter)
			ledger := new(MockLedger)
			resolver.On("Resolve", mock.Anything, mock.Anything).Return(tt.resolved)
			limiter.On("CheckAndIncrement", mock.Anything, mock.Anything, mock.Anything).Return(models.RateDecision{Allowed: true}, nil)
			ledger.On("CheckAndConsume", mock.Anything, mock.Anything, mock.Anything).Return(models.Consumption{}, usage.ErrQuotaExceeded)

			v := New(newNoopLogger(), resolver, limiter, ledger, nil).Admit(context.Background(), identity.Credentials{}, Options{})
			assert.Equal(t, tt.want, v.Hint)
		})
	}
}

// TestAdmit_EndToEnd собирает гейт из настоящих компонентов поверх памяти.
func TestAdmit_EndToEnd(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := cache.NewMemory(cache.WithClock(clock))
	log := newNoopLogger()
	maker := jwt.NewJWTMaker("secret", time.Hour, jwt.WithClock(clock))
	resolver := identity.NewResolver(store, maker, log, 8)
	limiter := ratelimit.New(store, time.Minute, ratelimit.Limits{
		models.TierAnonymous:         5,
		models.TierAuthenticatedFree: 10,
		models.TierPremium:           100,
	}, ratelimit.WithClock(clock))
	ledger := usage.New(store, log, 5, 5, usage.WithClock(clock))
	g := New(log, resolver, limiter, ledger, nil)
	ctx := context.Background()

	t.Run("anonymous exhausts free quota across windows", func(t *testing.T) {
		creds := identity.Credentials{Fingerprint: "dev-abc123"}
		for i := range 5 {
			v := g.Admit(ctx, creds, Options{})
			require.Equal(t, KindAllow, v.Kind, "request %d", i)
			assert.Equal(t, 4-i, v.Usage.Remaining)
		}
		v := g.Admit(ctx, creds, Options{})
		assert.Equal(t, KindRateLimited, v.Kind)

		now = now.Add(time.Minute)
		v = g.Admit(ctx, creds, Options{})
		assert.Equal(t, KindQuotaExceeded, v.Kind)
	})

	t.Run("header token beats cookie", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, kvkey.Account("acc-9"), models.Account{AccountID: "acc-9", FreeUsesRemaining: 3}, 0))
		require.NoError(t, store.Set(ctx, kvkey.Session("acc-9"), models.SessionMarker{AccountID: "acc-9"}, time.Hour))
		token, _, err := maker.GenerateToken("acc-9", "")
		require.NoError(t, err)

		v := g.Admit(ctx, identity.Credentials{Bearer: token, CookieID: "cookie-z"}, Options{})
		require.Equal(t, KindAllow, v.Kind)
		assert.Equal(t, models.AuthenticatedIdentity("acc-9"), v.Identity.Identity)
		assert.Equal(t, 2, v.Usage.Remaining)
	})
}

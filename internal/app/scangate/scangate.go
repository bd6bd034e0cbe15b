package scangate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/magabrotheeeer/scan-gate/internal/app/backend"
	"github.com/magabrotheeeer/scan-gate/internal/config"
	"github.com/magabrotheeeer/scan-gate/internal/lib/jwt"
	"github.com/magabrotheeeer/scan-gate/internal/lib/metrics"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/models"
	"github.com/magabrotheeeer/scan-gate/internal/services/gate"
	"github.com/magabrotheeeer/scan-gate/internal/services/identity"
	"github.com/magabrotheeeer/scan-gate/internal/services/ratelimit"
	scansvc "github.com/magabrotheeeer/scan-gate/internal/services/scan"
	sessionsvc "github.com/magabrotheeeer/scan-gate/internal/services/session"
	"github.com/magabrotheeeer/scan-gate/internal/services/sweeper"
	usagesvc "github.com/magabrotheeeer/scan-gate/internal/services/usage"
)

const shutdownTimeout = 15 * time.Second

// App HTTP-приложение гейта.
type App struct {
	server  *http.Server
	logger  *slog.Logger
	backend *backend.Backend
	sweeper *sweeper.Service
}

// New открывает хранилище, собирает сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "scangate.New"

	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, buildServices(b, cfg, logger, prometheus.DefaultRegisterer))

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	app := &App{
		server:  srv,
		logger:  logger,
		backend: b,
	}
	if b.Postgres != nil {
		app.sweeper = sweeper.NewService(b.Postgres, cfg.PurgeInterval, logger)
	}
	return app, nil
}

func buildServices(b *backend.Backend, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) Services {
	tokens := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL, jwt.WithLegacy(cfg.AcceptLegacy))
	resolver := identity.NewResolver(b.Store, tokens, logger, cfg.FingerprintMinLen)
	limiter := ratelimit.New(b.Store, cfg.Window, ratelimit.Limits{
		models.TierAnonymous:         cfg.Anonymous,
		models.TierAuthenticatedFree: cfg.Free,
		models.TierPremium:           cfg.Premium,
	})
	ledger := usagesvc.New(b.Store, logger, cfg.FreeLimit, cfg.LinkBonus)

	return Services{
		Resolver: resolver,
		Gate:     gate.New(logger, resolver, limiter, ledger, metrics.New(reg)),
		Ledger:   ledger,
		Sessions: sessionsvc.NewService(b.Store, tokens, logger, cfg.TokenTTL, cfg.FreeLimit),
		Analyzer: scansvc.NewPatternAnalyzer(scansvc.DefaultPatterns()),
		Pinger:   b.Pinger,
	}
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	if a.sweeper != nil {
		go a.sweeper.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.closeBackend()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.closeBackend()
		return err
	}
}

func (a *App) closeBackend() {
	if err := a.backend.Close(); err != nil {
		a.logger.Error("failed to close store", sl.Err(err))
	}
}

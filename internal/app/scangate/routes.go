// Package scangate собирает HTTP-приложение гейта: хранилище, сервисы и маршруты.
package scangate

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/scan-gate/internal/cache"
	"github.com/magabrotheeeer/scan-gate/internal/config"
	"github.com/magabrotheeeer/scan-gate/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/scan-gate/internal/http/handlers/auth/session"
	"github.com/magabrotheeeer/scan-gate/internal/http/handlers/health"
	"github.com/magabrotheeeer/scan-gate/internal/http/handlers/scan"
	"github.com/magabrotheeeer/scan-gate/internal/http/handlers/usage"
	"github.com/magabrotheeeer/scan-gate/internal/http/handlers/user/link"
	"github.com/magabrotheeeer/scan-gate/internal/http/handlers/user/profile"
	"github.com/magabrotheeeer/scan-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/scan-gate/internal/services/gate"
	scansvc "github.com/magabrotheeeer/scan-gate/internal/services/scan"
	sessionsvc "github.com/magabrotheeeer/scan-gate/internal/services/session"
	usagesvc "github.com/magabrotheeeer/scan-gate/internal/services/usage"
)

// Services зависимости обработчиков.
type Services struct {
	Resolver middlewarectx.Resolver
	Gate     middlewarectx.Admitter
	Ledger   *usagesvc.Ledger
	Sessions *sessionsvc.Service
	Analyzer scansvc.Analyzer
	Pinger   cache.Pinger
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, s Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", health.New(logger, s.Pinger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scan", scan.New(logger, s.Gate, s.Analyzer, s.Ledger, cfg.Identity).ServeHTTP)

		// Только разрешение идентичности, счётчики не меняются
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.IdentityMiddleware(logger, s.Resolver, cfg.Identity, false))
			usageHandler := usage.New(logger, s.Ledger)
			r.Get("/usage", usageHandler.ServeHTTP)
			r.Post("/usage", usageHandler.ServeHTTP)
		})

		// Аутентифицированные маршруты: лимитер без списания квоты
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.GateMiddleware(logger, s.Gate, cfg.Identity, gate.Options{RequireAuth: true, SkipQuota: true}))
			r.Get("/user/profile", profile.New(logger).ServeHTTP)
			r.Post("/user/link", link.New(logger, s.Ledger).ServeHTTP)
			r.Post("/auth/logout", logout.New(logger, s.Sessions, cfg.CookieSecure).ServeHTTP)
		})
	})

	// Внутренние маршруты для OAuth-коллаборатора
	r.Route("/internal", func(r chi.Router) {
		r.Use(middlewarectx.BurstLimitMiddleware(logger, rate.NewLimiter(rate.Limit(cfg.BurstRPS), cfg.Burst)))
		r.Use(middlewarectx.InternalKeyMiddleware(logger, cfg.APIKey))
		r.Post("/sessions", session.New(logger, s.Sessions).ServeHTTP)
	})
}

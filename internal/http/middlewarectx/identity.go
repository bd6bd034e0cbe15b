package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/scan-gate/internal/config"
	"github.com/magabrotheeeer/scan-gate/internal/http/response"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/models"
	"github.com/magabrotheeeer/scan-gate/internal/services/identity"
)

// Resolver разрешает учётные данные в идентичность.
type Resolver interface {
	Resolve(ctx context.Context, creds identity.Credentials) models.ResolvedIdentity
}

// IdentityMiddleware разрешает идентичность вызывающего и кладёт её в контекст.
// Счётчики не меняются. При requireAuth неаутентифицированный запрос получает 401
// с одним и тем же сообщением независимо от причины.
func IdentityMiddleware(log *slog.Logger, resolver Resolver, cookies config.Identity, requireAuth bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.IdentityMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			resolved := resolver.Resolve(r.Context(), Credentials(r, cookies.CookieName))
			SetIdentityCookie(w, cookies, resolved)

			if requireAuth && !resolved.Authenticated() {
				log.Info("authentication required", sl.Identity(resolved.Identity.String(), string(resolved.Tier)))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Denied(MsgUnauthenticated, "authentication_required", "sign in to continue"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), resolved)))
		})
	}
}

// SetIdentityCookie выставляет cookie с новым анонимным идентификатором, если он был создан.
func SetIdentityCookie(w http.ResponseWriter, cookies config.Identity, resolved models.ResolvedIdentity) {
	if resolved.NewCookie == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookies.CookieName,
		Value:    resolved.NewCookie,
		Path:     "/",
		MaxAge:   int(cookies.CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cookies.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Package logout завершает сессию аутентифицированного пользователя.
package logout

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/scan-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/scan-gate/internal/http/response"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
)

// Revoker отзывает серверный маркер сессии.
type Revoker interface {
	Logout(ctx context.Context, accountID string) error
}

// Handler обрабатывает POST /api/v1/auth/logout.
type Handler struct {
	log      *slog.Logger
	sessions Revoker
	secure   bool
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, sessions Revoker, secureCookie bool) *Handler {
	return &Handler{
		log:      log,
		sessions: sessions,
		secure:   secureCookie,
	}
}

// ServeHTTP godoc
// @Summary Выход
// @Description Удаляет маркер сессии. Все токены аккаунта перестают действовать.
// @Tags Auth
// @Security BearerAuth
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response "Требуется вход"
// @Failure 503 {object} response.Response "Хранилище недоступно"
// @Router /auth/logout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	resolved, ok := middlewarectx.CallerFrom(r.Context())
	if !ok || !resolved.Authenticated() {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Denied(middlewarectx.MsgUnauthenticated, "authentication_required", "sign in to continue"))
		return
	}

	if err := h.sessions.Logout(r.Context(), resolved.Identity.Subject()); err != nil {
		log.Error("failed to revoke session", sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error(middlewarectx.MsgUnavailable))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middlewarectx.SessionTokenName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	render.JSON(w, r, response.OKWithData(nil))
}

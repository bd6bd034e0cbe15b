// Package profile отдаёт профиль аутентифицированного пользователя.
package profile

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/scan-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/scan-gate/internal/http/response"
)

// Handler обрабатывает GET /api/v1/user/profile.
type Handler struct {
	log *slog.Logger
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{
		log: log,
	}
}

// ServeHTTP godoc
// @Summary Профиль пользователя
// @Tags User
// @Security BearerAuth
// @Produce  json
// @Success 200 {object} models.AccountView
// @Failure 401 {object} response.Response "Требуется вход"
// @Router /user/profile [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.profile"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	resolved, ok := middlewarectx.CallerFrom(r.Context())
	if !ok || !resolved.Authenticated() || resolved.Account == nil {
		log.Error("authenticated caller is missing in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Denied(middlewarectx.MsgUnauthenticated, "authentication_required", "sign in to continue"))
		return
	}

	render.JSON(w, r, resolved.Account.View())
}

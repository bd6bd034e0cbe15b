// Package usage отдаёт текущее состояние бесплатной квоты вызывающего.
package usage

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/scan-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/scan-gate/internal/http/response"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/models"
)

// Snapshotter читает использование без изменения счётчиков.
type Snapshotter interface {
	Snapshot(ctx context.Context, resolved models.ResolvedIdentity) (models.UsageSnapshot, error)
}

// Handler обрабатывает GET|POST /api/v1/usage.
type Handler struct {
	log    *slog.Logger
	ledger Snapshotter
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, ledger Snapshotter) *Handler {
	return &Handler{
		log:    log,
		ledger: ledger,
	}
}

// ServeHTTP godoc
// @Summary Использование квоты
// @Description Возвращает число потраченных проверок и лимит. Счётчики не меняются.
// @Tags Usage
// @Produce  json
// @Success 200 {object} models.UsageSnapshot
// @Failure 503 {object} response.Response "Хранилище недоступно"
// @Router /usage [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.usage"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	resolved, ok := middlewarectx.CallerFrom(r.Context())
	if !ok {
		log.Error("caller is missing in context")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	snapshot, err := h.ledger.Snapshot(r.Context(), resolved)
	if err != nil {
		log.Error("failed to read usage", sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error(middlewarectx.MsgUnavailable))
		return
	}

	log.Debug("usage read", sl.Identity(resolved.Identity.String(), string(resolved.Tier)))
	render.JSON(w, r, snapshot)
}

// Package health отвечает на проверку живости сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/scan-gate/internal/cache"
	"github.com/magabrotheeeer/scan-gate/internal/http/response"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
)

const pingTimeout = 2 * time.Second

// Handler обрабатывает GET /health.
type Handler struct {
	log   *slog.Logger
	store cache.Pinger
}

// New создает Handler. store может быть nil, тогда хранилище не проверяется.
func New(log *slog.Logger, store cache.Pinger) *Handler {
	return &Handler{
		log:   log,
		store: store,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.log.Warn("store ping failed", sl.Op(op), sl.Err(err))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("store unavailable"))
			return
		}
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"status": "ok",
	}))
}

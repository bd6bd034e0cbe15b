// Package link переносит анонимное использование устройства в аккаунт
// после первого входа.
package link

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/scan-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/scan-gate/internal/http/response"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/models"
	"github.com/magabrotheeeer/scan-gate/internal/services/usage"
)

// Request тело запроса привязки. Пустой anonymous_id означает
// идентичность текущего устройства.
type Request struct {
	AnonymousID string `json:"anonymous_id,omitempty" validate:"omitempty,max=256"`
}

// Response итог привязки.
type Response struct {
	Migrated      bool               `json:"migrated"`
	MigratedScans int                `json:"migrated_scans"`
	BonusUses     int                `json:"bonus_uses"`
	User          models.AccountView `json:"user"`
}

// Migrator переносит анонимное использование в аккаунт.
type Migrator interface {
	Migrate(ctx context.Context, anonymous models.Identity, accountID string) (models.MigrationResult, error)
}

// Handler обрабатывает POST /api/v1/user/link.
type Handler struct {
	log      *slog.Logger
	ledger   Migrator
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, ledger Migrator) *Handler {
	return &Handler{
		log:      log,
		ledger:   ledger,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Привязка анонимного использования
// @Description Переносит потраченные анонимно проверки в аккаунт и начисляет бонус. Повторная привязка ничего не меняет.
// @Tags User
// @Security BearerAuth
// @Accept  json
// @Produce  json
// @Param request body Request false "Анонимный идентификатор"
// @Success 200 {object} Response
// @Failure 400 {object} response.Response "Нет анонимной идентичности"
// @Failure 401 {object} response.Response "Требуется вход"
// @Failure 503 {object} response.Response "Хранилище недоступно"
// @Router /user/link [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.link"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		log.Error("validator failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	anonymous := resolved.Anonymous
	if id := strings.TrimSpace(req.AnonymousID); id != "" {
		anonymous = models.AnonymousIdentity(id)
	}
	if anonymous == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("anonymous_id is required"))
		return
	}

	accountID := resolved.Identity.Subject()
	log = log.With(slog.String("account_id", accountID), slog.String("anonymous", anonymous.String()))

	result, err := h.ledger.Migrate(r.Context(), anonymous, accountID)
	switch {
	case errors.Is(err, usage.ErrAlreadyMigrated):
		log.Info("anonymous identity already linked")
		render.JSON(w, r, Response{User: resolved.Account.View()})
		return
	case errors.Is(err, usage.ErrNotAnonymous):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("anonymous_id is invalid"))
		return
	case errors.Is(err, usage.ErrAccountNotFound):
		log.Error("account disappeared during link", sl.Err(err))
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("account not found"))
		return
	case err != nil:
		log.Error("failed to link usage", sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error(middlewarectx.MsgUnavailable))
		return
	}

	account := resolved.Account
	if result.Account != nil {
		account = result.Account
	}
	resp := Response{
		Migrated:      result.Migrated,
		MigratedScans: result.MigratedScans,
		BonusUses:     result.BonusUses,
		User:          account.View(),
	}
	log.Info("link completed", slog.Bool("migrated", result.Migrated), slog.Int("migrated_scans", result.MigratedScans))
	render.JSON(w, r, resp)
}

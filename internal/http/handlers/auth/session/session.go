// Package session выпускает сессию по профилю от OAuth-коллаборатора.
// Маршрут внутренний и закрыт ключом X-Internal-Key.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/scan-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/scan-gate/internal/http/response"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/models"
	sessionsvc "github.com/magabrotheeeer/scan-gate/internal/services/session"
)

// Response выпущенная сессия.
type Response struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	Created   bool               `json:"created"`
	User      models.AccountView `json:"user"`
}

// Issuer создаёт или обновляет аккаунт и выпускает токен.
type Issuer interface {
	Login(ctx context.Context, p sessionsvc.Profile) (*sessionsvc.LoginResult, error)
}

// Handler обрабатывает POST /internal/sessions.
type Handler struct {
	log      *slog.Logger
	sessions Issuer
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, sessions Issuer) *Handler {
	return &Handler{
		log:      log,
		sessions: sessions,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Выпуск сессии
// @Description Вызывается после успешного OAuth-входа. Создаёт аккаунт при первом входе.
// @Tags Internal
// @Accept  json
// @Produce  json
// @Param X-Internal-Key header string true "Внутренний ключ"
// @Param request body sessionsvc.Profile true "Профиль пользователя"
// @Success 200 {object} Response
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 403 {object} response.Response "Неверный ключ"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 503 {object} response.Response "Хранилище недоступно"
// @Router /internal/sessions [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.session"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var p sessionsvc.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Info("validation failed", sl.Err(err))
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		log.Error("validator failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	res, err := h.sessions.Login(r.Context(), p)
	if err != nil {
		log.Error("failed to issue session", sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error(middlewarectx.MsgUnavailable))
		return
	}

	log.Info("session issued", slog.String("account_id", p.AccountID), slog.Bool("created", res.Created))
	render.JSON(w, r, Response{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Created:   res.Created,
		User:      res.Account.View(),
	})
}

// Package scan реализует HTTP-обработчик проверки сообщения.
//
// Запрос сначала валидируется, затем проходит гейт (лимитер и квота), и только
// после допуска сообщение уходит в анализатор. Невалидный запрос квоту не тратит.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/scan-gate/internal/config"
	"github.com/magabrotheeeer/scan-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/scan-gate/internal/http/response"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/services/gate"
	"github.com/magabrotheeeer/scan-gate/internal/services/identity"
	scansvc "github.com/magabrotheeeer/scan-gate/internal/services/scan"
)

// Request тело запроса проверки.
type Request struct {
	Sender      string `json:"sender,omitempty" validate:"max=256"`
	Body        string `json:"body" validate:"required,max=10000"`
	Context     string `json:"context,omitempty" validate:"max=2000"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Response результат проверки.
type Response struct {
	Verdict     scansvc.Verdict `json:"verdict"`
	ThreatLevel string          `json:"threat_level"`
	Flags       []scansvc.Flag  `json:"flags"`
	// RemainingUses nil для премиума.
	RemainingUses *int `json:"remaining_uses"`
}

// Admitter принимает решение о допуске.
type Admitter interface {
	Admit(ctx context.Context, creds identity.Credentials, opts gate.Options) gate.Verdict
}

// FlagRecorder учитывает найденную угрозу в аккаунте.
type FlagRecorder interface {
	RecordFlag(ctx context.Context, accountID string) error
}

// Handler обрабатывает POST /api/v1/scan.
type Handler struct {
	log      *slog.Logger
	gate     Admitter
	analyzer scansvc.Analyzer
	flags    FlagRecorder
	cookies  config.Identity
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, g Admitter, analyzer scansvc.Analyzer, flags FlagRecorder, cookies config.Identity) *Handler {
	return &Handler{
		log:      log,
		gate:     g,
		analyzer: analyzer,
		flags:    flags,
		cookies:  cookies,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Проверка сообщения
// @Description Проверяет сообщение на признаки мошенничества. Тратит одну бесплатную проверку.
// @Tags Scan
// @Accept  json
// @Produce  json
// @Param request body Request true "Сообщение"
// @Success 200 {object} Response
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 402 {object} response.Response "Бесплатный лимит исчерпан"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 429 {object} response.Response "Слишком много запросов"
// @Failure 503 {object} response.Response "Хранилище недоступно"
// @Router /scan [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.scan"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
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

	creds := middlewarectx.CredentialsWithFingerprint(r, h.cookies.CookieName, req.Fingerprint)

	verdict := h.gate.Admit(r.Context(), creds, gate.Options{})
	middlewarectx.SetIdentityCookie(w, h.cookies, verdict.Identity)
	middlewarectx.WriteRateHeaders(w, verdict)
	if !verdict.Allowed() {
		log.Info("scan denied",
			slog.String("verdict", string(verdict.Kind)),
			sl.Identity(verdict.Identity.Identity.String(), string(verdict.Identity.Tier)),
		)
		middlewarectx.WriteDenial(w, r, verdict)
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), scansvc.Message{
		Sender:  req.Sender,
		Body:    req.Body,
		Context: req.Context,
	})
	if err != nil {
		log.Error("analysis failed", sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("analysis failed"))
		return
	}

	if result.Verdict == scansvc.VerdictUnsafe && verdict.Identity.Authenticated() {
		if err := h.flags.RecordFlag(r.Context(), verdict.Identity.Identity.Subject()); err != nil {
			log.Warn("failed to record flag", sl.Err(err))
		}
	}

	resp := Response{
		Verdict:     result.Verdict,
		ThreatLevel: result.ThreatLevel,
		Flags:       result.Flags,
	}
	if !verdict.Usage.Unlimited {
		remaining := verdict.Usage.Remaining
		resp.RemainingUses = &remaining
	}

	log.Info("message scanned",
		slog.String("verdict", string(result.Verdict)),
		sl.Identity(verdict.Identity.Identity.String(), string(verdict.Identity.Tier)),
	)
	render.JSON(w, r, resp)
}

package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/scan-gate/internal/lib/metrics"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
)

// Applier применяет проверенное событие.
type Applier interface {
	Apply(ctx context.Context, ev Event) error
}

// Handler декодирует сообщения очереди и решает, подтверждать ли их.
type Handler struct {
	applier  Applier
	validate *validator.Validate
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewHandler создаёт Handler. m может быть nil.
func NewHandler(log *slog.Logger, applier Applier, m *metrics.Metrics) *Handler {
	return &Handler{
		applier:  applier,
		validate: validator.New(),
		metrics:  m,
		log:      log,
	}
}

// HandleMessage обрабатывает тело сообщения. Ошибка означает, что сообщение
// нужно вернуть в очередь; битые, повторные и устаревшие события подтверждаются.
func (h *Handler) HandleMessage(ctx context.Context, body []byte) error {
	const op = "billing.HandleMessage"
	log := h.log.With(sl.Op(op))

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Error("dropping undecodable billing event", sl.Err(err))
		h.metrics.BillingEvent("unknown", "malformed")
		return nil
	}
	if err := h.validate.Struct(ev); err != nil {
		log.Error("dropping invalid billing event", slog.String("event_id", ev.EventID), sl.Err(err))
		h.metrics.BillingEvent(ev.Type, "malformed")
		return nil
	}

	err := h.applier.Apply(ctx, ev)
	switch {
	case err == nil:
		h.metrics.BillingEvent(ev.Type, "applied")
		return nil
	case errors.Is(err, ErrDuplicateEvent):
		log.Info("duplicate billing event acknowledged", slog.String("event_id", ev.EventID))
		h.metrics.BillingEvent(ev.Type, "duplicate")
		return nil
	case errors.Is(err, ErrStaleEvent):
		log.Warn("stale billing event dropped", slog.String("event_id", ev.EventID))
		h.metrics.BillingEvent(ev.Type, "stale")
		return nil
	case errors.Is(err, ErrUnknownTarget):
		log.Error("billing event without known target dropped", slog.String("event_id", ev.EventID), sl.Err(err))
		h.metrics.BillingEvent(ev.Type, "unknown_target")
		return nil
	default:
		log.Error("failed to apply billing event, requeueing", slog.String("event_id", ev.EventID), sl.Err(err))
		h.metrics.StoreFailure("billing")
		h.metrics.BillingEvent(ev.Type, "retry")
		return err
	}
}

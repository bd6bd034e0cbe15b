package middlewarectx

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/scan-gate/internal/config"
	"github.com/magabrotheeeer/scan-gate/internal/http/response"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/services/gate"
	"github.com/magabrotheeeer/scan-gate/internal/services/identity"
)

// Сообщения отказов. Причина отказа в аутентификации не раскрывается.
const (
	MsgUnauthenticated = "authentication required"
	MsgRateLimited     = "too many requests"
	MsgQuotaExceeded   = "free limit reached"
	MsgUnavailable     = "service temporarily unavailable"
)

// WriteRateHeaders выставляет X-RateLimit-* и, при отказе, Retry-After.
func WriteRateHeaders(w http.ResponseWriter, v gate.Verdict) {
	if v.Rate == nil {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(v.Rate.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(v.Rate.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(v.Rate.ResetAt.Unix(), 10))
	if v.Kind == gate.KindRateLimited {
		secs := max(int64(math.Ceil(v.RetryAfter.Seconds())), 1)
		h.Set("Retry-After", strconv.FormatInt(secs, 10))
	}
}

// StatusFor возвращает HTTP-статус для отказа гейта.
func StatusFor(kind gate.Kind) int {
	switch kind {
	case gate.KindUnauthenticated:
		return http.StatusUnauthorized
	case gate.KindQuotaExceeded:
		return http.StatusPaymentRequired
	case gate.KindRateLimited:
		return http.StatusTooManyRequests
	case gate.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

// WriteDenial отвечает на отказ гейта конвертом с причиной и подсказкой.
func WriteDenial(w http.ResponseWriter, r *http.Request, v gate.Verdict) {
	var msg string
	switch v.Kind {
	case gate.KindUnauthenticated:
		msg = MsgUnauthenticated
	case gate.KindQuotaExceeded:
		msg = MsgQuotaExceeded
	case gate.KindRateLimited:
		msg = MsgRateLimited
	default:
		msg = MsgUnavailable
	}
	render.Status(r, StatusFor(v.Kind))
	render.JSON(w, r, response.Denied(msg, v.Reason, v.Hint))
}

// Admitter принимает решение о допуске запроса.
type Admitter interface {
	Admit(ctx context.Context, creds identity.Credentials, opts gate.Options) gate.Verdict
}

// GateMiddleware пропускает запрос через гейт с заданными опциями и кладёт
// разрешённую идентичность в контекст. Отказ завершает запрос.
func GateMiddleware(log *slog.Logger, g Admitter, cookies config.Identity, opts gate.Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.GateMiddleware"

			v := g.Admit(r.Context(), Credentials(r, cookies.CookieName), opts)
			SetIdentityCookie(w, cookies, v.Identity)
			WriteRateHeaders(w, v)
			if !v.Allowed() {
				log.Info("request denied",
					slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("verdict", string(v.Kind)),
					sl.Identity(v.Identity.Identity.String(), string(v.Identity.Tier)),
				)
				WriteDenial(w, r, v)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), v.Identity)))
		})
	}
}

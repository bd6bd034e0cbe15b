package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/scan-gate/internal/http/response"
)

// BurstLimitMiddleware ограничивает общий поток запросов на маршрут в пределах
// процесса. Не заменяет лимитер по идентичности.
func BurstLimitMiddleware(log *slog.Logger, limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Warn("burst limit exceeded",
					slog.String("op", "middlewarectx.BurstLimitMiddleware"),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
				w.Header().Set("Retry-After", "1")
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error(MsgRateLimited))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

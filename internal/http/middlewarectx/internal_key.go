package middlewarectx

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/scan-gate/internal/http/response"
)

// InternalKeyHeader заголовок с ключом внутренних коллабораторов.
const InternalKeyHeader = "X-Internal-Key"

// InternalKeyMiddleware пускает только запросы с верным X-Internal-Key.
// Пустой ключ в конфиге закрывает маршрут полностью.
func InternalKeyMiddleware(log *slog.Logger, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.InternalKeyMiddleware"
			got := r.Header.Get(InternalKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				log.Warn("internal key rejected",
					slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middlewarectx

import (
	"context"

	"github.com/magabrotheeeer/scan-gate/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// Caller ключ разрешённой идентичности в контексте.
const Caller Key = "caller"

// WithCaller кладёт разрешённую идентичность в контекст.
func WithCaller(ctx context.Context, resolved models.ResolvedIdentity) context.Context {
	return context.WithValue(ctx, Caller, resolved)
}

// CallerFrom достаёт разрешённую идентичность из контекста.
func CallerFrom(ctx context.Context) (models.ResolvedIdentity, bool) {
	resolved, ok := ctx.Value(Caller).(models.ResolvedIdentity)
	return resolved, ok
}

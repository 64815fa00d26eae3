package middleware

import (
	"context"

	"github.com/pribylovaa/tweeter-auth/internal/models"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyIdentity
)

// RequestIDFrom возвращает X-Request-Id текущего запроса или "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// IdentityFrom возвращает личность, которую положил Auth, или nil.
func IdentityFrom(ctx context.Context) *models.Identity {
	id, _ := ctx.Value(ctxKeyIdentity).(*models.Identity)
	return id
}

// WithIdentity кладёт личность в контекст.
func WithIdentity(ctx context.Context, id *models.Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

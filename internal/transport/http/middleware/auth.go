package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pribylovaa/tweeter-auth/internal/models"
	logctx "github.com/pribylovaa/tweeter-auth/internal/pkg/log"
	"github.com/pribylovaa/tweeter-auth/internal/service"
	apierrors "github.com/pribylovaa/tweeter-auth/internal/transport/http/errors"
)

// Authenticator — проверка bearer-токена и ролей (service.Service).
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*models.Identity, error)
	Authorize(id *models.Identity, roles ...string) error
}

// BearerToken извлекает токен из "Authorization: Bearer <token>".
// Отсутствующий заголовок или другая схема дают "".
func BearerToken(r *http.Request) string {
	const prefix = "bearer "

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}

	return strings.TrimSpace(auth[len(prefix):])
}

// Auth — шлюз аутентификации: пропускает запрос к обработчику, только если
// токен прошёл все проверки Authenticate. Личность кладётся в контекст
// (IdentityFrom), user_id — в request-scoped логгер.
func Auth(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r.Context(), BearerToken(r))
			if err != nil {
				logctx.From(r.Context()).Debug("auth_rejected",
					slog.String("path", r.URL.Path),
					slog.String("reason", err.Error()),
				)
				apierrors.WriteAuthError(w, r, err)
				return
			}

			ctx := WithIdentity(r.Context(), id)
			ctx = logctx.With(ctx, slog.String("user_id", id.UserID.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole пропускает запрос, только если роль вызывающего входит в roles.
// Должен стоять после Auth.
func RequireRole(a Authenticator, roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFrom(r.Context())
			if id == nil {
				apierrors.WriteAuthError(w, r, service.ErrMissingCredentials)
				return
			}

			if err := a.Authorize(id, roles...); err != nil {
				apierrors.WriteAuthError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

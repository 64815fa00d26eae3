package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/tweeter-auth/internal/pkg/log"
	apierrors "github.com/pribylovaa/tweeter-auth/internal/transport/http/errors"
)

// Timeout ограничивает запрос общим дедлайном d (уже заданный более ранний
// дедлайн сохраняется). Если обработчик вышел по истёкшему дедлайну, так
// ничего и не записав, клиент получает 504/deadline_exceeded вместо пустого 200.
// Значение <=0 делает мидлвар no-op.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := ctx.Deadline(); !ok {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			if sw.status != 0 || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return
			}

			logctx.From(ctx).Warn("request_timeout",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			apierrors.WriteError(sw, r, context.DeadlineExceeded)
		})
	}
}

// Package http собирает REST-роутер auth-сервиса.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/pribylovaa/tweeter-auth/internal/metrics"
	"github.com/pribylovaa/tweeter-auth/internal/models"
	"github.com/pribylovaa/tweeter-auth/internal/transport/http/handlers"
	"github.com/pribylovaa/tweeter-auth/internal/transport/http/middleware"
)

// Service — всё, что роутеру нужно от service.Service.
type Service interface {
	handlers.Service
	middleware.Authenticator
}

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.

	// AllowedOrigins — origin'ы фронтенда для CORS; пусто — CORS не подключается.
	AllowedOrigins []string
	// Metrics — может быть nil.
	Metrics *metrics.Metrics
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		middleware.Recover(),            // безопасно ловим паники, логгер уже в контексте
		middleware.Metrics(opts.Metrics),
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(svc)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, svc)
		root.Mount(opts.BasePath, sub)
	} else {
		registerRoutes(root, h, svc)
	}

	if len(opts.AllowedOrigins) == 0 {
		return root
	}

	return cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}).Handler(root)
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, auth middleware.Authenticator) {
	// публичные
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh-token", h.RefreshToken)
	r.Get("/auth/verify-email/{token}", h.VerifyEmail)
	r.Post("/auth/forgot-password", h.ForgotPassword)
	r.Post("/auth/reset-password", h.ResetPassword)
	r.Post("/auth/resend-verification-email", h.ResendVerification)

	// за шлюзом
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(auth))

		r.Post("/auth/logout", h.Logout)
		r.Get("/auth/me", h.Me)
		r.Delete("/auth/delete", h.DeleteAccount)
		r.Get("/users/me", h.Me)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(auth, models.RoleAdmin))

			r.Get("/users", h.ListUsers)
			r.Put("/users/role", h.UpdateRole)
			r.Delete("/users/{userID}", h.DeleteUser)
		})
	})
}

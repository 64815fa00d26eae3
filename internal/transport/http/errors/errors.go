// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает ошибку сервисного слоя, на выход даёт:
//   - корректный HTTP-статус;
//   - стабильный машиночитаемый code и безопасное message без утечки деталей.
//
// Источник истинности по ошибкам — переменные ошибок пакета service.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/tweeter-auth/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

type mapping struct {
	err     error
	status  int
	code    string
	message string
}

// Ошибки шлюза. Порядок важен: ErrInvalidToken может оборачивать ошибку хранилища.
var authTable = []mapping{
	{service.ErrMissingCredentials, http.StatusUnauthorized, "missing_credentials", "authorization required"},
	{service.ErrTokenRevoked, http.StatusUnauthorized, "token_revoked", "session revoked, please re-authenticate"},
	{service.ErrTokenExpired, http.StatusUnauthorized, "token_expired", "token expired"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "invalid token"},
	{service.ErrForbiddenRole, http.StatusForbidden, "forbidden", "forbidden"},
}

var accountTable = []mapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid email or password"},
	{service.ErrEmailNotVerified, http.StatusForbidden, "email_not_verified", "please verify your email before logging in"},
	{service.ErrCannotDeleteAdmin, http.StatusForbidden, "cannot_delete_admin", "cannot delete another admin"},
	{service.ErrEmailTaken, http.StatusConflict, "email_taken", "email already registered"},
	{service.ErrUsernameTaken, http.StatusConflict, "username_taken", "username already taken"},
	{service.ErrInvalidEmail, http.StatusBadRequest, "invalid_email", "invalid email"},
	{service.ErrInvalidUsername, http.StatusBadRequest, "invalid_username", "username must be 3-30 characters"},
	{service.ErrEmptyPassword, http.StatusBadRequest, "invalid_password", "password is required"},
	{service.ErrWeakPassword, http.StatusBadRequest, "weak_password", "password must be at least 8 characters and contain an uppercase letter, a lowercase letter and a digit"},
	{service.ErrInvalidRole, http.StatusBadRequest, "invalid_role", "invalid role"},
	{service.ErrVerificationToken, http.StatusBadRequest, "invalid_verification_token", "invalid or expired verification token"},
	{service.ErrResetToken, http.StatusBadRequest, "invalid_reset_token", "invalid or expired reset token"},
	{service.ErrAlreadyVerified, http.StatusBadRequest, "already_verified", "email already verified"},
	{service.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{ErrBadRequest, http.StatusBadRequest, "invalid_argument", "invalid request body"},
}

// ErrBadRequest — тело или параметры запроса не разобраны.
var ErrBadRequest = stderrors.New("bad request")

var internal = mapping{nil, http.StatusInternalServerError, "internal", "internal error"}

// ToHTTP конвертирует ошибку сервиса в HTTP-статус и ответ для фронта.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500/internal, чтобы не послать
//     "200 OK" с телом ошибки;
//   - ошибки шлюза -> 401/403 с различимыми code;
//   - ошибки учётных записей -> 400/401/403/404/409;
//   - отмена/дедлайн контекста -> 499/504;
//   - прочее -> 500/internal без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	return toHTTP(err, authTable, accountTable)
}

// AuthToHTTP — маппинг для проверки bearer-токена: ErrUserNotFound
// отдаётся как invalid token (401), чтобы не подтверждать валидность токена.
func AuthToHTTP(err error) (int, ErrorResponse) {
	if stderrors.Is(err, service.ErrUserNotFound) {
		err = service.ErrInvalidToken
	}

	return toHTTP(err, authTable)
}

func toHTTP(err error, tables ...[]mapping) (int, ErrorResponse) {
	m := resolve(err, tables...)
	return m.status, ErrorResponse{
		Error: APIError{
			Code:    m.code,
			Message: m.message,
		},
	}
}

func resolve(err error, tables ...[]mapping) mapping {
	if err == nil {
		return internal
	}

	for _, table := range tables {
		for _, m := range table {
			if stderrors.Is(err, m.err) {
				return m
			}
		}
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return mapping{nil, StatusClientClosedRequest, "canceled", "canceled"}
	case stderrors.Is(err, context.DeadlineExceeded):
		return mapping{nil, http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"}
	default:
		return internal
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)
	write(w, r, status, resp)
}

// WriteAuthError — WriteError для отказов шлюза (см. AuthToHTTP).
func WriteAuthError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := AuthToHTTP(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="tweeter"`)
	}
	write(w, r, status, resp)
}

func write(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

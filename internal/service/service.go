// service содержит бизнес-логику auth-сервиса:
// регистрацию/вход пользователей, выпуск токенов, проверку запросов (шлюз),
// выход и отзыв сессий, подтверждение e-mail, сброс пароля и администрирование.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для
//     конкурентного использования при потокобезопасных зависимостях.
//   - Роль пользователя читается из хранилища на каждом запросе,
//     а не из claims токена: смена роли действует со следующего запроса.
//   - Ошибки возвращаются обёрнутыми и маппятся транспортом на HTTP-статусы
//     (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/tweeter-auth/internal/cache"
	"github.com/pribylovaa/tweeter-auth/internal/config"
	"github.com/pribylovaa/tweeter-auth/internal/mailer"
	"github.com/pribylovaa/tweeter-auth/internal/metrics"
	"github.com/pribylovaa/tweeter-auth/internal/storage"
	"github.com/pribylovaa/tweeter-auth/internal/token"
)

// Ошибки шлюза (все, кроме ErrForbiddenRole, — HTTP 401).
var (
	// ErrMissingCredentials — заголовок Authorization отсутствует или пуст.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrTokenRevoked — токен в чёрном списке (logout/удаление/отзыв).
	ErrTokenRevoked = errors.New("token revoked")

	// ErrTokenExpired — срок действия токена истёк; клиент может обновить access-токен.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken — подпись/claims не сходятся или хранилище недоступно.
	// Сообщение клиенту одинаковое, чтобы не раскрывать, какая проверка не прошла.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUserNotFound — токен валиден, но пользователя уже нет.
	// В шлюзе — 401; на эндпоинтах восстановления доступа — 404.
	ErrUserNotFound = errors.New("user not found")

	// ErrForbiddenRole — роль пользователя недостаточна. HTTP 403.
	ErrForbiddenRole = errors.New("forbidden role")
)

// Ошибки учётных записей.
var (
	// ErrInvalidCredentials — неизвестный e-mail или неверный пароль. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailNotVerified — вход до подтверждения e-mail. HTTP 403.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrEmailTaken — e-mail уже занят. HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrUsernameTaken — имя пользователя уже занято. HTTP 409.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidEmail — e-mail имеет некорректный формат. HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrInvalidUsername — имя пользователя не 3-30 символов. HTTP 400.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrWeakPassword — пароль не удовлетворяет политике сложности. HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrInvalidRole — роль не из {user, admin}. HTTP 400.
	ErrInvalidRole = errors.New("invalid role")

	// ErrVerificationToken — токен подтверждения неизвестен или истёк. HTTP 400.
	ErrVerificationToken = errors.New("invalid or expired verification token")

	// ErrResetToken — токен сброса пароля неизвестен или истёк. HTTP 400.
	ErrResetToken = errors.New("invalid or expired reset token")

	// ErrAlreadyVerified — e-mail уже подтверждён. HTTP 400.
	ErrAlreadyVerified = errors.New("email already verified")

	// ErrCannotDeleteAdmin — администратор не может удалить другого администратора. HTTP 403.
	ErrCannotDeleteAdmin = errors.New("cannot delete another admin")
)

// Deps — зависимости Service, создаются один раз при старте процесса.
type Deps struct {
	Users     storage.UserStorage
	Sessions  cache.SessionRegistry
	Blacklist cache.Blacklist
	Codec     *token.Codec
	Mailer    mailer.Sender
	Metrics   *metrics.Metrics // может быть nil
	Config    config.AuthConfig

	// BcryptCost — стоимость bcrypt; 0 означает bcrypt.DefaultCost.
	BcryptCost int
}

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	users      storage.UserStorage
	sessions   cache.SessionRegistry
	blacklist  cache.Blacklist
	codec      *token.Codec
	mailer     mailer.Sender
	metrics    *metrics.Metrics
	cfg        config.AuthConfig
	bcryptCost int
	now        func() time.Time
}

// New создаёт новый экземпляр Service.
func New(d Deps) *Service {
	cost := d.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	if d.Config.BlacklistTTL <= 0 {
		d.Config.BlacklistTTL = cache.DefaultBlacklistTTL
	}

	return &Service{
		users:      d.Users,
		sessions:   d.Sessions,
		blacklist:  d.Blacklist,
		codec:      d.Codec,
		mailer:     d.Mailer,
		metrics:    d.Metrics,
		cfg:        d.Config,
		bcryptCost: cost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Package storage задаёт контракт Credential Store и общие ошибки хранилищ.
package storage

//go:generate mockgen -destination=../../mocks/mock_storage.go -package=mocks github.com/pribylovaa/tweeter-auth/internal/storage UserStorage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/tweeter-auth/internal/models"
)

var (
	// ErrNotFound — пользователь не найден.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/username).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
// Изменения точечные: каждый Set*/Mark* пишет только свои поля, чтобы
// конкурентные изменения разных полей одного пользователя не затирали друг друга.
// Отсутствие пользователя — ErrNotFound.
type UserStorage interface {
	// SaveUser создаёт нового пользователя.
	SaveUser(ctx context.Context, user *models.User) error
	// SetRole меняет только роль.
	SetRole(ctx context.Context, id uuid.UUID, role string, now time.Time) error
	// SetPassword меняет хэш пароля и гасит токен сброса.
	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string, now time.Time) error
	// SetVerificationToken записывает новый токен подтверждения e-mail, перезаписывая старый.
	SetVerificationToken(ctx context.Context, id uuid.UUID, hash string, expiresAt, now time.Time) error
	// MarkEmailVerified отмечает e-mail подтверждённым и гасит токен подтверждения.
	MarkEmailVerified(ctx context.Context, id uuid.UUID, now time.Time) error
	// SetResetToken записывает новый токен сброса пароля, перезаписывая старый.
	SetResetToken(ctx context.Context, id uuid.UUID, hash string, expiresAt, now time.Time) error
	// DeleteUser удаляет пользователя по ID.
	DeleteUser(ctx context.Context, id uuid.UUID) error
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByUsername находит пользователя по имени.
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// UserByVerificationToken находит пользователя по хэшу живого токена подтверждения e-mail.
	UserByVerificationToken(ctx context.Context, hash string, now time.Time) (*models.User, error)
	// UserByResetToken находит пользователя по хэшу живого токена сброса пароля.
	UserByResetToken(ctx context.Context, hash string, now time.Time) (*models.User, error)
	// ListUsers возвращает всех пользователей в порядке создания.
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Storage — UserStorage с управлением жизненным циклом подключения.
type Storage interface {
	UserStorage
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

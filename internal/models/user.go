// Package models содержит доменные сущности auth-сервиса.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли пользователей.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User — учётная запись пользователя (Credential Store).
// Важно:
//   - ID неизменяем после создания;
//   - токены подтверждения e-mail и сброса пароля хранятся только в виде
//     SHA-256 хэша; у пользователя не более одного живого токена каждого вида,
//     новый токен перезаписывает предыдущий;
//   - пустой хэш означает отсутствие токена.
type User struct {
	ID              uuid.UUID
	Username        string
	Email           string
	PasswordHash    string
	Role            string
	IsEmailVerified bool

	VerificationTokenHash string
	VerificationExpiresAt time.Time
	ResetTokenHash        string
	ResetExpiresAt        time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

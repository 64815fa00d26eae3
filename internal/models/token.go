package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind — вид bearer-токена.
type TokenKind string

const (
	// TokenAccess — короткоживущий токен доступа.
	TokenAccess TokenKind = "access"
	// TokenRefresh — долгоживущий токен, пригодный только для выпуска нового access.
	TokenRefresh TokenKind = "refresh"
)

// TokenPair — пара токенов, выдаваемая при входе.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Identity — личность вызывающего, которую шлюз кладёт в контекст запроса.
// Роль и флаг верификации читаются из хранилища на каждом запросе,
// а не из claims токена.
type Identity struct {
	UserID          uuid.UUID
	Username        string
	Email           string
	Role            string
	IsEmailVerified bool

	// Token — предъявленный access-токен; нужен для logout.
	Token string
	// TokenExpiresAt — срок жизни предъявленного токена (из claims).
	TokenExpiresAt time.Time
}

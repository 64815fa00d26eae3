// Package token выпускает и проверяет подписанные JWT (HS256) для access и
// refresh токенов. Пакет не ходит в хранилища: отзыв и реестр сессий живут
// в internal/cache, решение о допуске принимает internal/service.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/tweeter-auth/internal/config"
	"github.com/pribylovaa/tweeter-auth/internal/models"
)

var (
	// ErrExpired — срок действия токена истёк.
	ErrExpired = errors.New("token expired")
	// ErrInvalidSignature — подпись не сходится, алгоритм не HS256 или токен повреждён.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrClaimMismatch — issuer/audience/тип токена/subject не те, что ожидаются.
	ErrClaimMismatch = errors.New("token claims mismatch")
)

// Claims — полезная нагрузка токена.
// У refresh-токена Username и Email пустые: он подтверждает только личность.
type Claims struct {
	Kind     models.TokenKind `json:"typ"`
	Username string           `json:"username,omitempty"`
	Email    string           `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID возвращает subject как UUID.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// ExpiresIn возвращает остаток жизни токена относительно now (0, если истёк).
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}

	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}

	return 0
}

// Codec выпускает и проверяет токены с общим секретом.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   []string
	now        func() time.Time
}

// New создаёт Codec из секции auth конфигурации.
func New(cfg config.AuthConfig) *Codec {
	return &Codec{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// AccessTTL — срок жизни access-токена.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL — срок жизни refresh-токена.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess выпускает access-токен с subject, username и email пользователя.
func (c *Codec) IssueAccess(user *models.User) (string, *Claims, error) {
	const op = "token.codec.IssueAccess"

	claims := c.claims(user, models.TokenAccess, c.accessTTL)
	claims.Username = user.Username
	claims.Email = user.Email

	signed, err := c.sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	return signed, claims, nil
}

// IssueRefresh выпускает refresh-токен с минимальным набором claims.
func (c *Codec) IssueRefresh(user *models.User) (string, *Claims, error) {
	const op = "token.codec.IssueRefresh"

	claims := c.claims(user, models.TokenRefresh, c.refreshTTL)

	signed, err := c.sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	return signed, claims, nil
}

// Verify проверяет подпись, алгоритм, срок, issuer и audience токена любого типа.
// Ошибки: ErrExpired, ErrInvalidSignature, ErrClaimMismatch.
func (c *Codec) Verify(raw string) (*Claims, error) {
	const op = "token.codec.Verify"

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience...),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrClaimMismatch)
	}

	switch claims.Kind {
	case models.TokenAccess, models.TokenRefresh:
	default:
		return nil, fmt.Errorf("%s: %w", op, ErrClaimMismatch)
	}

	return claims, nil
}

// VerifyAccess — Verify с требованием typ=access.
func (c *Codec) VerifyAccess(raw string) (*Claims, error) {
	return c.verifyKind(raw, models.TokenAccess)
}

// VerifyRefresh — Verify с требованием typ=refresh.
func (c *Codec) VerifyRefresh(raw string) (*Claims, error) {
	return c.verifyKind(raw, models.TokenRefresh)
}

func (c *Codec) verifyKind(raw string, kind models.TokenKind) (*Claims, error) {
	const op = "token.codec.verifyKind"

	claims, err := c.Verify(raw)
	if err != nil {
		return nil, err
	}

	if claims.Kind != kind {
		return nil, fmt.Errorf("%s: %w: want %s, got %s", op, ErrClaimMismatch, kind, claims.Kind)
	}

	return claims, nil
}

func (c *Codec) claims(user *models.User, kind models.TokenKind, ttl time.Duration) *Claims {
	now := c.now()

	return &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings(c.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (c *Codec) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// classify сводит ошибки jwt к трём ошибкам пакета.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrClaimMismatch
	default:
		return ErrInvalidSignature
	}
}

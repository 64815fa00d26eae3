package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/tweeter-auth/internal/cache"
	"github.com/pribylovaa/tweeter-auth/internal/config"
	"github.com/pribylovaa/tweeter-auth/internal/models"
	"github.com/pribylovaa/tweeter-auth/internal/token"
	"github.com/pribylovaa/tweeter-auth/mocks"
)

// Общие хелперы unit-тестов пакета service.
//
// Хранилище пользователей и почта — gomock-моки, реестр сессий и чёрный
// список — настоящий cache.Redis поверх miniredis, чтобы проверять ключи и TTL.

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "unit-secret",
		AccessTokenTTL:  2 * time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "tweeter-app",
		Audience:        []string{"tweeter-users"},
		BlacklistTTL:    time.Hour,
		LookupTimeout:   time.Second,
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        time.Hour,
	}
}

type fixture struct {
	svc   *Service
	users *mocks.MockUserStorage
	mail  *mocks.MockSender
	cache *cache.Redis
	mr    *miniredis.Miniredis
	codec *token.Codec
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithConfig(t, testCfg())
}

func newFixtureWithConfig(t *testing.T, cfg config.AuthConfig) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		users: mocks.NewMockUserStorage(ctrl),
		mail:  mocks.NewMockSender(ctrl),
		cache: cache.NewRedis(rdb, ""),
		mr:    mr,
		codec: token.New(cfg),
	}
	f.svc = New(Deps{
		Users:      f.users,
		Sessions:   f.cache,
		Blacklist:  f.cache,
		Codec:      f.codec,
		Mailer:     f.mail,
		Config:     cfg,
		BcryptCost: bcrypt.MinCost,
	})

	return f
}

// mockedCache — фикстура с моками реестра и чёрного списка для сценариев сбоев.
type mockedCache struct {
	svc       *Service
	users     *mocks.MockUserStorage
	sessions  *mocks.MockSessionRegistry
	blacklist *mocks.MockBlacklist
	codec     *token.Codec
}

func newMockedCache(t *testing.T) *mockedCache {
	t.Helper()

	ctrl := gomock.NewController(t)
	cfg := testCfg()
	m := &mockedCache{
		users:     mocks.NewMockUserStorage(ctrl),
		sessions:  mocks.NewMockSessionRegistry(ctrl),
		blacklist: mocks.NewMockBlacklist(ctrl),
		codec:     token.New(cfg),
	}
	m.svc = New(Deps{
		Users:      m.users,
		Sessions:   m.sessions,
		Blacklist:  m.blacklist,
		Codec:      m.codec,
		Mailer:     mocks.NewMockSender(ctrl),
		Config:     cfg,
		BcryptCost: bcrypt.MinCost,
	})

	return m
}

func testUser(t *testing.T, password string) *models.User {
	t.Helper()

	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	return &models.User{
		ID:              uuid.New(),
		Username:        "alice",
		Email:           "a@x.com",
		PasswordHash:    string(h),
		Role:            models.RoleUser,
		IsEmailVerified: true,
	}
}

// expiredAccessToken подписывает access-токен, истёкший минуту назад.
func expiredAccessToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	cfg := testCfg()
	past := time.Now().Add(-cfg.AccessTokenTTL - time.Minute)
	claims := &token.Claims{
		Kind: models.TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings(cfg.Audience),
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(cfg.AccessTokenTTL)),
		},
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)
	return s
}

// login выполняет успешный вход пользователя u через фикстуру.
func (f *fixture) login(t *testing.T, u *models.User, password string) *models.TokenPair {
	t.Helper()

	f.users.EXPECT().UserByEmail(gomock.Any(), u.Email).Return(u, nil)

	pair, _, err := f.svc.Login(context.Background(), u.Email, password)
	require.NoError(t, err)
	return pair
}

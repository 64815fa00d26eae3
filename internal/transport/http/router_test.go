package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/tweeter-auth/internal/cache"
	"github.com/pribylovaa/tweeter-auth/internal/config"
	"github.com/pribylovaa/tweeter-auth/internal/metrics"
	"github.com/pribylovaa/tweeter-auth/internal/models"
	"github.com/pribylovaa/tweeter-auth/internal/service"
	"github.com/pribylovaa/tweeter-auth/internal/storage"
	"github.com/pribylovaa/tweeter-auth/internal/token"
	"github.com/pribylovaa/tweeter-auth/mocks"
)

// Сквозные сценарии: роутер + настоящий service + реестр/чёрный список на
// miniredis; хранилище пользователей — gomock с одним "живым" пользователем.

const (
	testEmail    = "a@x.com"
	testPassword = "Passw0rd1"
)

func testAuthCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "e2e-secret",
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

type env struct {
	srv *httptest.Server

	mu      sync.Mutex
	user    *models.User
	deleted bool

	mr      *miniredis.Miniredis
	reg     *prometheus.Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()

	ctrl := gomock.NewController(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	e := &env{
		user: &models.User{
			ID:              uuid.New(),
			Username:        "alice",
			Email:           testEmail,
			PasswordHash:    string(hash),
			Role:            models.RoleUser,
			IsEmailVerified: true,
			CreatedAt:       time.Now().UTC(),
		},
		mr:  mr,
		reg: prometheus.NewRegistry(),
	}

	current := func() (*models.User, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.deleted {
			return nil, storage.ErrNotFound
		}
		cp := *e.user
		return &cp, nil
	}

	users := mocks.NewMockUserStorage(ctrl)
	users.EXPECT().UserByEmail(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, email string) (*models.User, error) {
			if email != testEmail {
				return nil, storage.ErrNotFound
			}
			return current()
		}).AnyTimes()
	users.EXPECT().UserByID(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id uuid.UUID) (*models.User, error) {
			if id != e.user.ID {
				return nil, storage.ErrNotFound
			}
			return current()
		}).AnyTimes()
	users.EXPECT().DeleteUser(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id uuid.UUID) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.deleted = true
			return nil
		}).AnyTimes()

	cfg := testAuthCfg()
	reg := cache.NewRedis(rdb, "")
	m := metrics.New(e.reg)

	svc := service.New(service.Deps{
		Users:      users,
		Sessions:   reg,
		Blacklist:  reg,
		Codec:      token.New(cfg),
		Mailer:     mocks.NewMockSender(ctrl),
		Metrics:    m,
		Config:     cfg,
		BcryptCost: bcrypt.MinCost,
	})

	router := NewRouter(svc, Options{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timeout:        5 * time.Second,
		BasePath:       "/api",
		AllowedOrigins: []string{"http://localhost:3000"},
		Metrics:        m,
	})

	e.srv = httptest.NewServer(router)
	t.Cleanup(e.srv.Close)

	return e
}

type errBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func (e *env) do(t *testing.T, method, path, bearer string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, out
}

func (e *env) login(t *testing.T) (access, refresh string) {
	t.Helper()

	resp, body := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    testEmail,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		User         struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.AccessToken)
	require.NotEmpty(t, out.RefreshToken)
	require.Equal(t, e.user.ID.String(), out.User.ID)
	require.NotContains(t, string(body), "passwordHash")
	require.NotContains(t, string(body), e.user.PasswordHash)

	return out.AccessToken, out.RefreshToken
}

func requireAuthError(t *testing.T, resp *http.Response, body []byte, status int, msg string) {
	t.Helper()

	require.Equal(t, status, resp.StatusCode, string(body))

	var eb errBody
	require.NoError(t, json.Unmarshal(body, &eb))
	require.Equal(t, msg, eb.Error.Message)
	require.NotEmpty(t, eb.Error.RequestID)
}

func TestE2E_LoginMeLogout(t *testing.T) {
	e := newEnv(t)
	access, _ := e.login(t)

	resp, body := e.do(t, http.MethodGet, "/api/auth/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Contains(t, string(body), `"email":"a@x.com"`)

	resp, body = e.do(t, http.MethodPost, "/api/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = e.do(t, http.MethodGet, "/api/auth/me", access, nil)
	requireAuthError(t, resp, body, http.StatusUnauthorized, "session revoked, please re-authenticate")

	// Реестр сессий очищен.
	require.False(t, e.mr.Exists("accessToken:"+e.user.ID.String()))
	require.False(t, e.mr.Exists("refreshToken:"+e.user.ID.String()))
}

func TestE2E_RefreshIssuesWorkingAccess(t *testing.T) {
	e := newEnv(t)
	_, refresh := e.login(t)

	resp, body := e.do(t, http.MethodPost, "/api/auth/refresh-token", "", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.AccessToken)

	resp, body = e.do(t, http.MethodGet, "/api/users/me", out.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	// Refresh-токен не годится как bearer.
	resp, body = e.do(t, http.MethodGet, "/api/auth/me", refresh, nil)
	requireAuthError(t, resp, body, http.StatusUnauthorized, "invalid token")
}

func TestE2E_LogoutEndsRefreshChain(t *testing.T) {
	e := newEnv(t)
	access, refresh := e.login(t)

	resp, _ := e.do(t, http.MethodPost, "/api/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(t, http.MethodPost, "/api/auth/refresh-token", "", map[string]string{"refreshToken": refresh})
	requireAuthError(t, resp, body, http.StatusUnauthorized, "session revoked, please re-authenticate")
}

func TestE2E_GatewayRejections(t *testing.T) {
	e := newEnv(t)

	resp, body := e.do(t, http.MethodGet, "/api/auth/me", "", nil)
	requireAuthError(t, resp, body, http.StatusUnauthorized, "authorization required")
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	resp, body = e.do(t, http.MethodGet, "/api/auth/me", "not-a-jwt", nil)
	requireAuthError(t, resp, body, http.StatusUnauthorized, "invalid token")

	cfg := testAuthCfg()
	past := time.Now().Add(-time.Hour)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &token.Claims{
		Kind: models.TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   e.user.ID.String(),
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings(cfg.Audience),
			IssuedAt:  jwt.NewNumericDate(past.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(past),
		},
	}).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	resp, body = e.do(t, http.MethodGet, "/api/auth/me", expired, nil)
	requireAuthError(t, resp, body, http.StatusUnauthorized, "token expired")

	// Токен валиден, но пользователь удалён.
	access, _ := e.login(t)
	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	resp, body = e.do(t, http.MethodGet, "/api/auth/me", access, nil)
	requireAuthError(t, resp, body, http.StatusUnauthorized, "invalid token")
}

func TestE2E_StoreOutageFailsClosed(t *testing.T) {
	e := newEnv(t)
	access, _ := e.login(t)

	e.mr.Close()

	resp, body := e.do(t, http.MethodGet, "/api/auth/me", access, nil)
	requireAuthError(t, resp, body, http.StatusUnauthorized, "invalid token")
}

func TestE2E_RoleGate(t *testing.T) {
	e := newEnv(t)
	access, _ := e.login(t)

	resp, body := e.do(t, http.MethodGet, "/api/admin/users", access, nil)
	requireAuthError(t, resp, body, http.StatusForbidden, "forbidden")

	// Роль читается из хранилища на каждом запросе: тот же токен после повышения.
	e.mu.Lock()
	e.user.Role = models.RoleAdmin
	e.mu.Unlock()

	resp, body = e.do(t, http.MethodDelete, "/api/admin/users/not-a-uuid", access, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	resp, body = e.do(t, http.MethodGet, "/api/auth/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Contains(t, string(body), `"role":"admin"`)
}

func TestE2E_DeleteAccountRevokesToken(t *testing.T) {
	e := newEnv(t)
	access, _ := e.login(t)

	resp, body := e.do(t, http.MethodDelete, "/api/auth/delete", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	e.mu.Lock()
	require.True(t, e.deleted)
	e.mu.Unlock()

	resp, body = e.do(t, http.MethodGet, "/api/auth/me", access, nil)
	requireAuthError(t, resp, body, http.StatusUnauthorized, "session revoked, please re-authenticate")
}

func TestE2E_BadBodyAndCORS(t *testing.T) {
	e := newEnv(t)

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/auth/login", bytes.NewReader([]byte(`{"email":1`)))
	require.NoError(t, err)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	pre, err := http.NewRequest(http.MethodOptions, e.srv.URL+"/api/auth/me", nil)
	require.NoError(t, err)
	pre.Header.Set("Origin", "http://localhost:3000")
	pre.Header.Set("Access-Control-Request-Method", http.MethodGet)
	pre.Header.Set("Access-Control-Request-Headers", "authorization")
	resp, err = e.srv.Client().Do(pre)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.MethodGet, resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestE2E_MetricsCountDecisions(t *testing.T) {
	e := newEnv(t)
	access, _ := e.login(t)

	e.do(t, http.MethodGet, "/api/auth/me", access, nil)
	e.do(t, http.MethodGet, "/api/auth/me", "", nil)

	n, err := testutil.GatherAndCount(e.reg, "auth_gateway_decisions_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = testutil.GatherAndCount(e.reg, "http_requests_total")
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 2)
}

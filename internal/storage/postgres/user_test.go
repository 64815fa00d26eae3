package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pribylovaa/tweeter-auth/internal/models"
	"github.com/pribylovaa/tweeter-auth/internal/storage"
)

// Интеграционные тесты Postgres-хранилища пользователей:
// - поднимают PostgreSQL через testcontainers-go (postgres:16-alpine);
// - применяют встроенные миграции goose (Migrate);
// - проверяют CRUD, уникальность email (CITEXT) и username, поиск по токенам
//   подтверждения/сброса с учётом срока жизни.
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/postgres -v -race -count=1

// startPostgres поднимает временный PostgreSQL, применяет миграции и
// возвращает хранилище и функцию очистки.
func startPostgres(t *testing.T) (*Storage, func()) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "5432/tcp")
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	require.Eventually(t, func() bool { return Migrate(ctx, dsn) == nil }, 30*time.Second, 500*time.Millisecond)

	st, err := New(ctx, dsn)
	require.NoError(t, err)

	cleanup := func() {
		_ = st.Close(context.Background())
		_ = c.Terminate(context.Background())
	}
	return st, cleanup
}

func newUser(username, email string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TestIntegration_SaveUser_And_Lookups_OK — happy-path: сохранение и поиск по ID/email/username.
func TestIntegration_SaveUser_And_Lookups_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	u := newUser("alice", "Alice@Example.Com")
	require.NoError(t, st.SaveUser(ctx, u))

	byEmail, err := st.UserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)
	require.WithinDuration(t, u.CreatedAt, byEmail.CreatedAt, time.Second)

	byID, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", byID.Username)
	require.Equal(t, models.RoleUser, byID.Role)
	require.False(t, byID.IsEmailVerified)
	require.True(t, byID.VerificationExpiresAt.IsZero())

	byName, err := st.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, byName.ID)
}

// TestIntegration_SaveUser_UniqueViolations — email без учёта регистра и username уникальны.
func TestIntegration_SaveUser_UniqueViolations(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, st.SaveUser(ctx, newUser("bob", "bob@example.com")))

	err := st.SaveUser(ctx, newUser("bob2", "BOB@EXAMPLE.COM"))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	err = st.SaveUser(ctx, newUser("bob", "other@example.com"))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

// TestIntegration_TokenLookups — токены находятся только пока не истекли.
func TestIntegration_TokenLookups(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	u := newUser("carol", "carol@example.com")
	require.NoError(t, st.SaveUser(ctx, u))

	now := time.Now().UTC()
	require.NoError(t, st.SetVerificationToken(ctx, u.ID, "vhash", now.Add(time.Hour), now))
	require.NoError(t, st.SetResetToken(ctx, u.ID, "rhash", now.Add(-time.Minute), now))

	got, err := st.UserByVerificationToken(ctx, "vhash", now)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = st.UserByVerificationToken(ctx, "vhash", now.Add(2*time.Hour))
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByResetToken(ctx, "rhash", now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByResetToken(ctx, "", now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, st.MarkEmailVerified(ctx, u.ID, now))
	_, err = st.UserByVerificationToken(ctx, "vhash", now)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_FieldUpdates_DoNotOverwriteEachOther — каждое обновление
// меняет только свои колонки.
func TestIntegration_FieldUpdates_DoNotOverwriteEachOther(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	u := newUser("gina", "gina@example.com")
	require.NoError(t, st.SaveUser(ctx, u))

	now := time.Now().UTC()
	require.NoError(t, st.SetRole(ctx, u.ID, models.RoleAdmin, now))
	require.NoError(t, st.SetResetToken(ctx, u.ID, "rhash", now.Add(time.Hour), now))
	require.NoError(t, st.SetVerificationToken(ctx, u.ID, "vhash", now.Add(time.Hour), now))
	require.NoError(t, st.MarkEmailVerified(ctx, u.ID, now))

	got, err := st.UserByResetToken(ctx, "rhash", now)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, got.Role)
	require.True(t, got.IsEmailVerified)
	require.Empty(t, got.VerificationTokenHash)

	require.NoError(t, st.SetPassword(ctx, u.ID, "new-hash", now))

	got, err = st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)
	require.Equal(t, models.RoleAdmin, got.Role)
	require.True(t, got.IsEmailVerified)
	require.Empty(t, got.ResetTokenHash)
	require.True(t, got.ResetExpiresAt.IsZero())

	ghost := uuid.New()
	require.ErrorIs(t, st.SetRole(ctx, ghost, models.RoleAdmin, now), storage.ErrNotFound)
	require.ErrorIs(t, st.SetPassword(ctx, ghost, "x", now), storage.ErrNotFound)
}

// TestIntegration_DeleteUser_And_List — удаление и список пользователей.
func TestIntegration_DeleteUser_And_List(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	a := newUser("dave", "dave@example.com")
	b := newUser("erin", "erin@example.com")
	require.NoError(t, st.SaveUser(ctx, a))
	require.NoError(t, st.SaveUser(ctx, b))

	users, err := st.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	require.NoError(t, st.DeleteUser(ctx, a.ID))
	require.ErrorIs(t, st.DeleteUser(ctx, a.ID), storage.ErrNotFound)

	_, err = st.UserByID(ctx, a.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.ErrorIs(t, st.MarkEmailVerified(ctx, a.ID, time.Now()), storage.ErrNotFound)
}

// TestIntegration_SaveUser_ContextDeadlineExceeded — мгновенный дедлайн приводит к DeadlineExceeded.
func TestIntegration_SaveUser_ContextDeadlineExceeded(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()

	err := st.SaveUser(ctx, newUser("frank", "frank@example.com"))
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

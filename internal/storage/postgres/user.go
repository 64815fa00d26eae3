package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/tweeter-auth/internal/models"
	"github.com/pribylovaa/tweeter-auth/internal/storage"
)

const userColumns = `
	id, username, email, password_hash, role, is_email_verified,
	verification_token_hash, verification_expires_at,
	reset_token_hash, reset_expires_at,
	created_at, updated_at
`

// SaveUser создает нового пользователя в БД.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users(` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.IsEmailVerified,
		user.VerificationTokenHash,
		nullTime(user.VerificationExpiresAt),
		user.ResetTokenHash,
		nullTime(user.ResetExpiresAt),
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SetRole меняет роль пользователя.
func (s *Storage) SetRole(ctx context.Context, id uuid.UUID, role string, now time.Time) error {
	const op = "storage.postgres.SetRole"

	return s.execUpdate(ctx, op, `
		UPDATE users SET role = $2, updated_at = $3 WHERE id = $1
	`, id, role, now.UTC())
}

// SetPassword меняет хэш пароля и гасит токен сброса.
func (s *Storage) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string, now time.Time) error {
	const op = "storage.postgres.SetPassword"

	return s.execUpdate(ctx, op, `
		UPDATE users
		SET password_hash = $2,
		    reset_token_hash = '',
		    reset_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1
	`, id, passwordHash, now.UTC())
}

// SetVerificationToken записывает токен подтверждения e-mail.
func (s *Storage) SetVerificationToken(ctx context.Context, id uuid.UUID, hash string, expiresAt, now time.Time) error {
	const op = "storage.postgres.SetVerificationToken"

	return s.execUpdate(ctx, op, `
		UPDATE users
		SET verification_token_hash = $2,
		    verification_expires_at = $3,
		    updated_at = $4
		WHERE id = $1
	`, id, hash, nullTime(expiresAt), now.UTC())
}

// MarkEmailVerified подтверждает e-mail и гасит токен подтверждения.
func (s *Storage) MarkEmailVerified(ctx context.Context, id uuid.UUID, now time.Time) error {
	const op = "storage.postgres.MarkEmailVerified"

	return s.execUpdate(ctx, op, `
		UPDATE users
		SET is_email_verified = TRUE,
		    verification_token_hash = '',
		    verification_expires_at = NULL,
		    updated_at = $2
		WHERE id = $1
	`, id, now.UTC())
}

// SetResetToken записывает токен сброса пароля.
func (s *Storage) SetResetToken(ctx context.Context, id uuid.UUID, hash string, expiresAt, now time.Time) error {
	const op = "storage.postgres.SetResetToken"

	return s.execUpdate(ctx, op, `
		UPDATE users
		SET reset_token_hash = $2,
		    reset_expires_at = $3,
		    updated_at = $4
		WHERE id = $1
	`, id, hash, nullTime(expiresAt), now.UTC())
}

func (s *Storage) execUpdate(ctx context.Context, op, query string, args ...any) error {
	cmdTag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DeleteUser удаляет пользователя.
func (s *Storage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgres.DeleteUser"

	cmdTag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	return s.queryUser(ctx, op, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// UserByEmail находит пользователя по email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.UserByEmail"

	return s.queryUser(ctx, op, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// UserByUsername находит пользователя по имени.
func (s *Storage) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.postgres.UserByUsername"

	return s.queryUser(ctx, op, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// UserByVerificationToken находит пользователя по хэшу неистёкшего токена подтверждения.
func (s *Storage) UserByVerificationToken(ctx context.Context, hash string, now time.Time) (*models.User, error) {
	const op = "storage.postgres.UserByVerificationToken"

	if hash == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE verification_token_hash = $1 AND verification_expires_at > $2
	`

	return s.queryUser(ctx, op, query, hash, now.UTC())
}

// UserByResetToken находит пользователя по хэшу неистёкшего токена сброса пароля.
func (s *Storage) UserByResetToken(ctx context.Context, hash string, now time.Time) (*models.User, error) {
	const op = "storage.postgres.UserByResetToken"

	if hash == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE reset_token_hash = $1 AND reset_expires_at > $2
	`

	return s.queryUser(ctx, op, query, hash, now.UTC())
}

// ListUsers возвращает всех пользователей в порядке создания.
func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "storage.postgres.ListUsers"

	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

func (s *Storage) queryUser(ctx context.Context, op, query string, args ...any) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		user                  models.User
		verificationExpiresAt *time.Time
		resetExpiresAt        *time.Time
	)

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsEmailVerified,
		&user.VerificationTokenHash,
		&verificationExpiresAt,
		&user.ResetTokenHash,
		&resetExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.VerificationExpiresAt = fromNullTime(verificationExpiresAt)
	user.ResetExpiresAt = fromNullTime(resetExpiresAt)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()

	return &user, nil
}

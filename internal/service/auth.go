package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/tweeter-auth/internal/metrics"
	"github.com/pribylovaa/tweeter-auth/internal/models"
	"github.com/pribylovaa/tweeter-auth/internal/pkg/log"
	"github.com/pribylovaa/tweeter-auth/internal/pkg/redact"
	"github.com/pribylovaa/tweeter-auth/internal/storage"
	"github.com/pribylovaa/tweeter-auth/internal/token"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 30
	minPasswordLen = 8
)

// Register регистрирует пользователя с ролью user и отправляет письмо
// для подтверждения e-mail. Сбой отправки письма не отменяет регистрацию.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	const op = "service.auth.Register"

	lg := log.From(ctx)

	normName, err := validateUsername(username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.ensureAvailable(ctx, normName, normEmail); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hashed, err := s.hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plain, hash, err := newOneTimeToken()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	user := &models.User{
		ID:                    uuid.New(),
		Username:              normName,
		Email:                 normEmail,
		PasswordHash:          hashed,
		Role:                  models.RoleUser,
		VerificationTokenHash: hash,
		VerificationExpiresAt: now.Add(s.cfg.VerificationTTL),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.users.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Гонка двух регистраций: выясняем, что именно заняли.
			if err := s.ensureAvailable(ctx, normName, normEmail); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.mailer.SendVerification(ctx, user.Email, user.Username, plain); err != nil {
		lg.Error("register_verification_mail_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(user.Email)),
			slog.String("err", err.Error()),
		)
	}

	lg.Info("user_registered",
		slog.String("user_id", user.ID.String()),
	)

	return user, nil
}

// Login выполняет вход по email+пароль, выпускает пару токенов и
// записывает её в реестр сессий (перезаписывая предыдущую).
func (s *Service) Login(ctx context.Context, email, password string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.Login"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if password == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.users.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !user.IsEmailVerified && !s.cfg.AllowUnverifiedLogin {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailNotVerified)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_logged_in",
		slog.String("user_id", user.ID.String()),
	)

	return pair, user, nil
}

// Refresh выпускает новый access-токен по refresh-токену.
// Refresh-токен проверяется по чёрному списку, подписи, сроку и типу;
// сам refresh-токен не ротируется.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	const op = "service.auth.Refresh"

	lg := log.From(ctx)

	if refreshToken == "" {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	// Чтения чёрного списка и хранилища ограничены тем же дедлайном, что и в шлюзе.
	lookupCtx := ctx
	if s.cfg.LookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.cfg.LookupTimeout)
		defer cancel()
	}

	revoked, err := s.blacklist.IsBlacklisted(lookupCtx, refreshToken)
	if err != nil {
		lg.Error("refresh_blacklist_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", time.Time{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	if revoked {
		lg.Warn("refresh_rejected",
			slog.String("op", op),
			slog.String("reason", "revoked"),
		)
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		lg.Warn("refresh_rejected",
			slog.String("op", op),
			slog.String("reason", err.Error()),
		)
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := claims.UserID()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.users.UserByID(lookupCtx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	access, accessClaims, err := s.codec.IssueAccess(user)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.TokenIssued(string(models.TokenAccess))

	if err := s.sessions.Store(ctx, user.ID, models.TokenAccess, access, s.codec.AccessTTL()); err != nil {
		s.metrics.RevocationFailed(metrics.StepRegistry)
		lg.Error("refresh_registry_store_failed",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
			slog.String("err", err.Error()),
		)
	}

	return access, accessClaims.ExpiresAt.Time, nil
}

// Me возвращает профиль пользователя.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	const op = "service.auth.Me"

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// DeleteAccount отзывает сессии текущего пользователя (best-effort) и удаляет его.
func (s *Service) DeleteAccount(ctx context.Context, id *models.Identity) error {
	const op = "service.auth.DeleteAccount"

	if err := s.Logout(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.DeleteUser(ctx, id.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("account_deleted",
		slog.String("user_id", id.UserID.String()),
	)

	return nil
}

// issueTokenPair выпускает новую пару access+refresh и записывает её в реестр сессий.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	access, accessClaims, err := s.codec.IssueAccess(user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, refreshClaims, err := s.codec.IssueRefresh(user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sessions.Store(ctx, user.ID, models.TokenAccess, access, s.codec.AccessTTL()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sessions.Store(ctx, user.ID, models.TokenRefresh, refresh, s.codec.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.TokenIssued(string(models.TokenAccess))
	s.metrics.TokenIssued(string(models.TokenRefresh))

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

// ensureAvailable проверяет, что имя и e-mail свободны.
func (s *Service) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := s.users.UserByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if _, err := s.users.UserByUsername(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	return nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func (s *Service) hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateUsername обрезает пробелы и проверяет длину 3-30 символов.
func validateUsername(raw string) (string, error) {
	const op = "service.auth.validateUsername"

	name := strings.TrimSpace(raw)
	if n := utf8.RuneCountInString(name); n < minUsernameLen || n > maxUsernameLen {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidUsername)
	}

	return name, nil
}

// validateEmail проверяет базовый формат email и приводит его к нижнему регистру.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю:
// длина >= 8, хотя бы одна строчная, заглавная буква и цифра.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if pw == "" {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if utf8.RuneCountInString(pw) < minPasswordLen {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !(hasLower && hasUpper && hasDigit) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}

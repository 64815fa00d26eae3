package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/tweeter-auth/internal/pkg/log"
	"github.com/pribylovaa/tweeter-auth/internal/pkg/redact"
	"github.com/pribylovaa/tweeter-auth/internal/storage"
)

// oneTimeTokenBytes — длина случайной части токенов подтверждения и сброса.
const oneTimeTokenBytes = 20

// newOneTimeToken возвращает открытый токен (hex) и его SHA-256 хэш для хранения.
func newOneTimeToken() (plain, hash string, err error) {
	const op = "service.account.newOneTimeToken"

	b := make([]byte, oneTimeTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	plain = hex.EncodeToString(b)
	return plain, hashOneTimeToken(plain), nil
}

func hashOneTimeToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// VerifyEmail подтверждает e-mail по живому токену и гасит токен.
func (s *Service) VerifyEmail(ctx context.Context, plainToken string) error {
	const op = "service.account.VerifyEmail"

	if plainToken == "" {
		return fmt.Errorf("%s: %w", op, ErrVerificationToken)
	}

	now := s.now()
	user, err := s.users.UserByVerificationToken(ctx, hashOneTimeToken(plainToken), now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrVerificationToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrVerificationToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("email_verified",
		slog.String("user_id", user.ID.String()),
	)

	return nil
}

// ResendVerification выпускает новый токен подтверждения (старый перестаёт
// действовать) и отправляет письмо.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	const op = "service.account.ResendVerification"

	normEmail, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if user.IsEmailVerified {
		return fmt.Errorf("%s: %w", op, ErrAlreadyVerified)
	}

	plain, hash, err := newOneTimeToken()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	if err := s.users.SetVerificationToken(ctx, user.ID, hash, now.Add(s.cfg.VerificationTTL), now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.mailer.SendVerification(ctx, user.Email, user.Username, plain); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ForgotPassword выпускает токен сброса пароля (старый перестаёт действовать)
// и отправляет письмо со ссылкой.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	const op = "service.account.ForgotPassword"

	normEmail, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	plain, hash, err := newOneTimeToken()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	if err := s.users.SetResetToken(ctx, user.ID, hash, now.Add(s.cfg.ResetTTL), now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.Username, plain); err != nil {
		log.From(ctx).Error("forgot_password_mail_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(user.Email)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ResetPassword меняет пароль по живому токену сброса, гасит токен и
// отзывает все сессии пользователя.
func (s *Service) ResetPassword(ctx context.Context, plainToken, newPassword string) error {
	const op = "service.account.ResetPassword"

	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if plainToken == "" {
		return fmt.Errorf("%s: %w", op, ErrResetToken)
	}

	now := s.now()
	user, err := s.users.UserByResetToken(ctx, hashOneTimeToken(plainToken), now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrResetToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	hashed, err := s.hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.SetPassword(ctx, user.ID, hashed, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrResetToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	_ = s.RevokeUserSessions(ctx, user.ID)

	log.From(ctx).Info("password_reset",
		slog.String("user_id", user.ID.String()),
	)

	return nil
}

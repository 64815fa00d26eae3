package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/tweeter-auth/internal/metrics"
	"github.com/pribylovaa/tweeter-auth/internal/models"
	"github.com/pribylovaa/tweeter-auth/internal/pkg/log"
	"github.com/pribylovaa/tweeter-auth/internal/pkg/redact"
	"github.com/pribylovaa/tweeter-auth/internal/storage"
	"github.com/pribylovaa/tweeter-auth/internal/token"
)

// Authenticate проверяет bearer-токен и возвращает личность пользователя.
// Порядок: чёрный список -> подпись/срок/claims -> пользователь в хранилище.
// Ошибки хранилищ и таймауты трактуются как отказ (ErrInvalidToken), без ретраев.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*models.Identity, error) {
	const op = "service.gateway.Authenticate"

	lg := log.From(ctx)

	if rawToken == "" {
		s.metrics.Decision(metrics.ResultMissing)
		return nil, fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	if s.cfg.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LookupTimeout)
		defer cancel()
	}

	revoked, err := s.blacklist.IsBlacklisted(ctx, rawToken)
	if err != nil {
		s.metrics.Decision(metrics.ResultStoreError)
		lg.Error("auth_blacklist_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	if revoked {
		s.metrics.Decision(metrics.ResultRevoked)
		lg.Warn("auth_token_revoked",
			slog.String("op", op),
			slog.String("token", redact.Token(rawToken)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	claims, err := s.codec.VerifyAccess(rawToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			s.metrics.Decision(metrics.ResultExpired)
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		s.metrics.Decision(metrics.ResultInvalid)
		lg.Warn("auth_token_invalid",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := claims.UserID()
	if err != nil {
		s.metrics.Decision(metrics.ResultInvalid)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.users.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.Decision(metrics.ResultUserNotFound)
			lg.Warn("auth_user_not_found",
				slog.String("op", op),
				slog.String("user_id", uid.String()),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		s.metrics.Decision(metrics.ResultStoreError)
		lg.Error("auth_user_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	s.metrics.Decision(metrics.ResultOK)

	return &models.Identity{
		UserID:          user.ID,
		Username:        user.Username,
		Email:           user.Email,
		Role:            user.Role,
		IsEmailVerified: user.IsEmailVerified,
		Token:           rawToken,
		TokenExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// Authorize пропускает личность, роль которой входит в roles.
func (s *Service) Authorize(id *models.Identity, roles ...string) error {
	const op = "service.gateway.Authorize"

	if id == nil {
		return fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	if !slices.Contains(roles, id.Role) {
		s.metrics.Decision(metrics.ResultForbidden)
		return fmt.Errorf("%s: %w: %s", op, ErrForbiddenRole, id.Role)
	}

	return nil
}

// Logout отзывает текущий access-токен и все сессии пользователя.
// Шаги независимы и выполняются по принципу best-effort: сбой одного
// не мешает другому и не делает выход неуспешным (ошибки пишутся в лог).
func (s *Service) Logout(ctx context.Context, id *models.Identity) error {
	const op = "service.gateway.Logout"

	if id == nil {
		return fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	lg := log.From(ctx)

	if err := s.blacklistToken(ctx, id.Token, s.remaining(id.TokenExpiresAt)); err != nil {
		lg.Error("logout_blacklist_failed",
			slog.String("op", op),
			slog.String("user_id", id.UserID.String()),
			slog.String("err", err.Error()),
		)
	}

	_ = s.RevokeUserSessions(ctx, id.UserID)

	lg.Info("logout",
		slog.String("user_id", id.UserID.String()),
	)

	return nil
}

// RevokeUserSessions заносит в чёрный список токены из реестра сессий
// (с остатком их жизни) и удаляет записи реестра. Используется при выходе,
// сбросе пароля и удалении пользователя. Возвращает объединённую ошибку шагов,
// которые не удались; каждый шаг выполняется независимо.
func (s *Service) RevokeUserSessions(ctx context.Context, userID uuid.UUID) error {
	const op = "service.gateway.RevokeUserSessions"

	lg := log.From(ctx)

	var errs []error
	for _, kind := range []models.TokenKind{models.TokenAccess, models.TokenRefresh} {
		raw, ok, err := s.sessions.Get(ctx, userID, kind)
		if err != nil {
			s.metrics.RevocationFailed(metrics.StepRegistry)
			errs = append(errs, err)
			lg.Error("revoke_registry_read_failed",
				slog.String("op", op),
				slog.String("user_id", userID.String()),
				slog.String("kind", string(kind)),
				slog.String("err", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}

		claims, err := s.codec.Verify(raw)
		if err != nil {
			// Истёкший или чужой токен уже не пройдёт проверку шлюза.
			continue
		}

		if err := s.blacklistToken(ctx, raw, claims.ExpiresIn(s.now())); err != nil {
			errs = append(errs, err)
			lg.Error("revoke_blacklist_failed",
				slog.String("op", op),
				slog.String("user_id", userID.String()),
				slog.String("kind", string(kind)),
				slog.String("err", err.Error()),
			)
		}
	}

	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		s.metrics.RevocationFailed(metrics.StepRegistry)
		errs = append(errs, err)
		lg.Error("revoke_registry_delete_failed",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
			slog.String("err", err.Error()),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}

	return nil
}

func (s *Service) blacklistToken(ctx context.Context, raw string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.cfg.BlacklistTTL
	}

	if err := s.blacklist.Blacklist(ctx, raw, ttl); err != nil {
		s.metrics.RevocationFailed(metrics.StepBlacklist)
		return err
	}

	return nil
}

// remaining — остаток жизни токена относительно текущего времени (0, если неизвестен).
func (s *Service) remaining(exp time.Time) time.Duration {
	if exp.IsZero() {
		return 0
	}

	if d := exp.Sub(s.now()); d > 0 {
		return d
	}

	return 0
}

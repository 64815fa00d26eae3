package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pribylovaa/tweeter-auth/internal/models"
	"github.com/pribylovaa/tweeter-auth/internal/pkg/log"
	"github.com/pribylovaa/tweeter-auth/internal/storage"
)

// ListUsers возвращает всех пользователей.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "service.admin.ListUsers"

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

// UpdateRole меняет роль пользователя. Токены не перевыпускаются:
// шлюз читает роль из хранилища, новая роль действует со следующего запроса.
func (s *Service) UpdateRole(ctx context.Context, userID uuid.UUID, role string) (*models.User, error) {
	const op = "service.admin.UpdateRole"

	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRole)
	}

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	if err := s.users.SetRole(ctx, user.ID, role, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user.Role = role
	user.UpdatedAt = now

	log.From(ctx).Info("role_updated",
		slog.String("user_id", userID.String()),
		slog.String("role", role),
	)

	return user, nil
}

// DeleteUser удаляет пользователя от имени администратора actor.
// Удалить другого администратора нельзя. Сессии удаляемого отзываются до удаления.
func (s *Service) DeleteUser(ctx context.Context, actor *models.Identity, userID uuid.UUID) error {
	const op = "service.admin.DeleteUser"

	if actor == nil {
		return fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	target, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if target.Role == models.RoleAdmin && target.ID != actor.UserID {
		return fmt.Errorf("%s: %w", op, ErrCannotDeleteAdmin)
	}

	_ = s.RevokeUserSessions(ctx, target.ID)

	if err := s.users.DeleteUser(ctx, target.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_deleted_by_admin",
		slog.String("user_id", target.ID.String()),
		slog.String("admin_id", actor.UserID.String()),
	)

	return nil
}

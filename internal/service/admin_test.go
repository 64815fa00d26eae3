package service

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/tweeter-auth/internal/models"
	"github.com/pribylovaa/tweeter-auth/internal/storage"
)

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	want := []models.User{{ID: uuid.New()}, {ID: uuid.New()}}
	f.users.EXPECT().ListUsers(gomock.Any()).Return(want, nil)

	got, err := f.svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestUpdateRole(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newFixture(t)
		u := testUser(t, "Passw0rd1")
		f.users.EXPECT().UserByID(gomock.Any(), u.ID).Return(u, nil)
		f.users.EXPECT().SetRole(gomock.Any(), u.ID, models.RoleAdmin, gomock.Any()).Return(nil)

		got, err := f.svc.UpdateRole(context.Background(), u.ID, models.RoleAdmin)
		require.NoError(t, err)
		require.Equal(t, models.RoleAdmin, got.Role)
	})

	t.Run("invalid role", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateRole(context.Background(), uuid.New(), "root")
		require.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		f.users.EXPECT().UserByID(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)

		_, err := f.svc.UpdateRole(context.Background(), uuid.New(), models.RoleUser)
		require.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestDeleteUser(t *testing.T) {
	admin := &models.Identity{UserID: uuid.New(), Role: models.RoleAdmin}

	t.Run("revokes sessions then deletes", func(t *testing.T) {
		f := newFixture(t)
		u := testUser(t, "Passw0rd1")
		pair := f.login(t, u, "Passw0rd1")

		f.users.EXPECT().UserByID(gomock.Any(), u.ID).Return(u, nil)
		f.users.EXPECT().DeleteUser(gomock.Any(), u.ID).Return(nil)

		require.NoError(t, f.svc.DeleteUser(context.Background(), admin, u.ID))
		require.True(t, f.mr.Exists("blacklist:"+pair.AccessToken))
		require.False(t, f.mr.Exists("refreshToken:"+u.ID.String()))
	})

	t.Run("another admin", func(t *testing.T) {
		f := newFixture(t)
		other := testUser(t, "Passw0rd1")
		other.Role = models.RoleAdmin
		f.users.EXPECT().UserByID(gomock.Any(), other.ID).Return(other, nil)

		require.ErrorIs(t, f.svc.DeleteUser(context.Background(), admin, other.ID), ErrCannotDeleteAdmin)
	})

	t.Run("self", func(t *testing.T) {
		f := newFixture(t)
		self := testUser(t, "Passw0rd1")
		self.ID = admin.UserID
		self.Role = models.RoleAdmin
		f.users.EXPECT().UserByID(gomock.Any(), self.ID).Return(self, nil)
		f.users.EXPECT().DeleteUser(gomock.Any(), self.ID).Return(nil)

		require.NoError(t, f.svc.DeleteUser(context.Background(), admin, self.ID))
	})

	t.Run("unknown", func(t *testing.T) {
		f := newFixture(t)
		f.users.EXPECT().UserByID(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)

		require.ErrorIs(t, f.svc.DeleteUser(context.Background(), admin, uuid.New()), ErrUserNotFound)
	})
}

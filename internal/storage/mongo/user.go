package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pribylovaa/tweeter-auth/internal/models"
	"github.com/pribylovaa/tweeter-auth/internal/storage"
)

// userDoc — представление пользователя в коллекции users.
// MongoDB DateTime хранит миллисекунды, поэтому времена усекаются при записи.
type userDoc struct {
	ID                    string     `bson:"_id"`
	Username              string     `bson:"username"`
	Email                 string     `bson:"email"`
	PasswordHash          string     `bson:"password_hash"`
	Role                  string     `bson:"role"`
	IsEmailVerified       bool       `bson:"is_email_verified"`
	VerificationTokenHash string     `bson:"verification_token_hash"`
	VerificationExpiresAt *time.Time `bson:"verification_expires_at,omitempty"`
	ResetTokenHash        string     `bson:"reset_token_hash"`
	ResetExpiresAt        *time.Time `bson:"reset_expires_at,omitempty"`
	CreatedAt             time.Time  `bson:"created_at"`
	UpdatedAt             time.Time  `bson:"updated_at"`
}

func toMS(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	v := toMS(t)
	return &v
}

func fromOptTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}

	return t.UTC()
}

func toDoc(u *models.User) userDoc {
	return userDoc{
		ID:                    u.ID.String(),
		Username:              u.Username,
		Email:                 u.Email,
		PasswordHash:          u.PasswordHash,
		Role:                  u.Role,
		IsEmailVerified:       u.IsEmailVerified,
		VerificationTokenHash: u.VerificationTokenHash,
		VerificationExpiresAt: optTime(u.VerificationExpiresAt),
		ResetTokenHash:        u.ResetTokenHash,
		ResetExpiresAt:        optTime(u.ResetExpiresAt),
		CreatedAt:             toMS(u.CreatedAt),
		UpdatedAt:             toMS(u.UpdatedAt),
	}
}

func (d *userDoc) toModel() (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("bad user id %q: %w", d.ID, err)
	}

	return &models.User{
		ID:                    id,
		Username:              d.Username,
		Email:                 d.Email,
		PasswordHash:          d.PasswordHash,
		Role:                  d.Role,
		IsEmailVerified:       d.IsEmailVerified,
		VerificationTokenHash: d.VerificationTokenHash,
		VerificationExpiresAt: fromOptTime(d.VerificationExpiresAt),
		ResetTokenHash:        d.ResetTokenHash,
		ResetExpiresAt:        fromOptTime(d.ResetExpiresAt),
		CreatedAt:             d.CreatedAt.UTC(),
		UpdatedAt:             d.UpdatedAt.UTC(),
	}, nil
}

// SaveUser создаёт пользователя. Дубликат email/username — storage.ErrAlreadyExists.
func (m *Mongo) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongo.SaveUser"

	if _, err := m.users.InsertOne(ctx, toDoc(user)); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (m *Mongo) SetRole(ctx context.Context, id uuid.UUID, role string, now time.Time) error {
	return m.updateFields(ctx, "storage.mongo.SetRole", id, bson.D{
		{Key: "role", Value: role},
	}, nil, now)
}

// SetPassword меняет хэш пароля и гасит токен сброса одной операцией.
func (m *Mongo) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string, now time.Time) error {
	return m.updateFields(ctx, "storage.mongo.SetPassword", id, bson.D{
		{Key: "password_hash", Value: passwordHash},
		{Key: "reset_token_hash", Value: ""},
	}, bson.D{{Key: "reset_expires_at", Value: ""}}, now)
}

func (m *Mongo) SetVerificationToken(ctx context.Context, id uuid.UUID, hash string, expiresAt, now time.Time) error {
	return m.updateFields(ctx, "storage.mongo.SetVerificationToken", id, bson.D{
		{Key: "verification_token_hash", Value: hash},
		{Key: "verification_expires_at", Value: toMS(expiresAt)},
	}, nil, now)
}

func (m *Mongo) MarkEmailVerified(ctx context.Context, id uuid.UUID, now time.Time) error {
	return m.updateFields(ctx, "storage.mongo.MarkEmailVerified", id, bson.D{
		{Key: "is_email_verified", Value: true},
		{Key: "verification_token_hash", Value: ""},
	}, bson.D{{Key: "verification_expires_at", Value: ""}}, now)
}

func (m *Mongo) SetResetToken(ctx context.Context, id uuid.UUID, hash string, expiresAt, now time.Time) error {
	return m.updateFields(ctx, "storage.mongo.SetResetToken", id, bson.D{
		{Key: "reset_token_hash", Value: hash},
		{Key: "reset_expires_at", Value: toMS(expiresAt)},
	}, nil, now)
}

// updateFields выполняет $set (и при необходимости $unset) только переданных полей.
func (m *Mongo) updateFields(ctx context.Context, op string, id uuid.UUID, set, unset bson.D, now time.Time) error {
	set = append(set, bson.E{Key: "updated_at", Value: toMS(now)})

	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}

	res, err := m.users.UpdateByID(ctx, id.String(), update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DeleteUser удаляет пользователя. Отсутствие записи — storage.ErrNotFound.
func (m *Mongo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.mongo.DeleteUser"

	res, err := m.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

func (m *Mongo) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.findOne(ctx, "storage.mongo.UserByID", bson.D{{Key: "_id", Value: id.String()}})
}

// UserByEmail ищет по email без учёта регистра (коллация индекса email_unique).
func (m *Mongo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findOne(ctx, "storage.mongo.UserByEmail", bson.D{{Key: "email", Value: email}},
		options.FindOne().SetCollation(caseInsensitive))
}

func (m *Mongo) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.findOne(ctx, "storage.mongo.UserByUsername", bson.D{{Key: "username", Value: username}})
}

func (m *Mongo) UserByVerificationToken(ctx context.Context, hash string, now time.Time) (*models.User, error) {
	const op = "storage.mongo.UserByVerificationToken"

	if hash == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return m.findOne(ctx, op, bson.D{
		{Key: "verification_token_hash", Value: hash},
		{Key: "verification_expires_at", Value: bson.D{{Key: "$gt", Value: toMS(now)}}},
	})
}

func (m *Mongo) UserByResetToken(ctx context.Context, hash string, now time.Time) (*models.User, error) {
	const op = "storage.mongo.UserByResetToken"

	if hash == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return m.findOne(ctx, op, bson.D{
		{Key: "reset_token_hash", Value: hash},
		{Key: "reset_expires_at", Value: bson.D{{Key: "$gt", Value: toMS(now)}}},
	})
}

// ListUsers возвращает всех пользователей в порядке создания.
func (m *Mongo) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "storage.mongo.ListUsers"

	cur, err := m.users.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cur.Close(ctx)

	out := make([]models.User, 0)
	for cur.Next(ctx) {
		var d userDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}

		u, err := d.toModel()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *u)
	}

	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (m *Mongo) findOne(ctx context.Context, op string, filter bson.D, opts ...*options.FindOneOptions) (*models.User, error) {
	var d userDoc
	if err := m.users.FindOne(ctx, filter, opts...).Decode(&d); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := d.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

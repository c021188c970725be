package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mobile_auth/internal/models"
	"mobile_auth/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// UserRepo is the credential store adapter. Each method states which pool
// it routes through; lookups that must observe a just-completed write go
// through the write collection.
type UserRepo struct {
	read  *mongo.Collection
	write *mongo.Collection
}

func NewUserRepo(router *Router) *UserRepo {
	return &UserRepo{
		read:  router.ReadDB().Collection(usersCollection),
		write: router.WriteDB().Collection(usersCollection),
	}
}

// EnsureIndexes creates the unique email index that backs the uniqueness
// invariant, plus sparse lookup indexes for the token fields.
func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	const op = "storage.mongodb.EnsureIndexes"

	_, err := r.write.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "refreshToken", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "resetPasswordToken", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "verificationToken", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SaveUser inserts via the write pool. A duplicate-key error from the
// unique email index is normalized to storage.ErrUserExists; the index is
// the source of truth for uniqueness, not the caller's pre-check.
func (r *UserRepo) SaveUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.mongodb.SaveUser"

	user.Email = normalizeEmail(user.Email)
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := r.write.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, storage.ErrUserExists
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user.ID = res.InsertedID.(primitive.ObjectID)

	return user, nil
}

// UserByEmail looks up via the read pool. Staleness-tolerant; used for
// the registration pre-check and anti-enumeration flows.
func (r *UserRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, r.read, bson.M{"email": normalizeEmail(email)})
}

// UserByEmailConsistent looks up via the write pool. Login must see the
// latest password hash, so it never reads from a secondary.
func (r *UserRepo) UserByEmailConsistent(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, r.write, bson.M{"email": normalizeEmail(email)})
}

// UserByID looks up via the read pool.
func (r *UserRepo) UserByID(ctx context.Context, id string) (models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, storage.ErrUserNotFound
	}

	return r.findOne(ctx, r.read, bson.M{"_id": oid})
}

// UserByRefreshToken matches the stored token value with an unexpired
// bound, via the write pool so a just-rotated token is visible.
func (r *UserRepo) UserByRefreshToken(ctx context.Context, token string) (models.User, error) {
	user, err := r.findOne(ctx, r.write, bson.M{
		"refreshToken":          token,
		"refreshTokenExpiresAt": bson.M{"$gt": time.Now().UTC()},
	})
	if errors.Is(err, storage.ErrUserNotFound) {
		return models.User{}, storage.ErrTokenNotFound
	}

	return user, err
}

func (r *UserRepo) UserByResetToken(ctx context.Context, token string) (models.User, error) {
	user, err := r.findOne(ctx, r.write, bson.M{
		"resetPasswordToken":     token,
		"resetPasswordExpiresAt": bson.M{"$gt": time.Now().UTC()},
	})
	if errors.Is(err, storage.ErrUserNotFound) {
		return models.User{}, storage.ErrTokenNotFound
	}

	return user, err
}

func (r *UserRepo) UserByVerificationToken(ctx context.Context, token string) (models.User, error) {
	user, err := r.findOne(ctx, r.write, bson.M{
		"verificationToken":          token,
		"verificationTokenExpiresAt": bson.M{"$gt": time.Now().UTC()},
	})
	if errors.Is(err, storage.ErrUserNotFound) {
		return models.User{}, storage.ErrTokenNotFound
	}

	return user, err
}

// RotateRefreshToken overwrites the stored token and expiry in a single
// update, so two refresh tokens are never simultaneously valid for one
// user.
func (r *UserRepo) RotateRefreshToken(ctx context.Context, userID string, token string, expiresAt time.Time) error {
	return r.updateByID(ctx, "storage.mongodb.RotateRefreshToken", userID, bson.M{
		"$set": bson.M{
			"refreshToken":          token,
			"refreshTokenExpiresAt": expiresAt.UTC(),
			"updatedAt":             time.Now().UTC(),
		},
	})
}

func (r *UserRepo) ClearRefreshToken(ctx context.Context, userID string) error {
	return r.updateByID(ctx, "storage.mongodb.ClearRefreshToken", userID, bson.M{
		"$unset": bson.M{
			"refreshToken":          "",
			"refreshTokenExpiresAt": "",
		},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
}

func (r *UserRepo) SetResetToken(ctx context.Context, userID string, token string, expiresAt time.Time) error {
	return r.updateByID(ctx, "storage.mongodb.SetResetToken", userID, bson.M{
		"$set": bson.M{
			"resetPasswordToken":     token,
			"resetPasswordExpiresAt": expiresAt.UTC(),
			"updatedAt":              time.Now().UTC(),
		},
	})
}

func (r *UserRepo) SetVerificationToken(ctx context.Context, userID string, token string, expiresAt time.Time) error {
	return r.updateByID(ctx, "storage.mongodb.SetVerificationToken", userID, bson.M{
		"$set": bson.M{
			"verificationToken":          token,
			"verificationTokenExpiresAt": expiresAt.UTC(),
			"updatedAt":                  time.Now().UTC(),
		},
	})
}

// ResetPassword installs the new hash and clears the reset token and the
// refresh token in the same update: a password change invalidates every
// existing session.
func (r *UserRepo) ResetPassword(ctx context.Context, userID string, passHash []byte) error {
	return r.updateByID(ctx, "storage.mongodb.ResetPassword", userID, bson.M{
		"$set": bson.M{
			"passwordHash": passHash,
			"updatedAt":    time.Now().UTC(),
		},
		"$unset": bson.M{
			"resetPasswordToken":     "",
			"resetPasswordExpiresAt": "",
			"refreshToken":           "",
			"refreshTokenExpiresAt":  "",
		},
	})
}

// MarkEmailVerified sets the verified flag and clears the single-use
// verification token in the same update.
func (r *UserRepo) MarkEmailVerified(ctx context.Context, userID string) error {
	return r.updateByID(ctx, "storage.mongodb.MarkEmailVerified", userID, bson.M{
		"$set": bson.M{
			"isEmailVerified": true,
			"updatedAt":       time.Now().UTC(),
		},
		"$unset": bson.M{
			"verificationToken":          "",
			"verificationTokenExpiresAt": "",
		},
	})
}

func (r *UserRepo) findOne(ctx context.Context, coll *mongo.Collection, filter bson.M) (models.User, error) {
	var user models.User

	err := coll.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("storage.mongodb.findOne: %w", err)
	}

	return user, nil
}

func (r *UserRepo) updateByID(ctx context.Context, op string, userID string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return storage.ErrUserNotFound
	}

	res, err := r.write.UpdateByID(ctx, oid, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

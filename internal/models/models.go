package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type User struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Email           string             `bson:"email"`
	Name            string             `bson:"name"`
	PassHash        []byte             `bson:"passwordHash"`
	Role            string             `bson:"role"`
	IsActive        bool               `bson:"isActive"`
	IsEmailVerified bool               `bson:"isEmailVerified"`

	RefreshToken          string    `bson:"refreshToken,omitempty"`
	RefreshTokenExpiresAt time.Time `bson:"refreshTokenExpiresAt,omitempty"`

	ResetToken          string    `bson:"resetPasswordToken,omitempty"`
	ResetTokenExpiresAt time.Time `bson:"resetPasswordExpiresAt,omitempty"`

	VerificationToken          string    `bson:"verificationToken,omitempty"`
	VerificationTokenExpiresAt time.Time `bson:"verificationTokenExpiresAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// PublicUser is the only serialized form of a user. Password hash and
// token fields never leave the service.
type PublicUser struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Role            string    `json:"role"`
	IsActive        bool      `json:"is_active"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID.Hex(),
		Email:           u.Email,
		Name:            u.Name,
		Role:            u.Role,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       u.CreatedAt,
	}
}

const (
	NotificationWelcome           = "welcome"
	NotificationEmailVerification = "email_verification"
	NotificationPasswordReset     = "password_reset"
	NotificationLoginEvent        = "login_event"
)

type Notification struct {
	Type   string `json:"type"`
	Email  string `json:"email,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Token  string `json:"token,omitempty"`
	Link   string `json:"link,omitempty"`
}

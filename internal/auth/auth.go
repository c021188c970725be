package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mobile_auth/internal/config"
	"mobile_auth/internal/lib/jwt"
	sl "mobile_auth/internal/lib/logger"
	"mobile_auth/internal/models"
	"mobile_auth/internal/notify"
	"mobile_auth/internal/storage"
	"mobile_auth/internal/storage/rediscache"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountDeactivated  = errors.New("account is deactivated")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrInvalidResetToken   = errors.New("invalid or expired reset token")
	ErrInvalidVerifyToken  = errors.New("invalid or expired verification token")
)

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type UserSaver interface {
	SaveUser(ctx context.Context, user models.User) (models.User, error)
	RotateRefreshToken(ctx context.Context, userID string, token string, expiresAt time.Time) error
	ClearRefreshToken(ctx context.Context, userID string) error
	SetResetToken(ctx context.Context, userID string, token string, expiresAt time.Time) error
	SetVerificationToken(ctx context.Context, userID string, token string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, userID string, passHash []byte) error
	MarkEmailVerified(ctx context.Context, userID string) error
}

type UserProvider interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByEmailConsistent(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id string) (models.User, error)
	UserByRefreshToken(ctx context.Context, token string) (models.User, error)
	UserByResetToken(ctx context.Context, token string) (models.User, error)
	UserByVerificationToken(ctx context.Context, token string) (models.User, error)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	cache       CacheInvalidator
	notifier    notify.Publisher
	tokens      config.Tokens
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	cache CacheInvalidator,
	notifier notify.Publisher,
	tokens config.Tokens,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		cache:       cache,
		notifier:    notifier,
		tokens:      tokens,
	}
}

// Register creates a user, issues the initial token pair and enqueues the
// welcome and verification notifications. The uniqueness pre-check via the
// read pool is an optimization only; the store's unique email index is the
// source of truth, and a duplicate-key violation from a concurrent
// registration is normalized to ErrUserExists.
func (a *Auth) Register(ctx context.Context, email, name, password string) (TokenPair, models.User, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	if _, err := a.usrProvider.UserByEmail(ctx, email); err == nil {
		log.Warn("user already exists")
		return TokenPair{}, models.User{}, ErrUserExists
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to check email uniqueness", sl.Err(err))
		return TokenPair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), a.tokens.BcryptCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return TokenPair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.usrSaver.SaveUser(ctx, models.User{
		Email:    email,
		Name:     name,
		PassHash: passHash,
		Role:     models.RoleMember,
		IsActive: true,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return TokenPair{}, models.User{}, ErrUserExists
		}

		log.Error("failed to save user", sl.Err(err))
		return TokenPair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.rotate(ctx, user.ID.Hex())
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return TokenPair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	verifyToken, err := jwt.NewOpaqueToken()
	if err != nil {
		log.Error("failed to generate verification token", sl.Err(err))
		return TokenPair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	err = a.usrSaver.SetVerificationToken(ctx, user.ID.Hex(), verifyToken, time.Now().Add(a.tokens.VerificationTokenTTL))
	if err != nil {
		log.Error("failed to persist verification token", sl.Err(err))
		return TokenPair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	a.enqueue(ctx, log, models.Notification{
		Type:   models.NotificationWelcome,
		Email:  user.Email,
		UserID: user.ID.Hex(),
	})
	a.enqueue(ctx, log, models.Notification{
		Type:   models.NotificationEmailVerification,
		Email:  user.Email,
		UserID: user.ID.Hex(),
		Token:  verifyToken,
	})

	log.Info("user registered", slog.String("uid", user.ID.Hex()))

	return pair, user, nil
}

// Login verifies credentials and rotates the refresh token. The lookup
// goes through the write pool: a login immediately after registration must
// see the just-written password hash even under replica lag.
func (a *Auth) Login(ctx context.Context, email, password string) (TokenPair, models.User, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmailConsistent(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return TokenPair{}, models.User{}, ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return TokenPair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsActive {
		log.Warn("account is deactivated", slog.String("uid", user.ID.Hex()))
		return TokenPair{}, models.User{}, ErrAccountDeactivated
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials")
		return TokenPair{}, models.User{}, ErrInvalidCredentials
	}

	pair, err := a.rotate(ctx, user.ID.Hex())
	if err != nil {
		log.Error("failed to rotate tokens", sl.Err(err))
		return TokenPair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	a.enqueue(ctx, log, models.Notification{
		Type:   models.NotificationLoginEvent,
		UserID: user.ID.Hex(),
	})

	log.Info("user logged in", slog.String("uid", user.ID.Hex()))

	return pair, user, nil
}

// Refresh exchanges a valid, unexpired refresh token for a new pair. The
// lookup requires an exact stored-value match via the write pool; a token
// rotated out earlier simply no longer matches and is rejected the same
// way as a guess.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Warn("refresh token not found")
			return TokenPair{}, ErrInvalidRefreshToken
		}

		log.Error("failed to look up refresh token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.rotate(ctx, user.ID.Hex())
	if err != nil {
		log.Error("failed to rotate tokens", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens refreshed", slog.String("uid", user.ID.Hex()))

	return pair, nil
}

// Logout clears the stored refresh token.
func (a *Auth) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByRefreshToken(ctx, refreshToken)
	if err != nil {
		log.Warn("refresh token not found", sl.Err(err))
		return ErrInvalidRefreshToken
	}

	if err := a.usrSaver.ClearRefreshToken(ctx, user.ID.Hex()); err != nil {
		log.Error("failed to clear refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("logout successful", slog.String("uid", user.ID.Hex()))

	return nil
}

// ForgotPassword never reports whether the email exists. On a hit it
// persists a bounded-lifetime reset token and enqueues the reset email.
func (a *Auth) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.ForgotPassword"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("password reset requested for unknown email")
			return nil
		}

		log.Error("failed to look up user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	resetToken, err := jwt.NewOpaqueToken()
	if err != nil {
		log.Error("failed to generate reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	err = a.usrSaver.SetResetToken(ctx, user.ID.Hex(), resetToken, time.Now().Add(a.tokens.ResetTokenTTL))
	if err != nil {
		log.Error("failed to persist reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.enqueue(ctx, log, models.Notification{
		Type:   models.NotificationPasswordReset,
		Email:  user.Email,
		UserID: user.ID.Hex(),
		Token:  resetToken,
	})

	log.Info("reset token issued", slog.String("uid", user.ID.Hex()))

	return nil
}

// ResetPassword consumes a reset token. The repository clears the reset
// token and the refresh token in the same update, so every session issued
// before the password change is invalidated. The cached "me" entry is
// invalidated before the caller can respond.
func (a *Auth) ResetPassword(ctx context.Context, token, password string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Warn("reset token not found")
			return ErrInvalidResetToken
		}

		log.Error("failed to look up reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), a.tokens.BcryptCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.ResetPassword(ctx, user.ID.Hex(), passHash); err != nil {
		log.Error("failed to reset password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.invalidateCached(ctx, log, user.ID.Hex())

	log.Info("password reset", slog.String("uid", user.ID.Hex()))

	return nil
}

// VerifyEmail consumes a verification token: sets the verified flag and
// clears the token fields in one update.
func (a *Auth) VerifyEmail(ctx context.Context, token string) error {
	const op = "auth.VerifyEmail"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Warn("verification token not found")
			return ErrInvalidVerifyToken
		}

		log.Error("failed to look up verification token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.MarkEmailVerified(ctx, user.ID.Hex()); err != nil {
		log.Error("failed to mark email verified", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.invalidateCached(ctx, log, user.ID.Hex())

	log.Info("email verified", slog.String("uid", user.ID.Hex()))

	return nil
}

// ResendVerification is idempotent and anti-enumerating: an unknown email
// or an already-verified account is a silent no-op.
func (a *Auth) ResendVerification(ctx context.Context, email string) error {
	const op = "auth.ResendVerification"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("verification resend requested for unknown email")
			return nil
		}

		log.Error("failed to look up user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if user.IsEmailVerified {
		log.Info("email already verified", slog.String("uid", user.ID.Hex()))
		return nil
	}

	verifyToken, err := jwt.NewOpaqueToken()
	if err != nil {
		log.Error("failed to generate verification token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	err = a.usrSaver.SetVerificationToken(ctx, user.ID.Hex(), verifyToken, time.Now().Add(a.tokens.VerificationTokenTTL))
	if err != nil {
		log.Error("failed to persist verification token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.enqueue(ctx, log, models.Notification{
		Type:   models.NotificationEmailVerification,
		Email:  user.Email,
		UserID: user.ID.Hex(),
		Token:  verifyToken,
	})

	return nil
}

// CurrentUser is a pure read via the read pool; HTTP caching is layered
// on top by the handler chain.
func (a *Auth) CurrentUser(ctx context.Context, userID string) (models.User, error) {
	return a.usrProvider.UserByID(ctx, userID)
}

// rotate mints a new access token and a new opaque refresh token and
// persists the refresh token with its expiry in a single overwrite.
func (a *Auth) rotate(ctx context.Context, userID string) (TokenPair, error) {
	accessToken, err := jwt.NewAccessToken(userID, a.tokens.Secret, a.tokens.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("access token: %w", err)
	}

	refreshToken, err := jwt.NewOpaqueToken()
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}

	err = a.usrSaver.RotateRefreshToken(ctx, userID, refreshToken, time.Now().Add(a.tokens.RefreshTokenTTL))
	if err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// enqueue fires a notification best-effort; a broker failure is logged,
// never surfaced to the caller.
func (a *Auth) enqueue(ctx context.Context, log *slog.Logger, n models.Notification) {
	if err := a.notifier.Publish(ctx, n); err != nil {
		log.Warn("failed to enqueue notification", slog.String("type", n.Type), sl.Err(err))
	}
}

// invalidateCached drops the principal's cached responses before the
// mutating flow returns. Best-effort: a cache outage must not fail the
// mutation.
func (a *Auth) invalidateCached(ctx context.Context, log *slog.Logger, userID string) {
	if err := a.cache.Invalidate(ctx, rediscache.PrincipalPattern(userID)); err != nil {
		log.Warn("failed to invalidate cached responses", sl.Err(err))
	}
}

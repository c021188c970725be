package forgotpassword

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mobile_auth/internal/auth"
	"mobile_auth/internal/config"
	"mobile_auth/internal/models"
	"mobile_auth/internal/notify"
	"mobile_auth/internal/storage"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type stubStore struct {
	user models.User
}

func (s *stubStore) SaveUser(_ context.Context, _ models.User) (models.User, error) {
	return models.User{}, storage.ErrUserExists
}

func (s *stubStore) RotateRefreshToken(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (s *stubStore) ClearRefreshToken(_ context.Context, _ string) error { return nil }

func (s *stubStore) SetResetToken(_ context.Context, _, token string, expiresAt time.Time) error {
	s.user.ResetToken = token
	s.user.ResetTokenExpiresAt = expiresAt
	return nil
}

func (s *stubStore) SetVerificationToken(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (s *stubStore) ResetPassword(_ context.Context, _ string, _ []byte) error { return nil }

func (s *stubStore) MarkEmailVerified(_ context.Context, _ string) error { return nil }

func (s *stubStore) UserByEmail(_ context.Context, email string) (models.User, error) {
	if email == s.user.Email {
		return s.user, nil
	}
	return models.User{}, storage.ErrUserNotFound
}

func (s *stubStore) UserByEmailConsistent(ctx context.Context, email string) (models.User, error) {
	return s.UserByEmail(ctx, email)
}

func (s *stubStore) UserByID(_ context.Context, _ string) (models.User, error) {
	return models.User{}, storage.ErrUserNotFound
}

func (s *stubStore) UserByRefreshToken(_ context.Context, _ string) (models.User, error) {
	return models.User{}, storage.ErrTokenNotFound
}

func (s *stubStore) UserByResetToken(_ context.Context, _ string) (models.User, error) {
	return models.User{}, storage.ErrTokenNotFound
}

func (s *stubStore) UserByVerificationToken(_ context.Context, _ string) (models.User, error) {
	return models.User{}, storage.ErrTokenNotFound
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(_ context.Context, _ string) error { return nil }

func newTestHandler(t *testing.T) http.HandlerFunc {
	t.Helper()

	store := &stubStore{user: models.User{
		ID:       primitive.NewObjectID(),
		Email:    "known@b.com",
		IsActive: true,
	}}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	authService := auth.New(log, store, store, noopInvalidator{}, notify.Noop{}, config.Tokens{
		Secret:          "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
		ResetTokenTTL:   time.Hour,
		BcryptCost:      bcrypt.MinCost,
	})

	return New(log, validator.New(), authService)
}

func post(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// Existing and unknown emails must produce byte-identical responses.
func TestForgotPasswordHandler_AntiEnumeration(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t)

	known := post(handler, `{"email":"known@b.com"}`)
	unknown := post(handler, `{"email":"unknown@b.com"}`)

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("both must return 200: %d vs %d", known.Code, unknown.Code)
	}
	if !bytes.Equal(known.Body.Bytes(), unknown.Body.Bytes()) {
		t.Fatalf("responses must be identical: %s vs %s",
			known.Body.String(), unknown.Body.String())
	}
}

func TestForgotPasswordHandler_InvalidEmail(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t)

	rec := post(handler, `{"email":"not-an-email"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", rec.Code)
	}
}

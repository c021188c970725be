package login

import (
	"bytes"
	"context"
	"encoding/json"
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

// stubStore backs the handler with a single account.
type stubStore struct {
	user models.User
}

func (s *stubStore) SaveUser(_ context.Context, _ models.User) (models.User, error) {
	return models.User{}, storage.ErrUserExists
}

func (s *stubStore) RotateRefreshToken(_ context.Context, _, token string, expiresAt time.Time) error {
	s.user.RefreshToken = token
	s.user.RefreshTokenExpiresAt = expiresAt
	return nil
}

func (s *stubStore) ClearRefreshToken(_ context.Context, _ string) error { return nil }

func (s *stubStore) SetResetToken(_ context.Context, _, _ string, _ time.Time) error { return nil }

func (s *stubStore) SetVerificationToken(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (s *stubStore) ResetPassword(_ context.Context, _ string, _ []byte) error { return nil }

func (s *stubStore) MarkEmailVerified(_ context.Context, _ string) error { return nil }

func (s *stubStore) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.UserByEmailConsistent(ctx, email)
}

func (s *stubStore) UserByEmailConsistent(_ context.Context, email string) (models.User, error) {
	if email == s.user.Email {
		return s.user, nil
	}
	return models.User{}, storage.ErrUserNotFound
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

func newTestHandler(t *testing.T, active bool) http.HandlerFunc {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}

	store := &stubStore{user: models.User{
		ID:       primitive.NewObjectID(),
		Email:    "a@b.com",
		PassHash: hash,
		Role:     models.RoleMember,
		IsActive: active,
	}}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	authService := auth.New(log, store, store, noopInvalidator{}, notify.Noop{}, config.Tokens{
		Secret:          "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
		BcryptCost:      bcrypt.MinCost,
	})

	return New(log, validator.New(), authService)
}

func postLogin(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLoginHandler_Success(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, true)

	rec := postLogin(handler, `{"email":"a@b.com","password":"secret1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200, body %s", rec.Code, rec.Body.String())
	}

	var got Response
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.AccessToken == "" || got.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", got)
	}
	if got.User.Email != "a@b.com" {
		t.Fatalf("user email: got %q", got.User.Email)
	}
}

func TestLoginHandler_WrongPassword(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, true)

	rec := postLogin(handler, `{"email":"a@b.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", rec.Code)
	}

	var got Response
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Message != "Invalid credentials" {
		t.Fatalf("message: got %q", got.Message)
	}
}

func TestLoginHandler_UnknownEmailSameMessage(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, true)

	wrongPass := postLogin(handler, `{"email":"a@b.com","password":"wrong"}`)
	unknown := postLogin(handler, `{"email":"x@y.com","password":"secret1"}`)

	if wrongPass.Code != unknown.Code {
		t.Fatalf("status codes must match: %d vs %d", wrongPass.Code, unknown.Code)
	}
	if wrongPass.Body.String() != unknown.Body.String() {
		t.Fatalf("bodies must not distinguish wrong field: %s vs %s",
			wrongPass.Body.String(), unknown.Body.String())
	}
}

func TestLoginHandler_Deactivated(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, false)

	rec := postLogin(handler, `{"email":"a@b.com","password":"secret1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", rec.Code)
	}

	var got Response
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Message != "Account is deactivated" {
		t.Fatalf("message: got %q", got.Message)
	}
}

func TestLoginHandler_Validation(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, true)

	rec := postLogin(handler, `{"email":"not-an-email"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", rec.Code)
	}

	var got Response
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Errors) == 0 {
		t.Fatalf("expected field-level validation errors, got %+v", got)
	}
}

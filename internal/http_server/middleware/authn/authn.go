package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"mobile_auth/internal/lib/api/response"
	"mobile_auth/internal/lib/jwt"
	sl "mobile_auth/internal/lib/logger"
	"mobile_auth/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type ctxKey struct{}

// UserProvider resolves a token subject to a user. Backed by the read
// pool: staleness is acceptable here because mutating paths re-validate
// through the write pool.
type UserProvider interface {
	UserByID(ctx context.Context, id string) (models.User, error)
}

// New verifies the bearer access token and loads the principal into the
// request context. Every failure mode is the same generic 401 so that
// account existence is never leaked.
func New(log *slog.Logger, provider UserProvider, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authn.New"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, r)
				return
			}

			userID, err := jwt.ParseAccessToken(token, secret)
			if err != nil {
				log.Info("invalid access token", sl.Err(err))
				unauthorized(w, r)
				return
			}

			user, err := provider.UserByID(r.Context(), userID)
			if err != nil {
				log.Info("token subject not found", sl.Err(err))
				unauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), user)))
		})
	}
}

func NewContext(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

func FromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(models.User)
	return user, ok
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, response.Error("Unauthorized"))
}

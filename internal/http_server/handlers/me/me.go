package me

import (
	"log/slog"
	"net/http"

	"mobile_auth/internal/auth"
	"mobile_auth/internal/http_server/middleware/authn"
	resp "mobile_auth/internal/lib/api/response"
	sl "mobile_auth/internal/lib/logger"
	"mobile_auth/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	User models.PublicUser `json:"user"`
}

func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.me.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		principal, ok := authn.FromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		user, err := authService.CurrentUser(r.Context(), principal.ID.Hex())
		if err != nil {
			log.Error("failed to load current user", sl.Err(err))

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			User:     user.Public(),
		})
	}
}

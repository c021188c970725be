package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "mobile_auth/internal/lib/api/response"
	"mobile_auth/internal/storage/mongodb"

	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Pools mongodb.PoolStats `json:"pools"`
}

func New(
	log *slog.Logger,
	router *mongodb.Router,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		stats := router.Stats(ctx)

		if !stats.ReadReady || !stats.WriteReady {
			log.Warn("health check found store unreachable",
				slog.Bool("read_ready", stats.ReadReady),
				slog.Bool("write_ready", stats.WriteReady),
			)

			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, Response{
				Response: resp.Error("Store unreachable"),
				Pools:    stats,
			})
			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Pools:    stats,
		})
	}
}

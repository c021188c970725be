package cachemw

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"mobile_auth/internal/http_server/middleware/authn"
	sl "mobile_auth/internal/lib/logger"
	"mobile_auth/internal/storage/rediscache"

	"github.com/go-chi/chi/middleware"
)

const cacheHeader = "X-Cache"

// New wraps an idempotent GET handler with the response cache. A hit
// short-circuits with the stored payload; a miss executes the handler and
// stores successful JSON responses under the principal-scoped key. Cache
// failures degrade to a plain miss.
func New(log *slog.Logger, cache *rediscache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.cachemw.New"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			key := requestKey(r)

			if payload, err := cache.Get(r.Context(), key); err == nil {
				w.Header().Set(cacheHeader, "HIT")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				if _, err := w.Write(payload); err != nil {
					log.Warn("failed to write cached response", sl.Err(err))
				}
				return
			}

			w.Header().Set(cacheHeader, "MISS")

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status() == http.StatusOK {
				cache.Set(r.Context(), key, rec.body.Bytes(), ttl)
			}
		})
	}
}

// requestKey scopes the entry by path, normalized query and principal so
// that two principals or query shapes never share a slot.
func requestKey(r *http.Request) string {
	var principalID string
	if user, ok := authn.FromContext(r.Context()); ok {
		principalID = user.ID.Hex()
	}

	return rediscache.Key(r.URL.Path, r.URL.Query(), principalID)
}

// recorder tees the response body so a successful payload can be stored
// after the handler ran. chi's WrapResponseWriter only counts bytes, so a
// buffering wrapper is needed here.
type recorder struct {
	http.ResponseWriter
	code int
	body bytes.Buffer
}

func (rec *recorder) WriteHeader(code int) {
	rec.code = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

func (rec *recorder) status() int {
	if rec.code == 0 {
		return http.StatusOK
	}
	return rec.code
}

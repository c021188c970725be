package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mobile_auth/internal/auth"
	"mobile_auth/internal/config"
	"mobile_auth/internal/http_server/handlers/forgotpassword"
	"mobile_auth/internal/http_server/handlers/health"
	"mobile_auth/internal/http_server/handlers/login"
	"mobile_auth/internal/http_server/handlers/logout"
	"mobile_auth/internal/http_server/handlers/me"
	"mobile_auth/internal/http_server/handlers/refresh"
	"mobile_auth/internal/http_server/handlers/register"
	"mobile_auth/internal/http_server/handlers/resendverification"
	"mobile_auth/internal/http_server/handlers/resetpassword"
	"mobile_auth/internal/http_server/handlers/verify"
	"mobile_auth/internal/http_server/middleware/authn"
	"mobile_auth/internal/http_server/middleware/cachemw"
	sl "mobile_auth/internal/lib/logger"
	rateLimit "mobile_auth/internal/middleware/ratelimit"
	"mobile_auth/internal/notify"
	"mobile_auth/internal/rabbitmq"
	"mobile_auth/internal/storage/mongodb"
	"mobile_auth/internal/storage/rediscache"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting mobile auth service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	router, err := mongodb.New(ctx, &cfg.MongoDB, log)
	if err != nil {
		log.Error("failed to connect mongodb", sl.Err(err))
		os.Exit(1)
	}

	userRepo := mongodb.NewUserRepo(router)
	if err := userRepo.EnsureIndexes(ctx); err != nil {
		log.Error("failed to ensure indexes", sl.Err(err))
		os.Exit(1)
	}

	cache := rediscache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	defer cache.Close()

	notifier := setupNotifier(cfg, log)
	defer notifier.Close()

	authService := auth.New(log, userRepo, userRepo, cache, notifier, cfg.Tokens)

	r := setupRouter(log, cfg, authService, userRepo, cache, router)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      r,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	if err := router.Close(shutdownCtx); err != nil {
		log.Error("Store shutdown error", sl.Err(err))
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	cfg *config.Config,
	authService *auth.Auth,
	userRepo *mongodb.UserRepo,
	cache *rediscache.Cache,
	storeRouter *mongodb.Router,
) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(r chi.Router) {
		r.With(rateLimit.Register()).Post("/register",
			register.New(log, validate, authService),
		)
		r.With(rateLimit.Login()).Post("/login",
			login.New(log, validate, authService),
		)
		r.With(rateLimit.Refresh()).Post("/refresh",
			refresh.New(log, authService),
		)
		r.With(rateLimit.Logout()).Post("/logout",
			logout.New(log, authService),
		)
		r.With(rateLimit.ForgotPassword()).Post("/forgot-password",
			forgotpassword.New(log, validate, authService),
		)
		r.With(rateLimit.ResetPassword()).Post("/reset-password",
			resetpassword.New(log, validate, authService),
		)
		r.With(rateLimit.VerifyEmail()).Post("/verify-email",
			verify.New(log, authService),
		)
		r.With(rateLimit.ResendVerification()).Post("/resend-verification",
			resendverification.New(log, validate, authService),
		)

		r.Group(func(r chi.Router) {
			r.Use(authn.New(log, userRepo, cfg.Tokens.Secret))
			r.With(cachemw.New(log, cache, cfg.Redis.MeTTL)).Get("/me",
				me.New(log, authService),
			)
		})
	})

	r.Get("/health", health.New(log, storeRouter))

	return r
}

// setupNotifier resolves the outbound notification sink once at startup:
// RabbitMQ when configured, otherwise a no-op.
func setupNotifier(cfg *config.Config, log *slog.Logger) notify.Publisher {
	if cfg.RabbitMQ.URL == "" {
		log.Info("no message broker configured, notifications disabled")
		return notify.Noop{}
	}

	notifier, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Warn("failed to connect rabbitmq, notifications disabled", sl.Err(err))
		return notify.Noop{}
	}

	return notifier
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inventory_service/internal/config"
	"inventory_service/internal/email"
	"inventory_service/internal/handler"
	"inventory_service/internal/service"
	"inventory_service/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"

	shutdownTimeout = 10 * time.Second
)

func main() {
	//PARSE ARGS
	var configPath string
	flag.StringVar(&configPath, "config", "", "")

	flag.Parse()
	if configPath == "" {
		log.Fatal("failed get config path from flags")
	}

	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	cfg := config.MustLoadConfig(configPath)

	lgr := setupLogger(cfg.Env)
	lgr.Info("started inventory service", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	//INIT DB
	st, err := storage.NewPostgresStorage(ctx, cfg.DbURL)
	if err != nil {
		lgr.Error("failed to init storage", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		lgr.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	//INIT EMAIL SENDER
	var sender email.Sender
	if cfg.Email.SendGridKey != "" {
		sender = email.NewSendGridSender(cfg.Email.SendGridKey)
	} else {
		lgr.Warn("no sendgrid key configured, emails will be logged only")
		sender = email.NewDevSender(lgr)
	}

	//INIT RATE LIMITER
	var limiter *handler.RateLimiter
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		limiter = handler.NewRateLimiter(client, cfg.Redis.LimitWindow, cfg.Redis.LimitMax, lgr)
	}

	//INIT SERVER
	srvc := service.NewService(st, sender, cfg, lgr)
	hndlr := handler.NewHandler(srvc, limiter, cfg, lgr)

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      hndlr.InitRoutes(),
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Error("server stopped", "error", err)
			stop()
		}
	}()

	lgr.Info("listening", "address", cfg.Address)

	<-ctx.Done()
	lgr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("failed to shut down gracefully", "error", err)
	}
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

// cmd/worker runs the outbox dispatcher: it claims unsent outbox rows and
// delivers them to the notification gateway until terminated.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kryak-vak/event-face-service/internal/client"
	"github.com/Kryak-vak/event-face-service/internal/config"
	"github.com/Kryak-vak/event-face-service/internal/database"
	"github.com/Kryak-vak/event-face-service/internal/lib/logger/sl"
	"github.com/Kryak-vak/event-face-service/internal/repository"
	"github.com/Kryak-vak/event-face-service/internal/worker"
)

func main() {
	cfg := config.Load()
	log := setupLogger(cfg.Env)
	log.Info("starting worker", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Error("database", sl.Err(err))
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("connected to postgres")

	outboxRepo := repository.NewOutboxRepository(pool)
	gateway := client.NewNotificationClient(cfg.Gateway, client.DefaultRetryPolicy())
	dispatcher := worker.NewDispatcher(log, outboxRepo, gateway, cfg.Worker.BatchSize, cfg.Worker.PollInterval)

	dispatcher.Run(ctx)
	log.Info("worker stopped")
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case "development", "production":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

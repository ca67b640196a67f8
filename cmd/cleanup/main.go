// cmd/cleanup deletes events whose event_time is older than the retention
// cutoff (7 days by default). Registrations go with their event.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Kryak-vak/event-face-service/internal/config"
	"github.com/Kryak-vak/event-face-service/internal/database"
	"github.com/Kryak-vak/event-face-service/internal/lib/logger/sl"
	"github.com/Kryak-vak/event-face-service/internal/repository"
)

func main() {
	cfg := config.Load()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := context.Background()

	pool, err := database.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Error("database", sl.Err(err))
		os.Exit(1)
	}
	defer pool.Close()

	cutoff := time.Now().UTC().Add(-cfg.RetentionAge)
	deleted, err := repository.NewCatalogRepository(pool).DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		log.Error("cleanup failed", sl.Err(err))
		os.Exit(1)
	}

	fmt.Printf("Cleanup done: %d deleted\n", deleted)
}

package repository

import (
	"context"
	"fmt"

	"github.com/Kryak-vak/event-face-service/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SyncLogRepository appends reconciliation run records. Write-only.
type SyncLogRepository struct {
	pool *pgxpool.Pool
}

// NewSyncLogRepository constructs a SyncLogRepository.
func NewSyncLogRepository(pool *pgxpool.Pool) *SyncLogRepository {
	return &SyncLogRepository{pool: pool}
}

// Create appends one sync run record.
func (r *SyncLogRepository) Create(ctx context.Context, l *model.SyncLog) error {
	_, err := querierFrom(ctx, r.pool).Exec(ctx,
		`INSERT INTO sync_logs (id, ran_at, created_count, updated_count, failed_count)
		 VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.RanAt, l.CreatedCount, l.UpdatedCount, l.FailedCount,
	)
	if err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}

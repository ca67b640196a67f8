package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Kryak-vak/event-face-service/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxRepository handles the dispatcher side of the outbox table. Row
// claiming uses FOR UPDATE SKIP LOCKED, so any number of dispatcher
// instances can run against the same store: a row claimed by one
// transaction is invisible to the others until it commits or rolls back.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository constructs an OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// InBatch runs fn inside the dispatcher's atomic unit. Claims taken inside
// fn are held until it returns; if fn fails, nothing from the batch commits
// and the claimed rows become visible to other dispatchers again.
func (r *OutboxRepository) InBatch(ctx context.Context, fn func(ctx context.Context) error) error {
	return runInTx(ctx, r.pool, fn)
}

// ClaimUnsent locks and returns up to limit unsent messages, oldest first,
// skipping rows already claimed by a concurrent dispatcher. No two callers
// ever receive the same row.
func (r *OutboxRepository) ClaimUnsent(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	rows, err := querierFrom(ctx, r.pool).Query(ctx,
		`SELECT id, topic, payload, sent, sent_at, created_at
		 FROM outbox_messages
		 WHERE sent = FALSE
		 ORDER BY created_at ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim unsent messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.OutboxMessage
	for rows.Next() {
		var m model.OutboxMessage
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Sent, &m.SentAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkSent records a successful delivery. Inside a batch it runs in a
// savepoint, so a persistence error here poisons neither the enclosing
// transaction nor the other messages of the batch.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	tx, ok := txFrom(ctx)
	if !ok {
		return r.markSent(ctx, querierFrom(ctx, r.pool), id, sentAt)
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}
	if err := r.markSent(ctx, sp, id, sentAt); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func (r *OutboxRepository) markSent(ctx context.Context, q Querier, id string, sentAt time.Time) error {
	tag, err := q.Exec(ctx,
		`UPDATE outbox_messages SET sent = TRUE, sent_at = $2 WHERE id = $1`,
		id, sentAt,
	)
	if err != nil {
		return fmt.Errorf("mark message sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark message sent: %w", ErrNotFound)
	}
	return nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/Kryak-vak/event-face-service/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegistrationRepository handles persistence for event registrations and
// the outbox rows announcing them.
type RegistrationRepository struct {
	pool *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(pool *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{pool: pool}
}

// CreateWithOutbox inserts the registration and its outbox message in one
// transaction: both rows exist afterwards, or neither does. A unique
// violation on (event_id, email) surfaces as ErrAlreadyRegistered.
func (r *RegistrationRepository) CreateWithOutbox(ctx context.Context, reg *model.EventRegistration, msg *model.OutboxMessage) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO event_registrations (id, event_id, full_name, email, confirmation_code, confirmed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reg.ID, reg.EventID, reg.FullName, reg.Email, reg.ConfirmationCode, reg.Confirmed, reg.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO outbox_messages (id, topic, payload, sent, created_at)
		 VALUES ($1, $2, $3, FALSE, $4)`,
		msg.ID, msg.Topic, msg.Payload, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListByEvent returns all registrations for a given event.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.EventRegistration, error) {
	rows, err := querierFrom(ctx, r.pool).Query(ctx,
		`SELECT id, event_id, full_name, email, confirmation_code, confirmed, created_at
		 FROM event_registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.EventRegistration
	for rows.Next() {
		var reg model.EventRegistration
		err := rows.Scan(&reg.ID, &reg.EventID, &reg.FullName, &reg.Email, &reg.ConfirmationCode, &reg.Confirmed, &reg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

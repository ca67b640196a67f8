// Package worker runs the outbox dispatcher: a competing-consumer loop that
// claims unsent outbox rows, delivers them to the notification gateway, and
// marks them sent. Any number of instances can run against the same store;
// the claim skips rows held by other instances instead of blocking.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kryak-vak/event-face-service/internal/lib/logger/sl"
	"github.com/Kryak-vak/event-face-service/internal/model"
)

// OutboxStore is the claim/mark surface of the outbox table. InBatch opens
// one atomic unit; claims taken inside it are released if it fails, so an
// aborted batch is simply retried on a later pass.
type OutboxStore interface {
	InBatch(ctx context.Context, fn func(ctx context.Context) error) error
	ClaimUnsent(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
}

// NotificationSender delivers one notification payload.
type NotificationSender interface {
	Send(ctx context.Context, n model.Notification) error
}

// Dispatcher is the outbox dispatch loop.
type Dispatcher struct {
	log          *slog.Logger
	store        OutboxStore
	sender       NotificationSender
	batchSize    int
	pollInterval time.Duration
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(log *slog.Logger, store OutboxStore, sender NotificationSender, batchSize int, pollInterval time.Duration) *Dispatcher {
	return &Dispatcher{
		log:          log,
		store:        store,
		sender:       sender,
		batchSize:    batchSize,
		pollInterval: pollInterval,
	}
}

// Run polls the outbox until ctx is cancelled. Batch failures are logged
// and retried on the next tick; there is no terminal state.
func (d *Dispatcher) Run(ctx context.Context) {
	const op = "worker.dispatcher.Run"
	log := d.log.With("op", op)

	log.Info("starting outbox dispatcher",
		"batch_size", d.batchSize, "poll_interval", d.pollInterval)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping outbox dispatcher")
			return
		case <-ticker.C:
			if err := d.dispatchBatch(ctx); err != nil {
				log.Error("outbox batch failed", sl.Err(err))
			}
		}
	}
}

// dispatchBatch processes one claimed batch inside a single atomic unit.
//
// A send failure (after the client's retry budget) aborts the whole unit:
// nothing from the batch commits and every message is picked up again on a
// later pass. A persistence failure while marking one message sent is
// logged and skipped; the message stays unsent even though the gateway
// accepted it, so the next pass may deliver it again.
func (d *Dispatcher) dispatchBatch(ctx context.Context) error {
	const op = "worker.dispatcher.dispatchBatch"
	log := d.log.With("op", op)

	return d.store.InBatch(ctx, func(ctx context.Context) error {
		msgs, err := d.store.ClaimUnsent(ctx, d.batchSize)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}

		for _, msg := range msgs {
			var payload model.OutboxPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				log.Error("malformed outbox payload", "message_id", msg.ID, sl.Err(err))
				continue
			}

			notification := model.Notification{
				ID:      payload.MessageID,
				Email:   payload.Email,
				Message: payload.EmailMessage,
			}
			if err := d.sender.Send(ctx, notification); err != nil {
				return fmt.Errorf("send message %s: %w", msg.ID, err)
			}

			if err := d.store.MarkSent(ctx, msg.ID, time.Now().UTC()); err != nil {
				log.Error("failed to mark message sent", "message_id", msg.ID, sl.Err(err))
				continue
			}
		}
		return nil
	})
}

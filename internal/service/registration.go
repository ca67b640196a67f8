// Package service implements the business logic of the platform: event
// registration with its transactional outbox write, and catalog reads for
// the HTTP layer.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Kryak-vak/event-face-service/internal/lib/logger/sl"
	"github.com/Kryak-vak/event-face-service/internal/model"
	"github.com/Kryak-vak/event-face-service/internal/repository"
	"github.com/google/uuid"
)

// ErrEventClosed is returned when registering against an event that is not
// open. A domain outcome, never retried.
var ErrEventClosed = errors.New("event is not open for registration")

// TopicRegistrationCreated is the outbox topic for confirmation notifications.
const TopicRegistrationCreated = "event_registration_created"

const confirmationCodeLength = 8

// EventProvider supplies events to validate registrations against.
type EventProvider interface {
	EventByID(ctx context.Context, id string) (*model.Event, error)
}

// RegistrationStore persists a registration together with its outbox
// message in one atomic unit.
type RegistrationStore interface {
	CreateWithOutbox(ctx context.Context, reg *model.EventRegistration, msg *model.OutboxMessage) error
}

// RegistrationService handles event registrations.
type RegistrationService struct {
	log           *slog.Logger
	events        EventProvider
	registrations RegistrationStore
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(log *slog.Logger, events EventProvider, registrations RegistrationStore) *RegistrationService {
	return &RegistrationService{log: log, events: events, registrations: registrations}
}

// Register creates a registration for an open event and, in the same
// transaction, enqueues the confirmation notification in the outbox.
// Fails with ErrEventClosed for closed events, repository.ErrNotFound for
// unknown ones, and repository.ErrAlreadyRegistered when the (event, email)
// pair already exists.
func (s *RegistrationService) Register(ctx context.Context, eventID, fullName, email string) (*model.EventRegistration, error) {
	const op = "service.registration.Register"
	log := s.log.With("op", op, "event_id", eventID)

	event, err := s.events.EventByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !event.IsOpen() {
		return nil, ErrEventClosed
	}

	now := time.Now().UTC()
	reg := &model.EventRegistration{
		ID:               uuid.New().String(),
		EventID:          event.ID,
		FullName:         fullName,
		Email:            email,
		ConfirmationCode: generateConfirmationCode(confirmationCodeLength),
		CreatedAt:        now,
	}

	msgID := uuid.New().String()
	payload, err := json.Marshal(model.OutboxPayload{
		MessageID:      msgID,
		RegistrationID: reg.ID,
		EventID:        event.ID,
		FullName:       fullName,
		Email:          email,
		EmailMessage:   fmt.Sprintf("Confirmation code %s for %s", reg.ConfirmationCode, event.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	msg := &model.OutboxMessage{
		ID:        msgID,
		Topic:     TopicRegistrationCreated,
		Payload:   payload,
		CreatedAt: now,
	}

	if err := s.registrations.CreateWithOutbox(ctx, reg, msg); err != nil {
		if errors.Is(err, repository.ErrAlreadyRegistered) {
			log.Warn("duplicate registration", "email", email)
			return nil, err
		}
		log.Error("failed to create registration", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("registration created", "registration_id", reg.ID)
	return reg, nil
}

// generateConfirmationCode draws a fixed-length code from uppercase letters
// and digits. Uniqueness is deliberately not enforced.
func generateConfirmationCode(length int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	code := make([]byte, length)
	for i := range code {
		code[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(code)
}

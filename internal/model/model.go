// Package model defines the core domain types for the event registration
// platform: the local catalog (venues + events), registrations, the
// transactional outbox, and sync run records.
package model

import (
	"encoding/json"
	"time"
)

// Event status values. Only open events accept registrations.
const (
	EventStatusOpen   = "open"
	EventStatusClosed = "closed"
)

// Venue is a place events are held at. Venues sighted in the provider feed
// carry a ProviderID; locally created ones don't.
type Venue struct {
	ID         string    `json:"id"`
	ProviderID *string   `json:"provider_id,omitempty"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Event is a bookable event, either synchronized from the provider feed
// (ProviderID set) or created locally.
type Event struct {
	ID                   string    `json:"id"`
	ProviderID           *string   `json:"provider_id,omitempty"`
	Name                 string    `json:"name"`
	EventTime            time.Time `json:"event_time"`
	RegistrationDeadline time.Time `json:"registration_deadline"`
	Status               string    `json:"status"`
	VenueID              string    `json:"venue_id"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// IsOpen reports whether the event accepts registrations.
func (e *Event) IsOpen() bool {
	return e.Status == EventStatusOpen
}

// EventWithVenue is the read shape for event listings.
type EventWithVenue struct {
	Event
	VenueName string `json:"venue_name"`
}

// EventRegistration is one attendee's registration for an event.
// At most one registration exists per (event, email) pair, enforced by a
// uniqueness constraint rather than a pre-check.
type EventRegistration struct {
	ID               string    `json:"id"`
	EventID          string    `json:"event_id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	ConfirmationCode string    `json:"confirmation_code"`
	Confirmed        bool      `json:"confirmed"`
	CreatedAt        time.Time `json:"created_at"`
}

// OutboxMessage is a durable outbound notification written in the same
// transaction as the registration it announces. It only ever moves from
// unsent to sent.
type OutboxMessage struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Sent      bool            `json:"sent"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// OutboxPayload is the internal contract carried in OutboxMessage.Payload
// for registration confirmations.
type OutboxPayload struct {
	MessageID      string `json:"message_id"`
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	EmailMessage   string `json:"email_message"`
}

// Notification is the body shape the notification gateway expects. The
// gateway client additionally injects the owner identifier and credentials.
type Notification struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// SyncLog is an append-only record of one reconciliation run.
type SyncLog struct {
	ID           string    `json:"id"`
	RanAt        time.Time `json:"ran_at"`
	CreatedCount int       `json:"created_count"`
	UpdatedCount int       `json:"updated_count"`
	FailedCount  int       `json:"failed_count"`
}

// ProviderPage is one page of the upstream provider feed.
// Next is empty on the last page.
type ProviderPage struct {
	Results []ProviderEvent `json:"results"`
	Next    string          `json:"next"`
}

// ProviderEvent is one raw upstream event record. Timestamps stay strings
// here; parsing happens during sync so a malformed record fails on its own.
type ProviderEvent struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	EventTime            string        `json:"event_time"`
	RegistrationDeadline string        `json:"registration_deadline"`
	Status               string        `json:"status"`
	Place                ProviderVenue `json:"place"`
}

// ProviderVenue is the venue embedded in an upstream event record.
type ProviderVenue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

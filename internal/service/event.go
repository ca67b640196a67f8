package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kryak-vak/event-face-service/internal/model"
	"github.com/Kryak-vak/event-face-service/internal/repository"
)

// EventReader supplies the catalog read operations the HTTP layer serves.
type EventReader interface {
	OpenEvents(ctx context.Context) ([]model.EventWithVenue, error)
	EventByID(ctx context.Context, id string) (*model.Event, error)
}

// EventService serves catalog reads.
type EventService struct {
	store EventReader
}

// NewEventService constructs an EventService.
func NewEventService(store EventReader) *EventService {
	return &EventService{store: store}
}

// ListOpen returns all open events with their venue name.
func (s *EventService) ListOpen(ctx context.Context) ([]model.EventWithVenue, error) {
	return s.store.OpenEvents(ctx)
}

// Get returns a single event by ID.
func (s *EventService) Get(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, repository.ErrNotFound
	}
	event, err := s.store.EventByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

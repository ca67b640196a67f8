package service

import (
	"context"
	"errors"
	"time"

	"github.com/Kryak-vak/event-face-service/internal/model"
	"github.com/Kryak-vak/event-face-service/internal/repository"
	"github.com/google/uuid"
)

// syncResult classifies the outcome of applying one upstream record.
type syncResult int

const (
	resultUnchanged syncResult = iota
	resultCreated
	resultUpdated
)

// upsertVenue resolves an upstream venue to a local row keyed by its
// provider id, creating it on first sighting and writing back only when a
// mapped field actually drifted.
func (s *Syncer) upsertVenue(ctx context.Context, data model.ProviderVenue) (*model.Venue, error) {
	venue, err := s.store.VenueByProviderID(ctx, data.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		now := time.Now().UTC()
		providerID := data.ID
		venue = &model.Venue{
			ID:         uuid.New().String(),
			ProviderID: &providerID,
			Name:       data.Name,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.CreateVenue(ctx, venue); err != nil {
			return nil, err
		}
		return venue, nil
	}

	if venue.Name != data.Name {
		venue.Name = data.Name
		if err := s.store.UpdateVenue(ctx, venue); err != nil {
			return nil, err
		}
	}
	return venue, nil
}

// upsertEvent resolves an upstream event to a local row keyed by its
// provider id. Field-by-field comparison distinguishes updated from
// unchanged and avoids spurious update timestamps.
func (s *Syncer) upsertEvent(ctx context.Context, rec providerEvent, venue *model.Venue) (syncResult, error) {
	event, err := s.store.EventByProviderID(ctx, rec.id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return resultUnchanged, err
		}
		now := time.Now().UTC()
		providerID := rec.id
		event = &model.Event{
			ID:                   uuid.New().String(),
			ProviderID:           &providerID,
			Name:                 rec.name,
			EventTime:            rec.time,
			RegistrationDeadline: rec.deadline,
			Status:               rec.status,
			VenueID:              venue.ID,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.store.CreateEvent(ctx, event); err != nil {
			return resultUnchanged, err
		}
		return resultCreated, nil
	}

	changed := false
	if event.Name != rec.name {
		event.Name = rec.name
		changed = true
	}
	if !event.EventTime.Equal(rec.time) {
		event.EventTime = rec.time
		changed = true
	}
	if !event.RegistrationDeadline.Equal(rec.deadline) {
		event.RegistrationDeadline = rec.deadline
		changed = true
	}
	if event.Status != rec.status {
		event.Status = rec.status
		changed = true
	}
	if event.VenueID != venue.ID {
		event.VenueID = venue.ID
		changed = true
	}

	if !changed {
		return resultUnchanged, nil
	}
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return resultUnchanged, err
	}
	return resultUpdated, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kryak-vak/event-face-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository handles persistence for venues and events.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository constructs a CatalogRepository.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// InTx runs fn inside one transaction. The sync engine uses it as the
// per-record atomic unit: one upstream record's venue and event writes
// commit together or not at all.
func (r *CatalogRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return runInTx(ctx, r.pool, fn)
}

const venueColumns = "id, provider_id, name, created_at, updated_at"

func scanVenue(row pgx.Row) (*model.Venue, error) {
	var v model.Venue
	if err := row.Scan(&v.ID, &v.ProviderID, &v.Name, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// VenueByProviderID returns the venue carrying the given external key,
// or ErrNotFound.
func (r *CatalogRepository) VenueByProviderID(ctx context.Context, providerID string) (*model.Venue, error) {
	row := querierFrom(ctx, r.pool).QueryRow(ctx,
		`SELECT `+venueColumns+` FROM venues WHERE provider_id = $1`,
		providerID,
	)
	v, err := scanVenue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get venue by provider id: %w", err)
	}
	return v, nil
}

// CreateVenue inserts a new venue.
func (r *CatalogRepository) CreateVenue(ctx context.Context, v *model.Venue) error {
	_, err := querierFrom(ctx, r.pool).Exec(ctx,
		`INSERT INTO venues (id, provider_id, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		v.ID, v.ProviderID, v.Name, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert venue: %w", err)
	}
	return nil
}

// UpdateVenue writes the mutable venue fields back.
func (r *CatalogRepository) UpdateVenue(ctx context.Context, v *model.Venue) error {
	v.UpdatedAt = time.Now().UTC()
	_, err := querierFrom(ctx, r.pool).Exec(ctx,
		`UPDATE venues SET name = $2, updated_at = $3 WHERE id = $1`,
		v.ID, v.Name, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update venue: %w", err)
	}
	return nil
}

const eventColumns = "id, provider_id, name, event_time, registration_deadline, status, venue_id, created_at, updated_at"

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.ProviderID, &e.Name, &e.EventTime, &e.RegistrationDeadline,
		&e.Status, &e.VenueID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EventByID returns a single event or ErrNotFound.
func (r *CatalogRepository) EventByID(ctx context.Context, id string) (*model.Event, error) {
	row := querierFrom(ctx, r.pool).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`,
		id,
	)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// EventByProviderID returns the event carrying the given external key,
// or ErrNotFound.
func (r *CatalogRepository) EventByProviderID(ctx context.Context, providerID string) (*model.Event, error) {
	row := querierFrom(ctx, r.pool).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE provider_id = $1`,
		providerID,
	)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event by provider id: %w", err)
	}
	return e, nil
}

// CreateEvent inserts a new event.
func (r *CatalogRepository) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := querierFrom(ctx, r.pool).Exec(ctx,
		`INSERT INTO events (id, provider_id, name, event_time, registration_deadline, status, venue_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ProviderID, e.Name, e.EventTime, e.RegistrationDeadline,
		e.Status, e.VenueID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpdateEvent writes the mutable event fields back.
func (r *CatalogRepository) UpdateEvent(ctx context.Context, e *model.Event) error {
	e.UpdatedAt = time.Now().UTC()
	_, err := querierFrom(ctx, r.pool).Exec(ctx,
		`UPDATE events
		 SET name = $2, event_time = $3, registration_deadline = $4, status = $5, venue_id = $6, updated_at = $7
		 WHERE id = $1`,
		e.ID, e.Name, e.EventTime, e.RegistrationDeadline, e.Status, e.VenueID, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// LatestEventUpdate returns the updated_at of the most recently touched
// event, or ErrNotFound when the catalog is empty. The sync engine derives
// its incremental window from it.
func (r *CatalogRepository) LatestEventUpdate(ctx context.Context) (time.Time, error) {
	var at time.Time
	err := querierFrom(ctx, r.pool).QueryRow(ctx,
		`SELECT updated_at FROM events ORDER BY updated_at DESC LIMIT 1`,
	).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("latest event update: %w", err)
	}
	return at, nil
}

// OpenEvents returns all open events with their venue name, ordered by
// event time ascending.
func (r *CatalogRepository) OpenEvents(ctx context.Context) ([]model.EventWithVenue, error) {
	rows, err := querierFrom(ctx, r.pool).Query(ctx,
		`SELECT e.id, e.provider_id, e.name, e.event_time, e.registration_deadline,
		        e.status, e.venue_id, e.created_at, e.updated_at, v.name
		 FROM events e
		 JOIN venues v ON v.id = e.venue_id
		 WHERE e.status = $1
		 ORDER BY e.event_time ASC`,
		model.EventStatusOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("list open events: %w", err)
	}
	defer rows.Close()

	var events []model.EventWithVenue
	for rows.Next() {
		var e model.EventWithVenue
		err := rows.Scan(
			&e.ID, &e.ProviderID, &e.Name, &e.EventTime, &e.RegistrationDeadline,
			&e.Status, &e.VenueID, &e.CreatedAt, &e.UpdatedAt, &e.VenueName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteEventsBefore removes events whose event_time is older than cutoff.
// Used by the retention command only; the sync engine never deletes.
func (r *CatalogRepository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := querierFrom(ctx, r.pool).Exec(ctx,
		`DELETE FROM events WHERE event_time < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return tag.RowsAffected(), nil
}

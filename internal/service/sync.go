package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/Kryak-vak/event-face-service/internal/lib/logger/sl"
	"github.com/Kryak-vak/event-face-service/internal/model"
	"github.com/Kryak-vak/event-face-service/internal/repository"
)

// PageFetcher retrieves one page of the upstream feed per call.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (model.ProviderPage, error)
}

// CatalogStore is the persistence surface the sync engine writes through.
// InTx scopes one upstream record's venue and event writes to a single
// atomic unit.
type CatalogStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	VenueByProviderID(ctx context.Context, providerID string) (*model.Venue, error)
	CreateVenue(ctx context.Context, v *model.Venue) error
	UpdateVenue(ctx context.Context, v *model.Venue) error
	EventByProviderID(ctx context.Context, providerID string) (*model.Event, error)
	CreateEvent(ctx context.Context, e *model.Event) error
	UpdateEvent(ctx context.Context, e *model.Event) error
	LatestEventUpdate(ctx context.Context) (time.Time, error)
}

// SyncStats aggregates one reconciliation run.
type SyncStats struct {
	Created int
	Updated int
	Failed  int
}

// Syncer reconciles the local catalog against the upstream provider feed.
type Syncer struct {
	log         *slog.Logger
	fetcher     PageFetcher
	store       CatalogStore
	providerURL string
}

// NewSyncer constructs a Syncer rooted at the provider feed URL.
func NewSyncer(log *slog.Logger, fetcher PageFetcher, store CatalogStore, providerURL string) *Syncer {
	return &Syncer{log: log, fetcher: fetcher, store: store, providerURL: providerURL}
}

// Sync walks the provider feed page by page and upserts every record.
//
// Window resolution: syncAll fetches everything; otherwise fromDate filters
// the feed, defaulting to the most recent local event update when zero. An
// empty catalog falls back to a full fetch.
//
// A record missing a required field or hitting a persistence error counts
// as failed and the run continues. A page fetch failure (after retry
// exhaustion) is fatal: committed records stay committed, and the partial
// stats are returned alongside the error so the caller can log them.
func (s *Syncer) Sync(ctx context.Context, fromDate time.Time, syncAll bool) (SyncStats, error) {
	const op = "service.sync.Sync"
	log := s.log.With("op", op)

	var stats SyncStats

	pageURL, err := s.startURL(ctx, fromDate, syncAll)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}

	// Venue lookups are cached for the duration of one run only.
	venues := map[string]*model.Venue{}

	for pageURL != "" {
		page, err := s.fetcher.FetchPage(ctx, pageURL)
		if err != nil {
			log.Error("failed to fetch provider page", "url", pageURL, sl.Err(err))
			return stats, fmt.Errorf("%s: fetch page: %w", op, err)
		}

		created, updated, failed := s.applyPage(ctx, page.Results, venues)
		stats.Created += created
		stats.Updated += updated
		stats.Failed += failed

		log.Info("synced page",
			"created", created, "updated", updated, "failed", failed)

		pageURL = page.Next
	}

	return stats, nil
}

func (s *Syncer) startURL(ctx context.Context, fromDate time.Time, syncAll bool) (string, error) {
	if syncAll {
		return s.providerURL, nil
	}

	if fromDate.IsZero() {
		last, err := s.store.LatestEventUpdate(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Empty catalog: fetch everything.
				return s.providerURL, nil
			}
			return "", err
		}
		fromDate = last
	}

	q := url.Values{"changed_at": {fromDate.Format("2006-01-02")}}
	return s.providerURL + "?" + q.Encode(), nil
}

func (s *Syncer) applyPage(ctx context.Context, records []model.ProviderEvent, venues map[string]*model.Venue) (created, updated, failed int) {
	const op = "service.sync.applyPage"
	log := s.log.With("op", op)

	for _, raw := range records {
		rec, err := parseProviderEvent(raw)
		if err != nil {
			log.Error("invalid provider record", "provider_id", raw.ID, sl.Err(err))
			failed++
			continue
		}

		var result syncResult
		err = s.store.InTx(ctx, func(ctx context.Context) error {
			venue, ok := venues[rec.venue.ID]
			if !ok {
				v, err := s.upsertVenue(ctx, rec.venue)
				if err != nil {
					return err
				}
				venue = v
				venues[rec.venue.ID] = venue
			}

			res, err := s.upsertEvent(ctx, rec, venue)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
		if err != nil {
			log.Error("failed to apply provider record", "provider_id", rec.id, sl.Err(err))
			failed++
			continue
		}

		switch result {
		case resultCreated:
			created++
		case resultUpdated:
			updated++
		}
	}

	return created, updated, failed
}

// providerEvent is one upstream record with required fields validated and
// timestamps parsed.
type providerEvent struct {
	id       string
	name     string
	status   string
	time     time.Time
	deadline time.Time
	venue    model.ProviderVenue
}

func parseProviderEvent(raw model.ProviderEvent) (providerEvent, error) {
	var rec providerEvent

	switch {
	case raw.ID == "":
		return rec, errors.New("missing event id")
	case raw.Name == "":
		return rec, errors.New("missing event name")
	case raw.Status == "":
		return rec, errors.New("missing event status")
	case raw.Place.ID == "":
		return rec, errors.New("missing venue id")
	case raw.Place.Name == "":
		return rec, errors.New("missing venue name")
	}

	eventTime, err := time.Parse(time.RFC3339, raw.EventTime)
	if err != nil {
		return rec, fmt.Errorf("bad event_time: %w", err)
	}
	deadline, err := time.Parse(time.RFC3339, raw.RegistrationDeadline)
	if err != nil {
		return rec, fmt.Errorf("bad registration_deadline: %w", err)
	}

	return providerEvent{
		id:       raw.ID,
		name:     raw.Name,
		status:   raw.Status,
		time:     eventTime,
		deadline: deadline,
		venue:    raw.Place,
	}, nil
}

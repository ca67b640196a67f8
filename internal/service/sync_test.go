package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Kryak-vak/event-face-service/internal/model"
	"github.com/Kryak-vak/event-face-service/internal/repository"
	"github.com/Kryak-vak/event-face-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCatalog is an in-memory CatalogStore keyed by provider id.
type memCatalog struct {
	venues map[string]*model.Venue
	events map[string]*model.Event

	venueCreates int
	venueUpdates int
	eventCreates int
	eventUpdates int
	venueLookups int

	latestUpdate time.Time
	// failEvent makes writes for this provider id fail, simulating a
	// per-record persistence error.
	failEvent string
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		venues: map[string]*model.Venue{},
		events: map[string]*model.Event{},
	}
}

func (m *memCatalog) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *memCatalog) VenueByProviderID(ctx context.Context, providerID string) (*model.Venue, error) {
	m.venueLookups++
	v, ok := m.venues[providerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memCatalog) CreateVenue(ctx context.Context, v *model.Venue) error {
	m.venueCreates++
	m.venues[*v.ProviderID] = v
	return nil
}

func (m *memCatalog) UpdateVenue(ctx context.Context, v *model.Venue) error {
	m.venueUpdates++
	m.venues[*v.ProviderID] = v
	return nil
}

func (m *memCatalog) EventByProviderID(ctx context.Context, providerID string) (*model.Event, error) {
	e, ok := m.events[providerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memCatalog) CreateEvent(ctx context.Context, e *model.Event) error {
	if *e.ProviderID == m.failEvent {
		return errors.New("constraint violation")
	}
	m.eventCreates++
	m.events[*e.ProviderID] = e
	return nil
}

func (m *memCatalog) UpdateEvent(ctx context.Context, e *model.Event) error {
	if *e.ProviderID == m.failEvent {
		return errors.New("constraint violation")
	}
	m.eventUpdates++
	m.events[*e.ProviderID] = e
	return nil
}

func (m *memCatalog) LatestEventUpdate(ctx context.Context) (time.Time, error) {
	if m.latestUpdate.IsZero() {
		return time.Time{}, repository.ErrNotFound
	}
	return m.latestUpdate, nil
}

// memFetcher serves scripted pages keyed by URL.
type memFetcher struct {
	pages map[string]model.ProviderPage
	calls []string
}

func (m *memFetcher) FetchPage(ctx context.Context, url string) (model.ProviderPage, error) {
	m.calls = append(m.calls, url)
	page, ok := m.pages[url]
	if !ok {
		return model.ProviderPage{}, fmt.Errorf("%w: no page at %s", errFetch, url)
	}
	return page, nil
}

var errFetch = errors.New("fetch failed")

func record(id, name, status, venueID, venueName string) model.ProviderEvent {
	return model.ProviderEvent{
		ID:                   id,
		Name:                 name,
		EventTime:            "2024-06-01T18:00:00Z",
		RegistrationDeadline: "2024-05-30T18:00:00Z",
		Status:               status,
		Place:                model.ProviderVenue{ID: venueID, Name: venueName},
	}
}

const baseURL = "http://provider/events"

func TestSync_WalksAllPagesAndAggregates(t *testing.T) {
	store := newMemCatalog()
	fetcher := &memFetcher{pages: map[string]model.ProviderPage{
		baseURL: {
			Results: []model.ProviderEvent{
				record("ev-1", "Event One", "open", "v-1", "Main Hall"),
				record("ev-2", "Event Two", "open", "v-1", "Main Hall"),
			},
			Next: baseURL + "?cursor=2",
		},
		baseURL + "?cursor=2": {
			Results: []model.ProviderEvent{
				// Missing name: counted failed, run continues.
				record("ev-3", "", "open", "v-2", "Annex"),
				record("ev-4", "Event Four", "open", "v-2", "Annex"),
			},
			Next: baseURL + "?cursor=3",
		},
		baseURL + "?cursor=3": {
			Results: []model.ProviderEvent{
				record("ev-5", "Event Five", "closed", "v-1", "Main Hall"),
			},
		},
	}}

	syncer := service.NewSyncer(discardLogger(), fetcher, store, baseURL)
	stats, err := syncer.Sync(context.Background(), time.Time{}, true)

	require.NoError(t, err)
	assert.Equal(t, service.SyncStats{Created: 4, Updated: 0, Failed: 1}, stats)
	assert.Len(t, fetcher.calls, 3)
	assert.Equal(t, 2, store.venueCreates)
	assert.Equal(t, 4, store.eventCreates)
}

func TestSync_VenueCacheSkipsRepeatLookups(t *testing.T) {
	store := newMemCatalog()
	fetcher := &memFetcher{pages: map[string]model.ProviderPage{
		baseURL: {
			Results: []model.ProviderEvent{
				record("ev-1", "Event One", "open", "v-1", "Main Hall"),
				record("ev-2", "Event Two", "open", "v-1", "Main Hall"),
				record("ev-3", "Event Three", "open", "v-1", "Main Hall"),
			},
		},
	}}

	syncer := service.NewSyncer(discardLogger(), fetcher, store, baseURL)
	_, err := syncer.Sync(context.Background(), time.Time{}, true)

	require.NoError(t, err)
	assert.Equal(t, 1, store.venueLookups)
	assert.Equal(t, 1, store.venueCreates)
}

func TestSync_IdempotentReapplication(t *testing.T) {
	store := newMemCatalog()
	page := model.ProviderPage{
		Results: []model.ProviderEvent{
			record("ev-1", "Event One", "open", "v-1", "Venue A"),
		},
	}
	fetcher := &memFetcher{pages: map[string]model.ProviderPage{baseURL: page}}
	syncer := service.NewSyncer(discardLogger(), fetcher, store, baseURL)

	// First application creates.
	stats, err := syncer.Sync(context.Background(), time.Time{}, true)
	require.NoError(t, err)
	assert.Equal(t, service.SyncStats{Created: 1}, stats)

	// Identical record again: unchanged, no write.
	stats, err = syncer.Sync(context.Background(), time.Time{}, true)
	require.NoError(t, err)
	assert.Equal(t, service.SyncStats{}, stats)
	assert.Equal(t, 0, store.eventUpdates)

	// Drifted field: updated in place.
	fetcher.pages[baseURL] = model.ProviderPage{
		Results: []model.ProviderEvent{
			record("ev-1", "Event One", "closed", "v-1", "Venue A"),
		},
	}
	stats, err = syncer.Sync(context.Background(), time.Time{}, true)
	require.NoError(t, err)
	assert.Equal(t, service.SyncStats{Updated: 1}, stats)
	assert.Equal(t, 1, store.eventUpdates)
	assert.Equal(t, 1, store.eventCreates)
	assert.Equal(t, model.EventStatusClosed, store.events["ev-1"].Status)
}

func TestSync_VenueDriftUpdatesSameRow(t *testing.T) {
	store := newMemCatalog()
	fetcher := &memFetcher{pages: map[string]model.ProviderPage{baseURL: {
		Results: []model.ProviderEvent{
			record("ev-1", "Event One", "open", "v1", "Venue A"),
		},
	}}}
	syncer := service.NewSyncer(discardLogger(), fetcher, store, baseURL)

	// create
	_, err := syncer.Sync(context.Background(), time.Time{}, true)
	require.NoError(t, err)
	created := store.venues["v1"]
	require.NotNil(t, created)

	// unchanged
	_, err = syncer.Sync(context.Background(), time.Time{}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, store.venueUpdates)

	// updated
	fetcher.pages[baseURL] = model.ProviderPage{Results: []model.ProviderEvent{
		record("ev-1", "Event One", "open", "v1", "Venue B"),
	}}
	_, err = syncer.Sync(context.Background(), time.Time{}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, store.venueUpdates)
	assert.Equal(t, 1, store.venueCreates)
	assert.Equal(t, created.ID, store.venues["v1"].ID)
	assert.Equal(t, "Venue B", store.venues["v1"].Name)
}

func TestSync_PersistenceErrorCountsFailedAndContinues(t *testing.T) {
	store := newMemCatalog()
	store.failEvent = "ev-2"
	fetcher := &memFetcher{pages: map[string]model.ProviderPage{baseURL: {
		Results: []model.ProviderEvent{
			record("ev-1", "Event One", "open", "v-1", "Main Hall"),
			record("ev-2", "Event Two", "open", "v-1", "Main Hall"),
			record("ev-3", "Event Three", "open", "v-1", "Main Hall"),
		},
	}}}

	syncer := service.NewSyncer(discardLogger(), fetcher, store, baseURL)
	stats, err := syncer.Sync(context.Background(), time.Time{}, true)

	require.NoError(t, err)
	assert.Equal(t, service.SyncStats{Created: 2, Failed: 1}, stats)
}

func TestSync_PageFetchFailureIsFatalButKeepsProgress(t *testing.T) {
	store := newMemCatalog()
	fetcher := &memFetcher{pages: map[string]model.ProviderPage{
		baseURL: {
			Results: []model.ProviderEvent{
				record("ev-1", "Event One", "open", "v-1", "Main Hall"),
			},
			Next: baseURL + "?cursor=2",
		},
		// cursor=2 missing: fetch fails after the first page committed.
	}}

	syncer := service.NewSyncer(discardLogger(), fetcher, store, baseURL)
	stats, err := syncer.Sync(context.Background(), time.Time{}, true)

	require.ErrorIs(t, err, errFetch)
	assert.Equal(t, service.SyncStats{Created: 1}, stats)
	assert.Equal(t, 1, store.eventCreates)
}

func TestSync_WindowResolution(t *testing.T) {
	t.Run("explicit date filters the feed", func(t *testing.T) {
		store := newMemCatalog()
		want := baseURL + "?changed_at=2024-05-01"
		fetcher := &memFetcher{pages: map[string]model.ProviderPage{want: {}}}

		syncer := service.NewSyncer(discardLogger(), fetcher, store, baseURL)
		from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		_, err := syncer.Sync(context.Background(), from, false)

		require.NoError(t, err)
		assert.Equal(t, []string{want}, fetcher.calls)
	})

	t.Run("defaults to the local watermark", func(t *testing.T) {
		store := newMemCatalog()
		store.latestUpdate = time.Date(2024, 4, 20, 13, 45, 0, 0, time.UTC)
		want := baseURL + "?changed_at=2024-04-20"
		fetcher := &memFetcher{pages: map[string]model.ProviderPage{want: {}}}

		syncer := service.NewSyncer(discardLogger(), fetcher, store, baseURL)
		_, err := syncer.Sync(context.Background(), time.Time{}, false)

		require.NoError(t, err)
		assert.Equal(t, []string{want}, fetcher.calls)
	})

	t.Run("empty catalog falls back to full fetch", func(t *testing.T) {
		store := newMemCatalog()
		fetcher := &memFetcher{pages: map[string]model.ProviderPage{baseURL: {}}}

		syncer := service.NewSyncer(discardLogger(), fetcher, store, baseURL)
		_, err := syncer.Sync(context.Background(), time.Time{}, false)

		require.NoError(t, err)
		assert.Equal(t, []string{baseURL}, fetcher.calls)
	})

	t.Run("sync all ignores dates", func(t *testing.T) {
		store := newMemCatalog()
		store.latestUpdate = time.Now()
		fetcher := &memFetcher{pages: map[string]model.ProviderPage{baseURL: {}}}

		syncer := service.NewSyncer(discardLogger(), fetcher, store, baseURL)
		from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		_, err := syncer.Sync(context.Background(), from, true)

		require.NoError(t, err)
		assert.Equal(t, []string{baseURL}, fetcher.calls)
	})
}

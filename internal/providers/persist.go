package providers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kamilvitek/oslavu-engine/internal/conflict"
	"github.com/kamilvitek/oslavu-engine/internal/db"
	"github.com/kamilvitek/oslavu-engine/internal/models"
	"github.com/kamilvitek/oslavu-engine/internal/normalize"
)

// PersistentSource wraps an event source with the store: successful fetches
// are written through, and a failing source falls back to whatever the
// store already holds for the window. Persistence failures never fail a
// fetch.
type PersistentSource struct {
	src   conflict.EventSource
	store *db.EventStore
}

func NewPersistentSource(src conflict.EventSource, store *db.EventStore) *PersistentSource {
	return &PersistentSource{src: src, store: store}
}

func (p *PersistentSource) Name() string { return p.src.Name() }

func (p *PersistentSource) FetchEvents(ctx context.Context, city string, start, end time.Time, category string) ([]models.Event, error) {
	events, err := p.src.FetchEvents(ctx, city, start, end, category)
	if err != nil {
		stored, storeErr := p.store.ListEvents(ctx, normalize.City(city), start, end)
		if storeErr != nil {
			return nil, fmt.Errorf("source failed (%w) and store fallback failed: %v", err, storeErr)
		}
		cached := filterBySource(stored, p.src.Name())
		if len(cached) == 0 {
			return nil, err
		}
		log.Printf("[providers] %s unavailable, serving %d stored events: %v", p.src.Name(), len(cached), err)
		return cached, nil
	}

	if saved, err := p.store.UpsertEvents(ctx, events); err != nil {
		log.Printf("[providers] persisting %s events failed after %d saved: %v", p.src.Name(), saved, err)
	}
	return events, nil
}

func filterBySource(events []models.Event, source string) []models.Event {
	var out []models.Event
	for _, e := range events {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

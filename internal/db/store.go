package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/kamilvitek/oslavu-engine/internal/models"
)

const (
	storeMaxAttempts  = 3
	storeRetryBackoff = 200 * time.Millisecond
)

// EventStore persists provider events. Writes upsert on the
// (source, source_id) natural key so re-ingesting a source is idempotent.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventCols = `id, title, description, starts_on, ends_on, city, venue,
	category, subcategory, expected_attendees, source, source_id, url,
	image_url, created_at, updated_at`

// UpsertEvent inserts or refreshes one event. Columns the new row leaves
// empty keep their stored value, so a thin relisting never erases detail
// captured earlier.
func (s *EventStore) UpsertEvent(ctx context.Context, e models.Event) error {
	query := `
		INSERT INTO events (
			title, description, starts_on, ends_on, city, venue,
			category, subcategory, expected_attendees, source, source_id,
			url, image_url, embedding
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14
		)
		ON CONFLICT (source, source_id) DO UPDATE SET
			updated_at = NOW(),
			title = EXCLUDED.title,
			description = COALESCE(NULLIF(EXCLUDED.description, ''), events.description),
			starts_on = EXCLUDED.starts_on,
			ends_on = COALESCE(EXCLUDED.ends_on, events.ends_on),
			city = COALESCE(NULLIF(EXCLUDED.city, ''), events.city),
			venue = COALESCE(NULLIF(EXCLUDED.venue, ''), events.venue),
			category = COALESCE(NULLIF(EXCLUDED.category, ''), events.category),
			subcategory = COALESCE(NULLIF(EXCLUDED.subcategory, ''), events.subcategory),
			expected_attendees = COALESCE(EXCLUDED.expected_attendees, events.expected_attendees),
			url = COALESCE(NULLIF(EXCLUDED.url, ''), events.url),
			image_url = COALESCE(NULLIF(EXCLUDED.image_url, ''), events.image_url),
			embedding = COALESCE(EXCLUDED.embedding, events.embedding)
	`

	var embedding interface{}
	if len(e.Embedding) > 0 {
		embedding = pgvector.NewVector(e.Embedding)
	}

	return s.withRetry(ctx, "upsert event", func() error {
		_, err := s.pool.Exec(ctx, query,
			e.Title, e.Description, e.Date, e.EndDate, e.City, e.Venue,
			e.Category, e.Subcategory, e.ExpectedAttendees, e.Source, e.SourceID,
			e.URL, e.ImageURL, embedding,
		)
		return err
	})
}

// UpsertEvents saves a batch, continuing past individual failures.
func (s *EventStore) UpsertEvents(ctx context.Context, events []models.Event) (int, error) {
	saved := 0
	var lastErr error
	for _, e := range events {
		if err := s.UpsertEvent(ctx, e); err != nil {
			log.Printf("[db] upsert failed for %s/%s: %v", e.Source, e.SourceID, err)
			lastErr = err
			continue
		}
		saved++
	}
	if saved == 0 && lastErr != nil {
		return 0, fmt.Errorf("no events saved: %w", lastErr)
	}
	return saved, nil
}

// ListEvents returns events in a city whose span touches [start, end],
// ordered by start date.
func (s *EventStore) ListEvents(ctx context.Context, city string, start, end time.Time) ([]models.Event, error) {
	query := `
		SELECT ` + eventCols + `
		FROM events
		WHERE city = $1
		  AND starts_on <= $3
		  AND COALESCE(ends_on, starts_on) >= $2
		ORDER BY starts_on, source, source_id
	`

	var events []models.Event
	err := s.withRetry(ctx, "list events", func() error {
		rows, err := s.pool.Query(ctx, query, city, start, end)
		if err != nil {
			return err
		}
		defer rows.Close()

		events = events[:0]
		for rows.Next() {
			var e models.Event
			var endsOn *time.Time
			var venue, subcategory, url, imageURL *string
			if err := rows.Scan(
				&e.ID, &e.Title, &e.Description, &e.Date, &endsOn, &e.City, &venue,
				&e.Category, &subcategory, &e.ExpectedAttendees, &e.Source, &e.SourceID,
				&url, &imageURL, &e.CreatedAt, &e.UpdatedAt,
			); err != nil {
				return err
			}
			e.EndDate = endsOn
			if venue != nil {
				e.Venue = *venue
			}
			if subcategory != nil {
				e.Subcategory = *subcategory
			}
			if url != nil {
				e.URL = *url
			}
			if imageURL != nil {
				e.ImageURL = *imageURL
			}
			events = append(events, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// CountEvents reports the stored event count per source.
func (s *EventStore) CountEvents(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	err := s.withRetry(ctx, "count events", func() error {
		rows, err := s.pool.Query(ctx, `SELECT source, COUNT(*) FROM events GROUP BY source`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var source string
			var n int
			if err := rows.Scan(&source, &n); err != nil {
				return err
			}
			counts[source] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// withRetry runs op up to three times with a doubling backoff, retrying
// only transient failures.
func (s *EventStore) withRetry(ctx context.Context, label string, op func() error) error {
	backoff := storeRetryBackoff
	var lastErr error

	for attempt := 1; attempt <= storeMaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) || attempt == storeMaxAttempts {
			break
		}
		log.Printf("[db] %s attempt %d/%d failed, retrying in %s: %v", label, attempt, storeMaxAttempts, backoff, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s: %w", label, lastErr)
}

// isTransient classifies errors worth retrying: network hiccups, timeouts
// and Postgres connection/admin-shutdown classes. Constraint and syntax
// failures will not heal on retry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 = connection exception, class 57 = operator intervention.
		if len(pgErr.Code) >= 2 {
			switch pgErr.Code[:2] {
			case "08", "57":
				return true
			}
		}
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}

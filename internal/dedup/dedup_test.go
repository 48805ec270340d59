package dedup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kamilvitek/oslavu-engine/internal/models"
)

// fakeEmbedder returns canned vectors keyed by event title and counts calls.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   atomic.Int64
	err     error
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	for title, vec := range f.vectors {
		if len(text) >= len(title) && text[:len(title)] == title {
			return vec, nil
		}
	}
	return []float32{0, 0, 1}, nil
}

func event(title, city, venue, source string) models.Event {
	return models.Event{
		Title:    title,
		City:     city,
		Venue:    venue,
		Source:   source,
		Category: "Technology",
		Date:     time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestExactMatchSkipsEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{}
	d := New(embedder, NewSimilarityCache(0), DefaultConfig())

	events := []models.Event{
		event("Prague Tech Summit 2024", "Prague", "O2 Arena", "ticketmaster"),
		event("prague tech summit 2024", "Prague", "O2 Arena", "eventbrite"),
	}

	result, err := d.Deduplicate(context.Background(), events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := embedder.calls.Load(); got != 0 {
		t.Errorf("expected no embedding calls for exact matches, got %d", got)
	}
	if len(result.Canonical) != 1 {
		t.Fatalf("expected 1 canonical event, got %d", len(result.Canonical))
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(result.Clusters))
	}
	if sim := result.Clusters[0].Duplicates[0].Similarity; sim != 1.0 {
		t.Errorf("expected exact-match similarity 1.0, got %f", sim)
	}
}

func TestExactMatchVenueRules(t *testing.T) {
	tests := []struct {
		name          string
		venueA        string
		venueB        string
		wantCanonical int
	}{
		{"same venue merges", "O2 Arena", "O2 Arena", 1},
		{"empty venue merges", "O2 Arena", "", 1},
		{"different venue stays apart", "O2 Arena", "Forum Karlin", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(nil, nil, DefaultConfig())
			events := []models.Event{
				event("Tech Meetup", "Prague", tt.venueA, "meetup"),
				event("Tech Meetup", "Prague", tt.venueB, "meetup"),
			}
			result, err := d.Deduplicate(context.Background(), events)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result.Canonical) != tt.wantCanonical {
				t.Errorf("expected %d canonical events, got %d", tt.wantCanonical, len(result.Canonical))
			}
		})
	}
}

func TestSemanticClustering(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"AI Conference Prague":      {1, 0, 0},
		"Prague AI Conf":            {0.99, 0.05, 0},
		"Beer Festival Letna":       {0, 1, 0},
	}}
	d := New(embedder, NewSimilarityCache(0), DefaultConfig())

	events := []models.Event{
		event("AI Conference Prague", "Prague", "Forum Karlin", "eventbrite"),
		event("Prague AI Conf", "Prague", "O2 Universum", "meetup"),
		event("Beer Festival Letna", "Prague", "Letna Park", "scraper"),
	}

	result, err := d.Deduplicate(context.Background(), events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Canonical) != 2 {
		t.Fatalf("expected 2 canonical events, got %d", len(result.Canonical))
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(result.Clusters))
	}
	// eventbrite outranks meetup in the source priority table.
	if got := result.Clusters[0].Primary.Title; got != "AI Conference Prague" {
		t.Errorf("expected eventbrite listing as canonical, got %q", got)
	}
	if sim := result.Clusters[0].Duplicates[0].Similarity; sim < 0.85 {
		t.Errorf("cluster member similarity %f below threshold", sim)
	}
}

func TestIdempotence(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Rock Night":    {1, 0, 0},
		"Data Meetup":   {0, 1, 0},
		"Wine Tasting":  {0, 0, 1},
	}}
	d := New(embedder, NewSimilarityCache(0), DefaultConfig())

	events := []models.Event{
		event("Rock Night", "Brno", "Fleda", "ticketmaster"),
		event("Data Meetup", "Brno", "Impact Hub", "meetup"),
		event("Wine Tasting", "Brno", "", "manual"),
	}

	first, err := d.Deduplicate(context.Background(), events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := d.Deduplicate(context.Background(), first.Canonical)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(second.Canonical) != len(first.Canonical) {
		t.Fatalf("deduplicating a clean set changed it: %d -> %d", len(first.Canonical), len(second.Canonical))
	}
	for i := range second.Canonical {
		if second.Canonical[i].Title != first.Canonical[i].Title {
			t.Errorf("event order changed at %d: %q vs %q", i, first.Canonical[i].Title, second.Canonical[i].Title)
		}
	}
	if len(second.Clusters) != 0 {
		t.Errorf("expected no clusters on second pass, got %d", len(second.Clusters))
	}
}

func TestCanonicalDeterminism(t *testing.T) {
	// Identical scores: the tie must break on original index, every run.
	events := []models.Event{
		event("Night Run", "Prague", "Stromovka", "manual"),
		event("Night Run", "Prague", "Stromovka", "manual"),
		event("Night Run", "Prague", "Stromovka", "manual"),
	}

	d := New(nil, nil, DefaultConfig())
	for run := 0; run < 5; run++ {
		result, err := d.Deduplicate(context.Background(), events)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Clusters) != 1 {
			t.Fatalf("expected 1 cluster, got %d", len(result.Clusters))
		}
		if got := selectCanonical(events, []int{2, 0, 1}); got != 0 {
			t.Fatalf("tie should break to first-seen index 0, got %d", got)
		}
	}
}

func TestEmbeddingFailureIsFailOpen(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("ollama down")}
	d := New(embedder, NewSimilarityCache(0), DefaultConfig())

	events := []models.Event{
		event("Jazz Evening", "Prague", "Reduta", "scraper"),
		event("Jazz Night Special", "Prague", "Jazz Dock", "scraper"),
	}

	result, err := d.Deduplicate(context.Background(), events)
	if err != nil {
		t.Fatalf("embedding failure must not abort the run: %v", err)
	}
	if len(result.Canonical) != 2 {
		t.Errorf("failed events must stay singletons, got %d canonical", len(result.Canonical))
	}
}

func TestDimensionMismatchIsFatal(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Concert A": {1, 0, 0},
		"Concert B": {1, 0},
	}}
	d := New(embedder, NewSimilarityCache(0), DefaultConfig())

	events := []models.Event{
		event("Concert A", "Prague", "Lucerna", "ticketmaster"),
		event("Concert B", "Prague", "Roxy", "eventbrite"),
	}

	_, err := d.Deduplicate(context.Background(), events)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestEmbeddingCacheHit(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Film Festival": {1, 0, 0},
		"Book Fair":     {0, 1, 0},
	}}
	cache := NewSimilarityCache(0)
	d := New(embedder, cache, DefaultConfig())

	events := []models.Event{
		event("Film Festival", "Prague", "Kino Svetozor", "scraper"),
		event("Book Fair", "Prague", "Vystaviste", "scraper"),
	}

	if _, err := d.Deduplicate(context.Background(), events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := embedder.calls.Load()
	if _, err := d.Deduplicate(context.Background(), events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embedder.calls.Load() != first {
		t.Errorf("expected cached vectors on second run, calls went %d -> %d", first, embedder.calls.Load())
	}
}

package overlap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kamilvitek/oslavu-engine/internal/models"
)

type stubEstimator struct {
	base  models.OverlapPrediction
	err   error
	calls atomic.Int64
}

func (s *stubEstimator) EstimateBase(context.Context, models.Event, models.Event) (models.OverlapPrediction, error) {
	s.calls.Add(1)
	if s.err != nil {
		return models.OverlapPrediction{}, s.err
	}
	return s.base, nil
}

func techEvent(title string, date time.Time, attendees int) models.Event {
	e := models.Event{
		Title:       title,
		City:        "Prague",
		Category:    "Technology",
		Subcategory: "AI-ML",
		Date:        date,
	}
	if attendees > 0 {
		e.ExpectedAttendees = &attendees
	}
	return e
}

func aiBase(score float64) models.OverlapPrediction {
	return models.OverlapPrediction{
		Score:      score,
		BaseScore:  score,
		Confidence: 0.8,
		Reasons:    []string{"Shared AI practitioner audience", "Overlapping speaker circuits"},
		Method:     models.MethodAI,
	}
}

func TestSameDayLargeEventBoosts(t *testing.T) {
	// Planned Technology/AI-ML event, competitor same subcategory, same day,
	// 5000 attendees: base + 0.18 + 0.08, capped at 0.95.
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	primary := &stubEstimator{base: aiBase(0.50)}
	p := NewPredictor(primary, NewCache(0), DefaultAdjustments(), 0)

	got := p.PredictOverlap(context.Background(), techEvent("Planned Summit", day, 500), techEvent("Rival Conf", day, 5000))

	want := 0.50 + 0.18 + 0.08
	if got.Score < want-1e-9 || got.Score > want+1e-9 {
		t.Errorf("expected score %.2f, got %.4f", want, got.Score)
	}
	if got.BaseScore != 0.50 {
		t.Errorf("base score must stay unadjusted, got %.4f", got.BaseScore)
	}
}

func TestScoreCappedAt095(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	primary := &stubEstimator{base: aiBase(0.90)}
	p := NewPredictor(primary, NewCache(0), DefaultAdjustments(), 0)

	got := p.PredictOverlap(context.Background(), techEvent("A", day, 20000), techEvent("B", day, 20000))
	if got.Score > 0.95 {
		t.Errorf("score %.4f exceeds 0.95 cap", got.Score)
	}
}

func TestTemporalMonotonicity(t *testing.T) {
	base := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	primary := &stubEstimator{base: aiBase(0.40)}
	p := NewPredictor(primary, NewCache(0), DefaultAdjustments(), 0)

	gaps := []int{0, 3, 7, 30, 90, 120}
	prev := 1.0
	for _, gap := range gaps {
		got := p.PredictOverlap(context.Background(),
			techEvent("Planned", base, 500),
			techEvent("Rival", base.AddDate(0, 0, gap), 500))
		if got.Score > prev+1e-9 {
			t.Errorf("score increased with gap %d: %.4f > %.4f", gap, got.Score, prev)
		}
		prev = got.Score
	}
}

func TestCacheHitStillAdjusts(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	primary := &stubEstimator{base: aiBase(0.40)}
	p := NewPredictor(primary, NewCache(0), DefaultAdjustments(), 0)

	// First call populates the cache with a far-apart pair.
	far := p.PredictOverlap(context.Background(),
		techEvent("Planned", day, 500),
		techEvent("Rival", day.AddDate(0, 0, 120), 500))
	// Second call hits the cache but with same-day events.
	near := p.PredictOverlap(context.Background(),
		techEvent("Planned", day, 500),
		techEvent("Rival", day, 500))

	if calls := primary.calls.Load(); calls != 1 {
		t.Fatalf("expected a single classification call, got %d", calls)
	}
	if near.Score <= far.Score {
		t.Errorf("cache hit must re-apply temporal boost: near %.4f, far %.4f", near.Score, far.Score)
	}
}

func TestFallbackOnClassifierFailure(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	primary := &stubEstimator{err: errors.New("timeout")}
	p := NewPredictor(primary, NewCache(0), DefaultAdjustments(), 0)

	got := p.PredictOverlap(context.Background(), techEvent("A", day, 0), techEvent("B", day.AddDate(0, 0, 200), 0))
	if got.Method != models.MethodRuleBased {
		t.Errorf("expected rule-based fallback, got method %q", got.Method)
	}
	// Same category and subcategory lands on the equality-table score.
	if got.Score != sameSubcategoryScore {
		t.Errorf("expected %.2f from rule table, got %.4f", sameSubcategoryScore, got.Score)
	}
}

func TestTimingReasonSynthesized(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	primary := &stubEstimator{base: models.OverlapPrediction{
		Score:     0.4,
		BaseScore: 0.4,
		Reasons:   []string{"Audience A", "Audience B", "Audience C"},
		Method:    models.MethodAI,
	}}
	p := NewPredictor(primary, NewCache(0), DefaultAdjustments(), 0)

	got := p.PredictOverlap(context.Background(), techEvent("A", day, 0), techEvent("B", day, 0))
	if len(got.Reasons) != 3 {
		t.Fatalf("reasons must stay capped at 3, got %d", len(got.Reasons))
	}
	if !mentionsTiming(got.Reasons) {
		t.Errorf("expected a synthesized timing reason in %v", got.Reasons)
	}
}

func TestPairKeySymmetric(t *testing.T) {
	a := models.Event{Category: "Music", Subcategory: "Rock"}
	b := models.Event{Category: "Arts", Subcategory: "Theatre"}
	if pairKey(a, b) != pairKey(b, a) {
		t.Error("pair key must be order-independent")
	}
}

func TestDaysBetween(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }
	end12 := day(12)

	tests := []struct {
		name string
		a, b models.Event
		want int
	}{
		{"same day", models.Event{Date: day(10)}, models.Event{Date: day(10)}, 0},
		{"overlapping spans", models.Event{Date: day(10), EndDate: &end12}, models.Event{Date: day(11)}, 0},
		{"one day gap", models.Event{Date: day(10)}, models.Event{Date: day(11)}, 1},
		{"reversed order", models.Event{Date: day(15)}, models.Event{Date: day(10)}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := daysBetween(tt.a, tt.b); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := Key{Cat1: "technology"}
	c.Put(key, aiBase(0.3))

	if _, ok := c.Get(key); !ok {
		t.Fatal("expected fresh entry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(key); ok {
		t.Error("expected entry to expire")
	}
}

package overlap

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kamilvitek/oslavu-engine/internal/models"
	"github.com/kamilvitek/oslavu-engine/internal/normalize"
)

const maxOverlapScore = 0.95

// TemporalBand boosts the overlap score when events run close together.
// Bands are checked in order; the first band with MaxGapDays >= gap wins.
type TemporalBand struct {
	MaxGapDays int
	Boost      float64
}

// SignificanceBand boosts the overlap score for large events, keyed by the
// larger of the two expected attendee counts.
type SignificanceBand struct {
	MinAttendees int
	Boost        float64
}

// Adjustments holds the post-cache boost tables. The values are empirically
// chosen, so they live in configuration rather than as hard constants.
type Adjustments struct {
	Temporal     []TemporalBand
	Significance []SignificanceBand
}

// DefaultAdjustments returns the production boost tables.
func DefaultAdjustments() Adjustments {
	return Adjustments{
		Temporal: []TemporalBand{
			{MaxGapDays: 0, Boost: 0.18},
			{MaxGapDays: 3, Boost: 0.13},
			{MaxGapDays: 7, Boost: 0.08},
			{MaxGapDays: 30, Boost: 0.04},
			{MaxGapDays: 90, Boost: 0.01},
		},
		Significance: []SignificanceBand{
			{MinAttendees: 10000, Boost: 0.13},
			{MinAttendees: 1000, Boost: 0.08},
			{MinAttendees: 100, Boost: 0.03},
		},
	}
}

// Predictor composes an AI estimator, a rule-based fallback and the base
// cache, and applies temporal/significance adjustments uniformly to
// whichever produced the base score. PredictOverlap never fails: overlap
// prediction is not allowed to abort the scoring run.
type Predictor struct {
	primary  Estimator // may be nil (no AI configured)
	fallback Estimator
	cache    *Cache
	adj      Adjustments
	workers  int
}

// NewPredictor wires a predictor. primary may be nil; fallback defaults to
// the rule-based estimator.
func NewPredictor(primary Estimator, cache *Cache, adj Adjustments, workers int) *Predictor {
	if cache == nil {
		cache = NewCache(0)
	}
	if len(adj.Temporal) == 0 && len(adj.Significance) == 0 {
		adj = DefaultAdjustments()
	}
	if workers <= 0 {
		workers = 5
	}
	return &Predictor{
		primary:  primary,
		fallback: NewRuleBasedEstimator(),
		cache:    cache,
		adj:      adj,
		workers:  workers,
	}
}

// PredictOverlap estimates the shared-audience fraction for a planned event
// and one competitor. The cached value is a base score; temporal and
// significance adjustments are re-applied on every call, cache hit or miss.
func (p *Predictor) PredictOverlap(ctx context.Context, planned, competing models.Event) models.OverlapPrediction {
	key := pairKey(planned, competing)

	base, ok := p.cache.Get(key)
	if !ok {
		base = p.estimateBase(ctx, planned, competing)
		p.cache.Put(key, base)
	}

	return p.adjust(base, planned, competing)
}

// PredictAll runs PredictOverlap for each competitor with bounded
// parallelism. Results are indexed by competitor, so worker completion
// order never affects the output.
func (p *Predictor) PredictAll(ctx context.Context, planned models.Event, competing []models.Event) []models.OverlapPrediction {
	predictions := make([]models.OverlapPrediction, len(competing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, c := range competing {
		g.Go(func() error {
			predictions[i] = p.PredictOverlap(gctx, planned, c)
			return nil
		})
	}
	// Workers never return errors; prediction is fail-open by contract.
	_ = g.Wait()
	return predictions
}

func (p *Predictor) estimateBase(ctx context.Context, planned, competing models.Event) models.OverlapPrediction {
	if p.primary != nil {
		base, err := p.primary.EstimateBase(ctx, planned, competing)
		if err == nil {
			return base
		}
		log.Printf("[overlap] AI estimate failed for %q vs %q, using rule-based fallback: %v",
			planned.Title, competing.Title, err)
	}

	base, err := p.fallback.EstimateBase(ctx, planned, competing)
	if err != nil {
		// The rule-based estimator cannot fail; guard anyway.
		log.Printf("[overlap] rule-based estimate failed: %v", err)
		return models.OverlapPrediction{
			Score:      unrelatedScore,
			BaseScore:  unrelatedScore,
			Confidence: 0.2,
			Reasons:    []string{"No estimator available, assumed minimal overlap"},
			Method:     models.MethodRuleBased,
		}
	}
	return base
}

// adjust applies the temporal and significance boosts to a base prediction
// and caps the result at 0.95.
func (p *Predictor) adjust(base models.OverlapPrediction, planned, competing models.Event) models.OverlapPrediction {
	out := base
	out.Reasons = append([]string(nil), base.Reasons...)

	gap := daysBetween(planned, competing)
	temporal := p.temporalBoost(gap)
	significance := p.significanceBoost(planned, competing)

	out.Score = math.Min(maxOverlapScore, base.BaseScore+temporal+significance)

	if temporal > 0 && !mentionsTiming(out.Reasons) {
		reason := timingReason(gap)
		if len(out.Reasons) >= 3 {
			out.Reasons[2] = reason
		} else {
			out.Reasons = append(out.Reasons, reason)
		}
	}
	if len(out.Reasons) > 3 {
		out.Reasons = out.Reasons[:3]
	}
	return out
}

func (p *Predictor) temporalBoost(gapDays int) float64 {
	for _, band := range p.adj.Temporal {
		if gapDays <= band.MaxGapDays {
			return band.Boost
		}
	}
	return 0
}

func (p *Predictor) significanceBoost(planned, competing models.Event) float64 {
	attendees := 0
	if planned.ExpectedAttendees != nil {
		attendees = *planned.ExpectedAttendees
	}
	if competing.ExpectedAttendees != nil && *competing.ExpectedAttendees > attendees {
		attendees = *competing.ExpectedAttendees
	}
	for _, band := range p.adj.Significance {
		if attendees >= band.MinAttendees {
			return band.Boost
		}
	}
	return 0
}

// daysBetween is the gap in whole days between the two events' date spans,
// zero when the spans touch or overlap.
func daysBetween(a, b models.Event) int {
	aStart, aEnd := a.Span()
	bStart, bEnd := b.Span()

	if !aEnd.Before(bStart) && !bEnd.Before(aStart) {
		return 0
	}
	var gap time.Duration
	if aEnd.Before(bStart) {
		gap = bStart.Sub(aEnd)
	} else {
		gap = aStart.Sub(bEnd)
	}
	return int(gap.Hours() / 24)
}

var timingWords = []string{"day", "week", "same time", "timing", "close together", "back-to-back"}

func mentionsTiming(reasons []string) bool {
	for _, r := range reasons {
		lower := strings.ToLower(r)
		for _, w := range timingWords {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}

func timingReason(gapDays int) string {
	switch {
	case gapDays == 0:
		return "The events run on overlapping dates, so attendees must choose one"
	case gapDays <= 7:
		return fmt.Sprintf("Only %d day(s) apart, which strains attendee budgets and schedules", gapDays)
	default:
		return fmt.Sprintf("%d days apart still competes for the same audience's planning window", gapDays)
	}
}

// pairKey builds the cache key from the category pair. The pair is ordered
// so (A, B) and (B, A) share an entry.
func pairKey(a, b models.Event) Key {
	ka := [2]string{normalize.Name(a.Category), normalize.Name(a.Subcategory)}
	kb := [2]string{normalize.Name(b.Category), normalize.Name(b.Subcategory)}
	if kb[0] < ka[0] || (kb[0] == ka[0] && kb[1] < ka[1]) {
		ka, kb = kb, ka
	}
	return Key{Cat1: ka[0], Sub1: ka[1], Cat2: kb[0], Sub2: kb[1]}
}

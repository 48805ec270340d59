package conflict

import (
	"context"
	"sort"
	"time"

	"github.com/kamilvitek/oslavu-engine/internal/models"
	"github.com/kamilvitek/oslavu-engine/internal/overlap"
	"github.com/kamilvitek/oslavu-engine/internal/signals"
)

// Scorer turns a candidate date range into per-day conflict scores. All
// numeric work here is synchronous; only overlap prediction fans out.
type Scorer struct {
	predictor *overlap.Predictor
	holidays  *signals.HolidayProvider
	seasonal  *signals.SeasonalProvider
	venues    *signals.VenueProvider
	cfg       Config
}

// NewScorer wires a scorer. predictor may be nil when advanced analysis is
// globally disabled.
func NewScorer(predictor *overlap.Predictor, holidays *signals.HolidayProvider, seasonal *signals.SeasonalProvider, venues *signals.VenueProvider, cfg Config) *Scorer {
	if cfg.DisplayScale <= 0 {
		cfg = DefaultConfig()
	}
	return &Scorer{
		predictor: predictor,
		holidays:  holidays,
		seasonal:  seasonal,
		venues:    venues,
		cfg:       cfg,
	}
}

// Score computes a DayScore for every day in [start, end]. Results are
// deterministic for a fixed input snapshot: competitors are sorted before
// scoring and days assemble in date order regardless of worker completion.
func (s *Scorer) Score(ctx context.Context, planned models.Event, start, end time.Time, region string, competing []models.Event, advanced bool) []models.DayScore {
	competitors := append([]models.Event(nil), competing...)
	sort.Slice(competitors, func(i, j int) bool {
		if !competitors[i].Date.Equal(competitors[j].Date) {
			return competitors[i].Date.Before(competitors[j].Date)
		}
		if competitors[i].Source != competitors[j].Source {
			return competitors[i].Source < competitors[j].Source
		}
		return competitors[i].SourceID < competitors[j].SourceID
	})

	var days []models.DayScore
	for day := dateOnly(start); !day.After(dateOnly(end)); day = day.AddDate(0, 0, 1) {
		days = append(days, s.scoreDay(ctx, planned, day, region, competitors, advanced))
	}
	return days
}

func (s *Scorer) scoreDay(ctx context.Context, planned models.Event, day time.Time, region string, competitors []models.Event, advanced bool) models.DayScore {
	dayCompetitors := nearbyEvents(competitors, day, s.cfg.ProximityDays)

	// The planned event is scored as if it ran on the candidate day, so
	// temporal proximity is measured against that day.
	plannedOnDay := planned
	plannedOnDay.Date = day
	plannedOnDay.EndDate = nil

	var predictions []models.OverlapPrediction
	if advanced && s.predictor != nil {
		predictions = s.predictor.PredictAll(ctx, plannedOnDay, dayCompetitors)
	}

	raw := 0.0
	competingOut := make([]models.CompetingEvent, 0, len(dayCompetitors))
	for i, c := range dayCompetitors {
		overlapScore := s.cfg.FlatOverlap
		if predictions != nil {
			overlapScore = predictions[i].Score
		}
		raw += overlapScore * attendeeWeight(c.ExpectedAttendees)
		competingOut = append(competingOut, models.CompetingEvent{
			Event:          c,
			OverlapPercent: overlapScore * 100,
		})
	}

	holiday := s.holidays.Multiplier(day, region)
	seasonal := s.seasonal.Multiplier(day, planned.Category, planned.Subcategory, region)
	venue := signals.Neutral()
	if advanced && s.venues != nil {
		attendees := 0
		if planned.ExpectedAttendees != nil {
			attendees = *planned.ExpectedAttendees
		}
		venue = s.venues.Pressure(planned.Venue, planned.Category, attendees)
	}

	score := raw * holiday.Multiplier * seasonal.Multiplier * venue.Multiplier * s.cfg.DisplayScale

	return models.DayScore{
		Date:            day,
		Score:           score,
		Risk:            s.riskTier(score),
		Competing:       competingOut,
		HolidayReasons:  holiday.Reasons,
		SeasonalReasons: seasonal.Reasons,
		VenueReasons:    venue.Reasons,
	}
}

func (s *Scorer) riskTier(score float64) string {
	switch {
	case score <= s.cfg.LowRiskMax:
		return models.RiskLow
	case score <= s.cfg.MediumRiskMax:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// nearbyEvents returns the competitors whose date span lies within
// proximity days of the candidate day, preserving input order.
func nearbyEvents(competitors []models.Event, day time.Time, proximity int) []models.Event {
	windowStart := day.AddDate(0, 0, -proximity)
	windowEnd := day.AddDate(0, 0, proximity)

	var out []models.Event
	for _, c := range competitors {
		start, end := c.Span()
		if dateOnly(end).Before(windowStart) || dateOnly(start).After(windowEnd) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

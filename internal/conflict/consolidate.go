package conflict

import (
	"sort"
	"time"

	"github.com/kamilvitek/oslavu-engine/internal/models"
)

// Consolidation merges adjacent same-tier days into recommended and
// high-risk date ranges.
type Consolidation struct {
	Recommended []models.DateRangeRecommendation
	HighRisk    []models.DateRangeRecommendation
}

// Consolidate merges runs of low-risk days into recommended ranges and runs
// of high-risk days into high-risk ranges. A gap of up to MergeGapDays is
// bridged only when the gap holds no high-risk day and no day with
// competing-event conflicts. After merging, every recommended range is
// re-checked against the high-risk ranges: a day can never belong to both.
func Consolidate(days []models.DayScore, cfg Config) Consolidation {
	if cfg.MergeGapDays <= 0 {
		cfg.MergeGapDays = DefaultConfig().MergeGapDays
	}

	sorted := append([]models.DayScore(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	byDate := make(map[time.Time]models.DayScore, len(sorted))
	for _, d := range sorted {
		byDate[dateOnly(d.Date)] = d
	}

	highRisk := mergeTier(sorted, byDate, models.RiskHigh, cfg)
	recommended := mergeTier(sorted, byDate, models.RiskLow, cfg)

	// Invariant: no recommended date may fall inside a high-risk range.
	// Merging already avoids bridging over high-risk days, but enforce it
	// by construction anyway: rebuild any violating range without the
	// overlapped days.
	recommended = excludeOverlaps(recommended, highRisk)

	return Consolidation{Recommended: recommended, HighRisk: highRisk}
}

// mergeTier collects the days of one tier and merges consecutive runs.
func mergeTier(sorted []models.DayScore, byDate map[time.Time]models.DayScore, tier string, cfg Config) []models.DateRangeRecommendation {
	var tierDays []models.DayScore
	for _, d := range sorted {
		if d.Risk == tier {
			tierDays = append(tierDays, d)
		}
	}
	if len(tierDays) == 0 {
		return nil
	}

	var ranges []models.DateRangeRecommendation
	current := []models.DayScore{tierDays[0]}

	for _, d := range tierDays[1:] {
		prev := current[len(current)-1]
		gap := int(dateOnly(d.Date).Sub(dateOnly(prev.Date)).Hours() / 24)
		if gap <= cfg.MergeGapDays+1 && gapBridgeable(byDate, prev.Date, d.Date, tier) {
			current = append(current, d)
			continue
		}
		ranges = append(ranges, buildRange(current))
		current = []models.DayScore{d}
	}
	ranges = append(ranges, buildRange(current))
	return ranges
}

// gapBridgeable checks the days strictly between from and to. The merge is
// refused when the gap contains a high-risk day, or (for recommended
// ranges) any day with live competing-event conflicts.
func gapBridgeable(byDate map[time.Time]models.DayScore, from, to time.Time, tier string) bool {
	for day := dateOnly(from).AddDate(0, 0, 1); day.Before(dateOnly(to)); day = day.AddDate(0, 0, 1) {
		between, ok := byDate[day]
		if !ok {
			continue
		}
		if between.Risk == models.RiskHigh && tier != models.RiskHigh {
			return false
		}
		if tier == models.RiskLow && len(between.Competing) > 0 {
			return false
		}
	}
	return true
}

func buildRange(days []models.DayScore) models.DateRangeRecommendation {
	r := models.DateRangeRecommendation{
		StartDate: dateOnly(days[0].Date),
		EndDate:   dateOnly(days[len(days)-1].Date),
		Days:      days,
		MinScore:  days[0].Score,
		MaxScore:  days[0].Score,
	}
	total := 0.0
	for _, d := range days {
		total += d.Score
		if d.Score < r.MinScore {
			r.MinScore = d.Score
		}
		if d.Score > r.MaxScore {
			r.MaxScore = d.Score
		}
	}
	r.AvgScore = total / float64(len(days))
	return r
}

// excludeOverlaps rebuilds recommended ranges so none of their dates fall
// inside a high-risk range, splitting around excluded days when needed.
func excludeOverlaps(recommended, highRisk []models.DateRangeRecommendation) []models.DateRangeRecommendation {
	if len(highRisk) == 0 {
		return recommended
	}

	inHighRisk := func(day time.Time) bool {
		for _, hr := range highRisk {
			if hr.Contains(dateOnly(day)) {
				return true
			}
		}
		return false
	}

	var out []models.DateRangeRecommendation
	for _, rec := range recommended {
		var run []models.DayScore
		flush := func() {
			if len(run) > 0 {
				out = append(out, buildRange(run))
				run = nil
			}
		}
		for _, d := range rec.Days {
			if inHighRisk(d.Date) {
				flush()
				continue
			}
			run = append(run, d)
		}
		flush()
	}
	return out
}

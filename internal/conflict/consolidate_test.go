package conflict

import (
	"testing"

	"github.com/kamilvitek/oslavu-engine/internal/models"
)

func lowDay(d int, score float64) models.DayScore {
	return models.DayScore{Date: day(d), Score: score, Risk: models.RiskLow}
}

func highDay(d int, score float64) models.DayScore {
	return models.DayScore{
		Date:      day(d),
		Score:     score,
		Risk:      models.RiskHigh,
		Competing: []models.CompetingEvent{{Event: competitor("busy", day(d), 10000), OverlapPercent: 80}},
	}
}

func TestSplitAroundHighRiskDay(t *testing.T) {
	var days []models.DayScore
	for d := 6; d <= 15; d++ {
		if d == 10 {
			days = append(days, highDay(d, 18))
			continue
		}
		days = append(days, lowDay(d, 1))
	}

	cons := Consolidate(days, DefaultConfig())

	if len(cons.HighRisk) != 1 {
		t.Fatalf("got %d high-risk ranges, want 1", len(cons.HighRisk))
	}
	if !cons.HighRisk[0].StartDate.Equal(day(10)) || !cons.HighRisk[0].EndDate.Equal(day(10)) {
		t.Errorf("high-risk range = %s..%s, want the single middle day",
			cons.HighRisk[0].StartDate.Format("2006-01-02"), cons.HighRisk[0].EndDate.Format("2006-01-02"))
	}

	if len(cons.Recommended) < 2 {
		t.Fatalf("got %d recommended ranges, want at least 2 split around the high-risk day", len(cons.Recommended))
	}
	for _, rec := range cons.Recommended {
		if rec.Contains(day(10)) {
			t.Errorf("recommended range %s..%s spans the high-risk day",
				rec.StartDate.Format("2006-01-02"), rec.EndDate.Format("2006-01-02"))
		}
	}
}

func TestGapBridgedOverCleanMediumDay(t *testing.T) {
	days := []models.DayScore{
		lowDay(6, 1),
		{Date: day(7), Score: 8, Risk: models.RiskMedium},
		lowDay(8, 2),
	}

	cons := Consolidate(days, DefaultConfig())
	if len(cons.Recommended) != 1 {
		t.Fatalf("got %d recommended ranges, want 1 bridging the clean medium day", len(cons.Recommended))
	}
	rec := cons.Recommended[0]
	if !rec.StartDate.Equal(day(6)) || !rec.EndDate.Equal(day(8)) {
		t.Errorf("range = %s..%s, want Apr 6..Apr 8", rec.StartDate.Format("2006-01-02"), rec.EndDate.Format("2006-01-02"))
	}
}

func TestGapNotBridgedOverConflictDay(t *testing.T) {
	days := []models.DayScore{
		lowDay(6, 1),
		{
			Date:      day(7),
			Score:     8,
			Risk:      models.RiskMedium,
			Competing: []models.CompetingEvent{{Event: competitor("clash", day(7), 500), OverlapPercent: 40}},
		},
		lowDay(8, 2),
	}

	cons := Consolidate(days, DefaultConfig())
	if len(cons.Recommended) != 2 {
		t.Fatalf("got %d recommended ranges, want 2 (gap day has live conflicts)", len(cons.Recommended))
	}
}

func TestGapWiderThanLimitNotBridged(t *testing.T) {
	days := []models.DayScore{
		lowDay(6, 1),
		lowDay(12, 1),
	}

	cons := Consolidate(days, DefaultConfig())
	if len(cons.Recommended) != 2 {
		t.Fatalf("got %d recommended ranges, want 2 (gap exceeds merge limit)", len(cons.Recommended))
	}
}

func TestRangeStats(t *testing.T) {
	days := []models.DayScore{
		lowDay(6, 1),
		lowDay(7, 3),
		lowDay(8, 2),
	}

	cons := Consolidate(days, DefaultConfig())
	if len(cons.Recommended) != 1 {
		t.Fatalf("got %d recommended ranges, want 1", len(cons.Recommended))
	}
	rec := cons.Recommended[0]
	if !almostEqual(rec.MinScore, 1) || !almostEqual(rec.MaxScore, 3) || !almostEqual(rec.AvgScore, 2) {
		t.Errorf("stats min=%v max=%v avg=%v, want 1/3/2", rec.MinScore, rec.MaxScore, rec.AvgScore)
	}
}

func TestConsolidateUnsortedInput(t *testing.T) {
	days := []models.DayScore{
		lowDay(8, 2),
		lowDay(6, 1),
		lowDay(7, 3),
	}

	cons := Consolidate(days, DefaultConfig())
	if len(cons.Recommended) != 1 {
		t.Fatalf("got %d recommended ranges, want 1 from unsorted input", len(cons.Recommended))
	}
	if !cons.Recommended[0].StartDate.Equal(day(6)) || !cons.Recommended[0].EndDate.Equal(day(8)) {
		t.Errorf("range = %s..%s, want Apr 6..Apr 8",
			cons.Recommended[0].StartDate.Format("2006-01-02"), cons.Recommended[0].EndDate.Format("2006-01-02"))
	}
}

func TestExcludeOverlapsSplitsViolatingRange(t *testing.T) {
	rec := buildRange([]models.DayScore{lowDay(6, 1), lowDay(7, 1), lowDay(8, 1), lowDay(9, 1), lowDay(10, 1)})
	hr := buildRange([]models.DayScore{highDay(8, 15)})

	out := excludeOverlaps([]models.DateRangeRecommendation{rec}, []models.DateRangeRecommendation{hr})
	if len(out) != 2 {
		t.Fatalf("got %d ranges, want 2 after splitting around the overlap", len(out))
	}
	if !out[0].EndDate.Equal(day(7)) || !out[1].StartDate.Equal(day(9)) {
		t.Errorf("split = [..%s, %s..], want around Apr 8",
			out[0].EndDate.Format("2006-01-02"), out[1].StartDate.Format("2006-01-02"))
	}
}

func TestConsolidateEmpty(t *testing.T) {
	cons := Consolidate(nil, DefaultConfig())
	if len(cons.Recommended) != 0 || len(cons.HighRisk) != 0 {
		t.Errorf("empty input produced ranges: %+v", cons)
	}
}

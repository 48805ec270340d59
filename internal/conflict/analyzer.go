package conflict

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kamilvitek/oslavu-engine/internal/dedup"
	"github.com/kamilvitek/oslavu-engine/internal/models"
)

// EventSource fetches competing events for a city and date window. A source
// returns whatever it found; partial coverage is fine.
type EventSource interface {
	Name() string
	FetchEvents(ctx context.Context, city string, start, end time.Time, category string) ([]models.Event, error)
}

// Request describes one conflict analysis run.
type Request struct {
	Event    models.Event
	Start    time.Time
	End      time.Time
	Region   string
	Advanced bool
}

// Analyzer is the top-level orchestrator: fetch, dedupe, score, consolidate.
type Analyzer struct {
	sources []EventSource
	dedup   *dedup.Deduplicator
	scorer  *Scorer
	cfg     Config
}

// NewAnalyzer wires an analyzer from its stages. sources may be empty, in
// which case the run scores only ambient signals.
func NewAnalyzer(sources []EventSource, deduper *dedup.Deduplicator, scorer *Scorer, cfg Config) *Analyzer {
	if cfg.DisplayScale <= 0 {
		cfg = DefaultConfig()
	}
	return &Analyzer{sources: sources, dedup: deduper, scorer: scorer, cfg: cfg}
}

// AnalyzeConflicts runs the full pipeline for one candidate date range.
// Source failures are isolated: a failing provider is logged and the run
// continues on the remaining data. The run aborts only when every source
// fails, or when deduplication hits a broken embedding contract.
func (a *Analyzer) AnalyzeConflicts(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	if req.End.Before(req.Start) {
		return nil, fmt.Errorf("analyze: end date %s before start date %s", req.End.Format("2006-01-02"), req.Start.Format("2006-01-02"))
	}

	raw, fetchErr := a.fetchAll(ctx, req)
	if fetchErr != nil {
		return nil, fetchErr
	}

	events := raw
	var clusters []models.DuplicateCluster
	if a.dedup != nil && len(raw) > 0 {
		res, err := a.dedup.Deduplicate(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("analyze: dedupe: %w", err)
		}
		events = res.Canonical
		clusters = res.Clusters
		if removed := len(raw) - len(events); removed > 0 {
			log.Printf("[analyze] deduplication removed %d of %d events (%d clusters)", removed, len(raw), len(clusters))
		}
	}

	days := a.scorer.Score(ctx, req.Event, req.Start, req.End, req.Region, events, req.Advanced)
	cons := Consolidate(days, a.cfg)

	return &models.AnalysisResult{
		RunID:            uuid.New(),
		RecommendedDates: cons.Recommended,
		HighRiskDates:    cons.HighRisk,
		AllDays:          days,
		AllEvents:        events,
		SeasonalNotes:    seasonalNotes(days),
		AdvancedAnalysis: req.Advanced,
	}, nil
}

// fetchAll fans out to every source in parallel. The window is widened by
// the proximity setting so events just outside the candidate range still
// count as nearby competitors.
func (a *Analyzer) fetchAll(ctx context.Context, req Request) ([]models.Event, error) {
	if len(a.sources) == 0 {
		return nil, nil
	}

	winStart := req.Start.AddDate(0, 0, -a.cfg.ProximityDays)
	winEnd := req.End.AddDate(0, 0, a.cfg.ProximityDays)

	results := make([][]models.Event, len(a.sources))
	failed := make([]bool, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		i, src := i, src
		g.Go(func() error {
			events, err := src.FetchEvents(ctx, req.Event.City, winStart, winEnd, req.Event.Category)
			if err != nil {
				log.Printf("[analyze] source %s failed: %v", src.Name(), err)
				failed[i] = true
				return nil
			}
			log.Printf("[analyze] source %s returned %d events", src.Name(), len(events))
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	allFailed := true
	var merged []models.Event
	for i := range results {
		if !failed[i] {
			allFailed = false
		}
		merged = append(merged, results[i]...)
	}
	if allFailed {
		return nil, fmt.Errorf("analyze: all %d event sources failed", len(a.sources))
	}
	return merged, nil
}

// seasonalNotes collects the distinct seasonal reasons seen across the
// scored days, in first-seen date order.
func seasonalNotes(days []models.DayScore) []string {
	sorted := append([]models.DayScore(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	seen := make(map[string]bool)
	var notes []string
	for _, d := range sorted {
		for _, r := range d.SeasonalReasons {
			if seen[r] {
				continue
			}
			seen[r] = true
			notes = append(notes, r)
		}
	}
	return notes
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kamilvitek/oslavu-engine/internal/ai"
	"github.com/kamilvitek/oslavu-engine/internal/conflict"
	"github.com/kamilvitek/oslavu-engine/internal/dedup"
	"github.com/kamilvitek/oslavu-engine/internal/models"
	"github.com/kamilvitek/oslavu-engine/internal/overlap"
	"github.com/kamilvitek/oslavu-engine/internal/providers"
	"github.com/kamilvitek/oslavu-engine/internal/signals"
)

func main() {
	var (
		title       = flag.String("title", "", "planned event title (required)")
		city        = flag.String("city", "", "city the event runs in (required)")
		category    = flag.String("category", "", "event category, e.g. Technology")
		subcategory = flag.String("subcategory", "", "event subcategory, e.g. AI-ML")
		venue       = flag.String("venue", "", "planned venue name")
		attendees   = flag.Int("attendees", 0, "expected attendees")
		from        = flag.String("from", "", "first candidate date, YYYY-MM-DD (required)")
		to          = flag.String("to", "", "last candidate date, YYYY-MM-DD (required)")
		region      = flag.String("region", "EU", "holiday/seasonal region code")
		advanced    = flag.Bool("advanced", false, "run AI overlap and venue analysis")
		ollamaHost  = flag.String("ollama", os.Getenv("OLLAMA_HOST"), "ollama base URL")
		timeout     = flag.Duration("timeout", 5*time.Minute, "overall run timeout")
	)
	flag.Parse()

	if *title == "" || *city == "" || *from == "" || *to == "" {
		flag.Usage()
		os.Exit(2)
	}

	start, err := time.Parse("2006-01-02", *from)
	if err != nil {
		log.Fatalf("-from: %v", err)
	}
	end, err := time.Parse("2006-01-02", *to)
	if err != nil {
		log.Fatalf("-to: %v", err)
	}

	planned := models.Event{
		Title:       *title,
		City:        *city,
		Category:    *category,
		Subcategory: *subcategory,
		Venue:       *venue,
	}
	if *attendees > 0 {
		planned.ExpectedAttendees = attendees
	}

	aiClient := ai.NewOllamaClient(*ollamaHost, os.Getenv("OLLAMA_EMBED_MODEL"), os.Getenv("OLLAMA_GEN_MODEL"))

	registry, err := providers.LoadRegistry("internal/providers/config/sources.yaml")
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}
	sources, err := providers.Build(registry, providers.NewRateLimitedFetcher(providers.FetchConfig{}))
	if err != nil {
		log.Fatalf("Failed to build sources: %v", err)
	}

	cfg := conflict.DefaultConfig()
	deduper := dedup.New(aiClient, dedup.NewSimilarityCache(0), dedup.DefaultConfig())
	predictor := overlap.NewPredictor(overlap.NewAIEstimator(aiClient), overlap.NewCache(0), overlap.DefaultAdjustments(), cfg.Workers)
	scorer := conflict.NewScorer(predictor, signals.NewHolidayProvider(), signals.NewSeasonalProvider(), signals.NewVenueProvider(), cfg)
	analyzer := conflict.NewAnalyzer(sources, deduper, scorer, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := analyzer.AnalyzeConflicts(ctx, conflict.Request{
		Event:    planned,
		Start:    start,
		End:      end,
		Region:   *region,
		Advanced: *advanced,
	})
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	fmt.Printf("Run %s: %d events considered, %d days scored\n\n", result.RunID, len(result.AllEvents), len(result.AllDays))

	renderRanges("RECOMMENDED DATES", result.RecommendedDates)
	renderRanges("HIGH-RISK DATES", result.HighRiskDates)
	renderDays(result.AllDays)

	if len(result.SeasonalNotes) > 0 {
		fmt.Println("Seasonal notes:")
		for _, note := range result.SeasonalNotes {
			fmt.Printf("  - %s\n", note)
		}
	}
}

func renderRanges(title string, ranges []models.DateRangeRecommendation) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"From", "To", "Days", "Avg", "Min", "Max"})
	for _, r := range ranges {
		t.AppendRow(table.Row{
			r.StartDate.Format("2006-01-02"),
			r.EndDate.Format("2006-01-02"),
			len(r.Days),
			fmt.Sprintf("%.1f", r.AvgScore),
			fmt.Sprintf("%.1f", r.MinScore),
			fmt.Sprintf("%.1f", r.MaxScore),
		})
	}
	if len(ranges) == 0 {
		t.AppendRow(table.Row{"-", "-", 0, "-", "-", "-"})
	}
	t.Render()
	fmt.Println()
}

func renderDays(days []models.DayScore) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("DAY BY DAY")
	t.AppendHeader(table.Row{"Date", "Score", "Risk", "Competing"})
	for _, d := range days {
		t.AppendRow(table.Row{
			d.Date.Format("2006-01-02"),
			fmt.Sprintf("%.1f", d.Score),
			d.Risk,
			len(d.Competing),
		})
	}
	t.Render()
	fmt.Println()
}

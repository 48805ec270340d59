package main

import (
	"context"
	"log"
	"os"

	"github.com/kamilvitek/oslavu-engine/internal/ai"
	"github.com/kamilvitek/oslavu-engine/internal/api"
	"github.com/kamilvitek/oslavu-engine/internal/conflict"
	"github.com/kamilvitek/oslavu-engine/internal/db"
	"github.com/kamilvitek/oslavu-engine/internal/dedup"
	"github.com/kamilvitek/oslavu-engine/internal/overlap"
	"github.com/kamilvitek/oslavu-engine/internal/providers"
	"github.com/kamilvitek/oslavu-engine/internal/signals"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	store := db.NewEventStore(pool)

	ollamaHost := os.Getenv("OLLAMA_HOST")
	if ollamaHost == "" {
		ollamaHost = "http://localhost:11434"
	}
	aiClient := ai.NewOllamaClient(ollamaHost, os.Getenv("OLLAMA_EMBED_MODEL"), os.Getenv("OLLAMA_GEN_MODEL"))

	registry, err := providers.LoadRegistry("internal/providers/config/sources.yaml")
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}
	sources, err := providers.Build(registry, providers.NewRateLimitedFetcher(providers.FetchConfig{}))
	if err != nil {
		log.Fatalf("Failed to build sources: %v", err)
	}
	persistent := make([]conflict.EventSource, 0, len(sources))
	for _, src := range sources {
		persistent = append(persistent, providers.NewPersistentSource(src, store))
	}

	deduper := dedup.New(aiClient, dedup.NewSimilarityCache(0), dedup.DefaultConfig())
	predictor := overlap.NewPredictor(
		overlap.NewAIEstimator(aiClient),
		overlap.NewCache(0),
		overlap.DefaultAdjustments(),
		conflict.DefaultConfig().Workers,
	)
	scorer := conflict.NewScorer(
		predictor,
		signals.NewHolidayProvider(),
		signals.NewSeasonalProvider(),
		signals.NewVenueProvider(),
		conflict.DefaultConfig(),
	)
	analyzer := conflict.NewAnalyzer(persistent, deduper, scorer, conflict.DefaultConfig())

	srv := api.NewServer(analyzer)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}

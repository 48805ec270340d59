package dedup

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/kamilvitek/oslavu-engine/internal/ai"
	"github.com/kamilvitek/oslavu-engine/internal/models"
	"github.com/kamilvitek/oslavu-engine/internal/normalize"
)

// sourcePriority ranks providers for canonical selection: primary ticketing
// providers beat aggregators beat scraped sources beat manual entries.
var sourcePriority = map[string]int{
	"ticketmaster": 5,
	"eventbrite":   4,
	"meetup":       3,
	"scraper":      2,
	"manual":       1,
}

// Config tunes the deduplication run.
type Config struct {
	Threshold            float64       // semantic similarity cutoff, default 0.85
	BatchSize            int           // events per embedding batch, default 20
	MaxConcurrentBatches int           // default 5
	EmbedTimeout         time.Duration // per embedding call, default 10s
}

// DefaultConfig returns the production deduplication settings.
func DefaultConfig() Config {
	return Config{
		Threshold:            0.85,
		BatchSize:            20,
		MaxConcurrentBatches: 5,
		EmbedTimeout:         10 * time.Second,
	}
}

// Result is the output of one deduplication run. Canonical preserves the
// original event order; Clusters only contains groups with duplicates.
type Result struct {
	Canonical []models.Event
	Clusters  []models.DuplicateCluster
}

// Deduplicator collapses duplicate listings of the same real-world event.
type Deduplicator struct {
	embedder ai.Embedder
	cache    *SimilarityCache
	cfg      Config
}

// New creates a Deduplicator. The embedder may be nil, in which case only
// the exact-match pass runs.
func New(embedder ai.Embedder, cache *SimilarityCache, cfg Config) *Deduplicator {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = 0.85
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = 5
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 10 * time.Second
	}
	if cache == nil {
		cache = NewSimilarityCache(0)
	}
	return &Deduplicator{embedder: embedder, cache: cache, cfg: cfg}
}

// Deduplicate clusters events into duplicate groups and picks one canonical
// record per group. A failed embedding only excludes that event from
// semantic matching; a dimension mismatch between embeddings aborts the run
// with ErrDimensionMismatch, since it breaks the provider contract.
func (d *Deduplicator) Deduplicate(ctx context.Context, events []models.Event) (Result, error) {
	n := len(events)
	if n == 0 {
		return Result{}, nil
	}

	uf := newUnionFind(n)
	joinSim := make([]float64, n)

	// Pass 1: exact matches skip the embedding step entirely.
	exactMatched := d.exactPass(events, uf, joinSim)

	// Pass 2: semantic matching over everything the exact pass left alone.
	var candidates []int
	for i := 0; i < n; i++ {
		if !exactMatched[i] {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) > 1 && d.embedder != nil {
		vectors, err := d.embedCandidates(ctx, events, candidates)
		if err != nil {
			return Result{}, err
		}
		if err := d.semanticPass(events, candidates, vectors, uf, joinSim); err != nil {
			return Result{}, err
		}
	}

	return d.assemble(events, uf, joinSim), nil
}

// exactPass unions events with matching normalized title, matching city and
// matching venue (or either venue empty). Returns which indices joined a
// cluster of size > 1.
func (d *Deduplicator) exactPass(events []models.Event, uf *unionFind, joinSim []float64) []bool {
	matched := make([]bool, len(events))

	buckets := make(map[string][]int)
	for i, e := range events {
		key := normalize.Name(e.Title) + "|" + normalize.City(e.City)
		buckets[key] = append(buckets[key], i)
	}

	for _, bucket := range buckets {
		for a := 0; a < len(bucket); a++ {
			for b := a + 1; b < len(bucket); b++ {
				i, j := bucket[a], bucket[b]
				vi := normalize.Venue(events[i].Venue)
				vj := normalize.Venue(events[j].Venue)
				if vi != "" && vj != "" && vi != vj {
					continue
				}
				uf.union(i, j)
				joinSim[i] = 1.0
				joinSim[j] = 1.0
				matched[i] = true
				matched[j] = true
			}
		}
	}
	return matched
}

// embedCandidates fetches embeddings for the candidate indices, in batches
// with bounded parallelism. A failed embedding leaves a nil vector (the
// event simply never matches); the run continues.
func (d *Deduplicator) embedCandidates(ctx context.Context, events []models.Event, candidates []int) ([][]float32, error) {
	vectors := make([][]float32, len(events))

	var pending []int
	for _, i := range candidates {
		if vec, ok := d.cache.Get(cacheKey(events[i])); ok {
			vectors[i] = vec
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return vectors, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxConcurrentBatches)

	for start := 0; start < len(pending); start += d.cfg.BatchSize {
		end := start + d.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		g.Go(func() error {
			for _, i := range batch {
				callCtx, cancel := context.WithTimeout(gctx, d.cfg.EmbedTimeout)
				vec, err := d.embedder.GenerateEmbedding(callCtx, embeddingText(events[i]))
				cancel()
				if err != nil {
					log.Printf("[dedup] embedding failed for %q: %v", events[i].Title, err)
					continue
				}
				mu.Lock()
				vectors[i] = vec
				mu.Unlock()
				d.cache.Put(cacheKey(events[i]), vec)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// semanticPass unions candidate pairs whose cosine similarity clears the
// threshold. Clustering is transitive: joining any member joins the cluster.
func (d *Deduplicator) semanticPass(events []models.Event, candidates []int, vectors [][]float32, uf *unionFind, joinSim []float64) error {
	for a := 0; a < len(candidates); a++ {
		i := candidates[a]
		if vectors[i] == nil {
			continue
		}
		for b := a + 1; b < len(candidates); b++ {
			j := candidates[b]
			if vectors[j] == nil {
				continue
			}
			sim, err := Cosine(vectors[i], vectors[j])
			if err != nil {
				return fmt.Errorf("comparing %q and %q: %w", events[i].Title, events[j].Title, err)
			}
			if sim < d.cfg.Threshold {
				continue
			}
			uf.union(i, j)
			if sim > joinSim[i] {
				joinSim[i] = sim
			}
			if sim > joinSim[j] {
				joinSim[j] = sim
			}
		}
	}
	return nil
}

// assemble groups indices by cluster root, picks canonicals, and builds the
// result in original event order so output is deterministic.
func (d *Deduplicator) assemble(events []models.Event, uf *unionFind, joinSim []float64) Result {
	groups := make(map[int][]int)
	for i := range events {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	canonicalOf := make(map[int]int, len(groups))
	for root, members := range groups {
		canonicalOf[root] = selectCanonical(events, members)
	}

	var result Result
	for i, e := range events {
		root := uf.find(i)
		if canonicalOf[root] != i {
			continue
		}
		result.Canonical = append(result.Canonical, e)

		members := groups[root]
		if len(members) == 1 {
			continue
		}
		cluster := models.DuplicateCluster{Primary: e}
		sort.Ints(members)
		for _, m := range members {
			if m == i {
				continue
			}
			cluster.Duplicates = append(cluster.Duplicates, models.DuplicateMatch{
				Event:      events[m],
				Similarity: joinSim[m],
			})
		}
		result.Clusters = append(result.Clusters, cluster)
	}
	return result
}

// selectCanonical scores each cluster member and returns the index of the
// best one. Ties break on the lowest original index, never iteration order.
func selectCanonical(events []models.Event, members []int) int {
	best := -1
	bestScore := -1.0
	sorted := append([]int(nil), members...)
	sort.Ints(sorted)
	for _, i := range sorted {
		score := canonicalScore(events[i])
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

func canonicalScore(e models.Event) float64 {
	score := float64(sourcePriority[e.Source]) * 200
	score += float64(len(e.Description)) * 0.1
	if e.Venue != "" {
		score += 100
	}
	if e.ImageURL != "" {
		score += 50
	}
	if e.URL != "" {
		score += 25
	}
	if e.ExpectedAttendees != nil {
		score += 10
	}
	return score
}

func cacheKey(e models.Event) string {
	if e.SourceID != "" {
		return e.Source + "|" + e.SourceID
	}
	return e.Source + "|" + normalize.Name(e.Title)
}

// embeddingText builds the embedding input from the fields that identify an
// event, with HTML stripped from the description.
func embeddingText(e models.Event) string {
	text := strings.Join([]string{
		e.Title,
		htmlToText(e.Description),
		e.Venue,
		e.City,
		e.Category,
	}, "\n")
	if len(text) > 8000 {
		text = text[:8000]
	}
	return text
}

// htmlToText converts HTML to plain text, collapsing whitespace.
func htmlToText(html string) string {
	if !strings.Contains(html, "<") {
		return normalize.Space(html)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html // Fallback to original if parsing fails
	}
	return normalize.Space(doc.Text())
}

// unionFind is a disjoint-set over event indices. Roots are kept at the
// smallest index of their set so clustering is order-independent.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri == rj {
		return
	}
	if ri < rj {
		u.parent[rj] = ri
	} else {
		u.parent[ri] = rj
	}
}

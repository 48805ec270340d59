package overlap

import (
	"context"
	"embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kamilvitek/oslavu-engine/internal/ai"
	"github.com/kamilvitek/oslavu-engine/internal/models"
	"github.com/kamilvitek/oslavu-engine/internal/normalize"
)

// Estimator produces a date-independent base overlap prediction for two
// events. Implementations must keep the base score in [0, 0.95].
type Estimator interface {
	EstimateBase(ctx context.Context, planned, competing models.Event) (models.OverlapPrediction, error)
}

// AIEstimator asks the classification model for a base prediction.
type AIEstimator struct {
	Client  ai.Completer
	Timeout time.Duration // per classification call, default 10s
}

func NewAIEstimator(client ai.Completer) *AIEstimator {
	return &AIEstimator{Client: client, Timeout: 10 * time.Second}
}

func (e *AIEstimator) EstimateBase(ctx context.Context, planned, competing models.Event) (models.OverlapPrediction, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := ai.ClassifyAudienceOverlap(callCtx, e.Client, profile(planned), profile(competing))
	if err != nil {
		return models.OverlapPrediction{}, fmt.Errorf("overlap classification failed: %w", err)
	}

	return models.OverlapPrediction{
		Score:      result.OverlapScore,
		BaseScore:  result.OverlapScore,
		Confidence: result.Confidence,
		Factors: models.FactorBreakdown{
			DemographicSimilarity: result.DemographicSimilarity,
			InterestAlignment:     result.InterestAlignment,
			BehaviorPattern:       result.BehaviorPattern,
			HistoricalPreference:  result.HistoricalPreference,
		},
		Reasons: result.Reasons,
		Method:  models.MethodAI,
	}, nil
}

func profile(e models.Event) ai.EventProfile {
	return ai.EventProfile{
		Title:       e.Title,
		Category:    e.Category,
		Subcategory: e.Subcategory,
		City:        e.City,
		Description: e.Description,
	}
}

//go:embed config/categories.yaml
var categoriesYAML embed.FS

type categoryRules struct {
	Related []struct {
		A string `yaml:"a"`
		B string `yaml:"b"`
	} `yaml:"related"`
}

// RuleBasedEstimator is the deterministic fallback: a category equality
// table instead of a model call. Always succeeds.
type RuleBasedEstimator struct {
	related map[string]bool
}

func NewRuleBasedEstimator() *RuleBasedEstimator {
	est := &RuleBasedEstimator{related: make(map[string]bool)}

	data, err := categoriesYAML.ReadFile("config/categories.yaml")
	if err != nil {
		return est
	}
	var rules categoryRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return est
	}
	for _, pair := range rules.Related {
		est.related[relatedKey(pair.A, pair.B)] = true
	}
	return est
}

// Base scores for the rule table. Empirical, tuned to sit below typical AI
// estimates so the fallback under-promises.
const (
	sameSubcategoryScore = 0.55
	sameCategoryScore    = 0.35
	relatedCategoryScore = 0.20
	unrelatedScore       = 0.08
)

func (e *RuleBasedEstimator) EstimateBase(_ context.Context, planned, competing models.Event) (models.OverlapPrediction, error) {
	cat1 := normalize.Name(planned.Category)
	cat2 := normalize.Name(competing.Category)
	sub1 := normalize.Name(planned.Subcategory)
	sub2 := normalize.Name(competing.Subcategory)

	var score float64
	var reason string
	switch {
	case cat1 == cat2 && sub1 != "" && sub1 == sub2:
		score = sameSubcategoryScore
		reason = fmt.Sprintf("Both events target the %s / %s audience", planned.Category, planned.Subcategory)
	case cat1 == cat2:
		score = sameCategoryScore
		reason = fmt.Sprintf("Both events are %s events", planned.Category)
	case e.related[relatedKey(cat1, cat2)]:
		score = relatedCategoryScore
		reason = fmt.Sprintf("%s and %s audiences partially overlap", planned.Category, competing.Category)
	default:
		score = unrelatedScore
		reason = fmt.Sprintf("%s and %s draw largely separate audiences", planned.Category, competing.Category)
	}

	return models.OverlapPrediction{
		Score:      score,
		BaseScore:  score,
		Confidence: 0.5,
		Factors: models.FactorBreakdown{
			DemographicSimilarity: score,
			InterestAlignment:     score,
			BehaviorPattern:       score,
			HistoricalPreference:  score,
		},
		Reasons: []string{reason, "Estimated from category rules without audience analysis"},
		Method:  models.MethodRuleBased,
	}, nil
}

// relatedKey orders the pair so lookups are symmetric.
func relatedKey(a, b string) string {
	a, b = normalize.Name(a), normalize.Name(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

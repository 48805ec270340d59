package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single raw event record as returned by an upstream provider.
// Immutable once fetched; normalization happens on copies.
type Event struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Date              time.Time  `json:"date"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	City              string     `json:"city"`
	Venue             string     `json:"venue,omitempty"`
	Category          string     `json:"category"`
	Subcategory       string     `json:"subcategory,omitempty"`
	ExpectedAttendees *int       `json:"expected_attendees,omitempty"`
	Source            string     `json:"source"`    // provider id, e.g. "ticketmaster"
	SourceID          string     `json:"source_id"` // provider-specific key
	URL               string     `json:"url,omitempty"`
	ImageURL          string     `json:"image_url,omitempty"`
	Embedding         []float32  `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Span returns the inclusive date span of the event. Single-day events
// span one day.
func (e Event) Span() (time.Time, time.Time) {
	start := e.Date
	end := e.Date
	if e.EndDate != nil && e.EndDate.After(start) {
		end = *e.EndDate
	}
	return start, end
}

// DuplicateMatch pairs a duplicate event with the similarity that joined it
// to a cluster.
type DuplicateMatch struct {
	Event      Event   `json:"event"`
	Similarity float64 `json:"similarity"` // [0,1], 1.0 for exact matches
}

// DuplicateCluster groups listings of the same real-world event. Primary is
// the canonical member; Duplicates are ordered by discovery.
type DuplicateCluster struct {
	Primary    Event            `json:"primary"`
	Duplicates []DuplicateMatch `json:"duplicates"`
}

// Size returns the number of events in the cluster, canonical included.
func (c DuplicateCluster) Size() int {
	return 1 + len(c.Duplicates)
}

// FactorBreakdown decomposes an overlap prediction into its contributing
// audience factors, each in [0,1].
type FactorBreakdown struct {
	DemographicSimilarity float64 `json:"demographic_similarity"`
	InterestAlignment     float64 `json:"interest_alignment"`
	BehaviorPattern       float64 `json:"behavior_pattern"`
	HistoricalPreference  float64 `json:"historical_preference"`
}

// Prediction methods.
const (
	MethodAI        = "ai"
	MethodRuleBased = "rule-based"
)

// OverlapPrediction estimates the fraction of shared audience between two
// events. Score is the fully adjusted value in [0, 0.95]; BaseScore is the
// date-independent value that gets cached.
type OverlapPrediction struct {
	Score      float64         `json:"score"`
	BaseScore  float64         `json:"base_score"`
	Confidence float64         `json:"confidence"`
	Factors    FactorBreakdown `json:"factors"`
	Reasons    []string        `json:"reasons"`
	Method     string          `json:"method"` // "ai" or "rule-based"
}

// Risk tiers for a scored day.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// CompetingEvent is one deduplicated competitor contributing to a day score.
type CompetingEvent struct {
	Event          Event   `json:"event"`
	OverlapPercent float64 `json:"overlap_percent"` // 0-95
}

// DayScore is the conflict score for a single candidate date.
type DayScore struct {
	Date            time.Time        `json:"date"`
	Score           float64          `json:"score"` // 0-20 display scale
	Risk            string           `json:"risk"`
	Competing       []CompetingEvent `json:"competing_events"`
	HolidayReasons  []string         `json:"holiday_reasons,omitempty"`
	SeasonalReasons []string         `json:"seasonal_reasons,omitempty"`
	VenueReasons    []string         `json:"venue_reasons,omitempty"`
}

// DateRangeRecommendation is a consolidated run of same-tier days.
type DateRangeRecommendation struct {
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	AvgScore  float64    `json:"avg_score"`
	MinScore  float64    `json:"min_score"`
	MaxScore  float64    `json:"max_score"`
	Days      []DayScore `json:"days"`
}

// Contains reports whether day falls inside the recommendation's span.
func (r DateRangeRecommendation) Contains(day time.Time) bool {
	return !day.Before(r.StartDate) && !day.After(r.EndDate)
}

// AnalysisResult is the top-level output of AnalyzeConflicts.
type AnalysisResult struct {
	RunID            uuid.UUID                 `json:"run_id"`
	RecommendedDates []DateRangeRecommendation `json:"recommended_dates"`
	HighRiskDates    []DateRangeRecommendation `json:"high_risk_dates"`
	AllDays          []DayScore                `json:"all_days"`
	AllEvents        []Event                   `json:"all_events"`
	SeasonalNotes    []string                  `json:"seasonal_intelligence,omitempty"`
	AdvancedAnalysis bool                      `json:"advanced_analysis"`
}

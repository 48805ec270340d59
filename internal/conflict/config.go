package conflict

// Config holds the scoring and consolidation knobs. Thresholds are tunable
// configuration, not contract.
type Config struct {
	// Risk tier thresholds on the 0-20 display scale.
	LowRiskMax    float64
	MediumRiskMax float64

	// DisplayScale converts the raw weighted-overlap sum to the 0-20
	// display convention.
	DisplayScale float64

	// ProximityDays widens the per-day competitor window: an event whose
	// span is within this many days of a candidate day competes with it.
	ProximityDays int

	// MergeGapDays is the largest gap bridged when consolidating
	// same-tier days into a range.
	MergeGapDays int

	// FlatOverlap is the assumed overlap fraction when advanced analysis
	// is disabled and the predictor is skipped.
	FlatOverlap float64

	// Workers bounds parallel overlap prediction per day.
	Workers int
}

// DefaultConfig returns the production scoring settings.
func DefaultConfig() Config {
	return Config{
		LowRiskMax:    5,
		MediumRiskMax: 12,
		DisplayScale:  2.0,
		ProximityDays: 1,
		MergeGapDays:  3,
		FlatOverlap:   0.30,
		Workers:       5,
	}
}

// attendeeWeight scales a competitor's contribution by its size. Unknown
// attendance counts as a small event.
func attendeeWeight(attendees *int) float64 {
	if attendees == nil {
		return 1.0
	}
	switch {
	case *attendees >= 10000:
		return 3.0
	case *attendees >= 1000:
		return 2.0
	case *attendees >= 100:
		return 1.5
	default:
		return 1.0
	}
}

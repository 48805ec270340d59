// Package signals provides the holiday, seasonal and venue multiplier
// sources blended into the conflict score. All three are read-only lookups
// that degrade to a neutral multiplier on failure, never fatal.
package signals

// Signal is one multiplier source's contribution to a day's conflict score.
type Signal struct {
	Multiplier float64
	Confidence float64
	Reasons    []string
}

// Neutral is the no-signal result used on lookup failure.
func Neutral() Signal {
	return Signal{Multiplier: 1.0, Confidence: 0.3}
}

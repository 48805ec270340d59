package signals

import (
	"fmt"
	"strings"

	"github.com/kamilvitek/oslavu-engine/internal/normalize"
)

// venueType maps name patterns to a baseline capacity and a price tier.
// The table is pattern-matched because providers rarely ship structured
// venue metadata.
type venueType struct {
	label     string
	patterns  []string
	capacity  int
	priceTier float64
}

var venueTypes = []venueType{
	{"stadium", []string{"stadium", "arena"}, 15000, 1.3},
	{"convention center", []string{"convention", "congress", "expo", "exhibition", "forum"}, 5000, 1.2},
	{"concert hall", []string{"theatre", "theater", "concert hall", "philharmonic", "opera"}, 1200, 1.1},
	{"university venue", []string{"university", "campus", "academy", "institute"}, 800, 0.9},
	{"hotel venue", []string{"hotel", "ballroom"}, 400, 1.0},
	{"club", []string{"club", "bar", "cafe", "loft"}, 200, 0.8},
}

// utilizationByCategory is the fraction of a venue's capacity a category
// typically fills.
var utilizationByCategory = map[string]float64{
	"sports":     0.90,
	"music":      0.85,
	"technology": 0.70,
	"arts":       0.70,
	"business":   0.60,
}

const defaultUtilization = 0.65

// VenueProvider derives conflict pressure from estimated venue capacity
// utilization. Unknown venues degrade to the neutral signal.
type VenueProvider struct{}

func NewVenueProvider() *VenueProvider {
	return &VenueProvider{}
}

// Pressure estimates how contested a venue is for an event of the given
// category and expected attendance.
func (p *VenueProvider) Pressure(venueName, category string, expectedAttendees int) Signal {
	name := normalize.Name(venueName)
	if name == "" {
		return Neutral()
	}

	vt, ok := matchVenueType(name)
	if !ok {
		return Signal{
			Multiplier: 1.0,
			Confidence: 0.4,
			Reasons:    []string{fmt.Sprintf("Venue %q matched no known venue type", venueName)},
		}
	}

	utilization := utilizationByCategory[normalize.Name(category)]
	if utilization == 0 {
		utilization = defaultUtilization
	}
	effectiveCapacity := float64(vt.capacity) * utilization

	ratio := 0.5 // assume half-full when attendance is unknown
	if expectedAttendees > 0 {
		ratio = float64(expectedAttendees) / effectiveCapacity
	}
	if ratio > 2 {
		ratio = 2
	}

	// Base pressure grows with capacity utilization; the price tier nudges
	// it because expensive venues concentrate the paying audience.
	multiplier := (0.9 + 0.25*ratio) * (0.9 + 0.1*vt.priceTier)
	if multiplier < 0.8 {
		multiplier = 0.8
	}
	if multiplier > 1.6 {
		multiplier = 1.6
	}

	reasons := []string{
		fmt.Sprintf("%q reads as a %s (~%d seats, %.0f%% typical %s utilization)",
			venueName, vt.label, vt.capacity, utilization*100, strings.ToLower(category)),
	}
	if expectedAttendees > 0 {
		reasons = append(reasons, fmt.Sprintf("Expected %d attendees puts capacity pressure at %.0f%%",
			expectedAttendees, ratio*100))
	}

	return Signal{Multiplier: multiplier, Confidence: 0.6, Reasons: reasons}
}

func matchVenueType(normalizedName string) (venueType, bool) {
	for _, vt := range venueTypes {
		for _, pattern := range vt.patterns {
			if strings.Contains(normalizedName, pattern) {
				return vt, true
			}
		}
	}
	return venueType{}, false
}

package normalize

import (
	"strings"
	"unicode"
)

// cityAliases maps common spellings to the canonical city name.
var cityAliases = map[string]string{
	"praha":          "Prague",
	"praga":          "Prague",
	"prag":           "Prague",
	"brno":           "Brno",
	"wien":           "Vienna",
	"muenchen":       "Munich",
	"munchen":        "Munich",
	"koeln":          "Cologne",
	"warszawa":       "Warsaw",
	"new york city":  "New York",
	"nyc":            "New York",
	"sf":             "San Francisco",
	"san fran":       "San Francisco",
}

// venueNoise are suffixes that vary between listings of the same venue.
var venueNoise = []string{
	"conference center", "conference centre", "convention center",
	"convention centre", "exhibition hall", "expo center",
}

// Space collapses runs of whitespace into single spaces and trims.
func Space(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Name canonicalizes a free-form name: whitespace collapsed, lowercased,
// punctuation stripped. Two listings of the same thing should normalize to
// the same string.
func Name(s string) string {
	s = strings.ToLower(Space(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return Space(b.String())
}

// City canonicalizes a city name, resolving known aliases.
func City(s string) string {
	key := Name(s)
	if canonical, ok := cityAliases[key]; ok {
		return canonical
	}
	return Space(s)
}

// Venue canonicalizes a venue name. Generic building-type suffixes are
// dropped so "O2 Arena" and "O2 arena conference center" compare equal.
func Venue(s string) string {
	name := Name(s)
	for _, noise := range venueNoise {
		name = strings.TrimSpace(strings.TrimSuffix(name, noise))
	}
	return name
}

// Equal reports whether two names canonicalize to the same string.
func Equal(a, b string) bool {
	return Name(a) == Name(b)
}

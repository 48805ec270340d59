package signals

import (
	"embed"
	"fmt"
	"log"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/holidays.yaml
var holidaysYAML embed.FS

// Holiday is a configured holiday with an impact window around it. Events
// inside the window compete with holiday plans, raising conflict pressure.
type Holiday struct {
	Name       string  `yaml:"name"`
	Month      int     `yaml:"month"`
	Day        int     `yaml:"day"`
	Region     string  `yaml:"region"` // empty = applies everywhere
	DaysBefore int     `yaml:"days_before"`
	DaysAfter  int     `yaml:"days_after"`
	Multiplier float64 `yaml:"multiplier"`
}

type holidayFile struct {
	Holidays []Holiday `yaml:"holidays"`
}

// maxCombinedMultiplier caps stacked holiday windows.
const maxCombinedMultiplier = 5.0

const holidayCacheTTL = 15 * time.Minute

// HolidayProvider finds holidays whose impact window contains a date and
// combines their multipliers. Lookups are cached for 15 minutes.
type HolidayProvider struct {
	holidays []Holiday

	mu    sync.Mutex
	cache map[string]holidayCacheItem
	now   func() time.Time
}

type holidayCacheItem struct {
	signal    Signal
	expiresAt time.Time
}

// NewHolidayProvider loads the embedded holiday table. A broken table
// yields a provider that always returns the neutral signal.
func NewHolidayProvider() *HolidayProvider {
	p := &HolidayProvider{
		cache: make(map[string]holidayCacheItem),
		now:   time.Now,
	}

	data, err := holidaysYAML.ReadFile("config/holidays.yaml")
	if err != nil {
		log.Printf("[signals] holiday table missing: %v", err)
		return p
	}
	var file holidayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		log.Printf("[signals] holiday table unreadable: %v", err)
		return p
	}
	p.holidays = file.Holidays
	return p
}

// Multiplier returns the combined holiday pressure for a date in a region.
// Overlapping holiday windows multiply, capped at 5.0x.
func (p *HolidayProvider) Multiplier(date time.Time, region string) Signal {
	cacheKey := date.Format("2006-01-02") + "|" + region

	p.mu.Lock()
	if item, ok := p.cache[cacheKey]; ok && p.now().Before(item.expiresAt) {
		p.mu.Unlock()
		return item.signal
	}
	p.mu.Unlock()

	signal := p.compute(date, region)

	p.mu.Lock()
	p.cache[cacheKey] = holidayCacheItem{signal: signal, expiresAt: p.now().Add(holidayCacheTTL)}
	p.mu.Unlock()
	return signal
}

func (p *HolidayProvider) compute(date time.Time, region string) Signal {
	combined := 1.0
	var reasons []string

	for _, h := range p.holidays {
		if h.Region != "" && h.Region != region {
			continue
		}
		// Windows around New Year cross the year boundary, so check the
		// occurrence in the neighboring years too.
		for yearOffset := -1; yearOffset <= 1; yearOffset++ {
			occurrence := time.Date(date.Year()+yearOffset, time.Month(h.Month), h.Day, 0, 0, 0, 0, date.Location())
			windowStart := occurrence.AddDate(0, 0, -h.DaysBefore)
			windowEnd := occurrence.AddDate(0, 0, h.DaysAfter)
			if date.Before(windowStart) || date.After(windowEnd) {
				continue
			}
			combined *= h.Multiplier
			reasons = append(reasons, fmt.Sprintf("%s (%s) impact window covers this date, %.1fx",
				h.Name, occurrence.Format("Jan 2"), h.Multiplier))
			break
		}
	}

	if combined > maxCombinedMultiplier {
		combined = maxCombinedMultiplier
		reasons = append(reasons, "Combined holiday pressure capped at 5.0x")
	}

	if len(reasons) == 0 {
		return Signal{Multiplier: 1.0, Confidence: 0.9}
	}
	return Signal{Multiplier: combined, Confidence: 0.9, Reasons: reasons}
}

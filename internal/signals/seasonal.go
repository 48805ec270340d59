package signals

import (
	"embed"
	"fmt"
	"log"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kamilvitek/oslavu-engine/internal/normalize"
)

//go:embed config/seasonal.yaml
var seasonalYAML embed.FS

type seasonalRow struct {
	Category    string  `yaml:"category"`
	Subcategory string  `yaml:"subcategory"`
	Region      string  `yaml:"region"`
	Month       int     `yaml:"month"`
	Multiplier  float64 `yaml:"multiplier"`
	Confidence  float64 `yaml:"confidence"`
}

type seasonalDefault struct {
	Category   string  `yaml:"category"`
	Multiplier float64 `yaml:"multiplier"`
}

type seasonalFile struct {
	Rows     []seasonalRow     `yaml:"rows"`
	Defaults []seasonalDefault `yaml:"defaults"`
}

type seasonalKey struct {
	category    string
	subcategory string
	region      string
	month       int
}

// SeasonalProvider looks up expert-authored demand multipliers by
// (category, subcategory, region, month). Missing rows fall back to a
// category-level default, then to neutral.
type SeasonalProvider struct {
	rows     map[seasonalKey]seasonalRow
	defaults map[string]float64
}

// NewSeasonalProvider loads the embedded demand table. A broken table
// yields a provider that always returns the neutral signal.
func NewSeasonalProvider() *SeasonalProvider {
	p := &SeasonalProvider{
		rows:     make(map[seasonalKey]seasonalRow),
		defaults: make(map[string]float64),
	}

	data, err := seasonalYAML.ReadFile("config/seasonal.yaml")
	if err != nil {
		log.Printf("[signals] seasonal table missing: %v", err)
		return p
	}
	var file seasonalFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		log.Printf("[signals] seasonal table unreadable: %v", err)
		return p
	}

	for _, row := range file.Rows {
		key := seasonalKey{
			category:    normalize.Name(row.Category),
			subcategory: normalize.Name(row.Subcategory),
			region:      normalize.Name(row.Region),
			month:       row.Month,
		}
		p.rows[key] = row
	}
	for _, d := range file.Defaults {
		p.defaults[normalize.Name(d.Category)] = d.Multiplier
	}
	return p
}

// Multiplier returns the seasonal demand signal for a date, category and
// region. Lookup order: exact row, row without subcategory, row without
// region, category default, neutral.
func (p *SeasonalProvider) Multiplier(date time.Time, category, subcategory, region string) Signal {
	month := int(date.Month())
	cat := normalize.Name(category)
	sub := normalize.Name(subcategory)
	reg := normalize.Name(region)

	candidates := []seasonalKey{
		{category: cat, subcategory: sub, region: reg, month: month},
		{category: cat, subcategory: "", region: reg, month: month},
		{category: cat, subcategory: sub, region: "", month: month},
		{category: cat, subcategory: "", region: "", month: month},
	}
	for _, key := range candidates {
		if row, ok := p.rows[key]; ok {
			confidence := row.Confidence
			if confidence == 0 {
				confidence = 0.7
			}
			return Signal{
				Multiplier: row.Multiplier,
				Confidence: confidence,
				Reasons: []string{fmt.Sprintf("%s demand in %s runs at %.1fx during %s",
					category, regionLabel(region), row.Multiplier, date.Month())},
			}
		}
	}

	if mult, ok := p.defaults[cat]; ok {
		return Signal{
			Multiplier: mult,
			Confidence: 0.5,
			Reasons:    []string{fmt.Sprintf("No month-level data; %s category default %.1fx", category, mult)},
		}
	}
	return Neutral()
}

func regionLabel(region string) string {
	if region == "" {
		return "all regions"
	}
	return region
}

package providers

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kamilvitek/oslavu-engine/internal/conflict"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the configuration for all event sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig defines a single upstream event source.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // "api", "scraper"
	BaseURL  string `yaml:"base_url,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	Category string `yaml:"category,omitempty"` // default category when the source has none
	Enabled  *bool  `yaml:"enabled,omitempty"`  // nil = enabled

	Fetch FetchConfig `yaml:"fetch,omitempty"`

	// For the scraper kind
	Seeds     []string       `yaml:"seed_urls,omitempty"`
	Selectors SelectorConfig `yaml:"selectors,omitempty"`
	MaxPages  int            `yaml:"max_pages,omitempty"`
}

// SelectorConfig maps CSS selectors onto event fields for scraped sources.
type SelectorConfig struct {
	Container   string   `yaml:"container,omitempty"` // list item wrapper
	Title       string   `yaml:"title,omitempty"`
	Link        string   `yaml:"link,omitempty"`
	LinkAttr    string   `yaml:"link_attr,omitempty"` // default: href
	Date        string   `yaml:"date,omitempty"`
	DateFormats []string `yaml:"date_formats,omitempty"`
	Venue       string   `yaml:"venue,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Image       string   `yaml:"image,omitempty"`
	NextPage    string   `yaml:"next_page,omitempty"`
}

func (s SourceConfig) enabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// LoadRegistry reads the embedded sources.yaml, falling back to the given
// path for local development. Environment variables inside the YAML (e.g.
// ${TICKETMASTER_API_KEY}) are expanded before parsing.
func LoadRegistry(path string) (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if err != nil {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parsing source registry: %w", err)
	}
	return &reg, nil
}

// Build constructs an event source per enabled registry entry. Sources with
// an unknown kind are rejected so a typo in the registry fails loudly at
// startup instead of silently dropping a provider.
func Build(reg *Registry, fetcher *RateLimitedFetcher) ([]conflict.EventSource, error) {
	if fetcher == nil {
		fetcher = NewRateLimitedFetcher(FetchConfig{})
	}

	var sources []conflict.EventSource
	for _, cfg := range reg.Sources {
		if !cfg.enabled() {
			continue
		}
		if cfg.BaseURL != "" {
			if domain, err := getDomain(cfg.BaseURL); err == nil {
				fetcher.Configure(domain, cfg.Fetch)
			}
		}

		switch cfg.Kind {
		case "api":
			sources = append(sources, NewAPIProvider(cfg, fetcher))
		case "scraper":
			sources = append(sources, NewScraperProvider(cfg))
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", cfg.ID, cfg.Kind)
		}
	}
	return sources, nil
}

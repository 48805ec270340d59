package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/kamilvitek/oslavu-engine/internal/models"
)

const apiPageSize = 100

// APIProvider pulls events from a JSON search API. It understands the
// Ticketmaster Discovery envelope and a flat {"events": [...]} envelope,
// which covers every API source currently in the registry.
type APIProvider struct {
	cfg     SourceConfig
	fetcher *RateLimitedFetcher
}

func NewAPIProvider(cfg SourceConfig, fetcher *RateLimitedFetcher) *APIProvider {
	return &APIProvider{cfg: cfg, fetcher: fetcher}
}

func (p *APIProvider) Name() string { return p.cfg.ID }

// FetchEvents pages through the search API until a short page or the date
// window is exhausted.
func (p *APIProvider) FetchEvents(ctx context.Context, city string, start, end time.Time, category string) ([]models.Event, error) {
	var all []models.Event

	for page := 0; ; page++ {
		batch, err := p.fetchPage(ctx, city, start, end, category, page)
		if err != nil {
			return nil, fmt.Errorf("source %s page %d: %w", p.cfg.ID, page, err)
		}
		all = append(all, batch...)
		if len(batch) < apiPageSize {
			break
		}
	}

	log.Printf("[providers] %s returned %d events for %s", p.cfg.ID, len(all), city)
	return all, nil
}

func (p *APIProvider) fetchPage(ctx context.Context, city string, start, end time.Time, category string, page int) ([]models.Event, error) {
	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("city", city)
	q.Set("startDateTime", start.UTC().Format("2006-01-02T15:04:05Z"))
	q.Set("endDateTime", end.UTC().Format("2006-01-02T15:04:05Z"))
	q.Set("size", fmt.Sprintf("%d", apiPageSize))
	q.Set("page", fmt.Sprintf("%d", page))
	if category != "" {
		q.Set("classificationName", category)
	}
	if p.cfg.APIKey != "" {
		q.Set("apikey", p.cfg.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := p.fetcher.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.parseResponse(body)
}

// discoveryResponse is the Ticketmaster Discovery API envelope.
type discoveryResponse struct {
	Embedded struct {
		Events []discoveryEvent `json:"events"`
	} `json:"_embedded"`
}

type discoveryEvent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Info   string `json:"info"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Dates struct {
		Start struct {
			LocalDate string `json:"localDate"`
		} `json:"start"`
		End struct {
			LocalDate string `json:"localDate"`
		} `json:"end"`
	} `json:"dates"`
	Classifications []struct {
		Segment struct {
			Name string `json:"name"`
		} `json:"segment"`
		Genre struct {
			Name string `json:"name"`
		} `json:"genre"`
	} `json:"classifications"`
	Embedded struct {
		Venues []struct {
			Name string `json:"name"`
			City struct {
				Name string `json:"name"`
			} `json:"city"`
		} `json:"venues"`
	} `json:"_embedded"`
}

// flatResponse is the plain envelope used by non-Discovery sources.
type flatResponse struct {
	Events []flatEvent `json:"events"`
}

type flatEvent struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	City              string `json:"city"`
	Venue             string `json:"venue"`
	Category          string `json:"category"`
	Subcategory       string `json:"subcategory"`
	URL               string `json:"url"`
	ImageURL          string `json:"image_url"`
	ExpectedAttendees *int   `json:"expected_attendees"`
}

func (p *APIProvider) parseResponse(body []byte) ([]models.Event, error) {
	var disc discoveryResponse
	if err := json.Unmarshal(body, &disc); err == nil && len(disc.Embedded.Events) > 0 {
		return p.fromDiscovery(disc.Embedded.Events), nil
	}

	var flat flatResponse
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return p.fromFlat(flat.Events), nil
}

func (p *APIProvider) fromDiscovery(records []discoveryEvent) []models.Event {
	events := make([]models.Event, 0, len(records))
	for _, rec := range records {
		date, err := time.Parse("2006-01-02", rec.Dates.Start.LocalDate)
		if err != nil {
			log.Printf("[providers] %s: skipping %q, bad start date %q", p.cfg.ID, rec.Name, rec.Dates.Start.LocalDate)
			continue
		}

		e := models.Event{
			Title:    rec.Name,
			Date:     date,
			Source:   p.cfg.ID,
			SourceID: rec.ID,
			URL:      rec.URL,
		}
		e.Description = rec.Info
		if rec.Dates.End.LocalDate != "" {
			if end, err := time.Parse("2006-01-02", rec.Dates.End.LocalDate); err == nil {
				e.EndDate = &end
			}
		}
		if len(rec.Images) > 0 {
			e.ImageURL = rec.Images[0].URL
		}
		if len(rec.Classifications) > 0 {
			e.Category = rec.Classifications[0].Segment.Name
			e.Subcategory = rec.Classifications[0].Genre.Name
		}
		if len(rec.Embedded.Venues) > 0 {
			e.Venue = rec.Embedded.Venues[0].Name
			e.City = rec.Embedded.Venues[0].City.Name
		}
		if e.Category == "" {
			e.Category = p.cfg.Category
		}
		events = append(events, e)
	}
	return events
}

func (p *APIProvider) fromFlat(records []flatEvent) []models.Event {
	events := make([]models.Event, 0, len(records))
	for _, rec := range records {
		date, err := time.Parse("2006-01-02", rec.StartDate)
		if err != nil {
			log.Printf("[providers] %s: skipping %q, bad start date %q", p.cfg.ID, rec.Title, rec.StartDate)
			continue
		}

		e := models.Event{
			Title:             rec.Title,
			Description:       rec.Description,
			Date:              date,
			City:              rec.City,
			Venue:             rec.Venue,
			Category:          rec.Category,
			Subcategory:       rec.Subcategory,
			ExpectedAttendees: rec.ExpectedAttendees,
			Source:            p.cfg.ID,
			SourceID:          rec.ID,
			URL:               rec.URL,
			ImageURL:          rec.ImageURL,
		}
		if rec.EndDate != "" {
			if end, err := time.Parse("2006-01-02", rec.EndDate); err == nil {
				e.EndDate = &end
			}
		}
		if e.Category == "" {
			e.Category = p.cfg.Category
		}
		events = append(events, e)
	}
	return events
}

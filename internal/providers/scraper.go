package providers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kamilvitek/oslavu-engine/internal/models"
	"github.com/kamilvitek/oslavu-engine/internal/normalize"
)

var defaultDateFormats = []string{
	"2006-01-02",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"02.01.2006",
}

// ScraperProvider extracts events from listing pages using the CSS
// selectors configured per source. Scraped text is sanitized before it
// enters the pipeline.
type ScraperProvider struct {
	cfg       SourceConfig
	sanitizer *bluemonday.Policy
}

func NewScraperProvider(cfg SourceConfig) *ScraperProvider {
	return &ScraperProvider{
		cfg:       cfg,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (p *ScraperProvider) Name() string { return p.cfg.ID }

// FetchEvents crawls the seed URLs, following pagination up to MaxPages.
// Events outside the requested date window are dropped at the edge so the
// engine never sees them.
func (p *ScraperProvider) FetchEvents(ctx context.Context, city string, start, end time.Time, category string) ([]models.Event, error) {
	sel := p.cfg.Selectors
	if sel.Container == "" {
		return nil, fmt.Errorf("source %s: no container selector configured", p.cfg.ID)
	}

	c := p.buildCollector()

	var (
		mu       sync.Mutex
		events   []models.Event
		errs     []error
		pages    int
		maxPages = p.cfg.MaxPages
	)
	if maxPages <= 0 {
		maxPages = 1
	}

	c.OnHTML(sel.Container, func(el *colly.HTMLElement) {
		event, ok := p.parseCard(el, city)
		if !ok {
			return
		}
		evStart, evEnd := event.Span()
		if evEnd.Before(start) || evStart.After(end) {
			return
		}
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	if sel.NextPage != "" {
		c.OnHTML(sel.NextPage, func(el *colly.HTMLElement) {
			mu.Lock()
			follow := pages < maxPages-1
			if follow {
				pages++
			}
			mu.Unlock()
			if follow {
				el.Request.Visit(el.Attr("href"))
			}
		})
	}

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", r.Request.URL, err))
		mu.Unlock()
	})

	for _, seed := range p.cfg.Seeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.Visit(seed); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", seed, err))
			mu.Unlock()
		}
	}
	c.Wait()

	if len(events) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("source %s: all seeds failed: %v", p.cfg.ID, errs[0])
	}
	for _, err := range errs {
		log.Printf("[providers] %s partial failure: %v", p.cfg.ID, err)
	}

	log.Printf("[providers] %s scraped %d events in window", p.cfg.ID, len(events))
	return events, nil
}

func (p *ScraperProvider) buildCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(defaultUserAgent),
		colly.MaxBodySize(10*1024*1024),
		colly.AllowURLRevisit(),
	)

	delay := time.Second
	if p.cfg.Fetch.RateLimitRPS > 0 {
		delay = time.Duration(float64(time.Second) / p.cfg.Fetch.RateLimitRPS)
	}
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       delay,
		RandomDelay: delay / 2,
	})

	timeout := 30 * time.Second
	if p.cfg.Fetch.TimeoutSeconds > 0 {
		timeout = time.Duration(p.cfg.Fetch.TimeoutSeconds) * time.Second
	}
	c.SetRequestTimeout(timeout)

	return c
}

// parseCard maps one listing card to an event. Cards without a parseable
// title or date are skipped.
func (p *ScraperProvider) parseCard(el *colly.HTMLElement, city string) (models.Event, bool) {
	sel := p.cfg.Selectors

	title := p.clean(el.DOM.Find(sel.Title).First().Text())
	if title == "" {
		return models.Event{}, false
	}

	dateText := p.clean(el.DOM.Find(sel.Date).First().Text())
	date, ok := parseDate(dateText, sel.DateFormats)
	if !ok {
		log.Printf("[providers] %s: skipping %q, unparseable date %q", p.cfg.ID, title, dateText)
		return models.Event{}, false
	}

	event := models.Event{
		Title:    title,
		Date:     date,
		City:     normalize.City(city),
		Category: p.cfg.Category,
		Source:   p.cfg.ID,
	}

	if sel.Venue != "" {
		event.Venue = p.clean(el.DOM.Find(sel.Venue).First().Text())
	}
	if sel.Description != "" {
		event.Description = p.clean(el.DOM.Find(sel.Description).First().Text())
	}
	if sel.Link != "" {
		attr := sel.LinkAttr
		if attr == "" {
			attr = "href"
		}
		if href, exists := el.DOM.Find(sel.Link).First().Attr(attr); exists {
			event.URL = el.Request.AbsoluteURL(href)
		}
	}
	if sel.Image != "" {
		if src, exists := el.DOM.Find(sel.Image).First().Attr("src"); exists {
			event.ImageURL = el.Request.AbsoluteURL(src)
		}
	}

	// Scraped listings rarely carry a stable ID; the detail URL is the
	// closest thing to a natural key.
	event.SourceID = event.URL
	if event.SourceID == "" {
		event.SourceID = normalize.Name(title) + "|" + date.Format("2006-01-02")
	}

	return event, true
}

func (p *ScraperProvider) clean(s string) string {
	return normalize.Space(p.sanitizer.Sanitize(s))
}

func parseDate(text string, formats []string) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}
	if len(formats) == 0 {
		formats = defaultDateFormats
	}
	for _, layout := range formats {
		if t, err := time.Parse(layout, text); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	// Listing sites often omit the year for upcoming events.
	for _, layout := range []string{"2 Jan", "Jan 2", "2.1"} {
		if t, err := time.Parse(layout, strings.TrimSuffix(text, ".")); err == nil {
			now := time.Now().UTC()
			candidate := time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			if candidate.Before(now.AddDate(0, 0, -7)) {
				candidate = candidate.AddDate(1, 0, 0)
			}
			return candidate, true
		}
	}
	return time.Time{}, false
}

package providers

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// FetchConfig tunes HTTP behavior per source domain.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // Default: 3
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Requests per second, default: 1.0
	AcceptLanguage string  `yaml:"accept_language,omitempty"`
}

// RateLimitedFetcher provides rate limiting, retries, and configurable
// timeouts per domain. All providers share one instance so a source with
// several seed URLs still respects its domain budget.
type RateLimitedFetcher struct {
	clients       map[string]*http.Client
	limiters      map[string]*time.Ticker
	configs       map[string]FetchConfig
	defaultConfig FetchConfig
	mu            sync.RWMutex
}

// NewRateLimitedFetcher creates a fetcher with default config applied to
// domains that have no override.
func NewRateLimitedFetcher(defaultConfig FetchConfig) *RateLimitedFetcher {
	if defaultConfig.TimeoutSeconds == 0 {
		defaultConfig.TimeoutSeconds = 30
	}
	if defaultConfig.MaxRetries == 0 {
		defaultConfig.MaxRetries = 3
	}
	if defaultConfig.RateLimitRPS == 0 {
		defaultConfig.RateLimitRPS = 1.0
	}
	if defaultConfig.AcceptLanguage == "" {
		defaultConfig.AcceptLanguage = "en-US,en;q=0.5"
	}

	return &RateLimitedFetcher{
		clients:       make(map[string]*http.Client),
		limiters:      make(map[string]*time.Ticker),
		configs:       make(map[string]FetchConfig),
		defaultConfig: defaultConfig,
	}
}

// Configure installs a per-domain override. Must be called before the first
// fetch against that domain.
func (f *RateLimitedFetcher) Configure(domain string, config FetchConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[domain] = config
}

func getDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}

func (f *RateLimitedFetcher) getClient(domain string, config FetchConfig) *http.Client {
	f.mu.RLock()
	client, exists := f.clients[domain]
	f.mu.RUnlock()
	if exists {
		return client
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock
	if client, exists := f.clients[domain]; exists {
		return client
	}

	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	f.clients[domain] = client

	interval := time.Duration(float64(time.Second) / config.RateLimitRPS)
	if interval <= 0 {
		interval = time.Second
	}
	f.limiters[domain] = time.NewTicker(interval)

	return client
}

// shouldRetry determines if an error or status code should trigger a retry.
func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return true
		}
		return false
	}

	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Do executes a request with rate limiting and exponential-backoff retries.
// The response body is fully read and returned so retries never leak
// half-consumed connections.
func (f *RateLimitedFetcher) Do(ctx context.Context, req *http.Request) ([]byte, error) {
	domain := req.URL.Host

	config := f.defaultConfig
	f.mu.RLock()
	if domainConfig, exists := f.configs[domain]; exists {
		config = domainConfig
	}
	f.mu.RUnlock()

	client := f.getClient(domain, config)

	f.mu.RLock()
	limiter, exists := f.limiters[domain]
	f.mu.RUnlock()
	if exists {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-limiter.C:
		}
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", config.AcceptLanguage)
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 0.5s, 1s, 2s + jitter
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if shouldRetry(err, 0) {
				continue
			}
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			if readErr != nil {
				return nil, fmt.Errorf("reading response body: %w", readErr)
			}
			return body, nil
		}

		if shouldRetry(nil, resp.StatusCode) {
			lastErr = fmt.Errorf("status code %d", resp.StatusCode)
			continue
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Get is a convenience wrapper around Do for plain GET fetches.
func (f *RateLimitedFetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if _, err := getDomain(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return f.Do(ctx, req)
}

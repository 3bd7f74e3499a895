// Package geocode provides best-effort free-text address resolution via the
// Nominatim search API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/signalfield/signalfield/internal/geo"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the public Nominatim instance.
const DefaultEndpoint = "https://nominatim.openstreetmap.org"

// Config holds Nominatim client configuration.
type Config struct {
	Endpoint  string
	UserAgent string
	// RateLimit caps outbound requests per second. The public instance's
	// usage policy allows at most one request per second.
	RateLimit float64
	Timeout   time.Duration
}

// Client is a rate-limited Nominatim client. All lookups are best-effort:
// callers receive a nil point on any failure and must degrade gracefully.
type Client struct {
	endpoint  string
	userAgent string
	limiter   *rate.Limiter
	http      *http.Client
}

// NewClient creates a Nominatim client.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "signalfield/1.0"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	slog.Info("geocoder configured",
		"endpoint", cfg.Endpoint,
		"rate_limit", cfg.RateLimit,
	)

	return &Client{
		endpoint:  cfg.Endpoint,
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		http:      &http.Client{Timeout: cfg.Timeout},
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves a free-text address to coordinates. A nil point with a
// nil error means no match was found.
func (c *Client) Geocode(ctx context.Context, address string) (*geo.Point, error) {
	if address == "" {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.endpoint + "/search?format=json&limit=1&q=" + url.QueryEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse geocode lat: %w", err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse geocode lon: %w", err)
	}

	return &geo.Point{Lat: lat, Lng: lng}, nil
}

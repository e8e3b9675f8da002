// Package geocode looks up addresses against a Nominatim compatible search
// endpoint.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"

	"github.com/lifedrop/lifedrop-api/pkg/logger"
)

const DefaultBaseURL = "https://nominatim.openstreetmap.org"

var ErrNoResults = errors.New("no geocoding results")

type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Limit     int
	CacheTTL  time.Duration
}

// Place is one search hit.
type Place struct {
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	City        string  `json:"city,omitempty"`
	Country     string  `json:"country,omitempty"`
}

type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Country string `json:"country"`
	} `json:"address"`
}

type Client struct {
	http  *resty.Client
	cache *cache.Cache
	limit int
	log   *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "lifedrop-api"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 6
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent)

	return &Client{
		http:  client,
		cache: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		limit: cfg.Limit,
		log:   log.Named("geocode"),
	}
}

// Search returns up to the configured number of places for query.
func (c *Client) Search(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Place{}, nil
	}
	key := strings.ToLower(query)
	if hit, ok := c.cache.Get(key); ok {
		return hit.([]Place), nil
	}

	var results []nominatimResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format":         "json",
			"q":              query,
			"limit":          strconv.Itoa(c.limit),
			"addressdetails": "1",
		}).
		SetResult(&results).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode())
	}

	places := make([]Place, 0, len(results))
	for _, r := range results {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil {
			c.log.Debug("skipping result with bad coordinates", "display_name", r.DisplayName)
			continue
		}
		places = append(places, Place{
			DisplayName: r.DisplayName,
			Lat:         lat,
			Lon:         lon,
			City:        firstNonEmpty(r.Address.City, r.Address.Town, r.Address.Village),
			Country:     r.Address.Country,
		})
	}
	c.cache.SetDefault(key, places)
	return places, nil
}

// Geocode returns the best match for query.
func (c *Client) Geocode(ctx context.Context, query string) (*Place, error) {
	places, err := c.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, ErrNoResults
	}
	p := places[0]
	return &p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

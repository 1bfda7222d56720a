// Package geocode implements the external geocoding capability against
// Nominatim. One call per unresolved stop name, country-restricted, at most
// one best match.
package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/nearest-stops/stopsync/internal/model"
	"github.com/nearest-stops/stopsync/internal/resilience"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Client is a Nominatim search client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	countryCode string
	countryName string
}

// New creates a Nominatim client. userAgent is required by the Nominatim
// usage policy; countryCode restricts results (e.g. "pl").
func New(userAgent, countryCode, countryName string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 25 * time.Second},
		baseURL:     defaultBaseURL,
		userAgent:   userAgent,
		countryCode: countryCode,
		countryName: countryName,
	}
}

// WithBaseURL overrides the API endpoint, used in tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

// Search geocodes a free-form stop name. Returns nil without error when the
// service has no match. Transient failures are retried once within the
// client's budget before surfacing.
func (c *Client) Search(ctx context.Context, name string) (*model.LatLon, error) {
	query := name
	if c.countryName != "" {
		query = name + ", " + c.countryName
	}
	u := c.baseURL + "/search?" + url.Values{
		"q":              {query},
		"format":         {"json"},
		"limit":          {"1"},
		"addressdetails": {"0"},
		"countrycodes":   {c.countryCode},
	}.Encode()

	return resilience.Do(ctx, resilience.RetryConfig{
		MaxAttempts: 2,
		OnRetry:     resilience.RetryLogger("nominatim", "search"),
	}, func(ctx context.Context) (*model.LatLon, error) {
		return c.search(ctx, u)
	})
}

func (c *Client) search(ctx context.Context, u string) (*model.LatLon, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: execute request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("geocode: status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, eris.Wrap(err, "geocode: decode response")
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse lat")
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse lon")
	}

	return &model.LatLon{Lat: lat, Lon: lon}, nil
}

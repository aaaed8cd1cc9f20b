// Package nominatim provides a minimal client for the OpenStreetMap
// Nominatim search and reverse geocoding endpoints.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// DefaultUserAgent identifies the client as the usage policy requires.
const DefaultUserAgent = "MarketMap/1.0 (geocoding script)"

// Client resolves free-text queries to coordinates and coordinates to
// addresses. Pacing is the caller's job: Nominatim allows one request per
// second.
type Client interface {
	// Search returns the best match for query, or nil when nothing matched.
	Search(ctx context.Context, query string) (*Place, error)

	// Reverse returns the address at lat/lng, or nil when nothing matched.
	Reverse(ctx context.Context, lat, lng float64, zoom int) (*Address, error)
}

// Place is a forward geocoding match.
type Place struct {
	Lat         float64
	Lng         float64
	DisplayName string
}

// Address is the address block of a reverse geocoding match.
type Address struct {
	State   string `json:"state"`
	County  string `json:"county"`
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
	Country string `json:"country"`
}

// StatusError is returned for a non-200 response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nominatim: unexpected status %d", e.Code)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithCountryCodes restricts search results to the given ISO codes
// (comma separated).
func WithCountryCodes(codes string) Option {
	return func(c *client) { c.countryCodes = codes }
}

type client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	countryCodes string
}

// NewClient creates a Nominatim client.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      DefaultBaseURL,
		userAgent:    DefaultUserAgent,
		countryCodes: "nl",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (c *client) Search(ctx context.Context, query string) (*Place, error) {
	params := url.Values{
		"format": {"json"},
		"q":      {query},
		"limit":  {"1"},
	}
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}

	var results []searchResult
	if err := c.get(ctx, "/search", params, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "nominatim: parse lat %q", results[0].Lat)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "nominatim: parse lon %q", results[0].Lon)
	}
	return &Place{Lat: lat, Lng: lng, DisplayName: results[0].DisplayName}, nil
}

type reverseResult struct {
	Error   string   `json:"error"`
	Address *Address `json:"address"`
}

func (c *client) Reverse(ctx context.Context, lat, lng float64, zoom int) (*Address, error) {
	params := url.Values{
		"format": {"json"},
		"lat":    {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(lng, 'f', -1, 64)},
		"zoom":   {strconv.Itoa(zoom)},
	}

	var res reverseResult
	if err := c.get(ctx, "/reverse", params, &res); err != nil {
		return nil, err
	}
	if res.Error != "" || res.Address == nil {
		return nil, nil
	}
	return res.Address, nil
}

func (c *client) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "nominatim: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "nominatim: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "nominatim: read body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "nominatim: parse response")
	}
	return nil
}

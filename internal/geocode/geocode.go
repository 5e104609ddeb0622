// Package geocode resolves a street address to coordinates through a
// Nominatim-compatible search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"soapstock/backend/internal/logger"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "soapstock/1.0"
	defaultTimeout   = 5 * time.Second
	bodyReadLimit    = 1024

	// Algiers.
	DefaultLatitude  = 36.7538
	DefaultLongitude = 3.0588
)

// Result is a resolved position. Fallback is set when the default
// coordinates were returned instead of a lookup result.
type Result struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Fallback  bool    `json:"fallback"`
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) Result
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(ua); trimmed != "" {
			c.userAgent = trimmed
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithDefault overrides the coordinates returned when a lookup fails.
func WithDefault(lat, lng float64) Option {
	return func(c *Client) {
		c.fallback = Result{Latitude: lat, Longitude: lng, Fallback: true}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	timeout    time.Duration
	fallback   Result
	log        *logger.Logger
}

var _ Geocoder = (*Client)(nil)

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		timeout:    defaultTimeout,
		fallback:   Result{Latitude: DefaultLatitude, Longitude: DefaultLongitude, Fallback: true},
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Geocode never fails: any error, empty result or timeout yields the
// default coordinates.
func (c *Client) Geocode(ctx context.Context, address string) Result {
	if strings.TrimSpace(address) == "" {
		return c.fallback
	}
	res, err := c.lookup(ctx, address)
	if err != nil {
		c.log.Warn(c.log.WithField(ctx, "address", address), "geocoding unavailable, using default coordinates", err)
		return c.fallback
	}
	return res
}

func (c *Client) lookup(ctx context.Context, address string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("format", "json")
	query.Set("limit", "1")
	query.Set("q", address)
	endpoint := fmt.Sprintf("%s/search?%s", strings.TrimRight(c.baseURL, "/"), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("execute geocode request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, bodyReadLimit))
		return Result{}, fmt.Errorf("geocode status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var places []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return Result{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(places) == 0 {
		return Result{}, fmt.Errorf("no match for %q", address)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Result{}, fmt.Errorf("parse latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Result{}, fmt.Errorf("parse longitude: %w", err)
	}
	return Result{Latitude: lat, Longitude: lng}, nil
}

package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the markets API base URL.
	DefaultBaseURL = "https://markets-api.edgefeed.io"

	defaultRateLimit = 10.0 // requests per second
	defaultBurst     = 5
)

// ErrMarketNotFound is returned when the API has no market for an id.
var ErrMarketNotFound = errors.New("market not found")

// APIError is a non-200 response from the markets API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("markets api error %d: %s", e.StatusCode, e.Body)
}

// Client is a markets API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a new markets API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListActive returns up to limit tradeable market ids, most liquid first.
// Listings carrying the same normalized question are deduplicated.
func (c *Client) ListActive(ctx context.Context, limit int) ([]string, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	if limit > 0 {
		// Over-fetch so dedup still fills the limit.
		params.Set("limit", strconv.Itoa(limit*2))
	}

	var markets []apiMarket
	if err := c.get(ctx, "/markets", params, &markets); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(markets))
	ids := make([]string, 0, limit)
	for i := range markets {
		m := &markets[i]
		if !m.IsTradeable() {
			continue
		}
		key := NormalizeQuestion(m.Question)
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		ids = append(ids, m.ID)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// Fetch returns snapshots for the given market ids. A market the API does
// not know is reported as an error, never silently dropped.
func (c *Client) Fetch(ctx context.Context, ids []string) ([]Snapshot, error) {
	snaps := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := c.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch market %s: %w", id, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Get returns the snapshot for a single market.
func (c *Client) Get(ctx context.Context, id string) (Snapshot, error) {
	var m apiMarket
	if err := c.get(ctx, "/markets/"+id, nil, &m); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
		}
		return Snapshot{}, err
	}
	if m.ID == "" {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	snap, err := m.snapshot(time.Now())
	if err != nil {
		return Snapshot{}, fmt.Errorf("market %s: %w", id, err)
	}
	return snap, nil
}

// get performs a GET request with rate limiting.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edgefeed/edgefeed/pkg/marketdata"
)

const defaultTimeout = 30 * time.Second

// defaultConfidence is assumed when the model service omits confidence.
var defaultConfidence = decimal.NewFromFloat(0.7)

// Client calls a remote model service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a model service client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type predictRequest struct {
	MarketID string  `json:"market_id"`
	Question string  `json:"question"`
	YesPrice float64 `json:"yes_price"`
	EndDate  string  `json:"end_date"`
}

type predictResponse struct {
	Probability float64  `json:"probability"`
	Confidence  *float64 `json:"confidence"`
}

// Predict asks the model service for a probability estimate.
func (c *Client) Predict(ctx context.Context, snap marketdata.Snapshot) (Estimate, error) {
	reqBody, err := json.Marshal(predictRequest{
		MarketID: snap.ID,
		Question: snap.Question,
		YesPrice: snap.YesPrice.InexactFloat64(),
		EndDate:  snap.EndDate.Format(time.RFC3339),
	})
	if err != nil {
		return Estimate{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/predict", bytes.NewReader(reqBody))
	if err != nil {
		return Estimate{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Estimate{}, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Estimate{}, fmt.Errorf("model service error %d: %s", resp.StatusCode, string(body))
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Estimate{}, fmt.Errorf("decode response: %w", err)
	}

	return buildEstimate(snap.ID, pr)
}

// buildEstimate validates and normalizes a raw model response.
func buildEstimate(marketID string, pr predictResponse) (Estimate, error) {
	prob := pr.Probability

	// Some model deployments report percentages.
	if prob > 1 && prob <= 100 {
		prob = prob / 100.0
	}
	if prob < 0 || prob > 1 {
		return Estimate{}, fmt.Errorf("probability out of range: %f", pr.Probability)
	}

	conf := defaultConfidence
	if pr.Confidence != nil {
		v := *pr.Confidence
		if v > 0 && v <= 1 {
			conf = decimal.NewFromFloat(v)
		}
	}

	return Estimate{
		MarketID:    marketID,
		Probability: decimal.NewFromFloat(prob),
		Confidence:  conf,
		GeneratedAt: time.Now(),
	}, nil
}

// Package semantic is a client for the vector similarity index that serves
// semantic search over the emission factor catalog.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is returned when the index cannot be reached or answers
// with a non-success status.
var ErrUnavailable = errors.New("semantic index unavailable")

// Hit is one search result.
type Hit struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
}

// Item is a document sent for indexing.
type Item struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	ID       string         `json:"id"`
	Content  string         `json:"content"`
}

// Health is the index service status.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	IndexesLoaded int    `json:"indexes_loaded"`
}

type searchRequest struct {
	Filters  map[string]any `json:"filters,omitempty"`
	Query    string         `json:"query"`
	Index    string         `json:"index"`
	TopK     int            `json:"top_k"`
	MinScore float64        `json:"min_score"`
}

type similarRequest struct {
	Index       string `json:"index"`
	ItemID      string `json:"item_id"`
	TopK        int    `json:"top_k"`
	ExcludeSelf bool   `json:"exclude_self"`
}

type searchResponse struct {
	Query   string `json:"query"`
	Index   string `json:"index"`
	Results []Hit  `json:"results"`
	Total   int    `json:"total"`
}

type batchRequest struct {
	Index string `json:"index"`
	Items []Item `json:"items"`
}

// Config configures the client.
type Config struct {
	BaseURL  string
	APIKey   string
	Index    string
	Timeout  time.Duration
	MinScore float64
}

// Client talks to the index service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	index      string
	minScore   float64
}

// NewClient creates a client. An empty BaseURL yields an error: callers
// should not construct a client when semantic search is not configured.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("semantic index URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	index := cfg.Index
	if index == "" {
		index = "emission_factors"
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		index:    index,
		minScore: cfg.MinScore,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Search runs a similarity query restricted by filters.
func (c *Client) Search(ctx context.Context, query string, filters map[string]any, topK int) ([]Hit, error) {
	var resp searchResponse
	err := c.post(ctx, "/search", searchRequest{
		Query:    query,
		Index:    c.index,
		TopK:     topK,
		Filters:  filters,
		MinScore: c.minScore,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Similar returns the items nearest to itemID, excluding itemID itself.
func (c *Client) Similar(ctx context.Context, itemID string, topK int) ([]Hit, error) {
	var resp searchResponse
	err := c.post(ctx, "/similar", similarRequest{
		Index:       c.index,
		ItemID:      itemID,
		TopK:        topK,
		ExcludeSelf: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// IndexBatch adds or replaces items in the index.
func (c *Client) IndexBatch(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	return c.post(ctx, "/index/batch", batchRequest{Index: c.index, Items: items}, nil)
}

// Health queries the service status.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return Health{}, fmt.Errorf("failed to create request: %w", err)
	}
	var h Health
	if err := c.do(req, &h); err != nil {
		return Health{}, err
	}
	return h, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(body), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

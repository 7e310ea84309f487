package facts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/seonho-lim/aide/pkg/logging"
)

// SearchResult is one item returned by the web search provider.
type SearchResult struct {
	Title   string
	Snippet string
}

// SearchProvider executes a web search and returns ranked results.
type SearchProvider interface {
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
}

// BraveSearchClient is an HTTP client for the Brave web search API.
type BraveSearchClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// SearchOption is a functional option for configuring the client.
type SearchOption func(*BraveSearchClient)

// WithSearchHTTPClient sets a custom HTTP client.
func WithSearchHTTPClient(client *http.Client) SearchOption {
	return func(c *BraveSearchClient) {
		c.httpClient = client
	}
}

// WithSearchBaseURL overrides the API base URL (used in tests).
func WithSearchBaseURL(baseURL string) SearchOption {
	return func(c *BraveSearchClient) {
		c.baseURL = baseURL
	}
}

// WithSearchLogger sets a custom logger.
func WithSearchLogger(logger *logging.Logger) SearchOption {
	return func(c *BraveSearchClient) {
		c.logger = logger
	}
}

// NewBraveSearchClient creates a Brave web search client.
func NewBraveSearchClient(apiKey string, opts ...SearchOption) *BraveSearchClient {
	c := &BraveSearchClient{
		apiKey:  apiKey,
		baseURL: "https://api.search.brave.com/res/v1",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type braveSearchPayload struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search executes a web search and returns up to count results.
func (c *BraveSearchClient) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	if c.apiKey == "" {
		return nil, errors.New("facts: brave search api key is not configured")
	}
	if count <= 0 {
		count = 5
	}

	endpoint := fmt.Sprintf("%s/web/search?q=%s&count=%d", c.baseURL, url.QueryEscape(query), count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("facts: create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("facts: search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("facts: search failed with status %d: %s", resp.StatusCode, string(body))
	}

	var payload braveSearchPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("facts: decode search response: %w", err)
	}

	results := make([]SearchResult, 0, len(payload.Web.Results))
	for _, item := range payload.Web.Results {
		results = append(results, SearchResult{
			Title:   item.Title,
			Snippet: item.Description,
		})
		if len(results) >= count {
			break
		}
	}

	c.logger.Debug("search completed", "query", query, "results", len(results))
	return results, nil
}

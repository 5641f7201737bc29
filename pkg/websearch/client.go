// Package websearch ingests web search results into the memory graph.
//
// A SearXNG metasearch instance provides the results; the retriever
// turns each hit into a long-term memory node, embedding the whole
// batch in one call before storing it.
package websearch

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
)

const (
	// DefaultMaxResults bounds how many hits a search returns when the
	// caller does not say.
	DefaultMaxResults = 20

	// DefaultTimeout is the HTTP timeout for search requests.
	DefaultTimeout = 10 * time.Second
)

// Result is one search hit from the SearXNG API.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// searchResponse is the portion of the SearXNG JSON response we read.
type searchResponse struct {
	Results []Result `json:"results"`
}

// ClientConfig holds configuration for the SearXNG client.
type ClientConfig struct {
	// BaseURL is the SearXNG instance URL (e.g. "http://searxng:8080").
	BaseURL string

	// MaxResults caps results per search. Defaults to DefaultMaxResults.
	MaxResults int

	// Engines restricts the search to the named engines. Optional.
	Engines []string

	// Language is the search language code (e.g. "en"). Optional.
	Language string

	// TimeRange restricts result age: "day", "week", "month" or "year".
	// Optional.
	TimeRange string

	// SafeSearch is the SearXNG safe-search level (1 moderate, 2 strict).
	// Zero leaves the instance default in place.
	SafeSearch int

	// Timeout overrides the HTTP timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Client queries a SearXNG metasearch instance.
type Client struct {
	baseURL    string
	maxResults int
	engines    string
	language   string
	timeRange  string
	safeSearch int
	httpClient *http.Client
}

// NewClient creates a SearXNG search client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxResults: maxResults,
		engines:    strings.Join(cfg.Engines, ","),
		language:   cfg.Language,
		timeRange:  cfg.TimeRange,
		safeSearch: cfg.SafeSearch,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Search runs one query and returns up to maxResults hits. A maxResults
// of zero falls back to the client's configured cap.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrSearch)
	}
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", "general")
	if c.engines != "" {
		params.Set("engines", c.engines)
	}
	if c.language != "" {
		params.Set("language", c.language)
	}
	if c.timeRange != "" {
		params.Set("time_range", c.timeRange)
	}
	if c.safeSearch > 0 {
		params.Set("safesearch", strconv.Itoa(c.safeSearch))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrSearch, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", ErrSearch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: searxng returned status %d: %s", ErrSearch, resp.StatusCode, string(body))
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrSearch, err)
	}

	results := searchResp.Results
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

// SearxNGClient queries a SearxNG metasearch instance through its JSON API.
type SearxNGClient struct {
	baseURL    string
	maxResults atomic.Int64
	httpClient *http.Client
}

func NewSearxNGClient(baseURL string, httpClient *http.Client) *SearxNGClient {
	c := &SearxNGClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
	c.maxResults.Store(DefaultMaxResults)
	return c
}

// SetMaxResults changes the result cap for later searches. Non-positive
// values are ignored.
func (c *SearxNGClient) SetMaxResults(n int) {
	if n > 0 {
		c.maxResults.Store(int64(n))
	}
}

func (c *SearxNGClient) Name() string {
	return ProviderSearxNG
}

type searxngResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

func (c *SearxNGClient) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create searxng request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read searxng response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: ProviderSearxNG, Code: resp.StatusCode}
	}

	var result searxngResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal searxng response: %w", err)
	}

	limit := int(c.maxResults.Load())
	results := make([]domain.SearchResult, 0, len(result.Results))
	for _, r := range result.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, domain.SearchResult{URL: r.URL, Title: r.Title, Snippet: r.Content})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

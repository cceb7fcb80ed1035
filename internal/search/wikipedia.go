package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

const (
	wikipediaAPIURL  = "https://en.wikipedia.org/w/api.php"
	wikipediaPageURL = "https://en.wikipedia.org/wiki/"
)

// WikipediaClient queries the MediaWiki full-text search API.
type WikipediaClient struct {
	apiURL     string
	pageURL    string
	maxResults atomic.Int64
	httpClient *http.Client
}

func NewWikipediaClient(httpClient *http.Client) *WikipediaClient {
	c := &WikipediaClient{
		apiURL:     wikipediaAPIURL,
		pageURL:    wikipediaPageURL,
		httpClient: httpClient,
	}
	c.maxResults.Store(DefaultMaxResults)
	return c
}

// SetMaxResults changes the result cap for later searches. Non-positive
// values are ignored.
func (c *WikipediaClient) SetMaxResults(n int) {
	if n > 0 {
		c.maxResults.Store(int64(n))
	}
}

func (c *WikipediaClient) Name() string {
	return ProviderWikipedia
}

type wikipediaResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
	Error *struct {
		Info string `json:"info"`
	} `json:"error,omitempty"`
}

func (c *WikipediaClient) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("format", "json")
	params.Set("utf8", "1")
	params.Set("srsearch", query)
	params.Set("srlimit", strconv.FormatInt(c.maxResults.Load(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create wikipedia request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read wikipedia response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: ProviderWikipedia, Code: resp.StatusCode}
	}

	var result wikipediaResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal wikipedia response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("wikipedia API error: %s", result.Error.Info)
	}

	results := make([]domain.SearchResult, 0, len(result.Query.Search))
	for _, hit := range result.Query.Search {
		page := strings.ReplaceAll(hit.Title, " ", "_")
		results = append(results, domain.SearchResult{
			URL:     c.pageURL + url.PathEscape(page),
			Title:   hit.Title,
			Snippet: stripTags(hit.Snippet),
		})
	}
	return results, nil
}

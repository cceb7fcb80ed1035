// Package search implements the external search collaborators used to
// verify claims.
package search

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

// Provider constants
const (
	ProviderWikipedia = "wikipedia"
	ProviderSearxNG   = "searxng"
)

const (
	DefaultMaxResults = 5
	userAgent         = "ranger-verifier/1.0"
	maxBodyBytes      = 2 << 20
)

// StatusError is returned when a collaborator answers with a non-200 status.
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Provider, e.Code)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.NewReplacer("&quot;", `"`, "&amp;", "&", "&#039;", "'", "&lt;", "<", "&gt;", ">").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NewClients builds the named collaborators. Unknown names are an error.
// Per-call deadlines come from the caller's context, so the shared HTTP
// client only carries a generous backstop timeout. A maxResults of zero
// keeps DefaultMaxResults.
func NewClients(names []string, searxngURL string, maxResults int) ([]domain.SearchClient, error) {
	httpClient := &http.Client{Timeout: time.Minute}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	var clients []domain.SearchClient
	for _, name := range names {
		switch name {
		case ProviderWikipedia:
			c := NewWikipediaClient(httpClient)
			c.SetMaxResults(maxResults)
			clients = append(clients, c)
		case ProviderSearxNG:
			if searxngURL == "" {
				return nil, fmt.Errorf("SEARXNG_URL is required for the searxng provider")
			}
			c := NewSearxNGClient(searxngURL, httpClient)
			c.SetMaxResults(maxResults)
			clients = append(clients, c)
		default:
			return nil, fmt.Errorf("unknown search provider: %s (valid options: wikipedia, searxng)", name)
		}
	}
	return clients, nil
}

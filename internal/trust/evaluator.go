// Package trust scores the credibility of source domains.
package trust

import (
	"net"
	"net/url"
	"strings"
)

const (
	DefaultNeutralScore = 0.5
	keywordPenalty      = 0.3
	maxDomainLength     = 253
)

type Config struct {
	Trusted            map[string]float64
	Distrusted         map[string]float64
	SuspiciousKeywords []string
	NeutralScore       float64
}

// Evaluator is immutable after construction and safe for concurrent use.
type Evaluator struct {
	trusted    map[string]float64
	distrusted map[string]float64
	keywords   []string
	neutral    float64
}

func NewEvaluator(cfg Config) *Evaluator {
	e := &Evaluator{
		trusted:    normalizeTable(cfg.Trusted),
		distrusted: normalizeTable(cfg.Distrusted),
		neutral:    cfg.NeutralScore,
	}
	if e.neutral <= 0 || e.neutral > 1 {
		e.neutral = DefaultNeutralScore
	}
	for _, k := range cfg.SuspiciousKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			e.keywords = append(e.keywords, k)
		}
	}
	return e
}

func normalizeTable(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for d, s := range in {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			out[d] = clamp(s)
		}
	}
	return out
}

// Score returns the credibility of a domain in [0,1]. Unknown or malformed
// domains get the neutral score; it never fails.
func (e *Evaluator) Score(domain string) float64 {
	host, ok := normalizeHost(domain)
	if !ok {
		return e.neutral
	}

	score := e.neutral
	labels := strings.Split(host, ".")
	// Longest registered suffix wins; distrusted beats trusted at equal length.
	for i := range labels {
		suffix := strings.Join(labels[i:], ".")
		if s, found := e.distrusted[suffix]; found {
			score = s
			break
		}
		if s, found := e.trusted[suffix]; found {
			score = s
			break
		}
	}

	// Keywords match whole words of the host, so "ads" does not hit
	// downloads.nasa.gov.
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(host, func(r rune) bool { return r == '.' || r == '-' || r == '_' }) {
		words[w] = true
	}
	for _, k := range e.keywords {
		if words[k] {
			score -= keywordPenalty
		}
	}
	return clamp(score)
}

// ScoreURL scores the host of a URL.
func (e *Evaluator) ScoreURL(rawURL string) float64 {
	return e.Score(Host(rawURL))
}

// Host extracts the lower-cased host name from a URL, or "" when there is none.
func Host(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if u.Host == "" {
		// Scheme-less input such as "en.wikipedia.org/wiki/Paris".
		u, err = url.Parse("//" + rawURL)
		if err != nil {
			return ""
		}
	}
	return strings.ToLower(u.Hostname())
}

func normalizeHost(domain string) (string, bool) {
	d := strings.ToLower(strings.TrimSpace(domain))
	if h, _, err := net.SplitHostPort(d); err == nil {
		d = h
	}
	d = strings.TrimSuffix(d, ".")
	d = strings.TrimPrefix(d, "www.")
	if d == "" || len(d) > maxDomainLength || !strings.Contains(d, ".") {
		return "", false
	}
	if strings.ContainsAny(d, " /\\@:?#") || strings.Contains(d, "..") {
		return "", false
	}
	return d, true
}

func clamp(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

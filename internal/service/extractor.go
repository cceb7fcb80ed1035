package service

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

const (
	minClaimLength   = 10
	baseConfidence   = 0.5
	patternBonus     = 0.2
	longClaimBonus   = 0.1
	mediumClaimBonus = 0.05
)

var (
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	mentionPattern  = regexp.MustCompile(`<[@#][!&]?\d+>`)
	symbolPattern   = regexp.MustCompile(`[^\p{L}\p{N}\s.,!?'%-]`)
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)
	copularPattern  = regexp.MustCompile(`(?i)^(.+?)\s+(?:is|are|was|were)\s+(.+)$`)
	questionLead    = regexp.MustCompile(`(?i)^(?:what|who|whom|whose|why|how|when|where|which)\b`)
)

// claimRule pulls a statement out of a sentence. The statement is the first
// capture group, or the whole sentence when the rule has none.
type claimRule struct {
	name      string
	pattern   *regexp.Regexp
	questions bool
}

var defaultClaimRules = []claimRule{
	{name: "fun_fact", pattern: regexp.MustCompile(`(?i)^(?:did you know(?: that)?|fun fact:?|interesting(?:ly)?,?|(?:i )?learned that)\s+(.+)$`), questions: true},
	{name: "attribution", pattern: regexp.MustCompile(`(?i)^(?:according to [^,]+,|sources say(?: that)?|research shows(?: that)?|studies show(?: that)?)\s*(.+)$`)},
	{name: "fact_is", pattern: regexp.MustCompile(`(?i)^(?:the )?(?:fact|truth|reality) is(?: that)?\s+(.+)$`)},
	{name: "belief", pattern: regexp.MustCompile(`(?i)^(?:i )?(?:think|believe|know) (?:that )?(.+)$`)},
	{name: "copular", pattern: copularPattern},
}

// RuleExtractor finds claims with pattern heuristics. It never fails.
type RuleExtractor struct {
	rules []claimRule
}

func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{rules: defaultClaimRules}
}

func (e *RuleExtractor) Extract(ctx context.Context, text string) ([]domain.ClaimCandidate, error) {
	cleaned := cleanUtterance(text)

	var out []domain.ClaimCandidate
	seen := make(map[string]bool)
	for _, sentence := range sentencePattern.FindAllString(cleaned, -1) {
		sentence = strings.TrimSpace(sentence)
		question := strings.HasSuffix(sentence, "?") || questionLead.MatchString(sentence)
		body := strings.TrimRight(sentence, ".!? ")

		c, ok := e.match(body, question)
		if !ok {
			continue
		}
		key := NormalizeKey(c.Statement)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out, nil
}

func (e *RuleExtractor) match(sentence string, question bool) (domain.ClaimCandidate, bool) {
	for _, rule := range e.rules {
		if question && !rule.questions {
			continue
		}
		m := rule.pattern.FindStringSubmatch(sentence)
		if m == nil {
			continue
		}
		statement := sentence
		if rule.name != "copular" {
			statement = m[1]
		}
		statement = strings.TrimSpace(strings.Trim(statement, ",;: "))
		if len(statement) < minClaimLength {
			continue
		}
		return domain.ClaimCandidate{
			Statement:  capitalize(statement),
			Subject:    subjectOf(statement),
			Heuristic:  rule.name,
			Confidence: claimConfidence(statement),
		}, true
	}
	return domain.ClaimCandidate{}, false
}

func cleanUtterance(text string) string {
	text = urlPattern.ReplaceAllString(text, " ")
	text = mentionPattern.ReplaceAllString(text, " ")
	text = symbolPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

func claimConfidence(statement string) float64 {
	c := baseConfidence + patternBonus
	switch n := len(statement); {
	case n > 50:
		c += longClaimBonus
	case n > 20:
		c += mediumClaimBonus
	}
	if c > 1 {
		c = 1
	}
	return c
}

func subjectOf(statement string) string {
	m := copularPattern.FindStringSubmatch(statement)
	if m == nil {
		return ""
	}
	return NormalizeKey(m[1])
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

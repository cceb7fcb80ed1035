package service

import (
	"strings"
	"unicode"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/embedding"
)

// Similarity scores how alike two knowledge items are, in [0,1].
type Similarity func(a, b *domain.KnowledgeItem) float64

var articles = map[string]bool{"a": true, "an": true, "the": true}

// NormalizeKey derives the identity of a claim: lower-cased, punctuation
// stripped, articles dropped and whitespace collapsed.
func NormalizeKey(statement string) string {
	return strings.Join(keyTokens(statement), " ")
}

func keyTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !articles[f] {
			out = append(out, f)
		}
	}
	return out
}

// DefaultSimilarity uses embedding cosine when both items carry a vector of
// the same size and token Jaccard over their keys otherwise.
func DefaultSimilarity(a, b *domain.KnowledgeItem) float64 {
	if len(a.Embedding) > 0 && len(a.Embedding) == len(b.Embedding) {
		c := embedding.Cosine(a.Embedding, b.Embedding)
		if c < 0 {
			return 0
		}
		return c
	}
	return Jaccard(a.Key, b.Key)
}

// Jaccard is the token-set overlap of two normalized keys.
func Jaccard(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}

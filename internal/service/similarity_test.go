package service

import (
	"testing"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Paris is the capital of France.", "paris is capital of france"},
		{"  PARIS   is THE capital of   France!!", "paris is capital of france"},
		{"An apple a day", "apple day"},
		{"Water boils at 100°C", "water boils at 100 c"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.in), tt.in)
	}
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, Jaccard("a b c", "c b a"), 1e-9)
	assert.InDelta(t, 0.5, Jaccard("a b c", "b c d"), 1e-9)
	assert.Equal(t, 0.0, Jaccard("", ""))
	assert.Equal(t, 0.0, Jaccard("a", "b"))
}

func TestDefaultSimilarity(t *testing.T) {
	a := &domain.KnowledgeItem{Key: "paris is capital of france"}
	b := &domain.KnowledgeItem{Key: "paris is capital city of france"}
	assert.InDelta(t, 5.0/6.0, DefaultSimilarity(a, b), 1e-9)

	a.Embedding = []float32{1, 0}
	b.Embedding = []float32{1, 0}
	assert.InDelta(t, 1.0, DefaultSimilarity(a, b), 1e-9)

	b.Embedding = []float32{-1, 0}
	assert.Equal(t, 0.0, DefaultSimilarity(a, b))

	b.Embedding = nil
	assert.InDelta(t, 5.0/6.0, DefaultSimilarity(a, b), 1e-9)
}

package service

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleExtractor_Extract(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		statement string
		heuristic string
	}{
		{"copular", "Paris is the capital of France.", "Paris is the capital of France", "copular"},
		{"fun fact question", "Did you know that honey never spoils?", "Honey never spoils", "fun_fact"},
		{"attribution", "According to NASA, the Moon is drifting away from Earth", "The Moon is drifting away from Earth", "attribution"},
		{"fact is", "The fact is that water boils at 100 degrees", "Water boils at 100 degrees", "fact_is"},
		{"strips mention and url", "<@123456> check https://example.com Mount Everest is the tallest mountain", "Check Mount Everest is the tallest mountain", "copular"},
	}

	e := NewRuleExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Extract(context.Background(), tt.text)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.statement, got[0].Statement)
			assert.Equal(t, tt.heuristic, got[0].Heuristic)
		})
	}
}

func TestRuleExtractor_SkipsNoise(t *testing.T) {
	e := NewRuleExtractor()
	for _, text := range []string{
		"What is the capital of France?",
		"Is it raining?",
		"lol",
		"It is hot",
		"",
	} {
		got, err := e.Extract(context.Background(), text)
		require.NoError(t, err)
		assert.Empty(t, got, text)
	}
}

func TestRuleExtractor_MultipleSentencesDeduped(t *testing.T) {
	e := NewRuleExtractor()
	got, err := e.Extract(context.Background(), "Paris is the capital of France. Paris is the capital of France! Berlin is the capital of Germany.")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "paris", got[0].Subject)
	assert.Equal(t, "berlin", got[1].Subject)
}

func TestClaimConfidence(t *testing.T) {
	assert.InDelta(t, 0.7, claimConfidence("short claim"), 1e-9)
	assert.InDelta(t, 0.75, claimConfidence("Paris is the capital of France"), 1e-9)
	assert.InDelta(t, 0.8, claimConfidence("The mitochondria is the powerhouse of the cell in eukaryotes"), 1e-9)
}

func TestTopicSalience(t *testing.T) {
	s := NewTopicSalience()
	c := domain.ClaimCandidate{Statement: "Paris is the capital of France", Confidence: 0.7}

	assert.InDelta(t, 0.6, s.Score(c, nil), 1e-9)
	assert.InDelta(t, 0.6, s.Score(c, &domain.ConversationContext{}), 1e-9)

	onTopic := &domain.ConversationContext{ActiveTopics: []string{"politics"}}
	assert.InDelta(t, 0.85, s.Score(c, onTopic), 1e-9)

	second := &domain.ConversationContext{ActiveTopics: []string{"food", "politics"}}
	assert.InDelta(t, 0.8, s.Score(c, second), 1e-9)

	offTopic := &domain.ConversationContext{ActiveTopics: []string{"sports"}}
	assert.InDelta(t, 0.35, s.Score(c, offTopic), 1e-9)
}

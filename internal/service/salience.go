package service

import (
	"strings"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

// SalienceScorer rates how worth learning a candidate is in the current
// conversation, in [0,1].
type SalienceScorer interface {
	Score(c domain.ClaimCandidate, conv *domain.ConversationContext) float64
}

// TopicSalience mixes the candidate's own confidence with how well it fits
// the active topics. Earlier topics in the list weigh more. With no active
// topics the fit is neutral.
type TopicSalience struct {
	Keywords map[string][]string
}

func NewTopicSalience() TopicSalience {
	return TopicSalience{Keywords: topicKeywords}
}

func (s TopicSalience) Score(c domain.ClaimCandidate, conv *domain.ConversationContext) float64 {
	return 0.5*c.Confidence + 0.5*s.topicFit(c.Statement, conv)
}

func (s TopicSalience) topicFit(statement string, conv *domain.ConversationContext) float64 {
	if conv == nil || len(conv.ActiveTopics) == 0 {
		return 0.5
	}
	words := make(map[string]bool)
	for _, w := range keyTokens(statement) {
		words[w] = true
	}
	for i, topic := range conv.ActiveTopics {
		if words[strings.ToLower(topic)] || anyWord(words, s.Keywords[topic]) {
			fit := 1 - 0.1*float64(i)
			if fit < 0.5 {
				fit = 0.5
			}
			return fit
		}
	}
	return 0
}

func anyWord(words map[string]bool, keywords []string) bool {
	for _, k := range keywords {
		if words[k] {
			return true
		}
	}
	return false
}

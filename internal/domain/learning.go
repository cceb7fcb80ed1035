package domain

import "context"

// ClaimCandidate is a statement pulled out of an utterance that may be worth
// learning.
type ClaimCandidate struct {
	Statement  string  `json:"statement"`
	Subject    string  `json:"subject,omitempty"`
	Heuristic  string  `json:"heuristic"`
	Confidence float64 `json:"confidence"`
}

type ClaimExtractor interface {
	Extract(ctx context.Context, text string) ([]ClaimCandidate, error)
}

type LearnResult struct {
	Items    []KnowledgeItem `json:"items"`
	Failures []Failure       `json:"failures,omitempty"`
}

// UtteranceResult is what the core hands back to the transport layer for
// one utterance.
type UtteranceResult struct {
	Items    []KnowledgeItem      `json:"items"`
	Failures []Failure            `json:"failures,omitempty"`
	Context  *ConversationContext `json:"context"`
}

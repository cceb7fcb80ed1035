package llm

import (
	"fmt"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

// Provider constants
const (
	ProviderRules  = "rules"
	ProviderOpenAI = "openai"
)

// NewExtractor returns the claim extractor for a provider. The rules
// extractor is built by the caller and passed in.
func NewExtractor(provider, apiKey string, rules domain.ClaimExtractor) (domain.ClaimExtractor, error) {
	switch provider {
	case ProviderRules:
		return rules, nil

	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIExtractor(apiKey), nil

	default:
		return nil, fmt.Errorf("unknown extractor provider: %s (valid options: rules, openai)", provider)
	}
}

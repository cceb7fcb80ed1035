// Package llm extracts claims with a hosted chat model.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	chatModel     = "gpt-4o-mini"
	maxClaims     = 10
)

// OpenAIExtractor asks a chat-completion model for the claims in a message.
type OpenAIExtractor struct {
	apiKey     string
	chatURL    string
	httpClient *http.Client
}

func NewOpenAIExtractor(apiKey string) *OpenAIExtractor {
	return &OpenAIExtractor{
		apiKey:     apiKey,
		chatURL:    openAIChatURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// chat types for OpenAI API
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type extractedClaim struct {
	Statement  string  `json:"statement"`
	Subject    string  `json:"subject"`
	Confidence float64 `json:"confidence"`
}

func (c *OpenAIExtractor) complete(ctx context.Context, messages []chatMessage, temp float32) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       chatModel,
		Messages:    messages,
		Temperature: temp,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w: %w", err, domain.ErrTransientExternal)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w: %w", err, domain.ErrTransientExternal)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", fmt.Errorf("chat API returned status %d: %w", resp.StatusCode, domain.ErrTransientExternal)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("chat API error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *OpenAIExtractor) Extract(ctx context.Context, text string) ([]domain.ClaimCandidate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(extractClaimsPrompt, text)},
	}

	result, err := c.complete(ctx, messages, 0.1)
	if err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}

	// Strip markdown fences if present
	result = strings.TrimPrefix(result, "```json")
	result = strings.TrimPrefix(result, "```")
	result = strings.TrimSuffix(result, "```")
	result = strings.TrimSpace(result)

	var extracted []extractedClaim
	if err := json.Unmarshal([]byte(result), &extracted); err != nil {
		return nil, fmt.Errorf("parse extraction result: %w (raw: %s)", err, result)
	}

	out := make([]domain.ClaimCandidate, 0, len(extracted))
	seen := make(map[string]bool)
	for _, e := range extracted {
		statement := strings.TrimRight(strings.TrimSpace(e.Statement), ".!")
		if statement == "" || seen[strings.ToLower(statement)] {
			continue
		}
		seen[strings.ToLower(statement)] = true

		conf := e.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.5
		}
		out = append(out, domain.ClaimCandidate{
			Statement:  statement,
			Subject:    strings.ToLower(strings.TrimSpace(e.Subject)),
			Heuristic:  "llm",
			Confidence: conf,
		})
		if len(out) == maxClaims {
			break
		}
	}
	return out, nil
}

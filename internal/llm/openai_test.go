package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "Paris")

		w.WriteHeader(status)
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestExtractor(url string) *OpenAIExtractor {
	e := NewOpenAIExtractor("test-key")
	e.chatURL = url
	return e
}

func TestOpenAIExtractor_Extract(t *testing.T) {
	content := "```json\n" + `[
		{"statement":"Paris is the capital of France.","subject":"Paris","confidence":0.9},
		{"statement":"paris is the capital of france","subject":"paris","confidence":0.8},
		{"statement":"The Seine flows through Paris","subject":"seine","confidence":7},
		{"statement":"  ","confidence":0.5}
	]` + "\n```"
	srv := chatServer(t, http.StatusOK, content)

	claims, err := newTestExtractor(srv.URL).Extract(context.Background(), "Paris is the capital of France, on the Seine")
	require.NoError(t, err)
	require.Len(t, claims, 2)

	assert.Equal(t, domain.ClaimCandidate{Statement: "Paris is the capital of France", Subject: "paris", Heuristic: "llm", Confidence: 0.9}, claims[0])
	assert.Equal(t, 0.5, claims[1].Confidence, "out of range confidence falls back")
}

func TestOpenAIExtractor_Errors(t *testing.T) {
	srv := chatServer(t, http.StatusServiceUnavailable, "[]")
	_, err := newTestExtractor(srv.URL).Extract(context.Background(), "Paris")
	assert.ErrorIs(t, err, domain.ErrTransientExternal)

	srv = chatServer(t, http.StatusOK, "not json")
	_, err = newTestExtractor(srv.URL).Extract(context.Background(), "Paris")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parse extraction result"))

	claims, err := newTestExtractor("http://127.0.0.1:0").Extract(context.Background(), "   ")
	assert.NoError(t, err)
	assert.Empty(t, claims)
}

type rulesStub struct{}

func (rulesStub) Extract(context.Context, string) ([]domain.ClaimCandidate, error) { return nil, nil }

func TestNewExtractor(t *testing.T) {
	e, err := NewExtractor(ProviderRules, "", rulesStub{})
	require.NoError(t, err)
	assert.Equal(t, rulesStub{}, e)

	_, err = NewExtractor(ProviderOpenAI, "", rulesStub{})
	assert.Error(t, err)

	e, err = NewExtractor(ProviderOpenAI, "k", rulesStub{})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIExtractor{}, e)

	_, err = NewExtractor("anthropic", "k", rulesStub{})
	assert.Error(t, err)
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const parisClaim = "Paris is the capital of France"

func testVerifierConfig() VerifierConfig {
	return VerifierConfig{
		Threshold:   0.7,
		Timeout:     time.Second,
		QueueDepth:  4,
		Concurrency: 4,
		MaxRetries:  2,
	}
}

func newTestVerifier(clients []domain.SearchClient, cfg VerifierConfig) *VerifierService {
	v := NewVerifierService(clients, fixedTrust{"wikipedia.org": 0.9, "britannica.com": 0.9, "blog.example": 0.3}, cfg, testLogger())
	v.initialBackoff = time.Millisecond
	return v
}

func parisClients() []domain.SearchClient {
	return []domain.SearchClient{
		&stubSearchClient{name: "wikipedia", results: []domain.SearchResult{
			{URL: "https://en.wikipedia.org/wiki/Paris", Title: "Paris", Snippet: "Paris is the capital and largest city of France"},
		}},
		&stubSearchClient{name: "searxng", results: []domain.SearchResult{
			{URL: "https://www.britannica.com/place/Paris", Title: "Paris | capital of France", Snippet: "Paris is the capital of France and its largest city"},
		}},
	}
}

func TestVerifierService_ConfirmsCorroboratedClaim(t *testing.T) {
	v := newTestVerifier(parisClients(), testVerifierConfig())

	verdict, err := v.Verify(context.Background(), parisClaim)
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictConfirmed, verdict.Verdict)
	assert.Len(t, verdict.Evidence, 2)
	assert.InDelta(t, 0.9, verdict.Agreement, 1e-9)
	assert.InDelta(t, 0.9, verdict.AggregateTrust, 1e-9)
	assert.Equal(t, 2, verdict.Responders)
	assert.Equal(t, 0, verdict.MissingVotes)
}

func TestVerifierService_Contradicted(t *testing.T) {
	clients := []domain.SearchClient{
		&stubSearchClient{name: "wikipedia", results: []domain.SearchResult{
			{URL: "https://en.wikipedia.org/wiki/Myth", Snippet: "It is a myth that the Great Wall is visible from space"},
		}},
	}
	v := newTestVerifier(clients, testVerifierConfig())

	verdict, err := v.Verify(context.Background(), "The Great Wall is visible from space")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictContradicted, verdict.Verdict)
	assert.InDelta(t, 0.9, verdict.Disagreement, 1e-9)
}

func TestVerifierService_InconclusiveWhenIrrelevant(t *testing.T) {
	clients := []domain.SearchClient{
		&stubSearchClient{name: "wikipedia", results: []domain.SearchResult{
			{URL: "https://en.wikipedia.org/wiki/Banana", Snippet: "Bananas are an elongated edible fruit"},
		}},
	}
	v := newTestVerifier(clients, testVerifierConfig())

	verdict, err := v.Verify(context.Background(), parisClaim)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictInconclusive, verdict.Verdict)
	assert.Empty(t, verdict.Evidence)
}

func TestVerifierService_LowTrustStaysInconclusive(t *testing.T) {
	clients := []domain.SearchClient{
		&stubSearchClient{name: "wikipedia", results: []domain.SearchResult{
			{URL: "https://blog.example/paris", Snippet: "Paris is the capital of France"},
		}},
	}
	v := newTestVerifier(clients, testVerifierConfig())

	verdict, err := v.Verify(context.Background(), parisClaim)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictInconclusive, verdict.Verdict)
	assert.Len(t, verdict.Evidence, 1)
}

func TestVerifierService_ZeroRespondersIsTransient(t *testing.T) {
	a := &stubSearchClient{name: "wikipedia", err: errBoom}
	b := &stubSearchClient{name: "searxng", err: errBoom}
	v := newTestVerifier([]domain.SearchClient{a, b}, testVerifierConfig())

	verdict, err := v.Verify(context.Background(), parisClaim)
	assert.Nil(t, verdict)
	assert.ErrorIs(t, err, ErrNoResponders)
	assert.ErrorIs(t, err, domain.ErrTransientExternal)
	assert.Equal(t, domain.KindTransientExternal, domain.Kind(err))

	assert.Equal(t, int32(2), a.calls.Load(), "retried up to the bound")
	assert.Equal(t, int32(2), b.calls.Load())
}

func TestVerifierService_NoClients(t *testing.T) {
	v := newTestVerifier(nil, testVerifierConfig())
	_, err := v.Verify(context.Background(), parisClaim)
	assert.ErrorIs(t, err, ErrNoResponders)
}

type permanentErr struct{}

func (permanentErr) Error() string   { return "bad request" }
func (permanentErr) Retryable() bool { return false }

func TestVerifierService_NonRetryableNotRetried(t *testing.T) {
	a := &stubSearchClient{name: "wikipedia", err: permanentErr{}}
	v := newTestVerifier([]domain.SearchClient{a}, testVerifierConfig())

	_, err := v.Verify(context.Background(), parisClaim)
	assert.Error(t, err)
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestVerifierService_FailureIsMissingVote(t *testing.T) {
	failing := new(MockSearchClient)
	failing.On("Name").Return("searxng")
	failing.On("Search", mock.Anything, parisClaim).Return(nil, errBoom)

	clients := []domain.SearchClient{parisClients()[0], failing}
	v := newTestVerifier(clients, testVerifierConfig())

	verdict, err := v.Verify(context.Background(), parisClaim)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictConfirmed, verdict.Verdict)
	assert.Equal(t, 1, verdict.Responders)
	assert.Equal(t, 1, verdict.MissingVotes)
	failing.AssertNumberOfCalls(t, "Search", 2)
}

func TestVerifierService_TimeoutIsMissingVote(t *testing.T) {
	hung := &stubSearchClient{name: "searxng", release: make(chan struct{})}
	clients := []domain.SearchClient{parisClients()[0], hung}

	cfg := testVerifierConfig()
	cfg.Timeout = 30 * time.Millisecond
	v := newTestVerifier(clients, cfg)

	verdict, err := v.Verify(context.Background(), parisClaim)
	require.NoError(t, err)
	assert.Equal(t, 1, verdict.MissingVotes)
	assert.Equal(t, int32(1), hung.calls.Load(), "a timed-out call is not retried")
}

func TestVerifierService_Backpressure(t *testing.T) {
	slow := &stubSearchClient{name: "wikipedia", release: make(chan struct{}), results: []domain.SearchResult{}}
	cfg := testVerifierConfig()
	cfg.QueueDepth = 1
	v := newTestVerifier([]domain.SearchClient{slow}, cfg)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = v.Verify(context.Background(), parisClaim)
	}()

	require.Eventually(t, func() bool { return slow.calls.Load() == 1 }, time.Second, time.Millisecond)

	_, err := v.Verify(context.Background(), parisClaim)
	assert.ErrorIs(t, err, ErrBackpressure)
	assert.True(t, errors.Is(err, domain.ErrTransientExternal))

	close(slow.release)
	wg.Wait()

	verdict, err := v.Verify(context.Background(), parisClaim)
	require.NoError(t, err, "queue drains once the slow call finishes")
	assert.Equal(t, domain.VerdictInconclusive, verdict.Verdict)
}

func TestVerifierService_MinInterval(t *testing.T) {
	cfg := testVerifierConfig()
	cfg.MinInterval = 60 * time.Millisecond
	v := newTestVerifier(parisClients()[:1], cfg)

	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := v.Verify(context.Background(), parisClaim)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestVerifierService_EmptyClaim(t *testing.T) {
	v := newTestVerifier(parisClients(), testVerifierConfig())
	_, err := v.Verify(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLexicalStance(t *testing.T) {
	tests := []struct {
		name    string
		claim   string
		snippet string
		want    int
	}{
		{name: "restates the claim", claim: parisClaim, snippet: "Paris is the capital of France.", want: 1},
		{name: "denies the claim", claim: parisClaim, snippet: "Paris is not the capital of France", want: -1},
		{name: "contraction", claim: parisClaim, snippet: "Paris isn't the capital of France", want: -1},
		{name: "unrelated", claim: parisClaim, snippet: "Lyon has a large old town", want: 0},
		{name: "both negated", claim: "Pluto is not a planet", snippet: "Pluto is no longer considered a planet", want: 1},
		{name: "not only", claim: parisClaim, snippet: "Paris is not only the capital of France but also its largest city", want: 1},
		{name: "negation about something else", claim: parisClaim, snippet: "Paris is the capital of France. The Louvre is not open on Tuesdays.", want: 1},
	}

	s := LexicalStance{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Stance(tt.claim, tt.snippet)
			switch {
			case tt.want > 0:
				assert.Greater(t, got, 0.0)
			case tt.want < 0:
				assert.Less(t, got, 0.0)
			default:
				assert.Equal(t, 0.0, got)
			}
		})
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Harshitk-cp/ranger/internal/config"
	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const ownerToken = "owner-secret"

type testServer struct {
	app  *App
	root string
}

func newTestServer(t *testing.T, opts ...func(*config.Settings)) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := store.OpenSQLite(filepath.Join(dir, "ranger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	root := filepath.Join(dir, "tuning")
	require.NoError(t, os.MkdirAll(root, 0o755))
	_, err = config.LoadTuning(filepath.Join(root, "tuning.yaml"))
	require.NoError(t, err)

	settings := &config.Settings{
		LearningEnabled:       true,
		VerificationThreshold: 0.8,
		LearningRate:          0.1,
		RiskCeiling:           0.6,
		SimilarityThreshold:   0.85,
		MinSalience:           0.4,
		ModifiableRoot:        root,
		TuningFile:            "tuning.yaml",
		ConsolidationInterval: time.Hour,
		ImprovementInterval:   time.Hour,
		MetricsWindow:         time.Hour,
		VerifierTimeout:       time.Second,
		VerifierQueueDepth:    4,
		VerifierConcurrency:   2,
		VerifierMaxRetries:    1,
		OwnerToken:            ownerToken,
		RateLimitRPS:          100,
		RateLimitBurst:        1000,
		Policy:                config.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(settings)
	}

	app, err := NewApp(settings, Deps{
		Knowledge: store.NewSQLiteKnowledgeStore(db),
		Backups:   store.NewSQLiteBackupStore(db),
		Proposals: store.NewSQLiteProposalStore(db),
	}, zap.NewNop())
	require.NoError(t, err)
	return &testServer{app: app, root: root}
}

func (s *testServer) do(t *testing.T, method, path string, body any, owner bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner {
		req.Header.Set("Authorization", "Bearer "+ownerToken)
	}
	rec := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "dev", body["version"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestUtteranceThenQuery(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/utterances", domain.Utterance{
		Text:      "Did you know that the Eiffel Tower was finished in 1889?",
		ChannelID: "general",
		UserID:    "u1",
	}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[domain.UtteranceResult](t, rec)
	require.Len(t, result.Items, 1)
	assert.Equal(t, domain.StatusUnverified, result.Items[0].VerificationStatus)
	require.NotNil(t, result.Context)
	assert.Equal(t, "general", result.Context.ChannelID)

	rec = s.do(t, http.MethodGet, "/v1/knowledge?q=eiffel+tower&limit=5", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode[queryResponse](t, rec)
	assert.Equal(t, 1, q.Count)

	rec = s.do(t, http.MethodGet, "/v1/knowledge/stats", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[domain.KnowledgeStats](t, rec)
	assert.Equal(t, 1, stats.Total)

	rec = s.do(t, http.MethodGet, "/v1/knowledge?limit=0&q=eiffel", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type queryResponse struct {
	Items []domain.KnowledgeItem `json:"items"`
	Count int                    `json:"count"`
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		owner  bool
		want   int
		kind   domain.FailureKind
	}{
		{name: "empty utterance", method: http.MethodPost, path: "/v1/utterances", body: domain.Utterance{Text: " ", ChannelID: "c"}, want: http.StatusUnprocessableEntity, kind: domain.KindValidation},
		{name: "feedback out of range", method: http.MethodPost, path: "/v1/feedback", body: map[string]float64{"score": 2}, want: http.StatusUnprocessableEntity, kind: domain.KindValidation},
		{name: "improvement disabled", method: http.MethodPost, path: "/v1/admin/improve", owner: true, want: http.StatusUnprocessableEntity, kind: domain.KindValidation},
		{name: "bad status filter", method: http.MethodGet, path: "/v1/admin/proposals?status=bogus", owner: true, want: http.StatusUnprocessableEntity, kind: domain.KindValidation},
		{name: "unknown proposal", method: http.MethodPost, path: "/v1/admin/proposals/" + uuid.NewString() + "/apply", owner: true, want: http.StatusNotFound},
		{name: "backup outside root", method: http.MethodPost, path: "/v1/admin/backups", body: map[string]string{"target": "../etc/passwd"}, owner: true, want: http.StatusUnprocessableEntity, kind: domain.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body, tt.owner)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.kind != "" {
				body := decode[map[string]string](t, rec)
				assert.Equal(t, string(tt.kind), body["kind"])
			}
		})
	}
}

func TestOwnerRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/v1/admin/proposals", "/v1/admin/backups", "/v1/admin/knowledge/export"} {
		rec := s.do(t, http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := s.do(t, http.MethodGet, "/v1/admin/proposals", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"proposals":[],"count":0}`, rec.Body.String())
}

func TestOwnerRoutesDisabledWithoutToken(t *testing.T) {
	s := newTestServer(t, func(c *config.Settings) { c.OwnerToken = "" })

	rec := s.do(t, http.MethodGet, "/v1/admin/proposals", nil, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestConversationRoutes(t *testing.T) {
	s := newTestServer(t)

	for _, text := range []string{"Who won the election?", "I am so happy with the new government"} {
		rec := s.do(t, http.MethodPost, "/v1/utterances", domain.Utterance{Text: text, ChannelID: "general", UserID: "u1"}, false)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodGet, "/v1/conversations/general", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	conv := decode[domain.ConversationContext](t, rec)
	assert.Equal(t, "general", conv.ChannelID)
	assert.Equal(t, []string{"politics"}, conv.ActiveTopics)
	assert.Len(t, conv.LastNUtterances, 2)

	rec = s.do(t, http.MethodGet, "/v1/users/u1/patterns", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patterns := decode[domain.UserPatterns](t, rec)
	assert.Equal(t, 2, patterns.MessageCount)
	assert.InDelta(t, 0.5, patterns.QuestionRatio, 1e-9)
	require.NotEmpty(t, patterns.PreferredTopics)
	assert.Equal(t, "politics", patterns.PreferredTopics[0].Label)

	rec = s.do(t, http.MethodGet, "/v1/conversations", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"channels":1,"users":1}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/v1/conversations/elsewhere", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/v1/users/nobody/patterns", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackupAdmin(t *testing.T) {
	s := newTestServer(t)
	original, err := os.ReadFile(filepath.Join(s.root, "tuning.yaml"))
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/v1/admin/backups", map[string]string{"target": "tuning.yaml"}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Backup](t, rec)
	assert.Equal(t, "tuning.yaml", created.Target)

	require.NoError(t, os.WriteFile(filepath.Join(s.root, "tuning.yaml"), []byte("search_max_results: 1\n"), 0o644))

	rec = s.do(t, http.MethodGet, "/v1/admin/backups?target=tuning.yaml", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = s.do(t, http.MethodPost, "/v1/admin/backups/"+created.ID.String()+"/restore", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	restored, err := os.ReadFile(filepath.Join(s.root, "tuning.yaml"))
	require.NoError(t, err)
	assert.Equal(t, string(original), string(restored))

	rec = s.do(t, http.MethodPost, "/v1/admin/backups/prune", map[string]string{"older_than": "soon"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPost, "/v1/admin/backups/prune", map[string]string{"older_than": "0s"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pruned":0}`, rec.Body.String())
}

func TestKnowledgeExportImport(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/v1/utterances", domain.Utterance{
		Text:      "Did you know that the Eiffel Tower was finished in 1889?",
		ChannelID: "general",
	}, false)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/admin/knowledge/export", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	export := decode[domain.KnowledgeExport](t, rec)
	require.Equal(t, 1, export.TotalItems)

	rec = s.do(t, http.MethodPost, "/v1/admin/knowledge/import", export, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"imported":0,"skipped":1}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/v1/admin/knowledge/consolidate", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[domain.ConsolidationResult](t, rec)
	assert.Equal(t, 0, result.Merged)

	rec = s.do(t, http.MethodPost, "/v1/admin/knowledge/prune", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pruned":0}`, rec.Body.String())
}

func TestMetricsEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/health", nil, false)

	rec := s.do(t, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 2, body["request_count"], "the metrics request counts itself")
	assert.Contains(t, body, "performance")

	rec = s.do(t, http.MethodGet, "/metrics/prometheus", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ranger_http_requests_total")
}

func TestMetricsReportsPerformance(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/feedback", map[string]float64{"score": 0.25}, false)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Performance domain.Metrics `json:"performance"`
	}](t, rec)
	assert.InDelta(t, 0.25, body.Performance.Satisfaction, 1e-9)
	assert.Equal(t, 1, body.Performance.Samples(domain.EventUserFeedback))
}

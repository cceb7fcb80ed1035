package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSalience float64

func (f fixedSalience) Score(domain.ClaimCandidate, *domain.ConversationContext) float64 {
	return float64(f)
}

type cappedSearchClient struct {
	stubSearchClient
	max int
}

func (c *cappedSearchClient) SetMaxResults(n int) { c.max = n }

func TestLiveTuning_AppliedProposalChangesLearning(t *testing.T) {
	f := newImprovementFixture(t, ImprovementConfig{Enabled: true, AutoApply: true})
	learning, _ := newTestLearning(newMockKnowledgeStore(), &fakeVerifier{}, testLearningConfig())
	learning.SetSalienceScorer(fixedSalience(0.45))
	live := NewLiveTuning("tuning.yaml", learning, nil, testLogger())
	f.svc.modifier.OnWrite(live.HandleWrite)

	ctx := context.Background()
	result, err := learning.Learn(ctx, parisClaim, nil)
	require.NoError(t, err)
	assert.Len(t, result.Items, 1, "0.45 clears the starting floor of 0.4")

	recordN(t, f.monitor, domain.EventUserFeedback, 0.2, 5)
	report, err := f.svc.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, report.Applied, 1)
	assert.InDelta(t, 0.5, learning.MinSalience(), 1e-9)

	result, err = learning.Learn(ctx, parisClaim, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Items, "the raised floor applies without a restart")

	_, err = f.svc.Rollback(ctx, report.Applied[0], "")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, learning.MinSalience(), 1e-9)

	result, err = learning.Learn(ctx, parisClaim, nil)
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
}

func TestLiveTuning_HandleWrite(t *testing.T) {
	client := &cappedSearchClient{stubSearchClient: stubSearchClient{name: "wiki"}}
	verifier := newTestVerifier([]domain.SearchClient{client}, testVerifierConfig())
	learning, _ := newTestLearning(newMockKnowledgeStore(), &fakeVerifier{}, testLearningConfig())
	live := NewLiveTuning("./conf/tuning.yaml", learning, verifier, testLogger())

	tests := []struct {
		name        string
		target      string
		content     string
		timeout     time.Duration
		concurrency int
		maxResults  int
		minSalience float64
	}{
		{
			name:        "other target is ignored",
			target:      "conf/other.yaml",
			content:     "verifier_timeout_seconds: 20\n",
			timeout:     time.Second,
			concurrency: 4,
			minSalience: 0.4,
		},
		{
			name:        "tuning file is applied",
			target:      "conf/tuning.yaml",
			content:     "search_max_results: 7\nverifier_timeout_seconds: 20\nmin_salience: 0.6\nverifier_concurrency: 2\n",
			timeout:     20 * time.Second,
			concurrency: 2,
			maxResults:  7,
			minSalience: 0.6,
		},
		{
			name:        "unparsable content keeps current values",
			target:      "conf/tuning.yaml",
			content:     "search_max_results: [\n",
			timeout:     20 * time.Second,
			concurrency: 2,
			maxResults:  7,
			minSalience: 0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live.HandleWrite(tt.target, []byte(tt.content))
			assert.Equal(t, tt.timeout, verifier.Timeout())
			assert.Equal(t, tt.concurrency, verifier.Concurrency())
			assert.Equal(t, tt.maxResults, client.max)
			assert.InDelta(t, tt.minSalience, learning.MinSalience(), 1e-9)
		})
	}
}

func TestModifierService_RestoreBackupNotifies(t *testing.T) {
	m, _, root := newTestModifier(t)
	writeTarget(t, root, "tuning.yaml", tuningYAML)

	var got []string
	m.OnWrite(func(target string, content []byte) {
		got = append(got, target+"="+string(content))
	})

	diff := patch.Make(tuningYAML, strings.Replace(tuningYAML, "min_salience: 0.4", "min_salience: 0.5", 1))
	res, err := m.Apply(context.Background(), "tuning.yaml", diff)
	require.NoError(t, err)
	_, err = m.RestoreBackup(context.Background(), res.BackupID)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Contains(t, got[0], "min_salience: 0.5")
	assert.Equal(t, "tuning.yaml="+tuningYAML, got[1])
}

package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/ranger/internal/config"
	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/patch"
	"github.com/Harshitk-cp/ranger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tuningYAML = "search_max_results: 5\nverifier_timeout_seconds: 10\nmin_salience: 0.4\n"

func newTestModifier(t *testing.T) (*ModifierService, *mockBackupStore, string) {
	t.Helper()
	root := t.TempDir()
	policy := config.DefaultPolicy()
	backups := newMockBackupStore()
	m, err := NewModifierService(backups, ModifierConfig{
		Root:           root,
		UnsafePatterns: policy.UnsafePatterns,
		ProtectedPaths: policy.ProtectedPaths,
	}, testLogger())
	require.NoError(t, err)
	return m, backups, root
}

func writeTarget(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readTarget(t *testing.T, root, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(b)
}

func TestModifierService_ApplyThenRollbackIsByteIdentical(t *testing.T) {
	m, backups, root := newTestModifier(t)
	writeTarget(t, root, "tuning.yaml", tuningYAML)

	updated := "search_max_results: 3\nverifier_timeout_seconds: 10\nmin_salience: 0.4\n"
	res, err := m.Apply(context.Background(), "tuning.yaml", patch.Make(tuningYAML, updated))
	require.NoError(t, err)
	assert.Equal(t, "tuning.yaml", res.Target)
	assert.Equal(t, domain.Checksum([]byte(updated)), res.Checksum)
	assert.Equal(t, updated, readTarget(t, root, "tuning.yaml"))
	assert.Equal(t, 1, backups.count())

	b, err := m.Rollback(context.Background(), "tuning.yaml")
	require.NoError(t, err)
	assert.Equal(t, res.BackupID, b.ID)
	assert.Equal(t, tuningYAML, readTarget(t, root, "tuning.yaml"))
}

func TestModifierService_RejectsCredentialFileDeletion(t *testing.T) {
	m, backups, root := newTestModifier(t)
	secret := "api_key: not-a-real-key\n"
	writeTarget(t, root, "credentials.yaml", secret)
	diff := patch.Make(secret, "")

	report, err := m.Validate(context.Background(), "credentials.yaml", diff)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, RuleProtectedPath, report.Violations[0].Rule)

	_, err = m.Apply(context.Background(), "credentials.yaml", diff)
	assert.ErrorIs(t, err, ErrDiffRejected)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, secret, readTarget(t, root, "credentials.yaml"))
	assert.Equal(t, 0, backups.count())
}

func TestModifierService_Validate(t *testing.T) {
	tests := []struct {
		name   string
		target string
		next   string
		diff   string
		rule   string
	}{
		{name: "valid change", target: "tuning.yaml", next: "search_max_results: 4\nverifier_timeout_seconds: 10\nmin_salience: 0.4\n"},
		{name: "outside root", target: "../tuning.yaml", next: "x: 1\n", rule: RuleOutsideRoot},
		{name: "absolute", target: "/etc/passwd", next: "x: 1\n", rule: RuleOutsideRoot},
		{name: "env file", target: "config/.env", next: "x: 1\n", rule: RuleProtectedPath},
		{name: "missing target", target: "absent.yaml", next: "x: 1\n", rule: RuleMissingTarget},
		{name: "malformed diff", target: "tuning.yaml", diff: "not a diff", rule: RuleMalformedDiff},
		{
			name:   "diff drafted against other content",
			target: "tuning.yaml",
			diff: patch.Make(
				"search_max_results: 5\nverifier_timeout_seconds: 15\nmin_salience: 0.4\n",
				"search_max_results: 5\nverifier_timeout_seconds: 20\nmin_salience: 0.4\n"),
			rule: RuleMalformedDiff,
		},
		{name: "deletes target", target: "tuning.yaml", next: "", rule: RuleDeletesTarget},
		{name: "disables checks", target: "tuning.yaml", next: tuningYAML + "validation_checks: false\n", rule: RuleUnsafePattern},
		{name: "adds secret", target: "tuning.yaml", next: tuningYAML + "api_key: \"sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz\"\n", rule: RuleSecret},
		{name: "breaks grammar", target: "tuning.yaml", next: tuningYAML + "broken: [unclosed\n", rule: RuleSyntax},
		{name: "unsupported type", target: "notes.txt", next: "hello\n", rule: RuleSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, root := newTestModifier(t)
			writeTarget(t, root, "tuning.yaml", tuningYAML)
			writeTarget(t, root, "notes.txt", "hi\n")

			diff := tt.diff
			if diff == "" {
				base := tuningYAML
				if tt.target == "notes.txt" {
					base = "hi\n"
				}
				diff = patch.Make(base, tt.next)
			}

			report, err := m.Validate(context.Background(), tt.target, diff)
			require.NoError(t, err)
			if tt.rule == "" {
				assert.True(t, report.Valid, "%+v", report.Violations)
				return
			}
			assert.False(t, report.Valid)
			var rules []string
			for _, v := range report.Violations {
				rules = append(rules, v.Rule)
			}
			assert.Contains(t, rules, tt.rule)
		})
	}
}

func TestModifierService_SymlinkEscapes(t *testing.T) {
	m, backups, root := newTestModifier(t)
	outside := t.TempDir()
	writeTarget(t, outside, "tuning.yaml", tuningYAML)
	writeTarget(t, root, "conf/tuning.yaml", tuningYAML)
	if err := os.Symlink(outside, filepath.Join(root, "linked")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "conf"), filepath.Join(root, "alias")))

	next := strings.Replace(tuningYAML, "search_max_results: 5", "search_max_results: 4", 1)
	diff := patch.Make(tuningYAML, next)

	tests := []struct {
		name   string
		target string
		inside bool
	}{
		{name: "directory link leaving the root", target: "linked/tuning.yaml"},
		{name: "new file under a leaving link", target: "linked/new/tuning.yaml"},
		{name: "directory link within the root", target: "alias/tuning.yaml", inside: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := m.Validate(context.Background(), tt.target, diff)
			require.NoError(t, err)
			if tt.inside {
				assert.True(t, report.Valid, "%+v", report.Violations)
				return
			}
			require.Len(t, report.Violations, 1)
			assert.Equal(t, RuleOutsideRoot, report.Violations[0].Rule)

			_, err = m.Apply(context.Background(), tt.target, diff)
			assert.ErrorIs(t, err, ErrTargetOutsideRoot)
			_, err = m.Read(tt.target)
			assert.ErrorIs(t, err, ErrTargetOutsideRoot)
		})
	}

	assert.Equal(t, tuningYAML, readTarget(t, outside, "tuning.yaml"))
	assert.Equal(t, 0, backups.count())
}

func TestModifierService_StaleDiffLeavesTargetAlone(t *testing.T) {
	m, backups, root := newTestModifier(t)
	writeTarget(t, root, "tuning.yaml", tuningYAML)

	drafted := strings.Replace(tuningYAML, "verifier_timeout_seconds: 10", "verifier_timeout_seconds: 15", 1)
	diff := patch.Make(drafted, strings.Replace(drafted, ": 15", ": 20", 1))

	_, err := m.Apply(context.Background(), "tuning.yaml", diff)
	assert.ErrorIs(t, err, ErrDiffRejected)
	assert.Contains(t, err.Error(), RuleMalformedDiff)
	assert.Equal(t, tuningYAML, readTarget(t, root, "tuning.yaml"))
	assert.Equal(t, 0, backups.count())
}

func TestModifierService_FailedWriteRestoresOriginal(t *testing.T) {
	updated := "search_max_results: 2\nverifier_timeout_seconds: 10\nmin_salience: 0.4\n"

	tests := []struct {
		name  string
		write func(name string, data []byte, perm fs.FileMode) error
	}{
		{
			name: "write error after partial content",
			write: func(name string, data []byte, perm fs.FileMode) error {
				if err := os.WriteFile(name, data[:len(data)/2], perm); err != nil {
					return err
				}
				return errors.New("disk full")
			},
		},
		{
			name: "silent truncation",
			write: func(name string, data []byte, perm fs.FileMode) error {
				return os.WriteFile(name, data[:len(data)/3], perm)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, backups, root := newTestModifier(t)
			writeTarget(t, root, "tuning.yaml", tuningYAML)
			m.writeFile = tt.write

			_, err := m.Apply(context.Background(), "tuning.yaml", patch.Make(tuningYAML, updated))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrStorage)
			assert.Equal(t, tuningYAML, readTarget(t, root, "tuning.yaml"))
			assert.Equal(t, 1, backups.count())
		})
	}
}

func TestModifierService_BackupFailureLeavesTargetUntouched(t *testing.T) {
	m, backups, root := newTestModifier(t)
	writeTarget(t, root, "tuning.yaml", tuningYAML)
	backups.failWrite = errBoom

	_, err := m.Apply(context.Background(), "tuning.yaml", patch.Make(tuningYAML, "search_max_results: 1\nverifier_timeout_seconds: 10\nmin_salience: 0.4\n"))
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, tuningYAML, readTarget(t, root, "tuning.yaml"))
}

func TestModifierService_OneOperationPerTarget(t *testing.T) {
	m, _, root := newTestModifier(t)
	writeTarget(t, root, "tuning.yaml", tuningYAML)

	unlock, err := m.locks.TryLock("tuning.yaml")
	require.NoError(t, err)

	_, err = m.Apply(context.Background(), "./tuning.yaml", patch.Make(tuningYAML, "search_max_results: 9\nverifier_timeout_seconds: 10\nmin_salience: 0.4\n"))
	assert.ErrorIs(t, err, domain.ErrConsistency)
	_, err = m.Rollback(context.Background(), "tuning.yaml")
	assert.ErrorIs(t, err, domain.ErrConsistency)

	unlock()
	_, err = m.Apply(context.Background(), "tuning.yaml", patch.Make(tuningYAML, "search_max_results: 9\nverifier_timeout_seconds: 10\nmin_salience: 0.4\n"))
	assert.NoError(t, err)
}

func TestModifierService_ReadersNeverSeePartialContent(t *testing.T) {
	m, _, root := newTestModifier(t)
	writeTarget(t, root, "tuning.yaml", tuningYAML)
	updated := "search_max_results: 3\nverifier_timeout_seconds: 20\nmin_salience: 0.5\n"
	diff := patch.Make(tuningYAML, updated)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var bad []string
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			b, err := os.ReadFile(filepath.Join(root, "tuning.yaml"))
			if err != nil {
				continue
			}
			if s := string(b); s != tuningYAML && s != updated {
				bad = append(bad, s)
			}
		}
	}()

	for i := 0; i < 20; i++ {
		_, err := m.Apply(context.Background(), "tuning.yaml", diff)
		require.NoError(t, err)
		_, err = m.Rollback(context.Background(), "tuning.yaml")
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.Empty(t, bad)
}

func TestModifierService_BackupAdmin(t *testing.T) {
	m, _, root := newTestModifier(t)
	writeTarget(t, root, "tuning.yaml", tuningYAML)
	writeTarget(t, root, "prompts/style.yaml", "tone: friendly\n")

	first, err := m.CreateBackup(context.Background(), "tuning.yaml")
	require.NoError(t, err)
	_, err = m.CreateBackup(context.Background(), "prompts/style.yaml")
	require.NoError(t, err)

	writeTarget(t, root, "tuning.yaml", "search_max_results: 1\n")
	_, err = m.CreateBackup(context.Background(), "tuning.yaml")
	require.NoError(t, err)

	all, err := m.ListBackups(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	tuning, err := m.ListBackups(context.Background(), "tuning.yaml")
	require.NoError(t, err)
	require.Len(t, tuning, 2)
	assert.Empty(t, tuning[0].Content)

	restored, err := m.RestoreBackup(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, restored.ID)
	assert.Equal(t, tuningYAML, readTarget(t, root, "tuning.yaml"))

	time.Sleep(time.Millisecond)
	pruned, err := m.PruneBackups(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned, "only the older tuning backup goes")

	_, err = m.ListBackups(context.Background(), "../etc")
	assert.ErrorIs(t, err, ErrTargetOutsideRoot)
}

func TestModifierService_RollbackWithoutBackup(t *testing.T) {
	m, _, root := newTestModifier(t)
	writeTarget(t, root, "tuning.yaml", tuningYAML)

	_, err := m.Rollback(context.Background(), "tuning.yaml")
	assert.ErrorIs(t, err, ErrNoBackup)

	_, err = m.Read("missing.yaml")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

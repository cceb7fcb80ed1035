package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/metrics"
	"github.com/Harshitk-cp/ranger/internal/patch"
	"github.com/Harshitk-cp/ranger/internal/store"
	"github.com/Harshitk-cp/ranger/internal/syntax"
	"github.com/google/uuid"
	"github.com/zricethezav/gitleaks/v8/detect"
	"go.uber.org/zap"
)

var (
	ErrTargetOutsideRoot = fmt.Errorf("target is outside the modifiable root: %w", domain.ErrValidation)
	ErrDiffRejected      = fmt.Errorf("diff failed validation: %w", domain.ErrValidation)
	ErrNoBackup          = fmt.Errorf("no backup for target: %w", domain.ErrValidation)
	ErrCorruptBackup     = fmt.Errorf("backup checksum mismatch: %w", domain.ErrStorage)
)

// Violation rules reported by Validate.
const (
	RuleOutsideRoot   = "outside_root"
	RuleProtectedPath = "protected_path"
	RuleMissingTarget = "missing_target"
	RuleMalformedDiff = "malformed_diff"
	RuleDeletesTarget = "deletes_target"
	RuleUnsafePattern = "unsafe_pattern"
	RuleSecret        = "secret"
	RuleSyntax        = "syntax"
)

type ModifierConfig struct {
	Root           string
	UnsafePatterns []string
	// ProtectedPaths are slash globs matched against the target path and
	// its base name.
	ProtectedPaths []string
}

// ModifierService changes files under a single root through validated
// diffs. Every change is backed up first and written atomically, so a
// reader sees either the old or the new content.
type ModifierService struct {
	root      string
	backups   domain.BackupStore
	unsafe    []*regexp.Regexp
	protected []string
	locks     *KeyLock
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	secretsMu sync.Mutex
	secrets   *detect.Detector

	// writeFile replaces a file's content. Tests swap it to inject faults.
	writeFile func(name string, data []byte, perm fs.FileMode) error

	onWrite []func(target string, content []byte)
}

func NewModifierService(backups domain.BackupStore, cfg ModifierConfig, logger *zap.Logger) (*ModifierService, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve modifiable root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}

	unsafe := make([]*regexp.Regexp, 0, len(cfg.UnsafePatterns))
	for _, p := range cfg.UnsafePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("unsafe pattern %q: %w", p, err)
		}
		unsafe = append(unsafe, re)
	}

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("load secret rules: %w", err)
	}

	return &ModifierService{
		root:      root,
		backups:   backups,
		unsafe:    unsafe,
		protected: cfg.ProtectedPaths,
		locks:     NewKeyLock(),
		metrics:   metrics.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		secrets:   detector,
		writeFile: atomicWriteFile,
	}, nil
}

// OnWrite registers fn to run after Apply, Rollback or RestoreBackup
// changes a target. fn runs while the target is still locked. Register
// hooks before the service is shared.
func (s *ModifierService) OnWrite(fn func(target string, content []byte)) {
	s.onWrite = append(s.onWrite, fn)
}

func (s *ModifierService) notify(target string, content []byte) {
	for _, fn := range s.onWrite {
		fn(target, content)
	}
}

// Root returns the absolute modifiable root.
func (s *ModifierService) Root() string {
	return s.root
}

// resolve maps a slash target to its cleaned relative form and its path on
// disk. Absolute targets and targets escaping the root are refused.
func (s *ModifierService) resolve(target string) (string, string, error) {
	target = strings.TrimSpace(filepath.ToSlash(target))
	if target == "" || path.IsAbs(target) || filepath.IsAbs(target) {
		return "", "", ErrTargetOutsideRoot
	}
	clean := path.Clean(target)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", ErrTargetOutsideRoot
	}
	abs := filepath.Join(s.root, filepath.FromSlash(clean))
	if !s.insideRoot(abs) {
		return "", "", ErrTargetOutsideRoot
	}
	return clean, abs, nil
}

// insideRoot follows symlinks along the deepest existing ancestor of abs and
// reports whether the real path stays under the root. Anything it cannot
// resolve is treated as outside.
func (s *ModifierService) insideRoot(abs string) bool {
	root := s.root
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}
	p, rest := abs, ""
	for {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			if rest != "" {
				real = filepath.Join(real, rest)
			}
			rel, err := filepath.Rel(root, real)
			return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return false
		}
		parent := filepath.Dir(p)
		if parent == p {
			return false
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}

func (s *ModifierService) isProtected(clean string) (string, bool) {
	base := path.Base(clean)
	for _, glob := range s.protected {
		if ok, _ := path.Match(glob, clean); ok {
			return glob, true
		}
		if ok, _ := path.Match(glob, base); ok {
			return glob, true
		}
	}
	return "", false
}

// Read returns the current content of a target.
func (s *ModifierService) Read(target string) ([]byte, error) {
	_, abs, err := s.resolve(target)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", target, store.ErrNotFound)
		}
		return nil, storageErr("read target", err)
	}
	return content, nil
}

// draft is a diff resolved against the content currently on disk.
type draft struct {
	clean   string
	abs     string
	perm    fs.FileMode
	current []byte
	next    []byte
}

// Validate runs every static safety check on diff against target. The
// returned error is reserved for I/O failures; rejections are reported as
// violations.
func (s *ModifierService) Validate(ctx context.Context, target, diff string) (*domain.ValidationReport, error) {
	report, _, err := s.validate(ctx, target, diff)
	return report, err
}

func (s *ModifierService) validate(ctx context.Context, target, diff string) (*domain.ValidationReport, *draft, error) {
	report := &domain.ValidationReport{Target: target, Valid: true}

	clean, abs, err := s.resolve(target)
	if err != nil {
		report.Reject(RuleOutsideRoot, err.Error())
		return report, nil, nil
	}
	report.Target = clean

	// Protected files are refused before anything else is looked at.
	if glob, ok := s.isProtected(clean); ok {
		report.Reject(RuleProtectedPath, fmt.Sprintf("%s matches protected pattern %q", clean, glob))
		return report, nil, nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			report.Reject(RuleMissingTarget, clean+" does not exist")
			return report, nil, nil
		}
		return nil, nil, storageErr("stat target", err)
	}
	current, err := os.ReadFile(abs)
	if err != nil {
		return nil, nil, storageErr("read target", err)
	}

	next, err := patch.Apply(string(current), diff)
	if err != nil {
		report.Reject(RuleMalformedDiff, err.Error())
		return report, nil, nil
	}

	if len(strings.TrimSpace(string(current))) > 0 && strings.TrimSpace(next) == "" {
		report.Reject(RuleDeletesTarget, "diff removes the whole content of "+clean)
	}

	added := patch.Inserted(string(current), next)
	for _, re := range s.unsafe {
		if re.MatchString(added) {
			report.Reject(RuleUnsafePattern, "added text matches "+re.String())
		}
	}
	for _, rule := range s.detectSecrets(added) {
		report.Reject(RuleSecret, "added text contains a secret ("+rule+")")
	}

	if err := syntax.Check(ctx, clean, []byte(next)); err != nil {
		report.Reject(RuleSyntax, err.Error())
	}

	return report, &draft{
		clean:   clean,
		abs:     abs,
		perm:    info.Mode().Perm(),
		current: current,
		next:    []byte(next),
	}, nil
}

func (s *ModifierService) detectSecrets(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.secretsMu.Lock()
	findings := s.secrets.DetectString(text)
	s.secretsMu.Unlock()

	rules := make([]string, 0, len(findings))
	for _, f := range findings {
		rules = append(rules, f.RuleID)
	}
	return rules
}

func rejection(report *domain.ValidationReport) error {
	msgs := make([]string, 0, len(report.Violations))
	for _, v := range report.Violations {
		msgs = append(msgs, v.Rule+": "+v.Message)
	}
	return fmt.Errorf("%w: %s", ErrDiffRejected, strings.Join(msgs, "; "))
}

// Apply validates diff, backs up target, and writes the patched content.
// Any failure after the backup restores the original bytes before
// returning. A target already being changed yields ErrConsistency.
func (s *ModifierService) Apply(ctx context.Context, target, diff string) (*domain.ApplyResult, error) {
	clean, _, err := s.resolve(target)
	if err != nil {
		s.record("apply", "rejected")
		return nil, err
	}

	unlock, err := s.locks.TryLock(clean)
	if err != nil {
		s.record("apply", "busy")
		return nil, err
	}
	defer unlock()

	report, d, err := s.validate(ctx, clean, diff)
	if err != nil {
		s.record("apply", "failed")
		return nil, err
	}
	if !report.Valid {
		s.record("apply", "rejected")
		return nil, rejection(report)
	}

	backup := &domain.Backup{
		Target:   d.clean,
		Content:  d.current,
		Checksum: domain.Checksum(d.current),
		Size:     len(d.current),
	}
	if err := s.backups.Create(ctx, backup); err != nil {
		s.record("apply", "failed")
		return nil, storageErr("create backup", err)
	}

	if err := s.commit(ctx, d); err != nil {
		s.record("apply", "failed")
		if rerr := atomicWriteFile(d.abs, d.current, d.perm); rerr != nil {
			s.logger.Error("restore after failed apply",
				zap.String("target", d.clean),
				zap.String("backup_id", backup.ID.String()),
				zap.Error(rerr))
			return nil, errors.Join(err, storageErr("restore backup", rerr))
		}
		s.logger.Warn("apply failed, original restored",
			zap.String("target", d.clean), zap.Error(err))
		return nil, err
	}

	s.record("apply", "ok")
	s.logger.Info("modification applied",
		zap.String("target", d.clean),
		zap.String("backup_id", backup.ID.String()))
	s.notify(d.clean, d.next)

	return &domain.ApplyResult{
		Target:    d.clean,
		BackupID:  backup.ID,
		Checksum:  domain.Checksum(d.next),
		AppliedAt: s.now(),
	}, nil
}

// commit writes the new content and checks what landed on disk.
func (s *ModifierService) commit(ctx context.Context, d *draft) error {
	if err := s.writeFile(d.abs, d.next, d.perm); err != nil {
		return storageErr("write target", err)
	}
	written, err := os.ReadFile(d.abs)
	if err != nil {
		return storageErr("re-read target", err)
	}
	if domain.Checksum(written) != domain.Checksum(d.next) {
		return storageErr("verify target", errors.New("written content differs from patched content"))
	}
	if err := syntax.Check(ctx, d.clean, written); err != nil {
		return fmt.Errorf("%w: %w", ErrDiffRejected, err)
	}
	return nil
}

// Rollback restores the most recent backup of target.
func (s *ModifierService) Rollback(ctx context.Context, target string) (*domain.Backup, error) {
	clean, _, err := s.resolve(target)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.TryLock(clean)
	if err != nil {
		s.record("rollback", "busy")
		return nil, err
	}
	defer unlock()

	b, err := s.backups.Latest(ctx, clean)
	if err != nil {
		s.record("rollback", "failed")
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoBackup
		}
		return nil, storageErr("load backup", err)
	}
	if err := s.restore(b); err != nil {
		s.record("rollback", "failed")
		return nil, err
	}
	s.record("rollback", "ok")
	s.logger.Info("target rolled back",
		zap.String("target", clean),
		zap.String("backup_id", b.ID.String()))
	s.notify(clean, b.Content)
	return b, nil
}

// RestoreBackup writes a specific backup back to its target.
func (s *ModifierService) RestoreBackup(ctx context.Context, id uuid.UUID) (*domain.Backup, error) {
	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, storageErr("load backup", err)
	}
	unlock, err := s.locks.TryLock(b.Target)
	if err != nil {
		s.record("restore", "busy")
		return nil, err
	}
	defer unlock()

	if err := s.restore(b); err != nil {
		s.record("restore", "failed")
		return nil, err
	}
	s.record("restore", "ok")
	s.notify(b.Target, b.Content)
	return b, nil
}

// restore must run with the target locked.
func (s *ModifierService) restore(b *domain.Backup) error {
	if domain.Checksum(b.Content) != b.Checksum {
		return ErrCorruptBackup
	}
	_, abs, err := s.resolve(b.Target)
	if err != nil {
		return err
	}
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(abs); err == nil {
		perm = info.Mode().Perm()
	}
	if err := atomicWriteFile(abs, b.Content, perm); err != nil {
		return storageErr("restore backup", err)
	}
	return nil
}

// CreateBackup snapshots the current content of target.
func (s *ModifierService) CreateBackup(ctx context.Context, target string) (*domain.Backup, error) {
	clean, _, err := s.resolve(target)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, clean)
	if err != nil {
		return nil, err
	}
	defer unlock()

	content, err := s.Read(clean)
	if err != nil {
		return nil, err
	}
	b := &domain.Backup{
		Target:   clean,
		Content:  content,
		Checksum: domain.Checksum(content),
		Size:     len(content),
	}
	if err := s.backups.Create(ctx, b); err != nil {
		return nil, storageErr("create backup", err)
	}
	s.record("backup", "ok")
	return b, nil
}

// ListBackups returns backup metadata, newest first. An empty target lists
// every backup.
func (s *ModifierService) ListBackups(ctx context.Context, target string) ([]domain.Backup, error) {
	if target != "" {
		clean, _, err := s.resolve(target)
		if err != nil {
			return nil, err
		}
		target = clean
	}
	backups, err := s.backups.List(ctx, target)
	if err != nil {
		return nil, storageErr("list backups", err)
	}
	return backups, nil
}

// PruneBackups drops backups older than the given age. The newest backup of
// each target is always kept.
func (s *ModifierService) PruneBackups(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, fmt.Errorf("negative age: %w", domain.ErrValidation)
	}
	n, err := s.backups.Prune(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, storageErr("prune backups", err)
	}
	return n, nil
}

func (s *ModifierService) record(op, result string) {
	s.metrics.ModifierOpsTotal.WithLabelValues(op, result).Inc()
}

// atomicWriteFile replaces name through a synced temp file in the same
// directory followed by a rename.
func atomicWriteFile(name string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(name)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, name); err != nil {
		return err
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

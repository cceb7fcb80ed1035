package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Harshitk-cp/ranger/internal/config"
	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/metrics"
	"github.com/Harshitk-cp/ranger/internal/patch"
	"github.com/Harshitk-cp/ranger/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidTransition   = fmt.Errorf("invalid proposal transition: %w", domain.ErrConsistency)
	ErrImprovementDisabled = fmt.Errorf("self-improvement is disabled: %w", domain.ErrValidation)
)

// Proposal categories, one per default rule.
const (
	CategoryLatency      = "latency"
	CategoryVerification = "verification"
	CategorySatisfaction = "satisfaction"
	CategoryErrors       = "errors"
)

const (
	latencyCeiling           = 2.0
	verificationFailureLimit = 0.2
	satisfactionFloor        = 0.7
	errorRateLimit           = 0.1

	defaultRiskCeiling         = 0.6
	defaultMaxApplies          = 3
	defaultGracePeriod         = time.Hour
	defaultRegressionThreshold = 0.1
	defaultMinSamples          = 5
	defaultImprovementInterval = 6 * time.Hour
)

// TuningChange is one edit a rule wants made to the tuning file.
type TuningChange struct {
	Key       string
	Value     string
	Rationale string
}

// ImprovementRule inspects a metrics snapshot and the current tuning and
// drafts at most one change.
type ImprovementRule interface {
	Category() string
	Draft(m *domain.Metrics, t config.Tuning) (TuningChange, bool)
}

// thresholdRule fires when its metric is out of bounds with enough samples
// behind it.
type thresholdRule struct {
	category string
	samples  []domain.EventKind
	breached func(m *domain.Metrics) bool
	change   func(m *domain.Metrics, t config.Tuning) (TuningChange, bool)
}

func (r thresholdRule) Category() string { return r.category }

func (r thresholdRule) Draft(m *domain.Metrics, t config.Tuning) (TuningChange, bool) {
	var n int
	for _, k := range r.samples {
		n += m.Samples(k)
	}
	if n < defaultMinSamples || !r.breached(m) {
		return TuningChange{}, false
	}
	return r.change(m, t)
}

// DefaultImprovementRules tune the knobs in the tuning file.
func DefaultImprovementRules() []ImprovementRule {
	return []ImprovementRule{
		thresholdRule{
			category: CategoryLatency,
			samples:  []domain.EventKind{domain.EventResponseLatency},
			breached: func(m *domain.Metrics) bool { return m.AvgLatencySeconds > latencyCeiling },
			change: func(m *domain.Metrics, t config.Tuning) (TuningChange, bool) {
				if t.SearchMaxResults <= 1 {
					return TuningChange{}, false
				}
				return TuningChange{
					Key:       config.KeySearchMaxResults,
					Value:     strconv.Itoa(t.SearchMaxResults - 1),
					Rationale: fmt.Sprintf("average latency %.2fs exceeds %.1fs; fetch fewer search results", m.AvgLatencySeconds, latencyCeiling),
				}, true
			},
		},
		thresholdRule{
			category: CategoryVerification,
			samples:  []domain.EventKind{domain.EventVerification},
			breached: func(m *domain.Metrics) bool { return m.VerificationFailureRate > verificationFailureLimit },
			change: func(m *domain.Metrics, t config.Tuning) (TuningChange, bool) {
				if t.VerifierTimeoutSeconds >= 30 {
					return TuningChange{}, false
				}
				return TuningChange{
					Key:       config.KeyVerifierTimeoutSeconds,
					Value:     strconv.Itoa(t.VerifierTimeoutSeconds + 5),
					Rationale: fmt.Sprintf("verification failure rate %.0f%% exceeds %.0f%%; allow collaborators more time", m.VerificationFailureRate*100, verificationFailureLimit*100),
				}, true
			},
		},
		thresholdRule{
			category: CategorySatisfaction,
			samples:  []domain.EventKind{domain.EventUserFeedback},
			breached: func(m *domain.Metrics) bool { return m.Satisfaction < satisfactionFloor },
			change: func(m *domain.Metrics, t config.Tuning) (TuningChange, bool) {
				next := math.Round((t.MinSalience+0.1)*100) / 100
				if next > 0.9 {
					return TuningChange{}, false
				}
				return TuningChange{
					Key:       config.KeyMinSalience,
					Value:     strconv.FormatFloat(next, 'f', -1, 64),
					Rationale: fmt.Sprintf("satisfaction %.2f is below %.1f; learn only more salient claims", m.Satisfaction, satisfactionFloor),
				}, true
			},
		},
		thresholdRule{
			category: CategoryErrors,
			samples:  []domain.EventKind{domain.EventResponseLatency, domain.EventError},
			breached: func(m *domain.Metrics) bool { return m.ErrorRate > errorRateLimit },
			change: func(m *domain.Metrics, t config.Tuning) (TuningChange, bool) {
				if t.VerifierConcurrency <= 1 {
					return TuningChange{}, false
				}
				return TuningChange{
					Key:       config.KeyVerifierConcurrency,
					Value:     strconv.Itoa(t.VerifierConcurrency - 1),
					Rationale: fmt.Sprintf("error rate %.0f%% exceeds %.0f%%; lower verifier concurrency", m.ErrorRate*100, errorRateLimit*100),
				}, true
			},
		},
	}
}

// RiskScorer rates a proposal in [0,1] from the size of its change and how
// earlier proposals of the same category ended.
type RiskScorer interface {
	Score(stats patch.Stats, history domain.ProposalOutcomes) float64
}

// ScopeHistoryRisk weighs change scope and the Laplace-smoothed rollback
// rate equally.
type ScopeHistoryRisk struct{}

func (ScopeHistoryRisk) Score(stats patch.Stats, history domain.ProposalOutcomes) float64 {
	rollbackRate := float64(history.RolledBack+1) / float64(history.Applied+history.RolledBack+2)
	return 0.5*stats.Scope() + 0.5*rollbackRate
}

type ImprovementConfig struct {
	Enabled    bool
	AutoApply  bool
	TuningFile string
	// RiskCeiling is exclusive: a proposal scoring at or above it is rejected.
	RiskCeiling         float64
	MaxAppliesPerCycle  int
	GracePeriod         time.Duration
	RegressionThreshold float64
}

// CycleReport summarises one self-improvement cycle.
type CycleReport struct {
	Snapshot   *domain.Metrics               `json:"snapshot"`
	Proposed   []domain.ModificationProposal `json:"proposed"`
	Applied    []uuid.UUID                   `json:"applied,omitempty"`
	Rejected   []uuid.UUID                   `json:"rejected,omitempty"`
	RolledBack []uuid.UUID                   `json:"rolled_back,omitempty"`
}

// ImprovementService turns monitor metrics into tuning proposals and drives
// them through validation, application and, on regression, rollback.
type ImprovementService struct {
	proposals domain.ProposalStore
	modifier  *ModifierService
	monitor   *MonitorService
	rules     []ImprovementRule
	risk      RiskScorer
	cfg       ImprovementConfig
	locks     *KeyLock
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	cycleMu sync.Mutex

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewImprovementService(proposals domain.ProposalStore, modifier *ModifierService, monitor *MonitorService, cfg ImprovementConfig, logger *zap.Logger) *ImprovementService {
	if cfg.TuningFile == "" {
		cfg.TuningFile = "tuning.yaml"
	}
	if cfg.RiskCeiling <= 0 {
		cfg.RiskCeiling = defaultRiskCeiling
	}
	if cfg.MaxAppliesPerCycle <= 0 {
		cfg.MaxAppliesPerCycle = defaultMaxApplies
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if cfg.RegressionThreshold <= 0 {
		cfg.RegressionThreshold = defaultRegressionThreshold
	}
	return &ImprovementService{
		proposals: proposals,
		modifier:  modifier,
		monitor:   monitor,
		rules:     DefaultImprovementRules(),
		risk:      ScopeHistoryRisk{},
		cfg:       cfg,
		locks:     NewKeyLock(),
		metrics:   metrics.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		interval:  defaultImprovementInterval,
		stopCh:    make(chan struct{}),
	}
}

func (s *ImprovementService) SetRules(rules []ImprovementRule) {
	s.rules = rules
}

func (s *ImprovementService) SetRiskScorer(r RiskScorer) {
	s.risk = r
}

func (s *ImprovementService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *ImprovementService) Get(ctx context.Context, id uuid.UUID) (*domain.ModificationProposal, error) {
	p, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		return nil, proposalErr(err)
	}
	return p, nil
}

func (s *ImprovementService) List(ctx context.Context, status domain.ProposalStatus) ([]domain.ModificationProposal, error) {
	if status != "" && !validProposalStatus(status) {
		return nil, fmt.Errorf("unknown proposal status %q: %w", status, domain.ErrValidation)
	}
	out, err := s.proposals.List(ctx, status)
	if err != nil {
		return nil, storageErr("list proposals", err)
	}
	return out, nil
}

func proposalErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("proposal: %w", err)
	}
	return storageErr("load proposal", err)
}

func validProposalStatus(s domain.ProposalStatus) bool {
	switch s {
	case domain.ProposalProposed, domain.ProposalValidated, domain.ProposalApplied,
		domain.ProposalRolledBack, domain.ProposalRejected:
		return true
	}
	return false
}

// Analyze drafts proposals for the metrics given. Drafts identical to a
// proposal rejected earlier, or to one still open, are skipped.
func (s *ImprovementService) Analyze(ctx context.Context, m *domain.Metrics) ([]domain.ModificationProposal, error) {
	raw, err := s.modifier.Read(s.cfg.TuningFile)
	if err != nil {
		return nil, err
	}
	tuning, err := config.ParseTuning(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", err, domain.ErrValidation)
	}

	open, err := s.openFingerprints(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.ModificationProposal
	for _, rule := range s.rules {
		change, ok := rule.Draft(m, tuning)
		if !ok {
			continue
		}
		next, err := config.SetTuningValue(raw, change.Key, change.Value)
		if err != nil {
			s.logger.Warn("improvement rule produced an unusable change",
				zap.String("category", rule.Category()), zap.Error(err))
			continue
		}
		diff := patch.Make(string(raw), string(next))
		fp := domain.ProposalFingerprint(s.cfg.TuningFile, diff)
		if open[fp] {
			continue
		}
		rejected, err := s.proposals.HasRejected(ctx, fp)
		if err != nil {
			return out, storageErr("check rejected proposals", err)
		}
		if rejected {
			s.logger.Debug("skipping previously rejected proposal", zap.String("category", rule.Category()))
			continue
		}

		stats, err := patch.Stat(string(raw), diff)
		if err != nil {
			return out, err
		}
		history, err := s.proposals.Outcomes(ctx, rule.Category())
		if err != nil {
			return out, storageErr("load proposal outcomes", err)
		}

		now := s.now()
		p := domain.ModificationProposal{
			ID:             uuid.New(),
			TargetLocation: s.cfg.TuningFile,
			Diff:           diff,
			Rationale:      change.Rationale,
			Category:       rule.Category(),
			RiskScore:      s.risk.Score(stats, history),
			Status:         domain.ProposalProposed,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.proposals.Create(ctx, &p); err != nil {
			return out, storageErr("create proposal", err)
		}
		s.metrics.ProposalsTotal.WithLabelValues(string(domain.ProposalProposed)).Inc()
		s.logger.Info("proposal drafted",
			zap.String("proposal_id", p.ID.String()),
			zap.String("category", p.Category),
			zap.Float64("risk", p.RiskScore))
		open[fp] = true
		out = append(out, p)
	}
	return out, nil
}

func (s *ImprovementService) openFingerprints(ctx context.Context) (map[string]bool, error) {
	open := make(map[string]bool)
	for _, status := range []domain.ProposalStatus{domain.ProposalProposed, domain.ProposalValidated} {
		ps, err := s.proposals.List(ctx, status)
		if err != nil {
			return nil, storageErr("list proposals", err)
		}
		for i := range ps {
			open[ps[i].Fingerprint()] = true
		}
	}
	return open, nil
}

// lockProposal serializes transitions of one proposal and loads it.
func (s *ImprovementService) lockProposal(ctx context.Context, id uuid.UUID) (*domain.ModificationProposal, func(), error) {
	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return nil, nil, err
	}
	p, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, proposalErr(err)
	}
	return p, unlock, nil
}

func (s *ImprovementService) transition(ctx context.Context, p *domain.ModificationProposal, to domain.ProposalStatus, reason string) error {
	if !p.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, p.Status, to)
	}
	from := p.Status
	p.Status = to
	p.UpdatedAt = s.now()
	if reason != "" {
		p.Reason = reason
	}
	if err := s.proposals.Update(ctx, p); err != nil {
		p.Status = from
		return storageErr("update proposal", err)
	}
	s.metrics.ProposalsTotal.WithLabelValues(string(to)).Inc()

	if to == domain.ProposalRejected {
		s.logger.Info("proposal rejected",
			zap.String("proposal_id", p.ID.String()),
			zap.String("category", p.Category),
			zap.String("reason", reason))
	}
	return nil
}

// Validate moves a Proposed proposal to Validated, or to Rejected when its
// risk reaches the ceiling or its diff fails the modifier's safety checks.
func (s *ImprovementService) Validate(ctx context.Context, id uuid.UUID) (*domain.ModificationProposal, error) {
	p, unlock, err := s.lockProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !p.Status.CanTransition(domain.ProposalValidated) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, p.Status, domain.ProposalValidated)
	}

	report, err := s.modifier.Validate(ctx, p.TargetLocation, p.Diff)
	if err != nil {
		return nil, err
	}

	var reason string
	switch {
	case !report.Valid:
		reason = rejection(report).Error()
	case p.RiskScore >= s.cfg.RiskCeiling:
		reason = fmt.Sprintf("risk %.2f is not below the ceiling %.2f", p.RiskScore, s.cfg.RiskCeiling)
	}
	if reason != "" {
		if err := s.transition(ctx, p, domain.ProposalRejected, reason); err != nil {
			return nil, err
		}
		return p, nil
	}

	if err := s.transition(ctx, p, domain.ProposalValidated, ""); err != nil {
		return nil, err
	}
	return p, nil
}

// Apply writes a Validated proposal through the modifier and records the
// metrics baseline used by the regression check. A diff that no longer
// validates rejects the proposal.
func (s *ImprovementService) Apply(ctx context.Context, id uuid.UUID) (*domain.ApplyResult, error) {
	p, unlock, err := s.lockProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !p.Status.CanTransition(domain.ProposalApplied) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, p.Status, domain.ProposalApplied)
	}

	baseline := s.monitor.Snapshot()
	res, err := s.modifier.Apply(ctx, p.TargetLocation, p.Diff)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			if terr := s.transition(ctx, p, domain.ProposalRejected, err.Error()); terr != nil {
				return nil, errors.Join(err, terr)
			}
		}
		return nil, err
	}

	appliedAt := res.AppliedAt
	backupID := res.BackupID
	p.BackupID = &backupID
	p.AppliedAt = &appliedAt
	p.Baseline = baseline
	if err := s.transition(ctx, p, domain.ProposalApplied, ""); err != nil {
		return nil, err
	}
	res.ProposalID = p.ID

	s.logger.Info("proposal applied",
		zap.String("proposal_id", p.ID.String()),
		zap.String("target", p.TargetLocation))
	return res, nil
}

// Rollback restores the backup taken when the proposal was applied. Later
// proposals applied to the same target are undone by the same restore and
// are marked rolled back too.
func (s *ImprovementService) Rollback(ctx context.Context, id uuid.UUID, reason string) ([]uuid.UUID, error) {
	p, unlock, err := s.lockProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !p.Status.CanTransition(domain.ProposalRolledBack) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, p.Status, domain.ProposalRolledBack)
	}

	later, err := s.appliedAfter(ctx, p)
	if err != nil {
		return nil, err
	}

	if p.BackupID != nil {
		_, err = s.modifier.RestoreBackup(ctx, *p.BackupID)
	} else {
		_, err = s.modifier.Rollback(ctx, p.TargetLocation)
	}
	if err != nil {
		return nil, err
	}

	if reason == "" {
		reason = "rolled back by owner"
	}
	if err := s.transition(ctx, p, domain.ProposalRolledBack, reason); err != nil {
		return nil, err
	}
	rolled := []uuid.UUID{p.ID}
	for i := range later {
		q := &later[i]
		if err := s.transition(ctx, q, domain.ProposalRolledBack, "undone with proposal "+p.ID.String()); err != nil {
			return rolled, err
		}
		rolled = append(rolled, q.ID)
	}

	s.logger.Info("proposal rolled back",
		zap.String("proposal_id", p.ID.String()),
		zap.String("reason", reason),
		zap.Int("cascaded", len(later)))
	return rolled, nil
}

func (s *ImprovementService) appliedAfter(ctx context.Context, p *domain.ModificationProposal) ([]domain.ModificationProposal, error) {
	applied, err := s.proposals.List(ctx, domain.ProposalApplied)
	if err != nil {
		return nil, storageErr("list proposals", err)
	}
	var out []domain.ModificationProposal
	for _, q := range applied {
		if q.ID == p.ID || q.TargetLocation != p.TargetLocation || q.AppliedAt == nil || p.AppliedAt == nil {
			continue
		}
		if q.AppliedAt.After(*p.AppliedAt) {
			out = append(out, q)
		}
	}
	return out, nil
}

// Regression returns the metric that worsened most from baseline to current
// and by how much. Rates compare absolutely, latency relative to baseline.
func Regression(baseline, current *domain.Metrics) (string, float64) {
	if baseline == nil || current == nil {
		return "", 0
	}
	worst, amount := "", 0.0
	consider := func(name string, delta float64) {
		if delta > amount {
			worst, amount = name, delta
		}
	}
	if baseline.AvgLatencySeconds > 0 {
		consider("latency", (current.AvgLatencySeconds-baseline.AvgLatencySeconds)/baseline.AvgLatencySeconds)
	}
	consider("verification_failure_rate", current.VerificationFailureRate-baseline.VerificationFailureRate)
	consider("error_rate", current.ErrorRate-baseline.ErrorRate)
	if current.Samples(domain.EventUserFeedback) > 0 {
		consider("satisfaction", baseline.Satisfaction-current.Satisfaction)
	}
	return worst, amount
}

// CheckRegressions rolls back proposals applied within the grace period
// whose metrics have since regressed beyond the threshold.
func (s *ImprovementService) CheckRegressions(ctx context.Context) ([]uuid.UUID, error) {
	applied, err := s.proposals.List(ctx, domain.ProposalApplied)
	if err != nil {
		return nil, storageErr("list proposals", err)
	}
	// Oldest first, so one restore covers everything applied after it.
	sort.Slice(applied, func(i, j int) bool {
		return appliedTime(applied[i]).Before(appliedTime(applied[j]))
	})

	current := s.monitor.Snapshot()
	now := s.now()
	done := make(map[uuid.UUID]bool)
	var rolled []uuid.UUID
	for _, p := range applied {
		if done[p.ID] || p.AppliedAt == nil || now.Sub(*p.AppliedAt) > s.cfg.GracePeriod {
			continue
		}
		metric, amount := Regression(p.Baseline, current)
		if amount <= s.cfg.RegressionThreshold {
			continue
		}
		ids, err := s.Rollback(ctx, p.ID, fmt.Sprintf("%s regressed by %.2f after apply", metric, amount))
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return rolled, err
		}
		for _, id := range ids {
			done[id] = true
		}
		rolled = append(rolled, ids...)
	}
	return rolled, nil
}

func appliedTime(p domain.ModificationProposal) time.Time {
	if p.AppliedAt == nil {
		return time.Time{}
	}
	return *p.AppliedAt
}

// RunCycle checks earlier changes for regressions, then drafts, validates
// and, when auto-apply is on, applies new proposals. Cycles never overlap.
func (s *ImprovementService) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !s.cfg.Enabled {
		return nil, ErrImprovementDisabled
	}
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	report := &CycleReport{Proposed: []domain.ModificationProposal{}}

	rolled, err := s.CheckRegressions(ctx)
	report.RolledBack = rolled
	if err != nil {
		return report, err
	}

	report.Snapshot = s.monitor.Snapshot()
	drafts, err := s.Analyze(ctx, report.Snapshot)
	if err != nil {
		return report, err
	}

	applied := 0
	for _, d := range drafts {
		p, err := s.Validate(ctx, d.ID)
		if err != nil {
			return report, err
		}
		if p.Status == domain.ProposalRejected {
			report.Rejected = append(report.Rejected, p.ID)
		} else if s.cfg.AutoApply && applied < s.cfg.MaxAppliesPerCycle {
			if _, err := s.Apply(ctx, p.ID); err != nil {
				s.logger.Warn("auto-apply failed",
					zap.String("proposal_id", p.ID.String()), zap.Error(err))
			} else {
				applied++
				report.Applied = append(report.Applied, p.ID)
			}
			if cur, err := s.proposals.GetByID(ctx, p.ID); err == nil {
				p = cur
			}
		}
		report.Proposed = append(report.Proposed, *p)
	}

	s.logger.Info("improvement cycle finished",
		zap.Int("proposed", len(report.Proposed)),
		zap.Int("applied", len(report.Applied)),
		zap.Int("rejected", len(report.Rejected)),
		zap.Int("rolled_back", len(report.RolledBack)))
	return report, nil
}

// Start runs improvement cycles on the configured interval.
func (s *ImprovementService) Start() {
	if !s.cfg.Enabled {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if _, err := s.RunCycle(ctx); err != nil {
					s.logger.Error("improvement cycle failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				return
			}
		}
	}()

	s.logger.Info("improvement worker started", zap.Duration("interval", s.interval))
}

func (s *ImprovementService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("improvement worker stopped")
}

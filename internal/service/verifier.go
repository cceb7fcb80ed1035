package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/metrics"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	ErrEmptyClaim   = fmt.Errorf("claim is required: %w", domain.ErrValidation)
	ErrNoResponders = fmt.Errorf("no search collaborator responded: %w", domain.ErrTransientExternal)
	ErrBackpressure = fmt.Errorf("verifier queue is full: %w", domain.ErrTransientExternal)
)

// TrustScorer rates the credibility of a source URL.
type TrustScorer interface {
	ScoreURL(rawURL string) float64
}

// StanceScorer estimates whether a snippet supports (positive) or disputes
// (negative) a claim. Zero means the snippet is not about the claim.
type StanceScorer interface {
	Stance(claim, snippet string) float64
}

type VerifierConfig struct {
	Threshold   float64
	Timeout     time.Duration
	MinInterval time.Duration
	QueueDepth  int
	Concurrency int
	MaxRetries  int
}

func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		Threshold:   0.8,
		Timeout:     10 * time.Second,
		MinInterval: time.Second,
		QueueDepth:  16,
		Concurrency: 4,
		MaxRetries:  3,
	}
}

// collaboratorGate enforces the minimum interval between calls to one
// collaborator. Callers beyond the queue depth are turned away.
type collaboratorGate struct {
	limiter *rate.Limiter
	pending atomic.Int64
	depth   int64
}

func (g *collaboratorGate) enter() bool {
	if g.pending.Add(1) > g.depth {
		g.pending.Add(-1)
		return false
	}
	return true
}

func (g *collaboratorGate) leave() {
	g.pending.Add(-1)
}

type VerifierService struct {
	clients []domain.SearchClient
	gates   map[string]*collaboratorGate
	trust   TrustScorer
	stance  StanceScorer
	cfg     VerifierConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	// Tunable while running.
	timeout     atomic.Int64
	concurrency atomic.Int64

	// retry pacing, shortened in tests
	initialBackoff time.Duration
}

func NewVerifierService(clients []domain.SearchClient, trust TrustScorer, cfg VerifierConfig, logger *zap.Logger) *VerifierService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	gates := make(map[string]*collaboratorGate, len(clients))
	for _, c := range clients {
		gates[c.Name()] = &collaboratorGate{
			limiter: rate.NewLimiter(limit, 1),
			depth:   int64(cfg.QueueDepth),
		}
	}

	s := &VerifierService{
		clients:        clients,
		gates:          gates,
		trust:          trust,
		stance:         LexicalStance{},
		cfg:            cfg,
		metrics:        metrics.New(),
		logger:         logger,
		initialBackoff: 200 * time.Millisecond,
	}
	s.timeout.Store(int64(cfg.Timeout))
	s.concurrency.Store(int64(cfg.Concurrency))
	return s
}

// SetTimeout changes the per-collaborator deadline for later calls.
func (s *VerifierService) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout.Store(int64(d))
	}
}

// SetConcurrency changes how many collaborators one Verify queries at once.
func (s *VerifierService) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency.Store(int64(n))
	}
}

// SetMaxResults passes a result cap to every collaborator that takes one.
func (s *VerifierService) SetMaxResults(n int) {
	for _, c := range s.clients {
		if l, ok := c.(interface{ SetMaxResults(int) }); ok {
			l.SetMaxResults(n)
		}
	}
}

func (s *VerifierService) Timeout() time.Duration {
	return time.Duration(s.timeout.Load())
}

func (s *VerifierService) Concurrency() int {
	return int(s.concurrency.Load())
}

// SetStanceScorer replaces the default lexical stance scorer.
func (s *VerifierService) SetStanceScorer(scorer StanceScorer) {
	s.stance = scorer
}

func (s *VerifierService) Threshold() float64 {
	return s.cfg.Threshold
}

type vote struct {
	results []domain.SearchResult
	err     error
}

// Verify checks a claim against every configured collaborator. A failed or
// timed-out collaborator is a missing vote. Only when no collaborator
// answers does Verify return an error.
func (s *VerifierService) Verify(ctx context.Context, claim string) (*domain.VerificationVerdict, error) {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return nil, ErrEmptyClaim
	}

	votes := make([]vote, len(s.clients))
	var g errgroup.Group
	g.SetLimit(s.Concurrency())
	for i, client := range s.clients {
		g.Go(func() error {
			results, err := s.ask(ctx, client, claim)
			votes[i] = vote{results: results, err: err}
			return nil
		})
	}
	_ = g.Wait()

	responders, backpressured := 0, 0
	var evidence []scoredRef
	seen := make(map[string]bool)
	now := time.Now().UTC()
	for i, v := range votes {
		if v.err != nil {
			if errors.Is(v.err, ErrBackpressure) {
				backpressured++
			}
			s.logger.Debug("missing vote",
				zap.String("collaborator", s.clients[i].Name()),
				zap.Error(v.err))
			continue
		}
		responders++
		for _, r := range v.results {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			evidence = append(evidence, scoredRef{
				ref: domain.SourceRef{
					URL:        r.URL,
					TrustScore: s.trust.ScoreURL(r.URL),
					FetchedAt:  now,
				},
				stance: s.stance.Stance(claim, r.Title+" "+r.Snippet),
			})
		}
	}

	if responders == 0 {
		if len(s.clients) > 0 && backpressured == len(s.clients) {
			return nil, ErrBackpressure
		}
		return nil, ErrNoResponders
	}

	verdict := aggregate(claim, evidence, s.cfg.Threshold)
	verdict.Responders = responders
	verdict.MissingVotes = len(s.clients) - responders
	s.metrics.VerdictsTotal.WithLabelValues(string(verdict.Verdict)).Inc()

	s.logger.Debug("claim verified",
		zap.String("claim", claim),
		zap.String("verdict", string(verdict.Verdict)),
		zap.Float64("agreement", verdict.Agreement),
		zap.Float64("disagreement", verdict.Disagreement),
		zap.Int("responders", responders))

	return verdict, nil
}

func (s *VerifierService) ask(ctx context.Context, client domain.SearchClient, claim string) ([]domain.SearchResult, error) {
	name := client.Name()
	gate := s.gates[name]
	if !gate.enter() {
		s.metrics.VerifierCallsTotal.WithLabelValues(name, "backpressure").Inc()
		return nil, ErrBackpressure
	}
	defer gate.leave()

	callCtx, cancel := context.WithTimeout(ctx, s.Timeout())
	defer cancel()

	start := time.Now()
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.initialBackoff

	results, err := backoff.Retry(callCtx, func() ([]domain.SearchResult, error) {
		if err := gate.limiter.Wait(callCtx); err != nil {
			return nil, backoff.Permanent(err)
		}
		results, err := client.Search(callCtx, claim)
		if err == nil {
			return results, nil
		}
		if callCtx.Err() != nil || !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(uint(s.cfg.MaxRetries)))

	s.metrics.VerifierCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		s.metrics.VerifierCallsTotal.WithLabelValues(name, "ok").Inc()
		return results, nil
	case callCtx.Err() != nil:
		s.metrics.VerifierCallsTotal.WithLabelValues(name, "timeout").Inc()
	default:
		s.metrics.VerifierCallsTotal.WithLabelValues(name, "error").Inc()
	}
	return nil, fmt.Errorf("%s: %w: %w", name, err, domain.ErrTransientExternal)
}

func retryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

type scoredRef struct {
	ref    domain.SourceRef
	stance float64
}

// aggregate weighs each relevant snippet's stance by its source trust.
func aggregate(claim string, evidence []scoredRef, threshold float64) *domain.VerificationVerdict {
	v := &domain.VerificationVerdict{Claim: claim, Verdict: domain.VerdictInconclusive}

	var relevant []scoredRef
	for _, e := range evidence {
		if e.stance != 0 {
			relevant = append(relevant, e)
		}
	}
	if len(relevant) == 0 {
		return v
	}

	var agree, disagree, trustSum float64
	var supporting, contradicting, all []domain.SourceRef
	for _, e := range relevant {
		trustSum += e.ref.TrustScore
		all = append(all, e.ref)
		if e.stance > 0 {
			agree += e.ref.TrustScore * e.stance
			supporting = append(supporting, e.ref)
		} else {
			disagree += e.ref.TrustScore * -e.stance
			contradicting = append(contradicting, e.ref)
		}
	}
	n := float64(len(relevant))
	v.Agreement = agree / n
	v.Disagreement = disagree / n
	v.AggregateTrust = trustSum / n

	switch {
	case v.Agreement > threshold:
		v.Verdict = domain.VerdictConfirmed
		v.Evidence = supporting
	case v.Disagreement > threshold:
		v.Verdict = domain.VerdictContradicted
		v.Evidence = contradicting
	default:
		v.Evidence = all
	}
	return v
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "false": true, "myth": true,
	"incorrect": true, "untrue": true, "isn": true, "wasn": true,
	"aren": true, "weren": true, "doesn": true, "didn": true,
}

// negationScope is how many tokens after a negation it can govern.
const negationScope = 4

// A negation followed by one of these does not deny what comes next, as in
// "not only" or "no doubt".
var negationBreakers = map[string]bool{
	"only": true, "just": true, "merely": true, "simply": true, "doubt": true,
}

// LexicalStance scores a snippet by how much of the claim it repeats. A
// snippet that negates a claim token the claim itself does not negate
// counts against it. Negations elsewhere in the snippet are ignored.
type LexicalStance struct {
	// MinOverlap is the share of claim tokens a snippet must contain to be
	// relevant. Zero means 0.6.
	MinOverlap float64
}

func (l LexicalStance) Stance(claim, snippet string) float64 {
	minOverlap := l.MinOverlap
	if minOverlap == 0 {
		minOverlap = 0.6
	}

	claimTokens := keyTokens(claim)
	if len(claimTokens) == 0 {
		return 0
	}
	claimSet := make(map[string]bool, len(claimTokens))
	for _, t := range claimTokens {
		claimSet[t] = true
	}
	snippetTokens := keyTokens(snippet)
	snippetSet := make(map[string]bool, len(snippetTokens))
	for _, t := range snippetTokens {
		snippetSet[t] = true
	}

	hits := 0
	for _, t := range claimTokens {
		if snippetSet[t] {
			hits++
		}
	}
	overlap := float64(hits) / float64(len(claimTokens))
	if overlap < minOverlap {
		return 0
	}

	if negatesClaim(snippetTokens, claimSet) != negatesClaim(claimTokens, claimSet) {
		return -overlap
	}
	return overlap
}

// negatesClaim reports whether a negation in tokens is followed, within
// negationScope tokens, by a token of the claim.
func negatesClaim(tokens []string, claim map[string]bool) bool {
	for i, t := range tokens {
		if !negations[t] {
			continue
		}
		if i+1 < len(tokens) && negationBreakers[tokens[i+1]] {
			continue
		}
		for j := i + 1; j < len(tokens) && j <= i+negationScope; j++ {
			if claim[tokens[j]] && !negations[tokens[j]] {
				return true
			}
		}
	}
	return false
}

package service

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"go.uber.org/zap"
)

// Verifier checks a claim against external evidence.
type Verifier interface {
	Verify(ctx context.Context, claim string) (*domain.VerificationVerdict, error)
}

type LearningConfig struct {
	Enabled             bool
	VerificationEnabled bool
	MinSalience         float64
}

type LearningService struct {
	extractor domain.ClaimExtractor
	salience  SalienceScorer
	knowledge *KnowledgeService
	verifier  Verifier
	monitor   *MonitorService
	cfg       LearningConfig
	logger    *zap.Logger

	// float64 bits, tunable while running
	minSalience atomic.Uint64
}

func NewLearningService(extractor domain.ClaimExtractor, knowledge *KnowledgeService, verifier Verifier, monitor *MonitorService, cfg LearningConfig, logger *zap.Logger) *LearningService {
	s := &LearningService{
		extractor: extractor,
		salience:  NewTopicSalience(),
		knowledge: knowledge,
		verifier:  verifier,
		monitor:   monitor,
		cfg:       cfg,
		logger:    logger,
	}
	s.minSalience.Store(math.Float64bits(cfg.MinSalience))
	return s
}

// SetMinSalience changes the salience a candidate needs to be learned.
func (s *LearningService) SetMinSalience(v float64) {
	s.minSalience.Store(math.Float64bits(v))
}

func (s *LearningService) MinSalience() float64 {
	return math.Float64frombits(s.minSalience.Load())
}

func (s *LearningService) SetSalienceScorer(scorer SalienceScorer) {
	s.salience = scorer
}

// Learn extracts claims from text and stores each salient one. A failure on
// one candidate is collected in the result and the rest still run. Only a
// storage failure aborts, since reporting success would lose data.
func (s *LearningService) Learn(ctx context.Context, text string, conv *domain.ConversationContext) (*domain.LearnResult, error) {
	result := &domain.LearnResult{Items: []domain.KnowledgeItem{}}
	if !s.cfg.Enabled {
		return result, nil
	}

	candidates, err := s.extractor.Extract(ctx, text)
	if err != nil {
		s.logger.Warn("claim extraction failed", zap.Error(err))
		result.Failures = append(result.Failures, domain.NewFailure("extraction", err))
		return result, nil
	}

	minSalience := s.MinSalience()
	for _, c := range candidates {
		if score := s.salience.Score(c, conv); score < minSalience {
			s.logger.Debug("candidate below salience",
				zap.String("statement", c.Statement),
				zap.Float64("salience", score))
			continue
		}

		item, err := s.learnOne(ctx, c, result)
		if err != nil {
			if errors.Is(err, domain.ErrStorage) {
				return result, err
			}
			result.Failures = append(result.Failures, domain.NewFailure(c.Statement, err))
			continue
		}
		result.Items = append(result.Items, *item)
	}
	return result, nil
}

func (s *LearningService) learnOne(ctx context.Context, c domain.ClaimCandidate, result *domain.LearnResult) (*domain.KnowledgeItem, error) {
	if !s.cfg.VerificationEnabled || s.verifier == nil {
		return s.knowledge.Upsert(ctx, c.Statement, c.Confidence, nil)
	}

	if _, err := s.knowledge.MarkPending(ctx, c.Statement); err != nil {
		return nil, err
	}

	verdict, err := s.verifier.Verify(ctx, c.Statement)
	if err != nil {
		s.logger.Warn("verification failed, recording as inconclusive",
			zap.String("statement", c.Statement), zap.Error(err))
		result.Failures = append(result.Failures, domain.NewFailure(c.Statement, err))
		s.recordVerification(0)
		verdict = &domain.VerificationVerdict{Claim: c.Statement, Verdict: domain.VerdictInconclusive}
	} else {
		s.recordVerification(1)
	}

	return s.knowledge.Upsert(ctx, c.Statement, c.Confidence, verdict)
}

func (s *LearningService) recordVerification(v float64) {
	if s.monitor != nil {
		_ = s.monitor.Record(domain.EventVerification, v)
	}
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"go.uber.org/zap"
)

var ErrEmptyUtterance = fmt.Errorf("utterance text is required: %w", domain.ErrValidation)

// PipelineService is the entry point the transport layer calls for every
// incoming utterance.
type PipelineService struct {
	conversation *ConversationService
	learning     *LearningService
	monitor      *MonitorService
	logger       *zap.Logger
	now          func() time.Time
}

func NewPipelineService(conversation *ConversationService, learning *LearningService, monitor *MonitorService, logger *zap.Logger) *PipelineService {
	return &PipelineService{
		conversation: conversation,
		learning:     learning,
		monitor:      monitor,
		logger:       logger,
		now:          time.Now,
	}
}

// HandleUtterance updates the conversation context, then learns from the
// text. Per-claim failures come back in the result; only failures that
// lose the whole utterance are returned as an error.
func (s *PipelineService) HandleUtterance(ctx context.Context, u domain.Utterance) (*domain.UtteranceResult, error) {
	start := s.now()
	if strings.TrimSpace(u.Text) == "" {
		return nil, ErrEmptyUtterance
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = start.UTC()
	}

	conv, err := s.conversation.Observe(u)
	if err != nil {
		return nil, err
	}

	learned, err := s.learning.Learn(ctx, u.Text, conv)
	if err != nil {
		_ = s.monitor.Record(domain.EventError, 1)
		s.logger.Error("utterance failed",
			zap.String("channel_id", u.ChannelID),
			zap.String("kind", string(domain.Kind(err))),
			zap.Error(err))
		return nil, err
	}

	elapsed := s.now().Sub(start)
	_ = s.monitor.Record(domain.EventResponseLatency, elapsed.Seconds())

	s.logger.Debug("utterance handled",
		zap.String("channel_id", u.ChannelID),
		zap.Int("items", len(learned.Items)),
		zap.Int("failures", len(learned.Failures)),
		zap.Duration("elapsed", elapsed))

	return &domain.UtteranceResult{
		Items:    learned.Items,
		Failures: learned.Failures,
		Context:  conv,
	}, nil
}

// RecordFeedback stores a user satisfaction score in [0,1].
func (s *PipelineService) RecordFeedback(score float64) error {
	return s.monitor.Record(domain.EventUserFeedback, score)
}

// Metrics returns the monitor's current snapshot.
func (s *PipelineService) Metrics() *domain.Metrics {
	return s.monitor.Snapshot()
}

package service

import (
	"path"
	"path/filepath"
	"time"

	"github.com/Harshitk-cp/ranger/internal/config"
	"go.uber.org/zap"
)

// LiveTuning pushes tuning file values into the running learning engine
// and verifier, so an applied or rolled back proposal is observable by the
// regression check that follows it.
type LiveTuning struct {
	file     string
	learning *LearningService
	verifier *VerifierService
	logger   *zap.Logger
}

func NewLiveTuning(file string, learning *LearningService, verifier *VerifierService, logger *zap.Logger) *LiveTuning {
	return &LiveTuning{
		file:     path.Clean(filepath.ToSlash(file)),
		learning: learning,
		verifier: verifier,
		logger:   logger,
	}
}

// Apply sets every tunable knob from t.
func (l *LiveTuning) Apply(t config.Tuning) {
	if l.learning != nil {
		l.learning.SetMinSalience(t.MinSalience)
	}
	if l.verifier != nil {
		l.verifier.SetTimeout(time.Duration(t.VerifierTimeoutSeconds) * time.Second)
		l.verifier.SetConcurrency(t.VerifierConcurrency)
		l.verifier.SetMaxResults(t.SearchMaxResults)
	}
	l.logger.Info("tuning applied",
		zap.Int("search_max_results", t.SearchMaxResults),
		zap.Int("verifier_timeout_seconds", t.VerifierTimeoutSeconds),
		zap.Float64("min_salience", t.MinSalience),
		zap.Int("verifier_concurrency", t.VerifierConcurrency))
}

// HandleWrite reloads the tuning when the code modifier rewrote the tuning
// file. It is registered with ModifierService.OnWrite.
func (l *LiveTuning) HandleWrite(target string, content []byte) {
	if target != l.file {
		return
	}
	t, err := config.ParseTuning(content)
	if err != nil {
		l.logger.Warn("tuning file unreadable, keeping current values", zap.Error(err))
		return
	}
	l.Apply(t)
}

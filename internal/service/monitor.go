package service

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/metrics"
)

var (
	ErrInvalidEventKind = fmt.Errorf("invalid event kind: %w", domain.ErrValidation)
	ErrInvalidSample    = fmt.Errorf("sample value out of range: %w", domain.ErrValidation)
)

type MonitorConfig struct {
	Window time.Duration
	// VerificationSpan is how many recent verification attempts the
	// failure rate covers.
	VerificationSpan int
	// MaxSamples bounds the buffer kept per event kind.
	MaxSamples int
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Window:           time.Hour,
		VerificationSpan: 50,
		MaxSamples:       10000,
	}
}

type sample struct {
	at    time.Time
	value float64
}

// MonitorService aggregates outcome samples over a sliding window. Expired
// samples are dropped when a snapshot is taken.
type MonitorService struct {
	cfg     MonitorConfig
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	samples map[domain.EventKind][]sample
}

func NewMonitorService(cfg MonitorConfig) *MonitorService {
	def := DefaultMonitorConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.VerificationSpan <= 0 {
		cfg.VerificationSpan = def.VerificationSpan
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = def.MaxSamples
	}
	return &MonitorService{
		cfg:     cfg,
		metrics: metrics.New(),
		now:     func() time.Time { return time.Now().UTC() },
		samples: make(map[domain.EventKind][]sample),
	}
}

// Record appends a sample. Latency is in seconds, verification is 1 for a
// success and 0 for a failure, feedback is a satisfaction score in [0,1],
// and an error sample counts one failed utterance.
func (m *MonitorService) Record(kind domain.EventKind, value float64) error {
	if !domain.ValidEventKind(string(kind)) {
		return ErrInvalidEventKind
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ErrInvalidSample
	}
	switch kind {
	case domain.EventResponseLatency:
		if value < 0 {
			return ErrInvalidSample
		}
		m.metrics.ResponseLatency.Observe(value)
	case domain.EventVerification, domain.EventUserFeedback:
		if value < 0 || value > 1 {
			return ErrInvalidSample
		}
	case domain.EventError:
		value = 1
	}
	m.metrics.MonitorEventsTotal.WithLabelValues(string(kind)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	buf := append(m.samples[kind], sample{at: m.now(), value: value})
	if over := len(buf) - m.cfg.MaxSamples; over > 0 {
		buf = append([]sample(nil), buf[over:]...)
	}
	m.samples[kind] = buf
	return nil
}

// Snapshot returns aggregates over the samples still inside the window.
func (m *MonitorService) Snapshot() *domain.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.cfg.Window)
	for kind, buf := range m.samples {
		i := 0
		for i < len(buf) && buf[i].at.Before(cutoff) {
			i++
		}
		if i > 0 {
			m.samples[kind] = append([]sample(nil), buf[i:]...)
		}
	}

	snap := &domain.Metrics{
		SampleCounts: make(map[domain.EventKind]int, len(m.samples)),
		Window:       m.cfg.Window,
		TakenAt:      now,
	}
	for kind, buf := range m.samples {
		snap.SampleCounts[kind] = len(buf)
	}

	latency := m.samples[domain.EventResponseLatency]
	snap.AvgLatencySeconds = mean(latency)

	verifications := m.samples[domain.EventVerification]
	if n := len(verifications); n > m.cfg.VerificationSpan {
		verifications = verifications[n-m.cfg.VerificationSpan:]
	}
	if len(verifications) > 0 {
		snap.VerificationFailureRate = 1 - mean(verifications)
	}

	snap.Satisfaction = mean(m.samples[domain.EventUserFeedback])

	// Latency is recorded only for utterances that succeed, so every
	// utterance is either a latency sample or an error.
	if errs := len(m.samples[domain.EventError]); errs > 0 {
		snap.ErrorRate = float64(errs) / float64(errs+len(latency))
	}
	return snap
}

func mean(buf []sample) float64 {
	if len(buf) == 0 {
		return 0
	}
	var sum float64
	for _, s := range buf {
		sum += s.value
	}
	return sum / float64(len(buf))
}

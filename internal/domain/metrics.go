package domain

import "time"

type EventKind string

const (
	EventResponseLatency EventKind = "response_latency"
	EventVerification    EventKind = "verification"
	EventUserFeedback    EventKind = "user_feedback"
	EventError           EventKind = "error"
)

func ValidEventKind(k string) bool {
	switch EventKind(k) {
	case EventResponseLatency, EventVerification, EventUserFeedback, EventError:
		return true
	}
	return false
}

// Metrics is a windowed aggregate of recorded samples.
type Metrics struct {
	AvgLatencySeconds       float64           `json:"avg_latency_seconds"`
	VerificationFailureRate float64           `json:"verification_failure_rate"`
	Satisfaction            float64           `json:"satisfaction"`
	ErrorRate               float64           `json:"error_rate"`
	SampleCounts            map[EventKind]int `json:"sample_counts"`
	Window                  time.Duration     `json:"window"`
	TakenAt                 time.Time         `json:"taken_at"`
}

// Samples returns the number of samples of a kind in the snapshot.
func (m *Metrics) Samples(kind EventKind) int {
	if m == nil || m.SampleCounts == nil {
		return 0
	}
	return m.SampleCounts[kind]
}

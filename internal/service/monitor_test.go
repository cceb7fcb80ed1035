package service

import (
	"testing"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor(clock *fakeClock) *MonitorService {
	m := NewMonitorService(MonitorConfig{Window: time.Minute, VerificationSpan: 4})
	m.now = clock.Now
	return m
}

func TestMonitorService_Snapshot(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := newTestMonitor(clock)

	require.NoError(t, m.Record(domain.EventResponseLatency, 1))
	require.NoError(t, m.Record(domain.EventResponseLatency, 3))
	require.NoError(t, m.Record(domain.EventUserFeedback, 0.5))
	require.NoError(t, m.Record(domain.EventUserFeedback, 1))
	require.NoError(t, m.Record(domain.EventError, 42))
	for _, v := range []float64{0, 0, 1, 1, 1, 0} {
		require.NoError(t, m.Record(domain.EventVerification, v))
	}

	snap := m.Snapshot()
	assert.InDelta(t, 2.0, snap.AvgLatencySeconds, 1e-9)
	assert.InDelta(t, 0.75, snap.Satisfaction, 1e-9)
	assert.InDelta(t, 1.0/3, snap.ErrorRate, 1e-9, "one failed utterance out of three")
	assert.InDelta(t, 0.25, snap.VerificationFailureRate, 1e-9, "only the last four attempts count")
	assert.Equal(t, 6, snap.Samples(domain.EventVerification))
	assert.Equal(t, time.Minute, snap.Window)
}

func TestMonitorService_ErrorRateCountsEveryUtterance(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		errors    int
		want      float64
	}{
		{name: "no errors", successes: 4, want: 0},
		{name: "one in ten", successes: 9, errors: 1, want: 0.1},
		{name: "one in two", successes: 1, errors: 1, want: 0.5},
		{name: "only errors", errors: 3, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(&fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)})
			for i := 0; i < tt.successes; i++ {
				require.NoError(t, m.Record(domain.EventResponseLatency, 1))
			}
			for i := 0; i < tt.errors; i++ {
				require.NoError(t, m.Record(domain.EventError, 1))
			}
			assert.InDelta(t, tt.want, m.Snapshot().ErrorRate, 1e-9)
		})
	}
}

func TestMonitorService_PrunesOnRead(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := newTestMonitor(clock)

	require.NoError(t, m.Record(domain.EventResponseLatency, 10))
	clock.Advance(45 * time.Second)
	require.NoError(t, m.Record(domain.EventResponseLatency, 2))

	assert.InDelta(t, 6.0, m.Snapshot().AvgLatencySeconds, 1e-9)

	clock.Advance(30 * time.Second)
	snap := m.Snapshot()
	assert.InDelta(t, 2.0, snap.AvgLatencySeconds, 1e-9)
	assert.Equal(t, 1, snap.Samples(domain.EventResponseLatency))

	clock.Advance(time.Hour)
	snap = m.Snapshot()
	assert.Equal(t, 0.0, snap.AvgLatencySeconds)
	assert.Equal(t, 0, snap.Samples(domain.EventResponseLatency))
}

func TestMonitorService_RecordValidation(t *testing.T) {
	m := NewMonitorService(MonitorConfig{})

	assert.ErrorIs(t, m.Record("bogus", 1), ErrInvalidEventKind)
	assert.ErrorIs(t, m.Record(domain.EventResponseLatency, -1), domain.ErrValidation)
	assert.ErrorIs(t, m.Record(domain.EventUserFeedback, 1.5), ErrInvalidSample)
	assert.NoError(t, m.Record(domain.EventVerification, 1))
}

func TestMonitorService_BoundedBuffer(t *testing.T) {
	m := NewMonitorService(MonitorConfig{MaxSamples: 3})
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Record(domain.EventUserFeedback, float64(i%2)))
	}
	assert.Equal(t, 3, m.Snapshot().Samples(domain.EventUserFeedback))
}

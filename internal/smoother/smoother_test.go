package smoother

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAtTracksSteadyRate(t *testing.T) {
	s := New(Config{History: 5 * time.Second, MinSamples: 3})

	start := time.Unix(1_700_000_000, 0)
	rate := time.Second // one second of frame-time per second of wall-time

	for i := 0; i < 20; i++ {
		wall := start.Add(time.Duration(i) * time.Second)
		ft := time.Duration(i) * rate
		s.Put(wall, ft)
	}

	now := start.Add(19 * time.Second)
	got := s.At(now)
	want := 19 * time.Second
	assert.InDelta(t, want.Seconds(), got.Seconds(), 0.05)
}

func TestPauseResetsFit(t *testing.T) {
	s := New(DefaultConfig())
	start := time.Unix(1_700_000_000, 0)
	for i := 0; i < 10; i++ {
		s.Put(start.Add(time.Duration(i)*100*time.Millisecond), time.Duration(i)*100*time.Millisecond)
	}
	assert.True(t, s.haveFit)

	s.Pause()
	assert.False(t, s.haveFit)
	assert.Empty(t, s.samples)

	// First sample after resume should not immediately produce a fit.
	s.Put(start.Add(100*time.Second), 0)
	assert.False(t, s.haveFit)
}

func TestTranslateFallsBackWithoutFit(t *testing.T) {
	s := New(DefaultConfig())
	d := s.Translate(time.Now(), 30*time.Millisecond)
	assert.Equal(t, 30*time.Millisecond, d)
}

func TestLatencyQueryNeverNegative(t *testing.T) {
	s := New(Config{History: 5 * time.Second, MinSamples: 2})
	start := time.Unix(1_700_000_000, 0)
	s.Put(start, 0)
	s.Put(start.Add(time.Second), time.Second)

	// A read count ahead of the fit's prediction should clamp at 0,
	// mirroring max(0, smoother.at(now) - bytes_to_usec(read_count)).
	readCountTime := 5 * time.Second
	at := s.At(start.Add(time.Second))
	latency := at - readCountTime
	if latency < 0 {
		latency = 0
	}
	assert.GreaterOrEqual(t, latency, time.Duration(0))
}

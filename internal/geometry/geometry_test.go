package geometry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/n5dsp/tschedcap/internal/driverapi"
)

func baseGeometry() Geometry {
	spec := driverapi.SampleSpec{Format: driverapi.FormatS16LE, RateHz: 44100, NumChannels: 2}
	g := Geometry{
		Spec:         spec,
		FragmentSize: 4096,
		NFragments:   4,
	}
	g.UpdateForLatency(50*time.Millisecond, 0)
	return g
}

func TestInvariantHoldsAfterConstruction(t *testing.T) {
	g := baseGeometry()
	assert.NoError(t, g.Validate())
}

func TestInvariantHoldsAfterEveryLatencyUpdate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fragSize := rapid.IntRange(256, 16384).Draw(t, "fragSize")
		nFrag := rapid.IntRange(2, 16).Draw(t, "nFrag")
		rate := rapid.SampledFrom([]int{8000, 16000, 44100, 48000}).Draw(t, "rate")
		chans := rapid.SampledFrom([]int{1, 2}).Draw(t, "chans")
		latencyMs := rapid.IntRange(0, 4000).Draw(t, "latencyMs")
		sleepFrames := rapid.IntRange(0, 4096).Draw(t, "sleepFrames")

		spec := driverapi.SampleSpec{Format: driverapi.FormatS16LE, RateHz: rate, NumChannels: chans}
		g := Geometry{Spec: spec, FragmentSize: fragSize, NFragments: nFrag}
		g.TschedWatermark = g.Usable() / 2 // arbitrary starting point inside range

		g.UpdateForLatency(time.Duration(latencyMs)*time.Millisecond, sleepFrames)

		require.NoError(t, g.Validate())
	})
}

func TestBumpRequestedLatencyBelowFrame(t *testing.T) {
	spec := driverapi.SampleSpec{Format: driverapi.FormatS16LE, RateHz: 44100, NumChannels: 2}
	frameDur := BytesToDuration(spec.FrameSize(), spec)

	got := BumpRequestedLatencyBelowFrame(0, spec)
	assert.Equal(t, frameDur, got)

	got = BumpRequestedLatencyBelowFrame(time.Hour, spec)
	assert.Equal(t, time.Hour, got)
}

func TestZeroRequestedLatencyCollapsesHwbufUnused(t *testing.T) {
	g := baseGeometry()
	sw := g.UpdateForLatency(0, 0)
	assert.Equal(t, 0, sw.HwbufUnused)
	assert.Equal(t, 1, sw.AvailMin)
}

// Package geometry computes and validates the byte-level buffer geometry
// described in SPEC_FULL.md §3: fragment sizing, the tsched watermark band,
// and the software-parameters update of §4.9.
//
// Buffer sizing follows the same shape as the teacher's audio.go
// calcbufsize/roundup1k: compute from rate/channels/width, then clamp to a
// sane range rather than trusting the raw arithmetic.
package geometry

import (
	"fmt"
	"time"

	"github.com/n5dsp/tschedcap/internal/driverapi"
)

// Defaults per SPEC_FULL.md §6.
const (
	DefaultTschedBufferTime      = 2 * time.Second
	DefaultTschedWatermarkTime   = 20 * time.Millisecond
	DefaultWatermarkStepTime     = 10 * time.Millisecond
	DefaultMinSleepTime          = 10 * time.Millisecond
	DefaultMinWakeupTime         = 4 * time.Millisecond
)

// Geometry is SPEC_FULL.md §3's BufferGeometry, in bytes.
type Geometry struct {
	Spec           driverapi.SampleSpec
	FragmentSize   int // bytes per driver period
	NFragments     int
	HwbufUnused    int // bytes of hardware buffer kept deliberately empty
	TschedWatermark int // byte threshold above which the engine must wake
	MinSleep       int
	MinWakeup      int
	WatermarkStep  int
}

// HwbufSize returns fragment_size * n_fragments.
func (g Geometry) HwbufSize() int { return g.FragmentSize * g.NFragments }

// Usable returns the hardware buffer capacity minus the reserved unused
// region: (hwbuf_size - hwbuf_unused).
func (g Geometry) Usable() int { return g.HwbufSize() - g.HwbufUnused }

// alignDown rounds n down to a multiple of frameSize, never below
// frameSize itself.
func alignDown(n, frameSize int) int {
	if frameSize <= 0 {
		return n
	}
	aligned := (n / frameSize) * frameSize
	if aligned < frameSize {
		return frameSize
	}
	return aligned
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Validate checks the three invariants of SPEC_FULL.md §3.
func (g Geometry) Validate() error {
	fs := g.Spec.FrameSize()
	half := g.Usable() / 2

	if !(fs <= g.MinSleep && g.MinSleep <= half) {
		return fmt.Errorf("geometry: min_sleep %d out of range [%d, %d]", g.MinSleep, fs, half)
	}
	if !(fs <= g.MinWakeup && g.MinWakeup <= half) {
		return fmt.Errorf("geometry: min_wakeup %d out of range [%d, %d]", g.MinWakeup, fs, half)
	}
	upper := g.Usable() - g.MinSleep
	if !(g.MinWakeup <= g.TschedWatermark && g.TschedWatermark <= upper) {
		return fmt.Errorf("geometry: tsched_watermark %d out of range [%d, %d]", g.TschedWatermark, g.MinWakeup, upper)
	}
	return nil
}

// BytesToDuration converts a byte count to a time duration under spec.
func BytesToDuration(bytes int, spec driverapi.SampleSpec) time.Duration {
	if spec.RateHz <= 0 || spec.FrameSize() <= 0 {
		return 0
	}
	frames := bytes / spec.FrameSize()
	return time.Duration(frames) * time.Second / time.Duration(spec.RateHz)
}

// DurationToBytes converts a time duration to a frame-aligned byte count.
func DurationToBytes(d time.Duration, spec driverapi.SampleSpec) int {
	if d <= 0 {
		return 0
	}
	frames := int(d.Seconds() * float64(spec.RateHz))
	return frames * spec.FrameSize()
}

// SoftwareParams is the derived result of §4.9's software-parameters
// update: the values actually pushed to the driver via PushSoftwareParams.
type SoftwareParams struct {
	HwbufUnused int
	AvailMin    int
}

// UpdateForLatency recomputes hwbuf_unused, min_sleep, min_wakeup, and
// tsched_watermark for a requested downstream latency, per §4.9. A zero
// requestedLatency means "no latency requested": hwbuf_unused collapses to
// zero and avail_min to 1, and the watermark band is still re-clamped.
// sleepUsecFrames is the frame-equivalent of the most recently
// computed wakeup sleep budget (§4.3), used to derive avail_min.
func (g *Geometry) UpdateForLatency(requestedLatency time.Duration, sleepUsecFrames int) SoftwareParams {
	fs := g.Spec.FrameSize()

	g.HwbufUnused = 0
	if requestedLatency > 0 {
		b := DurationToBytes(requestedLatency, g.Spec)
		if b < fs {
			b = fs
		}
		unused := g.HwbufSize() - b
		if unused < 0 {
			unused = 0
		}
		g.HwbufUnused = unused
	}

	half := g.Usable() / 2
	g.MinSleep = clamp(alignDown(DurationToBytes(DefaultMinSleepTime, g.Spec), fs), fs, half)
	g.MinWakeup = clamp(alignDown(DurationToBytes(DefaultMinWakeupTime, g.Spec), fs), fs, half)
	upper := g.Usable() - g.MinSleep
	g.TschedWatermark = clamp(g.TschedWatermark, g.MinWakeup, upper)

	if requestedLatency <= 0 {
		return SoftwareParams{HwbufUnused: 0, AvailMin: 1}
	}
	availMin := 1 + sleepUsecFrames
	return SoftwareParams{HwbufUnused: g.HwbufUnused, AvailMin: availMin}
}

// BumpRequestedLatencyBelowFrame implements the boundary behavior of §8:
// a requested latency below frame_size is bumped up to frame_size.
func BumpRequestedLatencyBelowFrame(requested time.Duration, spec driverapi.SampleSpec) time.Duration {
	frameDur := BytesToDuration(spec.FrameSize(), spec)
	if requested < frameDur {
		return frameDur
	}
	return requested
}

// Package volume implements the supplemented mixer conversion of
// SPEC_FULL.md §4.10: the round-trip between a normalized software volume
// in [0.0, 1.0] and a hardware driver's integer control range.
//
// Kept deliberately narrow per spec.md's Non-goal on user-visible volume
// curves — this is the conversion math only, not a mixer UI or a curve
// library. No teacher file implements this (Dire Wolf has no mixer); the
// shape follows the round-trip law spec.md §8 names directly.
package volume

import "math"

// HardwareRange is a driver-reported integer control range.
type HardwareRange struct {
	Min, Max int
}

// Span returns Max - Min.
func (r HardwareRange) Span() int { return r.Max - r.Min }

// SupportsHardwareControl reports whether the range is wide enough to
// bother with a hardware volume control at all, per the §8 boundary
// behavior: ranges with max-min < 3 decline the hardware path in favor of
// a software-only volume control.
func (r HardwareRange) SupportsHardwareControl() bool { return r.Span() >= 3 }

// ToALSAVolume maps a normalized volume v in [0.0, 1.0] onto the hardware's
// integer range, rounding to the nearest step.
func ToALSAVolume(v float64, hw HardwareRange) int {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	raw := float64(hw.Min) + v*float64(hw.Span())
	return int(math.Round(raw))
}

// FromALSAVolume maps a hardware integer value back onto the normalized
// [0.0, 1.0] volume domain.
func FromALSAVolume(raw int, hw HardwareRange) float64 {
	if hw.Span() <= 0 {
		return 0
	}
	v := float64(raw-hw.Min) / float64(hw.Span())
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}

// roundTripStep is one quantization step in the normalized domain for a
// given hardware range — the granularity the round-trip law in §8 allows.
func roundTripStep(hw HardwareRange) float64 {
	if hw.Span() <= 0 {
		return 1
	}
	return 1.0 / float64(hw.Span())
}

// RoundTrips reports whether FromALSAVolume(ToALSAVolume(v, hw), hw) == v
// modulo rounding to one step, the property named in §8. Exposed for tests
// and for callers that want to validate a configured hardware range before
// trusting the hardware path.
func RoundTrips(v float64, hw HardwareRange) bool {
	got := FromALSAVolume(ToALSAVolume(v, hw), hw)
	return math.Abs(got-v) <= roundTripStep(hw)+1e-9
}

package engine

import (
	"time"

	"github.com/n5dsp/tschedcap/internal/smoother"
)

// WakeupBudget is the sleep/process split computed by SPEC_FULL.md §4.3.
type WakeupBudget struct {
	Sleep   time.Duration
	Process time.Duration
}

// ComputeWakeupBudget derives the sleep/process split from the requested
// downstream latency L and the current watermark W, both already expressed
// as durations under the negotiated sample spec.
func ComputeWakeupBudget(requestedLatency, watermark time.Duration) WakeupBudget {
	wm := watermark
	if wm > requestedLatency {
		wm = requestedLatency / 2
	}
	return WakeupBudget{
		Sleep:   requestedLatency - wm,
		Process: wm,
	}
}

// ArmWakeup picks the earlier of the soundcard and system clock domains
// for the next relative wakeup timer, per §4.3's "never trusting one
// domain alone".
func ArmWakeup(now time.Time, sleep time.Duration, sm *smoother.Smoother) time.Duration {
	translated := sm.Translate(now, sleep)
	if translated < sleep {
		return translated
	}
	return sleep
}

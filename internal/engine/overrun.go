package engine

// OverrunAction reports which remedy the overrun adjuster applied, per
// SPEC_FULL.md §4.4's three-step escalation.
type OverrunAction int

const (
	OverrunWatermarkRaised OverrunAction = iota
	OverrunLatencyRaised
	OverrunSaturated
)

// adjustForOverrun implements §4.4. Only called when timer scheduling is
// enabled; the caller is responsible for that gate (§4.4's last line).
func (e *Engine) adjustForOverrun() OverrunAction {
	g := &e.geometry

	before := g.TschedWatermark
	doubled := before * 2
	capped := before + e.watermarkStepBytes
	next := doubled
	if capped < next {
		next = capped
	}
	upper := g.Usable() - g.MinSleep
	if next < g.MinWakeup {
		next = g.MinWakeup
	}
	if next > upper {
		next = upper
	}

	if next != before {
		g.TschedWatermark = next
		return OverrunWatermarkRaised
	}

	beforeLat := e.minLatency
	doubledLat := beforeLat * 2
	cappedLat := beforeLat + e.watermarkStepDuration
	nextLat := doubledLat
	if cappedLat < nextLat {
		nextLat = cappedLat
	}
	if nextLat > e.cfg.MaxLatency {
		nextLat = e.cfg.MaxLatency
	}

	if nextLat != beforeLat {
		e.minLatency = nextLat
		e.sink.SetLatencyRange(e.minLatency, e.cfg.MaxLatency)
		return OverrunLatencyRaised
	}

	return OverrunSaturated
}

// handleOverrun logs the user-visible escalation ladder of §7 and, when
// timer scheduling is enabled, runs the adjuster.
func (e *Engine) handleOverrun() {
	if !e.overrunWarned {
		e.overrunWarned = true
		e.logger.Infof("Overrun: capture buffer exceeded usable capacity")
	} else {
		e.logger.Debugf("Overrun: capture buffer exceeded usable capacity")
	}

	if !e.cfg.Tsched {
		return
	}

	switch e.adjustForOverrun() {
	case OverrunWatermarkRaised:
		e.logger.Infof("overrun: tsched watermark raised to %d bytes", e.geometry.TschedWatermark)
	case OverrunLatencyRaised:
		e.logger.Infof("overrun: minimum latency raised to %s", e.minLatency)
	case OverrunSaturated:
		e.logger.Debugf("overrun: fully saturated, operating at worst achievable quality")
	}
}

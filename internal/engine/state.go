package engine

import (
	"fmt"
	"time"

	"github.com/n5dsp/tschedcap/internal/pollcore"
	"github.com/n5dsp/tschedcap/internal/volume"
)

// handleMessage dispatches one inbound message (§4.8's state controller,
// plus shutdown, the synchronous latency query, and volume updates). exit reports whether the capture
// loop should return normally (MsgShutdown).
func (e *Engine) handleMessage(m Message) (exit bool, err error) {
	switch m.Kind {
	case MsgShutdown:
		return true, nil

	case MsgGetLatency:
		if m.Reply != nil {
			m.Reply <- e.Latency(time.Now())
		}
		return false, nil

	case MsgSetVolume:
		e.lastVolume = m.Volume
		return false, nil

	case MsgSetState:
		return false, e.transitionTo(m.State)

	default:
		return false, nil
	}
}

func (e *Engine) transitionTo(want State) error {
	switch want {
	case StateSuspended:
		return e.suspend()
	case StateRunning, StateIdle:
		return e.open(want)
	case StateUnlinked, StateInvalid, StateInit:
		e.state = want
		return nil
	default:
		return fmt.Errorf("engine: unknown target state %v", want)
	}
}

func (e *Engine) suspend() error {
	if !e.state.Opened() {
		return fmt.Errorf("engine: cannot suspend from %v", e.state)
	}

	e.smoo.Pause()
	if err := e.driver.Close(); err != nil {
		e.logger.Warnf("driver: close on suspend: %v", err)
	}
	e.stopWatcher()
	if e.cfg.ReservationHook != nil {
		if err := e.cfg.ReservationHook.Release(); err != nil {
			e.logger.Warnf("reservation: release on suspend: %v", err)
		}
	}
	e.state = StateSuspended
	return nil
}

// open handles INIT->{RUNNING,IDLE} and SUSPENDED->{RUNNING,IDLE} per §4.8.
func (e *Engine) open(want State) error {
	switch e.state {
	case StateInit:
		if err := e.openPollAndStart(); err != nil {
			return err
		}
		e.state = want
		return nil

	case StateSuspended:
		if e.cfg.ReservationHook != nil {
			if err := e.cfg.ReservationHook.Acquire(); err != nil {
				return fmt.Errorf("engine: reservation: %w", err)
			}
		}

		geom, err := e.driver.Open(e.spec, e.cfg.Want)
		if err != nil {
			return fmt.Errorf("engine: resume open: %w", err)
		}
		if !geom.Equal(e.negotiated) {
			e.state = StateInvalid
			return fmt.Errorf("engine: resume geometry mismatch: got %+v, want %+v", geom, e.negotiated)
		}

		sp := e.geometry.UpdateForLatency(e.effectiveLatency(), e.lastSleepFrames)
		if err := e.driver.PushSoftwareParams(sp.AvailMin, sp.HwbufUnused); err != nil {
			return fmt.Errorf("engine: resume sw params: %w", err)
		}

		if err := e.openPollAndStart(); err != nil {
			return err
		}

		e.reapplyVolume()

		e.state = want
		return nil

	default:
		e.state = want
		return nil
	}
}

// reapplyVolume resolves the open question in SPEC_FULL.md §9: re-apply
// the last known virtual volume on resume rather than leaving it a FIXME.
func (e *Engine) reapplyVolume() {
	if e.cfg.VolumeApplier == nil {
		return
	}
	v := e.lastVolume
	if e.cfg.HardwareVolume.SupportsHardwareControl() {
		raw := volume.ToALSAVolume(v, e.cfg.HardwareVolume)
		v = volume.FromALSAVolume(raw, e.cfg.HardwareVolume)
	}
	if err := e.cfg.VolumeApplier.ApplyVolume(v); err != nil {
		e.logger.Warnf("volume: reapply on resume failed: %v", err)
	}
}

func (e *Engine) openPollAndStart() error {
	descs, err := e.driver.PollDescriptors()
	if err != nil {
		return fmt.Errorf("engine: poll descriptors: %w", err)
	}
	watcher, err := pollcore.NewWatcher(descs)
	if err != nil {
		return fmt.Errorf("engine: poll watcher: %w", err)
	}
	e.watcher = watcher
	return e.driver.Start()
}

func (e *Engine) stopWatcher() {
	if e.watcher != nil {
		_ = e.watcher.Close()
		e.watcher = nil
	}
}

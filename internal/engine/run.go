package engine

import (
	"fmt"
	"time"

	"github.com/n5dsp/tschedcap/internal/driverapi"
	"github.com/n5dsp/tschedcap/internal/geometry"
	"github.com/n5dsp/tschedcap/internal/pollcore"
)

// Run is the capture thread's main loop, SPEC_FULL.md §4.5. It returns nil
// on a clean shutdown (a MsgShutdown message observed) and a non-nil error
// on a fatal driver condition, after completing the fatal-exit drain
// sequence described there.
func (e *Engine) Run() error {
	polled := false

	for {
		var result pathResult
		if e.state.Opened() {
			if e.cfg.Mmap {
				result = e.mmapRead(polled)
			} else {
				result = e.unixRead(polled)
			}
			if result.Code < 0 {
				return e.fatalExit()
			}
			if result.Code > 0 {
				e.feedSmoother()
			}
			if result.Sleep > 0 {
				e.lastSleepFrames = geometry.DurationToBytes(result.Sleep, e.spec) / e.spec.FrameSize()
			}
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if e.state.Opened() && e.cfg.Tsched {
			sleep := result.Sleep
			if sleep < 0 {
				sleep = 0
			}
			armed := ArmWakeup(time.Now(), sleep, e.smoo)
			if armed < 0 {
				armed = 0
			}
			timer = time.NewTimer(armed)
			timerC = timer.C
		}

		var watchC <-chan []pollcore.FDEvent
		if e.watcher != nil {
			watchC = e.watcher.Events()
		}

		select {
		case <-timerC:
			polled = false

		case batch, ok := <-watchC:
			if !ok {
				stopTimer(timer)
				return e.fatalExit()
			}
			if classifyPollInOnly(batch) {
				polled = true
			} else {
				polled = false
				if err := e.recoverAndStart(fmt.Errorf("engine: non-POLLIN revents observed")); err != nil {
					stopTimer(timer)
					return e.fatalExit()
				}
			}

		case m := <-e.queue.recv():
			polled = false
			exit, err := e.handleMessage(m)
			if err != nil {
				e.logger.Warnf("engine: %v", err)
				if e.state == StateInvalid {
					stopTimer(timer)
					return e.fatalExit()
				}
			}
			if exit {
				stopTimer(timer)
				return nil
			}
		}

		stopTimer(timer)
	}
}

func stopTimer(t *time.Timer) {
	if t == nil {
		return
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// classifyPollInOnly reports whether every descriptor in batch reported
// POLLIN and nothing else, per §4.5 step 5.
func classifyPollInOnly(batch []pollcore.FDEvent) bool {
	if len(batch) == 0 {
		return false
	}
	for _, ev := range batch {
		if ev.Revents&^driverapi.PollIn != 0 {
			return false
		}
	}
	return true
}

// feedSmoother implements §4.2's per-iteration usage: derive the current
// position from read_count plus buffered-but-undelivered frames, and feed
// (now, position_time) to the smoother.
func (e *Engine) feedSmoother() {
	delayFrames, err := e.driver.Delay()
	if err != nil {
		delayFrames = 0
	}
	positionBytes := int(e.readCount) + delayFrames*e.spec.FrameSize()
	positionTime := e.timeFromBytes(positionBytes)

	now := e.driver.StatusTimestamp()
	if now.IsZero() {
		now = time.Now()
	}
	e.smoo.Put(now, positionTime)
}

// fatalExit implements the fatal-exit drain sequence of §4.5/§5: post an
// unload request, then drain the inbound queue until SHUTDOWN is observed
// so the sender's sends never deadlock.
func (e *Engine) fatalExit() error {
	select {
	case e.unloadCh <- struct{}{}:
	default:
	}

	for m := range e.queue.recv() {
		if m.Kind == MsgGetLatency && m.Reply != nil {
			m.Reply <- 0
		}
		if m.Kind == MsgShutdown {
			break
		}
	}
	return fmt.Errorf("engine: fatal driver error")
}

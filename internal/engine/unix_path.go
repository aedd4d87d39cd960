package engine

import (
	"time"

	"github.com/n5dsp/tschedcap/internal/driverapi"
)

// unixRead implements the copy-based capture path of §4.7: same control
// structure as mmapRead, but each inner iteration performs a blocking read
// into a pooled chunk instead of borrowing a driver-mapped region.
func (e *Engine) unixRead(polled bool) pathResult {
	anyRead := false
	var sleep time.Duration

	for i := 0; i < maxSubIterations; i++ {
		avail, err := e.driver.Avail()
		if err != nil {
			if driverapi.IsRecoverable(err) {
				if rerr := e.recoverAndStart(err); rerr != nil {
					return pathResult{Code: -1}
				}
				continue
			}
			return pathResult{Code: -1}
		}

		nBytes := avail * e.spec.FrameSize()
		usable := e.geometry.Usable()
		var leftToRecord int
		if nBytes <= usable {
			leftToRecord = usable - nBytes
		} else {
			e.handleOverrun()
		}

		budget := ComputeWakeupBudget(e.effectiveLatency(), e.timeFromBytes(e.geometry.TschedWatermark))
		leftDur := e.timeFromBytes(leftToRecord)

		// Only the first sub-iteration of a wakeup can be "too early" to
		// bother reading; polled resets to false on every pass through Run,
		// so without the i==0 guard this would re-trigger on later
		// sub-iterations of the same wakeup too.
		if i == 0 && !polled && leftDur > budget.Process+budget.Sleep/2 {
			return pathResult{Code: boolToCode(anyRead), Sleep: leftDur - budget.Process}
		}

		if nBytes == 0 {
			if polled {
				e.warnSpuriousPollIn()
			}
			sleep = budget.Sleep
			break
		}

		frameSize := e.spec.FrameSize()
		frames := nBytes / frameSize
		if max := e.pool.MaxBlockSize() / frameSize; max > 0 && frames > max {
			frames = max
		}
		if frames == 0 {
			break
		}

		c := e.pool.Get(frames * frameSize)
		n, rerr := e.driver.Read(c.Data, frames)
		if rerr != nil {
			c.Unref()
			if driverapi.IsRecoverable(rerr) {
				if err2 := e.recoverAndStart(rerr); err2 != nil {
					return pathResult{Code: -1}
				}
				continue
			}
			return pathResult{Code: -1}
		}

		got := n * frameSize
		c.Data = c.Data[:got]
		e.sink.Post(c)
		c.Unref()
		e.readCount += int64(got)
		anyRead = true

		if e.stats != nil {
			e.stats.Observe(n)
		}

		sleep = leftDur - budget.Process
		polled = false
	}

	return pathResult{Code: boolToCode(anyRead), Sleep: sleep}
}

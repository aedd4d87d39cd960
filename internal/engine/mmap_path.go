package engine

import (
	"fmt"
	"time"

	"github.com/n5dsp/tschedcap/internal/chunk"
	"github.com/n5dsp/tschedcap/internal/driverapi"
)

// maxSubIterations bounds a single wake's work, per §4.6/§4.7: "prevents
// unbounded occupation of the thread".
const maxSubIterations = 10

// mmapRead implements the zero-copy capture path of §4.6.
func (e *Engine) mmapRead(polled bool) pathResult {
	anyCommit := false
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
			return pathResult{Code: boolToCode(anyCommit), Sleep: leftDur - budget.Process}
		}

		if nBytes == 0 {
			if polled {
				e.warnSpuriousPollIn()
			}
			sleep = budget.Sleep
			break
		}

		committed, ferr := e.drainMmap(nBytes)
		if ferr != nil {
			return pathResult{Code: -1}
		}
		if committed {
			anyCommit = true
		}

		sleep = leftDur - budget.Process
		polled = false
	}

	return pathResult{Code: boolToCode(anyCommit), Sleep: sleep}
}

// drainMmap walks mmap_begin/mmap_commit until nBytes is exhausted,
// capping each grant by the memory pool's maximum block size.
func (e *Engine) drainMmap(nBytes int) (bool, error) {
	committed := false
	remaining := nBytes
	frameSize := e.spec.FrameSize()

	for remaining > 0 {
		frames := remaining / frameSize
		if max := e.pool.MaxBlockSize() / frameSize; max > 0 && frames > max {
			frames = max
		}
		if frames == 0 {
			break
		}

		region, err := e.driver.MmapBegin(frames)
		if err != nil {
			if driverapi.IsRecoverable(err) {
				if rerr := e.recoverAndStart(err); rerr != nil {
					return committed, rerr
				}
				continue
			}
			return committed, err
		}
		if region.Frames == 0 {
			break
		}
		if region.ByteOffset%region.FrameStride != 0 || region.FrameStride != frameSize {
			return committed, fmt.Errorf("engine: mmap region misaligned: offset=%d stride=%d frame_size=%d", region.ByteOffset, region.FrameStride, frameSize)
		}

		view := region.Base[region.ByteOffset : region.ByteOffset+region.Frames*region.FrameStride]
		c := chunk.NewFixed(view)
		e.sink.Post(c)
		c.Unref()

		committedFrames, err := e.driver.MmapCommit(region.ByteOffset, region.Frames)
		if err != nil {
			return committed, err
		}

		got := committedFrames * frameSize
		e.readCount += int64(got)
		remaining -= got
		committed = true

		if e.stats != nil {
			e.stats.Observe(committedFrames)
		}

		if committedFrames == 0 {
			break
		}
	}

	return committed, nil
}

// Package pollcore implements the real-time poll core of SPEC_FULL.md §2
// and §4.5: a single wait primitive that blends a relative timer with an
// externally supplied set of file descriptors and an inbound message
// queue, returning on whichever is ready first.
//
// The fd side is grounded on golang.org/x/sys/unix, the way the teacher's
// src/cm108.go and src/ptt.go use it for raw ioctl/GPIO access — here for
// unix.Poll and a self-pipe used to cancel a blocked poll from another
// goroutine, the standard Go idiom for interrupting a syscall-level wait.
// The merge with a timer and a message channel is done with a plain Go
// select in the caller (internal/engine), which is the idiomatic
// translation of "blend a timer, fds, and a queue" in a language with
// first-class channels.
package pollcore

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/n5dsp/tschedcap/internal/driverapi"
)

// FDEvent reports the revents observed for one watched descriptor.
type FDEvent struct {
	Fd      int
	Revents driverapi.PollEvents
}

// Watcher polls a fixed set of descriptors on a dedicated goroutine and
// publishes readiness batches on a channel, cancellable via a self-pipe.
type Watcher struct {
	events chan []FDEvent
	errc   chan error

	mu        sync.Mutex
	cancelR   int
	cancelW   int
	running   bool
	closeOnce sync.Once
}

// NewWatcher starts watching fds. The returned Watcher must be closed with
// Close to release the self-pipe and stop its goroutine.
func NewWatcher(fds []driverapi.PollDescriptor) (*Watcher, error) {
	r, w, err := pipe2NonblockRead()
	if err != nil {
		return nil, fmt.Errorf("pollcore: self-pipe: %w", err)
	}

	w2 := &Watcher{
		events:  make(chan []FDEvent, 1),
		errc:    make(chan error, 1),
		cancelR: r,
		cancelW: w,
		running: true,
	}
	go w2.loop(fds)
	return w2, nil
}

func pipe2NonblockRead() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func toUnixEvents(e driverapi.PollEvents) int16 {
	var out int16
	if e&driverapi.PollIn != 0 {
		out |= unix.POLLIN
	}
	if e&driverapi.PollOut != 0 {
		out |= unix.POLLOUT
	}
	if e&driverapi.PollErr != 0 {
		out |= unix.POLLERR
	}
	if e&driverapi.PollHup != 0 {
		out |= unix.POLLHUP
	}
	return out
}

func fromUnixRevents(r int16) driverapi.PollEvents {
	var out driverapi.PollEvents
	if r&unix.POLLIN != 0 {
		out |= driverapi.PollIn
	}
	if r&unix.POLLOUT != 0 {
		out |= driverapi.PollOut
	}
	if r&unix.POLLERR != 0 {
		out |= driverapi.PollErr
	}
	if r&unix.POLLHUP != 0 {
		out |= driverapi.PollHup
	}
	return out
}

func (w *Watcher) loop(fds []driverapi.PollDescriptor) {
	defer close(w.events)
	defer func() {
		w.mu.Lock()
		w.running = false
		_ = unix.Close(w.cancelR)
		_ = unix.Close(w.cancelW)
		w.mu.Unlock()
	}()

	pfds := make([]unix.PollFd, 0, len(fds)+1)
	pfds = append(pfds, unix.PollFd{Fd: int32(w.cancelR), Events: unix.POLLIN})
	for _, d := range fds {
		pfds = append(pfds, unix.PollFd{Fd: int32(d.Fd), Events: toUnixEvents(d.Events)})
	}

	for {
		pfds[0].Revents = 0
		for i := 1; i < len(pfds); i++ {
			pfds[i].Revents = 0
		}

		n, err := unix.Poll(pfds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			select {
			case w.errc <- err:
			default:
			}
			return
		}
		if n == 0 {
			continue
		}

		if pfds[0].Revents != 0 {
			// Cancellation requested.
			return
		}

		var batch []FDEvent
		for i := 1; i < len(pfds); i++ {
			if pfds[i].Revents == 0 {
				continue
			}
			batch = append(batch, FDEvent{Fd: int(pfds[i].Fd), Revents: fromUnixRevents(pfds[i].Revents)})
		}
		if len(batch) == 0 {
			continue
		}

		select {
		case w.events <- batch:
		default:
			// Previous batch not yet consumed; drop this one rather than
			// block the poll loop. The caller will see the next batch
			// (or re-check Avail itself, which is always safe).
		}
	}
}

// Events returns the channel of readiness batches. It is closed when the
// watcher stops, either via Close or a fatal poll error (check Err after
// the channel closes).
func (w *Watcher) Events() <-chan []FDEvent { return w.events }

// Err returns the fatal error that stopped the watcher, if any.
func (w *Watcher) Err() error {
	select {
	case err := <-w.errc:
		return err
	default:
		return nil
	}
}

// Close cancels the watcher's blocked poll and releases its self-pipe.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if !w.running {
			return
		}
		w.running = false
		_, _ = unix.Write(w.cancelW, []byte{0})
	})
	return nil
}

// Package eventloop implements the event-loop bridge contract of
// SPEC_FULL.md §6: a shim with no logic beyond bit-flag translation,
// exposing watch/timeout primitives to collaborators that live on the main
// thread (the mixer change notifier, a service-discovery wrapper) without
// giving them direct access to the capture engine's own poll core.
//
// Unlike internal/pollcore (which belongs to the capture goroutine and
// blends a timer, driver fds, and the message queue in one select), this
// bridge is main-thread-owned: it fans readiness out to arbitrary
// collaborator callbacks, each independently watching its own fd or timer,
// reusing pollcore.Watcher as the underlying primitive since the shape —
// "watch a set of fds, get batches of readiness back" — is identical.
package eventloop

import (
	"sync"
	"time"

	"github.com/n5dsp/tschedcap/internal/driverapi"
	"github.com/n5dsp/tschedcap/internal/pollcore"
)

// Events is the bitset over {INPUT, OUTPUT, ERROR, HANGUP} the bridge
// exposes to collaborators, independent of the underlying poll core's
// representation.
type Events uint8

const (
	Input Events = 1 << iota
	Output
	Error
	Hangup
)

func fromPollEvents(e driverapi.PollEvents) Events {
	var out Events
	if e&driverapi.PollIn != 0 {
		out |= Input
	}
	if e&driverapi.PollOut != 0 {
		out |= Output
	}
	if e&driverapi.PollErr != 0 {
		out |= Error
	}
	if e&driverapi.PollHup != 0 {
		out |= Hangup
	}
	return out
}

func toPollEvents(e Events) driverapi.PollEvents {
	var out driverapi.PollEvents
	if e&Input != 0 {
		out |= driverapi.PollIn
	}
	if e&Output != 0 {
		out |= driverapi.PollOut
	}
	if e&Error != 0 {
		out |= driverapi.PollErr
	}
	if e&Hangup != 0 {
		out |= driverapi.PollHup
	}
	return out
}

// WatchCallback is invoked on a ready fd with the observed events.
type WatchCallback func(w *Watch, events Events)

// TimeoutCallback is invoked when a timeout fires.
type TimeoutCallback func(t *Timeout)

// Loop is the main-thread event loop bridge. The zero value is not usable;
// construct with New and stop with Close.
type Loop struct {
	mu       sync.Mutex
	watches  map[int]*Watch
	timeouts map[int]*Timeout
	nextID   int
	watcher  *pollcore.Watcher
	done     chan struct{}
}

// Watch mirrors a single fd's main-loop registration.
type Watch struct {
	loop   *Loop
	id     int
	fd     int
	events Events
	cb     WatchCallback
	freed  bool
}

// Timeout mirrors a single relative-deadline registration.
type Timeout struct {
	loop  *Loop
	id    int
	timer *time.Timer
	cb    TimeoutCallback
	freed bool
}

// New creates an empty bridge.
func New() *Loop {
	return &Loop{
		watches:  make(map[int]*Watch),
		timeouts: make(map[int]*Timeout),
	}
}

// Close stops the bridge's internal watcher, if any.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopWatcherLocked()
}

// WatchNew registers fd for events and returns a handle; cb fires on an
// internal dispatch goroutine whenever the poll core reports activity.
func (l *Loop) WatchNew(fd int, events Events, cb WatchCallback) *Watch {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	w := &Watch{loop: l, id: l.nextID, fd: fd, events: events, cb: cb}
	l.watches[w.id] = w
	l.rebuildWatcherLocked()
	return w
}

// WatchUpdate changes the watched event set for an existing watch.
func (w *Watch) WatchUpdate(events Events) {
	w.loop.mu.Lock()
	defer w.loop.mu.Unlock()
	if w.freed {
		return
	}
	w.events = events
	w.loop.rebuildWatcherLocked()
}

// WatchGetEvents returns the events currently armed for this watch.
func (w *Watch) WatchGetEvents() Events {
	w.loop.mu.Lock()
	defer w.loop.mu.Unlock()
	return w.events
}

// WatchFree releases the watch's main-loop primitive.
func (w *Watch) WatchFree() {
	w.loop.mu.Lock()
	defer w.loop.mu.Unlock()
	if w.freed {
		return
	}
	w.freed = true
	delete(w.loop.watches, w.id)
	w.loop.rebuildWatcherLocked()
}

// TimeoutNew arms a one-shot callback at the given absolute time.
func (l *Loop) TimeoutNew(when time.Time, cb TimeoutCallback) *Timeout {
	l.mu.Lock()
	l.nextID++
	t := &Timeout{loop: l, id: l.nextID, cb: cb}
	l.timeouts[t.id] = t
	l.mu.Unlock()

	t.arm(time.Until(when))
	return t
}

func (t *Timeout) arm(d time.Duration) {
	t.timer = time.AfterFunc(d, func() {
		t.loop.mu.Lock()
		freed := t.freed
		t.loop.mu.Unlock()
		if !freed {
			t.cb(t)
		}
	})
}

// TimeoutUpdate reschedules the timeout to a new absolute time.
func (t *Timeout) TimeoutUpdate(when time.Time) {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	if t.freed {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.arm(time.Until(when))
}

// TimeoutFree cancels the timeout.
func (t *Timeout) TimeoutFree() {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	if t.freed {
		return
	}
	t.freed = true
	delete(t.loop.timeouts, t.id)
	if t.timer != nil {
		t.timer.Stop()
	}
}

// rebuildWatcherLocked restarts the underlying pollcore.Watcher with the
// current watch set and starts (or restarts) the dispatch goroutine.
// Caller holds l.mu.
func (l *Loop) rebuildWatcherLocked() {
	l.stopWatcherLocked()
	if len(l.watches) == 0 {
		return
	}

	descs := make([]driverapi.PollDescriptor, 0, len(l.watches))
	byFd := make(map[int]*Watch, len(l.watches))
	for _, w := range l.watches {
		descs = append(descs, driverapi.PollDescriptor{Fd: w.fd, Events: toPollEvents(w.events)})
		byFd[w.fd] = w
	}

	watcher, err := pollcore.NewWatcher(descs)
	if err != nil {
		return
	}
	l.watcher = watcher
	done := make(chan struct{})
	l.done = done
	go l.dispatch(watcher, byFd, done)
}

func (l *Loop) stopWatcherLocked() {
	if l.watcher != nil {
		_ = l.watcher.Close()
		l.watcher = nil
	}
}

func (l *Loop) dispatch(watcher *pollcore.Watcher, byFd map[int]*Watch, done chan struct{}) {
	defer close(done)
	for batch := range watcher.Events() {
		for _, ev := range batch {
			l.mu.Lock()
			w, ok := byFd[ev.Fd]
			l.mu.Unlock()
			if !ok || w.freed {
				continue
			}
			w.cb(w, fromPollEvents(ev.Revents))
		}
	}
}

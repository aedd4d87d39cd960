// Package engine implements the capture engine of SPEC_FULL.md §4: the
// capture goroutine, its two I/O paths, the timer budget calculator, the
// overrun adjuster, and the state controller — the largest component of
// the system, roughly mirroring the share of the teacher's own capture
// loop in src/audio.go before this port replaced its cgo ALSA calls with
// the driverapi.Driver contract.
package engine

import "time"

// State is the engine's lifecycle state, driven only by messages from the
// controlling goroutine (SPEC_FULL.md §3's EngineState).
type State int

const (
	StateInit State = iota
	StateRunning
	StateIdle
	StateSuspended
	StateUnlinked
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateIdle:
		return "IDLE"
	case StateSuspended:
		return "SUSPENDED"
	case StateUnlinked:
		return "UNLINKED"
	case StateInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// Opened reports whether the driver is expected to be open in this state.
func (s State) Opened() bool { return s == StateRunning || s == StateIdle }

// MessageKind distinguishes the message queue's payload kinds.
type MessageKind int

const (
	// MsgSetState requests a transition to Message.State.
	MsgSetState MessageKind = iota
	// MsgShutdown causes the poll core to return and the capture loop to
	// exit normally, per §5's cancellation/shutdown contract.
	MsgShutdown
	// MsgGetLatency is a synchronous latency query; the result is sent on
	// Message.Reply.
	MsgGetLatency
	// MsgSetVolume updates the last known virtual volume, re-applied on
	// the next resume from SUSPENDED.
	MsgSetVolume
)

// Message is one entry on the engine's inbound queue.
type Message struct {
	Kind   MessageKind
	State  State
	Volume float64
	Reply  chan<- time.Duration
}

// MessageQueue is the bounded, ordered channel messages travel over
// (§5: "Messages serialized by an ordered Go channel").
type MessageQueue struct {
	ch chan Message
}

// NewMessageQueue creates a queue with room for depth pending messages.
func NewMessageQueue(depth int) *MessageQueue {
	return &MessageQueue{ch: make(chan Message, depth)}
}

// Send enqueues m, blocking if the queue is full. Blocking here is
// intentional: the sender is the main thread and the queue is sized so
// that a full queue indicates the capture thread has stalled, not a normal
// operating condition.
func (q *MessageQueue) Send(m Message) { q.ch <- m }

// TrySend enqueues m without blocking, reporting whether it was accepted.
// Used by producers that must never block the caller (e.g. a udev
// notification callback).
func (q *MessageQueue) TrySend(m Message) bool {
	select {
	case q.ch <- m:
		return true
	default:
		return false
	}
}

func (q *MessageQueue) recv() <-chan Message { return q.ch }

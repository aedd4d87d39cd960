// Package downstream implements the downstream source contract of
// SPEC_FULL.md §6: the object the capture engine posts chunks to and
// queries/sets a requested latency range on.
//
// The design note on callback inversion (§9) asks for a capability
// interface passed at construction rather than function pointers attached
// at runtime; Sink is that interface, and ChannelSink is the one concrete
// implementation SPEC_FULL.md ships — a bounded channel suitable for the
// daemon's own diagnostics path and for engine tests, standing in for the
// real audio server's generic source object.
package downstream

import (
	"sync"
	"time"

	"github.com/n5dsp/tschedcap/internal/chunk"
)

// Sink is the downstream source object the engine posts captured chunks to
// and consults for latency-range bookkeeping.
type Sink interface {
	// Post appends chunk to the outbound stream. Fire-and-forget: the
	// engine never blocks waiting for a consumer (§7, "downstream
	// back-pressure: none modeled").
	Post(c *chunk.Chunk)

	// AssertRef reports whether the sink is still alive and should be
	// posted to.
	AssertRef() bool

	// RequestedLatency returns the latency currently requested by a
	// downstream consumer, and whether one has been requested at all.
	RequestedLatency() (time.Duration, bool)

	MinLatency() time.Duration
	MaxLatency() time.Duration

	// SetLatencyRange updates the admissible latency bounds, e.g. after an
	// overrun raises the floor (§4.4 step 2).
	SetLatencyRange(min, max time.Duration)
}

// ChannelSink is a bounded-channel Sink: Post drops the new chunk (after
// releasing its reference) when the channel is full rather than blocking
// the capture goroutine, matching §7's no-back-pressure policy.
type ChannelSink struct {
	out chan *chunk.Chunk

	mu           sync.RWMutex
	alive        bool
	requested    time.Duration
	requestedSet bool
	min, max     time.Duration

	dropped int64
}

// NewChannelSink creates a sink with the given channel depth and initial
// latency bounds.
func NewChannelSink(depth int, min, max time.Duration) *ChannelSink {
	return &ChannelSink{
		out:   make(chan *chunk.Chunk, depth),
		alive: true,
		min:   min,
		max:   max,
	}
}

// Out exposes the outbound channel for a consumer (the daemon's
// diagnostics writer, or a test harness).
func (s *ChannelSink) Out() <-chan *chunk.Chunk { return s.out }

func (s *ChannelSink) Post(c *chunk.Chunk) {
	// A Fixed chunk borrows the driver's mmap region and is only valid
	// until the caller's accompanying Unref/MmapCommit, which happens right
	// after Post returns — so a Fixed chunk must be copied before it can be
	// queued for a consumer that runs later. Pooled chunks need no copy;
	// the sink takes its own reference, which the consumer releases.
	if c.Provenance == chunk.Fixed {
		owned := make([]byte, len(c.Data))
		copy(owned, c.Data)
		c = chunk.NewFixed(owned)
	} else {
		c.Ref()
	}

	select {
	case s.out <- c:
	default:
		c.Unref()
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Dropped reports how many chunks were discarded because Out wasn't being
// drained quickly enough.
func (s *ChannelSink) Dropped() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func (s *ChannelSink) AssertRef() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alive
}

// Close marks the sink as no longer live; AssertRef returns false
// afterward and the engine must stop posting.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	s.alive = false
	s.mu.Unlock()
}

func (s *ChannelSink) RequestedLatency() (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requested, s.requestedSet
}

// SetRequestedLatency simulates a downstream consumer's latency request,
// for tests and for the daemon's own control surface.
func (s *ChannelSink) SetRequestedLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = d
	s.requestedSet = true
}

func (s *ChannelSink) MinLatency() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.min
}

func (s *ChannelSink) MaxLatency() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.max
}

func (s *ChannelSink) SetLatencyRange(min, max time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.min, s.max = min, max
}

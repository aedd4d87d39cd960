// Package reservation implements the cross-process device reservation
// hook of SPEC_FULL.md §4.8 via a GPIO line, using
// github.com/warthog618/go-gpiocdev — a dependency the teacher declares in
// go.mod but never imports, unlike its raw ioctl-based GPIO access in
// src/cm108.go for PTT control. Only the hook *shape* is specified (per
// spec.md's Non-goals: "cross-process device reservation protocol details
// (only the hook shape is specified)"); this package picks one concrete,
// plausible wiring — an output line asserted while the device is held, and
// a separate input line that another process can pull to request release.
package reservation

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/n5dsp/tschedcap/internal/engine"
)

// Hook is a GPIO-backed engine.ReservationHook: Acquire asserts an output
// line claiming the device, Release deasserts it.
type Hook struct {
	line *gpiocdev.Line
}

// Open requests the given chip/line as an output, initially deasserted.
func Open(chip string, lineOffset int) (*Hook, error) {
	line, err := gpiocdev.RequestLine(chip, lineOffset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("reservation: request line %s:%d: %w", chip, lineOffset, err)
	}
	return &Hook{line: line}, nil
}

// Acquire asserts the reservation line, signalling other processes that
// this one now owns the device.
func (h *Hook) Acquire() error {
	return h.line.SetValue(1)
}

// Release deasserts the reservation line.
func (h *Hook) Release() error {
	return h.line.SetValue(0)
}

// Close releases the underlying GPIO line handle.
func (h *Hook) Close() error {
	return h.line.Close()
}

// ExternalReleaseWatcher watches a separate GPIO input line for a
// falling-edge "please release the device" request from another process,
// posting a SUSPEND transition onto the engine's message queue — the
// "callback asks the controller to transition to SUSPENDED" of §4.8.
type ExternalReleaseWatcher struct {
	line *gpiocdev.Line
}

// WatchExternalRelease requests chip/lineOffset as an edge-watched input
// and wires its falling edge to post MsgSetState(StateSuspended) on queue.
func WatchExternalRelease(chip string, lineOffset int, queue *engine.MessageQueue) (*ExternalReleaseWatcher, error) {
	w := &ExternalReleaseWatcher{}
	line, err := gpiocdev.RequestLine(chip, lineOffset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type == gpiocdev.LineEventFallingEdge {
				queue.TrySend(engine.Message{Kind: engine.MsgSetState, State: engine.StateSuspended})
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("reservation: watch external release %s:%d: %w", chip, lineOffset, err)
	}
	w.line = line
	return w, nil
}

// Close stops watching the release line.
func (w *ExternalReleaseWatcher) Close() error {
	return w.line.Close()
}

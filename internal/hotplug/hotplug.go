// Package hotplug implements SPEC_FULL.md §4.11: watching a single,
// already-selected capture device's kernel node for disappearance via
// github.com/jochenvg/go-udev, another dependency the teacher declares but
// never imports. This is deliberately not device enumeration (still a
// Non-goal per spec.md) — it watches one devnode and posts a SUSPEND
// message through the engine's existing message queue when that node is
// removed, the same queue the state controller already consumes.
package hotplug

import (
	"context"
	"fmt"

	"github.com/jochenvg/go-udev"

	"github.com/n5dsp/tschedcap/internal/engine"
)

// Watcher monitors udev "remove" events for one device node.
type Watcher struct {
	cancel context.CancelFunc
	done   <-chan struct{}
}

// Watch starts monitoring devNode (e.g. "/dev/snd/pcmC0D0c") for removal,
// posting MsgSetState(StateSuspended) onto queue when it disappears.
func Watch(devNode string, queue *engine.MessageQueue) (*Watcher, error) {
	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("sound"); err != nil {
		return nil, fmt.Errorf("hotplug: filter subsystem: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	deviceC, done, err := mon.DeviceChan(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("hotplug: monitor device chan: %w", err)
	}

	go func() {
		for dev := range deviceC {
			if dev.Action() != "remove" {
				continue
			}
			if dev.Devnode() != devNode {
				continue
			}
			queue.TrySend(engine.Message{Kind: engine.MsgSetState, State: engine.StateSuspended})
		}
	}()

	return &Watcher{cancel: cancel, done: done}, nil
}

// Close stops the monitor and waits for its goroutine to finish.
func (w *Watcher) Close() {
	w.cancel()
	<-w.done
}

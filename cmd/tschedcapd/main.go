// Command tschedcapd runs the timer-scheduled audio capture engine as a
// standalone daemon: it selects a driverapi.Driver, negotiates geometry,
// constructs the engine, and wires the optional collaborators (GPIO
// reservation, udev hotplug watch, mDNS announcement) described in
// SPEC_FULL.md §6, replacing the teacher's monolithic cgo
// cmd/direwolf/main.go with a small composition root over internal/
// packages.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/n5dsp/tschedcap/internal/config"
	"github.com/n5dsp/tschedcap/internal/discovery"
	"github.com/n5dsp/tschedcap/internal/downstream"
	"github.com/n5dsp/tschedcap/internal/driver/fakedriver"
	"github.com/n5dsp/tschedcap/internal/driver/padriver"
	"github.com/n5dsp/tschedcap/internal/driver/ptydriver"
	"github.com/n5dsp/tschedcap/internal/driverapi"
	"github.com/n5dsp/tschedcap/internal/engine"
	"github.com/n5dsp/tschedcap/internal/geometry"
	"github.com/n5dsp/tschedcap/internal/hotplug"
	"github.com/n5dsp/tschedcap/internal/logctx"
	"github.com/n5dsp/tschedcap/internal/reservation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tschedcapd:", err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger := logctx.New(logctx.DefaultOptions())

	spec := opts.SampleSpec()
	want := opts.GeometryRequest()

	drv, err := openDriver(opts.Device, spec, want)
	if err != nil {
		return fmt.Errorf("open driver: %w", err)
	}
	negotiated, err := drv.Open(spec, want)
	if err != nil {
		return fmt.Errorf("negotiate geometry: %w", err)
	}

	geom := buildGeometry(negotiated)

	sink := downstream.NewChannelSink(256, geometry.DefaultTschedWatermarkTime, 2*geometry.DefaultTschedBufferTime)
	queue := engine.NewMessageQueue(32)

	cfg := engine.Config{
		Spec:          spec,
		Want:          want,
		Tsched:        opts.Tsched,
		Mmap:          opts.Mmap && negotiated.Mmap,
		MaxLatency:    2 * geometry.DefaultTschedBufferTime,
		InitialVolume: 1.0,
		StatsInterval: opts.StatisticsInterval,
	}

	if opts.ReservationGPIOChip != "" {
		hook, err := reservation.Open(opts.ReservationGPIOChip, opts.ReservationGPIOLine)
		if err != nil {
			logger.Warnf("reservation: %v, proceeding without a reservation hook", err)
		} else {
			cfg.ReservationHook = hook
			defer hook.Close()
		}
	}

	eng, err := engine.New(drv, negotiated, geom, sink, queue, logctx.Component(logger, "engine"), cfg)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}

	if opts.HotplugWatch && opts.Device != "" {
		watcher, err := hotplug.Watch(opts.Device, queue)
		if err != nil {
			logger.Warnf("hotplug: %v, proceeding without a hotplug watch", err)
		} else {
			defer watcher.Close()
		}
	}

	if opts.Announce {
		name := opts.AnnounceName
		if name == "" {
			name = opts.SourceName
		}
		ann, err := discovery.Announce(name, opts.AnnouncePort)
		if err != nil {
			logger.Warnf("discovery: %v, proceeding without mDNS announcement", err)
		} else {
			defer ann.Close()
		}
	}

	queue.Send(engine.Message{Kind: engine.MsgSetState, State: engine.StateRunning})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Infof("shutdown requested")
		queue.Send(engine.Message{Kind: engine.MsgShutdown})
	}()

	go drainDiagnostics(sink, logctx.Component(logger, "sink"))

	if err := eng.Run(); err != nil {
		return fmt.Errorf("capture engine: %w", err)
	}
	return nil
}

func openDriver(device string, spec driverapi.SampleSpec, want driverapi.GeometryRequest) (driverapi.Driver, error) {
	switch device {
	case "", "default":
		return padriver.Open(spec, want)
	case "fake":
		return fakedriver.New(nil), nil
	case "pty":
		return ptydriver.Open(spec, want)
	default:
		return padriver.Open(spec, want)
	}
}

func buildGeometry(g driverapi.Geometry) geometry.Geometry {
	out := geometry.Geometry{
		Spec:         g.Spec,
		FragmentSize: g.FragmentSize,
		NFragments:   g.NFragments,
	}
	out.UpdateForLatency(5*geometry.DefaultTschedWatermarkTime, 0)
	return out
}

func drainDiagnostics(sink *downstream.ChannelSink, logger interface{ Debugf(string, ...any) }) {
	for c := range sink.Out() {
		logger.Debugf("posted chunk: %d bytes", len(c.Data))
		c.Unref()
	}
}

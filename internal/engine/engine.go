package engine

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/n5dsp/tschedcap/internal/chunk"
	"github.com/n5dsp/tschedcap/internal/downstream"
	"github.com/n5dsp/tschedcap/internal/driverapi"
	"github.com/n5dsp/tschedcap/internal/geometry"
	"github.com/n5dsp/tschedcap/internal/pollcore"
	"github.com/n5dsp/tschedcap/internal/smoother"
	"github.com/n5dsp/tschedcap/internal/statlog"
	"github.com/n5dsp/tschedcap/internal/volume"
)

// ReservationHook lets an external collaborator (internal/reservation's
// GPIO-backed implementation, in production) gate device access across
// processes. Resume re-acquires the reservation before reopening the
// driver; suspend releases it. A nil hook is a no-op, matching a device
// with no cross-process sharing requirement.
type ReservationHook interface {
	Acquire() error
	Release() error
}

// VolumeApplier pushes a normalized virtual volume to whatever mixer
// collaborator owns the hardware control, closing the open question in
// SPEC_FULL.md §9 about re-applying volume on resume rather than leaving
// it a FIXME.
type VolumeApplier interface {
	ApplyVolume(v float64) error
}

// Config is the engine's construction-time configuration, covering the
// options of SPEC_FULL.md §6 that affect the capture loop itself (naming,
// registry, and transport-level options belong to internal/config and
// cmd/tschedcapd).
type Config struct {
	Spec driverapi.SampleSpec
	Want driverapi.GeometryRequest

	Tsched bool
	Mmap   bool

	MaxLatency time.Duration

	PoolBlockSize int

	ReservationHook ReservationHook
	VolumeApplier   VolumeApplier
	InitialVolume   float64
	HardwareVolume  volume.HardwareRange

	StatsInterval time.Duration
}

// Engine is the capture engine of SPEC_FULL.md §4. One Engine owns exactly
// one Driver for its lifetime, per §5's two-thread resource model — the
// capture goroutine that runs Run is the "capture thread"; all other
// goroutines (the message sender, collaborators posting via TrySend) play
// the role of "main thread".
type Engine struct {
	cfg Config

	driver driverapi.Driver
	sink   downstream.Sink
	pool   *chunk.Pool
	queue  *MessageQueue
	logger *log.Logger
	smoo   *smoother.Smoother
	stats  *statlog.Reporter

	spec     driverapi.SampleSpec
	geometry geometry.Geometry
	negotiated driverapi.Geometry

	state State
	watcher *pollcore.Watcher

	readCount int64

	minLatency            time.Duration
	watermarkStepBytes    int
	watermarkStepDuration time.Duration

	lastSleepFrames int

	lastVolume float64

	overrunWarned  bool
	spuriousWarned bool

	unloadCh chan struct{}
}

// New constructs an Engine. driver must already be Open with the geometry
// recorded in negotiated (§2's control flow: the main thread hands the
// engine an already-configured driver handle). Construction-time
// validation failures are the "configuration-rejected" error class of §7:
// New returns a nil Engine and an error, and no goroutine is started.
func New(
	driver driverapi.Driver,
	negotiated driverapi.Geometry,
	geom geometry.Geometry,
	sink downstream.Sink,
	queue *MessageQueue,
	logger *log.Logger,
	cfg Config,
) (*Engine, error) {
	if err := geom.Validate(); err != nil {
		return nil, fmt.Errorf("engine: rejected configuration: %w", err)
	}
	if cfg.PoolBlockSize <= 0 {
		cfg.PoolBlockSize = geom.HwbufSize()
	}
	if cfg.MaxLatency <= 0 {
		cfg.MaxLatency = geometry.DefaultTschedBufferTime
	}
	if logger == nil {
		logger = log.New(nil)
	}

	e := &Engine{
		cfg:        cfg,
		driver:     driver,
		sink:       sink,
		pool:       chunk.NewPool(cfg.PoolBlockSize),
		queue:      queue,
		logger:     logger,
		smoo:       smoother.New(smoother.DefaultConfig()),
		spec:       negotiated.Spec,
		geometry:   geom,
		negotiated: negotiated,
		state:      StateInit,
		minLatency: geometry.DefaultTschedWatermarkTime,
		lastVolume: cfg.InitialVolume,
		unloadCh:   make(chan struct{}, 1),
	}
	if e.lastVolume == 0 {
		e.lastVolume = 1.0
	}
	e.watermarkStepDuration = geometry.DefaultWatermarkStepTime
	e.watermarkStepBytes = geometry.DurationToBytes(geometry.DefaultWatermarkStepTime, e.spec)
	if cfg.StatsInterval > 0 {
		e.stats = statlog.NewReporter(logger, cfg.StatsInterval)
	}

	return e, nil
}

// Unloaded signals when the engine has posted a fatal-exit unload request
// (§4.5: "post an unload request to the main thread").
func (e *Engine) Unloaded() <-chan struct{} { return e.unloadCh }

// State returns the engine's current lifecycle state.
func (e *Engine) State() State { return e.state }

// ReadCount returns the total bytes delivered downstream since session
// start (§3's CaptureStats.read_count).
func (e *Engine) ReadCount() int64 { return e.readCount }

// Latency answers a latency query synchronously from the smoother, per
// §4.2's usage contract: max(0, smoother.at(now) - bytes_to_usec(read_count)).
func (e *Engine) Latency(now time.Time) time.Duration {
	lat := e.smoo.At(now) - e.timeFromBytes(int(e.readCount))
	if lat < 0 {
		return 0
	}
	return lat
}

func (e *Engine) timeFromBytes(b int) time.Duration {
	return geometry.BytesToDuration(b, e.spec)
}

func (e *Engine) effectiveLatency() time.Duration {
	lat, ok := e.sink.RequestedLatency()
	if !ok || lat <= 0 {
		lat = e.timeFromBytes(e.geometry.Usable())
	}
	return geometry.BumpRequestedLatencyBelowFrame(lat, e.spec)
}

// pathResult is the tri-state return of a path invocation (§4.5 step 1):
// Code<0 fatal, 0 nothing done, >0 work done.
type pathResult struct {
	Code  int
	Sleep time.Duration
}

func boolToCode(b bool) int {
	if b {
		return 1
	}
	return 0
}

// recoverAndStart implements the transient-driver error class of §7:
// recover, then start again, logging at debug and counting an error tick
// in the stats reporter.
func (e *Engine) recoverAndStart(cause error) error {
	silent := driverapi.IsOverrun(cause)
	e.logger.Debugf("driver: transient error, recovering: %v", cause)
	if e.stats != nil {
		e.stats.Observe(0)
	}
	if err := e.driver.Recover(cause, silent); err != nil {
		return fmt.Errorf("engine: recover failed: %w", err)
	}
	if err := e.driver.Start(); err != nil {
		return fmt.Errorf("engine: start after recover failed: %w", err)
	}
	return nil
}

func (e *Engine) warnSpuriousPollIn() {
	if e.spuriousWarned {
		e.logger.Debugf("driver signalled POLLIN with nothing to read")
		return
	}
	e.spuriousWarned = true
	e.logger.Warnf("driver signalled POLLIN with nothing to read")
}

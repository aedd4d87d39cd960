// Package fakedriver implements an in-memory driverapi.Driver for
// deterministic engine tests: a scripted sequence of Avail outcomes,
// including injected overrun, suspend, and fatal errors, with no real
// soundcard involved. Read is not scripted: it always succeeds, copying
// from a zeroed backing buffer.
//
// It still exposes a real, pollable file descriptor via os.Pipe so engine
// tests exercise the genuine select-over-timer-and-fds path in
// internal/pollcore rather than a shortcut. That idiom — a pipe standing in
// for a hardware readiness fd in a test double — is the same one
// other_examples' go4vl capture sample relies on for its device fd, just
// produced synthetically instead of opened against real hardware.
package fakedriver

import (
	"os"
	"sync"
	"time"

	"github.com/n5dsp/tschedcap/internal/driverapi"
)

// Step is one scripted outcome for a single Avail call.
type Step struct {
	Avail int   // frames available, if Err is nil
	Err   error // if set, returned instead of a frame count
}

// Driver is a scripted driverapi.Driver for unit tests.
type Driver struct {
	mu sync.Mutex

	spec     driverapi.SampleSpec
	geometry driverapi.Geometry
	backing  []byte

	steps    []Step
	idx      int
	recovers int
	starts   int
	closed   bool
	delay    int
	status   time.Time

	readyR *os.File
	readyW *os.File
}

// New creates a Driver that will play back steps in order; once exhausted,
// Avail returns (0, nil) forever (an idle, empty buffer).
func New(steps []Step) *Driver {
	r, w, err := os.Pipe()
	if err != nil {
		panic("fakedriver: os.Pipe: " + err.Error())
	}
	return &Driver{steps: steps, readyR: r, readyW: w}
}

// Signal makes the driver's poll descriptor readable, simulating a period
// boundary interrupt or hardware readiness notification.
func (d *Driver) Signal() error {
	_, err := d.readyW.Write([]byte{1})
	return err
}

// Drain consumes one readiness byte, clearing the fd back to not-ready.
func (d *Driver) Drain() error {
	buf := make([]byte, 1)
	_, err := d.readyR.Read(buf)
	return err
}

// Recovers reports how many times Recover was called.
func (d *Driver) Recovers() int { return d.recovers }

// Starts reports how many times Start was called.
func (d *Driver) Starts() int { return d.starts }

// SetDelay fixes the value Delay() returns.
func (d *Driver) SetDelay(frames int) { d.mu.Lock(); d.delay = frames; d.mu.Unlock() }

// SetStatusTimestamp fixes the value StatusTimestamp() returns.
func (d *Driver) SetStatusTimestamp(t time.Time) { d.mu.Lock(); d.status = t; d.mu.Unlock() }

func (d *Driver) Open(spec driverapi.SampleSpec, want driverapi.GeometryRequest) (driverapi.Geometry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		r, w, err := os.Pipe()
		if err != nil {
			return driverapi.Geometry{}, err
		}
		d.readyR, d.readyW = r, w
		d.closed = false
	}

	d.spec = spec
	d.geometry = driverapi.Geometry{
		Spec:         spec,
		FragmentSize: want.FragmentSize,
		NFragments:   want.NFragments,
		Mmap:         want.Mmap,
		Tsched:       want.Tsched,
	}
	d.backing = make([]byte, want.FragmentSize*want.NFragments)
	d.idx = 0
	return d.geometry, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	_ = d.readyR.Close()
	_ = d.readyW.Close()
	return nil
}

func (d *Driver) Avail() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.idx >= len(d.steps) {
		return 0, nil
	}
	s := d.steps[d.idx]
	d.idx++
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Avail, nil
}

func (d *Driver) MmapBegin(maxFrames int) (driverapi.Region, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	frameSize := d.spec.FrameSize()
	frames := maxFrames
	if max := len(d.backing) / frameSize; frames > max {
		frames = max
	}
	return driverapi.Region{
		Base:        d.backing,
		ByteOffset:  0,
		FrameStride: frameSize,
		Frames:      frames,
	}, nil
}

func (d *Driver) MmapCommit(byteOffset, frames int) (int, error) {
	return frames, nil
}

func (d *Driver) Read(buf []byte, frames int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	frameSize := d.spec.FrameSize()
	n := frames * frameSize
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf[:n], d.backing)
	return n / frameSize, nil
}

func (d *Driver) Delay() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delay, nil
}

func (d *Driver) StatusTimestamp() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Driver) PollDescriptors() ([]driverapi.PollDescriptor, error) {
	return []driverapi.PollDescriptor{
		{Fd: int(d.readyR.Fd()), Events: driverapi.PollIn},
	}, nil
}

func (d *Driver) PollRevents(fd int, raw uint32) (driverapi.PollEvents, error) {
	return driverapi.PollEvents(raw), nil
}

func (d *Driver) Recover(err error, silent bool) error {
	d.mu.Lock()
	d.recovers++
	d.mu.Unlock()
	return nil
}

func (d *Driver) Start() error {
	d.mu.Lock()
	d.starts++
	d.mu.Unlock()
	return nil
}

func (d *Driver) PushSoftwareParams(availMin, hwbufUnused int) error {
	return nil
}

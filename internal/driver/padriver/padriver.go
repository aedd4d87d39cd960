// Package padriver implements driverapi.Driver against a real input
// device via github.com/gordonklaus/portaudio, a dependency the teacher
// carries in go.mod for exactly this purpose (talking to a soundcard) but
// never actually imports, relying instead on its own cgo ALSA bindings in
// src/audio.go.
//
// PortAudio's blocking-read API has no pollable file descriptor of its
// own, unlike an ALSA PCM handle, so this driver runs a background
// goroutine that blocks in Stream.Read and republishes each filled period
// on a channel, signalling readiness through a self-pipe the same way
// internal/pollcore's fd watcher expects — the same translation
// src/cm108.go makes going the other way, turning a GPIO line into a
// pollable fd via direct syscalls.
package padriver

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/n5dsp/tschedcap/internal/driverapi"
)

// Driver is a PortAudio-backed driverapi.Driver for one input device.
type Driver struct {
	stream *portaudio.Stream
	spec   driverapi.SampleSpec
	geom   driverapi.Geometry

	periodBytes int
	raw         []int32 // PortAudio's native sample buffer for the period

	ready     chan []byte
	readyR    *os.File
	readyW    *os.File
	stop      chan struct{}
	current   []byte
	status    time.Time
}

// Open negotiates a PortAudio input stream matching spec/want as closely as
// the backend allows. The background fill goroutine is started by Start,
// not by Open.
func Open(spec driverapi.SampleSpec, want driverapi.GeometryRequest) (*Driver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("padriver: initialize: %w", err)
	}

	framesPerPeriod := want.FragmentSize / spec.FrameSize()
	if framesPerPeriod <= 0 {
		framesPerPeriod = 1024
	}

	d := &Driver{
		spec: spec,
		geom: driverapi.Geometry{
			Spec:         spec,
			FragmentSize: want.FragmentSize,
			NFragments:   want.NFragments,
			Mmap:         false, // PortAudio's blocking API has no mmap equivalent
			Tsched:       want.Tsched,
		},
		periodBytes: framesPerPeriod * spec.FrameSize(),
		raw:         make([]int32, framesPerPeriod*spec.NumChannels),
		ready:       make(chan []byte, 2),
		stop:        make(chan struct{}),
	}

	r, w, err := os.Pipe()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("padriver: self-pipe: %w", err)
	}
	d.readyR, d.readyW = r, w

	stream, err := portaudio.OpenDefaultStream(spec.NumChannels, 0, float64(spec.RateHz), framesPerPeriod, d.raw)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("padriver: open stream: %w", err)
	}
	d.stream = stream

	return d, nil
}

func (d *Driver) fillLoop() {
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		if err := d.stream.Read(); err != nil {
			return
		}
		d.status = time.Now()

		buf := make([]byte, d.periodBytes)
		encodeInt32ToSpec(d.raw, buf, d.spec.Format)

		select {
		case d.ready <- buf:
			_, _ = d.readyW.Write([]byte{1})
		case <-d.stop:
			return
		}
	}
}

// encodeInt32ToSpec narrows PortAudio's native int32 samples to the
// negotiated wire format.
func encodeInt32ToSpec(src []int32, dst []byte, format driverapi.Format) {
	switch format {
	case driverapi.FormatU8:
		for i, s := range src {
			dst[i] = byte((s >> 24) + 128)
		}
	case driverapi.FormatF32LE:
		for i, s := range src {
			v := float32(s) / float32(1<<31)
			bits := math.Float32bits(v)
			dst[i*4] = byte(bits)
			dst[i*4+1] = byte(bits >> 8)
			dst[i*4+2] = byte(bits >> 16)
			dst[i*4+3] = byte(bits >> 24)
		}
	default: // FormatS16LE
		for i, s := range src {
			v := int16(s >> 16)
			dst[i*2] = byte(v)
			dst[i*2+1] = byte(v >> 8)
		}
	}
}

func (d *Driver) Open(spec driverapi.SampleSpec, want driverapi.GeometryRequest) (driverapi.Geometry, error) {
	return d.geom, nil
}

func (d *Driver) Close() error {
	close(d.stop)
	err := d.stream.Close()
	_ = d.readyR.Close()
	_ = d.readyW.Close()
	_ = portaudio.Terminate()
	return err
}

func (d *Driver) Avail() (int, error) {
	if d.current != nil {
		return len(d.current) / d.spec.FrameSize(), nil
	}
	select {
	case buf := <-d.ready:
		d.current = buf
		return len(buf) / d.spec.FrameSize(), nil
	default:
		return 0, nil
	}
}

func (d *Driver) MmapBegin(maxFrames int) (driverapi.Region, error) {
	return driverapi.Region{}, &driverapi.Error{Kind: driverapi.KindFatal, Op: "mmap_begin", Err: fmt.Errorf("padriver: mmap not supported by the blocking PortAudio backend")}
}

func (d *Driver) MmapCommit(byteOffset, frames int) (int, error) {
	return 0, &driverapi.Error{Kind: driverapi.KindFatal, Op: "mmap_commit", Err: fmt.Errorf("padriver: mmap not supported")}
}

func (d *Driver) Read(buf []byte, frames int) (int, error) {
	if d.current == nil {
		if _, err := d.Avail(); err != nil {
			return 0, err
		}
	}
	if d.current == nil {
		return 0, nil
	}

	frameSize := d.spec.FrameSize()
	want := frames * frameSize
	if want > len(d.current) {
		want = len(d.current)
	}
	n := copy(buf, d.current[:want])
	if n >= len(d.current) {
		d.current = nil
	} else {
		d.current = d.current[n:]
	}
	return n / frameSize, nil
}

func (d *Driver) Delay() (int, error) {
	info := d.stream.Info()
	frames := int(info.InputLatency.Seconds() * float64(d.spec.RateHz))
	return frames, nil
}

func (d *Driver) StatusTimestamp() time.Time { return d.status }

func (d *Driver) PollDescriptors() ([]driverapi.PollDescriptor, error) {
	return []driverapi.PollDescriptor{{Fd: int(d.readyR.Fd()), Events: driverapi.PollIn}}, nil
}

func (d *Driver) PollRevents(fd int, raw uint32) (driverapi.PollEvents, error) {
	return driverapi.PollEvents(raw), nil
}

func (d *Driver) Recover(err error, silent bool) error {
	return d.stream.Start()
}

func (d *Driver) Start() error {
	if err := d.stream.Start(); err != nil {
		return err
	}
	go d.fillLoop()
	return nil
}

func (d *Driver) PushSoftwareParams(availMin, hwbufUnused int) error {
	return nil
}

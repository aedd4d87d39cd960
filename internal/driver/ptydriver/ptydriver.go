// Package ptydriver implements a driverapi.Driver backed by a real
// pseudo-terminal pair instead of a soundcard, for integration-style tests
// that need a genuine pollable fd and real byte-stream timing jitter rather
// than fakedriver's scripted, instantaneous outcomes.
//
// The pty comes from github.com/creack/pty, which the teacher uses in
// src/kiss.go to provide a virtual serial port. The master side stands in for the soundcard's
// capture fd: a test harness writes simulated "captured" bytes to the slave
// side on whatever schedule it likes, and this driver polls and reads the
// master side exactly as it would a real ALSA device fd.
//
// MmapBegin/MmapCommit are emulated with an anonymous golang.org/x/sys/unix
// mmap region, grounded the same way src/cm108.go and src/ptt.go reach past
// the standard library for raw OS primitives: there is no real DMA buffer
// behind a pty, so bytes are copied from the master fd into the anonymous
// region on MmapBegin, and MmapCommit only advances the accounting. This
// keeps the mmap code path under test without requiring real hardware.
package ptydriver

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/n5dsp/tschedcap/internal/driverapi"
)

// Driver is a pty-backed driverapi.Driver.
type Driver struct {
	master *os.File
	slave  *os.File

	spec    driverapi.SampleSpec
	geom    driverapi.Geometry
	mmapBuf []byte

	status time.Time
}

// Open starts the pty pair and sizes the anonymous mmap region to the
// requested hardware buffer.
func Open(spec driverapi.SampleSpec, want driverapi.GeometryRequest) (*Driver, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("ptydriver: pty.Open: %w", err)
	}

	size := want.FragmentSize * want.NFragments
	if size <= 0 {
		size = 4096
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		_ = master.Close()
		_ = slave.Close()
		return nil, fmt.Errorf("ptydriver: mmap: %w", err)
	}

	d := &Driver{
		master: master,
		slave:  slave,
		spec:   spec,
		mmapBuf: buf,
		geom: driverapi.Geometry{
			Spec:         spec,
			FragmentSize: want.FragmentSize,
			NFragments:   want.NFragments,
			Mmap:         want.Mmap,
			Tsched:       want.Tsched,
		},
	}
	return d, nil
}

// SlaveName returns the path to the pty's slave side, for a test harness
// that wants to open it independently (e.g. with a separate writer process).
func (d *Driver) SlaveName() string { return d.slave.Name() }

// WriteCaptured writes simulated captured audio bytes into the slave side,
// which the driver's master side will then see as readable.
func (d *Driver) WriteCaptured(b []byte) (int, error) {
	return d.slave.Write(b)
}

func (d *Driver) Open(spec driverapi.SampleSpec, want driverapi.GeometryRequest) (driverapi.Geometry, error) {
	return d.geom, nil
}

func (d *Driver) Close() error {
	err1 := d.master.Close()
	err2 := d.slave.Close()
	if d.mmapBuf != nil {
		_ = unix.Munmap(d.mmapBuf)
		d.mmapBuf = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (d *Driver) Avail() (int, error) {
	n, err := unix.IoctlGetInt(int(d.master.Fd()), unix.FIONREAD)
	if err != nil {
		return 0, &driverapi.Error{Kind: driverapi.KindFatal, Op: "avail", Err: err}
	}
	frameSize := d.spec.FrameSize()
	if frameSize == 0 {
		return 0, nil
	}
	return n / frameSize, nil
}

func (d *Driver) MmapBegin(maxFrames int) (driverapi.Region, error) {
	frameSize := d.spec.FrameSize()
	want := maxFrames * frameSize
	if want > len(d.mmapBuf) {
		want = len(d.mmapBuf)
	}
	n, err := io.ReadFull(d.master, d.mmapBuf[:want])
	if err != nil && err != io.ErrUnexpectedEOF {
		return driverapi.Region{}, &driverapi.Error{Kind: driverapi.KindFatal, Op: "mmap_begin", Err: err}
	}
	return driverapi.Region{
		Base:        d.mmapBuf,
		ByteOffset:  0,
		FrameStride: frameSize,
		Frames:      n / frameSize,
	}, nil
}

func (d *Driver) MmapCommit(byteOffset, frames int) (int, error) {
	return frames, nil
}

func (d *Driver) Read(buf []byte, frames int) (int, error) {
	frameSize := d.spec.FrameSize()
	want := frames * frameSize
	if want > len(buf) {
		want = len(buf)
	}
	n, err := d.master.Read(buf[:want])
	if err != nil {
		return 0, &driverapi.Error{Kind: driverapi.KindFatal, Op: "read", Err: err}
	}
	return n / frameSize, nil
}

func (d *Driver) Delay() (int, error) {
	return d.Avail()
}

func (d *Driver) StatusTimestamp() time.Time { return d.status }

func (d *Driver) PollDescriptors() ([]driverapi.PollDescriptor, error) {
	return []driverapi.PollDescriptor{{Fd: int(d.master.Fd()), Events: driverapi.PollIn}}, nil
}

func (d *Driver) PollRevents(fd int, raw uint32) (driverapi.PollEvents, error) {
	return driverapi.PollEvents(raw), nil
}

func (d *Driver) Recover(err error, silent bool) error { return nil }

func (d *Driver) Start() error { return nil }

func (d *Driver) PushSoftwareParams(availMin, hwbufUnused int) error { return nil }

// Package driverapi defines the narrow, synchronous contract the capture
// engine uses to talk to a soundcard driver. Implementations are not
// assumed thread-safe across components: the engine's capture goroutine
// owns a Driver exclusively for the lifetime of an open session.
package driverapi

import "time"

// PollDescriptor is one file descriptor the engine must poll alongside its
// wakeup timer and inbound message queue.
type PollDescriptor struct {
	Fd     int
	Events PollEvents
}

// PollEvents is a bitset over the classic poll(2) event flags, narrowed to
// what the driver adapter and engine actually care about.
type PollEvents uint8

const (
	PollIn PollEvents = 1 << iota
	PollOut
	PollErr
	PollHup
)

// Region describes a memory-mapped hardware buffer window returned by
// MmapBegin. Base is valid only until the matching MmapCommit call; the
// engine must not retain it past commit (see chunk.Fixed).
type Region struct {
	Base        []byte
	ByteOffset  int
	FrameStride int
	Frames      int
}

// Driver is the contract of SPEC_FULL.md §4.1. All calls are synchronous.
type Driver interface {
	// Open negotiates the hardware parameters for spec and returns the
	// geometry the hardware actually granted, which may differ from what
	// was requested.
	Open(spec SampleSpec, want GeometryRequest) (Geometry, error)
	Close() error

	// Avail reports frames currently available to read, clamped internally
	// to the configured hardware buffer. An EAGAIN-equivalent condition is
	// reported as (0, nil), never as an error.
	Avail() (frames int, err error)

	MmapBegin(maxFrames int) (Region, error)
	MmapCommit(byteOffset, frames int) (committed int, err error)

	Read(buf []byte, frames int) (framesRead int, err error)

	// Delay reports frames buffered by the hardware but not yet delivered
	// to the application.
	Delay() (frames int, err error)

	// StatusTimestamp returns the hardware-latched capture timestamp for
	// the most recent period boundary, or the zero Time if unset.
	StatusTimestamp() time.Time

	PollDescriptors() ([]PollDescriptor, error)
	PollRevents(fd int, raw uint32) (PollEvents, error)

	// Recover attempts to resume streaming after err without reopening the
	// device. silent suppresses the driver's own diagnostic for errors the
	// caller has already logged.
	Recover(err error, silent bool) error
	Start() error

	// PushSoftwareParams re-applies the derived software parameters
	// (avail_min, hwbuf_unused) computed by internal/geometry.
	PushSoftwareParams(availMin int, hwbufUnused int) error
}

// SampleSpec is immutable for the lifetime of a capture session.
type SampleSpec struct {
	Format      Format
	RateHz      int
	NumChannels int
}

// Format is the sample encoding.
type Format int

const (
	FormatS16LE Format = iota
	FormatU8
	FormatF32LE
)

// FrameSize returns bytes per sample frame: channels x sample width.
func (s SampleSpec) FrameSize() int {
	return s.NumChannels * s.Format.Width()
}

// Width returns the byte width of one sample in this format.
func (f Format) Width() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16LE:
		return 2
	case FormatF32LE:
		return 4
	default:
		return 2
	}
}

// GeometryRequest is what the engine asks for; Geometry is what it got.
type GeometryRequest struct {
	FragmentSize int // bytes per period, requested
	NFragments   int
	Mmap         bool
	Tsched       bool
}

// Geometry is the negotiated result of an Open or re-Open call, used by
// the state controller to assert identical resume semantics (§4.8).
type Geometry struct {
	Spec         SampleSpec
	FragmentSize int
	NFragments   int
	Mmap         bool
	Tsched       bool
}

// Equal reports whether two negotiated geometries are bitwise equivalent,
// per the resume invariant in §8.
func (g Geometry) Equal(o Geometry) bool {
	return g.Spec == o.Spec &&
		g.FragmentSize == o.FragmentSize &&
		g.NFragments == o.NFragments &&
		g.Mmap == o.Mmap &&
		g.Tsched == o.Tsched
}

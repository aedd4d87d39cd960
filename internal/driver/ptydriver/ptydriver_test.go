package ptydriver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n5dsp/tschedcap/internal/driverapi"
)

func TestReadSeesWrittenBytes(t *testing.T) {
	spec := driverapi.SampleSpec{Format: driverapi.FormatS16LE, RateHz: 48000, NumChannels: 2}
	d, err := Open(spec, driverapi.GeometryRequest{FragmentSize: 4096, NFragments: 4, Mmap: true, Tsched: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	payload := make([]byte, spec.FrameSize()*10)
	for i := range payload {
		payload[i] = byte(i)
	}

	go func() {
		_, _ = d.WriteCaptured(payload)
	}()

	buf := make([]byte, len(payload))
	deadline := time.Now().Add(2 * time.Second)
	got := 0
	for got < len(payload) && time.Now().Before(deadline) {
		n, err := d.Read(buf[got:], (len(payload)-got)/spec.FrameSize())
		require.NoError(t, err)
		got += n * spec.FrameSize()
	}
	assert.Equal(t, payload, buf[:got])
}

func TestMmapBeginFillsAnonymousRegion(t *testing.T) {
	spec := driverapi.SampleSpec{Format: driverapi.FormatS16LE, RateHz: 48000, NumChannels: 2}
	d, err := Open(spec, driverapi.GeometryRequest{FragmentSize: 4096, NFragments: 4, Mmap: true, Tsched: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	payload := make([]byte, spec.FrameSize()*4)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	_, err = d.WriteCaptured(payload)
	require.NoError(t, err)

	region, err := d.MmapBegin(4)
	require.NoError(t, err)
	assert.Equal(t, spec.FrameSize(), region.FrameStride)
	assert.Equal(t, payload, region.Base[:len(payload)])

	committed, err := d.MmapCommit(0, region.Frames)
	require.NoError(t, err)
	assert.Equal(t, region.Frames, committed)
}

func TestPollDescriptorsExposesMasterFd(t *testing.T) {
	spec := driverapi.SampleSpec{Format: driverapi.FormatS16LE, RateHz: 48000, NumChannels: 2}
	d, err := Open(spec, driverapi.GeometryRequest{FragmentSize: 4096, NFragments: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	descs, err := d.PollDescriptors()
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, driverapi.PollIn, descs[0].Events)
}

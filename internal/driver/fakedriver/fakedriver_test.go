package fakedriver

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n5dsp/tschedcap/internal/driverapi"
)

func openTestDriver(t *testing.T, steps []Step) *Driver {
	t.Helper()
	d := New(steps)
	_, err := d.Open(
		driverapi.SampleSpec{Format: driverapi.FormatS16LE, RateHz: 48000, NumChannels: 2},
		driverapi.GeometryRequest{FragmentSize: 4096, NFragments: 4, Mmap: true, Tsched: true},
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestAvailPlaysBackScript(t *testing.T) {
	d := openTestDriver(t, []Step{{Avail: 100}, {Avail: 200}})

	n, err := d.Avail()
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	n, err = d.Avail()
	require.NoError(t, err)
	assert.Equal(t, 200, n)

	n, err = d.Avail()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "exhausted script reports idle, not an error")
}

func TestAvailPropagatesInjectedError(t *testing.T) {
	injected := &driverapi.Error{Kind: driverapi.KindOverrun, Op: "avail"}
	d := openTestDriver(t, []Step{{Err: injected}})

	_, err := d.Avail()
	require.Error(t, err)
	assert.True(t, driverapi.IsOverrun(err))

	var de *driverapi.Error
	require.True(t, errors.As(err, &de))
}

func TestSignalMakesPollDescriptorReady(t *testing.T) {
	d := openTestDriver(t, nil)

	descs, err := d.PollDescriptors()
	require.NoError(t, err)
	require.Len(t, descs, 1)

	done := make(chan struct{})
	go func() {
		require.NoError(t, d.Signal())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Signal did not return")
	}
	require.NoError(t, d.Drain())
}

func TestRecoverAndStartCountCalls(t *testing.T) {
	d := openTestDriver(t, nil)

	require.NoError(t, d.Recover(errors.New("boom"), false))
	require.NoError(t, d.Recover(errors.New("boom"), true))
	require.NoError(t, d.Start())

	assert.Equal(t, 2, d.Recovers())
	assert.Equal(t, 1, d.Starts())
}

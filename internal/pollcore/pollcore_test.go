package pollcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/n5dsp/tschedcap/internal/driverapi"
)

func TestWatcherReportsReadableFd(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	watcher, err := NewWatcher([]driverapi.PollDescriptor{{Fd: r, Events: driverapi.PollIn}})
	require.NoError(t, err)
	defer watcher.Close()

	_, werr := unix.Write(w, []byte{1})
	require.NoError(t, werr)

	select {
	case batch := <-watcher.Events():
		require.Len(t, batch, 1)
		assert.Equal(t, r, batch[0].Fd)
		assert.NotZero(t, batch[0].Revents&driverapi.PollIn)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for readiness batch")
	}
}

func TestWatcherCloseStopsLoop(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	watcher, err := NewWatcher([]driverapi.PollDescriptor{{Fd: r, Events: driverapi.PollIn}})
	require.NoError(t, err)

	require.NoError(t, watcher.Close())

	select {
	case _, ok := <-watcher.Events():
		assert.False(t, ok, "events channel should close after Close")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watcher to stop")
	}
	assert.NoError(t, watcher.Err())
}

func TestWatcherDoubleCloseIsSafe(t *testing.T) {
	watcher, err := NewWatcher(nil)
	require.NoError(t, err)
	assert.NoError(t, watcher.Close())
	assert.NoError(t, watcher.Close())
}

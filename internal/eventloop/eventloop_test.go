package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestWatchNewFiresOnReadableFd(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	loop := New()
	defer loop.Close()

	fired := make(chan Events, 1)
	loop.WatchNew(r, Input, func(_ *Watch, events Events) {
		fired <- events
	})

	_, err := unix.Write(w, []byte{1})
	require.NoError(t, err)

	select {
	case events := <-fired:
		assert.NotZero(t, events&Input)
	case <-time.After(time.Second):
		t.Fatal("watch callback never fired")
	}
}

func TestWatchFreeStopsCallbacks(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	loop := New()
	defer loop.Close()

	fired := make(chan struct{}, 4)
	watch := loop.WatchNew(r, Input, func(_ *Watch, _ Events) {
		fired <- struct{}{}
	})
	watch.WatchFree()

	_, err := unix.Write(w, []byte{1})
	require.NoError(t, err)

	select {
	case <-fired:
		t.Fatal("callback fired after WatchFree")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchGetEventsReflectsUpdate(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	loop := New()
	defer loop.Close()

	watch := loop.WatchNew(r, Input, func(*Watch, Events) {})
	assert.Equal(t, Input, watch.WatchGetEvents())

	watch.WatchUpdate(Input | Output)
	assert.Equal(t, Input|Output, watch.WatchGetEvents())
}

func TestTimeoutNewFiresOnce(t *testing.T) {
	loop := New()
	defer loop.Close()

	fired := make(chan struct{}, 1)
	loop.TimeoutNew(time.Now().Add(10*time.Millisecond), func(*Timeout) {
		fired <- struct{}{}
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
}

func TestTimeoutFreeCancelsCallback(t *testing.T) {
	loop := New()
	defer loop.Close()

	fired := make(chan struct{}, 1)
	timeout := loop.TimeoutNew(time.Now().Add(50*time.Millisecond), func(*Timeout) {
		fired <- struct{}{}
	})
	timeout.TimeoutFree()

	select {
	case <-fired:
		t.Fatal("callback fired after TimeoutFree")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTimeoutUpdateReschedules(t *testing.T) {
	loop := New()
	defer loop.Close()

	fired := make(chan time.Time, 1)
	timeout := loop.TimeoutNew(time.Now().Add(10*time.Millisecond), func(*Timeout) {
		fired <- time.Now()
	})
	timeout.TimeoutUpdate(time.Now().Add(200 * time.Millisecond))

	start := time.Now()
	select {
	case got := <-fired:
		assert.GreaterOrEqual(t, got.Sub(start), 150*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("rescheduled timeout never fired")
	}
}

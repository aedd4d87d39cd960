package downstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/n5dsp/tschedcap/internal/chunk"
)

func TestChannelSinkPostDeliversWithinCapacity(t *testing.T) {
	sink := NewChannelSink(2, 10*time.Millisecond, time.Second)
	sink.Post(chunk.NewFixed([]byte{1, 2, 3}))

	select {
	case c := <-sink.Out():
		assert.Equal(t, []byte{1, 2, 3}, c.Data)
	default:
		t.Fatal("expected a posted chunk on the output channel")
	}
	assert.Zero(t, sink.Dropped())
}

func TestChannelSinkPostDropsWhenFull(t *testing.T) {
	sink := NewChannelSink(1, 10*time.Millisecond, time.Second)
	sink.Post(chunk.NewFixed([]byte{1}))
	sink.Post(chunk.NewFixed([]byte{2}))

	assert.EqualValues(t, 1, sink.Dropped())

	c := <-sink.Out()
	assert.Equal(t, []byte{1}, c.Data)
}

func TestChannelSinkAssertRefAndClose(t *testing.T) {
	sink := NewChannelSink(1, 0, time.Second)
	assert.True(t, sink.AssertRef())
	sink.Close()
	assert.False(t, sink.AssertRef())
}

func TestChannelSinkRequestedLatency(t *testing.T) {
	sink := NewChannelSink(1, 0, time.Second)
	_, ok := sink.RequestedLatency()
	assert.False(t, ok)

	sink.SetRequestedLatency(50 * time.Millisecond)
	d, ok := sink.RequestedLatency()
	assert.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, d)
}

func TestChannelSinkLatencyRange(t *testing.T) {
	sink := NewChannelSink(1, 10*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, sink.MinLatency())
	assert.Equal(t, 100*time.Millisecond, sink.MaxLatency())

	sink.SetLatencyRange(20*time.Millisecond, 200*time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, sink.MinLatency())
	assert.Equal(t, 200*time.Millisecond, sink.MaxLatency())
}

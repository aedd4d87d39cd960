package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestRoundTripLaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hwMin := rapid.IntRange(0, 100).Draw(t, "hwMin")
		span := rapid.IntRange(3, 500).Draw(t, "span") // non-degenerate range
		hw := HardwareRange{Min: hwMin, Max: hwMin + span}

		v := rapid.Float64Range(0, 1).Draw(t, "v")

		assert.True(t, RoundTrips(v, hw), "volume %v did not round-trip for range %+v", v, hw)
	})
}

func TestDegenerateRangeDeclinesHardwareControl(t *testing.T) {
	assert.False(t, HardwareRange{Min: 0, Max: 2}.SupportsHardwareControl())
	assert.True(t, HardwareRange{Min: 0, Max: 3}.SupportsHardwareControl())
}

func TestToALSAVolumeClampsInput(t *testing.T) {
	hw := HardwareRange{Min: 0, Max: 100}
	assert.Equal(t, 0, ToALSAVolume(-1, hw))
	assert.Equal(t, 100, ToALSAVolume(2, hw))
}

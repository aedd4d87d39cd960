package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n5dsp/tschedcap/internal/driverapi"
)

func TestLoadAppliesDefaultsWithNoArgs(t *testing.T) {
	opts, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "tschedcap", opts.SourceName)
	assert.Equal(t, 4, opts.Fragments)
	assert.True(t, opts.Mmap)
	assert.True(t, opts.Tsched)
	assert.Equal(t, 44100, opts.RateHz)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	opts, err := Load([]string{"--rate", "48000", "--channels", "1", "--format", "u8", "--mmap=false"})
	require.NoError(t, err)
	assert.Equal(t, 48000, opts.RateHz)
	assert.Equal(t, 1, opts.NumChannels)
	assert.Equal(t, "u8", opts.Format)
	assert.False(t, opts.Mmap)
}

func TestLoadYAMLFileIsOverriddenByFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tschedcap.yaml")
	contents := "source_name: from-file\nrate: 22050\nchannels: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	opts, err := Load([]string{"--config", path, "--rate", "16000"})
	require.NoError(t, err)

	// rate was set on the command line: flag wins.
	assert.Equal(t, 16000, opts.RateHz)
	// source_name and channels came only from the file: file value kept.
	assert.Equal(t, "from-file", opts.SourceName)
	assert.Equal(t, 2, opts.NumChannels)
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	_, err := Load([]string{"--config", "/nonexistent/tschedcap.yaml"})
	assert.Error(t, err)
}

func TestValidateRejectsTooFewFragments(t *testing.T) {
	opts := Defaults()
	opts.Fragments = 1
	assert.Error(t, opts.Validate())
}

func TestValidateRejectsNonPositiveFragmentSize(t *testing.T) {
	opts := Defaults()
	opts.FragmentSize = 0
	assert.Error(t, opts.Validate())
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	opts := Defaults()
	opts.Format = "dsd"
	assert.Error(t, opts.Validate())
}

func TestSampleFormatMapsKnownStrings(t *testing.T) {
	cases := map[string]driverapi.Format{
		"":       driverapi.FormatS16LE,
		"s16le":  driverapi.FormatS16LE,
		"u8":     driverapi.FormatU8,
		"f32le":  driverapi.FormatF32LE,
	}
	for in, want := range cases {
		opts := Defaults()
		opts.Format = in
		got, err := opts.SampleFormat()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestGeometryRequestReflectsOptions(t *testing.T) {
	opts := Defaults()
	opts.FragmentSize = 1024
	opts.Fragments = 8
	opts.Mmap = false
	opts.Tsched = true

	req := opts.GeometryRequest()
	assert.Equal(t, 1024, req.FragmentSize)
	assert.Equal(t, 8, req.NFragments)
	assert.False(t, req.Mmap)
	assert.True(t, req.Tsched)
}

func TestStatisticsIntervalFlagParsesDuration(t *testing.T) {
	opts, err := Load([]string{"--statistics-interval", "5s"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, opts.StatisticsInterval)
}

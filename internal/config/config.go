// Package config parses the daemon's configuration, combining CLI flags
// (via github.com/spf13/pflag, the way the teacher's cmd/direwolf and
// src/appserver.go define flags with pflag.StringP/Bool and a custom
// Usage function) with an optional YAML defaults file (via
// gopkg.in/yaml.v3, the way src/deviceid.go unmarshals tocalls.yaml) that
// flags override.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/n5dsp/tschedcap/internal/driverapi"
	"github.com/n5dsp/tschedcap/internal/geometry"
)

// Options covers the configuration surface of SPEC_FULL.md §6: spec.md's
// original options plus the daemon-level additions (statistics, GPIO
// reservation, hotplug, mDNS announcement).
type Options struct {
	Device   string `yaml:"device"`
	DeviceID string `yaml:"device_id"`

	SourceName string `yaml:"source_name"`
	Name       string `yaml:"name"`

	Fragments    int `yaml:"fragments"`
	FragmentSize int `yaml:"fragment_size"`

	TschedBufferSize      int `yaml:"tsched_buffer_size"`
	TschedBufferWatermark int `yaml:"tsched_buffer_watermark"`

	Mmap     bool `yaml:"mmap"`
	Tsched   bool `yaml:"tsched"`
	IgnoreDB bool `yaml:"ignore_db"`

	RateHz      int    `yaml:"rate"`
	NumChannels int    `yaml:"channels"`
	Format      string `yaml:"format"`

	StatisticsInterval time.Duration `yaml:"statistics_interval"`

	ReservationGPIOChip string `yaml:"reservation_gpio_chip"`
	ReservationGPIOLine int    `yaml:"reservation_gpio_line"`

	HotplugWatch bool `yaml:"hotplug_watch"`

	Announce     bool   `yaml:"announce"`
	AnnounceName string `yaml:"announce_name"`
	AnnouncePort int    `yaml:"announce_port"`
}

// Defaults returns the configuration defaults of SPEC_FULL.md §6:
// tsched_buffer = 2s, tsched_watermark = 20ms, plus the daemon's own
// additions.
func Defaults() Options {
	return Options{
		SourceName:            "tschedcap",
		Fragments:             4,
		FragmentSize:          4096,
		TschedBufferSize:      durationBytesPlaceholder(geometry.DefaultTschedBufferTime),
		TschedBufferWatermark: durationBytesPlaceholder(geometry.DefaultTschedWatermarkTime),
		Mmap:                  true,
		Tsched:                true,
		RateHz:                44100,
		NumChannels:           2,
		Format:                "s16le",
		StatisticsInterval:    100 * time.Second,
		AnnouncePort:          8000,
	}
}

// durationBytesPlaceholder exists because the byte-equivalent of the
// default timing constants depends on the sample spec, which isn't known
// until the device is opened; Defaults reports them in microseconds here.
// TschedBufferSize and TschedBufferWatermark are parsed and stored only:
// nothing converts them to bytes or passes them to the engine, whose
// geometry is built from internal/geometry's default constants.
func durationBytesPlaceholder(d time.Duration) int { return int(d / time.Microsecond) }

// Load parses args (typically os.Args[1:]) into Options, starting from
// Defaults, optionally layered over a YAML file named by --config.
func Load(args []string) (*Options, error) {
	opts := Defaults()

	fs := pflag.NewFlagSet("tschedcapd", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Optional YAML defaults file.")

	fs.StringVar(&opts.Device, "device", opts.Device, "Driver device identifier.")
	fs.StringVar(&opts.DeviceID, "device-id", opts.DeviceID, "Driver device-id selector.")
	fs.StringVar(&opts.SourceName, "source-name", opts.SourceName, "Source name.")
	fs.StringVar(&opts.Name, "name", opts.Name, "Display name.")
	fs.IntVar(&opts.Fragments, "fragments", opts.Fragments, "Hardware period count.")
	fs.IntVar(&opts.FragmentSize, "fragment-size", opts.FragmentSize, "Hardware period size in bytes.")
	fs.IntVar(&opts.TschedBufferSize, "tsched-buffer-size", opts.TschedBufferSize, "Timer-scheduling buffer size in microseconds.")
	fs.IntVar(&opts.TschedBufferWatermark, "tsched-buffer-watermark", opts.TschedBufferWatermark, "Timer-scheduling watermark in microseconds.")
	fs.BoolVar(&opts.Mmap, "mmap", opts.Mmap, "Request the zero-copy mmap path.")
	fs.BoolVar(&opts.Tsched, "tsched", opts.Tsched, "Request timer-scheduled wakeups.")
	fs.BoolVar(&opts.IgnoreDB, "ignore-dB", opts.IgnoreDB, "Skip dB-scale volume negotiation.")
	fs.IntVar(&opts.RateHz, "rate", opts.RateHz, "Sample rate in Hz.")
	fs.IntVar(&opts.NumChannels, "channels", opts.NumChannels, "Channel count.")
	fs.StringVar(&opts.Format, "format", opts.Format, "Sample format (s16le, u8, f32le).")
	fs.DurationVar(&opts.StatisticsInterval, "statistics-interval", opts.StatisticsInterval, "Periodic rate-report interval (0 disables).")
	fs.StringVar(&opts.ReservationGPIOChip, "reservation-gpio-chip", opts.ReservationGPIOChip, "GPIO chip for the reservation hook.")
	fs.IntVar(&opts.ReservationGPIOLine, "reservation-gpio-line", opts.ReservationGPIOLine, "GPIO line offset for the reservation hook.")
	fs.BoolVar(&opts.HotplugWatch, "hotplug-watch", opts.HotplugWatch, "Watch the capture device node for removal.")
	fs.BoolVar(&opts.Announce, "announce", opts.Announce, "Announce the daemon via mDNS/DNS-SD.")
	fs.StringVar(&opts.AnnounceName, "announce-name", opts.AnnounceName, "mDNS service instance name.")
	fs.IntVar(&opts.AnnouncePort, "announce-port", opts.AnnouncePort, "mDNS service port.")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tschedcapd [options]\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", *configPath, err)
		}
		fileOpts := Defaults()
		if err := yaml.Unmarshal(data, &fileOpts); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", *configPath, err)
		}
		// Re-seed from the file's values, then re-parse args so that flags
		// actually set on the command line win over the file and everything
		// else keeps the file's value.
		opts = fileOpts
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Validate rejects configurations the engine cannot construct from,
// SPEC_FULL.md §7's "configuration-rejected" class.
func (o *Options) Validate() error {
	if o.Fragments < 2 {
		return fmt.Errorf("config: fragments must be >= 2, got %d", o.Fragments)
	}
	if o.FragmentSize <= 0 {
		return fmt.Errorf("config: fragment_size must be positive, got %d", o.FragmentSize)
	}
	if o.RateHz <= 0 {
		return fmt.Errorf("config: rate must be positive, got %d", o.RateHz)
	}
	if o.NumChannels <= 0 {
		return fmt.Errorf("config: channels must be positive, got %d", o.NumChannels)
	}
	if _, err := o.SampleFormat(); err != nil {
		return err
	}
	return nil
}

// SampleFormat resolves the configured format string to a driverapi.Format.
func (o *Options) SampleFormat() (driverapi.Format, error) {
	switch o.Format {
	case "s16le", "":
		return driverapi.FormatS16LE, nil
	case "u8":
		return driverapi.FormatU8, nil
	case "f32le":
		return driverapi.FormatF32LE, nil
	default:
		return 0, fmt.Errorf("config: unknown format %q", o.Format)
	}
}

// SampleSpec builds the driverapi.SampleSpec this configuration requests.
func (o *Options) SampleSpec() driverapi.SampleSpec {
	format, _ := o.SampleFormat()
	return driverapi.SampleSpec{Format: format, RateHz: o.RateHz, NumChannels: o.NumChannels}
}

// GeometryRequest builds the driverapi.GeometryRequest this configuration
// requests.
func (o *Options) GeometryRequest() driverapi.GeometryRequest {
	return driverapi.GeometryRequest{
		FragmentSize: o.FragmentSize,
		NFragments:   o.Fragments,
		Mmap:         o.Mmap,
		Tsched:       o.Tsched,
	}
}

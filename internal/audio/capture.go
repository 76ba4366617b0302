package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/NovaGlider/musicboom/internal/errors"
)

// CaptureConfig selects and configures the input device.
type CaptureConfig struct {
	Filter          string   // device name substring, case-insensitive
	Excluded        []string // device name substrings never selected
	FramesPerBuffer int
}

// Capturer captures mono audio from one input device via a portaudio
// callback stream. The callback runs on portaudio's real-time thread.
type Capturer struct {
	cfg CaptureConfig

	mu          sync.Mutex
	stream      *portaudio.Stream
	device      string
	running     bool
	initialized bool
}

// NewCapturer initializes portaudio and creates a capturer.
func NewCapturer(cfg CaptureConfig) (*Capturer, error) {
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "portaudio initialize")
	}
	return &Capturer{cfg: cfg, initialized: true}, nil
}

// Name returns the selected device name, empty before Start.
func (c *Capturer) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// Start selects the device and begins invoking h once per buffer.
func (c *Capturer) Start(_ context.Context, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeCaptureFailed, "list audio devices")
	}

	dev, err := c.selectDevice(devices)
	if err != nil {
		return err
	}

	sampleRate := int(dev.DefaultSampleRate)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      dev.DefaultSampleRate,
		FramesPerBuffer: c.cfg.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		h(in, sampleRate)
	})
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeCaptureFailed, "open stream on %q", dev.Name)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return apperrors.Wrapf(err, apperrors.CodeCaptureFailed, "start stream on %q", dev.Name)
	}

	c.stream = stream
	c.device = dev.Name
	c.running = true
	slog.Info("started audio capture", "device", dev.Name, "sample_rate", sampleRate, "frames", c.cfg.FramesPerBuffer)
	return nil
}

// Stop stops the stream and terminates portaudio. Portaudio's stop call
// returns only after the last callback has completed. Later calls are no-ops.
func (c *Capturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			firstErr = apperrors.Wrap(err, apperrors.CodeCaptureFailed, "stop stream")
		}
		_ = c.stream.Close()
		c.stream = nil
	}
	if c.initialized {
		_ = portaudio.Terminate()
		c.initialized = false
	}
	c.running = false
	return firstErr
}

// selectDevice returns the first usable input device matching the filter.
func (c *Capturer) selectDevice(devices []*portaudio.DeviceInfo) (*portaudio.DeviceInfo, error) {
	var (
		chosen    *portaudio.DeviceInfo
		available []string
	)
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		available = append(available, dev.Name)
		if chosen != nil || c.isExcluded(dev.Name) || !containsIgnoreCase(dev.Name, c.cfg.Filter) {
			continue
		}
		chosen = dev
	}

	if chosen == nil {
		return nil, apperrors.Newf(apperrors.CodeCaptureNoDevice, "no input device matches %q", c.cfg.Filter).
			WithMetadata("available", strings.Join(available, ", "))
	}
	return chosen, nil
}

func (c *Capturer) isExcluded(name string) bool {
	for _, ex := range c.cfg.Excluded {
		if ex != "" && containsIgnoreCase(name, ex) {
			return true
		}
	}
	return false
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Package config handles musicboom configuration
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/NovaGlider/musicboom/internal/dsp"
	apperrors "github.com/NovaGlider/musicboom/internal/errors"
)

// envPrefix namespaces every environment variable.
const envPrefix = "MUSICBOOM_"

type Config struct {
	Debug           bool
	LowCutoff       float64 // Hz
	HighCutoff      float64 // Hz
	Amplification   float64
	Reduction       string
	IntifaceURI     string
	CaptureFilter   string
	ExcludedDevices []string
	InputFile       string
	FramesPerBuffer int
	ScanTimeout     time.Duration
	HTTPAddr        string
	HealthAddr      string
	BarWidth        int
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		Debug:           getEnvBool("DEBUG", false),
		LowCutoff:       getEnvFloat("LOW_CUTOFF", dsp.DefaultLowCutoff),
		HighCutoff:      getEnvFloat("HIGH_CUTOFF", dsp.HighCutoff),
		Amplification:   getEnvFloat("AMPLIFICATION", dsp.DefaultAmplification),
		Reduction:       getEnv("REDUCTION", "min"),
		IntifaceURI:     getEnv("INTIFACE_URI", "ws://localhost:12345/ws"),
		// PulseAudio/PipeWire loopback inputs show up as "Monitor of <sink>"
		CaptureFilter:   getEnv("CAPTURE_FILTER", "monitor"),
		ExcludedDevices: getEnvList("EXCLUDED_DEVICES", nil),
		InputFile:       getEnv("INPUT_FILE", ""),
		FramesPerBuffer: getEnvInt("FRAMES_PER_BUFFER", 1024),
		ScanTimeout:     getEnvDuration("SCAN_TIMEOUT", 5*time.Second),
		HTTPAddr:        getEnv("HTTP_ADDR", ""),
		HealthAddr:      getEnv("HEALTH_ADDR", ""),
		BarWidth:        getEnvInt("BAR_WIDTH", 20),
	}
}

// ParseFlags applies command-line overrides to cfg. The first positional
// argument, if present, replaces the capture device filter.
func ParseFlags(cfg *Config, name string, args []string, output io.Writer) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: %s [flags] [capture-device-filter]\n\n", name)
		fs.PrintDefaults()
	}

	for _, n := range []string{"debug", "d"} {
		fs.BoolVar(&cfg.Debug, n, cfg.Debug, "print intensity bars and debug logs")
	}
	for _, n := range []string{"low", "l"} {
		fs.Float64Var(&cfg.LowCutoff, n, cfg.LowCutoff, "low-pass cutoff in Hz")
	}
	for _, n := range []string{"high", "f"} {
		fs.Float64Var(&cfg.HighCutoff, n, cfg.HighCutoff, "high-pass cutoff in Hz")
	}
	for _, n := range []string{"amp", "a"} {
		fs.Float64Var(&cfg.Amplification, n, cfg.Amplification, "linear gain applied after normalization")
	}
	for _, n := range []string{"uri", "u"} {
		fs.StringVar(&cfg.IntifaceURI, n, cfg.IntifaceURI, "Intiface server WebSocket address")
	}
	fs.StringVar(&cfg.Reduction, "reduction", cfg.Reduction, "envelope reduction: min, max or mean")
	fs.StringVar(&cfg.InputFile, "file", cfg.InputFile, "play a WAV, MP3 or OGG file instead of capturing")
	fs.IntVar(&cfg.FramesPerBuffer, "frames", cfg.FramesPerBuffer, "frames per audio block")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "monitor HTTP address (empty disables)")
	fs.StringVar(&cfg.HealthAddr, "health", cfg.HealthAddr, "gRPC health address (empty disables)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		cfg.CaptureFilter = fs.Arg(0)
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with. Cutoffs are
// checked against the sample rate later, once it is known.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return apperrors.Newf(apperrors.CodeConfigInvalid, format, args...).WithMetadata("field", field)
	}

	switch {
	case !(c.LowCutoff > 0):
		return invalid("low_cutoff", "low cutoff must be positive, got %v", c.LowCutoff)
	case !(c.HighCutoff > 0):
		return invalid("high_cutoff", "high cutoff must be positive, got %v", c.HighCutoff)
	case !(c.Amplification > 0):
		return invalid("amplification", "amplification must be positive, got %v", c.Amplification)
	case c.FramesPerBuffer <= 0:
		return invalid("frames_per_buffer", "frames per buffer must be positive, got %d", c.FramesPerBuffer)
	case c.BarWidth <= 0:
		return invalid("bar_width", "bar width must be positive, got %d", c.BarWidth)
	case c.ScanTimeout <= 0:
		return invalid("scan_timeout", "scan timeout must be positive, got %v", c.ScanTimeout)
	}
	if _, err := dsp.ParseReduction(c.Reduction); err != nil {
		return apperrors.Wrap(err, apperrors.CodeConfigInvalid, "invalid reduction").WithMetadata("field", "reduction")
	}
	if !strings.HasPrefix(c.IntifaceURI, "ws://") && !strings.HasPrefix(c.IntifaceURI, "wss://") {
		return invalid("intiface_uri", "intiface uri must be a ws:// or wss:// address, got %q", c.IntifaceURI)
	}
	return nil
}

// ReductionMode returns the parsed envelope reduction.
func (c *Config) ReductionMode() dsp.Reduction {
	r, _ := dsp.ParseReduction(c.Reduction)
	return r
}

func getEnv(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(envPrefix + key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(envPrefix + key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}

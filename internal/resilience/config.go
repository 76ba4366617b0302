package resilience

import "time"

// Circuit breaker configuration constants
const (
	// Default configuration
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Device command path: blocks arrive every ~20ms, so trip early and
	// close again soon after the device recovers
	DeviceThreshold         = 8
	DeviceResetTimeout      = 2 * time.Second
	DeviceHalfOpenSuccesses = 4
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string        // label used in logs
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close

	// IsFailure decides whether an error counts against the breaker.
	// Errors it rejects are returned unchanged without a state change.
	IsFailure func(error) bool
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		Name:              "default",
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// DeviceConfig returns settings for per-block device commands.
func DeviceConfig() Config {
	return Config{
		Name:              "device",
		Threshold:         DeviceThreshold,
		ResetTimeout:      DeviceResetTimeout,
		HalfOpenSuccesses: DeviceHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return err != nil }
	}
	return c
}

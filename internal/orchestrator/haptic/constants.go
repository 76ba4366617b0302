package haptic

// Processor defaults
const (
	// Initial scratch capacity, matches the default capture buffer
	defaultScratchSamples = 1024
)

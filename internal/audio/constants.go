package audio

// Capture constants
const (
	// Frames delivered per callback (~21ms at 48kHz)
	DefaultFramesPerBuffer = 1024

	// Device name substring selected when no filter is configured
	DefaultDeviceFilter = "monitor"

	// Scale for 16-bit PCM to float conversion
	int16Scale = 32768.0

	// Consecutive zero-length decoder reads treated as end of file
	maxEmptyReads = 8
)

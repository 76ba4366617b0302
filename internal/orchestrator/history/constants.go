package history

// History defaults
const (
	// ~10s of frames at 48kHz/1024
	DefaultMaxFrames   = 512
	DefaultEventBuffer = 256
)

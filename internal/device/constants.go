package device

import "time"

// Protocol constants
const (
	ClientName     = "MusicBoom"
	MessageVersion = 3

	DefaultURI = "ws://localhost:12345/ws"

	// Actuator type driven by ScalarCmd
	ActuatorVibrate = "Vibrate"
)

// Server error codes carried in Error messages
const (
	ErrorUnknown = iota
	ErrorInit
	ErrorPing
	ErrorMessage
	ErrorDevice
)

// Timing
const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultScanTimeout    = 5 * time.Second
	DefaultDialTimeout    = 3 * time.Second

	// Ping at half the server's MaxPingTime so one late ping is tolerated
	pingFraction = 2
)

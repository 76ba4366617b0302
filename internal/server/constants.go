// Package server provides the monitor HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Per-connection sliding window for client messages
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Deadline for one frame batch write to a monitor client
	BroadcastWriteTimeout = time.Second

	// History endpoint sizing
	DefaultHistoryFrames = 64
	MaxHistoryFrames     = 512
)

// Package orchestrator wires capture, processing and dispatch into one pipeline
package orchestrator

// Pipeline constants
const (
	// Queued blocks above which the consumer warns that it is falling behind.
	// The warning rearms once the backlog drops below half of this.
	BacklogWarnThreshold = 64

	// Frames kept for the history endpoint
	HistoryMaxFrames = 512

	// Buffered frame events for the monitor feed
	HistoryEventBuffer = 256
)

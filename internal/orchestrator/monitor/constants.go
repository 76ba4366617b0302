package monitor

import "time"

// Monitor batcher defaults
const (
	DefaultBatcherMaxSize    = 16
	DefaultBatcherFlushDelay = 100 * time.Millisecond
)

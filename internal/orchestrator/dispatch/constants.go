package dispatch

import "time"

// Rendering constants
const (
	DefaultBarWidth = 20

	filledGlyph = '█'
	emptyGlyph  = '░'
)

// DefaultWarnInterval is the minimum gap between failure warnings while the
// device breaker is open.
const DefaultWarnInterval = 5 * time.Second

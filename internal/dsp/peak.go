package dsp

// PeakTracker is a running maximum that relaxes geometrically.
// The value jumps up to any larger observation and is multiplied by the
// decay factor once per block. It never drops below PeakEpsilon.
type PeakTracker struct {
	value float64
	decay float64
}

// NewPeakTracker creates a tracker starting at PeakEpsilon.
func NewPeakTracker(decay float64) PeakTracker {
	return PeakTracker{value: PeakEpsilon, decay: decay}
}

// Observe raises the peak to x if x exceeds it.
func (p *PeakTracker) Observe(x float64) {
	if x > p.value {
		p.value = x
	}
}

// Decay relaxes the peak by the decay factor.
func (p *PeakTracker) Decay() {
	p.value *= p.decay
	if p.value < PeakEpsilon {
		p.value = PeakEpsilon
	}
}

// Value returns the current peak.
func (p *PeakTracker) Value() float64 { return p.value }

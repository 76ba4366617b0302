// Package dsp implements the two-band envelope and adaptive normalization stages
package dsp

import "math"

// Signal processing constants
const (
	// Default low-pass cutoff in Hz
	DefaultLowCutoff = 200.0

	// High-pass cutoff in Hz, fixed for the high band
	HighCutoff = 2000.0

	// Q of a second-order Butterworth section
	ButterworthQ = 1 / math.Sqrt2

	// Per-band peak decay applied after every block
	BandPeakDecay = 0.9999

	// Global peak decay applied after every block
	GlobalPeakDecay = 0.999

	// Initial peak value; keeps divisions finite before the first observation
	PeakEpsilon = 1e-10

	// Default linear amplification applied after normalization
	DefaultAmplification = 1.1
)

package dsp

import "math"

// Normalizer rescales per-band magnitudes against their own decaying peaks
// and a shared global peak, then amplifies and clamps into [0,1].
type Normalizer struct {
	bands         [NumBands]PeakTracker
	global        PeakTracker
	amplification float64
}

// NewNormalizer creates a normalizer with fresh trackers.
func NewNormalizer(amplification float64) *Normalizer {
	n := &Normalizer{
		global:        NewPeakTracker(GlobalPeakDecay),
		amplification: amplification,
	}
	for i := range n.bands {
		n.bands[i] = NewPeakTracker(BandPeakDecay)
	}
	return n
}

// Normalize converts raw magnitudes into intensities, writing into out.
// Trackers decay once per call.
func (n *Normalizer) Normalize(out, magnitudes *[NumBands]float64) {
	var current float64
	for i, m := range magnitudes {
		n.bands[i].Observe(m)
		out[i] = m / n.bands[i].Value()
		if out[i] > current {
			current = out[i]
		}
	}
	n.global.Observe(current)

	g := n.global.Value()
	for i := range out {
		out[i] = clamp01(out[i] / g * n.amplification)
		n.bands[i].Decay()
	}
	n.global.Decay()
}

// BandPeak returns the current peak of band b.
func (n *Normalizer) BandPeak(b Band) float64 { return n.bands[b].Value() }

// GlobalPeak returns the current global peak.
func (n *Normalizer) GlobalPeak() float64 { return n.global.Value() }

// Amplification returns the configured linear gain.
func (n *Normalizer) Amplification() float64 { return n.amplification }

func clamp01(x float64) float64 {
	switch {
	case x > 1:
		return 1
	case x < 0 || math.IsNaN(x):
		return 0
	default:
		return x
	}
}

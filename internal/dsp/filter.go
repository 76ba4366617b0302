package dsp

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	apperrors "github.com/NovaGlider/musicboom/internal/errors"
)

// Kind is the response shape of a filter section.
type Kind int

const (
	LowPass Kind = iota
	HighPass
)

func (k Kind) String() string {
	if k == HighPass {
		return "highpass"
	}
	return "lowpass"
}

// Filter is one second-order IIR section in transposed direct form.
// State persists across calls to Run; it is not safe for concurrent use.
type Filter struct {
	kind       Kind
	sampleRate int
	cutoff     float64
	q          float64
	section    *biquad.Section
}

// NewFilter designs a section for the given sample rate and cutoff.
// The cutoff must lie strictly between 0 and the Nyquist frequency.
func NewFilter(kind Kind, sampleRate int, cutoff, q float64) (*Filter, error) {
	if err := ValidateCutoff(sampleRate, cutoff); err != nil {
		return nil, err
	}
	if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return nil, apperrors.Newf(apperrors.CodeFilterInvalidCutoff, "invalid quality factor %g", q)
	}

	var c biquad.Coefficients
	switch kind {
	case HighPass:
		c = design.Highpass(cutoff, q, float64(sampleRate))
	default:
		c = design.Lowpass(cutoff, q, float64(sampleRate))
	}

	return &Filter{
		kind:       kind,
		sampleRate: sampleRate,
		cutoff:     cutoff,
		q:          q,
		section:    biquad.NewSection(c),
	}, nil
}

// ValidateCutoff reports whether cutoff is usable at sampleRate.
func ValidateCutoff(sampleRate int, cutoff float64) error {
	if sampleRate <= 0 {
		return apperrors.Newf(apperrors.CodeFilterInvalidCutoff, "invalid sample rate %d", sampleRate).
			WithMetadata("sample_rate", fmt.Sprint(sampleRate))
	}
	nyquist := float64(sampleRate) / 2
	if !(cutoff > 0 && cutoff < nyquist) {
		return apperrors.Newf(apperrors.CodeFilterInvalidCutoff,
			"cutoff %g Hz outside (0, %g) for sample rate %d", cutoff, nyquist, sampleRate).
			WithMetadata("cutoff", fmt.Sprint(cutoff)).
			WithMetadata("sample_rate", fmt.Sprint(sampleRate))
	}
	return nil
}

// Run filters one sample.
func (f *Filter) Run(x float64) float64 {
	return f.section.ProcessSample(x)
}

// Process filters src into dst. dst must be at least as long as src.
func (f *Filter) Process(dst []float64, src []float32) []float64 {
	dst = dst[:len(src)]
	for i, x := range src {
		dst[i] = f.section.ProcessSample(float64(x))
	}
	return dst
}

// Reset clears the delay registers.
func (f *Filter) Reset() { f.section.Reset() }

// SampleRate returns the rate the coefficients were designed for.
func (f *Filter) SampleRate() int { return f.sampleRate }

// Cutoff returns the design cutoff in Hz.
func (f *Filter) Cutoff() float64 { return f.cutoff }

// Kind returns the response shape.
func (f *Filter) Kind() Kind { return f.kind }

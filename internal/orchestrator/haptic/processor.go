// Package haptic turns audio blocks into per-band vibration intensities
package haptic

import (
	"context"
	"time"

	"github.com/NovaGlider/musicboom/internal/audio"
	"github.com/NovaGlider/musicboom/internal/dsp"
	"github.com/NovaGlider/musicboom/internal/trace"
)

// Config for the haptic processor
type Config struct {
	LowCutoff     float64
	HighCutoff    float64
	Amplification float64
	Reduction     dsp.Reduction
}

// DefaultConfig returns the stock two-band setup.
func DefaultConfig() Config {
	return Config{
		LowCutoff:     dsp.DefaultLowCutoff,
		HighCutoff:    dsp.HighCutoff,
		Amplification: dsp.DefaultAmplification,
		Reduction:     dsp.ReduceMin,
	}
}

// Frame is the result of processing one block.
type Frame struct {
	Seq         uint64                `json:"seq"`
	SampleRate  int                   `json:"sample_rate"`
	Samples     int                   `json:"samples"`
	Captured    time.Time             `json:"captured"`
	Magnitudes  [dsp.NumBands]float64 `json:"magnitudes"`
	Intensities [dsp.NumBands]float64 `json:"intensities"`
	BandPeaks   [dsp.NumBands]float64 `json:"band_peaks"`
	GlobalPeak  float64               `json:"global_peak"`
}

// Processor runs the filter bank, envelope and normalizer for successive
// blocks. Filter and peak state carry over between blocks; the filter bank
// is rebuilt only when the sample rate changes. Not safe for concurrent use.
type Processor struct {
	cfg        Config
	filters    [dsp.NumBands]*dsp.Filter
	norm       *dsp.Normalizer
	sampleRate int
	rebuilds   int
	scratch    []float64
}

// NewProcessor creates a processor. Filters are built on the first block,
// once the sample rate is known.
func NewProcessor(cfg Config) *Processor {
	if cfg.LowCutoff == 0 {
		cfg.LowCutoff = dsp.DefaultLowCutoff
	}
	if cfg.HighCutoff == 0 {
		cfg.HighCutoff = dsp.HighCutoff
	}
	if cfg.Amplification == 0 {
		cfg.Amplification = dsp.DefaultAmplification
	}
	return &Processor{
		cfg:     cfg,
		norm:    dsp.NewNormalizer(cfg.Amplification),
		scratch: make([]float64, defaultScratchSamples),
	}
}

// Process converts one block into a frame. A cutoff that is invalid for the
// block's sample rate returns a FILTER_INVALID_CUTOFF error.
func (p *Processor) Process(ctx context.Context, b audio.Block) (Frame, error) {
	if b.SampleRate != p.sampleRate || p.filters[dsp.Low] == nil {
		if err := p.rebuild(ctx, b.SampleRate); err != nil {
			return Frame{}, err
		}
	}

	if cap(p.scratch) < len(b.Samples) {
		p.scratch = make([]float64, len(b.Samples))
	}

	f := Frame{
		Seq:        b.Seq,
		SampleRate: b.SampleRate,
		Samples:    len(b.Samples),
		Captured:   b.Captured,
	}
	for _, band := range dsp.Bands {
		y := p.filters[band].Process(p.scratch, b.Samples)
		f.Magnitudes[band] = dsp.Envelope(y, p.cfg.Reduction)
	}

	p.norm.Normalize(&f.Intensities, &f.Magnitudes)
	for _, band := range dsp.Bands {
		f.BandPeaks[band] = p.norm.BandPeak(band)
	}
	f.GlobalPeak = p.norm.GlobalPeak()
	return f, nil
}

func (p *Processor) rebuild(ctx context.Context, sampleRate int) error {
	var filters [dsp.NumBands]*dsp.Filter
	for _, band := range dsp.Bands {
		flt, err := dsp.NewFilter(band.Kind(), sampleRate, p.Cutoff(band), dsp.ButterworthQ)
		if err != nil {
			return err
		}
		filters[band] = flt
	}

	p.filters = filters
	p.sampleRate = sampleRate
	p.rebuilds++
	trace.Logger(ctx).Info("filter bank configured",
		"sample_rate", sampleRate,
		"low_cutoff", p.cfg.LowCutoff,
		"high_cutoff", p.cfg.HighCutoff,
		"reduction", p.cfg.Reduction.String(),
	)
	return nil
}

// Cutoff returns the configured cutoff of band b.
func (p *Processor) Cutoff(b dsp.Band) float64 {
	if b == dsp.High {
		return p.cfg.HighCutoff
	}
	return p.cfg.LowCutoff
}

// SampleRate returns the rate the filter bank is currently built for.
func (p *Processor) SampleRate() int { return p.sampleRate }

// Rebuilds returns how many times the filter bank has been built.
func (p *Processor) Rebuilds() int { return p.rebuilds }

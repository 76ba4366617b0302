package dsp

import (
	"fmt"
	"math"
	"strings"
)

// Reduction collapses a block of absolute sample values into one magnitude.
type Reduction int

const (
	// ReduceMin takes the quietest instantaneous deviation in the block.
	ReduceMin Reduction = iota
	ReduceMax
	ReduceMean
)

func (r Reduction) String() string {
	return [...]string{"min", "max", "mean"}[r]
}

// ParseReduction maps a name ("min", "max", "mean") to a Reduction.
func ParseReduction(s string) (Reduction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min", "":
		return ReduceMin, nil
	case "max":
		return ReduceMax, nil
	case "mean", "avg":
		return ReduceMean, nil
	default:
		return ReduceMin, fmt.Errorf("unknown reduction %q", s)
	}
}

// Envelope returns the reduced magnitude of samples. Non-finite samples are
// skipped; an empty (or fully skipped) block yields 0.
func Envelope(samples []float64, r Reduction) float64 {
	var (
		acc   float64
		count int
	)
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		a := math.Abs(s)
		switch {
		case count == 0:
			acc = a
		case r == ReduceMin:
			acc = math.Min(acc, a)
		case r == ReduceMax:
			acc = math.Max(acc, a)
		default:
			acc += a
		}
		count++
	}
	if count == 0 {
		return 0
	}
	if r == ReduceMean {
		return acc / float64(count)
	}
	return acc
}

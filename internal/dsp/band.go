package dsp

// Band identifies one frequency-filtered signal path.
type Band int

const (
	Low  Band = iota // low-pass path
	High             // high-pass path
)

// NumBands is the number of bands and the length of every intensity vector.
const NumBands = 2

// Bands lists all bands in intensity-vector order.
var Bands = [NumBands]Band{Low, High}

func (b Band) String() string {
	switch b {
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Kind returns the filter shape used by the band.
func (b Band) Kind() Kind {
	if b == High {
		return HighPass
	}
	return LowPass
}

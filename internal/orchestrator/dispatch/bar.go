package dispatch

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/NovaGlider/musicboom/internal/dsp"
	"github.com/NovaGlider/musicboom/internal/orchestrator/haptic"
)

// Bar renders x as n glyphs. Position k is filled iff x >= k/(n-1), so 0
// fills the first glyph and 1 fills all of them. A single-glyph bar has no
// defined threshold (0/0) and is always empty.
func Bar(x float64, n int) string {
	if n <= 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(n * 3)
	for k := 0; k < n; k++ {
		if n > 1 && x >= float64(k)/float64(n-1) {
			sb.WriteRune(filledGlyph)
		} else {
			sb.WriteRune(emptyGlyph)
		}
	}
	return sb.String()
}

// Renderer formats frames as one debug line each.
type Renderer struct {
	width  int
	peaks  lipgloss.Style
	bars   [dsp.NumBands]lipgloss.Style
	spacer string
}

// NewRenderer creates a renderer whose color profile matches w.
func NewRenderer(w io.Writer, width int) *Renderer {
	if width <= 0 {
		width = DefaultBarWidth
	}
	r := lipgloss.NewRenderer(w)
	return &Renderer{
		width: width,
		peaks: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#AAAAAA"}),
		bars: [dsp.NumBands]lipgloss.Style{
			dsp.Low:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B03A2E", Dark: "#F26056"}),
			dsp.High: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1F618D", Dark: "#5DADE2"}),
		},
		spacer: " ",
	}
}

// Line returns "<global> [<band peaks>] <bar per band>".
func (r *Renderer) Line(f haptic.Frame) string {
	peaks := make([]string, len(f.BandPeaks))
	for i, p := range f.BandPeaks {
		peaks[i] = fmt.Sprintf("%.4f", p)
	}
	parts := []string{
		r.peaks.Render(fmt.Sprintf("%.4f [%s]", f.GlobalPeak, strings.Join(peaks, " "))),
	}
	for _, band := range dsp.Bands {
		parts = append(parts, r.bars[band].Render(Bar(f.Intensities[band], r.width)))
	}
	return strings.Join(parts, r.spacer)
}

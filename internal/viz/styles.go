package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	SparkHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))
	SparkMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffcc00"))
	SparkLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
)

// AnimatedSpinner returns one frame of a braille spinner.
func AnimatedSpinner(frame int) string {
	spinners := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return spinners[frame%len(spinners)]
}

// ProgressBar renders percent (0..100) as a bar of width cells.
func ProgressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	filled = min(max(filled, 0), width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	switch {
	case percent > 80:
		return SparkHigh.Render(bar)
	case percent > 40:
		return SparkMid.Render(bar)
	}
	return SparkLow.Render(bar)
}

// Slider renders the turn slider: a track with a knob at turn.
func Slider(turn, maxTurn, width int) string {
	if width < 1 {
		return ""
	}
	pos := 0
	if maxTurn > 0 {
		pos = turn * (width - 1) / maxTurn
	}
	pos = min(max(pos, 0), width-1)
	return strings.Repeat("━", pos) + "●" + strings.Repeat("─", width-1-pos)
}

// SparklineChart renders a mini sparkline, sampling values to fit width.
func SparklineChart(values []float64, width int) string {
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}

	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	step := max(len(values)/width, 1)

	var result strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		norm := (values[i*step] - lo) / rng
		idx := min(max(int(norm*float64(len(chars)-1)), 0), len(chars)-1)

		c := string(chars[idx])
		switch {
		case norm > 0.7:
			result.WriteString(SparkHigh.Render(c))
		case norm > 0.3:
			result.WriteString(SparkMid.Render(c))
		default:
			result.WriteString(SparkLow.Render(c))
		}
	}
	return result.String()
}

package paint

import (
	"fmt"
	"math"
	"strings"
)

const (
	cellSize    = 8
	viewPadding = 5
)

// SVG draws the board state. The root element carries id="vis" and declares
// width and height so exporters can size their raster surface.
func SVG(in *Input, state [][]int) string {
	w := in.N * cellSize
	size := w + 2*viewPadding

	var sb strings.Builder
	sb.Grow(in.N * in.N * 120)
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" id="vis" viewBox="%d %d %d %d" width="%d" height="%d" style="background-color:white">`,
		-viewPadding, -viewPadding, size, size, size, size)
	sb.WriteString("\n")
	sb.WriteString(`<style>text {text-anchor: middle;dominant-baseline: central; font-size: 6}</style>`)
	sb.WriteString("\n")

	for y := 0; y < in.N; y++ {
		for x := 0; x < in.N; x++ {
			fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s" stroke="black" stroke-width="1" class="box"/>`,
				x*cellSize, w-(y+1)*cellSize, cellSize, cellSize, Color(state[y][x]))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// Color maps a colour code to a dark hue spaced 36 degrees apart.
func Color(code int) string {
	h := math.Mod(float64(code)*36, 360) / 360
	r, g, b := hslToRGB(h, 0.45, 0.35)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	r := hueToRGB(p, q, h+1.0/3)
	g := hueToRGB(p, q, h)
	b := hueToRGB(p, q, h-1.0/3)
	return toByte(r), toByte(g), toByte(b)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}

func toByte(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

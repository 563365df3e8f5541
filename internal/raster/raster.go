// Package raster draws SVG frames onto private RGBA surfaces.
//
// The surface is sized from the root element's declared width and height
// (falling back to the viewBox extent) and pre-filled white, so every frame
// of an export shares the same opaque background.
package raster

import (
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
)

// Surfaces larger than these are refused rather than allocated.
const (
	MaxSide   = 8192
	MaxPixels = 16 << 20
)

var (
	ErrParse    = errors.New("raster: svg parse failed")
	ErrViewport = errors.New("raster: missing or invalid viewport")
)

// Viewport is the pixel size declared by an SVG root element.
type Viewport struct {
	Width, Height int
}

func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// Validate rejects empty viewports and those past MaxSide or MaxPixels.
func (v Viewport) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("%w: %v is empty", ErrViewport, v)
	}
	if v.Width > MaxSide || v.Height > MaxSide || v.Width*v.Height > MaxPixels {
		return fmt.Errorf("%w: %v exceeds %dx%d or %d pixels", ErrViewport, v, MaxSide, MaxSide, MaxPixels)
	}
	return nil
}

// Rect is the surface bounds for v.
func (v Viewport) Rect() image.Rectangle {
	return image.Rect(0, 0, v.Width, v.Height)
}

// ParseViewport reads width and height from the root <svg> element. When
// either is missing the viewBox extent is used instead.
func ParseViewport(svg string) (Viewport, error) {
	dec := xml.NewDecoder(strings.NewReader(svg))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return Viewport{}, fmt.Errorf("%w: no root element", ErrParse)
		}
		if err != nil {
			return Viewport{}, fmt.Errorf("%w: %w", ErrParse, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return Viewport{}, fmt.Errorf("%w: root element is <%s>", ErrParse, start.Name.Local)
		}
		return viewportOf(start)
	}
}

func viewportOf(root xml.StartElement) (Viewport, error) {
	var width, height, viewBox string
	for _, a := range root.Attr {
		switch a.Name.Local {
		case "width":
			width = a.Value
		case "height":
			height = a.Value
		case "viewBox":
			viewBox = a.Value
		}
	}

	w, wok := length(width)
	h, hok := length(height)
	if wok && hok {
		return sized(w, h)
	}

	fields := strings.FieldsFunc(viewBox, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) == 4 {
		w, wok = length(fields[2])
		h, hok = length(fields[3])
		if wok && hok {
			return sized(w, h)
		}
	}
	return Viewport{}, fmt.Errorf("%w: width=%q height=%q viewBox=%q", ErrViewport, width, height, viewBox)
}

// sized rounds a declared size up to whole pixels. The bound is checked
// before conversion so huge lengths cannot overflow int.
func sized(w, h float64) (Viewport, error) {
	if w > MaxSide || h > MaxSide {
		return Viewport{}, fmt.Errorf("%w: %gx%g exceeds %dx%d", ErrViewport, w, h, MaxSide, MaxSide)
	}
	vp := Viewport{Width: int(math.Ceil(w)), Height: int(math.Ceil(h))}
	if err := vp.Validate(); err != nil {
		return Viewport{}, err
	}
	return vp, nil
}

// length accepts plain numbers and "px" lengths. Percentages and other
// units have no pixel size.
func length(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Rasterize draws svg onto a new white surface of its declared viewport.
func Rasterize(svg string) (*image.RGBA, Viewport, error) {
	vp, err := ParseViewport(svg)
	if err != nil {
		return nil, Viewport{}, err
	}
	img, err := RasterizeInto(svg, vp)
	return img, vp, err
}

// RasterizeInto draws svg onto a new white surface of size vp. The SVG is
// scaled to fill the surface.
func RasterizeInto(svg string, vp Viewport) (*image.RGBA, error) {
	if err := vp.Validate(); err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	img := image.NewRGBA(vp.Rect())
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	icon.SetTarget(0, 0, float64(vp.Width), float64(vp.Height))
	scanner := rasterx.NewScannerGV(vp.Width, vp.Height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(vp.Width, vp.Height, scanner), 1)
	return img, nil
}

// Thumbnail scales src to fit within w x h, keeping its aspect ratio.
func Thumbnail(src image.Image, w, h int) *image.RGBA {
	b := src.Bounds()
	if w <= 0 || h <= 0 || b.Empty() {
		return image.NewRGBA(image.Rectangle{})
	}
	scale := math.Min(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
	tw := max(1, int(float64(b.Dx())*scale))
	th := max(1, int(float64(b.Dy())*scale))

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

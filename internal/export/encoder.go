package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Encoder collects frames and produces one animation file.
//
// Progress passed to Encode is a fraction in [0, 1] and never decreases.
type Encoder interface {
	AddFrame(img *image.RGBA, delay time.Duration) error
	Encode(ctx context.Context, progress func(float64)) ([]byte, error)
}

// GIFEncoder quantizes frames to the Plan 9 palette on a small worker pool
// and writes a looping GIF.
type GIFEncoder struct {
	workers int
	dither  bool

	frames []*image.RGBA
	delays []int
}

func NewGIFEncoder(workers int, dither bool) *GIFEncoder {
	return &GIFEncoder{workers: max(workers, 1), dither: dither}
}

func (e *GIFEncoder) AddFrame(img *image.RGBA, delay time.Duration) error {
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("export: empty frame %d", len(e.frames))
	}
	e.frames = append(e.frames, img)
	e.delays = append(e.delays, centiseconds(delay))
	return nil
}

// Len is the number of frames added so far.
func (e *GIFEncoder) Len() int { return len(e.frames) }

func (e *GIFEncoder) Encode(ctx context.Context, progress func(float64)) ([]byte, error) {
	if len(e.frames) == 0 {
		return nil, ErrNoFrames
	}
	if progress == nil {
		progress = func(float64) {}
	}

	paletted := make([]*image.Paletted, len(e.frames))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, frame := range e.frames {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			paletted[i] = e.quantize(frame)

			mu.Lock()
			done++
			progress(float64(done) / float64(len(e.frames)+1))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	anim := &gif.GIF{
		Image:     paletted,
		Delay:     e.delays,
		LoopCount: 0,
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("export: encode gif: %w", err)
	}
	progress(1)
	return buf.Bytes(), nil
}

func (e *GIFEncoder) quantize(src *image.RGBA) *image.Paletted {
	b := src.Bounds()
	dst := image.NewPaletted(b, palette.Plan9)
	if e.dither {
		draw.FloydSteinberg.Draw(dst, b, src, b.Min)
	} else {
		draw.Draw(dst, b, src, b.Min, draw.Src)
	}
	return dst
}

// centiseconds converts a frame delay to GIF units, never below 1.
func centiseconds(d time.Duration) int {
	cs := int(math.Round(float64(d) / float64(10*time.Millisecond)))
	return max(cs, 1)
}

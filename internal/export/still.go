package export

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/san-kum/replayvis/internal/caseio"
	"github.com/san-kum/replayvis/internal/raster"
)

// Still exports single turns as PNG images.
type Still struct {
	frames FrameSource
}

func NewStill(frames FrameSource) *Still {
	return &Still{frames: frames}
}

// ExportPNG renders turn and encodes it at its declared viewport size.
func (s *Still) ExportPNG(ctx context.Context, c caseio.Case, turn int) ([]byte, error) {
	if turn < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTurn, turn)
	}
	res := s.frames.Render(ctx, c, turn)
	img, _, err := raster.Rasterize(res.Image)
	if err != nil {
		return nil, &FrameError{Turn: turn, Wrapped: err}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &FrameError{Turn: turn, Wrapped: err}
	}
	return buf.Bytes(), nil
}

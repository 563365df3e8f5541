package export

import (
	"errors"
	"fmt"
)

var (
	// ErrJobInFlight is returned by Runner.Start while another export runs.
	ErrJobInFlight = errors.New("export: job already in flight")

	// ErrNoFrames indicates an encoder was finalized without frames.
	ErrNoFrames = errors.New("export: no frames")

	// ErrViewportChanged indicates a frame declared a different size than
	// frame 0. All frames of an animation share one surface size.
	ErrViewportChanged = errors.New("export: viewport changed between frames")

	// ErrInvalidTurn indicates a turn range that cannot be exported.
	ErrInvalidTurn = errors.New("export: invalid turn")

	// ErrPanic wraps a panic raised while a Runner job was exporting.
	ErrPanic = errors.New("export: job panicked")
)

// FrameError records the turn at which an export failed.
type FrameError struct {
	Turn    int
	Wrapped error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("turn %d: %v", e.Turn, e.Wrapped)
}

func (e *FrameError) Unwrap() error {
	return e.Wrapped
}

package oracle

import (
	"context"
	"errors"
)

// Frame is what a single render call returns: SVG markup, an in-band
// annotation the oracle wants shown next to the score, and the score itself.
type Frame struct {
	SVG   string `json:"svg"`
	Err   string `json:"err"`
	Score int64  `json:"score"`
}

// Generator produces the input text for a seed.
type Generator interface {
	Generate(ctx context.Context, seed uint64) (string, error)
}

// TurnCounter computes the number of turns an output describes.
type TurnCounter interface {
	MaxTurn(ctx context.Context, input, output string) (int, error)
}

// Renderer renders one turn of a case.
type Renderer interface {
	Render(ctx context.Context, input, output string, turn int) (Frame, error)
}

// Oracle is the full simulation module consumed by the viewer.
type Oracle interface {
	Generator
	TurnCounter
	Renderer
}

var (
	// ErrMalformed indicates the oracle rejected its input or output text.
	ErrMalformed = errors.New("oracle: malformed input or output")

	// ErrTurnOutOfRange indicates a render request past the last turn.
	ErrTurnOutOfRange = errors.New("oracle: turn out of range")

	// ErrModule indicates the hosted module trapped, exited non-zero or
	// produced an unreadable response.
	ErrModule = errors.New("oracle: module failure")
)

// CallError records which oracle operation failed.
type CallError struct {
	Op      string
	Wrapped error
}

func (e *CallError) Error() string {
	return e.Op + ": " + e.Wrapped.Error()
}

func (e *CallError) Unwrap() error {
	return e.Wrapped
}

// Package paint is a native oracle for the flood-fill painting problem the
// viewer was first built for. It needs no external module and is the
// default oracle.
package paint

import (
	"context"
	"fmt"
	"strings"

	"github.com/san-kum/replayvis/internal/oracle"
)

type Oracle struct{}

var _ oracle.Oracle = Oracle{}

func New() Oracle {
	return Oracle{}
}

func (Oracle) Generate(_ context.Context, seed uint64) (string, error) {
	return Gen(seed).String(), nil
}

func (Oracle) MaxTurn(_ context.Context, input, output string) (int, error) {
	if strings.TrimSpace(output) == "" {
		return 0, nil
	}
	in, err := ParseInput(input)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", oracle.ErrMalformed, err)
	}
	out, err := ParseOutput(in, output)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", oracle.ErrMalformed, err)
	}
	return len(out.Ops), nil
}

func (Oracle) Render(_ context.Context, input, output string, turn int) (oracle.Frame, error) {
	in, err := ParseInput(input)
	if err != nil {
		return oracle.Frame{}, fmt.Errorf("%w: %v", oracle.ErrMalformed, err)
	}
	out, err := ParseOutput(in, output)
	if err != nil {
		return oracle.Frame{}, fmt.Errorf("%w: %v", oracle.ErrMalformed, err)
	}
	if turn < 0 || turn > len(out.Ops) {
		return oracle.Frame{}, fmt.Errorf("%w: %d not in [0, %d]", oracle.ErrTurnOutOfRange, turn, len(out.Ops))
	}

	state := Apply(in, out.Ops[:turn])
	return oracle.Frame{
		SVG:   SVG(in, state),
		Score: Score(in, state, turn),
	}, nil
}

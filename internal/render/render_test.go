package render

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/san-kum/replayvis/internal/caseio"
	"github.com/san-kum/replayvis/internal/oracle"
)

type fakeOracle struct {
	calls int
}

func (f *fakeOracle) Render(_ context.Context, input, output string, turn int) (oracle.Frame, error) {
	f.calls++
	if output == "bad" {
		return oracle.Frame{}, fmt.Errorf("%w: line 1", oracle.ErrMalformed)
	}
	return oracle.Frame{
		SVG:   fmt.Sprintf("<svg>%s/%d</svg>", input, turn),
		Err:   map[bool]string{true: "overlap"}[turn == 2],
		Score: int64(10 * turn),
	}, nil
}

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		c      caseio.Case
		turn   int
		image  string
		errMsg string
		score  int64
	}{
		{"first turn", caseio.Case{Input: "in", Output: "ok"}, 0, "<svg>in/0</svg>", "", 0},
		{"annotation passes through", caseio.Case{Input: "in", Output: "ok"}, 2, "<svg>in/2</svg>", "overlap", 20},
		{"oracle failure", caseio.Case{Input: "in", Output: "bad"}, 1, InvalidImage, "oracle: malformed input or output: line 1", 0},
	}

	r := New(&fakeOracle{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Render(context.Background(), tt.c, tt.turn)
			if got.Image != tt.image {
				t.Errorf("Image = %q, want %q", got.Image, tt.image)
			}
			if got.Err != tt.errMsg {
				t.Errorf("Err = %q, want %q", got.Err, tt.errMsg)
			}
			if got.Score != tt.score {
				t.Errorf("Score = %d, want %d", got.Score, tt.score)
			}
			if got.Failed() != (tt.image == InvalidImage) {
				t.Errorf("Failed() = %v", got.Failed())
			}
		})
	}
}

func TestRenderIsNotCached(t *testing.T) {
	o := &fakeOracle{}
	r := New(o)
	c := caseio.Case{Input: "in", Output: "ok"}

	a := r.Render(context.Background(), c, 1)
	b := r.Render(context.Background(), c, 1)
	if a != b {
		t.Errorf("same arguments gave %+v and %+v", a, b)
	}
	if o.calls != 2 {
		t.Errorf("oracle called %d times, want 2", o.calls)
	}
}

func TestScores(t *testing.T) {
	r := New(&fakeOracle{})
	scores, err := r.Scores(context.Background(), caseio.Case{Input: "in", Output: "ok"}, 3)
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}
	want := []int64{0, 10, 20, 30}
	if fmt.Sprint(scores) != fmt.Sprint(want) {
		t.Errorf("scores = %v, want %v", scores, want)
	}
}

func TestScoresCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scores, err := New(&fakeOracle{}).Scores(ctx, caseio.Case{}, 5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(scores) != 0 {
		t.Errorf("got %d scores after cancel", len(scores))
	}
}

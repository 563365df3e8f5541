// Package session holds the one mutable object a viewer owns: the current
// case and the playback state derived from it.
//
// A Session is not safe for concurrent use. The terminal viewer only touches
// it from its update loop; the web surface wraps it in a mutex.
package session

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/san-kum/replayvis/internal/caseio"
	"github.com/san-kum/replayvis/internal/oracle"
	"github.com/san-kum/replayvis/internal/playback"
	"github.com/san-kum/replayvis/internal/render"
)

type Session struct {
	oracle   oracle.Oracle
	source   *caseio.Source
	renderer *render.Renderer
	state    *playback.State

	current caseio.Case
	notice  string
	logger  *slog.Logger
}

func New(o oracle.Oracle) *Session {
	return &Session{
		oracle:   o,
		source:   caseio.NewSource(o),
		renderer: render.New(o),
		state:    playback.New(),
		logger:   slog.Default().With("component", "session"),
	}
}

func (s *Session) Case() caseio.Case { return s.current }
func (s *Session) State() *playback.State { return s.state }
func (s *Session) Renderer() *render.Renderer { return s.renderer }
func (s *Session) Oracle() oracle.Oracle { return s.oracle }

// Notice is the last non-fatal problem worth showing, or "".
func (s *Session) Notice() string { return s.notice }

// LoadSeed regenerates the input for seed and keeps the output. When the
// generator fails the current case stays and the failure becomes the notice.
func (s *Session) LoadSeed(ctx context.Context, seed uint64) (playback.Effect, error) {
	next, err := s.source.Generate(ctx, s.current, seed)
	if err != nil {
		s.notice = err.Error()
		return playback.EffectNone, err
	}
	return s.publish(ctx, next), nil
}

func (s *Session) SetInput(ctx context.Context, input string) playback.Effect {
	next := s.current
	next.Input = input
	return s.publish(ctx, next)
}

func (s *Session) SetOutput(ctx context.Context, output string) playback.Effect {
	next := s.current
	next.Output = output
	return s.publish(ctx, next)
}

// SetCase replaces the whole case, as when restoring a saved one.
func (s *Session) SetCase(ctx context.Context, c caseio.Case) playback.Effect {
	return s.publish(ctx, c)
}

// ImportFile loads an output file. Read failures leave the session as it
// was.
func (s *Session) ImportFile(ctx context.Context, fsys fs.FS, name string) (playback.Effect, error) {
	next, err := s.source.ImportFile(ctx, fsys, name, s.current)
	if err != nil {
		if errors.Is(err, caseio.ErrGenerate) {
			s.notice = err.Error()
		}
		return playback.EffectNone, err
	}
	return s.publish(ctx, next), nil
}

// Frame renders the current turn.
func (s *Session) Frame(ctx context.Context) render.Result {
	return s.renderer.Render(ctx, s.current, s.state.Turn())
}

// FrameAt renders turn, clamped into the playable range.
func (s *Session) FrameAt(ctx context.Context, turn int) render.Result {
	turn = min(max(turn, 0), s.state.MaxTurn())
	return s.renderer.Render(ctx, s.current, turn)
}

func (s *Session) publish(ctx context.Context, next caseio.Case) playback.Effect {
	s.current = next
	effect, err := s.state.SetCase(ctx, s.oracle, next.Input, next.Output)
	if err != nil {
		s.logger.DebugContext(ctx, "max turn unavailable", "seed", next.Seed, "error", err)
		s.notice = err.Error()
	} else {
		s.notice = ""
	}
	return effect
}

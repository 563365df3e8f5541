// Package export turns a case into image artifacts: a looping GIF of every
// turn or a PNG still of one turn.
//
// Each turn is re-rendered through the oracle and rasterized onto a fresh
// surface, so exports never share state with the on-screen viewer.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/san-kum/replayvis/internal/caseio"
	"github.com/san-kum/replayvis/internal/raster"
	"github.com/san-kum/replayvis/internal/render"
)

// FrameSource renders one turn of a case.
type FrameSource interface {
	Render(ctx context.Context, c caseio.Case, turn int) render.Result
}

type Options struct {
	// StepBudget spread over BudgetFrames frames gives the delay of every
	// frame but the last.
	StepBudget   time.Duration `yaml:"step_budget"`
	BudgetFrames int           `yaml:"budget_frames"`
	// FinalHold is the delay of the last frame.
	FinalHold time.Duration `yaml:"final_hold"`
	Workers   int           `yaml:"workers"`
	Dither    bool          `yaml:"dither"`
}

func DefaultOptions() Options {
	return Options{
		StepBudget:   2 * time.Second,
		BudgetFrames: 60,
		FinalHold:    3 * time.Second,
		Workers:      2,
	}
}

// StepDelay is the delay of every frame but the last.
func (o Options) StepDelay() time.Duration {
	if o.BudgetFrames <= 0 {
		return o.StepBudget
	}
	return o.StepBudget / time.Duration(o.BudgetFrames)
}

// Animation is a finished GIF export.
type Animation struct {
	Data     []byte
	Frames   int
	Scores   []int64
	Viewport raster.Viewport
}

// FinalScore is the score of the last exported turn.
func (a *Animation) FinalScore() int64 {
	if len(a.Scores) == 0 {
		return 0
	}
	return a.Scores[len(a.Scores)-1]
}

type Animator struct {
	frames     FrameSource
	opts       Options
	newEncoder func(Options) Encoder
	tracer     trace.Tracer
	logger     *slog.Logger
}

func NewAnimator(frames FrameSource, opts Options) *Animator {
	return &Animator{
		frames: frames,
		opts:   opts,
		newEncoder: func(o Options) Encoder {
			return NewGIFEncoder(o.Workers, o.Dither)
		},
		tracer: otel.Tracer("github.com/san-kum/replayvis/internal/export"),
		logger: slog.Default().With("component", "export"),
	}
}

// WithEncoder replaces the GIF encoder factory.
func (a *Animator) WithEncoder(fn func(Options) Encoder) *Animator {
	a.newEncoder = fn
	return a
}

func (a *Animator) Options() Options { return a.opts }

// Export renders turns 0..maxTurn in order into one animation.
//
// Capture reports progress in [0, 50) and encoding in [50, 100]. The first
// frame that cannot be rasterized, or whose viewport differs from frame 0,
// aborts the whole export with a *FrameError.
func (a *Animator) Export(ctx context.Context, c caseio.Case, maxTurn int, onProgress func(float64)) (*Animation, error) {
	if maxTurn < 0 {
		return nil, fmt.Errorf("%w: max turn %d", ErrInvalidTurn, maxTurn)
	}
	ctx, span := a.tracer.Start(ctx, "export.gif", trace.WithAttributes(
		attribute.Int64("replayvis.seed", int64(c.Seed)),
		attribute.Int("replayvis.max_turn", maxTurn),
	))
	defer span.End()

	anim, err := a.export(ctx, c, maxTurn, monotonic(onProgress))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, context.Canceled) {
			a.logger.WarnContext(ctx, "gif export failed", "seed", c.Seed, "error", err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("replayvis.bytes", len(anim.Data)))
	return anim, nil
}

func (a *Animator) export(ctx context.Context, c caseio.Case, maxTurn int, progress func(float64)) (*Animation, error) {
	enc := a.newEncoder(a.opts)
	anim := &Animation{Scores: make([]int64, 0, maxTurn+1)}
	start := time.Now()

	for t := 0; t <= maxTurn; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := a.frames.Render(ctx, c, t)
		vp, err := raster.ParseViewport(res.Image)
		if err != nil {
			return nil, &FrameError{Turn: t, Wrapped: err}
		}
		if t == 0 {
			anim.Viewport = vp
		} else if vp != anim.Viewport {
			return nil, &FrameError{Turn: t, Wrapped: fmt.Errorf("%w: %v, want %v", ErrViewportChanged, vp, anim.Viewport)}
		}

		img, err := raster.RasterizeInto(res.Image, vp)
		if err != nil {
			return nil, &FrameError{Turn: t, Wrapped: err}
		}

		delay := a.opts.StepDelay()
		if t == maxTurn {
			delay = a.opts.FinalHold
		}
		if err := enc.AddFrame(img, delay); err != nil {
			return nil, &FrameError{Turn: t, Wrapped: err}
		}
		anim.Scores = append(anim.Scores, res.Score)
		progress(50 * float64(t) / float64(maxTurn+1))
	}
	anim.Frames = maxTurn + 1

	data, err := enc.Encode(ctx, func(p float64) {
		progress(50 + 50*p)
	})
	if err != nil {
		return nil, err
	}
	progress(100)
	anim.Data = data

	a.logger.DebugContext(ctx, "gif export done",
		"seed", c.Seed, "frames", anim.Frames, "bytes", len(data), "elapsed", time.Since(start))
	return anim, nil
}

// monotonic drops progress reports that would move backwards.
func monotonic(fn func(float64)) func(float64) {
	if fn == nil {
		return func(float64) {}
	}
	last := -1.0
	return func(p float64) {
		p = min(max(p, 0), 100)
		if p < last {
			return
		}
		last = p
		fn(p)
	}
}

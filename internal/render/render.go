// Package render turns oracle render calls into display-ready results.
package render

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/san-kum/replayvis/internal/caseio"
	"github.com/san-kum/replayvis/internal/oracle"
)

// InvalidImage replaces the SVG when the oracle cannot render a turn.
const InvalidImage = "invalid input or output"

// Result is one rendered turn. Err is an annotation for display only and
// never stops the caller.
type Result struct {
	Image string `json:"image"`
	Err   string `json:"err"`
	Score int64  `json:"score"`
}

// Failed reports whether the oracle refused this turn.
func (r Result) Failed() bool {
	return r.Image == InvalidImage
}

type Renderer struct {
	oracle oracle.Renderer
	tracer trace.Tracer
	logger *slog.Logger
}

func New(o oracle.Renderer) *Renderer {
	return &Renderer{
		oracle: o,
		tracer: otel.Tracer("github.com/san-kum/replayvis/internal/render"),
		logger: slog.Default().With("component", "render"),
	}
}

// Render renders one turn of c. Oracle failures come back as a Result with
// InvalidImage, the failure text in Err and a zero score.
func (r *Renderer) Render(ctx context.Context, c caseio.Case, turn int) Result {
	ctx, span := r.tracer.Start(ctx, "render.turn", trace.WithAttributes(
		attribute.Int64("replayvis.seed", int64(c.Seed)),
		attribute.Int("replayvis.turn", turn),
	))
	defer span.End()

	frame, err := r.oracle.Render(ctx, c.Input, c.Output, turn)
	if err != nil {
		r.logger.DebugContext(ctx, "render failed", "turn", turn, "error", err)
		span.RecordError(err)
		return Result{Image: InvalidImage, Err: err.Error()}
	}
	return Result{Image: frame.SVG, Err: frame.Err, Score: frame.Score}
}

// Scores renders every turn in [0, maxTurn] and keeps only the scores.
// It stops early when ctx is cancelled.
func (r *Renderer) Scores(ctx context.Context, c caseio.Case, maxTurn int) ([]int64, error) {
	scores := make([]int64, 0, maxTurn+1)
	for t := 0; t <= maxTurn; t++ {
		if err := ctx.Err(); err != nil {
			return scores, err
		}
		scores = append(scores, r.Render(ctx, c, t).Score)
	}
	return scores, nil
}

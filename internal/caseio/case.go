// Package caseio resolves the (input, output, seed) triple the viewer
// replays, either by generating an input for a seed or by importing an output
// file whose name encodes the seed.
package caseio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/san-kum/replayvis/internal/oracle"
)

// Case is one simulation run to replay.
type Case struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Seed   uint64 `json:"seed"`
}

var (
	// ErrGenerate wraps oracle generator failures. The prior case stays in
	// effect and the error is meant to be shown as a notice.
	ErrGenerate = errors.New("caseio: generate failed")

	// ErrRead indicates a file could not be read; no case is published.
	ErrRead = errors.New("caseio: read failed")
)

var seedPattern = regexp.MustCompile(`^(?:.*_)?(\d+)\..*$`)

// SeedFromName extracts the seed from names like "0042.txt" or
// "case_0042.out". ok is false when the name carries no seed.
func SeedFromName(name string) (seed uint64, ok bool) {
	m := seedPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Source produces cases from an oracle generator.
type Source struct {
	gen    oracle.Generator
	logger *slog.Logger
}

func NewSource(gen oracle.Generator) *Source {
	return &Source{
		gen:    gen,
		logger: slog.Default().With("component", "caseio"),
	}
}

// Generate returns prior with its input regenerated for seed. On failure it
// returns prior unchanged together with an ErrGenerate notice.
func (s *Source) Generate(ctx context.Context, prior Case, seed uint64) (Case, error) {
	input, err := s.gen.Generate(ctx, seed)
	if err != nil {
		s.logger.WarnContext(ctx, "generate failed", "seed", seed, "error", err)
		return prior, fmt.Errorf("%w: seed %d: %w", ErrGenerate, seed, err)
	}
	next := prior
	next.Seed = seed
	next.Input = input
	return next, nil
}

package paint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	MaxN     = 100
	MaxK     = 9
	MaxQueue = 100000
)

var (
	ErrUnexpectedEOF = errors.New("paint: unexpected EOF")
	ErrParse         = errors.New("paint: parse error")
	ErrOutOfRange    = errors.New("paint: out of range")
)

// Input is the painting board: n rows of n colour digits in 1..k.
type Input struct {
	ID   uint64
	N, K int
	Grid [][]int
}

func (in *Input) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %d %d\n", in.ID, in.N, in.K)
	for _, row := range in.Grid {
		for _, c := range row {
			b.WriteByte(byte('0' + c))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Op repaints the 4-connected component containing (Y, X) with colour C.
// Coordinates are 1-indexed.
type Op struct {
	Y, X, C int
}

type Output struct {
	Ops []Op
}

type tokens struct {
	fields []string
	pos    int
}

func newTokens(s string) *tokens {
	return &tokens{fields: strings.Fields(s)}
}

func (t *tokens) next() (string, bool) {
	if t.pos >= len(t.fields) {
		return "", false
	}
	t.pos++
	return t.fields[t.pos-1], true
}

func (t *tokens) int(lo, hi int) (int, error) {
	tok, ok := t.next()
	if !ok {
		return 0, ErrUnexpectedEOF
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrParse, tok)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, v, lo, hi)
	}
	return v, nil
}

func (t *tokens) uint64() (uint64, error) {
	tok, ok := t.next()
	if !ok {
		return 0, ErrUnexpectedEOF
	}
	v, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrParse, tok)
	}
	return v, nil
}

func ParseInput(s string) (*Input, error) {
	t := newTokens(s)
	id, err := t.uint64()
	if err != nil {
		return nil, fmt.Errorf("parse input id: %w", err)
	}
	n, err := t.int(1, MaxN)
	if err != nil {
		return nil, fmt.Errorf("parse input n: %w", err)
	}
	k, err := t.int(1, MaxK)
	if err != nil {
		return nil, fmt.Errorf("parse input k: %w", err)
	}

	grid := make([][]int, n)
	for y := 0; y < n; y++ {
		row, ok := t.next()
		if !ok {
			return nil, fmt.Errorf("parse input row %d: %w", y, ErrUnexpectedEOF)
		}
		if len(row) != n {
			return nil, fmt.Errorf("parse input row %d: %w: length %d, want %d", y, ErrParse, len(row), n)
		}
		grid[y] = make([]int, n)
		for x := 0; x < n; x++ {
			c := int(row[x] - '0')
			if c < 1 || c > k {
				return nil, fmt.Errorf("parse input row %d: %w: colour %q", y, ErrOutOfRange, row[x])
			}
			grid[y][x] = c
		}
	}

	return &Input{ID: id, N: n, K: k, Grid: grid}, nil
}

// ParseOutput reads "q" followed by q operations. Blank output is an empty
// operation list.
func ParseOutput(in *Input, s string) (*Output, error) {
	if strings.TrimSpace(s) == "" {
		return &Output{}, nil
	}
	t := newTokens(s)
	q, err := t.int(0, MaxQueue)
	if err != nil {
		return nil, fmt.Errorf("parse output q: %w", err)
	}
	ops := make([]Op, q)
	for i := range ops {
		y, err := t.int(1, in.N)
		if err != nil {
			return nil, fmt.Errorf("parse output op %d: %w", i, err)
		}
		x, err := t.int(1, in.N)
		if err != nil {
			return nil, fmt.Errorf("parse output op %d: %w", i, err)
		}
		c, err := t.int(1, in.K)
		if err != nil {
			return nil, fmt.Errorf("parse output op %d: %w", i, err)
		}
		ops[i] = Op{Y: y, X: x, C: c}
	}
	return &Output{Ops: ops}, nil
}

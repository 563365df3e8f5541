package caseio

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/san-kum/replayvis/internal/oracle"
)

// InputName is the file name a generated input is stored under.
func InputName(id uint64) string {
	return fmt.Sprintf("%04d.txt", id)
}

// WriteInputsZip writes a zip of the inputs for seeds seed..seed+n-1, one
// entry per seed named after it. progress receives percentages in [0, 100].
func WriteInputsZip(ctx context.Context, w io.Writer, gen oracle.Generator, seed uint64, n int, progress func(percent float64)) error {
	if n <= 0 {
		return fmt.Errorf("caseio: case count must be positive, got %d", n)
	}
	if progress == nil {
		progress = func(float64) {}
	}

	zw := zip.NewWriter(w)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := seed + uint64(i)
		input, err := gen.Generate(ctx, s)
		if err != nil {
			return fmt.Errorf("%w: seed %d: %w", ErrGenerate, s, err)
		}
		f, err := zw.Create(InputName(s))
		if err != nil {
			return err
		}
		if _, err := io.WriteString(f, input); err != nil {
			return err
		}
		progress(100 * float64(i+1) / float64(n))
	}
	return zw.Close()
}

// ReadSeeds parses one seed per line, skipping blank lines.
func ReadSeeds(r io.Reader) ([]uint64, error) {
	var seeds []uint64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("caseio: parse seed %q: %w", line, err)
		}
		seeds = append(seeds, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return seeds, nil
}

// WriteInputsDir generates an input per seed into dir, naming files by the
// seed's position in the list.
func WriteInputsDir(ctx context.Context, gen oracle.Generator, seeds []uint64, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for id, s := range seeds {
		input, err := gen.Generate(ctx, s)
		if err != nil {
			return fmt.Errorf("%w: seed %d: %w", ErrGenerate, s, err)
		}
		if err := os.WriteFile(filepath.Join(dir, InputName(uint64(id))), []byte(input), 0644); err != nil {
			return err
		}
	}
	return nil
}

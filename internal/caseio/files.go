package caseio

import (
	"context"
	"fmt"
	"io/fs"
	"path"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type readResult struct {
	data []byte
	err  error
}

// readAsync reads name on its own goroutine so the caller can give up when
// ctx ends. The reader goroutine finishes on its own; its result is dropped.
func readAsync(ctx context.Context, fsys fs.FS, name string) ([]byte, error) {
	done := make(chan readResult, 1)
	go func() {
		data, err := fs.ReadFile(fsys, name)
		done <- readResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, name, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, r.err)
		}
		return r.data, nil
	}
}

// ImportFile loads an output file into a new case derived from prior. When
// the file name encodes a seed the seed changes and the input is regenerated
// for it; otherwise seed and input are kept. Nothing is returned on failure.
func (s *Source) ImportFile(ctx context.Context, fsys fs.FS, name string, prior Case) (Case, error) {
	data, err := readAsync(ctx, fsys, name)
	if err != nil {
		s.logger.WarnContext(ctx, "import failed", "file", name, "error", err)
		return Case{}, err
	}

	next := prior
	next.Output = string(data)

	seed, ok := SeedFromName(path.Base(name))
	if !ok {
		s.logger.InfoContext(ctx, "file name carries no seed, keeping prior seed", "file", name, "seed", prior.Seed)
		return next, nil
	}
	next, err = s.Generate(ctx, next, seed)
	if err != nil {
		return Case{}, err
	}
	return next, nil
}

// ImportFileList returns the regular files in dir, ordered by name with a
// locale-aware collator. Callers usually pick the first entry.
func ImportFileList(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		names = append(names, path.Join(dir, e.Name()))
	}
	SortNames(names)
	return names, nil
}

// SortNames orders file names in place the way a file picker does.
func SortNames(names []string) {
	collate.New(language.Und).SortStrings(names)
}

package caseio

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

type fakeGen struct {
	fail bool
}

func (g fakeGen) Generate(_ context.Context, seed uint64) (string, error) {
	if g.fail {
		return "", errors.New("boom")
	}
	return fmt.Sprintf("input-%d", seed), nil
}

func TestSeedFromName(t *testing.T) {
	tests := []struct {
		name string
		seed uint64
		ok   bool
	}{
		{"case_0042.txt", 42, true},
		{"0042.txt", 42, true},
		{"out_1_0007.txt", 7, true},
		{"12.out.txt", 12, true},
		{"output.txt", 0, false},
		{"0042", 0, false},
		{"99999999999999999999999.txt", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed, ok := SeedFromName(tt.name)
			if ok != tt.ok || seed != tt.seed {
				t.Errorf("SeedFromName(%q) = %d, %v; want %d, %v", tt.name, seed, ok, tt.seed, tt.ok)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	src := NewSource(fakeGen{})
	prior := Case{Input: "old", Output: "out", Seed: 1}

	c, err := src.Generate(context.Background(), prior, 5)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if c.Seed != 5 || c.Input != "input-5" || c.Output != "out" {
		t.Errorf("unexpected case %+v", c)
	}
}

func TestGenerateFailureKeepsPrior(t *testing.T) {
	src := NewSource(fakeGen{fail: true})
	prior := Case{Input: "old", Output: "out", Seed: 1}

	c, err := src.Generate(context.Background(), prior, 5)
	if !errors.Is(err, ErrGenerate) {
		t.Fatalf("expected ErrGenerate, got %v", err)
	}
	if c != prior {
		t.Errorf("case should be unchanged, got %+v", c)
	}
}

func TestImportFile(t *testing.T) {
	fsys := fstest.MapFS{
		"out/case_0042.txt": {Data: []byte("3\n1 1 1\n")},
		"out/output.txt":    {Data: []byte("0\n")},
	}
	src := NewSource(fakeGen{})
	prior := Case{Input: "old", Output: "", Seed: 9}

	c, err := src.ImportFile(context.Background(), fsys, "out/case_0042.txt", prior)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if c.Seed != 42 || c.Input != "input-42" || c.Output != "3\n1 1 1\n" {
		t.Errorf("unexpected case %+v", c)
	}

	c, err = src.ImportFile(context.Background(), fsys, "out/output.txt", prior)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if c.Seed != 9 || c.Input != "old" || c.Output != "0\n" {
		t.Errorf("name without digits should keep prior seed and input, got %+v", c)
	}
}

func TestImportFileMissing(t *testing.T) {
	src := NewSource(fakeGen{})
	c, err := src.ImportFile(context.Background(), fstest.MapFS{}, "nope.txt", Case{Seed: 3})
	if !errors.Is(err, ErrRead) {
		t.Fatalf("expected ErrRead, got %v", err)
	}
	if c != (Case{}) {
		t.Errorf("no case should be published on failure, got %+v", c)
	}
}

type blockingFS struct {
	release chan struct{}
}

func (b blockingFS) Open(name string) (fs.File, error) {
	<-b.release
	return nil, fs.ErrNotExist
}

func TestImportFileCancel(t *testing.T) {
	fsys := blockingFS{release: make(chan struct{})}
	defer close(fsys.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	src := NewSource(fakeGen{})
	_, err := src.ImportFile(ctx, fsys, "0001.txt", Case{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !errors.Is(err, ErrRead) {
		t.Errorf("cancelled read should still be an ErrRead, got %v", err)
	}
}

func TestImportFileList(t *testing.T) {
	fsys := fstest.MapFS{
		"out/0010.txt":     {Data: []byte("a")},
		"out/0002.txt":     {Data: []byte("b")},
		"out/0001.txt":     {Data: []byte("c")},
		"out/sub/0000.txt": {Data: []byte("d")},
	}
	names, err := ImportFileList(fsys, "out")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []string{"out/0001.txt", "out/0002.txt", "out/0010.txt"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", names, want)
	}
}

func TestWriteInputsZip(t *testing.T) {
	var buf bytes.Buffer
	var progress []float64
	err := WriteInputsZip(context.Background(), &buf, fakeGen{}, 8, 3, func(p float64) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("zip failed: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	if len(zr.File) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(zr.File))
	}
	if zr.File[0].Name != "0008.txt" || zr.File[2].Name != "0010.txt" {
		t.Errorf("unexpected entry names %s, %s", zr.File[0].Name, zr.File[2].Name)
	}
	rc, _ := zr.File[1].Open()
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "input-9" {
		t.Errorf("unexpected entry contents %q", data)
	}

	if len(progress) != 3 || progress[2] != 100 {
		t.Errorf("unexpected progress %v", progress)
	}
}

func TestWriteInputsZipRejectsZeroCount(t *testing.T) {
	if err := WriteInputsZip(context.Background(), io.Discard, fakeGen{}, 0, 0, nil); err == nil {
		t.Error("expected error for zero cases")
	}
}

func TestWriteInputsDir(t *testing.T) {
	seeds, err := ReadSeeds(strings.NewReader("5\n\n 7 \n"))
	if err != nil {
		t.Fatalf("read seeds: %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("expected 2 seeds, got %v", seeds)
	}

	dir := filepath.Join(t.TempDir(), "in")
	if err := WriteInputsDir(context.Background(), fakeGen{}, seeds, dir); err != nil {
		t.Fatalf("write inputs: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "0001.txt"))
	if err != nil {
		t.Fatalf("read generated file: %v", err)
	}
	if string(data) != "input-7" {
		t.Errorf("unexpected contents %q", data)
	}
}

func TestReadSeedsError(t *testing.T) {
	if _, err := ReadSeeds(strings.NewReader("1\nx\n")); err == nil {
		t.Error("expected parse error")
	}
}

package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/replayvis/internal/caseio"
)

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	c := caseio.Case{Input: "0 3 2\n", Output: "1\n1 1 2\n", Seed: 42}
	meta, err := st.Save(Entry{
		Kind:    KindGIF,
		Case:    c,
		MaxTurn: 2,
		Frames:  3,
		Data:    []byte("GIF89a"),
		Scores:  []int64{600, 899, 898},
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if meta.ID == "" {
		t.Error("expected non-empty artifact id")
	}

	loaded, err := st.Load(meta.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Seed != 42 || loaded.Kind != KindGIF || loaded.Frames != 3 || loaded.Bytes != 6 {
		t.Errorf("unexpected metadata %+v", loaded)
	}
	if loaded.FinalScore != 898 {
		t.Errorf("expected final score 898, got %d", loaded.FinalScore)
	}

	data, err := os.ReadFile(st.Path(loaded))
	if err != nil || string(data) != "GIF89a" {
		t.Errorf("artifact file = %q, %v", data, err)
	}
	if filepath.Base(st.Path(loaded)) != "vis.gif" {
		t.Errorf("artifact file name = %s", filepath.Base(st.Path(loaded)))
	}

	scores, err := st.LoadScores(meta.ID)
	if err != nil {
		t.Fatalf("load scores failed: %v", err)
	}
	if len(scores) != 3 || scores[1] != 899 {
		t.Errorf("scores = %v", scores)
	}

	gotCase, err := st.LoadCase(meta.ID)
	if err != nil {
		t.Fatalf("load case failed: %v", err)
	}
	if gotCase != c {
		t.Errorf("case = %+v, want %+v", gotCase, c)
	}
}

func TestStoreStillHasNoScores(t *testing.T) {
	st := New(t.TempDir())
	meta, err := st.Save(Entry{Kind: KindPNG, Turn: 4, Data: []byte{1}})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	scores, err := st.LoadScores(meta.ID)
	if err != nil {
		t.Fatalf("load scores failed: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("expected no scores, got %v", scores)
	}
}

func TestStoreUnknownKind(t *testing.T) {
	st := New(t.TempDir())
	_, err := st.Save(Entry{Kind: "bmp"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 3; i++ {
		st.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		if _, err := st.Save(Entry{Kind: KindPNG, Case: caseio.Case{Seed: uint64(i)}, Data: []byte{0}}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(st.Dir(), "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	artifacts, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(artifacts))
	}
	if artifacts[0].Seed != 2 || artifacts[2].Seed != 0 {
		t.Errorf("expected newest first, got seeds %d..%d", artifacts[0].Seed, artifacts[2].Seed)
	}
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "nope"))
	artifacts, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(artifacts) != 0 {
		t.Errorf("expected empty list, got %d", len(artifacts))
	}
}

func TestWriteScoresCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteScoresCSV(&buf, []int64{5, -1}); err != nil {
		t.Fatal(err)
	}
	want := "turn,score\n0,5\n1,-1\n"
	if buf.String() != want {
		t.Errorf("csv = %q, want %q", buf.String(), want)
	}
}

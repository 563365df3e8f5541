package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/replayvis/internal/caseio"
)

type Kind string

const (
	KindGIF Kind = "gif"
	KindPNG Kind = "png"
)

// FileName is the artifact file inside its directory, as offered for
// download.
func (k Kind) FileName() string {
	return "vis." + string(k)
}

var ErrUnknownKind = errors.New("storage: unknown artifact kind")

type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type Artifact struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
	Seed       uint64    `json:"seed"`
	Turn       int       `json:"turn"`
	MaxTurn    int       `json:"max_turn"`
	Frames     int       `json:"frames"`
	Bytes      int       `json:"bytes"`
	FinalScore int64     `json:"final_score"`
}

// Entry is what Save needs to know about one export.
type Entry struct {
	Kind    Kind
	Case    caseio.Case
	Turn    int
	MaxTurn int
	Frames  int
	Data    []byte
	// Scores holds one score per exported turn, starting at turn 0.
	Scores []int64
}

// Save writes an artifact directory: metadata.json, the image itself,
// case.json and, when scores are present, scores.csv.
func (s *Store) Save(e Entry) (*Artifact, error) {
	if e.Kind != KindGIF && e.Kind != KindPNG {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}

	now := s.now()
	id := fmt.Sprintf("%s_%04d_%d_%s", e.Kind, e.Case.Seed, now.Unix(), uuid.NewString()[:8])
	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	meta := &Artifact{
		ID:        id,
		Kind:      e.Kind,
		Timestamp: now,
		Seed:      e.Case.Seed,
		Turn:      e.Turn,
		MaxTurn:   e.MaxTurn,
		Frames:    e.Frames,
		Bytes:     len(e.Data),
	}
	if n := len(e.Scores); n > 0 {
		meta.FinalScore = e.Scores[n-1]
	}

	if err := os.WriteFile(filepath.Join(dir, e.Kind.FileName()), e.Data, 0644); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(dir, "metadata.json"), meta); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(dir, "case.json"), e.Case); err != nil {
		return nil, err
	}
	if len(e.Scores) > 0 {
		f, err := os.Create(filepath.Join(dir, "scores.csv"))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := WriteScoresCSV(f, e.Scores); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteScoresCSV writes a turn,score table with a header row.
func WriteScoresCSV(w io.Writer, scores []int64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"turn", "score"}); err != nil {
		return err
	}
	for turn, score := range scores {
		row := []string{strconv.Itoa(turn), strconv.FormatInt(score, 10)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// List returns every readable artifact, newest first. Directories without
// valid metadata are skipped.
func (s *Store) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Artifact{}, nil
		}
		return nil, err
	}

	artifacts := make([]Artifact, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		artifacts = append(artifacts, *meta)
	}

	sort.SliceStable(artifacts, func(i, j int) bool {
		return artifacts[i].Timestamp.After(artifacts[j].Timestamp)
	})
	return artifacts, nil
}

func (s *Store) Load(id string) (*Artifact, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta Artifact
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadCase returns the case an artifact was exported from.
func (s *Store) LoadCase(id string) (caseio.Case, error) {
	var c caseio.Case
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, "case.json"))
	if err != nil {
		return c, err
	}
	err = json.Unmarshal(data, &c)
	return c, err
}

// Path is the image file of an artifact.
func (s *Store) Path(a *Artifact) string {
	return filepath.Join(s.baseDir, a.ID, a.Kind.FileName())
}

// LoadScores reads the per-turn score table of an animation. Stills have
// none and yield an empty slice.
func (s *Store) LoadScores(id string) ([]int64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, id, "scores.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return []int64{}, nil
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []int64{}, nil
	}

	scores := make([]int64, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) < 2 {
			continue
		}
		v, err := strconv.ParseInt(record[1], 10, 64)
		if err != nil {
			continue
		}
		scores = append(scores, v)
	}
	return scores, nil
}

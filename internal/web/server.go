// Package web serves the viewer's session, frames and exports over HTTP.
//
// All routes sit behind a basic-auth gate. Session mutations are serialized
// by one mutex; exports snapshot the case and run outside it, one GIF
// export at a time.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/replayvis/internal/caseio"
	"github.com/san-kum/replayvis/internal/export"
	"github.com/san-kum/replayvis/internal/playback"
	"github.com/san-kum/replayvis/internal/session"
	"github.com/san-kum/replayvis/internal/storage"
)

const maxBodyBytes = 32 << 20

// MaxInputs caps the number of inputs one archive may hold.
const MaxInputs = 10000

type Options struct {
	User     string
	Password string
	// Store, when set, keeps a copy of every export served.
	Store *storage.Store
}

type Server struct {
	mu   sync.Mutex
	sess *session.Session

	runner *export.Runner
	still  *export.Still
	store  *storage.Store

	user, password string
	logger         *slog.Logger
}

func New(sess *session.Session, animator *export.Animator, opts Options) *Server {
	return &Server{
		sess:     sess,
		runner:   export.NewRunner(animator),
		still:    export.NewStill(sess.Renderer()),
		store:    opts.Store,
		user:     opts.User,
		password: opts.Password,
		logger:   slog.Default().With("component", "web"),
	}
}

// RegisterRoutes registers all routes on mux without the auth gate.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/case/seed", s.handleSeed)
	mux.HandleFunc("PUT /api/case/input", s.handleInput)
	mux.HandleFunc("PUT /api/case/output", s.handleOutput)
	mux.HandleFunc("POST /api/seek", s.handleSeek)
	mux.HandleFunc("GET /api/frame", s.handleFrame)
	mux.HandleFunc("GET /export/vis.png", s.handlePNG)
	mux.HandleFunc("GET /export/vis.gif", s.handleGIF)
	mux.HandleFunc("GET /inputs.zip", s.handleInputs)
	mux.HandleFunc("GET /vis.html", s.handleHTML)
}

// Handler is the gated router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return basicAuth(s.user, s.password, mux)
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// State is the JSON view of the session.
type State struct {
	Seed    uint64 `json:"seed"`
	Turn    int    `json:"turn"`
	MaxTurn int    `json:"max_turn"`
	Speed   int    `json:"speed"`
	Input   string `json:"input"`
	Output  string `json:"output"`
	Notice  string `json:"notice,omitempty"`
}

// Frame is one rendered turn.
type Frame struct {
	Turn  int    `json:"turn"`
	Image string `json:"image"`
	Err   string `json:"err,omitempty"`
	Score int64  `json:"score"`
}

// state must be called with s.mu held.
func (s *Server) state() State {
	c := s.sess.Case()
	st := s.sess.State()
	return State{
		Seed:    c.Seed,
		Turn:    st.Turn(),
		MaxTurn: st.MaxTurn(),
		Speed:   st.Speed(),
		Input:   c.Input,
		Output:  c.Output,
		Notice:  s.sess.Notice(),
	}
}

// snapshot returns a copy of the case with its bounds.
func (s *Server) snapshot() (caseio.Case, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.Case(), s.sess.State().Turn(), s.sess.State().MaxTurn()
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	st := s.state()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	seed, err := strconv.ParseUint(r.URL.Query().Get("seed"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "seed must be a non-negative integer")
		return
	}

	s.mu.Lock()
	_, err = s.sess.LoadSeed(r.Context(), seed)
	st := s.state()
	s.mu.Unlock()

	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, st)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	s.handleText(w, r, s.sess.SetInput)
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	s.handleText(w, r, s.sess.SetOutput)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request, set func(context.Context, string) playback.Effect) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	s.mu.Lock()
	set(r.Context(), string(body))
	st := s.state()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	turn, err := strconv.Atoi(r.URL.Query().Get("turn"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "turn must be an integer")
		return
	}

	s.mu.Lock()
	s.sess.State().Seek(turn)
	st := s.state()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

// turnParam reads ?turn=, defaulting to the session's current turn.
func turnParam(r *http.Request, current int) (int, error) {
	v := r.URL.Query().Get("turn")
	if v == "" {
		return current, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	c, current, maxTurn := s.snapshot()
	turn, err := turnParam(r, current)
	if err != nil {
		writeError(w, http.StatusBadRequest, "turn must be an integer")
		return
	}
	turn = min(max(turn, 0), maxTurn)

	res := s.sess.Renderer().Render(r.Context(), c, turn)
	writeJSON(w, http.StatusOK, Frame{Turn: turn, Image: res.Image, Err: res.Err, Score: res.Score})
}

func (s *Server) handlePNG(w http.ResponseWriter, r *http.Request) {
	c, current, maxTurn := s.snapshot()
	turn, err := turnParam(r, current)
	if err != nil || turn < 0 || turn > maxTurn {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("turn must be in [0, %d]", maxTurn))
		return
	}

	data, err := s.still.ExportPNG(r.Context(), c, turn)
	if err != nil {
		s.logger.WarnContext(r.Context(), "png export failed", "turn", turn, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if s.store != nil {
		if _, err := s.store.Save(storage.Entry{Kind: storage.KindPNG, Case: c, Turn: turn, MaxTurn: maxTurn, Frames: 1, Data: data}); err != nil {
			s.logger.WarnContext(r.Context(), "store png", "error", err)
		}
	}
	writeAttachment(w, "image/png", storage.KindPNG.FileName(), data)
}

// handleGIF runs the session's single export job and answers 409 while
// another request's job is still in flight.
func (s *Server) handleGIF(w http.ResponseWriter, r *http.Request) {
	c, _, maxTurn := s.snapshot()

	type result struct {
		anim *export.Animation
		err  error
	}
	done := make(chan result, 1)
	if _, err := s.runner.Start(r.Context(), c, maxTurn, export.Callbacks{
		OnComplete: func(_ uuid.UUID, anim *export.Animation) { done <- result{anim: anim} },
		OnError:    func(_ uuid.UUID, err error) { done <- result{err: err} },
	}); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	res := <-done
	if res.err != nil {
		writeError(w, http.StatusUnprocessableEntity, res.err.Error())
		return
	}
	anim := res.anim
	if s.store != nil {
		entry := storage.Entry{Kind: storage.KindGIF, Case: c, Turn: maxTurn, MaxTurn: maxTurn, Frames: anim.Frames, Data: anim.Data, Scores: anim.Scores}
		if _, err := s.store.Save(entry); err != nil {
			s.logger.WarnContext(r.Context(), "store gif", "error", err)
		}
	}
	writeAttachment(w, "image/gif", storage.KindGIF.FileName(), anim.Data)
}

func (s *Server) handleInputs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seed, err := strconv.ParseUint(q.Get("seed"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "seed must be a non-negative integer")
		return
	}
	n, err := strconv.Atoi(q.Get("n"))
	if err != nil || n < 1 || n > MaxInputs {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("n must be in [1, %d]", MaxInputs))
		return
	}

	var buf bytes.Buffer
	if err := caseio.WriteInputsZip(r.Context(), &buf, s.sess.Oracle(), seed, n, nil); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAttachment(w, "application/zip", "in.zip", buf.Bytes())
}

var visPage = template.Must(template.New("vis").Parse(`<html>
<body>
{{.SVG}}
<p>Score = {{.Score}}</p>
{{with .Err}}<p>{{.}}</p>{{end}}
</body>
</html>
`))

// handleHTML serves the final turn as a standalone page.
func (s *Server) handleHTML(w http.ResponseWriter, r *http.Request) {
	c, _, maxTurn := s.snapshot()
	res := s.sess.Renderer().Render(r.Context(), c, maxTurn)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := WriteHTML(w, res.Image, res.Err, res.Score); err != nil {
		s.logger.WarnContext(r.Context(), "write page", "error", err)
	}
}

// WriteHTML writes the vis.html page for one rendered frame.
func WriteHTML(w io.Writer, svg, errText string, score int64) error {
	return visPage.Execute(w, struct {
		SVG   template.HTML
		Err   string
		Score int64
	}{template.HTML(svg), errText, score})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAttachment(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

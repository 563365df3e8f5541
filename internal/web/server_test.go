package web

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image/gif"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/san-kum/replayvis/internal/caseio"
	"github.com/san-kum/replayvis/internal/export"
	"github.com/san-kum/replayvis/internal/oracle/paint"
	"github.com/san-kum/replayvis/internal/render"
	"github.com/san-kum/replayvis/internal/session"
	"github.com/san-kum/replayvis/internal/storage"
)

const (
	smallInput  = "0 3 2\n112\n122\n222\n"
	smallOutput = "2\n1 1 2\n3 3 1\n"
)

type client struct {
	t   *testing.T
	srv *httptest.Server
}

func newClient(t *testing.T, opts Options) *client {
	t.Helper()
	return newClientWithFrames(t, opts, nil)
}

// newClientWithFrames lets a test wrap the frame source the GIF exporter
// renders from.
func newClientWithFrames(t *testing.T, opts Options, wrap func(export.FrameSource) export.FrameSource) *client {
	t.Helper()
	opts.User, opts.Password = "judge", "secret"
	sess := session.New(paint.New())
	var frames export.FrameSource = sess.Renderer()
	if wrap != nil {
		frames = wrap(frames)
	}
	s := New(sess, export.NewAnimator(frames, export.DefaultOptions()), opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &client{t: t, srv: srv}
}

func (c *client) do(method, path, body string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.srv.URL+path, strings.NewReader(body))
	if err != nil {
		c.t.Fatalf("NewRequest: %v", err)
	}
	req.SetBasicAuth("judge", "secret")
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *client) state(resp *http.Response) State {
	c.t.Helper()
	var st State
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		c.t.Fatalf("decode state: %v", err)
	}
	return st
}

func (c *client) frame(path string) Frame {
	c.t.Helper()
	var f Frame
	if err := json.NewDecoder(c.do(http.MethodGet, path, "").Body).Decode(&f); err != nil {
		c.t.Fatalf("decode frame: %v", err)
	}
	return f
}

func (c *client) wantStatus(method, path string, want int) {
	c.t.Helper()
	if got := c.do(method, path, "").StatusCode; got != want {
		c.t.Errorf("%s %s = %d, want %d", method, path, got, want)
	}
}

func (c *client) loadSmallCase() {
	c.t.Helper()
	for path, body := range map[string]string{"/api/case/input": smallInput, "/api/case/output": smallOutput} {
		if got := c.do(http.MethodPut, path, body).StatusCode; got != http.StatusOK {
			c.t.Fatalf("PUT %s = %d", path, got)
		}
	}
}

func TestAuthGate(t *testing.T) {
	c := newClient(t, Options{})

	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		want       int
	}{
		{"no credentials", "", "", false, http.StatusUnauthorized},
		{"wrong password", "judge", "nope", true, http.StatusUnauthorized},
		{"wrong user", "root", "secret", true, http.StatusUnauthorized},
		{"valid", "judge", "secret", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, c.srv.URL+"/api/state", nil)
			if err != nil {
				t.Fatal(err)
			}
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			resp, err := c.srv.Client().Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				if got := resp.Header.Get("WWW-Authenticate"); got != `Basic realm="Secure Area"` {
					t.Errorf("WWW-Authenticate = %q", got)
				}
			}
		})
	}
}

func TestCaseEditing(t *testing.T) {
	c := newClient(t, Options{})

	st := c.state(c.do(http.MethodPut, "/api/case/input", smallInput))
	if st.MaxTurn != 0 {
		t.Errorf("input only: max turn = %d, want 0", st.MaxTurn)
	}

	st = c.state(c.do(http.MethodPut, "/api/case/output", smallOutput))
	if st.MaxTurn != 2 || st.Turn != 0 || st.Notice != "" {
		t.Errorf("valid case: turn %d/%d notice %q, want 0/2 and no notice", st.Turn, st.MaxTurn, st.Notice)
	}

	st = c.state(c.do(http.MethodPost, "/api/seek?turn=9", ""))
	if st.Turn != 2 {
		t.Errorf("seek past end: turn = %d, want 2", st.Turn)
	}

	st = c.state(c.do(http.MethodPut, "/api/case/output", "1\n9 9 9\n"))
	if st.MaxTurn != 0 || st.Turn != 0 {
		t.Errorf("malformed output: turn %d/%d, want 0/0", st.Turn, st.MaxTurn)
	}
	if st.Notice == "" {
		t.Error("malformed output left no notice")
	}
}

func TestSeed(t *testing.T) {
	c := newClient(t, Options{})

	resp := c.do(http.MethodPost, "/api/case/seed?seed=3", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	st := c.state(resp)
	if st.Seed != 3 {
		t.Errorf("seed = %d, want 3", st.Seed)
	}
	if st.Input != paint.Gen(3).String() {
		t.Error("input was not generated for seed 3")
	}

	c.wantStatus(http.MethodPost, "/api/case/seed?seed=-1", http.StatusBadRequest)
}

func TestFrame(t *testing.T) {
	c := newClient(t, Options{})
	c.loadSmallCase()

	tests := []struct {
		path      string
		wantTurn  int
		wantScore int64
	}{
		{"/api/frame?turn=1", 1, 899},
		{"/api/frame?turn=40", 2, 898},
		{"/api/frame?turn=-3", 0, 600},
		{"/api/frame", 0, 600},
	}
	for _, tt := range tests {
		f := c.frame(tt.path)
		if f.Turn != tt.wantTurn || f.Score != tt.wantScore {
			t.Errorf("%s: turn %d score %d, want %d %d", tt.path, f.Turn, f.Score, tt.wantTurn, tt.wantScore)
		}
		if !strings.Contains(f.Image, `id="vis"`) {
			t.Errorf("%s: image is not the board svg", tt.path)
		}
	}

	c.wantStatus(http.MethodGet, "/api/frame?turn=x", http.StatusBadRequest)
}

func TestFrameInvalidCase(t *testing.T) {
	c := newClient(t, Options{})
	c.do(http.MethodPut, "/api/case/input", "garbage")

	f := c.frame("/api/frame")
	if f.Image != render.InvalidImage {
		t.Errorf("image = %q, want %q", f.Image, render.InvalidImage)
	}
	if f.Err == "" || f.Score != 0 {
		t.Errorf("err %q score %d, want an annotation and 0", f.Err, f.Score)
	}
}

func TestExportPNG(t *testing.T) {
	store := storage.New(t.TempDir())
	c := newClient(t, Options{Store: store})
	c.loadSmallCase()

	resp := c.do(http.MethodGet, "/export/vis.png?turn=1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.Contains(got, `filename="vis.png"`) {
		t.Errorf("Content-Disposition = %q", got)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != 34 {
		t.Errorf("width = %d, want 34", img.Bounds().Dx())
	}

	c.wantStatus(http.MethodGet, "/export/vis.png?turn=3", http.StatusBadRequest)

	artifacts, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 1 || artifacts[0].Kind != storage.KindPNG {
		t.Errorf("artifacts = %+v, want one png", artifacts)
	}
}

func TestExportGIF(t *testing.T) {
	store := storage.New(t.TempDir())
	c := newClient(t, Options{Store: store})
	c.loadSmallCase()

	resp := c.do(http.MethodGet, "/export/vis.gif", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	g, err := gif.DecodeAll(resp.Body)
	if err != nil {
		t.Fatalf("decode gif: %v", err)
	}
	if len(g.Image) != 3 || g.Delay[2] != 300 {
		t.Errorf("frames %d, final delay %v, want 3 frames ending at 300", len(g.Image), g.Delay)
	}

	artifacts, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 1 || artifacts[0].Frames != 3 {
		t.Fatalf("artifacts = %+v, want one 3-frame gif", artifacts)
	}
	scores, err := store.LoadScores(artifacts[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{600, 899, 898}; !slices.Equal(scores, want) {
		t.Errorf("scores = %v, want %v", scores, want)
	}
}

func TestExportGIFInvalidCase(t *testing.T) {
	c := newClient(t, Options{})
	c.do(http.MethodPut, "/api/case/input", "garbage")

	c.wantStatus(http.MethodGet, "/export/vis.gif", http.StatusUnprocessableEntity)
}

// heldFrames blocks the first render until released.
type heldFrames struct {
	next    export.FrameSource
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (h *heldFrames) Render(ctx context.Context, c caseio.Case, turn int) render.Result {
	h.once.Do(func() {
		close(h.started)
		select {
		case <-h.release:
		case <-ctx.Done():
		}
	})
	return h.next.Render(ctx, c, turn)
}

func TestExportGIFOneAtATime(t *testing.T) {
	held := &heldFrames{started: make(chan struct{}), release: make(chan struct{})}
	c := newClientWithFrames(t, Options{}, func(next export.FrameSource) export.FrameSource {
		held.next = next
		return held
	})
	c.loadSmallCase()

	first := make(chan int, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodGet, c.srv.URL+"/export/vis.gif", nil)
		req.SetBasicAuth("judge", "secret")
		resp, err := c.srv.Client().Do(req)
		if err != nil {
			first <- 0
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	select {
	case <-held.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first export never started rendering")
	}

	c.wantStatus(http.MethodGet, "/export/vis.gif", http.StatusConflict)
	c.wantStatus(http.MethodGet, "/export/vis.gif", http.StatusConflict)

	close(held.release)
	select {
	case code := <-first:
		if code != http.StatusOK {
			t.Fatalf("first export = %d, want 200", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("first export did not finish")
	}

	c.wantStatus(http.MethodGet, "/export/vis.gif", http.StatusOK)
}

func TestInputsZip(t *testing.T) {
	c := newClient(t, Options{})

	resp := c.do(http.MethodGet, "/inputs.zip?seed=5&n=3", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if want := []string{"0005.txt", "0006.txt", "0007.txt"}; !slices.Equal(names, want) {
		t.Errorf("entries = %v, want %v", names, want)
	}

	c.wantStatus(http.MethodGet, "/inputs.zip?seed=5&n=0", http.StatusBadRequest)
	c.wantStatus(http.MethodGet, "/inputs.zip?seed=5&n=10001", http.StatusBadRequest)
}

func TestVisHTML(t *testing.T) {
	c := newClient(t, Options{})
	c.loadSmallCase()

	body, err := io.ReadAll(c.do(http.MethodGet, "/vis.html", "").Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<svg", "Score = 898"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page lacks %q", want)
		}
	}
}

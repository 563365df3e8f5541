package viz

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/guptarohit/asciigraph"
	"golang.org/x/time/rate"

	"github.com/san-kum/replayvis/internal/caseio"
	"github.com/san-kum/replayvis/internal/export"
	"github.com/san-kum/replayvis/internal/playback"
	"github.com/san-kum/replayvis/internal/raster"
	"github.com/san-kum/replayvis/internal/render"
	"github.com/san-kum/replayvis/internal/session"
	"github.com/san-kum/replayvis/internal/storage"
)

const (
	canvasWidth     = 40
	canvasHeight    = 20
	historyCapacity = 600
	sliderWidth     = 30
)

// TickMsg is one playback timer tick.
type TickMsg struct {
	Timer playback.TimerID
}

type exportProgressMsg struct {
	ID      uuid.UUID
	Percent float64
}

type exportDoneMsg struct {
	ID   uuid.UUID
	Anim *export.Animation
	Err  error
}

type statusMsg struct {
	Text string
	Err  bool
}

type caseLoadedMsg struct {
	Name string
	Case caseio.Case
	Err  error
}

type filesMsg struct {
	Names []string
	Err   error
}

type mode int

const (
	modeView mode = iota
	modeSeed
	modePicker
)

type Options struct {
	Session  *session.Session
	Animator *export.Animator
	// Store receives exported artifacts. When nil exports are only reported.
	Store *storage.Store
	// FS and Dir are browsed by the file picker; a nil FS disables it.
	FS    fs.FS
	Dir   string
	Theme string
	Speed int
}

// Model is the replay viewer. All session mutation happens in Update.
type Model struct {
	ctx    context.Context
	sess   *session.Session
	source *caseio.Source
	runner *export.Runner
	still  *export.Still
	store  *storage.Store
	fsys   fs.FS
	dir    string
	logger *slog.Logger

	events   chan tea.Msg
	throttle *rate.Sometimes

	frame  render.Result
	canvas *Canvas
	scores []float64

	exportID  uuid.UUID
	exporting bool
	exportPct float64

	mode    mode
	editBuf string
	files   []string
	cursor  int

	status    string
	statusErr bool
	theme     Theme
	showHelp  bool
	spin      int
}

func NewModel(ctx context.Context, opts Options) Model {
	sess := opts.Session
	if opts.Speed > 0 {
		sess.State().SetSpeed(opts.Speed)
	}
	m := Model{
		ctx:      ctx,
		sess:     sess,
		source:   caseio.NewSource(sess.Oracle()),
		runner:   export.NewRunner(opts.Animator),
		still:    export.NewStill(sess.Renderer()),
		store:    opts.Store,
		fsys:     opts.FS,
		dir:      opts.Dir,
		logger:   slog.Default().With("component", "viewer"),
		events:   make(chan tea.Msg, 64),
		throttle: &rate.Sometimes{Interval: 100 * time.Millisecond},
		canvas:   NewCanvas(canvasWidth, canvasHeight),
		scores:   make([]float64, 0, historyCapacity),
		theme:    GetTheme(opts.Theme),
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return listen(m.events)
}

// listen delivers the next export event to Update.
func listen(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-events }
}

func tick(d time.Duration, id playback.TimerID) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return TickMsg{Timer: id} })
}

// apply turns a playback effect into the matching bubbletea command.
func (m Model) apply(effect playback.Effect) tea.Cmd {
	if effect != playback.EffectSchedule {
		return nil
	}
	st := m.sess.State()
	return tick(st.Interval(), st.Timer())
}

// Update handles keys, playback ticks and export events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.mode {
		case modeSeed:
			return m.seedKey(msg)
		case modePicker:
			return m.pickerKey(msg)
		}
		return m.viewKey(msg)

	case tea.WindowSizeMsg:
		w := min(max(msg.Width-50, 10), 120)
		h := min(max(msg.Height-6, 5), 60)
		m.canvas = NewCanvas(w, h)
		m.refresh()
		return m, nil

	case TickMsg:
		effect := m.sess.State().Tick(msg.Timer)
		if effect == playback.EffectNone {
			return m, nil
		}
		m.refresh()
		m.record()
		return m, m.apply(effect)

	case exportProgressMsg:
		if msg.ID == m.exportID && m.exporting {
			m.exportPct = max(m.exportPct, msg.Percent)
			m.spin++
		}
		return m, listen(m.events)

	case exportDoneMsg:
		if msg.ID != m.exportID || !m.exporting {
			return m, listen(m.events)
		}
		m.exporting = false
		if msg.Err != nil {
			m.setStatus("gif export failed: "+msg.Err.Error(), true)
			return m, listen(m.events)
		}
		m.exportPct = 100
		m.setStatus(fmt.Sprintf("gif ready: %d frames, %d bytes", msg.Anim.Frames, len(msg.Anim.Data)), false)
		return m, tea.Batch(listen(m.events), m.saveGIF(msg.Anim))

	case statusMsg:
		m.setStatus(msg.Text, msg.Err)
		return m, nil

	case filesMsg:
		if msg.Err != nil {
			m.setStatus(msg.Err.Error(), true)
			return m, nil
		}
		if len(msg.Names) == 0 {
			m.setStatus("no files in "+m.dir, true)
			return m, nil
		}
		m.files, m.cursor, m.mode = msg.Names, 0, modePicker
		return m, m.importFile(msg.Names[0])

	case caseLoadedMsg:
		if msg.Err != nil {
			m.setStatus(msg.Err.Error(), true)
			return m, nil
		}
		effect := m.sess.SetCase(m.ctx, msg.Case)
		m.caseChanged()
		m.setStatus("loaded "+msg.Name, false)
		return m, m.apply(effect)
	}
	return m, nil
}

func (m Model) viewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.sess.State()
	switch msg.String() {
	case "q", "ctrl+c":
		m.runner.Cancel()
		return m, tea.Quit
	case " ":
		effect := st.Toggle()
		if effect == playback.EffectNone && st.MaxTurn() == 0 {
			m.setStatus("nothing to play", true)
		}
		return m, m.apply(effect)
	case "left", "h":
		effect := st.Step(-1)
		m.refresh()
		return m, m.apply(effect)
	case "right", "l":
		effect := st.Step(1)
		m.refresh()
		return m, m.apply(effect)
	case "home", "0":
		effect := st.Seek(0)
		m.refresh()
		return m, m.apply(effect)
	case "end", "$":
		effect := st.Seek(st.MaxTurn())
		m.refresh()
		return m, m.apply(effect)
	case "+", "=":
		st.SetSpeed(st.Speed() + 1)
	case "-", "_":
		st.SetSpeed(st.Speed() - 1)
	case "n":
		return m.loadSeed(m.sess.Case().Seed + 1)
	case "N":
		if seed := m.sess.Case().Seed; seed > 0 {
			return m.loadSeed(seed - 1)
		}
	case "s":
		m.mode, m.editBuf = modeSeed, strconv.FormatUint(m.sess.Case().Seed, 10)
	case "o":
		if m.fsys == nil {
			m.setStatus("no directory to browse", true)
			return m, nil
		}
		return m, m.listFiles()
	case "g":
		return m.startExport(false)
	case "G":
		return m.startExport(true)
	case "p":
		return m, m.savePNG()
	case "t":
		m.theme = m.theme.Next()
	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m Model) seedKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		seed, err := strconv.ParseUint(m.editBuf, 10, 64)
		m.mode, m.editBuf = modeView, ""
		if err != nil {
			m.setStatus("seed must be a non-negative integer", true)
			return m, nil
		}
		return m.loadSeed(seed)
	case "esc":
		m.mode, m.editBuf = modeView, ""
	case "backspace":
		if len(m.editBuf) > 0 {
			m.editBuf = m.editBuf[:len(m.editBuf)-1]
		}
	default:
		if s := msg.String(); len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
			m.editBuf += s
		}
	}
	return m, nil
}

func (m Model) pickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.mode = modeView
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.files)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.mode = modeView
		return m, m.importFile(m.files[m.cursor])
	}
	return m, nil
}

func (m Model) loadSeed(seed uint64) (tea.Model, tea.Cmd) {
	effect, err := m.sess.LoadSeed(m.ctx, seed)
	if err != nil {
		m.setStatus(m.sess.Notice(), true)
		return m, nil
	}
	m.caseChanged()
	m.setStatus(fmt.Sprintf("seed %d", seed), false)
	return m, m.apply(effect)
}

func (m *Model) caseChanged() {
	m.scores = m.scores[:0]
	m.refresh()
	m.record()
}

// refresh renders the current turn and redraws the thumbnail.
func (m *Model) refresh() {
	m.frame = m.sess.Frame(m.ctx)
	if m.frame.Failed() {
		m.canvas.Clear()
		return
	}
	img, _, err := raster.Rasterize(m.frame.Image)
	if err != nil {
		m.logger.Debug("thumbnail", "error", err)
		m.canvas.Clear()
		return
	}
	m.canvas.DrawImage(img)
}

func (m *Model) record() {
	m.scores = append(m.scores, float64(m.frame.Score))
	if len(m.scores) > historyCapacity {
		m.scores = m.scores[1:]
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status, m.statusErr = text, isErr
}

func (m Model) startExport(restart bool) (tea.Model, tea.Cmd) {
	c, maxTurn := m.sess.Case(), m.sess.State().MaxTurn()
	events, throttle := m.events, m.throttle

	cb := export.Callbacks{
		OnProgress: func(id uuid.UUID, p float64) {
			throttle.Do(func() {
				select {
				case events <- exportProgressMsg{ID: id, Percent: p}:
				default:
				}
			})
		},
		OnComplete: func(id uuid.UUID, anim *export.Animation) {
			go func() { events <- exportDoneMsg{ID: id, Anim: anim} }()
		},
		OnError: func(id uuid.UUID, err error) {
			go func() { events <- exportDoneMsg{ID: id, Err: err} }()
		},
	}

	if restart {
		m.exportID = m.runner.Restart(m.ctx, c, maxTurn, cb)
	} else {
		id, err := m.runner.Start(m.ctx, c, maxTurn, cb)
		if err != nil {
			m.setStatus("export already running (G restarts)", true)
			return m, nil
		}
		m.exportID = id
	}
	m.exporting, m.exportPct = true, 0
	m.setStatus(fmt.Sprintf("exporting %d frames", maxTurn+1), false)
	return m, nil
}

func (m Model) saveGIF(anim *export.Animation) tea.Cmd {
	store, c, maxTurn := m.store, m.sess.Case(), m.sess.State().MaxTurn()
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		a, err := store.Save(storage.Entry{
			Kind: storage.KindGIF, Case: c, Turn: maxTurn, MaxTurn: maxTurn,
			Frames: anim.Frames, Data: anim.Data, Scores: anim.Scores,
		})
		if err != nil {
			return statusMsg{Text: "save gif: " + err.Error(), Err: true}
		}
		return statusMsg{Text: "saved " + store.Path(a)}
	}
}

func (m Model) savePNG() tea.Cmd {
	ctx, still, store := m.ctx, m.still, m.store
	c, turn, maxTurn := m.sess.Case(), m.sess.State().Turn(), m.sess.State().MaxTurn()
	return func() tea.Msg {
		data, err := still.ExportPNG(ctx, c, turn)
		if err != nil {
			return statusMsg{Text: "png export failed: " + err.Error(), Err: true}
		}
		if store == nil {
			return statusMsg{Text: fmt.Sprintf("png ready: %d bytes", len(data))}
		}
		a, err := store.Save(storage.Entry{Kind: storage.KindPNG, Case: c, Turn: turn, MaxTurn: maxTurn, Frames: 1, Data: data})
		if err != nil {
			return statusMsg{Text: "save png: " + err.Error(), Err: true}
		}
		return statusMsg{Text: "saved " + store.Path(a)}
	}
}

func (m Model) listFiles() tea.Cmd {
	fsys, dir := m.fsys, m.dir
	return func() tea.Msg {
		names, err := caseio.ImportFileList(fsys, dir)
		return filesMsg{Names: names, Err: err}
	}
}

func (m Model) importFile(name string) tea.Cmd {
	ctx, source, fsys, prior := m.ctx, m.source, m.fsys, m.sess.Case()
	return func() tea.Msg {
		c, err := source.ImportFile(ctx, fsys, name, prior)
		return caseLoadedMsg{Name: name, Case: c, Err: err}
	}
}

// View renders the thumbnail next to the playback panel.
func (m Model) View() string {
	if m.mode == modePicker {
		return m.viewPicker()
	}

	st := m.sess.State()
	sty := m.theme.styles()
	c := m.sess.Case()

	var s strings.Builder
	s.WriteString(sty.header.Render(fmt.Sprintf("REPLAYVIS  seed %d", c.Seed)) + "\n")
	if st.Playing() {
		s.WriteString(sty.playing.Render("PLAYING") + "\n\n")
	} else {
		s.WriteString(sty.idle.Render("IDLE") + "\n\n")
	}
	s.WriteString(sty.cursor.Render(Slider(st.Turn(), st.MaxTurn(), sliderWidth)) + "\n\n")
	s.WriteString(sty.label.Render("Turn") + sty.value.Render(fmt.Sprintf("%d / %d", st.Turn(), st.MaxTurn())) + "\n")
	s.WriteString(sty.label.Render("Speed") + sty.value.Render(fmt.Sprintf("%dx", st.Speed())) + "\n")
	s.WriteString(sty.label.Render("Score") + sty.value.Render(strconv.FormatInt(m.frame.Score, 10)) + "\n")
	if m.frame.Err != "" {
		s.WriteString(sty.label.Render("Error") + sty.err.Render(m.frame.Err) + "\n")
	}
	if m.mode == modeSeed {
		s.WriteString(sty.label.Render("Seed") + sty.cursor.Render(m.editBuf+"_") + "\n")
	}

	if len(m.scores) > 1 {
		chart := asciigraph.Plot(m.scores, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Score"))
		s.WriteString("\n" + sty.graph.Render(chart) + "\n")
	}

	if m.exporting {
		s.WriteString("\n" + AnimatedSpinner(m.spin) + " GIF " + ProgressBar(m.exportPct, 24) + fmt.Sprintf(" %3.0f%%", m.exportPct) + "\n")
	}
	if notice := m.sess.Notice(); notice != "" {
		s.WriteString("\n" + sty.notice.Render(notice) + "\n")
	}
	if m.status != "" {
		if m.statusErr {
			s.WriteString("\n" + sty.err.Render(m.status) + "\n")
		} else {
			s.WriteString("\n" + sty.value.Render(m.status) + "\n")
		}
	}
	s.WriteString(sty.help.Render("─────────────────────\nspace:play ←→:step +/-:speed\ns:seed n/N:next/prev o:open\ng:gif G:restart p:png t:theme\n?:help q:quit"))

	canvasView := sty.canvas.Render(m.canvas.String())
	if m.frame.Failed() {
		canvasView = sty.canvas.Render(sty.err.Render(render.InvalidImage))
	}
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, sty.stats.Render(s.String()))
	if m.showHelp {
		return helpText + "\n\n" + mainView
	}
	return mainView
}

const helpText = `
╔══════════════════════════════════════╗
║           KEYBOARD SHORTCUTS         ║
╠══════════════════════════════════════╣
║  space    - Play/Stop                ║
║  ←/h →/l  - Previous/next turn       ║
║  0 / $    - First/last turn          ║
║  + / -    - Speed up/down            ║
║  s        - Enter a seed             ║
║  n / N    - Next/previous seed       ║
║  o        - Open output file         ║
║  g / G    - Export GIF / restart it  ║
║  p        - Export PNG of this turn  ║
║  t        - Cycle themes             ║
║  ?        - Toggle this help         ║
║  q        - Quit                     ║
╚══════════════════════════════════════╝`

func (m Model) viewPicker() string {
	sty := m.theme.styles()
	var b strings.Builder
	b.WriteString("\n\n    " + sty.header.Render("OPEN OUTPUT") + "\n    " + sty.label.Render(m.dir) + "\n\n")
	for i, name := range m.files {
		if i == m.cursor {
			b.WriteString("    " + sty.cursor.Render("▸ "+name) + "\n")
		} else {
			b.WriteString("      " + sty.value.Render(name) + "\n")
		}
	}
	b.WriteString(sty.help.Render("\n    j/k navigate  enter open  esc back") + "\n")
	return b.String()
}

// Run starts the viewer on the alternate screen.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

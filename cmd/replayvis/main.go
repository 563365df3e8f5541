package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/replayvis/internal/caseio"
	"github.com/san-kum/replayvis/internal/config"
	"github.com/san-kum/replayvis/internal/export"
	"github.com/san-kum/replayvis/internal/oracle"
	"github.com/san-kum/replayvis/internal/oracle/paint"
	"github.com/san-kum/replayvis/internal/playback"
	platformotel "github.com/san-kum/replayvis/internal/platform/otel"
	"github.com/san-kum/replayvis/internal/session"
	"github.com/san-kum/replayvis/internal/storage"
	"github.com/san-kum/replayvis/internal/viz"
	"github.com/san-kum/replayvis/internal/web"
)

var (
	configFile string
	dataDir    string
	wasmPath   string
	logLevel   string
	preset     string
	// Case selection
	seed       uint64
	outputFile string
	pickDir    string
	// Destinations
	genDir string
	visOut string
	gifOut string
	pngOut string
	zipOut string
	turn   int
	count  int
	// Viewer
	theme string
	speed int
	// Web
	addr string
)

const defaultConfigFile = "replayvis.yaml"

// main registers the replayvis commands and runs the viewer when no
// subcommand is given.
func main() {
	rootCmd := &cobra.Command{
		Use:           "replayvis",
		Short:         "replay viewer and animated exporter for simulation outputs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runView,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml), default "+defaultConfigFile+" if present")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "artifact directory")
	rootCmd.PersistentFlags().StringVar(&wasmPath, "wasm", "", "oracle module (wasm); built-in sample when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "apply a preset as group/name, e.g. export/smooth")

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "interactive terminal viewer",
		Args:  cobra.NoArgs,
		RunE:  runView,
	}
	for _, c := range []*cobra.Command{rootCmd, viewCmd} {
		c.Flags().Uint64Var(&seed, "seed", 0, "seed to generate the input from")
		c.Flags().StringVar(&outputFile, "output", "", "output file to open; its name selects the seed")
		c.Flags().StringVar(&pickDir, "dir", ".", "directory browsed by the file picker")
		c.Flags().StringVar(&theme, "theme", "default", "color theme")
		c.Flags().IntVar(&speed, "speed", 0, fmt.Sprintf("playback speed multiplier (%d-%d)", playback.MinSpeed, playback.MaxSpeed))
	}

	genCmd := &cobra.Command{
		Use:   "gen [seeds_file]",
		Short: "generate one input per seed listed in a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runGen,
	}
	genCmd.Flags().StringVar(&genDir, "out", "in", "output directory")

	visCmd := &cobra.Command{
		Use:   "vis [input] [output]",
		Short: "render the final turn to vis.html and print the score",
		Args:  cobra.ExactArgs(2),
		RunE:  runVis,
	}
	visCmd.Flags().StringVar(&visOut, "out", "vis.html", "html file to write")

	exportGIFCmd := &cobra.Command{
		Use:   "export-gif [input] [output]",
		Short: "export every turn as an animated gif",
		Args:  cobra.ExactArgs(2),
		RunE:  runExportGIF,
	}
	exportGIFCmd.Flags().StringVar(&gifOut, "out", "", "gif file to write; stored under --data when empty")

	exportPNGCmd := &cobra.Command{
		Use:   "export-png [input] [output]",
		Short: "export one turn as a png",
		Args:  cobra.ExactArgs(2),
		RunE:  runExportPNG,
	}
	exportPNGCmd.Flags().StringVar(&pngOut, "out", "", "png file to write; stored under --data when empty")
	exportPNGCmd.Flags().IntVar(&turn, "turn", -1, "turn to export; the final turn when negative")

	inputsCmd := &cobra.Command{
		Use:   "inputs",
		Short: "write consecutive generated inputs into a zip archive",
		Args:  cobra.NoArgs,
		RunE:  runInputs,
	}
	inputsCmd.Flags().Uint64Var(&seed, "seed", 0, "first seed")
	inputsCmd.Flags().IntVar(&count, "n", 100, "number of inputs")
	inputsCmd.Flags().StringVar(&zipOut, "out", "in.zip", "archive to write")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the viewer api behind basic auth",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "listen address")
	serveCmd.Flags().Uint64Var(&seed, "seed", 0, "initial seed")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored exports",
		Args:  cobra.NoArgs,
		RunE:  listArtifacts,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [artifact_id]",
		Short: "plot the score of a stored animation by turn",
		Args:  cobra.ExactArgs(1),
		RunE:  plotArtifact,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [artifact_id]",
		Short: "export the scores of a stored animation to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [group]",
		Short: "list available presets for a group (playback, export)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for group: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	rootCmd.AddCommand(viewCmd, genCmd, visCmd, exportGIFCmd, exportPNGCmd, inputsCmd, serveCmd, listCmd, plotCmd, exportCSVCmd, presetsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig layers the config file, REPLAYVIS_* variables, the preset and
// finally any flag set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, optional := configFile, false
	if path == "" {
		path, optional = defaultConfigFile, true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if preset != "" {
		group, name, _ := strings.Cut(preset, "/")
		if err := cfg.ApplyPreset(group, name); err != nil {
			return nil, fmt.Errorf("%w (available: playback %v, export %v)", err,
				config.ListPresets("playback"), config.ListPresets("export"))
		}
	}

	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("wasm") {
		cfg.Oracle.Wasm = wasmPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("speed") {
		cfg.Playback.Speed = speed
	}
	if flags.Changed("addr") {
		cfg.Web.Addr = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the default slog logger writing to w.
func setupLogging(cfg *config.Config, w *os.File) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

// app is what every command shares once flags are resolved.
type app struct {
	cfg     *config.Config
	store   *storage.Store
	closers []func(context.Context) error
}

// setup resolves the config, installs logging to logOut and starts tracing.
func setup(cmd *cobra.Command, logOut *os.File) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cfg, logOut); err != nil {
		return nil, err
	}
	shutdown, err := platformotel.Setup(cmd.Context(), "replayvis", cfg.Telemetry.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return &app{
		cfg:     cfg,
		store:   storage.New(cfg.DataDir),
		closers: []func(context.Context) error{shutdown},
	}, nil
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}
}

// openOracle returns the wasm oracle when one is configured and the built-in
// sample problem otherwise.
func (a *app) openOracle(ctx context.Context) (oracle.Oracle, error) {
	if a.cfg.Oracle.Wasm == "" {
		return paint.New(), nil
	}
	w, err := oracle.LoadWasm(ctx, a.cfg.Oracle.Wasm, a.cfg.WasmConfig())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, w.Close)
	slog.InfoContext(ctx, "oracle loaded", "module", a.cfg.Oracle.Wasm)
	return w, nil
}

// session opens the oracle and wraps it in a fresh session.
func (a *app) session(ctx context.Context) (*session.Session, error) {
	o, err := a.openOracle(ctx)
	if err != nil {
		return nil, err
	}
	return session.New(o), nil
}

// loadCase publishes the case held in the input and output files. A
// malformed output is reported but still loaded, with zero turns.
func loadCase(ctx context.Context, sess *session.Session, inputPath, outputPath string) error {
	input, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	output, err := os.ReadFile(outputPath)
	if err != nil {
		return err
	}
	c := caseio.Case{Input: string(input), Output: string(output)}
	if s, ok := caseio.SeedFromName(filepath.Base(outputPath)); ok {
		c.Seed = s
	}
	sess.SetCase(ctx, c)
	if n := sess.Notice(); n != "" {
		fmt.Fprintln(os.Stderr, n)
	}
	return nil
}

func runView(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return err
	}
	// The terminal belongs to the viewer, so logs go to a file.
	logFile, err := os.OpenFile(cfg.LogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	a, err := setup(cmd, logFile)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(ctx)
	if err != nil {
		return err
	}
	if outputFile != "" {
		dir, name := filepath.Split(outputFile)
		if dir == "" {
			dir = "."
		}
		if _, err := sess.ImportFile(ctx, os.DirFS(dir), name); err != nil && !errors.Is(err, caseio.ErrGenerate) {
			return err
		}
	} else if _, err := sess.LoadSeed(ctx, seed); err != nil {
		slog.WarnContext(ctx, "initial seed", "seed", seed, "error", err)
	}

	m := viz.NewModel(ctx, viz.Options{
		Session:  sess,
		Animator: export.NewAnimator(sess.Renderer(), a.cfg.ExportOptions()),
		Store:    a.store,
		FS:       os.DirFS(pickDir),
		Dir:      pickDir,
		Theme:    theme,
		Speed:    a.cfg.Playback.Speed,
	})
	return viz.Run(m)
}

func runGen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	seeds, err := caseio.ReadSeeds(f)
	if err != nil {
		return err
	}

	o, err := a.openOracle(ctx)
	if err != nil {
		return err
	}
	if err := caseio.WriteInputsDir(ctx, o, seeds, genDir); err != nil {
		return err
	}
	fmt.Printf("wrote %d inputs to %s\n", len(seeds), genDir)
	return nil
}

func runVis(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(ctx)
	if err != nil {
		return err
	}
	if err := loadCase(ctx, sess, args[0], args[1]); err != nil {
		return err
	}

	res := sess.FrameAt(ctx, sess.State().MaxTurn())
	f, err := os.Create(visOut)
	if err != nil {
		return err
	}
	if err := web.WriteHTML(f, res.Image, res.Err, res.Score); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if res.Err != "" {
		fmt.Fprintln(os.Stderr, res.Err)
	}
	fmt.Printf("Score = %d\n", res.Score)
	return nil
}

// progressPrinter redraws a progress bar on stderr.
func progressPrinter(label string) func(float64) {
	return func(p float64) {
		fmt.Fprintf(os.Stderr, "\r%s %s %3.0f%%", label, viz.ProgressBar(p, 30), p)
	}
}

func runExportGIF(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(ctx)
	if err != nil {
		return err
	}
	if err := loadCase(ctx, sess, args[0], args[1]); err != nil {
		return err
	}

	c, maxTurn := sess.Case(), sess.State().MaxTurn()
	animator := export.NewAnimator(sess.Renderer(), a.cfg.ExportOptions())
	start := time.Now()
	anim, err := animator.Export(ctx, c, maxTurn, progressPrinter("exporting"))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		var fe *export.FrameError
		if errors.As(err, &fe) {
			return fmt.Errorf("export failed at turn %d: %w", fe.Turn, fe.Wrapped)
		}
		return err
	}
	slog.InfoContext(ctx, "gif exported", "frames", anim.Frames, "bytes", len(anim.Data), "elapsed", time.Since(start))

	if gifOut != "" {
		if err := os.WriteFile(gifOut, anim.Data, 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d frames, final score %d)\n", gifOut, anim.Frames, anim.FinalScore())
		return nil
	}

	if err := a.store.Init(); err != nil {
		return err
	}
	art, err := a.store.Save(storage.Entry{
		Kind: storage.KindGIF, Case: c, Turn: maxTurn, MaxTurn: maxTurn,
		Frames: anim.Frames, Data: anim.Data, Scores: anim.Scores,
	})
	if err != nil {
		return err
	}
	fmt.Printf("saved %s to %s (%d frames, final score %d)\n", art.ID, a.store.Path(art), art.Frames, art.FinalScore)
	return nil
}

func runExportPNG(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(ctx)
	if err != nil {
		return err
	}
	if err := loadCase(ctx, sess, args[0], args[1]); err != nil {
		return err
	}

	c, maxTurn := sess.Case(), sess.State().MaxTurn()
	t := turn
	if t < 0 {
		t = maxTurn
	}
	if t > maxTurn {
		return fmt.Errorf("%w: %d is past the last turn %d", export.ErrInvalidTurn, t, maxTurn)
	}

	data, err := export.NewStill(sess.Renderer()).ExportPNG(ctx, c, t)
	if err != nil {
		return err
	}

	if pngOut != "" {
		if err := os.WriteFile(pngOut, data, 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (turn %d)\n", pngOut, t)
		return nil
	}

	if err := a.store.Init(); err != nil {
		return err
	}
	art, err := a.store.Save(storage.Entry{Kind: storage.KindPNG, Case: c, Turn: t, MaxTurn: maxTurn, Frames: 1, Data: data})
	if err != nil {
		return err
	}
	fmt.Printf("saved %s to %s (turn %d)\n", art.ID, a.store.Path(art), t)
	return nil
}

func runInputs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if count < 1 || count > web.MaxInputs {
		return fmt.Errorf("input count must be in [1, %d], got %d", web.MaxInputs, count)
	}
	o, err := a.openOracle(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(zipOut)
	if err != nil {
		return err
	}
	err = caseio.WriteInputsZip(ctx, f, o, seed, count, progressPrinter("generating"))
	fmt.Fprintln(os.Stderr)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(zipOut)
		return err
	}
	fmt.Printf("wrote %d inputs from seed %d to %s\n", count, seed, zipOut)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Web.Password == "" {
		return fmt.Errorf("no web password configured; set REPLAYVIS_PASSWORD or web.password")
	}
	if err := a.store.Init(); err != nil {
		return err
	}

	sess, err := a.session(ctx)
	if err != nil {
		return err
	}
	if _, err := sess.LoadSeed(ctx, seed); err != nil {
		slog.WarnContext(ctx, "initial seed", "seed", seed, "error", err)
	}

	srv := web.New(sess, export.NewAnimator(sess.Renderer(), a.cfg.ExportOptions()), web.Options{
		User:     a.cfg.Web.User,
		Password: a.cfg.Web.Password,
		Store:    a.store,
	})
	return srv.ListenAndServe(ctx, a.cfg.Web.Addr)
}

func listArtifacts(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	arts, err := a.store.List()
	if err != nil {
		return err
	}

	if len(arts) == 0 {
		fmt.Println("no exports found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTIME\tSEED\tTURN\tFRAMES\tSIZE\tSCORE")

	for _, art := range arts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%d\t%dB\t%d\n",
			art.ID,
			art.Kind,
			art.Timestamp.Format("2006-01-02 15:04:05"),
			art.Seed,
			art.Turn,
			art.MaxTurn,
			art.Frames,
			art.Bytes,
			art.FinalScore,
		)
	}

	return w.Flush()
}

func plotArtifact(cmd *cobra.Command, args []string) error {
	id := args[0]

	a, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	meta, err := a.store.Load(id)
	if err != nil {
		return err
	}
	scores, err := a.store.LoadScores(id)
	if err != nil {
		return err
	}

	if len(scores) == 0 {
		return fmt.Errorf("no scores to plot for %s export %s", meta.Kind, meta.ID)
	}

	fmt.Printf("export: %s\n", meta.ID)
	fmt.Printf("seed: %d\n", meta.Seed)
	fmt.Printf("turns: %d\n\n", meta.MaxTurn)

	data := make([]float64, len(scores))
	for i, s := range scores {
		data[i] = float64(s)
	}
	graph := asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("score by turn"),
	)
	fmt.Println(graph)
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	scores, err := a.store.LoadScores(args[0])
	if err != nil {
		return err
	}

	if len(scores) == 0 {
		return fmt.Errorf("no data to export")
	}

	return storage.WriteScoresCSV(os.Stdout, scores)
}

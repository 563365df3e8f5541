package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

const wasmPageSize = 64 * 1024

// WasmConfig limits a hosted oracle module.
type WasmConfig struct {
	MemoryLimitBytes int64
	CallTimeout      time.Duration
}

// Wasm runs an oracle compiled to a WASI command module. Each call
// instantiates the precompiled module with a fresh memory, writes one JSON
// request to stdin and reads one JSON response from stdout.
//
// The module gets no filesystem, network, clock or environment access.
type Wasm struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	config   wazero.ModuleConfig
	limits   WasmConfig
	logger   *slog.Logger
}

var _ Oracle = (*Wasm)(nil)

// LoadWasm reads and compiles the module at path.
func LoadWasm(ctx context.Context, path string, cfg WasmConfig) (*Wasm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("oracle: read module: %w", err)
	}
	return NewWasm(ctx, data, cfg)
}

// NewWasm compiles wasm bytes into a ready oracle.
func NewWasm(ctx context.Context, wasm []byte, cfg WasmConfig) (*Wasm, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitBytes > 0 {
		pages := uint32(cfg.MemoryLimitBytes / wasmPageSize)
		if pages == 0 {
			pages = 1
		}
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(pages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("oracle: instantiate wasi: %w", err)
	}

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("oracle: compile module: %w", err)
	}

	return &Wasm{
		runtime:  r,
		compiled: compiled,
		config:   wazero.NewModuleConfig().WithName("").WithStartFunctions("_start"),
		limits:   cfg,
		logger:   slog.Default().With("component", "oracle.wasm"),
	}, nil
}

// Close releases the runtime and the compiled module.
func (w *Wasm) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}

func (w *Wasm) Generate(ctx context.Context, seed uint64) (string, error) {
	resp, err := w.call(ctx, request{Op: opGenerate, Seed: seed})
	if err != nil {
		return "", &CallError{Op: opGenerate, Wrapped: err}
	}
	return resp.Text, nil
}

func (w *Wasm) MaxTurn(ctx context.Context, input, output string) (int, error) {
	resp, err := w.call(ctx, request{Op: opMaxTurn, Input: input, Output: output})
	if err != nil {
		return 0, &CallError{Op: opMaxTurn, Wrapped: err}
	}
	if resp.MaxTurn < 0 {
		return 0, &CallError{Op: opMaxTurn, Wrapped: fmt.Errorf("%w: negative max turn %d", ErrModule, resp.MaxTurn)}
	}
	return resp.MaxTurn, nil
}

func (w *Wasm) Render(ctx context.Context, input, output string, turn int) (Frame, error) {
	resp, err := w.call(ctx, request{Op: opRender, Input: input, Output: output, Turn: turn})
	if err != nil {
		return Frame{}, &CallError{Op: opRender, Wrapped: err}
	}
	return Frame{SVG: resp.SVG, Err: resp.Err, Score: resp.Score}, nil
}

func (w *Wasm) call(ctx context.Context, req request) (response, error) {
	if w.limits.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.limits.CallTimeout)
		defer cancel()
	}

	payload, err := encodeRequest(req)
	if err != nil {
		return response{}, err
	}

	var stdout, stderr bytes.Buffer
	cfg := w.config.
		WithStdin(bytes.NewReader(payload)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := w.runtime.InstantiateModule(ctx, w.compiled, cfg)
	if mod != nil {
		defer func() { _ = mod.Close(ctx) }()
	}
	if err != nil {
		var exitErr *sys.ExitError
		switch {
		case errors.As(err, &exitErr) && exitErr.ExitCode() == 0:
		case ctx.Err() != nil:
			return response{}, fmt.Errorf("%w: timed out after %v", ErrModule, w.limits.CallTimeout)
		default:
			if stderr.Len() > 0 {
				w.logger.Debug("module stderr", "op", req.Op, "stderr", stderr.String())
			}
			return response{}, fmt.Errorf("%w: %v", ErrModule, err)
		}
	}

	return decodeResponse(stdout.Bytes())
}

const (
	opGenerate = "gen"
	opMaxTurn  = "max_turn"
	opRender   = "vis"
)

type request struct {
	Op     string `json:"op"`
	Seed   uint64 `json:"seed"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
	Turn   int    `json:"turn"`
}

type response struct {
	Text    string `json:"text"`
	MaxTurn int    `json:"max_turn"`
	SVG     string `json:"svg"`
	Err     string `json:"err"`
	Score   int64  `json:"score"`
	Error   string `json:"error"`
}

func encodeRequest(req request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: encode request: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeResponse(data []byte) (response, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return response{}, fmt.Errorf("%w: empty response", ErrModule)
	}
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return response{}, fmt.Errorf("%w: decode response: %v", ErrModule, err)
	}
	if resp.Error != "" {
		return response{}, fmt.Errorf("%w: %s", ErrMalformed, resp.Error)
	}
	return resp, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/replayvis/internal/export"
	"github.com/san-kum/replayvis/internal/oracle"
	"github.com/san-kum/replayvis/internal/playback"
)

const (
	DefaultAddr          = ":8080"
	DefaultUser          = "admin"
	DefaultMemoryLimitMB = 64
	DefaultCallTimeout   = 10 * time.Second
	DefaultLogLevel      = "info"
	DefaultDataDir       = "./artifacts"
)

type Config struct {
	DataDir   string          `yaml:"data_dir" env:"REPLAYVIS_DATA_DIR"`
	LogLevel  string          `yaml:"log_level" env:"REPLAYVIS_LOG_LEVEL"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Export    ExportConfig    `yaml:"export"`
	Web       WebConfig       `yaml:"web"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// OracleConfig selects the oracle. An empty Wasm path means the built-in
// sample problem.
type OracleConfig struct {
	Wasm          string        `yaml:"wasm" env:"REPLAYVIS_WASM"`
	MemoryLimitMB int           `yaml:"memory_limit_mb" env:"REPLAYVIS_WASM_MEMORY_MB"`
	CallTimeout   time.Duration `yaml:"call_timeout" env:"REPLAYVIS_WASM_TIMEOUT"`
}

type PlaybackConfig struct {
	Speed int `yaml:"speed" env:"REPLAYVIS_SPEED"`
}

type ExportConfig struct {
	StepBudget   time.Duration `yaml:"step_budget" env:"REPLAYVIS_EXPORT_STEP_BUDGET"`
	BudgetFrames int           `yaml:"budget_frames" env:"REPLAYVIS_EXPORT_BUDGET_FRAMES"`
	FinalHold    time.Duration `yaml:"final_hold" env:"REPLAYVIS_EXPORT_FINAL_HOLD"`
	Workers      int           `yaml:"workers" env:"REPLAYVIS_EXPORT_WORKERS"`
	Dither       bool          `yaml:"dither" env:"REPLAYVIS_EXPORT_DITHER"`
}

type WebConfig struct {
	Addr     string `yaml:"addr" env:"REPLAYVIS_ADDR"`
	User     string `yaml:"user" env:"REPLAYVIS_USER"`
	Password string `yaml:"password" env:"REPLAYVIS_PASSWORD"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" env:"REPLAYVIS_OTEL_ENDPOINT"`
}

func DefaultConfig() *Config {
	opts := export.DefaultOptions()
	return &Config{
		DataDir:  DefaultDataDir,
		LogLevel: DefaultLogLevel,
		Oracle: OracleConfig{
			MemoryLimitMB: DefaultMemoryLimitMB,
			CallTimeout:   DefaultCallTimeout,
		},
		Playback: PlaybackConfig{Speed: playback.DefaultSpeed},
		Export: ExportConfig{
			StepBudget:   opts.StepBudget,
			BudgetFrames: opts.BudgetFrames,
			FinalHold:    opts.FinalHold,
			Workers:      opts.Workers,
			Dither:       opts.Dither,
		},
		Web: WebConfig{
			Addr: DefaultAddr,
			User: DefaultUser,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set, so a fresh install runs on defaults alone.
func Load(path string, optional bool) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from REPLAYVIS_* variables. The web credentials
// come from REPLAYVIS_USER and REPLAYVIS_PASSWORD.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.Playback.Speed < playback.MinSpeed || c.Playback.Speed > playback.MaxSpeed:
		return fmt.Errorf("config: playback speed %d outside [%d, %d]", c.Playback.Speed, playback.MinSpeed, playback.MaxSpeed)
	case c.Export.Workers < 1:
		return fmt.Errorf("config: export workers must be positive, got %d", c.Export.Workers)
	case c.Export.BudgetFrames < 1:
		return fmt.Errorf("config: export budget frames must be positive, got %d", c.Export.BudgetFrames)
	case c.Export.StepBudget <= 0 || c.Export.FinalHold <= 0:
		return fmt.Errorf("config: export delays must be positive")
	case c.Oracle.MemoryLimitMB < 1:
		return fmt.Errorf("config: oracle memory limit must be positive, got %d MB", c.Oracle.MemoryLimitMB)
	}
	return nil
}

func (c *Config) ExportOptions() export.Options {
	return export.Options{
		StepBudget:   c.Export.StepBudget,
		BudgetFrames: c.Export.BudgetFrames,
		FinalHold:    c.Export.FinalHold,
		Workers:      c.Export.Workers,
		Dither:       c.Export.Dither,
	}
}

func (c *Config) WasmConfig() oracle.WasmConfig {
	return oracle.WasmConfig{
		MemoryLimitBytes: int64(c.Oracle.MemoryLimitMB) << 20,
		CallTimeout:      c.Oracle.CallTimeout,
	}
}

// LogFile is where the terminal viewer writes its log.
func (c *Config) LogFile() string {
	return filepath.Join(c.DataDir, "replayvis.log")
}

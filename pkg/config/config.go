// Package config handles vsp.toml configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/akhildatla/vsp/pkg/batch"
	"github.com/akhildatla/vsp/pkg/vm"
)

// FileName is the configuration file searched for by FindAndLoad.
const FileName = "vsp.toml"

// Config represents a vsp.toml file.
type Config struct {
	VM      VM      `toml:"vm"`
	Batch   Batch   `toml:"batch"`
	Log     Log     `toml:"log"`
	Cache   Cache   `toml:"cache"`
	Metrics Metrics `toml:"metrics"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// VM configures processor instances.
type VM struct {
	Mode        string `toml:"mode"`
	HeapStates  int    `toml:"heap-states"`
	StackFrames int    `toml:"stack-frames"`
	MaxSteps    int64  `toml:"max-steps"`
}

// Batch configures the micro-batch scheduler.
type Batch struct {
	Enabled           bool     `toml:"enabled"`
	MaxStates         int      `toml:"max-states"`
	MaxWait           Duration `toml:"max-wait"`
	ChannelSize       int      `toml:"channel-size"`
	ParallelThreshold int      `toml:"parallel-threshold"`
}

// Log configures the process logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Cache configures the decoded-instruction cache.
type Cache struct {
	Size int `toml:"size"`
}

// Metrics switches go-metrics collection on.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Duration is a time.Duration written as a string such as "5ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	vc := vm.DefaultConfig()
	bc := batch.DefaultConfig()
	return &Config{
		VM: VM{
			Mode:        vc.Mode.String(),
			HeapStates:  vc.HeapStates,
			StackFrames: vc.StackFrames,
		},
		Batch: Batch{
			MaxStates:         bc.MaxBatchStates,
			MaxWait:           Duration{bc.MaxWait},
			ChannelSize:       bc.ChannelSize,
			ParallelThreshold: bc.ParallelThreshold,
		},
		Log:   Log{Level: "warn", Format: "console"},
		Cache: Cache{Size: vc.CacheSize},
	}
}

// Load parses the file at path. Keys it does not set keep their
// defaults; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a vsp.toml file, then loads
// it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Write stores c at path in TOML form.
func (c *Config) Write(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if _, err := vm.ParseMode(c.VM.Mode); err != nil {
		return fmt.Errorf("vm.mode: %w", err)
	}
	switch {
	case c.VM.HeapStates < 0:
		return fmt.Errorf("vm.heap-states: negative value %d", c.VM.HeapStates)
	case c.VM.StackFrames < 0:
		return fmt.Errorf("vm.stack-frames: negative value %d", c.VM.StackFrames)
	case c.VM.MaxSteps < 0:
		return fmt.Errorf("vm.max-steps: negative value %d", c.VM.MaxSteps)
	case c.Cache.Size < 0:
		return fmt.Errorf("cache.size: negative value %d", c.Cache.Size)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: want console or json, got %q", c.Log.Format)
	}
	return nil
}

// VMConfig converts the [vm] and [cache] sections. Stdout and Logger are
// left for the caller.
func (c *Config) VMConfig() vm.Config {
	cfg := vm.DefaultConfig()
	if m, err := vm.ParseMode(c.VM.Mode); err == nil {
		cfg.Mode = m
	}
	cfg.HeapStates = c.VM.HeapStates
	cfg.StackFrames = c.VM.StackFrames
	cfg.MaxSteps = c.VM.MaxSteps
	cfg.CacheSize = c.Cache.Size
	return cfg
}

// BatchConfig converts the [batch] section.
func (c *Config) BatchConfig() batch.Config {
	return batch.Config{
		MaxBatchStates:    c.Batch.MaxStates,
		MaxWait:           c.Batch.MaxWait.Duration,
		ChannelSize:       c.Batch.ChannelSize,
		ParallelThreshold: c.Batch.ParallelThreshold,
	}
}

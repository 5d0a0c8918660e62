// Package manifest handles warden.toml runtime configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that decodes from TOML strings like
// "500ms" or "1s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Manifest represents a warden.toml runtime configuration.
type Manifest struct {
	Isolate IsolateConfig `toml:"isolate"`
	Mutator MutatorConfig `toml:"mutator"`
	Server  ServerConfig  `toml:"server"`

	// Dir is the directory containing the warden.toml file (set at load time).
	Dir string `toml:"-"`
}

// IsolateConfig configures the owner loop.
type IsolateConfig struct {
	// YieldEvery and YieldWindow drive the owner's yield policy. Both
	// zero means the owner never yields on its own.
	YieldEvery  Duration `toml:"yield-every"`
	YieldWindow Duration `toml:"yield-window"`

	// CheckLocks enables runtime checking of bookkeeping locks.
	CheckLocks bool `toml:"check-locks"`
}

// MutatorConfig configures background mutators.
type MutatorConfig struct {
	Period Duration `toml:"period"`
	Step   float64  `toml:"step"`
	Field  string   `toml:"field"`
}

// ServerConfig configures the inspection server.
type ServerConfig struct {
	Listen     string   `toml:"listen"`
	HandleTTL  Duration `toml:"handle-ttl"`
	SweepEvery Duration `toml:"sweep-every"`
}

// Load parses a warden.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "warden.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

// Default returns the built-in configuration used when no warden.toml
// is present.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Mutator.Period == 0 {
		m.Mutator.Period = Duration(500 * time.Millisecond)
	}
	if m.Mutator.Step == 0 {
		m.Mutator.Step = 42
	}
	if m.Mutator.Field == "" {
		m.Mutator.Field = "x"
	}
	if m.Server.Listen == "" {
		m.Server.Listen = ":4567"
	}
	if m.Server.HandleTTL == 0 {
		m.Server.HandleTTL = Duration(30 * time.Minute)
	}
	if m.Server.SweepEvery == 0 {
		m.Server.SweepEvery = Duration(5 * time.Minute)
	}
}

// FindAndLoad walks up from startDir to find a warden.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "warden.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

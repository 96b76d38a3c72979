// Package config loads faultline.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Find.
const FileName = "faultline.toml"

// Config is the full configuration. Zero values in a file keep defaults.
type Config struct {
	Logging   Logging   `toml:"logging"`
	Taxonomy  Taxonomy  `toml:"taxonomy"`
	Render    Render    `toml:"render"`
	Collector Collector `toml:"collector"`

	// Path is the file the configuration was read from, if any.
	Path string `toml:"-"`
}

type Logging struct {
	Dir              string `toml:"dir"`
	FallbackSeverity string `toml:"fallback_severity"`
	EmergencyPath    string `toml:"emergency_path"`
	Durable          bool   `toml:"durable"`
	RingSize         int    `toml:"ring_size"`
}

type Taxonomy struct {
	// File overrides the embedded taxonomy.
	File string `toml:"file"`
	// Catalog overrides the embedded renderer catalog.
	Catalog string `toml:"catalog"`
}

type Render struct {
	Full  bool   `toml:"full"`
	Color string `toml:"color"` // auto, on or off
	Width int    `toml:"width"`
}

type Collector struct {
	MaxRecords         int  `toml:"max_records"`
	EscalateOnCritical bool `toml:"escalate_on_critical"`
	StreamMode         bool `toml:"stream_mode"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: Logging{
			Dir:              "logs",
			FallbackSeverity: "ERROR",
			EmergencyPath:    "errors/logger-emergency.log",
			Durable:          true,
			RingSize:         256,
		},
		Render: Render{
			Color: "auto",
			Width: 100,
		},
		Collector: Collector{
			MaxRecords: 1000,
			StreamMode: true,
		},
	}
}

// Find walks up from startDir looking for faultline.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load reads path over the defaults. Relative paths inside the file are
// resolved against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("logging", "fallback_severity") && strings.TrimSpace(cfg.Logging.FallbackSeverity) == "" {
		return Config{}, fmt.Errorf("%s: [logging].fallback_severity must not be empty", path)
	}
	if meta.IsDefined("logging", "dir") && strings.TrimSpace(cfg.Logging.Dir) == "" {
		return Config{}, fmt.Errorf("%s: [logging].dir must not be empty", path)
	}
	switch cfg.Render.Color {
	case "auto", "on", "off":
	default:
		return Config{}, fmt.Errorf("%s: [render].color must be auto, on or off, got %q", path, cfg.Render.Color)
	}
	if cfg.Collector.MaxRecords < 0 {
		return Config{}, fmt.Errorf("%s: [collector].max_records must not be negative", path)
	}

	root := filepath.Dir(path)
	cfg.Logging.Dir = resolve(root, cfg.Logging.Dir)
	cfg.Taxonomy.File = resolve(root, cfg.Taxonomy.File)
	cfg.Taxonomy.Catalog = resolve(root, cfg.Taxonomy.Catalog)
	cfg.Path = path
	return cfg, nil
}

// Discover loads the nearest faultline.toml above startDir, or returns the
// defaults when there is none.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, filepath.FromSlash(p))
}

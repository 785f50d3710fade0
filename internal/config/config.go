package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/internal/logging"
	"github.com/logicossoftware/go-kfx/render"
)

// Config is the kfxconv configuration file.
type Config struct {
	Output  Output  `toml:"output"`
	Logging Logging `toml:"logging"`
	Limits  Limits  `toml:"limits"`
}

type Output struct {
	EPUB2            bool   `toml:"epub2"`
	ForceCover       bool   `toml:"force_cover"`
	AllowFixedLayout bool   `toml:"allow_fixed_layout"`
	Dir              string `toml:"dir"`
	CompressionLevel int    `toml:"compression_level"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Limits mirrors kfx.Limits; zero values keep the parser defaults.
type Limits struct {
	MaxContainerSize uint64 `toml:"max_container_size"`
	MaxSymbols       uint32 `toml:"max_symbols"`
	MaxFragments     uint32 `toml:"max_fragments"`
	MaxRecordLen     uint32 `toml:"max_record_len"`
	MaxUncompressed  uint64 `toml:"max_uncompressed"`
	MaxDepth         int    `toml:"max_depth"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Output: Output{
			CompressionLevel: -1,
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error; the
// returned bool reports whether the file existed.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	exists := false
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, false, err
		}
		file, err := os.Open(expanded)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, false, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			exists = true
			decoder := toml.NewDecoder(file)
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(&cfg); err != nil {
				return nil, false, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, exists, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Output.Dir, err = expandPath(strings.TrimSpace(c.Output.Dir)); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "auto"
	}
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Output.CompressionLevel < -2 || c.Output.CompressionLevel > 9 {
		return fmt.Errorf("output.compression_level must be between -2 and 9, got %d", c.Output.CompressionLevel)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Limits.MaxDepth < 0 {
		return fmt.Errorf("limits.max_depth must not be negative")
	}
	return nil
}

// ReadLimits converts the [limits] table for kfx.WithReadLimits.
func (c *Config) ReadLimits() kfx.Limits {
	return kfx.Limits{
		MaxContainerSize: c.Limits.MaxContainerSize,
		MaxSymbols:       c.Limits.MaxSymbols,
		MaxFragments:     c.Limits.MaxFragments,
		MaxRecordLen:     c.Limits.MaxRecordLen,
		MaxUncompressed:  c.Limits.MaxUncompressed,
		MaxDepth:         c.Limits.MaxDepth,
	}
}

// RenderOptions converts the [output] table.
func (c *Config) RenderOptions() render.Options {
	return render.Options{
		EPUB2:            c.Output.EPUB2,
		ForceCover:       c.Output.ForceCover,
		AllowFixedLayout: c.Output.AllowFixedLayout,
		CompressionLevel: c.Output.CompressionLevel,
	}
}

// LoggingOptions converts the [logging] table.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Logging.Level, Format: c.Logging.Format}
}

func expandPath(path string) (string, error) {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	if path == "~" {
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

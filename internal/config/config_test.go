package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/logicossoftware/go-kfx/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kfxconv.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if cfg.Output.CompressionLevel != -1 || cfg.Logging.Format != "auto" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, `
[output]
epub2 = true
force_cover = true
dir = "~/books"
compression_level = 9

[logging]
level = " DEBUG "
format = "JSON"

[limits]
max_depth = 32
max_fragments = 1000
`)
	cfg, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected file to exist")
	}
	if !cfg.Output.EPUB2 || !cfg.Output.ForceCover || cfg.Output.CompressionLevel != 9 {
		t.Fatalf("output not loaded: %+v", cfg.Output)
	}
	if !strings.HasSuffix(cfg.Output.Dir, "books") || strings.HasPrefix(cfg.Output.Dir, "~") {
		t.Fatalf("dir not expanded: %q", cfg.Output.Dir)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
	l := cfg.ReadLimits()
	if l.MaxDepth != 32 || l.MaxFragments != 1000 || l.MaxSymbols != 0 {
		t.Fatalf("limits %+v", l)
	}
	opts := cfg.RenderOptions()
	if !opts.EPUB2 || !opts.ForceCover || opts.CompressionLevel != 9 {
		t.Fatalf("render options %+v", opts)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"level":       "[output]\ncompression_level = 12\n",
		"log level":   "[logging]\nlevel = \"loud\"\n",
		"log format":  "[logging]\nformat = \"xml\"\n",
		"unknown key": "[output]\nunknown = 1\n",
		"syntax":      "[output\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := config.Load(writeConfig(t, content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDefaultMarshalsToTOML(t *testing.T) {
	cfg := config.Default()
	b, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var back config.Config
	if err := toml.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back != cfg {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, cfg)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.CompileCommands != "compile_commands.json" {
		t.Errorf("CompileCommands = %q, want compile_commands.json", cfg.CompileCommands)
	}
	if cfg.Jobs != 1 {
		t.Errorf("Jobs = %d, want 1", cfg.Jobs)
	}
	if cfg.Frontend != FrontendClang {
		t.Errorf("Frontend = %q, want clang", cfg.Frontend)
	}
	if cfg.Clang != "clang" {
		t.Errorf("Clang = %q, want clang", cfg.Clang)
	}
	if cfg.Format != "text" {
		t.Errorf("Format = %q, want text", cfg.Format)
	}
	if cfg.SkipStatic || cfg.SkipInline || cfg.Verbose {
		t.Error("boolean options should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "orphan.toml", `
compile-commands = "build/compile_commands.json"
root = "/src/project"
skip-static = true
jobs = 4
frontend = "treesitter"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CompileCommands != "build/compile_commands.json" {
		t.Errorf("CompileCommands = %q", cfg.CompileCommands)
	}
	if cfg.Root != "/src/project" {
		t.Errorf("Root = %q", cfg.Root)
	}
	if !cfg.SkipStatic {
		t.Error("SkipStatic should be true")
	}
	if cfg.Jobs != 4 {
		t.Errorf("Jobs = %d, want 4", cfg.Jobs)
	}
	if cfg.Frontend != FrontendTreeSitter {
		t.Errorf("Frontend = %q", cfg.Frontend)
	}
	// Unset keys keep their defaults.
	if cfg.Format != "text" {
		t.Errorf("Format = %q, want default text", cfg.Format)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "orphan.yaml", `
skip-inline: true
verbose: true
clang: clang-18
format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.SkipInline || !cfg.Verbose {
		t.Errorf("SkipInline=%v Verbose=%v, want both true", cfg.SkipInline, cfg.Verbose)
	}
	if cfg.Clang != "clang-18" {
		t.Errorf("Clang = %q", cfg.Clang)
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %q", cfg.Format)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "orphan.json", `{"jobs": 0, "output": "report.md", "format": "markdown"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Jobs != 0 {
		t.Errorf("Jobs = %d, want 0", cfg.Jobs)
	}
	if cfg.Output != "report.md" {
		t.Errorf("Output = %q", cfg.Output)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "orphan.toml", "jobs = [unterminated")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestLoadConfigSearch(t *testing.T) {
	dir := t.TempDir()

	result, err := LoadConfig(WithSearchDirs(dir))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if result.Source != "" {
		t.Errorf("Source = %q, want empty", result.Source)
	}
	if result.Config.Jobs != 1 {
		t.Errorf("Jobs = %d, want default 1", result.Config.Jobs)
	}

	writeConfig(t, dir, ".orphan.yml", "jobs: 3\n")
	want := writeConfig(t, dir, "orphan.toml", "jobs = 2\n")

	result, err = LoadConfig(WithSearchDirs(dir))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if result.Source != want {
		t.Errorf("Source = %q, want %q", result.Source, want)
	}
	if result.Config.Jobs != 2 {
		t.Errorf("Jobs = %d, want 2", result.Config.Jobs)
	}
}

func TestLoadConfigExplicitPath(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "custom.yaml", "frontend: treesitter\n")

	result, err := LoadConfig(WithPath(path))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if result.Source != path || result.Config.Frontend != FrontendTreeSitter {
		t.Errorf("got source %q frontend %q", result.Source, result.Config.Frontend)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "orphan.toml", "frontend = \"gcc\"\n")

	_, err := LoadConfig(WithPath(path))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), `unknown frontend "gcc"`) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"negative jobs", func(c *Config) { c.Jobs = -1 }, "jobs must be >= 0"},
		{"unknown frontend", func(c *Config) { c.Frontend = "gcc" }, "unknown frontend"},
		{"empty clang", func(c *Config) { c.Clang = "" }, "clang binary"},
		{"empty clang with treesitter", func(c *Config) { c.Clang = ""; c.Frontend = FrontendTreeSitter }, ""},
		{"unknown format", func(c *Config) { c.Format = "xml" }, "unknown format"},
		{"table format", func(c *Config) { c.Format = "table" }, ""},
		{"empty database", func(c *Config) { c.CompileCommands = "" }, "compile-commands"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestProjectRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompileCommands = "/work/build/compile_commands.json"

	root, err := cfg.ProjectRoot()
	if err != nil {
		t.Fatal(err)
	}
	if root != filepath.FromSlash("/work/build") {
		t.Errorf("ProjectRoot() = %q, want /work/build", root)
	}

	cfg.Root = "/work"
	root, _ = cfg.ProjectRoot()
	if root != filepath.FromSlash("/work") {
		t.Errorf("ProjectRoot() = %q, want /work", root)
	}
}

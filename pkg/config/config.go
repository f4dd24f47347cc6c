package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/panbanda/orphan/internal/output"
)

// Front end names.
const (
	FrontendClang      = "clang"
	FrontendTreeSitter = "treesitter"
)

// Config holds all configuration options for orphan.
type Config struct {
	// CompileCommands is the path to the compilation database.
	CompileCommands string `koanf:"compile-commands" toml:"compile-commands" yaml:"compile-commands" json:"compile-commands"`
	// Root is the project root. Empty means the database's directory.
	Root string `koanf:"root" toml:"root" yaml:"root" json:"root"`

	SkipStatic bool `koanf:"skip-static" toml:"skip-static" yaml:"skip-static" json:"skip-static"`
	SkipInline bool `koanf:"skip-inline" toml:"skip-inline" yaml:"skip-inline" json:"skip-inline"`
	Verbose    bool `koanf:"verbose" toml:"verbose" yaml:"verbose" json:"verbose"`
	// Jobs is the worker count; 0 uses every CPU.
	Jobs int `koanf:"jobs" toml:"jobs" yaml:"jobs" json:"jobs"`

	Frontend string `koanf:"frontend" toml:"frontend" yaml:"frontend" json:"frontend"`
	// Clang is the binary the clang front end runs.
	Clang string `koanf:"clang" toml:"clang" yaml:"clang" json:"clang"`

	Format string `koanf:"format" toml:"format" yaml:"format" json:"format"`
	// Output is the report file; empty writes to stdout.
	Output string `koanf:"output" toml:"output" yaml:"output" json:"output"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CompileCommands: "compile_commands.json",
		Jobs:            1,
		Frontend:        FrontendClang,
		Clang:           "clang",
		Format:          string(output.FormatText),
	}
}

// configNames are searched in order by LoadConfig.
var configNames = []string{
	"orphan.toml",
	"orphan.yaml",
	"orphan.yml",
	"orphan.json",
	".orphan.toml",
	".orphan.yaml",
	".orphan.yml",
	".orphan.json",
}

// Load loads configuration from a file, layered over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadResult is a loaded configuration and the file it came from.
type LoadResult struct {
	Config *Config
	// Source is empty when no file was found and defaults are in effect.
	Source string
}

type loadOptions struct {
	path string
	dirs []string
}

// LoadOption configures LoadConfig.
type LoadOption func(*loadOptions)

// WithPath loads exactly path instead of searching.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) {
		o.path = path
	}
}

// WithSearchDirs replaces the directories searched for a config file.
func WithSearchDirs(dirs ...string) LoadOption {
	return func(o *loadOptions) {
		o.dirs = dirs
	}
}

// LoadConfig loads the explicit path if given, otherwise the first standard
// config file found in the search directories, and validates the result.
func LoadConfig(opts ...LoadOption) (*LoadResult, error) {
	o := loadOptions{dirs: []string{"."}}
	for _, opt := range opts {
		opt(&o)
	}

	source := o.path
	if source == "" {
		source = find(o.dirs)
	}
	if source == "" {
		return &LoadResult{Config: DefaultConfig()}, nil
	}

	cfg, err := Load(source)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return &LoadResult{Config: cfg, Source: source}, nil
}

func find(dirs []string) string {
	for _, dir := range dirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}

// Validate checks option values.
func (c *Config) Validate() error {
	var errs []error
	if c.CompileCommands == "" {
		errs = append(errs, errors.New("compile-commands must not be empty"))
	}
	if c.Jobs < 0 {
		errs = append(errs, fmt.Errorf("jobs must be >= 0, got %d", c.Jobs))
	}
	switch c.Frontend {
	case FrontendClang, FrontendTreeSitter:
	default:
		errs = append(errs, fmt.Errorf("unknown frontend %q (want %s or %s)", c.Frontend, FrontendClang, FrontendTreeSitter))
	}
	if c.Frontend == FrontendClang && c.Clang == "" {
		errs = append(errs, errors.New("clang binary must not be empty"))
	}
	if !output.Valid(c.Format) {
		errs = append(errs, fmt.Errorf("unknown format %q", c.Format))
	}
	return errors.Join(errs...)
}

// ProjectRoot returns the absolute project root, defaulting to the
// directory holding the compilation database.
func (c *Config) ProjectRoot() (string, error) {
	root := c.Root
	if root == "" {
		root = filepath.Dir(c.CompileCommands)
	}
	return filepath.Abs(root)
}

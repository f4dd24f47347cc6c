// Package compdb loads compilation databases (compile_commands.json).
package compdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// WrapperKey is the field under which an object-shaped database stores its entries.
const WrapperKey = "commands"

// schemaDoc describes both accepted layouts: a bare array of entries or an
// object carrying the array under WrapperKey.
const schemaDoc = `{
  "$defs": {
    "entry": {
      "type": "object",
      "required": ["file"],
      "properties": {
        "file": {"type": "string", "minLength": 1},
        "directory": {"type": "string"},
        "arguments": {"type": "array", "items": {"type": "string"}},
        "command": {"type": "string"},
        "output": {"type": "string"}
      },
      "anyOf": [
        {"required": ["arguments"]},
        {"required": ["command"]}
      ]
    },
    "entries": {"type": "array", "items": {"$ref": "#/$defs/entry"}}
  },
  "oneOf": [
    {"$ref": "#/$defs/entries"},
    {
      "type": "object",
      "required": ["commands"],
      "properties": {"commands": {"$ref": "#/$defs/entries"}}
    }
  ]
}`

const schemaURL = "compile_commands.schema.json"

// launchers are compiler wrappers that precede the real compiler.
var launchers = map[string]bool{
	"ccache":  true,
	"sccache": true,
	"distcc":  true,
}

// Entry is a single compile invocation from the database.
type Entry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments,omitempty"`
	Command   string   `json:"command,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// ConfigurationError reports a compilation database that cannot be used.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("compilation database %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Load reads and validates the compilation database at path.
// Relative entry directories are resolved against the database's directory.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	entries, err := Parse(data)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	base := filepath.Dir(path)
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}
	for i := range entries {
		switch {
		case entries[i].Directory == "":
			entries[i].Directory = base
		case !filepath.IsAbs(entries[i].Directory):
			entries[i].Directory = filepath.Join(base, entries[i].Directory)
		}
	}
	return entries, nil
}

// Parse decodes a compilation database document.
func Parse(data []byte) ([]Entry, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		data = wrapper[WrapperKey]
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	return entries, nil
}

func validate(data []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("unsupported structure: %w", err)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaDoc))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
}

// Split returns the compiler and the remaining arguments of the entry.
// A command string is tokenized with shell quoting rules. Known compiler
// launchers such as ccache are skipped. The compiler is empty when the
// entry carries no invocation at all.
func (e Entry) Split() (string, []string, error) {
	var args []string
	switch {
	case len(e.Arguments) > 0:
		args = append(args, e.Arguments...)
	case e.Command != "":
		tokens, err := shlex.Split(e.Command)
		if err != nil {
			return "", nil, fmt.Errorf("tokenize command for %s: %w", e.File, err)
		}
		args = tokens
	}

	for len(args) > 1 && launchers[filepath.Base(args[0])] {
		args = args[1:]
	}
	if len(args) == 0 {
		return "", nil, nil
	}
	return args[0], args[1:], nil
}

// SourcePath returns the entry's source file as an absolute path.
func (e Entry) SourcePath() string {
	if filepath.IsAbs(e.File) {
		return filepath.Clean(e.File)
	}
	return filepath.Join(e.Directory, e.File)
}

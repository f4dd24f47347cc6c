// Package clang implements the ast front end on top of clang's JSON AST dump.
//
// Each parse runs `clang -fsyntax-only -Xclang -ast-dump=json` as its own
// process in the entry's working directory, so parallel sessions never share
// front-end state. Symbol identities come from clang's mangled names, which
// are stable across translation units.
//
// The dump covers the whole translation unit, including the bodies of every
// function defined in system headers. For C++ sources that pull in the
// standard library it routinely reaches hundreds of megabytes, and decoding
// it holds the full tree in memory. Each worker holds one decoded dump at a
// time, so peak memory grows with -j; lower it on memory-constrained hosts.
package clang

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/panbanda/orphan/pkg/ast"
	"github.com/panbanda/orphan/pkg/invocation"
	"github.com/segmentio/encoding/json"
)

// DefaultBinary is the clang executable used when none is configured.
const DefaultBinary = "clang"

// dumpFlags put clang in front-end only mode with a JSON AST on stdout.
var dumpFlags = []string{
	"-fsyntax-only",
	"-Xclang", "-ast-dump=json",
	"-fno-color-diagnostics",
	"-ferror-limit=0",
	"-Qunused-arguments",
	"-w",
}

// maxStderr bounds how much diagnostic output is kept for error messages.
const maxStderr = 4096

// Runner executes clang, streaming the AST dump to stdout, and returns
// whatever it printed on stderr.
type Runner func(ctx context.Context, dir, binary string, args []string, stdout io.Writer) ([]byte, error)

// Frontend creates clang parse sessions.
type Frontend struct {
	binary string
	run    Runner
}

// Compile-time check that Frontend implements ast.Frontend.
var _ ast.Frontend = (*Frontend)(nil)

// Option configures a Frontend.
type Option func(*Frontend)

// WithBinary sets the clang executable.
func WithBinary(binary string) Option {
	return func(f *Frontend) {
		if binary != "" {
			f.binary = binary
		}
	}
}

// WithRunner replaces the process runner (used by tests).
func WithRunner(run Runner) Option {
	return func(f *Frontend) {
		f.run = run
	}
}

// New creates a clang front end.
func New(opts ...Option) *Frontend {
	f := &Frontend{binary: DefaultBinary, run: runClang}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements ast.Frontend.
func (f *Frontend) Name() string {
	return "clang"
}

// Available reports whether the configured clang binary can be found.
func (f *Frontend) Available() bool {
	_, err := exec.LookPath(f.binary)
	return err == nil
}

// NewSession implements ast.Frontend.
func (f *Frontend) NewSession() (ast.Session, error) {
	return &session{binary: f.binary, run: f.run}, nil
}

type session struct {
	binary string
	run    Runner
}

type runResult struct {
	stderr []byte
	err    error
}

// Parse implements ast.Session. A non-zero clang exit is tolerated as long as
// a complete AST was dumped; missing headers and similar errors still leave
// most of the translation unit usable.
func (s *session) Parse(ctx context.Context, inv invocation.Prepared) (*ast.TranslationUnit, error) {
	args := make([]string, 0, len(dumpFlags)+len(inv.Args)+1)
	args = append(args, dumpFlags...)
	args = append(args, inv.Args...)
	args = append(args, inv.File)

	pr, pw := io.Pipe()
	done := make(chan runResult, 1)
	go func() {
		stderr, err := s.run(ctx, inv.Directory, s.binary, args, pw)
		pw.Close()
		done <- runResult{stderr: stderr, err: err}
	}()

	var root node
	decodeErr := json.NewDecoder(pr).Decode(&root)
	_, _ = io.Copy(io.Discard, pr)
	res := <-done

	if decodeErr != nil || root.Kind == "" {
		err := decodeErr
		if err == nil {
			err = errors.New("empty AST dump")
		}
		if res.err != nil {
			err = fmt.Errorf("%w: %v", res.err, summarize(res.stderr))
		}
		return nil, &ast.ParseError{File: inv.File, Err: err}
	}

	b := newBuilder(inv.Directory)
	return &ast.TranslationUnit{
		File:     inv.File,
		Language: inv.Language,
		Root:     b.build(&root),
	}, nil
}

// Close implements ast.Session.
func (s *session) Close() {}

func summarize(stderr []byte) string {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return "no diagnostics"
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

func runClang(ctx context.Context, dir, binary string, args []string, stdout io.Writer) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}

// Package sysinclude discovers a compiler's implicit include search paths.
//
// The compiler is run in verbose preprocess-only mode against empty input and
// the search list it prints on stderr is turned into explicit -isystem and -F
// arguments. Results are cached per (resolved compiler, language) for the
// lifetime of the Prober.
package sysinclude

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

const (
	searchStartMarker = "#include <...> search starts here:"
	searchEndMarker   = "End of search list."
	frameworkSuffix   = "(framework directory)"
)

// ProbeError reports a compiler that could not be probed.
type ProbeError struct {
	Compiler string
	Language string
	Err      error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s (%s): %v", e.Compiler, e.Language, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Runner executes the compiler probe and returns its diagnostic output.
type Runner func(ctx context.Context, compiler, language string) ([]byte, error)

// LookPathFunc resolves a compiler name to an executable path.
type LookPathFunc func(name string) (string, error)

type cacheKey struct {
	compiler string
	language string
}

type resolution struct {
	path string
	err  error
}

type cacheValue struct {
	args []string
	err  error
}

// Prober probes compilers and caches the outcome.
// It is safe for concurrent use; concurrent requests for the same key share
// a single probe.
type Prober struct {
	run      Runner
	lookPath LookPathFunc

	mu    sync.RWMutex
	paths map[string]resolution
	cache map[cacheKey]cacheValue
	group singleflight.Group
	runs  int
}

// Option configures a Prober.
type Option func(*Prober)

// WithRunner replaces the process runner (used by tests).
func WithRunner(run Runner) Option {
	return func(p *Prober) {
		p.run = run
	}
}

// WithLookPath replaces executable resolution (used by tests).
func WithLookPath(fn LookPathFunc) Option {
	return func(p *Prober) {
		p.lookPath = fn
	}
}

// New creates a Prober that runs real compiler processes.
func New(opts ...Option) *Prober {
	p := &Prober{
		run:      runCompiler,
		lookPath: exec.LookPath,
		paths:    make(map[string]resolution),
		cache:    make(map[cacheKey]cacheValue),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe returns the extra front-end arguments replicating the implicit search
// paths of compiler for language. On failure the returned slice is empty and
// the error is a *ProbeError; failures are cached like successes.
func (p *Prober) Probe(ctx context.Context, compiler, language string) ([]string, error) {
	if compiler == "" {
		return nil, &ProbeError{Compiler: compiler, Language: language, Err: fmt.Errorf("no compiler")}
	}

	resolved, err := p.resolve(compiler)
	if err != nil {
		return nil, &ProbeError{Compiler: compiler, Language: language, Err: err}
	}

	key := cacheKey{compiler: resolved, language: language}
	if v, ok := p.lookup(key); ok {
		return v.args, v.err
	}

	res, _, _ := p.group.Do(resolved+"\x00"+language, func() (any, error) {
		if v, ok := p.lookup(key); ok {
			return v, nil
		}
		v := p.probe(ctx, resolved, language)
		p.mu.Lock()
		p.cache[key] = v
		p.runs++
		p.mu.Unlock()
		return v, nil
	})
	v := res.(cacheValue)
	return v.args, v.err
}

// Runs reports how many compiler processes the Prober has started.
func (p *Prober) Runs() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.runs
}

// resolve maps a compiler name to its executable, remembering failures so an
// unresolvable compiler is searched for only once.
func (p *Prober) resolve(compiler string) (string, error) {
	p.mu.RLock()
	r, ok := p.paths[compiler]
	p.mu.RUnlock()
	if ok {
		return r.path, r.err
	}

	path, err := p.lookPath(compiler)
	p.mu.Lock()
	p.paths[compiler] = resolution{path: path, err: err}
	p.mu.Unlock()
	return path, err
}

func (p *Prober) lookup(key cacheKey) (cacheValue, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.cache[key]
	return v, ok
}

func (p *Prober) probe(ctx context.Context, compiler, language string) cacheValue {
	out, err := p.run(ctx, compiler, language)
	if err != nil && len(out) == 0 {
		return cacheValue{err: &ProbeError{Compiler: compiler, Language: language, Err: err}}
	}
	return cacheValue{args: ParseSearchList(out)}
}

// ParseSearchList extracts include arguments from the compiler's verbose
// output. Only the angle-bracket search list is considered.
func ParseSearchList(output []byte) []string {
	var args []string
	capture := false

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == searchStartMarker {
			capture = true
			continue
		}
		if !capture {
			continue
		}
		if line == searchEndMarker {
			break
		}
		if line == "" {
			continue
		}
		if strings.Contains(line, frameworkSuffix) {
			dir := strings.TrimSpace(strings.Replace(line, frameworkSuffix, "", 1))
			if dir != "" {
				args = append(args, "-F", dir)
			}
			continue
		}
		args = append(args, "-isystem", line)
	}
	return args
}

// runCompiler invokes `compiler -x language -E - -v` with empty stdin and
// returns stderr, where the search list is printed.
func runCompiler(ctx context.Context, compiler, language string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, compiler, "-x", language, "-E", "-", "-v")
	cmd.Stdin = strings.NewReader("")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

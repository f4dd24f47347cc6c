// Package unused finds functions that are never referenced outside the file
// that defines them, across every translation unit of a project.
package unused

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/panbanda/orphan/internal/fileproc"
	"github.com/panbanda/orphan/pkg/analyzer"
	"github.com/panbanda/orphan/pkg/ast"
	"github.com/panbanda/orphan/pkg/invocation"
	"github.com/panbanda/orphan/pkg/symbols"
)

// ErrorFunc receives translation units that failed to parse or whose worker
// panicked. The unit is skipped.
type ErrorFunc func(file string, err error)

// Analyzer parses translation units and accumulates a symbol table.
type Analyzer struct {
	frontend ast.Frontend
	root     string
	jobs     int
	onError  ErrorFunc
}

var _ analyzer.InvocationAnalyzer[*Result] = (*Analyzer)(nil)

// Option is a functional option for configuring Analyzer.
type Option func(*Analyzer)

// WithJobs sets the worker count. 1 analyzes sequentially, 0 or less uses
// every CPU.
func WithJobs(n int) Option {
	return func(a *Analyzer) {
		a.jobs = n
	}
}

// WithErrorHandler sets the callback for skipped translation units.
func WithErrorHandler(fn ErrorFunc) Option {
	return func(a *Analyzer) {
		a.onError = fn
	}
}

// New creates an analyzer that parses with frontend and counts only files
// under root.
func New(frontend ast.Frontend, root string, opts ...Option) *Analyzer {
	a := &Analyzer{
		frontend: frontend,
		root:     root,
		jobs:     1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is the outcome of an analysis run. Units that failed are reported
// through the error handler and counted by the context's Tracker.
type Result struct {
	Table *symbols.Table
	// Units is the number of unique translation units dispatched.
	Units int
}

// Analyze parses every unique invocation and merges the observations into
// one table. A unit that fails to parse, or whose front end panics, is
// skipped in both sequential and parallel mode.
func (a *Analyzer) Analyze(ctx context.Context, invocations []invocation.Prepared) (*Result, error) {
	units := Dedupe(invocations)
	tracker := analyzer.TrackerFromContext(ctx)
	if tracker != nil {
		tracker.Add(len(units))
	}

	var table *symbols.Table
	if fileproc.Workers(a.jobs) == 1 || len(units) <= 1 {
		table = a.sequential(ctx, units, tracker)
	} else {
		table = a.parallel(ctx, units, tracker)
	}
	return &Result{Table: table, Units: len(units)}, nil
}

// sequential analyzes units one after another, reusing a single session.
// The session is replaced after a panic.
func (a *Analyzer) sequential(ctx context.Context, units []invocation.Prepared, tracker *analyzer.Tracker) *symbols.Table {
	table := symbols.NewTable()

	var session ast.Session
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	for _, inv := range units {
		if ctx.Err() != nil {
			break
		}
		part, err := fileproc.Run(ctx, fileproc.Task[*symbols.Table]{
			Name: inv.File,
			Run: func(ctx context.Context) (*symbols.Table, error) {
				if session == nil {
					s, err := a.open()
					if err != nil {
						return nil, err
					}
					session = s
				}
				return a.visit(ctx, session, inv)
			},
		})
		if err != nil {
			var workerErr *fileproc.WorkerError
			if errors.As(err, &workerErr) && session != nil {
				session.Close()
				session = nil
			}
			a.fail(tracker, inv.File, err)
			continue
		}
		table.Merge(part)
		if tracker != nil {
			tracker.Tick(inv.File)
		}
	}
	return table
}

func (a *Analyzer) parallel(ctx context.Context, units []invocation.Prepared, tracker *analyzer.Tracker) *symbols.Table {
	tasks := make([]fileproc.Task[*symbols.Table], len(units))
	for i, inv := range units {
		tasks[i] = fileproc.Task[*symbols.Table]{
			Name: inv.File,
			Run: func(ctx context.Context) (*symbols.Table, error) {
				return a.partial(ctx, inv, tracker)
			},
		}
	}

	onError := func(file string, err error) {
		a.fail(tracker, file, err)
	}

	merged := symbols.NewTable()
	for part := range fileproc.Stream(ctx, tasks, a.jobs, onError) {
		merged.Merge(part)
	}
	return merged
}

// partial analyzes one unit with its own session and returns a table owned
// by the caller.
func (a *Analyzer) partial(ctx context.Context, inv invocation.Prepared, tracker *analyzer.Tracker) (*symbols.Table, error) {
	session, err := a.open()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	table, err := a.visit(ctx, session, inv)
	if err != nil {
		return nil, err
	}
	if tracker != nil {
		tracker.Tick(inv.File)
	}
	return table, nil
}

func (a *Analyzer) open() (ast.Session, error) {
	session, err := a.frontend.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open %s session: %w", a.frontend.Name(), err)
	}
	return session, nil
}

// visit parses inv and records it into a fresh table, so a unit that fails
// halfway contributes nothing.
func (a *Analyzer) visit(ctx context.Context, session ast.Session, inv invocation.Prepared) (*symbols.Table, error) {
	tu, err := session.Parse(ctx, inv)
	if err != nil {
		return nil, err
	}
	table := symbols.NewTable()
	symbols.NewVisitor(a.root, table).Visit(tu)
	return table, nil
}

func (a *Analyzer) fail(tracker *analyzer.Tracker, file string, err error) {
	a.report(file, err)
	if tracker != nil {
		tracker.Fail(file)
	}
}

func (a *Analyzer) report(file string, err error) {
	if a.onError != nil {
		a.onError(file, err)
	}
}

// Dedupe drops invocations whose (resolved file, language) pair was already
// seen, keeping the first occurrence. Files reached through symlinks resolve
// to their target.
func Dedupe(invocations []invocation.Prepared) []invocation.Prepared {
	seen := make(map[string]bool, len(invocations))
	out := make([]invocation.Prepared, 0, len(invocations))
	for _, inv := range invocations {
		inv.File = filepath.Clean(inv.File)
		if resolved, err := filepath.EvalSymlinks(inv.File); err == nil {
			inv.File = resolved
		}
		key := inv.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, inv)
	}
	return out
}

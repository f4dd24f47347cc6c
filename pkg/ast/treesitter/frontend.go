// Package treesitter implements a syntactic ast front end for C and C++ on
// top of tree-sitter. It needs no compiler toolchain: quoted and -I includes
// are followed on disk, declarations are collected with their namespace and
// class scopes, and call sites are resolved by name, qualification and
// argument count. Resolution is approximate; a reference that matches more
// than one overload counts for every candidate.
package treesitter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/panbanda/orphan/pkg/ast"
	"github.com/panbanda/orphan/pkg/invocation"
	"github.com/panbanda/orphan/pkg/parser"
)

// Frontend creates tree-sitter parse sessions.
type Frontend struct{}

// Compile-time check that Frontend implements ast.Frontend.
var _ ast.Frontend = (*Frontend)(nil)

// New creates a tree-sitter front end.
func New() *Frontend {
	return &Frontend{}
}

// Name implements ast.Frontend.
func (f *Frontend) Name() string {
	return "treesitter"
}

// NewSession implements ast.Frontend. Each session owns one tree-sitter
// parser.
func (f *Frontend) NewSession() (ast.Session, error) {
	return &session{parser: parser.New()}, nil
}

type session struct {
	parser *parser.Parser
}

// Close implements ast.Session.
func (s *session) Close() {
	s.parser.Close()
}

// Parse implements ast.Session.
func (s *session) Parse(ctx context.Context, inv invocation.Prepared) (*ast.TranslationUnit, error) {
	grammar, err := grammarFor(inv.Language)
	if err != nil {
		return nil, &ast.ParseError{File: inv.File, Err: err}
	}
	u := newUnit(inv, grammar)

	main := filepath.Clean(inv.File)
	queue := []string{main}
	seen := map[string]bool{main: true}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := queue[0]
		queue = queue[1:]

		result, err := s.parser.ParseFile(ctx, path, u.grammar)
		if err != nil {
			if path == main {
				return nil, &ast.ParseError{File: inv.File, Err: err}
			}
			continue
		}
		includes := u.collect(result)
		result.Tree.Close()

		for _, inc := range includes {
			resolved := u.search.resolve(path, inc)
			if resolved == "" || seen[resolved] {
				continue
			}
			seen[resolved] = true
			queue = append(queue, resolved)
		}
	}

	return &ast.TranslationUnit{
		File:     inv.File,
		Language: inv.Language,
		Root:     u.link(),
	}, nil
}

// grammarFor picks the tree-sitter grammar for an invocation language.
// There is no Objective-C grammar; those units need the clang front end.
func grammarFor(language string) (parser.Language, error) {
	switch language {
	case invocation.LangC:
		return parser.LangC, nil
	case invocation.LangObjC, invocation.LangObjCPP:
		return "", fmt.Errorf("%w: %s", ast.ErrUnsupportedLanguage, language)
	default:
		return parser.LangCPP, nil
	}
}

type include struct {
	name   string
	quoted bool
}

// searchPath holds the include directories of an invocation. Quoted includes
// look next to the including file, then in -iquote and -I directories. Angle
// includes only use -I directories; system directories are never followed.
type searchPath struct {
	quote []string
	angle []string
}

func newSearchPath(inv invocation.Prepared) searchPath {
	var sp searchPath
	abs := func(dir string) string {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(inv.Directory, dir)
		}
		return filepath.Clean(dir)
	}

	args := inv.Args
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-I" || arg == "-iquote":
			if i+1 < len(args) {
				i++
				if arg == "-I" {
					sp.angle = append(sp.angle, abs(args[i]))
				} else {
					sp.quote = append(sp.quote, abs(args[i]))
				}
			}
		case strings.HasPrefix(arg, "-iquote"):
			sp.quote = append(sp.quote, abs(strings.TrimPrefix(arg, "-iquote")))
		case strings.HasPrefix(arg, "-I"):
			sp.angle = append(sp.angle, abs(strings.TrimPrefix(arg, "-I")))
		}
	}
	return sp
}

func (sp searchPath) resolve(from string, inc include) string {
	if filepath.IsAbs(inc.name) {
		if isFile(inc.name) {
			return filepath.Clean(inc.name)
		}
		return ""
	}

	var dirs []string
	if inc.quoted {
		dirs = append(dirs, filepath.Dir(from))
		dirs = append(dirs, sp.quote...)
	}
	dirs = append(dirs, sp.angle...)

	for _, dir := range dirs {
		candidate := filepath.Join(dir, inc.name)
		if isFile(candidate) {
			return candidate
		}
	}
	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

package symbols

import (
	"path/filepath"
	"strings"

	"github.com/panbanda/orphan/pkg/ast"
)

type owned struct {
	rel string
	ok  bool
}

// Visitor records definitions and references from translation units into a
// Table. Only files under the project root count.
type Visitor struct {
	root  string
	table *Table
	cache map[string]owned
}

// NewVisitor creates a visitor for the project rooted at root. Symlinks in
// root are resolved so that paths reported by front ends compare equal.
func NewVisitor(root string, table *Table) *Visitor {
	return &Visitor{
		root:  resolve(root),
		table: table,
		cache: make(map[string]owned),
	}
}

// Table returns the table the visitor writes to.
func (v *Visitor) Table() *Table {
	return v.table
}

// Visit walks tu and records every project-owned definition and reference.
func (v *Visitor) Visit(tu *ast.TranslationUnit) {
	if tu == nil || tu.Root == nil {
		return
	}

	stack := []*ast.Cursor{tu.Root}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch {
		case tracked(c) && c.IsDefinition:
			if rel, ok := v.project(c.Location.File); ok {
				v.table.Define(symbolOf(c, rel))
			}
		case c.Kind.IsReference():
			v.reference(c)
		}

		for i := len(c.Children) - 1; i >= 0; i-- {
			stack = append(stack, c.Children[i])
		}
	}
}

func (v *Visitor) reference(c *ast.Cursor) {
	target := c.Referenced
	if target == nil || !tracked(target) {
		return
	}
	use, ok := v.project(c.Location.File)
	if !ok {
		return
	}
	decl, ok := v.project(target.Location.File)
	if !ok {
		return
	}
	v.table.AddReference(symbolOf(target, decl), use)
}

// project returns the root-relative path of file if it lies under the root.
func (v *Visitor) project(file string) (string, bool) {
	if file == "" {
		return "", false
	}
	if o, ok := v.cache[file]; ok {
		return o.rel, o.ok
	}

	var o owned
	if rel, err := filepath.Rel(v.root, resolve(file)); err == nil &&
		rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		o = owned{rel: filepath.ToSlash(rel), ok: true}
	}
	v.cache[file] = o
	return o.rel, o.ok
}

// tracked reports whether c is a callable entity with an identity.
func tracked(c *ast.Cursor) bool {
	return c.Kind.IsFunctionLike() && c.USR != ""
}

func symbolOf(c *ast.Cursor, rel string) Symbol {
	display := c.DisplayName
	if display == "" {
		display = c.Name
	}
	return Symbol{
		USR:         c.USR,
		Name:        c.Name,
		DisplayName: display,
		File:        rel,
		Line:        c.Location.Line,
		IsStatic:    c.IsStatic,
		IsInline:    c.IsInline,
	}
}

// resolve makes path absolute and evaluates symlinks. Paths that do not
// exist are kept as cleaned absolute paths.
func resolve(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}

package treesitter

import (
	"strings"

	"github.com/panbanda/orphan/pkg/ast"
)

// link classifies out-of-line members now that every class of the unit is
// known, resolves the collected references and returns the finished tree.
func (u *unit) link() *ast.Cursor {
	for _, d := range u.decls {
		if d.record != "" || d.qualifier == "" {
			continue
		}
		if last := lastSegment(d.qualifier); u.records[last] {
			d.record = last
			if d.cursor.Kind == ast.KindFunction || d.cursor.Kind == ast.KindFunctionTemplate {
				d.cursor.Kind = ast.KindMethod
			}
		}
	}

	for _, r := range u.refs {
		targets := u.resolve(r)
		if len(targets) == 0 {
			continue
		}
		parent := r.owner
		if parent == nil {
			parent = u.root
		}
		if len(targets) == 1 {
			parent.Add(&ast.Cursor{Kind: r.kind, Name: r.name, Location: r.loc, Referenced: targets[0].cursor})
			continue
		}
		group := &ast.Cursor{Kind: ast.KindUnexposed, Name: r.name, Location: r.loc}
		for _, t := range targets {
			group.Add(&ast.Cursor{Kind: ast.KindOverloadedDeclRef, Name: r.name, Location: r.loc, Referenced: t.cursor})
		}
		parent.Add(group)
	}
	u.refs = nil
	return u.root
}

// resolve narrows the declarations named like r down to the ones it can
// refer to. Each filter falls back to its input when nothing survives, so
// ambiguity errs towards counting a reference.
func (u *unit) resolve(r refInfo) []*declInfo {
	candidates := u.byName[r.name]
	if len(candidates) == 0 {
		return nil
	}

	ctors := filter(candidates, func(d *declInfo) bool { return d.cursor.Kind == ast.KindConstructor })
	if r.ctor {
		candidates = ctors
	} else if others := filter(candidates, func(d *declInfo) bool {
		return d.cursor.Kind != ast.KindConstructor
	}); len(others) > 0 {
		candidates = others
	} else {
		candidates = ctors
	}

	if r.qualifier != "" {
		suffix := "::" + r.qualifier + "::" + r.name
		candidates = prefer(candidates, func(d *declInfo) bool {
			return strings.HasSuffix("::"+d.qualified, suffix)
		})
	}
	if r.member {
		candidates = prefer(candidates, func(d *declInfo) bool { return d.record != "" })
	}
	if u.cxx && r.arity >= 0 {
		candidates = prefer(candidates, func(d *declInfo) bool {
			return r.arity >= d.minArgs && (d.maxArgs < 0 || r.arity <= d.maxArgs)
		})
	}

	seen := make(map[string]bool, len(candidates))
	out := candidates[:0:0]
	for _, d := range candidates {
		if d.cursor.Kind == ast.KindDestructor || seen[d.cursor.USR] {
			continue
		}
		seen[d.cursor.USR] = true
		out = append(out, d)
	}
	return out
}

func filter(decls []*declInfo, keep func(*declInfo) bool) []*declInfo {
	var out []*declInfo
	for _, d := range decls {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func prefer(decls []*declInfo, keep func(*declInfo) bool) []*declInfo {
	if kept := filter(decls, keep); len(kept) > 0 {
		return kept
	}
	return decls
}

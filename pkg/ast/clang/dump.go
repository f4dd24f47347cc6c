package clang

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/panbanda/orphan/pkg/ast"
)

// node mirrors the subset of clang's JSON AST dump the builder reads.
type node struct {
	ID                   string     `json:"id"`
	Kind                 string     `json:"kind"`
	Loc                  *jsonLoc   `json:"loc"`
	Range                *jsonRange `json:"range"`
	Name                 string     `json:"name"`
	MangledName          string     `json:"mangledName"`
	Type                 *qualType  `json:"type"`
	CtorType             *qualType  `json:"ctorType"`
	StorageClass         string     `json:"storageClass"`
	Inline               bool       `json:"inline"`
	Constexpr            bool       `json:"constexpr"`
	Variadic             bool       `json:"variadic"`
	IsImplicit           bool       `json:"isImplicit"`
	ExplicitlyDefaulted  string     `json:"explicitlyDefaulted"`
	ExplicitlyDeleted    bool       `json:"explicitlyDeleted"`
	ParentDeclContextID  string     `json:"parentDeclContextId"`
	ReferencedDecl       *declRef   `json:"referencedDecl"`
	ReferencedMemberDecl string     `json:"referencedMemberDecl"`
	Lookups              []declRef  `json:"lookups"`
	Inner                []*node    `json:"inner"`
}

type qualType struct {
	QualType string `json:"qualType"`
}

type declRef struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// jsonLoc is a source location. Clang only emits file and line when they
// differ from the previously printed location, so they are resolved against
// the running state kept by locTracker. Macro locations carry both a
// spelling and an expansion part.
type jsonLoc struct {
	Offset       *int     `json:"offset"`
	Col          int      `json:"col"`
	File         string   `json:"file"`
	Line         int      `json:"line"`
	SpellingLoc  *jsonLoc `json:"spellingLoc"`
	ExpansionLoc *jsonLoc `json:"expansionLoc"`
}

type jsonRange struct {
	Begin *jsonLoc `json:"begin"`
	End   *jsonLoc `json:"end"`
}

type locTracker struct {
	file string
	line int
}

// resolve consumes l in dump order and returns its effective position. For
// macro locations the expansion is the effective one.
func (t *locTracker) resolve(l *jsonLoc) (string, int) {
	if l == nil {
		return "", 0
	}
	if l.SpellingLoc != nil || l.ExpansionLoc != nil {
		t.bare(l.SpellingLoc)
		return t.bare(l.ExpansionLoc)
	}
	return t.bare(l)
}

func (t *locTracker) bare(l *jsonLoc) (string, int) {
	if l == nil || (l.Offset == nil && l.Col == 0 && l.Line == 0) {
		return "", 0
	}
	if l.File != "" {
		t.file = l.File
	}
	if l.Line != 0 {
		t.line = l.Line
	}
	return t.file, t.line
}

// scope is the lexical context of a node: namespaces and records contribute
// to qualified names, templates and anonymous namespaces change identity.
type scope struct {
	parent    *scope
	name      string
	record    bool
	templated bool
	internal  bool
}

func (s *scope) qualify(name string) string {
	parts := []string{name}
	for cur := s; cur != nil; cur = cur.parent {
		if cur.name != "" {
			parts = append(parts, cur.name)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "::")
}

type recordInfo struct {
	qualified string
	templated bool
}

type pendingRef struct {
	cursor *ast.Cursor
	id     string
}

type pendingCtor struct {
	cursor *ast.Cursor
	key    string
}

// builder converts a decoded dump into an ast.Cursor tree. Declarations are
// collected by id during the walk and references are linked afterwards, so
// uses that precede a declaration in dump order still resolve.
type builder struct {
	dir     string
	locs    locTracker
	abs     map[string]string
	decls   map[string]*ast.Cursor
	records map[string]recordInfo
	ctors   map[string]*ast.Cursor
	refs    []pendingRef
	ctorRef []pendingCtor
}

func newBuilder(dir string) *builder {
	return &builder{
		dir:     dir,
		abs:     make(map[string]string),
		decls:   make(map[string]*ast.Cursor),
		records: make(map[string]recordInfo),
		ctors:   make(map[string]*ast.Cursor),
	}
}

type frame struct {
	n      *node
	parent *ast.Cursor
	sc     *scope
}

func (b *builder) build(root *node) *ast.Cursor {
	tu := &ast.Cursor{Kind: ast.KindTranslationUnit}

	stack := []frame{}
	for i := len(root.Inner) - 1; i >= 0; i-- {
		stack = append(stack, frame{n: root.Inner[i], parent: tu})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.n == nil {
			continue
		}

		cur, childParent, childScope := b.visit(f)
		if cur != nil {
			f.parent.Add(cur)
		}
		for i := len(f.n.Inner) - 1; i >= 0; i-- {
			stack = append(stack, frame{n: f.n.Inner[i], parent: childParent, sc: childScope})
		}
	}

	b.link()
	return tu
}

// visit converts one node. It returns the cursor to attach (or nil), the
// cursor children attach to, and the scope children see.
func (b *builder) visit(f frame) (*ast.Cursor, *ast.Cursor, *scope) {
	n := f.n
	file, line := b.locs.resolve(n.Loc)
	if n.Range != nil {
		beginFile, beginLine := b.locs.resolve(n.Range.Begin)
		b.locs.resolve(n.Range.End)
		// Statements and expressions only carry a range.
		if n.Loc == nil {
			file, line = beginFile, beginLine
		}
	}
	loc := ast.Location{File: b.absolute(file), Line: line}

	switch n.Kind {
	case "NamespaceDecl":
		sc := &scope{parent: f.sc, name: n.Name}
		if n.Name == "" {
			sc.name = "(anonymous namespace)"
			sc.internal = true
		}
		return nil, f.parent, sc

	case "CXXRecordDecl", "RecordDecl", "ClassTemplateSpecializationDecl", "ClassTemplatePartialSpecializationDecl":
		if n.IsImplicit {
			return nil, f.parent, f.sc
		}
		sc := &scope{parent: f.sc, name: n.Name, record: true, templated: inTemplate(f.sc)}
		if n.Kind != "CXXRecordDecl" && n.Kind != "RecordDecl" {
			sc.templated = true
		}
		if sc.name == "" {
			sc.name = "(anonymous)"
		}
		if n.ID != "" {
			b.records[n.ID] = recordInfo{qualified: f.sc.qualify(sc.name), templated: sc.templated}
		}
		return nil, f.parent, sc

	case "ClassTemplateDecl", "FunctionTemplateDecl":
		return nil, f.parent, &scope{parent: f.sc, templated: true}

	case "LinkageSpecDecl":
		return nil, f.parent, f.sc

	case "FunctionDecl", "CXXMethodDecl", "CXXConstructorDecl", "CXXDestructorDecl":
		c := b.declaration(n, f.sc, loc)
		if c == nil {
			return nil, f.parent, f.sc
		}
		return c, c, f.sc

	case "CXXConversionDecl", "CXXDeductionGuideDecl":
		return nil, f.parent, f.sc

	case "DeclRefExpr":
		c := &ast.Cursor{Kind: ast.KindDeclRef, Name: n.Name, Location: loc}
		if n.ReferencedDecl != nil {
			c.Name = n.ReferencedDecl.Name
			b.refs = append(b.refs, pendingRef{cursor: c, id: n.ReferencedDecl.ID})
		}
		return c, c, f.sc

	case "MemberExpr":
		c := &ast.Cursor{Kind: ast.KindMemberRef, Name: n.Name, Location: loc}
		if n.ReferencedMemberDecl != "" {
			b.refs = append(b.refs, pendingRef{cursor: c, id: n.ReferencedMemberDecl})
		}
		return c, c, f.sc

	case "CallExpr", "CXXMemberCallExpr", "CXXOperatorCallExpr":
		c := &ast.Cursor{Kind: ast.KindCallExpr, Location: loc}
		if id := calleeID(n); id != "" {
			b.refs = append(b.refs, pendingRef{cursor: c, id: id})
		}
		return c, c, f.sc

	case "CXXConstructExpr", "CXXTemporaryObjectExpr":
		c := &ast.Cursor{Kind: ast.KindCallExpr, Location: loc}
		if n.Type != nil && n.CtorType != nil {
			key := recordName(n.Type.QualType) + "\x00" + n.CtorType.QualType
			b.ctorRef = append(b.ctorRef, pendingCtor{cursor: c, key: key})
		}
		return c, c, f.sc

	case "UnresolvedLookupExpr", "UnresolvedMemberExpr":
		c := &ast.Cursor{Kind: ast.KindUnexposed, Name: n.Name, Location: loc}
		for _, lookup := range n.Lookups {
			ref := &ast.Cursor{Kind: ast.KindOverloadedDeclRef, Name: lookup.Name, Location: loc}
			b.refs = append(b.refs, pendingRef{cursor: ref, id: lookup.ID})
			c.Add(ref)
		}
		return c, c, f.sc
	}

	return nil, f.parent, f.sc
}

func inTemplate(sc *scope) bool {
	for cur := sc; cur != nil; cur = cur.parent {
		if cur.templated {
			return true
		}
	}
	return false
}

// enclosingRecord reports whether the nearest named scope, looking through
// template wrappers, is a class.
func enclosingRecord(sc *scope) bool {
	for cur := sc; cur != nil; cur = cur.parent {
		if cur.name == "" && cur.templated {
			continue
		}
		return cur.record
	}
	return false
}

func isInternal(sc *scope) bool {
	for cur := sc; cur != nil; cur = cur.parent {
		if cur.internal {
			return true
		}
	}
	return false
}

// declaration builds the cursor of a function-like declaration and registers
// it for reference linking.
func (b *builder) declaration(n *node, sc *scope, loc ast.Location) *ast.Cursor {
	if n.IsImplicit {
		return nil
	}

	kind := ast.KindFunction
	switch n.Kind {
	case "CXXMethodDecl":
		kind = ast.KindMethod
	case "CXXConstructorDecl":
		kind = ast.KindConstructor
	case "CXXDestructorDecl":
		kind = ast.KindDestructor
	}

	qualified := sc.qualify(n.Name)
	templated := inTemplate(sc)
	if rec, ok := b.records[n.ParentDeclContextID]; ok && n.ParentDeclContextID != "" {
		qualified = rec.qualified + "::" + n.Name
		templated = templated || rec.templated
	}

	params := parameterTypes(n)
	if sc != nil && sc.templated && !sc.record && kind == ast.KindFunction {
		kind = ast.KindFunctionTemplate
	}

	var usr string
	switch {
	case templated:
		usr = "T:" + qualified + "/" + strconv.Itoa(len(params))
	case n.MangledName != "":
		usr = n.MangledName
	default:
		typ := ""
		if n.Type != nil {
			typ = n.Type.QualType
		}
		usr = "Q:" + qualified + "#" + typ
	}

	isStatic := n.StorageClass == "static"
	if (isStatic && kind != ast.KindMethod) || isInternal(sc) {
		usr = "S:" + loc.File + ":" + usr
	}

	isDefinition := !n.ExplicitlyDeleted && (n.ExplicitlyDefaulted == "default" || hasBody(n))
	inClass := enclosingRecord(sc)

	c := &ast.Cursor{
		Kind:         kind,
		USR:          usr,
		Name:         n.Name,
		DisplayName:  displayName(n.Name, params, n.Variadic),
		Location:     loc,
		IsDefinition: isDefinition,
		IsStatic:     isStatic,
		IsInline:     n.Inline || n.Constexpr || (inClass && isDefinition && kind != ast.KindFunction),
	}

	if n.ID != "" {
		b.decls[n.ID] = c
	}
	if kind == ast.KindConstructor && n.Type != nil {
		record := n.Name
		if i := strings.LastIndex(qualified, "::"); i >= 0 {
			record = recordName(qualified[:i])
		}
		key := record + "\x00" + n.Type.QualType
		if _, seen := b.ctors[key]; !seen || isDefinition {
			b.ctors[key] = c
		}
	}
	return c
}

func hasBody(n *node) bool {
	for _, child := range n.Inner {
		if child == nil {
			continue
		}
		if child.Kind == "CompoundStmt" || child.Kind == "CXXTryStmt" {
			return true
		}
	}
	return false
}

func parameterTypes(n *node) []string {
	var params []string
	for _, child := range n.Inner {
		if child == nil || child.Kind != "ParmVarDecl" {
			continue
		}
		typ := ""
		if child.Type != nil {
			typ = child.Type.QualType
		}
		params = append(params, typ)
	}
	return params
}

func displayName(name string, params []string, variadic bool) string {
	list := strings.Join(params, ", ")
	if variadic {
		if list == "" {
			list = "..."
		} else {
			list += ", ..."
		}
	}
	return name + "(" + list + ")"
}

// calleeID finds the declaration a call expression invokes by looking through
// implicit casts and parentheses at its first child.
func calleeID(n *node) string {
	cur := n
	for len(cur.Inner) > 0 && cur.Inner[0] != nil {
		cur = cur.Inner[0]
		switch cur.Kind {
		case "ImplicitCastExpr", "ParenExpr":
			continue
		case "DeclRefExpr":
			if cur.ReferencedDecl != nil {
				return cur.ReferencedDecl.ID
			}
			return ""
		case "MemberExpr":
			return cur.ReferencedMemberDecl
		default:
			return ""
		}
	}
	return ""
}

// recordName reduces a type spelling such as "const ns::Vec<int>" to the
// unqualified record name "Vec".
func recordName(typ string) string {
	typ = strings.TrimSpace(typ)
	for {
		trimmed := typ
		for _, prefix := range []string{"const ", "volatile ", "struct ", "class ", "union "} {
			trimmed = strings.TrimPrefix(trimmed, prefix)
		}
		if trimmed == typ {
			break
		}
		typ = trimmed
	}
	if i := strings.IndexByte(typ, '<'); i >= 0 {
		typ = typ[:i]
	}
	if i := strings.LastIndex(typ, "::"); i >= 0 {
		typ = typ[i+2:]
	}
	return strings.TrimSpace(typ)
}

func (b *builder) absolute(file string) string {
	if file == "" {
		return ""
	}
	if abs, ok := b.abs[file]; ok {
		return abs
	}
	abs := file
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(b.dir, abs)
	}
	abs = filepath.Clean(abs)
	b.abs[file] = abs
	return abs
}

func (b *builder) link() {
	for _, ref := range b.refs {
		if decl, ok := b.decls[ref.id]; ok {
			ref.cursor.Referenced = decl
			if ref.cursor.Name == "" {
				ref.cursor.Name = decl.Name
			}
		}
	}
	for _, ref := range b.ctorRef {
		if decl, ok := b.ctors[ref.key]; ok {
			ref.cursor.Referenced = decl
			ref.cursor.Name = decl.Name
		}
	}
}

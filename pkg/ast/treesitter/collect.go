package treesitter

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/orphan/pkg/ast"
	"github.com/panbanda/orphan/pkg/invocation"
	"github.com/panbanda/orphan/pkg/parser"
)

// declInfo is a collected function-like declaration.
type declInfo struct {
	cursor    *ast.Cursor
	qualified string
	// qualifier is the explicit scope of an out-of-line definition.
	qualifier string
	// record is the enclosing class name for members, "" otherwise.
	record  string
	minArgs int
	// maxArgs is -1 for variadic functions.
	maxArgs int
}

// refInfo is a reference site waiting for resolution.
type refInfo struct {
	owner     *ast.Cursor
	kind      ast.CursorKind
	name      string
	qualifier string
	member    bool
	ctor      bool
	// arity is the argument count of a call, -1 when unknown.
	arity int
	loc   ast.Location
}

// unit accumulates everything seen while parsing one translation unit and
// the headers it pulls in.
type unit struct {
	grammar parser.Language
	cxx     bool
	search  searchPath
	root    *ast.Cursor
	decls   []*declInfo
	byName  map[string][]*declInfo
	records map[string]bool
	refs    []refInfo
}

func newUnit(inv invocation.Prepared, grammar parser.Language) *unit {
	return &unit{
		grammar: grammar,
		cxx:     grammar == parser.LangCPP,
		search:  newSearchPath(inv),
		root:    &ast.Cursor{Kind: ast.KindTranslationUnit},
		byName:  make(map[string][]*declInfo),
		records: make(map[string]bool),
	}
}

// declScope is the lexical context of a declaration.
type declScope struct {
	parent    *declScope
	name      string
	record    bool
	templated bool
	internal  bool
	externC   bool
}

func (s *declScope) qualify(name string) string {
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

// recordName returns the class directly enclosing the scope, looking
// through template wrappers.
func (s *declScope) recordName() string {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.name == "" && (cur.templated || cur.externC) {
			continue
		}
		if cur.record {
			return cur.name
		}
		return ""
	}
	return ""
}

func (s *declScope) any(pred func(*declScope) bool) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if pred(cur) {
			return true
		}
	}
	return false
}

type item struct {
	n  *sitter.Node
	sc *declScope
}

// collect walks the declaration level of a parsed file and returns the
// includes it names.
func (u *unit) collect(res *parser.ParseResult) []include {
	src := res.Source
	path := res.Path
	var includes []include

	var stack []item
	pushChildren := func(n *sitter.Node, sc *declScope) {
		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			if child := n.NamedChild(i); child != nil {
				stack = append(stack, item{n: child, sc: sc})
			}
		}
	}
	pushChildren(res.Tree.RootNode(), nil)

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, sc := it.n, it.sc

		switch n.Type() {
		case "preproc_include":
			if inc, ok := includeOf(n, src); ok {
				includes = append(includes, inc)
			}

		case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef",
			"declaration_list", "field_declaration_list", "ERROR":
			pushChildren(n, sc)

		case "namespace_definition":
			inner := &declScope{parent: sc, name: parser.GetNodeText(n.ChildByFieldName("name"), src)}
			if inner.name == "" {
				inner.name = "(anonymous namespace)"
				inner.internal = true
			}
			if body := n.ChildByFieldName("body"); body != nil {
				pushChildren(body, inner)
			}

		case "linkage_specification":
			inner := &declScope{
				parent:  sc,
				externC: strings.Contains(parser.GetNodeText(n.ChildByFieldName("value"), src), `"C"`),
			}
			if body := n.ChildByFieldName("body"); body != nil {
				if body.Type() == "declaration_list" {
					pushChildren(body, inner)
				} else {
					stack = append(stack, item{n: body, sc: inner})
				}
			}

		case "template_declaration":
			inner := &declScope{parent: sc, templated: true}
			for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
				child := n.NamedChild(i)
				if child == nil || child.Type() == "template_parameter_list" {
					continue
				}
				stack = append(stack, item{n: child, sc: inner})
			}

		case "class_specifier", "struct_specifier", "union_specifier":
			body := n.ChildByFieldName("body")
			if body == nil {
				continue
			}
			name := typeName(n.ChildByFieldName("name"), src)
			if name == "" {
				name = "(anonymous)"
			} else {
				u.records[name] = true
			}
			pushChildren(body, &declScope{parent: sc, name: name, record: true})

		case "function_definition":
			u.addFunction(n, src, path, sc, true)

		case "declaration", "field_declaration":
			if declaratorFunction(n) != nil {
				u.addFunction(n, src, path, sc, false)
				continue
			}
			if t := n.ChildByFieldName("type"); t != nil && t.ChildByFieldName("body") != nil {
				stack = append(stack, item{n: t, sc: sc})
			}
			u.collectInitializers(n, src, path)

		case "type_definition":
			if t := n.ChildByFieldName("type"); t != nil && t.ChildByFieldName("body") != nil {
				stack = append(stack, item{n: t, sc: sc})
			}
		}
	}
	return includes
}

func includeOf(n *sitter.Node, src []byte) (include, bool) {
	p := n.ChildByFieldName("path")
	if p == nil {
		return include{}, false
	}
	text := strings.TrimSpace(parser.GetNodeText(p, src))
	if len(text) < 2 {
		return include{}, false
	}
	switch {
	case text[0] == '"' && text[len(text)-1] == '"':
		return include{name: text[1 : len(text)-1], quoted: true}, true
	case text[0] == '<' && text[len(text)-1] == '>':
		return include{name: text[1 : len(text)-1]}, true
	}
	return include{}, false
}

// declaratorFunction returns the function_declarator of a declaration that
// declares a function, or nil for variables and function pointers.
func declaratorFunction(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if fd := unwrapDeclarator(n.NamedChild(i)); fd != nil {
			return fd
		}
	}
	return nil
}

func unwrapDeclarator(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "function_declarator":
			if nameKind(n.ChildByFieldName("declarator")) {
				return n
			}
			return nil
		case "pointer_declarator", "reference_declarator", "attributed_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil && n.NamedChildCount() > 0 {
				next = n.NamedChild(int(n.NamedChildCount()) - 1)
			}
			n = next
		default:
			return nil
		}
	}
	return nil
}

func nameKind(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "identifier", "field_identifier", "qualified_identifier", "destructor_name",
		"operator_name", "template_function":
		return true
	}
	return false
}

// splitName returns the explicit qualifier and unqualified name of a
// declarator or expression name node.
func splitName(n *sitter.Node, src []byte) (qualifier, name string) {
	var scopes []string
	cur := n
	for cur != nil && cur.Type() == "qualified_identifier" {
		if scope := cur.ChildByFieldName("scope"); scope != nil {
			scopes = append(scopes, typeName(scope, src))
		}
		cur = cur.ChildByFieldName("name")
	}
	if cur == nil {
		return "", ""
	}
	switch cur.Type() {
	case "template_function", "template_method":
		name = parser.GetNodeText(cur.ChildByFieldName("name"), src)
	case "operator_name":
		name = strings.Join(strings.Fields(parser.GetNodeText(cur, src)), "")
	default:
		name = parser.GetNodeText(cur, src)
	}
	return strings.Join(scopes, "::"), name
}

// typeName reduces a type node to its unqualified record name.
func typeName(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "type_identifier", "namespace_identifier", "identifier":
		return parser.GetNodeText(n, src)
	case "template_type":
		return parser.GetNodeText(n.ChildByFieldName("name"), src)
	case "qualified_identifier":
		_, name := splitName(n, src)
		if i := strings.IndexByte(name, '<'); i >= 0 {
			name = name[:i]
		}
		return name
	}
	return ""
}

func (u *unit) addFunction(n *sitter.Node, src []byte, path string, sc *declScope, hasBody bool) {
	fd := declaratorFunction(n)
	if n.Type() == "function_definition" {
		fd = unwrapDeclarator(n.ChildByFieldName("declarator"))
	}
	if fd == nil {
		return
	}
	nameNode := fd.ChildByFieldName("declarator")
	qualifier, simple := splitName(nameNode, src)
	if simple == "" {
		return
	}

	isDefinition := hasBody
	static, inline := false, false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "storage_class_specifier", "type_qualifier", "inline", "constexpr", "static":
			switch parser.GetNodeText(child, src) {
			case "static":
				static = true
			case "inline", "__inline", "__inline__", "constexpr", "consteval":
				inline = true
			}
		case "delete_method_clause":
			isDefinition = false
		}
	}

	record := sc.recordName()
	kind := ast.KindFunction
	last := lastSegment(qualifier)
	switch {
	case strings.HasPrefix(simple, "~"):
		kind = ast.KindDestructor
	case record != "" && simple == record, last != "" && last == simple:
		kind = ast.KindConstructor
		if record == "" {
			record = last
		}
	case record != "":
		kind = ast.KindMethod
	case sc.any(func(s *declScope) bool { return s.templated }):
		kind = ast.KindFunctionTemplate
	}
	if record != "" && isDefinition {
		inline = true
	}

	params := parameters(fd, src, u.cxx)
	name := simple
	if qualifier != "" {
		name = qualifier + "::" + simple
	}
	qualified := sc.qualify(name)

	var usr string
	if !u.cxx || sc.any(func(s *declScope) bool { return s.externC }) {
		usr = "c:@F@" + simple
		if static {
			usr = "c:" + path + "@F@" + simple
		}
	} else {
		prefix := "c:@"
		if sc.any(func(s *declScope) bool { return s.templated }) {
			prefix = "c:@T@"
		}
		usr = prefix + qualified + "#" + strings.Join(params.ids, ",")
		if params.variadic {
			usr += ",..."
		}
		if isConst(fd, src) {
			usr += "#1"
		}
		if (static && record == "") || sc.any(func(s *declScope) bool { return s.internal }) {
			usr = "c:" + path + "@" + strings.TrimPrefix(usr, "c:@")
		}
	}

	cursor := &ast.Cursor{
		Kind:         kind,
		USR:          usr,
		Name:         simple,
		DisplayName:  params.display(simple),
		Location:     ast.Location{File: path, Line: parser.Line(nameNode)},
		IsDefinition: isDefinition,
		IsStatic:     static,
		IsInline:     inline,
	}
	info := &declInfo{
		cursor:    cursor,
		qualified: qualified,
		qualifier: qualifier,
		record:    record,
		minArgs:   params.required,
		maxArgs:   len(params.types),
	}
	if params.variadic || (!u.cxx && params.unspecified) {
		info.maxArgs = -1
	}

	u.root.Add(cursor)
	u.decls = append(u.decls, info)
	u.byName[simple] = append(u.byName[simple], info)

	if n.Type() != "function_definition" {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "compound_statement", "field_initializer_list", "try_statement":
			u.collectRefs(child, cursor, src, path)
		}
	}
}

func lastSegment(qualifier string) string {
	if i := strings.LastIndex(qualifier, "::"); i >= 0 {
		return qualifier[i+2:]
	}
	return qualifier
}

func isConst(fd *sitter.Node, src []byte) bool {
	for i := 0; i < int(fd.ChildCount()); i++ {
		child := fd.Child(i)
		if child != nil && child.Type() == "type_qualifier" && parser.GetNodeText(child, src) == "const" {
			return true
		}
	}
	return false
}

type paramList struct {
	// types are the spelled parameter types, ids the adjusted types that
	// make up the signature.
	types    []string
	ids      []string
	required int
	variadic bool
	// unspecified marks a C declaration with an empty parameter list.
	unspecified bool
}

func (p paramList) display(name string) string {
	list := strings.Join(p.types, ", ")
	if p.variadic {
		if list == "" {
			list = "..."
		} else {
			list += ", ..."
		}
	}
	return name + "(" + list + ")"
}

func parameters(fd *sitter.Node, src []byte, cxx bool) paramList {
	var out paramList
	list := fd.ChildByFieldName("parameters")
	if list == nil {
		return out
	}

	for i := 0; i < int(list.ChildCount()); i++ {
		p := list.Child(i)
		if p == nil {
			continue
		}
		switch p.Type() {
		case "parameter_declaration":
			typ := paramType(p, src)
			if typ == "void" && p.ChildByFieldName("declarator") == nil {
				continue
			}
			out.add(p, typ)
			out.required++
		case "optional_parameter_declaration":
			out.add(p, paramType(p, src))
		case "variadic_parameter_declaration", "variadic_parameter", "...":
			out.variadic = true
		}
	}
	if !cxx && list.NamedChildCount() == 0 {
		out.unspecified = true
	}
	return out
}

func (p *paramList) add(param *sitter.Node, typ string) {
	p.types = append(p.types, typ)
	p.ids = append(p.ids, signatureType(param.ChildByFieldName("declarator"), typ))
}

// paramType is the parameter's spelling without its name or default value,
// with whitespace normalized.
func paramType(p *sitter.Node, src []byte) string {
	start := p.StartByte()
	end := p.EndByte()
	if dv := p.ChildByFieldName("default_value"); dv != nil {
		end = dv.StartByte()
	}
	text := []byte(string(src[start:end]))

	if id := declaratorIdentifier(p.ChildByFieldName("declarator")); id != nil {
		s, e := id.StartByte()-start, id.EndByte()-start
		if e <= uint32(len(text)) {
			text = append(text[:s:s], text[e:]...)
		}
	}
	typ := strings.TrimSpace(string(text))
	typ = strings.TrimSpace(strings.TrimSuffix(typ, "="))
	return normalizeType(typ)
}

func declaratorIdentifier(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "identifier":
			return n
		case "pointer_declarator", "reference_declarator", "array_declarator", "parenthesized_declarator",
			"function_declarator", "attributed_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil && n.NamedChildCount() > 0 {
				next = n.NamedChild(int(n.NamedChildCount()) - 1)
			}
			n = next
		default:
			return nil
		}
	}
	return nil
}

// signatureType adjusts a spelled parameter type the way C++ does when it
// forms a function type: top-level cv-qualifiers are dropped, arrays decay to
// pointers and functions to function pointers.
func signatureType(declarator *sitter.Node, typ string) string {
	typ = strings.ReplaceAll(typ, " (", "(")
	switch declaratorShape(declarator) {
	case shapeValue:
		return dropQualifiers(typ)
	case shapePointer:
		return dropTrailingQualifiers(typ)
	case shapeArray:
		return decayArray(typ)
	case shapeFunction:
		if i := topLevelIndex(typ, '('); i >= 0 {
			return typ[:i] + "(*)" + typ[i:]
		}
	}
	return typ
}

type shape int

const (
	shapeOther shape = iota
	shapeValue
	shapePointer
	shapeArray
	shapeFunction
)

// declaratorShape classifies the outermost declarator of a parameter.
func declaratorShape(d *sitter.Node) shape {
	if d == nil {
		return shapeValue
	}
	switch strings.TrimPrefix(d.Type(), "abstract_") {
	case "identifier":
		return shapeValue
	case "pointer_declarator":
		return shapePointer
	case "array_declarator":
		if inner := d.ChildByFieldName("declarator"); inner != nil && isParenthesized(inner) {
			return shapeOther
		}
		return shapeArray
	case "function_declarator":
		inner := d.ChildByFieldName("declarator")
		if inner == nil || inner.Type() == "identifier" {
			return shapeFunction
		}
	}
	return shapeOther
}

func isParenthesized(n *sitter.Node) bool {
	return strings.TrimPrefix(n.Type(), "abstract_") == "parenthesized_declarator"
}

func isQualifier(word string) bool {
	return word == "const" || word == "volatile"
}

// dropQualifiers removes cv-qualifiers outside template arguments.
func dropQualifiers(typ string) string {
	words := strings.Split(typ, " ")
	out := words[:0]
	depth := 0
	for _, w := range words {
		if depth == 0 && isQualifier(w) {
			continue
		}
		depth += strings.Count(w, "<") - strings.Count(w, ">")
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

// dropTrailingQualifiers removes the cv-qualifiers applied to the pointer
// itself.
func dropTrailingQualifiers(typ string) string {
	i := strings.LastIndexByte(typ, '*')
	if i < 0 {
		return typ
	}
	for _, w := range strings.Fields(typ[i+1:]) {
		if !isQualifier(w) {
			return typ
		}
	}
	return typ[:i+1]
}

func decayArray(typ string) string {
	i := topLevelIndex(typ, '[')
	if i < 0 {
		return typ
	}
	j := strings.IndexByte(typ[i:], ']')
	if j < 0 {
		return typ
	}
	base := strings.TrimSpace(typ[:i])
	if rest := typ[i+j+1:]; rest != "" {
		return base + "(*)" + rest
	}
	return base + "*"
}

// topLevelIndex returns the first index of c outside template arguments.
func topLevelIndex(s string, c byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
		case c:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var typeSpacing = strings.NewReplacer(
	" *", "*",
	" &", "&",
	" [", "[",
	" ,", ",",
	", ", ",",
	"[ ", "[",
	" ]", "]",
	"< ", "<",
	" >", ">",
	"( ", "(",
	" )", ")",
)

func normalizeType(typ string) string {
	typ = strings.Join(strings.Fields(typ), " ")
	for {
		next := typeSpacing.Replace(typ)
		if next == typ {
			return typ
		}
		typ = next
	}
}

// collectInitializers records references made by variable initializers at
// namespace scope.
func (u *unit) collectInitializers(n *sitter.Node, src []byte, path string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() != "init_declarator" {
			continue
		}
		if value := child.ChildByFieldName("value"); value != nil {
			u.collectRefs(value, nil, src, path)
		}
	}
}

func namedCount(n *sitter.Node) int {
	if n == nil {
		return 0
	}
	count := 0
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child != nil && child.Type() != "comment" {
			count++
		}
	}
	return count
}

// collectRefs records every reference site below node.
func (u *unit) collectRefs(node *sitter.Node, owner *ast.Cursor, src []byte, path string) {
	add := func(n *sitter.Node, r refInfo) {
		if r.name == "" {
			return
		}
		r.owner = owner
		r.loc = ast.Location{File: path, Line: parser.Line(n)}
		u.refs = append(u.refs, r)
	}

	stack := []*sitter.Node{node}
	push := func(nodes ...*sitter.Node) {
		for i := len(nodes) - 1; i >= 0; i-- {
			if nodes[i] != nil {
				stack = append(stack, nodes[i])
			}
		}
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n.Type() {
		case "call_expression":
			fn := n.ChildByFieldName("function")
			args := n.ChildByFieldName("arguments")
			if r, ok := calleeRef(fn, src); ok {
				r.arity = namedCount(args)
				add(n, r)
				if fn.Type() == "field_expression" {
					push(fn.ChildByFieldName("argument"))
				}
			} else {
				push(fn)
			}
			push(args)
			continue

		case "new_expression":
			args := n.ChildByFieldName("arguments")
			add(n, refInfo{
				kind:  ast.KindCallExpr,
				name:  typeName(n.ChildByFieldName("type"), src),
				ctor:  true,
				arity: namedCount(args),
			})
			push(n.ChildByFieldName("placement"), args)
			continue

		case "declaration":
			if u.cxx {
				u.localObjects(n, src, add)
			}
			typ := n.ChildByFieldName("type")
			for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
				child := n.NamedChild(i)
				if child == nil || child.Type() == "function_declarator" || sameNode(child, typ) {
					continue
				}
				if child.Type() == "init_declarator" {
					push(child.ChildByFieldName("value"))
					continue
				}
				if child.Type() != "identifier" {
					push(child)
				}
			}
			continue

		case "identifier":
			add(n, refInfo{kind: ast.KindDeclRef, name: parser.GetNodeText(n, src), arity: -1})
			continue

		case "qualified_identifier":
			qualifier, name := splitName(n, src)
			add(n, refInfo{kind: ast.KindDeclRef, name: name, qualifier: qualifier, arity: -1})
			continue

		case "field_expression":
			add(n, refInfo{
				kind:   ast.KindMemberRef,
				name:   parser.GetNodeText(n.ChildByFieldName("field"), src),
				member: true,
				arity:  -1,
			})
			push(n.ChildByFieldName("argument"))
			continue

		case "template_function":
			add(n, refInfo{kind: ast.KindDeclRef, name: parser.GetNodeText(n.ChildByFieldName("name"), src), arity: -1})
			continue

		case "string_literal", "raw_string_literal", "char_literal", "number_literal", "comment",
			"type_identifier", "primitive_type", "sized_type_specifier", "field_identifier":
			continue
		}

		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			if child := n.NamedChild(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func calleeRef(fn *sitter.Node, src []byte) (refInfo, bool) {
	if fn == nil {
		return refInfo{}, false
	}
	switch fn.Type() {
	case "identifier":
		return refInfo{kind: ast.KindCallExpr, name: parser.GetNodeText(fn, src)}, true
	case "qualified_identifier", "template_function":
		qualifier, name := splitName(fn, src)
		return refInfo{kind: ast.KindCallExpr, name: name, qualifier: qualifier}, true
	case "field_expression":
		field := fn.ChildByFieldName("field")
		_, name := splitName(field, src)
		return refInfo{kind: ast.KindCallExpr, name: name, member: true}, true
	}
	return refInfo{}, false
}

// localObjects records constructor calls implied by local object
// declarations such as `Widget w(1);`.
func (u *unit) localObjects(n *sitter.Node, src []byte, add func(*sitter.Node, refInfo)) {
	record := typeName(n.ChildByFieldName("type"), src)
	if record == "" {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		arity := -1
		switch child.Type() {
		case "identifier":
			arity = 0
		case "init_declarator":
			value := child.ChildByFieldName("value")
			if value != nil && (value.Type() == "argument_list" || value.Type() == "initializer_list") {
				arity = namedCount(value)
			}
		case "function_declarator":
			arity = namedCount(child.ChildByFieldName("parameters"))
		}
		if arity >= 0 {
			add(child, refInfo{kind: ast.KindCallExpr, name: record, ctor: true, arity: arity})
		}
	}
}

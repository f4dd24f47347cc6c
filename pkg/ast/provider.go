package ast

import (
	"context"
	"errors"
	"fmt"

	"github.com/panbanda/orphan/pkg/invocation"
)

// ErrUnsupportedLanguage is returned when a front end cannot handle the
// invocation's language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// CursorKind classifies a node of the translation unit.
type CursorKind string

const (
	KindTranslationUnit   CursorKind = "translation_unit"
	KindFunction          CursorKind = "function"
	KindMethod            CursorKind = "method"
	KindConstructor       CursorKind = "constructor"
	KindDestructor        CursorKind = "destructor"
	KindFunctionTemplate  CursorKind = "function_template"
	KindCallExpr          CursorKind = "call_expr"
	KindDeclRef           CursorKind = "decl_ref"
	KindMemberRef         CursorKind = "member_ref"
	KindOverloadedDeclRef CursorKind = "overloaded_decl_ref"
	// KindUnexposed covers every node the front end does not classify.
	KindUnexposed CursorKind = "unexposed"
)

// IsFunctionLike reports whether k declares or defines a callable entity.
func (k CursorKind) IsFunctionLike() bool {
	switch k {
	case KindFunction, KindMethod, KindConstructor, KindDestructor, KindFunctionTemplate:
		return true
	}
	return false
}

// IsReference reports whether k refers to another declaration.
func (k CursorKind) IsReference() bool {
	switch k {
	case KindCallExpr, KindDeclRef, KindMemberRef, KindOverloadedDeclRef:
		return true
	}
	return false
}

// Location is a position in source. File is absolute (or empty when the
// front end could not attribute the node to a file).
type Location struct {
	File string
	Line int
}

// Cursor is a node in the translation unit tree.
type Cursor struct {
	Kind CursorKind
	// USR is the stable cross-translation-unit identity of the declared
	// entity. Only set on function-like cursors.
	USR         string
	Name        string
	DisplayName string
	Location    Location

	IsDefinition bool
	IsStatic     bool
	IsInline     bool

	// Referenced is the declaration a reference cursor resolves to, or nil.
	Referenced *Cursor

	Children []*Cursor
}

// Add appends child cursors.
func (c *Cursor) Add(children ...*Cursor) {
	c.Children = append(c.Children, children...)
}

// TranslationUnit is the result of parsing one invocation.
type TranslationUnit struct {
	File     string
	Language string
	Root     *Cursor
}

// Session parses translation units. A Session is not safe for concurrent use;
// parallel callers open one session each.
type Session interface {
	Parse(ctx context.Context, inv invocation.Prepared) (*TranslationUnit, error)
	Close()
}

// Frontend creates parse sessions.
type Frontend interface {
	Name() string
	NewSession() (Session, error)
}

// ParseError reports a translation unit that produced no usable tree.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

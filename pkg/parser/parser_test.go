package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
)

func TestNew(t *testing.T) {
	p := New()
	if p == nil {
		t.Fatal("New() returned nil")
	}
	if p.parser == nil {
		t.Error("parser field is nil")
	}
	p.Close()
}

func TestGetTreeSitterLanguage(t *testing.T) {
	for _, lang := range []Language{LangC, LangCPP} {
		t.Run(string(lang), func(t *testing.T) {
			tsLang, err := GetTreeSitterLanguage(lang)
			if err != nil {
				t.Errorf("GetTreeSitterLanguage(%v) returned error: %v", lang, err)
			}
			if tsLang == nil {
				t.Errorf("GetTreeSitterLanguage(%v) returned nil", lang)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := GetTreeSitterLanguage(Language("objc"))
		if err == nil {
			t.Error("GetTreeSitterLanguage(objc) should return error")
		}
	})
}

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		source string
		lang   Language
	}{
		{
			name:   "c function",
			source: "int main(void) {\n\treturn 0;\n}\n",
			lang:   LangC,
		},
		{
			name:   "cpp class",
			source: "namespace ns {\nstruct A { int f() const { return 1; } };\n}\n",
			lang:   LangCPP,
		},
	}

	p := New()
	defer p.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Parse(context.Background(), []byte(tt.source), tt.lang, "test.file")
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if result.Tree == nil {
				t.Fatal("result.Tree is nil")
			}
			if result.Language != tt.lang {
				t.Errorf("result.Language = %v, want %v", result.Language, tt.lang)
			}
			if result.Path != "test.file" {
				t.Errorf("result.Path = %v, want test.file", result.Path)
			}
			if result.Tree.RootNode().ChildCount() == 0 {
				t.Error("root node has no children")
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.c")
	if err := os.WriteFile(path, []byte("void hello(void) {}\n"), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	p := New()
	defer p.Close()

	result, err := p.ParseFile(context.Background(), path, LangC)
	if err != nil {
		t.Fatalf("ParseFile() error: %v", err)
	}
	if result.Path != path {
		t.Errorf("result.Path = %v, want %v", result.Path, path)
	}

	if _, err := p.ParseFile(context.Background(), "/nonexistent/path/file.c", LangC); err == nil {
		t.Error("ParseFile() should return error for non-existent file")
	}
}

func TestNodeTextAndLine(t *testing.T) {
	p := New()
	defer p.Close()

	source := "void one(void) {}\nvoid two(void) {}\n"
	result, err := p.Parse(context.Background(), []byte(source), LangC, "test.c")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	root := result.Tree.RootNode()
	if root.NamedChildCount() != 2 {
		t.Fatalf("Found %d top-level nodes, expected 2", root.NamedChildCount())
	}
	nodes := []*sitter.Node{root.NamedChild(0), root.NamedChild(1)}
	if text := GetNodeText(nodes[0], result.Source); text != "void one(void) {}" {
		t.Errorf("GetNodeText() = %q", text)
	}
	if line := Line(nodes[1]); line != 2 {
		t.Errorf("Line() = %d, want 2", line)
	}
	if GetNodeText(nil, result.Source) != "" {
		t.Error("GetNodeText(nil) should be empty")
	}
}

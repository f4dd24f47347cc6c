package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/panbanda/orphan/pkg/symbols"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// example builds the table for:
//
//	util.c: helper (line 3) called only from greet; greet (line 7)
//	main.c: main (line 1) calls greet
//	util.h: inline twice (line 2), never called
//	util.c: static local (line 12), never called
func example() *symbols.Table {
	t := symbols.NewTable()
	t.Define(symbols.Symbol{USR: "helper", Name: "helper", DisplayName: "helper(int)", File: "util.c", Line: 3})
	t.Define(symbols.Symbol{USR: "greet", Name: "greet", DisplayName: "greet()", File: "util.c", Line: 7})
	t.Define(symbols.Symbol{USR: "main", Name: "main", DisplayName: "main()", File: "main.c", Line: 1})
	t.Define(symbols.Symbol{USR: "twice", Name: "twice", DisplayName: "twice(int)", File: "util.h", Line: 2, IsInline: true})
	t.Define(symbols.Symbol{USR: "local", Name: "local", DisplayName: "local()", File: "util.c", Line: 12, IsStatic: true})

	t.AddReference(symbols.Symbol{USR: "helper", File: "util.h", Line: 1}, "util.c")
	t.AddReference(symbols.Symbol{USR: "greet", File: "util.h", Line: 2}, "main.c")
	// Declared in a header, never defined in the project.
	t.AddReference(symbols.Symbol{USR: "external", Name: "external", DisplayName: "external()", File: "ext.h", Line: 4}, "main.c")
	return t
}

func render(t *testing.T, r *Report) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, r.RenderText(&buf, false))
	return buf.String()
}

func TestBuildExample(t *testing.T) {
	r := Build(example(), Policy{})

	want := strings.Join([]string{
		"- main() (main.c:1) -> no references recorded",
		"- helper(int) (util.c:3) -> only referenced in defining file",
		"- local() (util.c:12) -> no references recorded",
		"- twice(int) (util.h:2) -> no references recorded",
		"",
		"Total functions analyzed: 5",
		"Flagged functions: 4",
		"",
	}, "\n")
	assert.Equal(t, want, render(t, r))
}

func TestBuildPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   []string
	}{
		{"none", Policy{}, []string{"main", "helper", "local", "twice"}},
		{"skip static", Policy{SkipStatic: true}, []string{"main", "helper", "twice"}},
		{"skip inline", Policy{SkipInline: true}, []string{"main", "helper", "local"}},
		{"both", Policy{SkipStatic: true, SkipInline: true}, []string{"main", "helper"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Build(example(), tt.policy)
			var names []string
			for _, it := range r.Items {
				names = append(names, it.Name)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, len(tt.want), r.Flagged)
			assert.Equal(t, 5, r.Total)
		})
	}
}

func TestBuildExcludesDefinitionlessEntries(t *testing.T) {
	table := symbols.NewTable()
	table.AddReference(symbols.Symbol{USR: "ext", Name: "ext", File: "ext.h", Line: 1}, "ext.h")

	r := Build(table, Policy{})
	assert.Empty(t, r.Items)
	assert.Equal(t, 0, r.Total)
	assert.Equal(t, EmptyMessage+"\n", render(t, r))
}

func TestBuildCrossFileReferenceClearsFlag(t *testing.T) {
	table := symbols.NewTable()
	table.Define(symbols.Symbol{USR: "f", Name: "f", DisplayName: "f()", File: "a.c", Line: 1})
	table.AddReference(symbols.Symbol{USR: "f", File: "a.c", Line: 1}, "a.c")

	r := Build(table, Policy{})
	require.Len(t, r.Items, 1)
	assert.Equal(t, ReasonLocalOnly, r.Items[0].Reason)
	assert.Equal(t, []string{"a.c"}, r.Items[0].References)

	table.AddReference(symbols.Symbol{USR: "f", File: "a.c", Line: 1}, "b.c")
	r = Build(table, Policy{})
	assert.Empty(t, r.Items)
	assert.Equal(t, 1, r.Total)
}

func TestBuildSortsByFileLineName(t *testing.T) {
	table := symbols.NewTable()
	table.Define(symbols.Symbol{USR: "3", Name: "b", DisplayName: "b()", File: "x.c", Line: 5})
	table.Define(symbols.Symbol{USR: "1", Name: "a", DisplayName: "a()", File: "x.c", Line: 5})
	table.Define(symbols.Symbol{USR: "2", Name: "z", DisplayName: "z()", File: "x.c", Line: 2})
	table.Define(symbols.Symbol{USR: "4", Name: "y", DisplayName: "y()", File: "a/w.c", Line: 9})

	r := Build(table, Policy{})
	var got []string
	for _, it := range r.Items {
		got = append(got, it.Name)
	}
	assert.Equal(t, []string{"y", "z", "a", "b"}, got)
}

func TestRenderIsDeterministic(t *testing.T) {
	first := render(t, Build(example(), Policy{}))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, render(t, Build(example(), Policy{})))
	}
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Build(example(), Policy{SkipStatic: true}).RenderMarkdown(&buf))
	out := buf.String()
	assert.Contains(t, out, "## Functions Without Cross-File Usage")
	assert.Contains(t, out, "| main() | main.c:1 | no references recorded |  |")
	assert.Contains(t, out, "| twice(int) | util.h:2 | no references recorded | inline |")
	assert.Contains(t, out, "| Analyzed: 5 | Flagged: 3 |  |  |")

	buf.Reset()
	require.NoError(t, Build(symbols.NewTable(), Policy{}).RenderMarkdown(&buf))
	assert.Equal(t, EmptyMessage+"\n", buf.String())
}

func TestRenderData(t *testing.T) {
	r := Build(example(), Policy{})
	data, ok := r.RenderData().(*Report)
	require.True(t, ok)
	assert.Same(t, r, data)

	for _, it := range r.Items {
		assert.Len(t, it.ID, 16)
		assert.Equal(t, ID(it.Name), it.ID)
	}
	assert.NotEqual(t, ID("a"), ID("b"))
}

func TestTable(t *testing.T) {
	table := Build(example(), Policy{}).Table()
	require.Len(t, table.Rows, 4)
	assert.Equal(t, []string{"local()", "util.c:12", ReasonNoReferences, "static"}, table.Rows[2])
	assert.Equal(t, "Analyzed: 5", table.Footer[0])
}

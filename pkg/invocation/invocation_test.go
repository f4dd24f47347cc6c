package invocation

import (
	"context"
	"errors"
	"testing"

	"github.com/panbanda/orphan/pkg/compdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		args []string
		want string
	}{
		{"main.c", nil, LangC},
		{"MAIN.C", nil, LangC},
		{"main.cpp", nil, LangCPP},
		{"main.cc", nil, LangCPP},
		{"main.cxx", nil, LangCPP},
		{"main.c++", nil, LangCPP},
		{"header.hpp", nil, LangCPP},
		{"header.hh", nil, LangCPP},
		{"view.m", nil, LangObjC},
		{"view.mm", nil, LangObjCPP},
		{"weird.inc", nil, LangCPP},
		{"main.c", []string{"-x", "c++"}, LangCPP},
		{"main.cpp", []string{"-xc"}, LangC},
		{"main.c", []string{"-std=c++17"}, LangCPP},
		{"main.c", []string{"-std=gnu++20"}, LangCPP},
		{"main.c", []string{"-std=c11"}, LangC},
		{"main.c", []string{"-std=c++17", "-x", "c"}, LangC},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path, tt.args))
		})
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		source string
		want   []string
	}{
		{
			name:   "object output",
			args:   []string{"-c", "-o", "main.o", "-O2", "main.c"},
			source: "main.c",
			want:   []string{"-O2"},
		},
		{
			name:   "dependency files",
			args:   []string{"-MD", "-MMD", "-MP", "-MF", "main.d", "-MT", "main.o", "-MQ", "x", "-MFjoined.d", "-Iinc"},
			source: "main.c",
			want:   []string{"-Iinc"},
		},
		{
			name:   "architecture and cpu",
			args:   []string{"-arch", "arm64", "-mcpu=cortex-a53", "-DX=1"},
			source: "main.c",
			want:   []string{"-DX=1"},
		},
		{
			name:   "unsupported codegen flag",
			args:   []string{"-fmerge-all-constants", "-Wall"},
			source: "main.c",
			want:   []string{"-Wall"},
		},
		{
			name:   "source given with another spelling",
			args:   []string{"-Wall", "/src/./main.c", "./main.c"},
			source: "main.c",
			want:   []string{"-Wall"},
		},
		{
			name:   "other sources kept",
			args:   []string{"other.c"},
			source: "main.c",
			want:   []string{"other.c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filter(tt.args, tt.source, "/src"))
		})
	}
}

type fakeProber struct {
	args  []string
	err   error
	calls []string
}

func (f *fakeProber) Probe(_ context.Context, compiler, language string) ([]string, error) {
	f.calls = append(f.calls, compiler+"/"+language)
	return f.args, f.err
}

func TestNormalizerPrepare(t *testing.T) {
	prober := &fakeProber{args: []string{"-isystem", "/usr/include"}}
	n := NewNormalizer(prober, nil)

	entry := compdb.Entry{
		Directory: "/src",
		File:      "lib/util.cc",
		Command:   "ccache g++ -std=c++17 -Iinclude -c lib/util.cc -o util.o",
	}
	inv, ok, err := n.Prepare(context.Background(), entry)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "/src/lib/util.cc", inv.File)
	assert.Equal(t, "/src", inv.Directory)
	assert.Equal(t, LangCPP, inv.Language)
	assert.Equal(t, "g++", inv.Compiler)
	assert.Equal(t, []string{"-x", "c++", "-std=c++17", "-Iinclude", "-isystem", "/usr/include"}, inv.Args)
	assert.Equal(t, []string{"g++/c++"}, prober.calls)
}

func TestNormalizerKeepsExplicitLanguage(t *testing.T) {
	n := NewNormalizer(nil, nil)
	inv, ok, err := n.Prepare(context.Background(), compdb.Entry{
		Directory: "/src",
		File:      "a.h",
		Arguments: []string{"clang", "-x", "c", "a.h"},
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, LangC, inv.Language)
	assert.Equal(t, []string{"-x", "c"}, inv.Args)
}

func TestNormalizerProbeFailureIsNotFatal(t *testing.T) {
	prober := &fakeProber{err: errors.New("not found")}
	var reported []string
	n := NewNormalizer(prober, func(compiler, language string, err error) {
		reported = append(reported, compiler)
	})

	inv, ok, err := n.Prepare(context.Background(), compdb.Entry{
		Directory: "/src",
		File:      "a.c",
		Arguments: []string{"/opt/missing/cc", "-c", "a.c"},
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"-x", "c"}, inv.Args)
	assert.Equal(t, []string{"/opt/missing/cc"}, reported)
}

func TestNormalizerSkipsEntriesWithoutInvocation(t *testing.T) {
	n := NewNormalizer(nil, nil)
	_, ok, err := n.Prepare(context.Background(), compdb.Entry{Directory: "/src", File: "a.c"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreparedKey(t *testing.T) {
	a := Prepared{File: "/src/a.c", Language: LangC}
	b := Prepared{File: "/src/a.c", Language: LangCPP}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), Prepared{File: "/src/a.c", Language: LangC, Args: []string{"-O2"}}.Key())
}

// Package invocation turns compilation database entries into front-end ready
// invocations: language detection, flag filtering and system include
// augmentation.
package invocation

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/panbanda/orphan/pkg/compdb"
)

// Language tags, spelled the way the -x flag expects them.
const (
	LangC         = "c"
	LangCPP       = "c++"
	LangObjC      = "objective-c"
	LangObjCPP    = "objective-c++"
	defaultLangTo = LangCPP
)

var extLanguages = map[string]string{
	".c":   LangC,
	".cc":  LangCPP,
	".cp":  LangCPP,
	".cxx": LangCPP,
	".cpp": LangCPP,
	".c++": LangCPP,
	".hpp": LangCPP,
	".hh":  LangCPP,
	".hxx": LangCPP,
	".m":   LangObjC,
	".mm":  LangObjCPP,
}

// droppedFlags only affect object or dependency file generation, or are
// rejected by the front end.
var droppedFlags = map[string]bool{
	"-c":                    true,
	"-fmerge-all-constants": true,
	"-MD":                   true,
	"-MMD":                  true,
	"-MP":                   true,
}

// droppedValueFlags are dropped together with the argument that follows them.
var droppedValueFlags = map[string]bool{
	"-o":    true,
	"-MF":   true,
	"-MT":   true,
	"-MQ":   true,
	"-arch": true,
}

// droppedPrefixes match joined flags such as -MFdeps.d or -mcpu=cortex-a53.
var droppedPrefixes = []string{
	"-mcpu=",
	"-MF",
	"-MT",
	"-MQ",
}

// Prepared is an invocation ready to hand to a front end.
type Prepared struct {
	// File is the absolute source path.
	File      string
	Directory string
	Language  string
	Args      []string
	Compiler  string
}

// Key identifies a (file, language) pair; the same pair is parsed once.
func (p Prepared) Key() string {
	return p.File + "\x00" + p.Language
}

// IncludeProber supplies implicit system include arguments.
type IncludeProber interface {
	Probe(ctx context.Context, compiler, language string) ([]string, error)
}

// ProbeErrorFunc receives probe failures; they never abort preparation.
type ProbeErrorFunc func(compiler, language string, err error)

// Normalizer prepares entries using a shared prober.
type Normalizer struct {
	prober  IncludeProber
	onProbe ProbeErrorFunc
}

// NewNormalizer creates a Normalizer. prober may be nil, in which case no
// system include arguments are added.
func NewNormalizer(prober IncludeProber, onProbeError ProbeErrorFunc) *Normalizer {
	return &Normalizer{prober: prober, onProbe: onProbeError}
}

// Prepare derives a Prepared invocation from entry. ok is false when the
// entry carries no compiler invocation and must be skipped.
func (n *Normalizer) Prepare(ctx context.Context, entry compdb.Entry) (Prepared, bool, error) {
	compiler, raw, err := entry.Split()
	if err != nil {
		return Prepared{}, false, err
	}
	if compiler == "" {
		return Prepared{}, false, nil
	}

	source := entry.SourcePath()
	language := DetectLanguage(source, raw)
	args := Filter(raw, entry.File, entry.Directory)
	if !HasLanguageFlag(args) {
		args = append([]string{"-x", language}, args...)
	}

	if n.prober != nil {
		sys, err := n.prober.Probe(ctx, compiler, language)
		if err != nil && n.onProbe != nil {
			n.onProbe(compiler, language, err)
		}
		args = append(args, sys...)
	}

	return Prepared{
		File:      source,
		Directory: entry.Directory,
		Language:  language,
		Args:      args,
		Compiler:  compiler,
	}, true, nil
}

// DetectLanguage picks the source language. An explicit -x flag wins, then a
// C++ -std= flag, then the file extension.
func DetectLanguage(path string, args []string) string {
	def, ok := extLanguages[strings.ToLower(filepath.Ext(path))]
	if !ok {
		def = defaultLangTo
	}

	for i, arg := range args {
		if arg == "-x" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "-x") && len(arg) > 2 {
			return arg[2:]
		}
	}
	for _, arg := range args {
		if strings.HasPrefix(arg, "-std=") && strings.Contains(arg, "++") {
			return LangCPP
		}
	}
	return def
}

// Filter removes arguments that only make sense when producing object files,
// plus the source file itself, which front ends receive separately.
func Filter(args []string, source, dir string) []string {
	abs := source
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(dir, source)
	}

	filtered := make([]string, 0, len(args))
	skipNext := false
	for _, arg := range args {
		if skipNext {
			skipNext = false
			continue
		}
		switch {
		case droppedValueFlags[arg]:
			skipNext = true
		case droppedFlags[arg]:
		case arg == source:
		case !strings.HasPrefix(arg, "-") && filepath.IsAbs(arg) && filepath.Clean(arg) == abs:
		case !strings.HasPrefix(arg, "-") && !filepath.IsAbs(arg) && filepath.Join(dir, arg) == abs:
		case hasDroppedPrefix(arg):
		default:
			filtered = append(filtered, arg)
		}
	}
	return filtered
}

func hasDroppedPrefix(arg string) bool {
	for _, prefix := range droppedPrefixes {
		if strings.HasPrefix(arg, prefix) {
			return true
		}
	}
	return false
}

// HasLanguageFlag reports whether args already select a language with -x.
func HasLanguageFlag(args []string) bool {
	for i, arg := range args {
		if arg == "-x" && i+1 < len(args) {
			return true
		}
		if strings.HasPrefix(arg, "-x") && len(arg) > 2 {
			return true
		}
	}
	return false
}

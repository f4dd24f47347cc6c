// Package symbols accumulates function definitions and cross-file references
// observed while visiting translation units.
package symbols

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// FileIndex interns project-relative paths into dense ids so reference sets
// can be stored as bitmaps.
type FileIndex struct {
	ids   map[string]uint32
	paths []string
}

// NewFileIndex creates an empty index.
func NewFileIndex() *FileIndex {
	return &FileIndex{ids: make(map[string]uint32)}
}

// ID returns the id for path, assigning one on first use.
func (f *FileIndex) ID(path string) uint32 {
	if id, ok := f.ids[path]; ok {
		return id
	}
	id := uint32(len(f.paths))
	f.ids[path] = id
	f.paths = append(f.paths, path)
	return id
}

// Lookup returns the id of an interned path.
func (f *FileIndex) Lookup(path string) (uint32, bool) {
	id, ok := f.ids[path]
	return id, ok
}

// Path returns the path for id.
func (f *FileIndex) Path(id uint32) string {
	if int(id) >= len(f.paths) {
		return ""
	}
	return f.paths[id]
}

// Len returns the number of interned paths.
func (f *FileIndex) Len() int {
	return len(f.paths)
}

// Symbol is the description of a function as seen at one site. File is
// project-relative.
type Symbol struct {
	USR         string
	Name        string
	DisplayName string
	File        string
	Line        int
	IsStatic    bool
	IsInline    bool
}

// FunctionInfo is the accumulated knowledge about one function identity.
// File and Line describe the definition when HasDefinition is set and the
// first declaration seen through a reference otherwise.
type FunctionInfo struct {
	USR           string
	Name          string
	DisplayName   string
	File          string
	Line          int
	HasDefinition bool
	IsStatic      bool
	IsInline      bool

	refs *roaring.Bitmap
}

// Usage classifies the reference set of a function relative to its
// defining file.
type Usage int

const (
	// UsageNone means no reference was recorded.
	UsageNone Usage = iota
	// UsageLocal means every reference is in the defining file.
	UsageLocal
	// UsageExternal means at least one reference is in another file.
	UsageExternal
)

// Table maps function identities to their accumulated info. A Table is not
// safe for concurrent use; parallel workers fill one table each and merge.
type Table struct {
	files *FileIndex
	funcs map[string]*FunctionInfo
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		files: NewFileIndex(),
		funcs: make(map[string]*FunctionInfo),
	}
}

// Len returns the number of identities in the table.
func (t *Table) Len() int {
	return len(t.funcs)
}

// Get returns the info for usr.
func (t *Table) Get(usr string) (*FunctionInfo, bool) {
	fi, ok := t.funcs[usr]
	return fi, ok
}

// Functions returns every entry ordered by identity.
func (t *Table) Functions() []*FunctionInfo {
	out := make([]*FunctionInfo, 0, len(t.funcs))
	for _, fi := range t.funcs {
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].USR < out[j].USR })
	return out
}

// Define records a definition. An existing definition is replaced only by
// one at a smaller (file, line), so the outcome does not depend on visit
// order.
func (t *Table) Define(s Symbol) {
	fi, ok := t.funcs[s.USR]
	if !ok {
		fi = &FunctionInfo{USR: s.USR, refs: roaring.New()}
		t.funcs[s.USR] = fi
		fi.assign(s)
		fi.HasDefinition = true
		return
	}
	if !fi.HasDefinition || before(s, fi) {
		fi.assign(s)
		fi.HasDefinition = true
	}
}

// AddReference records that file references target. The entry is created
// from target when the function has not been seen yet.
func (t *Table) AddReference(target Symbol, file string) {
	fi := t.declare(target)
	fi.refs.Add(t.files.ID(file))
}

// declare returns the entry for s, creating a definition-less one if
// needed. Declarations never overwrite definition data.
func (t *Table) declare(s Symbol) *FunctionInfo {
	fi, ok := t.funcs[s.USR]
	if !ok {
		fi = &FunctionInfo{USR: s.USR, refs: roaring.New()}
		fi.assign(s)
		t.funcs[s.USR] = fi
		return fi
	}
	if !fi.HasDefinition && before(s, fi) {
		fi.assign(s)
	}
	return fi
}

// References returns the sorted project-relative files referencing fi.
func (t *Table) References(fi *FunctionInfo) []string {
	out := make([]string, 0, fi.refs.GetCardinality())
	it := fi.refs.Iterator()
	for it.HasNext() {
		out = append(out, t.files.Path(it.Next()))
	}
	sort.Strings(out)
	return out
}

// Usage reports how fi is referenced relative to its defining file.
func (t *Table) Usage(fi *FunctionInfo) Usage {
	if fi.refs.IsEmpty() {
		return UsageNone
	}
	def, ok := t.files.Lookup(fi.File)
	if ok && fi.refs.GetCardinality() == 1 && fi.refs.Contains(def) {
		return UsageLocal
	}
	return UsageExternal
}

// Merge folds other into t. Reference sets are unioned and definitions
// follow the same precedence as Define, so merging is commutative and
// associative up to file id assignment.
func (t *Table) Merge(other *Table) {
	if other == nil {
		return
	}
	remap := make([]uint32, other.files.Len())
	for i := range remap {
		remap[i] = t.files.ID(other.files.Path(uint32(i)))
	}

	for usr, theirs := range other.funcs {
		refs := roaring.New()
		it := theirs.refs.Iterator()
		for it.HasNext() {
			refs.Add(remap[it.Next()])
		}

		s := theirs.symbol()
		if theirs.HasDefinition {
			t.Define(s)
		} else {
			t.declare(s)
		}
		t.funcs[usr].refs.Or(refs)
	}
}

func (fi *FunctionInfo) assign(s Symbol) {
	fi.Name = s.Name
	fi.DisplayName = s.DisplayName
	fi.File = s.File
	fi.Line = s.Line
	fi.IsStatic = s.IsStatic
	fi.IsInline = s.IsInline
}

func (fi *FunctionInfo) symbol() Symbol {
	return Symbol{
		USR:         fi.USR,
		Name:        fi.Name,
		DisplayName: fi.DisplayName,
		File:        fi.File,
		Line:        fi.Line,
		IsStatic:    fi.IsStatic,
		IsInline:    fi.IsInline,
	}
}

// before orders sites by (file, line, display name).
func before(s Symbol, fi *FunctionInfo) bool {
	if s.File != fi.File {
		return s.File < fi.File
	}
	if s.Line != fi.Line {
		return s.Line < fi.Line
	}
	return s.DisplayName < fi.DisplayName
}

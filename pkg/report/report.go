// Package report turns a merged symbol table into the list of functions
// that lack cross-file usage.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/fatih/color"
	"github.com/panbanda/orphan/internal/output"
	"github.com/panbanda/orphan/pkg/symbols"
)

const (
	ReasonNoReferences = "no references recorded"
	ReasonLocalOnly    = "only referenced in defining file"

	// EmptyMessage is printed instead of a list when nothing is flagged.
	EmptyMessage = "No functions without cross-file usage detected."
)

// Policy controls which definitions are eligible for flagging.
type Policy struct {
	SkipStatic bool
	SkipInline bool
}

// Item is one flagged function.
type Item struct {
	ID          string   `json:"id" toon:"id"`
	Name        string   `json:"name" toon:"name"`
	DisplayName string   `json:"display_name" toon:"display_name"`
	File        string   `json:"file" toon:"file"`
	Line        int      `json:"line" toon:"line"`
	Reason      string   `json:"reason" toon:"reason"`
	Static      bool     `json:"static,omitempty" toon:"static,omitempty"`
	Inline      bool     `json:"inline,omitempty" toon:"inline,omitempty"`
	References  []string `json:"references,omitempty" toon:"references,omitempty"`
}

// Report is the ordered list of flagged functions plus run totals.
type Report struct {
	Items []Item `json:"flagged" toon:"flagged"`
	// Total counts every function with a definition, before policy filtering.
	Total   int `json:"total_functions" toon:"total_functions"`
	Flagged int `json:"flagged_functions" toon:"flagged_functions"`
}

var _ output.Renderable = (*Report)(nil)

// Build applies policy to table and collects the flagged functions sorted by
// (file, line, name).
func Build(table *symbols.Table, policy Policy) *Report {
	r := &Report{Items: []Item{}}
	for _, fi := range table.Functions() {
		if !fi.HasDefinition {
			continue
		}
		r.Total++
		if policy.SkipStatic && fi.IsStatic {
			continue
		}
		if policy.SkipInline && fi.IsInline {
			continue
		}

		var reason string
		switch table.Usage(fi) {
		case symbols.UsageNone:
			reason = ReasonNoReferences
		case symbols.UsageLocal:
			reason = ReasonLocalOnly
		default:
			continue
		}

		r.Items = append(r.Items, Item{
			ID:          ID(fi.USR),
			Name:        fi.Name,
			DisplayName: fi.DisplayName,
			File:        fi.File,
			Line:        fi.Line,
			Reason:      reason,
			Static:      fi.IsStatic,
			Inline:      fi.IsInline,
			References:  table.References(fi),
		})
	}

	sort.SliceStable(r.Items, func(i, j int) bool {
		a, b := r.Items[i], r.Items[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.DisplayName < b.DisplayName
	})
	r.Flagged = len(r.Items)
	return r
}

// ID returns a short stable identifier for a function identity.
func ID(usr string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(usr))
}

// Location formats the item's definition site as file:line.
func (it Item) Location() string {
	return it.File + ":" + strconv.Itoa(it.Line)
}

// RenderText writes one line per flagged function followed by the totals.
func (r *Report) RenderText(w io.Writer, colored bool) error {
	if len(r.Items) == 0 {
		_, err := fmt.Fprintln(w, EmptyMessage)
		return err
	}

	for _, it := range r.Items {
		reason := it.Reason
		if colored {
			reason = color.YellowString(reason)
		}
		if _, err := fmt.Fprintf(w, "- %s (%s) -> %s\n", it.DisplayName, it.Location(), reason); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\nTotal functions analyzed: %d\nFlagged functions: %d\n", r.Total, r.Flagged)
	return err
}

// RenderMarkdown writes the flagged functions as a markdown table.
func (r *Report) RenderMarkdown(w io.Writer) error {
	if len(r.Items) == 0 {
		_, err := fmt.Fprintln(w, EmptyMessage)
		return err
	}
	return r.Table().RenderMarkdown(w)
}

// RenderData returns the report itself for structured encoders.
func (r *Report) RenderData() any {
	return r
}

// Table returns the report as a bordered-off tablewriter table.
func (r *Report) Table() *output.Table {
	rows := make([][]string, len(r.Items))
	for i, it := range r.Items {
		rows[i] = []string{it.DisplayName, it.Location(), it.Reason, attributes(it)}
	}
	return output.NewTable(
		"Functions Without Cross-File Usage",
		[]string{"Function", "Location", "Reason", "Attributes"},
		rows,
		[]string{fmt.Sprintf("Analyzed: %d", r.Total), fmt.Sprintf("Flagged: %d", r.Flagged), "", ""},
	)
}

func attributes(it Item) string {
	var attrs []string
	if it.Static {
		attrs = append(attrs, "static")
	}
	if it.Inline {
		attrs = append(attrs, "inline")
	}
	return strings.Join(attrs, ",")
}

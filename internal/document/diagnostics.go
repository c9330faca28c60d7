package document

import (
	"fmt"
	"sort"
)

// Category groups diagnostics so that independent producers can set and
// clear their own entry on a node.
type Category uint8

const (
	CategoryGeneral Category = iota
	CategoryLink
	CategoryFile
	CategoryParse
)

func (c Category) String() string {
	switch c {
	case CategoryGeneral:
		return "general"
	case CategoryLink:
		return "link"
	case CategoryFile:
		return "file"
	case CategoryParse:
		return "parse"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

type Level uint8

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", uint8(l))
	}
}

// Diagnostic is a persistent, non-fatal problem attached to a node.
type Diagnostic struct {
	Node     string
	Category Category
	Level    Level
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s [%s/%s] %s", d.Node, d.Level, d.Category, d.Message)
}

// Diagnostics holds at most one diagnostic per (node, category).
type Diagnostics struct {
	byNode map[string]map[Category]Diagnostic
}

func newDiagnostics() *Diagnostics {
	return &Diagnostics{byNode: make(map[string]map[Category]Diagnostic)}
}

func (ds *Diagnostics) Get(node string, c Category) (Diagnostic, bool) {
	d, ok := ds.byNode[node][c]
	return d, ok
}

// For lists the diagnostics of node ordered by category.
func (ds *Diagnostics) For(node string) []Diagnostic {
	m := ds.byNode[node]
	out := make([]Diagnostic, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// All lists every diagnostic ordered by node then category.
func (ds *Diagnostics) All() []Diagnostic {
	var out []Diagnostic
	for node := range ds.byNode {
		out = append(out, ds.For(node)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

func (ds *Diagnostics) Len() int {
	n := 0
	for _, m := range ds.byNode {
		n += len(m)
	}
	return n
}

func (ds *Diagnostics) set(d Diagnostic) bool {
	m, ok := ds.byNode[d.Node]
	if !ok {
		m = make(map[Category]Diagnostic)
		ds.byNode[d.Node] = m
	}
	if old, ok := m[d.Category]; ok && old == d {
		return false
	}
	m[d.Category] = d
	return true
}

func (ds *Diagnostics) clear(node string, c Category) bool {
	m, ok := ds.byNode[node]
	if !ok {
		return false
	}
	if _, ok := m[c]; !ok {
		return false
	}
	delete(m, c)
	if len(m) == 0 {
		delete(ds.byNode, node)
	}
	return true
}

func (ds *Diagnostics) clearNode(node string) bool {
	if _, ok := ds.byNode[node]; !ok {
		return false
	}
	delete(ds.byNode, node)
	return true
}

// SetDiagnostic attaches d to its node, replacing any entry of the same category.
func (d *Document) SetDiagnostic(diag Diagnostic) {
	if d.diags.set(diag) {
		d.mux.RecordErrorChanged(diag.Node)
	}
}

func (d *Document) ClearDiagnostic(node string, c Category) {
	if d.diags.clear(node, c) {
		d.mux.RecordErrorChanged(node)
	}
}

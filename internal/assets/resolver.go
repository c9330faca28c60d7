// Package assets resolves file-backed node properties: it checks that
// referenced files exist and turns parameter schema files into the input
// layout of interface objects.
package assets

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/props"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

const (
	// SchemaField holds the parameter schema path of an interface object.
	SchemaField = "schema"
	// InputsField receives the parameters declared by the schema.
	InputsField = "inputs"
)

// Resolver reads files through an afero filesystem so tests can run
// against memory.
type Resolver struct {
	fs   afero.Fs
	base string
	log  hclog.Logger

	// resolved file → nodes referencing it
	deps map[string]map[string]struct{}
}

func NewResolver(fs afero.Fs, base string, log hclog.Logger) *Resolver {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Resolver{fs: fs, base: base, log: log, deps: make(map[string]map[string]struct{})}
}

// Resolve maps a property value to a path on the resolver's filesystem.
func (r *Resolver) Resolve(uri string) string {
	uri = strings.TrimPrefix(uri, "file://")
	if filepath.IsAbs(uri) {
		return filepath.Clean(uri)
	}
	return filepath.Join(r.base, uri)
}

// Reload re-reads the files referenced by the given nodes and refreshes
// their diagnostics and schema-derived inputs.
func (r *Resolver) Reload(doc *document.Document, ids []string) error {
	for _, id := range ids {
		n, err := doc.Node(id)
		if err != nil {
			continue
		}

		var missing []string
		var schema string
		n.Props.Walk(func(p props.Path, v *props.Value) bool {
			if !v.Flags.Has(props.FlagURI) || v.Kind != props.KindString || v.AsString() == "" {
				return true
			}
			path := r.Resolve(v.AsString())
			r.track(path, id)
			if ok, _ := afero.Exists(r.fs, path); !ok {
				missing = append(missing, v.AsString())
				return true
			}
			if len(p) == 1 && p[0] == SchemaField {
				schema = path
			}
			return true
		})

		if len(missing) > 0 {
			doc.SetDiagnostic(document.Diagnostic{
				Node:     id,
				Category: document.CategoryFile,
				Level:    document.LevelError,
				Message:  "file not found: " + strings.Join(missing, ", "),
			})
		} else {
			doc.ClearDiagnostic(id, document.CategoryFile)
		}

		if !n.Interface || schema == "" || doc.Generated(id) {
			continue
		}
		inputs, err := r.loadSchema(schema)
		if err != nil {
			r.log.Debug("schema rejected", "node", id, "file", schema, "error", err)
			doc.SetDiagnostic(document.Diagnostic{
				Node:     id,
				Category: document.CategoryParse,
				Level:    document.LevelError,
				Message:  err.Error(),
			})
			continue
		}
		doc.ClearDiagnostic(id, document.CategoryParse)
		if _, err := doc.ApplyValue(props.H(id, InputsField), inputs, props.UpdateOptions{StructureOnly: true}); err != nil {
			return fmt.Errorf("apply schema of %s: %w", id, err)
		}
	}
	return nil
}

func (r *Resolver) track(path, id string) {
	m, ok := r.deps[path]
	if !ok {
		m = make(map[string]struct{})
		r.deps[path] = m
	}
	m[id] = struct{}{}
}

// Files lists every file resolved so far.
func (r *Resolver) Files() []string {
	out := make([]string, 0, len(r.deps))
	for p := range r.deps {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Dependents lists the nodes that referenced path.
func (r *Resolver) Dependents(path string) []string {
	m := r.deps[filepath.Clean(path)]
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type schemaEntry struct {
	name, typ string
	line      int
}

// loadSchema parses a parameter schema into an input struct. Entry order
// follows the file. A "[]" type suffix declares an array. Files ending in
// .hcl hold "name = type" attributes; anything else is a YAML mapping of
// "name: type".
func (r *Resolver) loadSchema(path string) (*props.Value, error) {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, err
	}
	var entries []schemaEntry
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		entries, err = parseSchemaHCL(path, data)
	} else {
		entries, err = parseSchemaYAML(path, data)
	}
	if err != nil {
		return nil, err
	}

	out := props.NewStruct()
	for _, e := range entries {
		if out.Get(e.name) != nil {
			return nil, fmt.Errorf("%s: line %d: duplicate parameter %q", path, e.line, e.name)
		}
		if strings.HasSuffix(e.typ, "[]") {
			out.Set(e.name, props.NewArray().With(props.FlagLinkEnd))
			continue
		}
		k, err := props.ParseKind(e.typ)
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, e.line, err)
		}
		out.Set(e.name, props.Zero(k).With(props.FlagLinkEnd))
	}
	return out, nil
}

func parseSchemaYAML(path string, data []byte) ([]schemaEntry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	m := root.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: line %d: schema must be a mapping", path, m.Line)
	}
	var out []schemaEntry
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i], m.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%s: line %d: type of %q must be a string", path, val.Line, key.Value)
		}
		out = append(out, schemaEntry{name: key.Value, typ: val.Value, line: key.Line})
	}
	return out, nil
}

func parseSchemaHCL(path string, data []byte) ([]schemaEntry, error) {
	f, diags := hclsyntax.ParseConfig(data, path, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, diags
	}
	attrs, diags := f.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	out := make([]schemaEntry, 0, len(attrs))
	for name, attr := range attrs {
		e := schemaEntry{name: name, line: attr.NameRange.Start.Line}
		// Bare keywords (rate = double) and strings (points = "double[]") both work.
		if kw := hcl.ExprAsKeyword(attr.Expr); kw != "" {
			e.typ = kw
		} else {
			v, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, diags
			}
			if v.IsNull() || !v.Type().Equals(cty.String) {
				return nil, fmt.Errorf("%s: line %d: type of %q must be a string", path, e.line, name)
			}
			e.typ = v.AsString()
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].line < out[j].line })
	return out, nil
}

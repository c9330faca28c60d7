// Package view renders documents for people and scripts: an indented tree
// and JSONPath queries over the exported form.
package view

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/xlab/treeprint"

	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/graph"
)

// TreeOptions select what Tree prints next to each node.
type TreeOptions struct {
	IDs         bool
	Props       bool
	Diagnostics bool
}

// Tree renders the containment forest. The caller holds the document.
func Tree(doc *document.Document, opts TreeOptions) string {
	store := doc.Store()
	root := treeprint.NewWithRoot("document")
	var add func(parent treeprint.Tree, id string)
	add = func(parent treeprint.Tree, id string) {
		n, err := store.Get(id)
		if err != nil {
			return
		}
		var branch treeprint.Tree
		if m := meta(doc, n); m != "" {
			branch = parent.AddMetaBranch(m, label(store, n, opts))
		} else {
			branch = parent.AddBranch(label(store, n, opts))
		}
		if opts.Props {
			for _, name := range n.Props.Names() {
				if graph.IsReserved(name) {
					continue
				}
				branch.AddMetaNode("prop", fmt.Sprintf("%s = %v", name, n.Props.Get(name).Interface()))
			}
		}
		if opts.Diagnostics {
			for _, d := range doc.Diagnostics().For(id) {
				branch.AddMetaNode(d.Level.String(), d.Category.String()+": "+d.Message)
			}
		}
		for _, c := range n.Children {
			add(branch, c)
		}
	}
	for _, n := range store.Roots() {
		add(root, n.ID)
	}
	return root.String()
}

func meta(doc *document.Document, n *graph.Node) string {
	var tags []string
	if n.Kind != graph.KindObject {
		tags = append(tags, n.Kind.String())
	}
	if n.Interface {
		tags = append(tags, "interface")
	}
	if doc.Generated(n.ID) {
		tags = append(tags, "generated")
	}
	if n.External {
		tags = append(tags, "external")
	}
	return strings.Join(tags, ",")
}

func label(store *graph.Store, n *graph.Node, opts TreeOptions) string {
	s := n.Name()
	if n.TypeName != "" {
		s += " : " + n.TypeName
	}
	if n.Template != "" {
		if t, err := store.Get(n.Template); err == nil {
			s += " <- " + t.Name()
		}
	}
	if opts.IDs {
		s += " (" + n.ID + ")"
	}
	return s
}

// Query evaluates a JSONPath expression against doc.Export().
// The caller holds the document.
func Query(doc *document.Document, expr string) ([]any, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, fmt.Errorf("parse query %q: %w", expr, err)
	}
	return x.Get(doc.Export()), nil
}

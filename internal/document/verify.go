package document

import (
	"fmt"
	"slices"

	"github.com/agentic-research/stencil/internal/graph"
	"github.com/agentic-research/stencil/internal/identity"
	"github.com/agentic-research/stencil/internal/props"
	"github.com/hashicorp/go-multierror"
)

// Verify checks graph invariants and returns every violation found, or nil.
func (d *Document) Verify() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	for _, n := range d.store.Nodes() {
		if n.Parent != "" {
			p, err := d.store.Get(n.Parent)
			if err != nil {
				add("node %s: parent %s missing", n.ID, n.Parent)
			} else if !slices.Contains(p.Children, n.ID) {
				add("node %s: not listed in children of parent %s", n.ID, n.Parent)
			}
		}
		for _, c := range n.Children {
			cn, err := d.store.Get(c)
			if err != nil {
				add("node %s: child %s missing", n.ID, c)
			} else if cn.Parent != n.ID {
				add("node %s: child %s has parent %q", n.ID, c, cn.Parent)
			}
		}
		if n.Template != "" && !d.store.Has(n.Template) {
			add("instance %s: template %s missing", n.ID, n.Template)
		}
	}

	ends := make(map[string]uint32)
	for _, l := range d.store.Links() {
		for _, h := range []props.Handle{l.Start, l.End} {
			if !d.store.Has(h.Node) {
				add("link %d: endpoint node %s missing", l.ID, h.Node)
			}
		}
		if other, ok := ends[l.End.Key()]; ok {
			add("links %d and %d share end %s", other, l.ID, l.End)
		}
		ends[l.End.Key()] = l.ID
	}

	for _, n := range d.store.Nodes() {
		if n.Kind != graph.KindInstance || n.Template == "" || n.External || d.Generated(n.ID) {
			continue
		}
		if err := d.VerifyInstance(n.ID); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// VerifyInstance checks that the generated subtree of inst mirrors its
// template: same nodes under remapped IDs, same kinds and child order, equal
// properties outside top-level interface objects and equal shape inside them.
func (d *Document) VerifyInstance(inst string) error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf("instance %s: "+format, append([]any{inst}, args...)...))
	}
	in, err := d.store.Get(inst)
	if err != nil {
		return err
	}
	tmpl := in.Template
	tn, err := d.store.Get(tmpl)
	if err != nil {
		return err
	}
	toInst := func(id string) string {
		out, err := identity.Remap(id, tmpl, inst)
		if err != nil {
			return id
		}
		return out
	}
	tSub := d.store.Descendants(tmpl)
	inTemplate := make(map[string]bool, len(tSub)+1)
	inTemplate[tmpl] = true
	for _, t := range tSub {
		inTemplate[t] = true
	}
	translate := func(ref string) string {
		if inTemplate[ref] {
			return toInst(ref)
		}
		return ref
	}

	iSub := d.store.Descendants(inst)
	if len(iSub) != len(tSub) {
		add("%d generated nodes, template has %d", len(iSub), len(tSub))
	}
	if !slices.Equal(in.Children, mapIDs(tn.Children, toInst)) {
		add("top-level children differ from template")
	}
	for _, t := range tSub {
		tNode, _ := d.store.Get(t)
		i := toInst(t)
		iNode, err := d.store.Get(i)
		if err != nil || !d.store.IsAncestor(inst, i) {
			add("no counterpart for template node %s", t)
			continue
		}
		if iNode.Kind != tNode.Kind || iNode.TypeName != tNode.TypeName {
			add("node %s: kind %s/%s, template has %s/%s", i, iNode.Kind, iNode.TypeName, tNode.Kind, tNode.TypeName)
		}
		if !slices.Equal(iNode.Children, mapIDs(tNode.Children, toInst)) {
			add("node %s: children differ from template", i)
		}
		if iNode.Template != translate(tNode.Template) {
			add("node %s: template reference differs", i)
		}
		if d.IsTopLevelInterface(i) {
			if !props.SameShape(iNode.Props, tNode.Props) {
				add("interface node %s: property layout differs", i)
			}
			continue
		}
		if !props.Equal(iNode.Props, tNode.Props, translate) {
			add("node %s: properties differ from template", i)
		}
	}
	return result.ErrorOrNil()
}

func mapIDs(ids []string, fn func(string) string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fn(id)
	}
	return out
}

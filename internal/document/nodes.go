package document

import (
	"fmt"
	"slices"

	"github.com/agentic-research/stencil/internal/depend"
	"github.com/agentic-research/stencil/internal/graph"
	"github.com/agentic-research/stencil/internal/identity"
	"github.com/agentic-research/stencil/internal/props"
)

// NodeSpec describes a user-created node.
type NodeSpec struct {
	Parent    string
	Kind      graph.NodeKind
	TypeName  string
	Name      string
	Interface bool
	Template  string        // instances only
	Props     []props.Field // user properties, after "name"
}

// Generated reports whether id lies inside an instance subtree and so was
// produced by propagation.
func (d *Document) Generated(id string) bool { return d.store.EnclosingInstance(id) != "" }

// IsTopLevelInterface reports whether id is an interface object directly
// below a top-level instance: the only generated nodes users may edit.
func (d *Document) IsTopLevelInterface(id string) bool {
	n, err := d.store.Get(id)
	if err != nil || !n.Interface || n.Parent == "" {
		return false
	}
	p, err := d.store.Get(n.Parent)
	if err != nil || p.Kind != graph.KindInstance {
		return false
	}
	return d.store.EnclosingInstance(p.ID) == ""
}

func (d *Document) checkCanHoldChildren(parent string) error {
	if parent == "" {
		return nil
	}
	p, err := d.store.Get(parent)
	if err != nil {
		return err
	}
	if p.Kind == graph.KindInstance || d.Generated(parent) {
		return fmt.Errorf("add child to %s: %w", parent, ErrReadOnly)
	}
	return nil
}

// checkTemplateRef validates that an instance below parent may reference tmpl.
func (d *Document) checkTemplateRef(parent, tmpl string) error {
	if tmpl == "" {
		return nil
	}
	t, err := d.store.Get(tmpl)
	if err != nil {
		return err
	}
	if t.Kind != graph.KindTemplate {
		return fmt.Errorf("%s is a %s, not a template: %w", tmpl, t.Kind, ErrConstraint)
	}
	host := ""
	if parent != "" {
		host = d.store.ContainingTemplate(parent)
	}
	if depend.WouldCycle(d.store, tmpl, host) {
		return fmt.Errorf("instance of %s inside %s: %w", tmpl, host, ErrCyclicInstantiation)
	}
	return nil
}

// Create adds a user node below spec.Parent.
func (d *Document) Create(spec NodeSpec) (*graph.Node, error) {
	if err := d.checkCanHoldChildren(spec.Parent); err != nil {
		return nil, err
	}
	if spec.Kind == graph.KindTemplate && spec.Parent != "" {
		return nil, fmt.Errorf("template %q must be a root: %w", spec.Name, ErrConstraint)
	}
	if spec.Template != "" && spec.Kind != graph.KindInstance {
		return nil, fmt.Errorf("%s node cannot reference a template: %w", spec.Kind, ErrConstraint)
	}
	if err := d.checkTemplateRef(spec.Parent, spec.Template); err != nil {
		return nil, err
	}
	for _, f := range spec.Props {
		if graph.IsReserved(f.Name) {
			return nil, fmt.Errorf("property %q is reserved: %w", f.Name, ErrConstraint)
		}
	}

	n := graph.NewNode(identity.New(), spec.Kind, spec.TypeName, spec.Name)
	n.Parent = spec.Parent
	n.Interface = spec.Interface
	n.Template = spec.Template
	for _, f := range spec.Props {
		n.Props.Set(f.Name, f.Value.Clone())
	}
	if err := d.store.Add(n); err != nil {
		return nil, err
	}
	d.mux.RecordCreate(n.ID)
	if spec.Parent != "" {
		p, _ := d.store.Get(spec.Parent)
		p.Children = append(p.Children, n.ID)
		d.mux.RecordValueChanged(props.H(p.ID, graph.FieldChildren))
	}
	d.log.Trace("created node", "id", n.ID, "kind", n.Kind, "parent", spec.Parent)
	d.RunCreateHooks([]string{n.ID})
	return n, nil
}

// SetTemplate points an instance at tmpl, or clears it when tmpl is "".
func (d *Document) SetTemplate(inst, tmpl string) error {
	n, err := d.store.Get(inst)
	if err != nil {
		return err
	}
	if n.Kind != graph.KindInstance {
		return fmt.Errorf("%s is not an instance: %w", inst, ErrConstraint)
	}
	if d.Generated(inst) {
		return fmt.Errorf("set template of %s: %w", inst, ErrReadOnly)
	}
	if err := d.checkTemplateRef(n.Parent, tmpl); err != nil {
		return err
	}
	return d.AssignTemplate(inst, tmpl)
}

// Move reparents id below newParent at index (clamped; negative appends).
func (d *Document) Move(id, newParent string, index int) error {
	n, err := d.store.Get(id)
	if err != nil {
		return err
	}
	if d.Generated(id) {
		return fmt.Errorf("move %s: %w", id, ErrReadOnly)
	}
	if n.Kind == graph.KindTemplate && newParent != "" {
		return fmt.Errorf("template %s must stay a root: %w", id, ErrConstraint)
	}
	if newParent == id || d.store.IsAncestor(id, newParent) {
		return fmt.Errorf("move %s below itself: %w", id, ErrConstraint)
	}
	if err := d.checkCanHoldChildren(newParent); err != nil {
		return err
	}
	moved := append([]string{id}, d.store.Descendants(id)...)
	for _, m := range moved {
		mn, _ := d.store.Get(m)
		if mn.Kind != graph.KindInstance || mn.Template == "" || d.store.EnclosingInstance(m) != "" {
			continue
		}
		if err := d.checkTemplateRef(newParent, mn.Template); err != nil {
			return err
		}
	}

	if n.Parent != "" {
		old, _ := d.store.Get(n.Parent)
		old.Children = slices.DeleteFunc(old.Children, func(c string) bool { return c == id })
		d.mux.RecordValueChanged(props.H(old.ID, graph.FieldChildren))
	}
	n.Parent = newParent
	if newParent != "" {
		p, _ := d.store.Get(newParent)
		if index < 0 || index > len(p.Children) {
			index = len(p.Children)
		}
		p.Children = slices.Insert(p.Children, index, id)
		d.mux.RecordValueChanged(props.H(p.ID, graph.FieldChildren))
	}
	for _, l := range d.store.LinksTouching(moved...) {
		d.revalidateLink(l)
	}
	return nil
}

// Delete removes user nodes and everything below them.
func (d *Document) Delete(ids ...string) error {
	for _, id := range ids {
		if _, err := d.store.Get(id); err != nil {
			return err
		}
		if d.Generated(id) {
			return fmt.Errorf("delete %s: %w", id, ErrReadOnly)
		}
	}
	d.DeleteSubtrees(ids)
	return nil
}

// CreateGenerated inserts a node produced by propagation. The caller fills
// in the parent's child list through ReplaceChildren.
func (d *Document) CreateGenerated(n *graph.Node) error {
	if err := d.store.Add(n); err != nil {
		return err
	}
	d.mux.RecordCreate(n.ID)
	return nil
}

// ReplaceChildren sets id's ordered child list.
func (d *Document) ReplaceChildren(id string, children []string) error {
	n, err := d.store.Get(id)
	if err != nil {
		return err
	}
	if slices.Equal(n.Children, children) {
		return nil
	}
	n.Children = slices.Clone(children)
	for _, c := range children {
		if cn, err := d.store.Get(c); err == nil {
			cn.Parent = id
		}
	}
	d.mux.RecordValueChanged(props.H(id, graph.FieldChildren))
	return nil
}

// AssignTemplate sets an instance's template reference without checks.
func (d *Document) AssignTemplate(id, tmpl string) error {
	n, err := d.store.Get(id)
	if err != nil {
		return err
	}
	if n.Template == tmpl {
		return nil
	}
	if err := d.store.SetTemplate(id, tmpl); err != nil {
		return err
	}
	d.mux.RecordValueChanged(props.H(id, graph.FieldTemplate))
	return nil
}

// DeleteSubtrees removes ids and their descendants in one sweep: links
// touching the removed set go first, then references held by surviving
// nodes are cleared, then the nodes themselves are dropped.
func (d *Document) DeleteSubtrees(ids []string) {
	var order []string
	doomed := make(map[string]bool)
	for _, id := range ids {
		if doomed[id] || !d.store.Has(id) {
			continue
		}
		for _, m := range append([]string{id}, d.store.Descendants(id)...) {
			if !doomed[m] {
				doomed[m] = true
				order = append(order, m)
			}
		}
	}
	if len(order) == 0 {
		return
	}

	for _, l := range d.store.LinksTouching(order...) {
		d.DropLink(l.ID)
	}

	for _, id := range order {
		n, _ := d.store.Get(id)
		if n.Parent == "" || doomed[n.Parent] {
			continue
		}
		p, _ := d.store.Get(n.Parent)
		p.Children = slices.DeleteFunc(p.Children, func(c string) bool { return c == id })
		d.mux.RecordValueChanged(props.H(p.ID, graph.FieldChildren))
	}

	for _, n := range d.store.Nodes() {
		if doomed[n.ID] {
			continue
		}
		if n.Template != "" && doomed[n.Template] {
			_ = d.AssignTemplate(n.ID, "")
		}
		d.clearRefs(n, doomed)
	}

	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		d.store.Remove(id)
		d.diags.clearNode(id)
		d.mux.RecordDelete(id)
	}
	d.log.Debug("deleted nodes", "count", len(order))
}

// clearRefs nulls references from n into doomed. Array entries holding such
// a reference are removed instead.
func (d *Document) clearRefs(n *graph.Node, doomed map[string]bool) {
	var hits []props.Path
	n.Props.Walk(func(p props.Path, v *props.Value) bool {
		if v.Kind == props.KindRef && doomed[v.Ref] {
			hits = append(hits, p)
		}
		return true
	})
	// Walk is pre-order; going backwards keeps earlier array indices stable.
	for i := len(hits) - 1; i >= 0; i-- {
		p := hits[i]
		parent, _ := n.Props.Lookup(p[:len(p)-1])
		h := props.Handle{Node: n.ID, Path: p}
		if parent.Array {
			parent.Remove(p[len(p)-1])
			h.Path = p[:len(p)-1]
			d.mux.RecordValueChanged(h)
			d.revalidate(h)
			continue
		}
		v, _ := n.Props.Lookup(p)
		v.Ref = ""
		d.mux.RecordValueChanged(h)
	}
}

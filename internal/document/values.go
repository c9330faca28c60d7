package document

import (
	"fmt"

	"github.com/agentic-research/stencil/internal/graph"
	"github.com/agentic-research/stencil/internal/props"
)

// checkWritable enforces the read-only rule for generated nodes: only user
// properties of top-level interface objects may be edited.
func (d *Document) checkWritable(h props.Handle) error {
	if !d.Generated(h.Node) {
		return nil
	}
	if d.IsTopLevelInterface(h.Node) && len(h.Path) > 0 && !graph.IsReserved(h.Path[0]) {
		return nil
	}
	return fmt.Errorf("%s: %w", h, ErrReadOnly)
}

func (d *Document) lookup(h props.Handle) (*graph.Node, *props.Value, error) {
	n, err := d.store.Get(h.Node)
	if err != nil {
		return nil, nil, err
	}
	v, ok := n.Props.Lookup(h.Path)
	if !ok {
		return n, nil, fmt.Errorf("property %s: %w", h, ErrNotFound)
	}
	return n, v, nil
}

// Value returns the property at h.
func (d *Document) Value(h props.Handle) (*props.Value, error) {
	_, v, err := d.lookup(h)
	return v, err
}

// SetValue assigns a new value of the same kind to an existing property.
// Annotations of the existing slot are kept.
func (d *Document) SetValue(h props.Handle, v *props.Value) error {
	if len(h.Path) == 0 || h.Top() == graph.FieldChildren || h.Top() == graph.FieldTemplate {
		return fmt.Errorf("set %s: %w", h, ErrConstraint)
	}
	_, cur, err := d.lookup(h)
	if err != nil {
		return err
	}
	if err := d.checkWritable(h); err != nil {
		return err
	}
	if cur.Kind != v.Kind || cur.Array != v.Array {
		return fmt.Errorf("set %s: %s value for %s slot: %w", h, v.Kind, cur.Kind, ErrConstraint)
	}
	if cur.IsContainer() && !cur.Array && !props.SameShape(cur, v) {
		return fmt.Errorf("set %s: struct layout differs: %w", h, ErrConstraint)
	}
	src := v.Clone()
	src.Walk(func(p props.Path, val *props.Value) bool {
		if old, ok := cur.Lookup(p); ok {
			val.Flags = old.Flags
		}
		return true
	})
	_, err = d.ApplyValue(h, src, props.UpdateOptions{})
	return err
}

// AddProperty inserts a new user property under the container at parent.
func (d *Document) AddProperty(parent props.Handle, name string, v *props.Value) error {
	if len(parent.Path) == 0 && graph.IsReserved(name) {
		return fmt.Errorf("property %q is reserved: %w", name, ErrConstraint)
	}
	if d.Generated(parent.Node) {
		return fmt.Errorf("add property to %s: %w", parent, ErrReadOnly)
	}
	_, c, err := d.lookup(parent)
	if err != nil {
		return err
	}
	if !c.IsContainer() {
		return fmt.Errorf("%s is not a container: %w", parent, ErrConstraint)
	}
	if c.Get(name) != nil {
		return fmt.Errorf("property %s/%s exists: %w", parent, name, ErrConstraint)
	}
	_, err = d.ApplyValue(props.Handle{Node: parent.Node, Path: parent.Path.Child(name)}, v, props.UpdateOptions{})
	return err
}

// RemoveProperty deletes a user property.
func (d *Document) RemoveProperty(h props.Handle) error {
	if len(h.Path) == 0 || (len(h.Path) == 1 && graph.IsReserved(h.Path[0])) {
		return fmt.Errorf("remove %s: %w", h, ErrConstraint)
	}
	if d.Generated(h.Node) {
		return fmt.Errorf("remove %s: %w", h, ErrReadOnly)
	}
	if _, _, err := d.lookup(h); err != nil {
		return err
	}
	return d.RemoveValue(h)
}

// ApplyValue merges src into the property at h, inserting it when the slot
// does not exist yet but its parent does. Every touched path is recorded and
// links around reshaped paths are revalidated.
func (d *Document) ApplyValue(h props.Handle, src *props.Value, opts props.UpdateOptions) (props.UpdateResult, error) {
	n, err := d.store.Get(h.Node)
	if err != nil {
		return props.UpdateResult{}, err
	}
	var res props.UpdateResult
	if target, ok := n.Props.Lookup(h.Path); ok {
		res = props.Update(target, src, opts)
	} else {
		if len(h.Path) == 0 {
			return res, fmt.Errorf("property tree of %s: %w", h.Node, ErrNotFound)
		}
		parent, ok := n.Props.Lookup(h.Path[:len(h.Path)-1])
		if !ok || !parent.IsContainer() {
			return res, fmt.Errorf("parent of %s: %w", h, ErrNotFound)
		}
		c := src.Clone()
		c.TranslateRefs(opts.Translate)
		parent.Set(h.Path[len(h.Path)-1], c)
		res.Changed = []props.Path{nil}
		res.Reshaped = []props.Path{nil}
	}
	if res.Empty() {
		return res, nil
	}
	for _, p := range res.Changed {
		d.mux.RecordValueChanged(props.Handle{Node: h.Node, Path: h.Path.Join(p)})
	}
	for _, p := range res.Reshaped {
		d.revalidate(props.Handle{Node: h.Node, Path: h.Path.Join(p)})
	}
	d.afterValueChanged(h)
	return res, nil
}

// RemoveValue drops the property at h without checks.
func (d *Document) RemoveValue(h props.Handle) error {
	if len(h.Path) == 0 {
		return fmt.Errorf("remove %s: %w", h, ErrConstraint)
	}
	n, err := d.store.Get(h.Node)
	if err != nil {
		return err
	}
	parent, ok := n.Props.Lookup(h.Path[:len(h.Path)-1])
	if !ok || !parent.Remove(h.Path[len(h.Path)-1]) {
		return fmt.Errorf("property %s: %w", h, ErrNotFound)
	}
	changed := h
	if parent.Array {
		changed.Path = h.Path[:len(h.Path)-1]
	}
	d.mux.RecordValueChanged(changed)
	d.revalidate(changed)
	d.afterValueChanged(h)
	return nil
}

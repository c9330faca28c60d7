package document

import (
	"fmt"
	"strings"

	"github.com/agentic-research/stencil/internal/graph"
	"github.com/agentic-research/stencil/internal/props"
)

// satisfiesTemplateConstraints keeps links from crossing template or
// instance boundaries. A link may leave an instance only downwards, into an
// instance nested directly inside it.
func (d *Document) satisfiesTemplateConstraints(start, end string) bool {
	st, et := d.store.ContainingTemplate(start), d.store.ContainingTemplate(end)
	if st != et {
		return false
	}
	si, ei := d.store.ContainingInstance(start), d.store.ContainingInstance(end)
	if si != "" && ei == "" {
		return false
	}
	if si != "" && ei != "" && si != ei {
		return d.store.EnclosingInstance(ei) == si
	}
	return true
}

// LinkAllowed checks boundary constraints and, for strong links, loops.
func (d *Document) LinkAllowed(start, end props.Handle, weak bool) bool {
	if !d.satisfiesTemplateConstraints(start.Node, end.Node) {
		return false
	}
	return weak || !d.store.CreatesLoop(start.Node, end.Node)
}

// compatible requires equal kinds, and equal layout for containers.
func compatible(a, b *props.Value) bool {
	if a.Kind != b.Kind || a.Array != b.Array {
		return false
	}
	return !a.IsContainer() || props.SameShape(a, b)
}

// LinkWouldBeValid is the well-typedness predicate used when creating and
// revalidating links.
func (d *Document) LinkWouldBeValid(start, end props.Handle, weak bool) bool {
	_, s, err := d.lookup(start)
	if err != nil {
		return false
	}
	_, e, err := d.lookup(end)
	if err != nil {
		return false
	}
	return s.Flags.Has(props.FlagLinkStart) && e.Flags.Has(props.FlagLinkEnd) &&
		compatible(s, e) && d.LinkAllowed(start, end, weak)
}

// AddLink is the checked link creation used for user edits. Links already
// ending on end, above it or below it are replaced.
func (d *Document) AddLink(start, end props.Handle, weak bool) (*graph.Link, error) {
	_, s, err := d.lookup(start)
	if err != nil {
		return nil, err
	}
	_, e, err := d.lookup(end)
	if err != nil {
		return nil, err
	}
	if err := d.checkWritable(end); err != nil {
		return nil, err
	}
	switch {
	case !s.Flags.Has(props.FlagLinkStart):
		return nil, fmt.Errorf("%s is not a link start: %w", start, ErrConstraint)
	case !e.Flags.Has(props.FlagLinkEnd):
		return nil, fmt.Errorf("%s is not a link end: %w", end, ErrConstraint)
	case !compatible(s, e):
		return nil, fmt.Errorf("link %s -> %s: incompatible types: %w", start, end, ErrConstraint)
	case !d.satisfiesTemplateConstraints(start.Node, end.Node):
		return nil, fmt.Errorf("link %s -> %s crosses a template boundary: %w", start, end, ErrConstraint)
	case !weak && d.store.CreatesLoop(start.Node, end.Node):
		return nil, fmt.Errorf("link %s -> %s creates a loop: %w", start, end, ErrConstraint)
	}
	return d.PutLink(graph.Descriptor{Start: start, End: end, Valid: true, Weak: weak}), nil
}

// RemoveLink is the checked removal of the link ending on end.
func (d *Document) RemoveLink(end props.Handle) error {
	l := d.store.LinkEndingAt(end)
	if l == nil {
		return fmt.Errorf("link ending on %s: %w", end, ErrNotFound)
	}
	if err := d.checkWritable(end); err != nil {
		return err
	}
	d.DropLink(l.ID)
	return nil
}

// PutLink inserts a link without checks, replacing links whose end overlaps.
func (d *Document) PutLink(desc graph.Descriptor) *graph.Link {
	for _, l := range d.store.LinksTo(desc.End.Node) {
		if l.End.Overlaps(desc.End) {
			d.DropLink(l.ID)
		}
	}
	l := d.store.AddLink(desc)
	d.mux.RecordLinkAdded(l.Descriptor())
	d.updateLinkDiagnostic(desc.End.Node)
	return l
}

// DropLink removes a link without checks.
func (d *Document) DropLink(id uint32) {
	l, ok := d.store.RemoveLink(id)
	if !ok {
		return
	}
	d.mux.RecordLinkRemoved(l.Descriptor())
	d.updateLinkDiagnostic(l.End.Node)
}

// SetLinkValidity updates a link's validity flag in place.
func (d *Document) SetLinkValidity(id uint32, valid bool) {
	l, ok := d.store.Link(id)
	if !ok || l.Valid == valid {
		return
	}
	l.Valid = valid
	d.mux.RecordLinkValidityChanged(l.Descriptor())
	d.updateLinkDiagnostic(l.End.Node)
	d.log.Debug("link validity changed", "link", l.Descriptor().String())
}

// revalidate re-checks links with an endpoint overlapping h.
func (d *Document) revalidate(h props.Handle) {
	for _, l := range d.store.LinksOverlapping(h) {
		d.revalidateLink(l)
	}
}

func (d *Document) revalidateLink(l *graph.Link) {
	d.SetLinkValidity(l.ID, d.LinkWouldBeValid(l.Start, l.End, l.Weak))
}

// RevalidateAll re-checks every link, e.g. after loading a document.
func (d *Document) RevalidateAll() {
	for _, l := range d.store.Links() {
		d.revalidateLink(l)
	}
}

// updateLinkDiagnostic keeps the broken-link warning on node in sync with
// the invalid links ending there.
func (d *Document) updateLinkDiagnostic(node string) {
	if !d.store.Has(node) {
		return
	}
	var broken []string
	for _, l := range d.store.LinksTo(node) {
		if !l.Valid {
			broken = append(broken, l.Start.String()+" -> "+l.End.Path.String())
		}
	}
	if len(broken) == 0 {
		d.ClearDiagnostic(node, CategoryLink)
		return
	}
	d.SetDiagnostic(Diagnostic{
		Node:     node,
		Category: CategoryLink,
		Level:    LevelWarning,
		Message:  "broken link: " + strings.Join(broken, ", "),
	})
}

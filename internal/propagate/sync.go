package propagate

import (
	"fmt"
	"slices"

	"github.com/agentic-research/stencil/internal/changes"
	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/graph"
	"github.com/agentic-research/stencil/internal/identity"
	"github.com/agentic-research/stencil/internal/props"
)

// syncer brings one instance subtree in line with its template.
type syncer struct {
	doc   *document.Document
	store *graph.Store
	model *changes.Recorder

	tmpl, inst string
	dirty      bool

	tSub    []string          // template descendants, pre-order
	toInst  map[string]string // template subtree (T included) → instance subtree
	created []string
	isNew   map[string]bool
	refresh []props.Handle // template-side handles to copy regardless of changes
}

func (p *Propagator) newSyncer(tmpl, inst string, dirty bool) (*syncer, error) {
	s := &syncer{
		doc:   p.doc,
		store: p.doc.Store(),
		model: p.doc.Changes(),
		tmpl:  tmpl,
		inst:  inst,
		dirty: dirty,
		isNew: make(map[string]bool),
	}
	s.tSub = s.store.Descendants(tmpl)
	s.toInst = make(map[string]string, len(s.tSub)+1)
	for _, t := range append([]string{tmpl}, s.tSub...) {
		i, err := identity.Remap(t, tmpl, inst)
		if err != nil {
			return nil, fmt.Errorf("remap %s into %s: %v: %w", t, inst, err, ErrInvariant)
		}
		s.toInst[t] = i
	}
	return s, nil
}

// translate maps references into the template subtree onto the instance
// subtree and leaves everything else alone.
func (s *syncer) translate(id string) string {
	if i, ok := s.toInst[id]; ok {
		return i
	}
	return id
}

// toTemplate maps an instance-side ID back to its template counterpart.
func (s *syncer) toTemplate(id string) (string, bool) {
	t, err := identity.Remap(id, s.inst, s.tmpl)
	if err != nil {
		return "", false
	}
	_, ok := s.toInst[t]
	return t, ok
}

func (s *syncer) translateList(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = s.translate(id)
	}
	return out
}

// interfaceTop reports whether template node t maps onto a top-level
// interface object of the instance.
func (s *syncer) interfaceTop(t *graph.Node) bool {
	return t.Interface && t.Parent == s.tmpl
}

func (s *syncer) run() error {
	s.prune()
	s.dropOrphanLinks()
	if err := s.grow(); err != nil {
		return err
	}
	if s.dirty || s.model.HasValueChanged(props.H(s.tmpl, graph.FieldChildren)) {
		tn, _ := s.store.Get(s.tmpl)
		if err := s.doc.ReplaceChildren(s.inst, s.translateList(tn.Children)); err != nil {
			return err
		}
	}
	if err := s.updateValues(); err != nil {
		return err
	}
	s.syncLinks()
	return nil
}

// prune deletes instance nodes whose template counterpart is gone.
func (s *syncer) prune() {
	var doomed []string
	for _, i := range s.store.Descendants(s.inst) {
		if _, ok := s.toTemplate(i); !ok {
			doomed = append(doomed, i)
		}
	}
	if len(doomed) > 0 {
		s.doc.DeleteSubtrees(doomed)
	}
}

// dropOrphanLinks removes links inside the instance that the template does
// not have. Links ending on top-level interface objects belong to the user.
func (s *syncer) dropOrphanLinks() {
	for _, l := range s.store.LinksEndingIn(s.store.Descendants(s.inst)) {
		end, _ := s.store.Get(l.End.Node)
		if end.Interface && end.Parent == s.inst {
			continue
		}
		t, ok := s.toTemplate(l.End.Node)
		if !ok {
			continue
		}
		tEnd := props.Handle{Node: t, Path: l.End.Path}
		if s.store.LinkEndingAt(tEnd) != nil {
			continue
		}
		s.doc.DropLink(l.ID)
		s.refresh = append(s.refresh, tEnd)
	}
}

// grow creates the instance counterparts the template has and the instance
// lacks. Parents come before children since tSub is pre-order.
func (s *syncer) grow() error {
	for _, t := range s.tSub {
		i := s.toInst[t]
		if s.store.Has(i) {
			if !s.store.IsAncestor(s.inst, i) {
				return fmt.Errorf("counterpart %s of %s lies outside instance %s: %w", i, t, s.inst, ErrInvariant)
			}
			continue
		}
		tn, _ := s.store.Get(t)
		propsCopy := tn.Props.Clone()
		propsCopy.TranslateRefs(s.translate)
		n := &graph.Node{
			ID:        i,
			Kind:      tn.Kind,
			TypeName:  tn.TypeName,
			Parent:    s.translate(tn.Parent),
			Children:  s.translateList(tn.Children),
			Template:  s.translate(tn.Template),
			Interface: tn.Interface,
			External:  tn.External,
			Props:     propsCopy,
		}
		if err := s.doc.CreateGenerated(n); err != nil {
			return fmt.Errorf("create counterpart of %s: %v: %w", t, err, ErrInvariant)
		}
		s.created = append(s.created, i)
		s.isNew[i] = true
	}
	return nil
}

func (s *syncer) updateValues() error {
	if s.dirty {
		for _, t := range s.tSub {
			if s.isNew[s.toInst[t]] {
				continue
			}
			if err := s.updateNode(t); err != nil {
				return err
			}
		}
		return nil
	}

	var handles []props.Handle
	for _, h := range s.model.ChangedValues() {
		if h.Node == s.tmpl {
			continue
		}
		if _, ok := s.toInst[h.Node]; ok {
			handles = append(handles, h)
		}
	}
	handles = append(handles, s.refresh...)
	for _, h := range handles {
		if s.isNew[s.toInst[h.Node]] || !s.store.Has(h.Node) {
			continue
		}
		if err := s.updateHandle(h); err != nil {
			return err
		}
	}
	return nil
}

// updateNode copies every property, the child list and the template
// reference of template node t onto its counterpart.
func (s *syncer) updateNode(t string) error {
	tn, _ := s.store.Get(t)
	i := s.toInst[t]
	if err := s.copyValue(tn, nil); err != nil {
		return err
	}
	if err := s.doc.ReplaceChildren(i, s.translateList(tn.Children)); err != nil {
		return err
	}
	return s.doc.AssignTemplate(i, s.translate(tn.Template))
}

func (s *syncer) updateHandle(h props.Handle) error {
	tn, _ := s.store.Get(h.Node)
	i := s.toInst[h.Node]
	switch h.Top() {
	case "":
		return s.updateNode(h.Node)
	case graph.FieldChildren:
		return s.doc.ReplaceChildren(i, s.translateList(tn.Children))
	case graph.FieldTemplate:
		return s.doc.AssignTemplate(i, s.translate(tn.Template))
	}
	// Copy from the deepest part of the path that still exists.
	p := h.Path
	for len(p) > 0 {
		if _, ok := tn.Props.Lookup(p); ok {
			break
		}
		p = p[:len(p)-1]
	}
	return s.copyValue(tn, p)
}

// copyValue updates the counterpart's property at path from the template.
// Top-level interface objects keep their user values: only structure flows
// into them, except for the name.
func (s *syncer) copyValue(tn *graph.Node, path props.Path) error {
	i := s.toInst[tn.ID]
	src, ok := tn.Props.Lookup(path)
	if !ok {
		return nil
	}
	opts := props.UpdateOptions{Translate: s.translate}
	if s.interfaceTop(tn) && (len(path) == 0 || path[0] != graph.FieldName) {
		opts.StructureOnly = true
	}
	if _, err := s.doc.ApplyValue(props.Handle{Node: i, Path: slices.Clone(path)}, src, opts); err != nil {
		return err
	}
	if opts.StructureOnly && len(path) == 0 {
		if name := tn.Props.Get(graph.FieldName); name != nil {
			_, err := s.doc.ApplyValue(props.H(i, graph.FieldName), name, props.UpdateOptions{})
			return err
		}
	}
	return nil
}

// syncLinks mirrors the template's links that end inside it.
func (s *syncer) syncLinks() {
	for _, l := range s.store.LinksEndingIn(s.tSub) {
		tEnd, _ := s.store.Get(l.End.Node)
		i := s.toInst[tEnd.ID]
		if s.interfaceTop(tEnd) && !s.isNew[i] {
			continue
		}
		want := graph.Descriptor{
			Start: props.Handle{Node: s.translate(l.Start.Node), Path: l.Start.Path},
			End:   props.Handle{Node: i, Path: l.End.Path},
			Valid: l.Valid,
			Weak:  l.Weak,
		}
		cur := s.store.LinkEndingAt(want.End)
		switch {
		case cur == nil:
			s.doc.PutLink(want)
		case !cur.Start.Equal(want.Start) || cur.Weak != want.Weak:
			s.doc.DropLink(cur.ID)
			s.doc.PutLink(want)
		case cur.Valid != want.Valid:
			s.doc.SetLinkValidity(cur.ID, want.Valid)
		}
	}
}

// backPropagate adds interface properties the user added on the instance's
// top-level interface objects to the template, keeping template values.
func (s *syncer) backPropagate() error {
	in, err := s.store.Get(s.inst)
	if err != nil {
		return err
	}
	back := func(id string) string {
		if t, ok := s.toTemplate(id); ok {
			return t
		}
		return id
	}
	for _, c := range in.Children {
		cn, err := s.store.Get(c)
		if err != nil || !cn.Interface {
			continue
		}
		t, ok := s.toTemplate(c)
		if !ok || !s.store.Has(t) {
			continue
		}
		opts := props.UpdateOptions{Translate: back, MissingOnly: true}
		if _, err := s.doc.ApplyValue(props.H(t), cn.Props, opts); err != nil {
			return err
		}
	}
	return nil
}

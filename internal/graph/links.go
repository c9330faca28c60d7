package graph

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/stencil/internal/props"
)

// Link connects a start property to an end property.
type Link struct {
	ID    uint32
	Start props.Handle
	End   props.Handle
	Valid bool
	Weak  bool
}

// Descriptor is the value form of a link, used in change sets.
type Descriptor struct {
	Start props.Handle
	End   props.Handle
	Valid bool
	Weak  bool
}

// Key identifies a link by its endpoints.
func (d Descriptor) Key() string { return d.Start.Key() + "\x1e" + d.End.Key() }

func (d Descriptor) String() string {
	arrow := "->"
	if d.Weak {
		arrow = "~>"
	}
	s := fmt.Sprintf("%s %s %s", d.Start, arrow, d.End)
	if !d.Valid {
		s += " (invalid)"
	}
	return s
}

func (l *Link) Descriptor() Descriptor {
	return Descriptor{Start: l.Start, End: l.End, Valid: l.Valid, Weak: l.Weak}
}

// AddLink inserts a link and indexes both endpoints.
// Callers enforce the one-link-per-end-handle rule.
func (s *Store) AddLink(d Descriptor) *Link {
	l := &Link{ID: s.nextLinkID, Start: d.Start, End: d.End, Valid: d.Valid, Weak: d.Weak}
	s.nextLinkID++
	s.links[l.ID] = l
	bitmapFor(s.byStart, l.Start.Node).Add(l.ID)
	bitmapFor(s.byEnd, l.End.Node).Add(l.ID)
	return l
}

func bitmapFor(m map[string]*roaring.Bitmap, key string) *roaring.Bitmap {
	bm, ok := m[key]
	if !ok {
		bm = roaring.New()
		m[key] = bm
	}
	return bm
}

func (s *Store) RemoveLink(id uint32) (*Link, bool) {
	l, ok := s.links[id]
	if !ok {
		return nil, false
	}
	delete(s.links, id)
	unindex(s.byStart, l.Start.Node, id)
	unindex(s.byEnd, l.End.Node, id)
	return l, true
}

func unindex(m map[string]*roaring.Bitmap, key string, id uint32) {
	if bm, ok := m[key]; ok {
		bm.Remove(id)
		if bm.IsEmpty() {
			delete(m, key)
		}
	}
}

func (s *Store) Link(id uint32) (*Link, bool) {
	l, ok := s.links[id]
	return l, ok
}

// Links returns every link ordered by ID.
func (s *Store) Links() []*Link {
	all := roaring.New()
	for id := range s.links {
		all.Add(id)
	}
	return s.collect(all)
}

func (s *Store) collect(bm *roaring.Bitmap) []*Link {
	if bm == nil {
		return nil
	}
	out := make([]*Link, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		if l, ok := s.links[it.Next()]; ok {
			out = append(out, l)
		}
	}
	return out
}

// LinksFrom returns links starting on node.
func (s *Store) LinksFrom(node string) []*Link { return s.collect(s.byStart[node]) }

// LinksTo returns links ending on node.
func (s *Store) LinksTo(node string) []*Link { return s.collect(s.byEnd[node]) }

// LinksTouching returns links starting or ending on any of the given nodes.
func (s *Store) LinksTouching(nodes ...string) []*Link {
	bm := roaring.New()
	for _, n := range nodes {
		if b, ok := s.byStart[n]; ok {
			bm.Or(b)
		}
		if b, ok := s.byEnd[n]; ok {
			bm.Or(b)
		}
	}
	return s.collect(bm)
}

// LinksEndingIn returns links whose end node is any of the given nodes.
func (s *Store) LinksEndingIn(nodes []string) []*Link {
	bm := roaring.New()
	for _, n := range nodes {
		if b, ok := s.byEnd[n]; ok {
			bm.Or(b)
		}
	}
	return s.collect(bm)
}

// LinkEndingAt returns the link terminating exactly on h.
func (s *Store) LinkEndingAt(h props.Handle) *Link {
	for _, l := range s.LinksTo(h.Node) {
		if l.End.Equal(h) {
			return l
		}
	}
	return nil
}

// LinksEndingBelow returns links whose end lies on h or below it.
func (s *Store) LinksEndingBelow(h props.Handle) []*Link {
	var out []*Link
	for _, l := range s.LinksTo(h.Node) {
		if h.Contains(l.End) {
			out = append(out, l)
		}
	}
	return out
}

// LinksOverlapping returns links with an endpoint above, on or below h.
func (s *Store) LinksOverlapping(h props.Handle) []*Link {
	var out []*Link
	for _, l := range s.LinksTouching(h.Node) {
		if l.Start.Overlaps(h) || l.End.Overlaps(h) {
			out = append(out, l)
		}
	}
	return out
}

// CreatesLoop reports whether a strong link from start to end would close
// a cycle over the node graph induced by existing strong links.
func (s *Store) CreatesLoop(start, end string) bool {
	if start == end {
		return true
	}
	visited := make(map[string]struct{})
	stack := []string{end}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == start {
			return true
		}
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		for _, l := range s.LinksFrom(cur) {
			if !l.Weak {
				stack = append(stack, l.End.Node)
			}
		}
	}
	return false
}

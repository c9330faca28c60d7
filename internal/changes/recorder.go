// Package changes accumulates the graph mutations of one edit batch.
package changes

import (
	"github.com/agentic-research/stencil/internal/graph"
	"github.com/agentic-research/stencil/internal/props"
)

// Sink receives mutation events.
type Sink interface {
	RecordCreate(id string)
	RecordDelete(id string)
	RecordValueChanged(h props.Handle)
	RecordLinkAdded(d graph.Descriptor)
	RecordLinkRemoved(d graph.Descriptor)
	RecordLinkValidityChanged(d graph.Descriptor)
	RecordErrorChanged(id string)
}

// orderedSet keeps first-insertion order.
type orderedSet struct {
	idx  map[string]int
	keys []string
}

func (s *orderedSet) add(k string) bool {
	if s.idx == nil {
		s.idx = make(map[string]int)
	}
	if _, ok := s.idx[k]; ok {
		return false
	}
	s.idx[k] = len(s.keys)
	s.keys = append(s.keys, k)
	return true
}

func (s *orderedSet) has(k string) bool {
	_, ok := s.idx[k]
	return ok
}

func (s *orderedSet) remove(k string) bool {
	i, ok := s.idx[k]
	if !ok {
		return false
	}
	delete(s.idx, k)
	s.keys = append(s.keys[:i], s.keys[i+1:]...)
	for j := i; j < len(s.keys); j++ {
		s.idx[s.keys[j]] = j
	}
	return true
}

func (s *orderedSet) list() []string { return append([]string(nil), s.keys...) }

// linkLog is a set of link descriptors keyed by endpoints.
type linkLog struct {
	order orderedSet
	byKey map[string]graph.Descriptor
}

func (l *linkLog) put(d graph.Descriptor) {
	if l.byKey == nil {
		l.byKey = make(map[string]graph.Descriptor)
	}
	l.order.add(d.Key())
	l.byKey[d.Key()] = d
}

func (l *linkLog) get(key string) (graph.Descriptor, bool) {
	d, ok := l.byKey[key]
	return d, ok
}

func (l *linkLog) remove(key string) bool {
	if !l.order.remove(key) {
		return false
	}
	delete(l.byKey, key)
	return true
}

func (l *linkLog) list() []graph.Descriptor {
	out := make([]graph.Descriptor, 0, len(l.order.keys))
	for _, k := range l.order.keys {
		out = append(out, l.byKey[k])
	}
	return out
}

// Recorder is the write-only log of one batch. Value changes are normalized
// by containment: recording a handle below an already recorded handle is a
// no-op, and recording an ancestor subsumes its recorded descendants.
type Recorder struct {
	created orderedSet
	deleted orderedSet
	values  map[string][]props.Handle // node → recorded paths
	nodes   orderedSet                // nodes with value changes
	added   linkLog
	removed linkLog
	valid   linkLog
	errors  orderedSet
}

func NewRecorder() *Recorder { return &Recorder{} }

var _ Sink = (*Recorder)(nil)

func (r *Recorder) RecordCreate(id string) {
	r.deleted.remove(id)
	r.created.add(id)
}

func (r *Recorder) RecordDelete(id string) {
	r.dropValues(id)
	r.errors.remove(id)
	if r.created.remove(id) {
		return
	}
	r.deleted.add(id)
}

func (r *Recorder) dropValues(id string) {
	if r.values != nil {
		delete(r.values, id)
	}
	r.nodes.remove(id)
}

func (r *Recorder) RecordValueChanged(h props.Handle) {
	if r.values == nil {
		r.values = make(map[string][]props.Handle)
	}
	cur := r.values[h.Node]
	for _, have := range cur {
		if have.Contains(h) {
			return
		}
	}
	kept := cur[:0]
	for _, have := range cur {
		if !h.Contains(have) {
			kept = append(kept, have)
		}
	}
	h.Path = append(props.Path(nil), h.Path...)
	r.values[h.Node] = append(kept, h)
	r.nodes.add(h.Node)
}

func (r *Recorder) RecordLinkAdded(d graph.Descriptor) {
	r.added.put(d)
	r.valid.remove(d.Key())
}

func (r *Recorder) RecordLinkRemoved(d graph.Descriptor) {
	key := d.Key()
	r.valid.remove(key)
	if r.added.remove(key) {
		return
	}
	r.removed.put(d)
}

func (r *Recorder) RecordLinkValidityChanged(d graph.Descriptor) {
	key := d.Key()
	if add, ok := r.added.get(key); ok {
		add.Valid = d.Valid
		r.added.put(add)
		return
	}
	r.valid.put(d)
}

func (r *Recorder) RecordErrorChanged(id string) { r.errors.add(id) }

// Merge replays other's events into r.
func (r *Recorder) Merge(other *Recorder) {
	for _, id := range other.deleted.keys {
		r.RecordDelete(id)
	}
	for _, id := range other.created.keys {
		r.RecordCreate(id)
	}
	for _, h := range other.ChangedValues() {
		r.RecordValueChanged(h)
	}
	for _, d := range other.removed.list() {
		r.RecordLinkRemoved(d)
	}
	for _, d := range other.added.list() {
		r.RecordLinkAdded(d)
	}
	for _, d := range other.valid.list() {
		r.RecordLinkValidityChanged(d)
	}
	for _, id := range other.errors.keys {
		r.RecordErrorChanged(id)
	}
}

// Release hands out the accumulated events and resets r.
func (r *Recorder) Release() *Recorder {
	out := *r
	*r = Recorder{}
	return &out
}

func (r *Recorder) Reset() { *r = Recorder{} }

func (r *Recorder) Empty() bool {
	return len(r.created.keys) == 0 && len(r.deleted.keys) == 0 && len(r.nodes.keys) == 0 &&
		len(r.added.order.keys) == 0 && len(r.removed.order.keys) == 0 &&
		len(r.valid.order.keys) == 0 && len(r.errors.keys) == 0
}

func (r *Recorder) Created() []string    { return r.created.list() }
func (r *Recorder) Deleted() []string    { return r.deleted.list() }
func (r *Recorder) ErrorNodes() []string { return r.errors.list() }

func (r *Recorder) WasCreated(id string) bool { return r.created.has(id) }
func (r *Recorder) WasDeleted(id string) bool { return r.deleted.has(id) }

// ChangedValues lists recorded handles grouped by node in first-change order.
func (r *Recorder) ChangedValues() []props.Handle {
	var out []props.Handle
	for _, n := range r.nodes.keys {
		out = append(out, r.values[n]...)
	}
	return out
}

// HasValueChanged reports whether h or one of its ancestors was recorded.
func (r *Recorder) HasValueChanged(h props.Handle) bool {
	for _, have := range r.values[h.Node] {
		if have.Contains(h) {
			return true
		}
	}
	return false
}

// ValueChangedBelow reports whether h, an ancestor or a descendant of h was recorded.
func (r *Recorder) ValueChangedBelow(h props.Handle) bool {
	for _, have := range r.values[h.Node] {
		if have.Overlaps(h) {
			return true
		}
	}
	return false
}

func (r *Recorder) AddedLinks() []graph.Descriptor           { return r.added.list() }
func (r *Recorder) RemovedLinks() []graph.Descriptor         { return r.removed.list() }
func (r *Recorder) ValidityChangedLinks() []graph.Descriptor { return r.valid.list() }

// AllChangedObjects returns created nodes, nodes with value changes and,
// optionally, the start and/or end nodes of changed links.
func (r *Recorder) AllChangedObjects(linkStart, linkEnd bool) []string {
	var set orderedSet
	for _, id := range r.created.keys {
		set.add(id)
	}
	for _, id := range r.nodes.keys {
		set.add(id)
	}
	for _, log := range []*linkLog{&r.added, &r.removed, &r.valid} {
		for _, d := range log.list() {
			if linkStart {
				set.add(d.Start.Node)
			}
			if linkEnd {
				set.add(d.End.Node)
			}
		}
	}
	return set.list()
}

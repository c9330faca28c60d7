package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/stencil/internal/props"
)

var (
	ErrNotFound  = errors.New("node not found")
	ErrDuplicate = errors.New("node already exists")
)

// NodeKind is the closed set of node variants.
type NodeKind uint8

const (
	KindObject NodeKind = iota
	KindTemplate
	KindInstance
)

func (k NodeKind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindTemplate:
		return "template"
	case KindInstance:
		return "instance"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of NodeKind.String. The empty string is an object.
func ParseKind(s string) (NodeKind, error) {
	switch s {
	case "", "object":
		return KindObject, nil
	case "template":
		return KindTemplate, nil
	case "instance":
		return KindInstance, nil
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// Reserved paths. They are recorded as value changes like any property,
// but children and template live on the Node itself.
const (
	FieldName     = "name"
	FieldChildren = "children"
	FieldTemplate = "template"
)

// IsReserved reports whether a top-level property name is owned by the node
// rather than by the user.
func IsReserved(name string) bool {
	return name == FieldName || name == FieldChildren || name == FieldTemplate
}

// Node is one object of the document.
type Node struct {
	ID       string
	Kind     NodeKind
	TypeName string // key into the capability table
	Parent   string // back-reference, "" for roots
	Children []string
	Template string // instances only, "" when unset
	// Interface marks an override point: inside an instance its values
	// survive propagation.
	Interface bool
	// External instances are owned by another document and never synchronized.
	External bool
	Props    *props.Value // root struct, always holds FieldName

	intID uint32
}

// NewNode builds a detached node with an empty property tree.
func NewNode(id string, kind NodeKind, typeName, name string) *Node {
	return &Node{
		ID:       id,
		Kind:     kind,
		TypeName: typeName,
		Props:    props.NewStruct(props.Field{Name: FieldName, Value: props.String(name)}),
	}
}

func (n *Node) Name() string {
	if v := n.Props.Get(FieldName); v != nil {
		return v.AsString()
	}
	return ""
}

// Store is the arena holding every node and link of a document, keyed by ID.
// Parent/child ownership is stored on the nodes; the template→instances and
// link indexes are derived and rebuilt from forward references.
//
// Store is not safe for concurrent use; the owning document serializes access.
type Store struct {
	nodes map[string]*Node
	seq   map[string]uint64 // insertion order
	next  uint64

	// template ID → instance IDs, derived from Node.Template
	instances map[string]map[string]struct{}

	// Roaring bitmap index: node internal ID ↔ string ID, plus link indexes.
	nodeIntID   map[string]uint32
	intToNodeID []string
	nextIntID   uint32

	links      map[uint32]*Link
	nextLinkID uint32
	byStart    map[string]*roaring.Bitmap // start node → link IDs
	byEnd      map[string]*roaring.Bitmap // end node → link IDs
}

func NewStore() *Store {
	return &Store{
		nodes:     make(map[string]*Node),
		seq:       make(map[string]uint64),
		instances: make(map[string]map[string]struct{}),
		nodeIntID: make(map[string]uint32),
		links:     make(map[uint32]*Link),
		byStart:   make(map[string]*roaring.Bitmap),
		byEnd:     make(map[string]*roaring.Bitmap),
	}
}

// Add inserts a node. Its parent must already be present or be "".
// Add does not touch the parent's child list.
func (s *Store) Add(n *Node) error {
	if _, ok := s.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, n.ID)
	}
	if n.Parent != "" {
		if _, ok := s.nodes[n.Parent]; !ok {
			return fmt.Errorf("parent of %s: %w", n.ID, ErrNotFound)
		}
	}
	if n.Props == nil {
		n.Props = props.NewStruct(props.Field{Name: FieldName, Value: props.String("")})
	}
	s.nodes[n.ID] = n
	s.seq[n.ID] = s.next
	s.next++
	s.indexNode(n)
	if n.Template != "" {
		s.indexInstance(n.ID, n.Template)
	}
	return nil
}

// indexNode assigns an internal bitmap ID.
func (s *Store) indexNode(n *Node) {
	if id, ok := s.nodeIntID[n.ID]; ok {
		n.intID = id
		return
	}
	n.intID = s.nextIntID
	s.nextIntID++
	s.nodeIntID[n.ID] = n.intID
	for uint32(len(s.intToNodeID)) <= n.intID {
		s.intToNodeID = append(s.intToNodeID, "")
	}
	s.intToNodeID[n.intID] = n.ID
}

func (s *Store) indexInstance(inst, tmpl string) {
	set, ok := s.instances[tmpl]
	if !ok {
		set = make(map[string]struct{})
		s.instances[tmpl] = set
	}
	set[inst] = struct{}{}
}

func (s *Store) unindexInstance(inst, tmpl string) {
	if set, ok := s.instances[tmpl]; ok {
		delete(set, inst)
		if len(set) == 0 {
			delete(s.instances, tmpl)
		}
	}
}

// Remove drops a single node. Links and child lists are left to the caller.
func (s *Store) Remove(id string) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	if n.Template != "" {
		s.unindexInstance(id, n.Template)
	}
	delete(s.nodes, id)
	delete(s.seq, id)
	delete(s.nodeIntID, id)
	s.intToNodeID[n.intID] = ""
}

func (s *Store) Get(id string) (*Node, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n, nil
}

func (s *Store) Has(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

func (s *Store) Len() int { return len(s.nodes) }

// SetTemplate updates an instance's forward reference and the derived index.
func (s *Store) SetTemplate(id, tmpl string) error {
	n, err := s.Get(id)
	if err != nil {
		return err
	}
	if n.Template != "" {
		s.unindexInstance(id, n.Template)
	}
	n.Template = tmpl
	if tmpl != "" {
		s.indexInstance(id, tmpl)
	}
	return nil
}

// ReindexInstances rebuilds the template→instances index from scratch.
func (s *Store) ReindexInstances() {
	s.instances = make(map[string]map[string]struct{})
	for id, n := range s.nodes {
		if n.Template != "" {
			s.indexInstance(id, n.Template)
		}
	}
}

// Instances lists the instances referencing tmpl in insertion order.
func (s *Store) Instances(tmpl string) []string {
	set := s.instances[tmpl]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	s.SortByInsertion(out)
	return out
}

// SortByInsertion orders IDs by the time they were added to the store.
func (s *Store) SortByInsertion(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return s.seq[ids[i]] < s.seq[ids[j]] })
}

// Nodes returns every node in insertion order.
func (s *Store) Nodes() []*Node {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	s.SortByInsertion(ids)
	out := make([]*Node, len(ids))
	for i, id := range ids {
		out[i] = s.nodes[id]
	}
	return out
}

// Templates returns every template node in insertion order.
func (s *Store) Templates() []*Node {
	var out []*Node
	for _, n := range s.Nodes() {
		if n.Kind == KindTemplate {
			out = append(out, n)
		}
	}
	return out
}

// Roots returns parentless nodes in insertion order.
func (s *Store) Roots() []*Node {
	var out []*Node
	for _, n := range s.Nodes() {
		if n.Parent == "" {
			out = append(out, n)
		}
	}
	return out
}

// Descendants lists the subtree below id in pre-order, excluding id.
func (s *Store) Descendants(id string) []string {
	root, ok := s.nodes[id]
	if !ok {
		return nil
	}
	var out []string
	stack := reversed(root.Children)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := s.nodes[cur]
		if !ok {
			continue
		}
		out = append(out, cur)
		stack = append(stack, reversed(n.Children)...)
	}
	return out
}

func reversed(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

// IsAncestor reports whether anc is a strict ancestor of id.
func (s *Store) IsAncestor(anc, id string) bool {
	n, ok := s.nodes[id]
	for ok && n.Parent != "" {
		if n.Parent == anc {
			return true
		}
		n, ok = s.nodes[n.Parent]
	}
	return false
}

// ContainingTemplate returns the nearest template among id and its ancestors.
func (s *Store) ContainingTemplate(id string) string {
	return s.nearest(id, KindTemplate)
}

// ContainingInstance returns the nearest instance among id and its ancestors.
func (s *Store) ContainingInstance(id string) string {
	return s.nearest(id, KindInstance)
}

// EnclosingInstance is ContainingInstance of id's parent: the instance that
// generated id, if any.
func (s *Store) EnclosingInstance(id string) string {
	n, ok := s.nodes[id]
	if !ok || n.Parent == "" {
		return ""
	}
	return s.ContainingInstance(n.Parent)
}

func (s *Store) nearest(id string, kind NodeKind) string {
	n, ok := s.nodes[id]
	for ok {
		if n.Kind == kind {
			return n.ID
		}
		if n.Parent == "" {
			return ""
		}
		n, ok = s.nodes[n.Parent]
	}
	return ""
}

// SubtreeSet returns the internal IDs of the nodes below id as a bitmap,
// for cheap membership tests while a subtree is being rewritten.
func (s *Store) SubtreeSet(id string) *roaring.Bitmap {
	bm := roaring.New()
	for _, d := range s.Descendants(id) {
		bm.Add(s.nodes[d].intID)
	}
	return bm
}

// InSet reports whether the live node id is a member of bm.
func (s *Store) InSet(bm *roaring.Bitmap, id string) bool {
	n, ok := s.nodes[id]
	return ok && bm.Contains(n.intID)
}

// IDsOf maps a bitmap of internal IDs back to live node IDs.
func (s *Store) IDsOf(bm *roaring.Bitmap) []string {
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		i := it.Next()
		if int(i) < len(s.intToNodeID) && s.intToNodeID[i] != "" {
			out = append(out, s.intToNodeID[i])
		}
	}
	return out
}

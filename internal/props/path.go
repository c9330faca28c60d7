package props

import "strings"

// Path addresses a slot inside a property tree by field names or array indices.
type Path []string

// ParsePath splits a slash separated path. The empty string is the root path.
func ParsePath(s string) Path {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "/"))
}

func (p Path) String() string { return strings.Join(p, "/") }

// Child returns a new path extended by name. p is never aliased.
func (p Path) Child(name string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = name
	return out
}

// Join concatenates two paths into a fresh slice.
func (p Path) Join(q Path) Path {
	out := make(Path, 0, len(p)+len(q))
	out = append(out, p...)
	return append(out, q...)
}

func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether q is p or one of its ancestors.
func (p Path) HasPrefix(q Path) bool {
	return len(q) <= len(p) && p[:len(q)].Equal(q)
}

// Handle locates a property slot of one node. An empty path denotes the
// node's whole property tree.
type Handle struct {
	Node string
	Path Path
}

func H(node string, path ...string) Handle { return Handle{Node: node, Path: Path(path)} }

func (h Handle) String() string {
	if len(h.Path) == 0 {
		return h.Node
	}
	return h.Node + "/" + h.Path.String()
}

// Key is a map key that cannot collide for distinct handles.
func (h Handle) Key() string {
	return h.Node + "\x00" + strings.Join(h.Path, "\x1f")
}

func (h Handle) Equal(o Handle) bool { return h.Node == o.Node && h.Path.Equal(o.Path) }

// Contains reports whether o is h or lies below h.
func (h Handle) Contains(o Handle) bool {
	return h.Node == o.Node && o.Path.HasPrefix(h.Path)
}

// Overlaps is true when either handle contains the other.
func (h Handle) Overlaps(o Handle) bool { return h.Contains(o) || o.Contains(h) }

// Top returns the first path segment, or "" for a whole-node handle.
func (h Handle) Top() string {
	if len(h.Path) == 0 {
		return ""
	}
	return h.Path[0]
}

package nfsmount

import (
	"encoding/json"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/graph"
)

const (
	documentFile = "_document.json"
	nodeFile     = "node.json"
	propsFile    = "props.json"
)

type entry struct {
	dir      bool
	data     []byte
	children []string // absolute paths, in document order
}

// Snapshot is an immutable file tree rendered from a document. Each node is
// a directory holding node.json and props.json plus one directory per child.
type Snapshot struct {
	entries map[string]*entry
	at      time.Time
}

type nodeInfo struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Type        string   `json:"type,omitempty"`
	Template    string   `json:"template,omitempty"`
	Interface   bool     `json:"interface,omitempty"`
	External    bool     `json:"external,omitempty"`
	Generated   bool     `json:"generated,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
	LinksIn     []string `json:"links_in,omitempty"`
}

// Build renders doc. The caller holds the document.
func Build(doc *document.Document) (*Snapshot, error) {
	s := &Snapshot{entries: make(map[string]*entry), at: time.Now()}
	root := &entry{dir: true}
	s.entries["/"] = root

	all, err := json.MarshalIndent(doc.Export(), "", "  ")
	if err != nil {
		return nil, err
	}
	s.addFile(root, "/"+documentFile, append(all, '\n'))

	store := doc.Store()
	paths := make(map[string]string)
	var place func(parent *entry, parentPath string, ids []string)
	place = func(parent *entry, parentPath string, ids []string) {
		for _, id := range ids {
			n, err := store.Get(id)
			if err != nil {
				continue
			}
			p := s.freePath(parentPath, dirName(n))
			paths[id] = p
			e := &entry{dir: true}
			s.entries[p] = e
			parent.children = append(parent.children, p)
			place(e, p, n.Children)
		}
	}
	var roots []string
	for _, n := range store.Roots() {
		roots = append(roots, n.ID)
	}
	place(root, "/", roots)

	for id, p := range paths {
		n, _ := store.Get(id)
		info := nodeInfo{
			ID:        n.ID,
			Kind:      n.Kind.String(),
			Type:      n.TypeName,
			Interface: n.Interface,
			External:  n.External,
			Generated: doc.Generated(n.ID),
		}
		if n.Template != "" {
			info.Template = paths[n.Template]
		}
		for _, d := range doc.Diagnostics().For(id) {
			info.Diagnostics = append(info.Diagnostics, d.String())
		}
		for _, l := range store.LinksTo(id) {
			info.LinksIn = append(info.LinksIn, l.Descriptor().String())
		}
		meta, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return nil, err
		}
		body, err := json.MarshalIndent(n.Props.Interface(), "", "  ")
		if err != nil {
			return nil, err
		}
		e := s.entries[p]
		// Files come before the child directories.
		kids := e.children
		e.children = nil
		s.addFile(e, path.Join(p, nodeFile), append(meta, '\n'))
		s.addFile(e, path.Join(p, propsFile), append(body, '\n'))
		e.children = append(e.children, kids...)
	}
	return s, nil
}

func (s *Snapshot) addFile(parent *entry, p string, data []byte) {
	s.entries[p] = &entry{data: data}
	parent.children = append(parent.children, p)
}

// freePath picks a name under parent that no sibling or reserved file uses.
func (s *Snapshot) freePath(parent, name string) string {
	p := path.Join(parent, name)
	for i := 2; ; i++ {
		base := path.Base(p)
		if _, taken := s.entries[p]; !taken && base != nodeFile && base != propsFile && base != documentFile {
			return p
		}
		p = path.Join(parent, name+"~"+strconv.Itoa(i))
	}
}

func dirName(n *graph.Node) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == 0 {
			return '_'
		}
		return r
	}, n.Name())
	if name == "" || name == "." || name == ".." {
		return n.ID
	}
	return name
}

func (s *Snapshot) lookup(p string) (*entry, bool) {
	e, ok := s.entries[p]
	return e, ok
}

// Package scene builds documents from YAML scene files.
package scene

import (
	"fmt"
	"math"
	"strings"

	"github.com/agentic-research/stencil/api"
	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/graph"
	"github.com/agentic-research/stencil/internal/props"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Parse decodes a scene file.
func Parse(data []byte) (*api.Scene, error) {
	var sc api.Scene
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	return &sc, nil
}

// ReadFile reads and parses the scene at path.
func ReadFile(fs afero.Fs, path string) (*api.Scene, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

type pendingRef struct {
	h      props.Handle
	target string
}

type loader struct {
	doc    *document.Document
	result *multierror.Error
	refs   []pendingRef
	insts  [][2]string // instance ID, template path
}

func (l *loader) fail(format string, args ...any) {
	l.result = multierror.Append(l.result, fmt.Errorf(format, args...))
}

// Load creates the scene's nodes in doc through the checked operations,
// calls settle (normally a propagation pass) so that instance content
// exists, and then creates the links. Every problem is collected; a node
// that fails is skipped together with its subtree.
func Load(doc *document.Document, sc *api.Scene, settle func() error) error {
	l := &loader{doc: doc}
	for i := range sc.Nodes {
		l.create("", "", &sc.Nodes[i])
	}

	for _, in := range l.insts {
		tmpl, err := ResolveNode(doc.Store(), in[1])
		if err != nil {
			l.fail("instance %s: template: %w", in[0], err)
			continue
		}
		if err := doc.SetTemplate(in[0], tmpl); err != nil {
			l.fail("instance %s: %w", in[0], err)
		}
	}
	for _, r := range l.refs {
		id, err := ResolveNode(doc.Store(), r.target)
		if err != nil {
			l.fail("reference %s: %w", r.h, err)
			continue
		}
		if err := doc.SetValue(r.h, props.RefTo(id)); err != nil {
			l.fail("reference %s: %w", r.h, err)
		}
	}

	if settle != nil {
		if err := settle(); err != nil {
			return multierror.Append(l.result, err)
		}
	}

	for _, lk := range sc.Links {
		start, err := ResolveHandle(doc.Store(), lk.Start)
		if err != nil {
			l.fail("link %s -> %s: %w", lk.Start, lk.End, err)
			continue
		}
		end, err := ResolveHandle(doc.Store(), lk.End)
		if err != nil {
			l.fail("link %s -> %s: %w", lk.Start, lk.End, err)
			continue
		}
		if _, err := doc.AddLink(start, end, lk.Weak); err != nil {
			l.fail("link %s -> %s: %w", lk.Start, lk.End, err)
		}
	}
	return l.result.ErrorOrNil()
}

func (l *loader) create(parent, parentPath string, n *api.Node) {
	path := n.Name
	if parentPath != "" {
		path = parentPath + "/" + n.Name
	}
	kind, err := graph.ParseKind(n.Kind)
	if err != nil {
		l.fail("node %s: %w", path, err)
		return
	}
	if kind == graph.KindInstance && len(n.Children) > 0 {
		l.fail("node %s: instances cannot list children: %w", path, document.ErrConstraint)
		return
	}
	var fields []props.Field
	var refs []pendingRef
	for _, p := range n.Props {
		v, err := convert(p.Property, props.Path{p.Name}, &refs)
		if err != nil {
			l.fail("node %s: property %s: %w", path, p.Name, err)
			return
		}
		fields = append(fields, props.Field{Name: p.Name, Value: v})
	}
	node, err := l.doc.Create(document.NodeSpec{
		Parent:    parent,
		Kind:      kind,
		TypeName:  n.Type,
		Name:      n.Name,
		Interface: n.Interface,
		Props:     fields,
	})
	if err != nil {
		l.fail("node %s: %w", path, err)
		return
	}
	node.External = n.External
	for _, r := range refs {
		r.h.Node = node.ID
		l.refs = append(l.refs, r)
	}
	if n.Template != "" {
		if kind != graph.KindInstance {
			l.fail("node %s: only instances take a template: %w", path, document.ErrConstraint)
		} else {
			l.insts = append(l.insts, [2]string{node.ID, n.Template})
		}
	}
	for i := range n.Children {
		l.create(node.ID, path, &n.Children[i])
	}
}

func convert(p api.Property, at props.Path, refs *[]pendingRef) (*props.Value, error) {
	var v *props.Value
	switch strings.ToLower(p.Type) {
	case "array":
		v = props.NewArray()
		for i, item := range p.Items {
			c, err := convert(item, at.Child(fmt.Sprint(i)), refs)
			if err != nil {
				return nil, err
			}
			v.Append(c)
		}
	case "struct", "table":
		if strings.EqualFold(p.Type, "struct") {
			v = props.NewStruct()
		} else {
			v = props.NewTable()
		}
		for _, f := range p.Fields {
			if v.Get(f.Name) != nil {
				return nil, fmt.Errorf("duplicate field %q", f.Name)
			}
			c, err := convert(f.Property, at.Child(f.Name), refs)
			if err != nil {
				return nil, err
			}
			v.Set(f.Name, c)
		}
	case "ref":
		v = props.RefTo("")
		if p.Ref != "" {
			*refs = append(*refs, pendingRef{h: props.Handle{Path: at}, target: p.Ref})
		}
	default:
		k, err := props.ParseKind(p.Type)
		if err != nil {
			return nil, err
		}
		v, err = scalar(k, p.Value)
		if err != nil {
			return nil, err
		}
	}

	switch p.Link {
	case "":
	case "start":
		v.With(props.FlagLinkStart)
	case "end":
		v.With(props.FlagLinkEnd)
	case "both":
		v.With(props.FlagLinkStart | props.FlagLinkEnd)
	default:
		return nil, fmt.Errorf("unknown link role %q", p.Link)
	}
	if p.URI {
		v.With(props.FlagURI)
	}
	return v, nil
}

func scalar(k props.Kind, raw any) (*props.Value, error) {
	if raw == nil {
		return props.Zero(k), nil
	}
	bad := fmt.Errorf("%v is not a %s", raw, k)
	switch k {
	case props.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, bad
		}
		return props.Bool(b), nil
	case props.KindInt:
		n, ok := raw.(int)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, bad
		}
		return props.Int(int32(n)), nil
	case props.KindInt64:
		n, ok := raw.(int)
		if !ok {
			return nil, bad
		}
		return props.Int64(int64(n)), nil
	case props.KindDouble:
		switch f := raw.(type) {
		case float64:
			return props.Double(f), nil
		case int:
			return props.Double(float64(f)), nil
		}
		return nil, bad
	case props.KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, bad
		}
		return props.String(s), nil
	}
	return nil, fmt.Errorf("%s values need fields or items", k)
}

// ResolveNode finds a node by its slash-separated name path from a root.
// The first match wins when siblings share a name.
func ResolveNode(s *graph.Store, path string) (string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	var candidates []string
	for _, r := range s.Roots() {
		candidates = append(candidates, r.ID)
	}
	cur := ""
	for _, name := range parts {
		cur = ""
		for _, c := range candidates {
			n, err := s.Get(c)
			if err == nil && n.Name() == name {
				cur = c
				break
			}
		}
		if cur == "" {
			return "", fmt.Errorf("node %q: %w", path, document.ErrNotFound)
		}
		n, _ := s.Get(cur)
		candidates = n.Children
	}
	return cur, nil
}

// ResolveHandle parses "node/path#prop/path".
func ResolveHandle(s *graph.Store, ref string) (props.Handle, error) {
	node, prop, ok := strings.Cut(ref, "#")
	if !ok || prop == "" {
		return props.Handle{}, fmt.Errorf("property reference %q lacks #prop", ref)
	}
	id, err := ResolveNode(s, node)
	if err != nil {
		return props.Handle{}, err
	}
	return props.Handle{Node: id, Path: props.ParsePath(prop)}, nil
}

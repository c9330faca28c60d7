package document

import (
	"github.com/agentic-research/stencil/internal/graph"
	"github.com/agentic-research/stencil/internal/props"
)

// Hooks are the optional capabilities of a node type. A nil entry means the
// type does not intercept that event.
type Hooks struct {
	// AfterCreate runs once a node is live, for user-created and generated
	// nodes alike.
	AfterCreate func(d *Document, n *graph.Node)
	// AfterValueChanged runs after a property of the node changed.
	AfterValueChanged func(d *Document, h props.Handle)
}

// RegisterType installs the hooks for typeName, replacing earlier ones.
func (d *Document) RegisterType(typeName string, h Hooks) { d.hooks[typeName] = h }

func (d *Document) hooksFor(id string) (Hooks, *graph.Node) {
	n, err := d.store.Get(id)
	if err != nil {
		return Hooks{}, nil
	}
	return d.hooks[n.TypeName], n
}

// RunCreateHooks fires AfterCreate for each live node in ids.
func (d *Document) RunCreateHooks(ids []string) {
	for _, id := range ids {
		if h, n := d.hooksFor(id); n != nil && h.AfterCreate != nil {
			h.AfterCreate(d, n)
		}
	}
}

func (d *Document) afterValueChanged(h props.Handle) {
	if hk, n := d.hooksFor(h.Node); n != nil && hk.AfterValueChanged != nil {
		hk.AfterValueChanged(d, h)
	}
}

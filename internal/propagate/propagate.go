// Package propagate pushes template edits into every instance of the
// template, in dependency order, in a single pass.
package propagate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentic-research/stencil/internal/changes"
	"github.com/agentic-research/stencil/internal/depend"
	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/graph"
	"github.com/agentic-research/stencil/internal/props"
	"github.com/hashicorp/go-hclog"
)

// ErrInvariant reports a broken template/instance correspondence. It points
// at a bug or a corrupted document, never at a user edit.
var ErrInvariant = errors.New("propagation invariant violated")

// FileNotifier reloads file-backed properties of the given nodes.
type FileNotifier interface {
	Reload(doc *document.Document, ids []string) error
}

// Options control a propagation pass.
type Options struct {
	// Repair treats every instance as dirty and copies interface properties
	// that only exist on instances back into their templates.
	Repair bool
}

// Stats summarizes a pass.
type Stats struct {
	Templates int // templates considered
	Synced    int // instances synchronized
	Created   int
	Deleted   int
	Duration  time.Duration
}

type Propagator struct {
	doc   *document.Document
	log   hclog.Logger
	files FileNotifier
}

type Option func(*Propagator)

func WithLogger(l hclog.Logger) Option {
	return func(p *Propagator) { p.log = l }
}

// WithFiles sets the resolver told about created and changed nodes.
func WithFiles(f FileNotifier) Option {
	return func(p *Propagator) { p.files = f }
}

func New(doc *document.Document, opts ...Option) *Propagator {
	p := &Propagator{doc: doc, log: doc.Logger().Named("propagate")}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Propagate runs one pass over the changes accumulated in the document's
// model recorder. The caller holds the document (see Document.Do).
//
// Dirty checks read the live recorder, so changes made while synchronizing
// an inner template are seen when the templates embedding it come up.
func (p *Propagator) Propagate(ctx context.Context, opts Options) (Stats, error) {
	start := time.Now()
	var st Stats
	store := p.doc.Store()
	model := p.doc.Changes()

	order, err := depend.ProcessingOrder(store)
	if err != nil {
		return st, err
	}
	p.log.Debug("propagation pass", "templates", len(order), "repair", opts.Repair)

	counter := changes.NewRecorder()
	p.doc.Recorders().Add(counter)
	defer p.doc.Recorders().Remove(counter)

	p.clearDetached(opts.Repair)

	for _, tmpl := range order {
		st.Templates++
		tmplDirty := p.templateDirty(tmpl)
		instances := topLevelInstances(store, tmpl)

		if opts.Repair {
			for _, inst := range instances {
				if err := p.backPropagate(tmpl, inst); err != nil {
					return st, err
				}
			}
			tmplDirty = tmplDirty || p.templateDirty(tmpl)
		}

		for _, inst := range instances {
			if err := ctx.Err(); err != nil {
				return st, err
			}
			instDirty := opts.Repair || model.WasCreated(inst) ||
				model.HasValueChanged(props.H(inst, graph.FieldTemplate))
			if !tmplDirty && !instDirty {
				continue
			}
			synced, err := p.SyncInstance(tmpl, inst, instDirty)
			if err != nil {
				return st, fmt.Errorf("synchronize %s from %s: %w", inst, tmpl, err)
			}
			if synced {
				st.Synced++
			}
		}
	}

	st.Created = len(counter.Created())
	st.Deleted = len(counter.Deleted())
	st.Duration = time.Since(start)
	p.log.Info("propagation complete",
		"templates", st.Templates, "synced", st.Synced,
		"created", st.Created, "deleted", st.Deleted, "duration", st.Duration)
	return st, nil
}

// SyncInstance brings inst in line with tmpl. It reports false for external
// instances, which are left alone.
func (p *Propagator) SyncInstance(tmpl, inst string, dirty bool) (bool, error) {
	n, err := p.doc.Store().Get(inst)
	if err != nil {
		return false, err
	}
	if n.External {
		return false, nil
	}
	s, err := p.newSyncer(tmpl, inst, dirty)
	if err != nil {
		return false, err
	}

	local := changes.NewRecorder()
	p.doc.Recorders().Add(local)
	defer p.doc.Recorders().Remove(local)

	if err := s.run(); err != nil {
		return false, err
	}
	p.doc.RunCreateHooks(s.created)
	if p.files != nil {
		ids := local.AllChangedObjects(false, false)
		if err := p.files.Reload(p.doc, liveIDs(p.doc.Store(), ids)); err != nil {
			p.log.Warn("reloading files", "instance", inst, "error", err)
		}
	}
	p.log.Debug("synchronized instance", "template", tmpl, "instance", inst,
		"dirty", dirty, "created", len(s.created))
	return true, nil
}

func (p *Propagator) backPropagate(tmpl, inst string) error {
	s, err := p.newSyncer(tmpl, inst, false)
	if err != nil {
		return err
	}
	return s.backPropagate()
}

// templateDirty reports whether any changed object or changed link end
// lies inside tmpl.
func (p *Propagator) templateDirty(tmpl string) bool {
	store := p.doc.Store()
	for _, id := range p.doc.Changes().AllChangedObjects(true, true) {
		if store.Has(id) && store.ContainingTemplate(id) == tmpl {
			return true
		}
	}
	return false
}

// clearDetached drops generated content of top-level instances whose
// template was just cleared. In repair mode every template-less instance
// is emptied.
func (p *Propagator) clearDetached(repair bool) {
	store := p.doc.Store()
	var doomed []string
	for _, n := range store.Nodes() {
		if n.Kind != graph.KindInstance || n.Template != "" || len(n.Children) == 0 {
			continue
		}
		if store.EnclosingInstance(n.ID) != "" {
			continue
		}
		if repair || p.doc.Changes().HasValueChanged(props.H(n.ID, graph.FieldTemplate)) {
			doomed = append(doomed, n.Children...)
		}
	}
	if len(doomed) > 0 {
		p.log.Debug("clearing detached instances", "nodes", len(doomed))
		p.doc.DeleteSubtrees(doomed)
	}
}

// topLevelInstances lists instances of tmpl not nested inside another
// instance, in insertion order.
func topLevelInstances(s *graph.Store, tmpl string) []string {
	var out []string
	for _, inst := range s.Instances(tmpl) {
		if s.EnclosingInstance(inst) == "" {
			out = append(out, inst)
		}
	}
	return out
}

func liveIDs(s *graph.Store, ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if s.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

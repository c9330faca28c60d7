// Package document owns one object graph together with its link graph,
// change recorder and diagnostics, and exposes the mutators that keep them
// consistent.
//
// Checked operations (Create, SetValue, AddLink, ...) enforce structural
// constraints and reject a violating edit before anything is mutated. The
// unchecked primitives (CreateGenerated, ApplyValue, PutLink, ...) are what
// propagation uses to rewrite generated subtrees. Both paths report every
// mutation to the same multiplexer, so the change set of a batch is complete
// no matter who performed the edit.
package document

import (
	"errors"
	"sync"

	"github.com/agentic-research/stencil/internal/changes"
	"github.com/agentic-research/stencil/internal/depend"
	"github.com/agentic-research/stencil/internal/graph"
	"github.com/hashicorp/go-hclog"
)

var (
	ErrNotFound            = graph.ErrNotFound
	ErrConstraint          = errors.New("structural constraint violated")
	ErrReadOnly            = errors.New("property is read-only")
	ErrCyclicInstantiation = depend.ErrCyclicInstantiation
)

// Document is not safe for concurrent use. Callers that share one across
// goroutines serialize edit batches and propagation passes through Do.
type Document struct {
	mu sync.Mutex

	store *graph.Store
	model *changes.Recorder
	mux   *changes.Multiplexer
	diags *Diagnostics
	hooks map[string]Hooks
	log   hclog.Logger
}

type Option func(*Document)

func WithLogger(l hclog.Logger) Option {
	return func(d *Document) { d.log = l }
}

// WithHooks registers the capability table entries for node types.
func WithHooks(table map[string]Hooks) Option {
	return func(d *Document) {
		for k, v := range table {
			d.hooks[k] = v
		}
	}
}

func New(opts ...Option) *Document {
	d := &Document{
		store: graph.NewStore(),
		model: changes.NewRecorder(),
		diags: newDiagnostics(),
		hooks: make(map[string]Hooks),
		log:   hclog.NewNullLogger(),
	}
	d.mux = changes.NewMultiplexer(d.model)
	for _, o := range opts {
		o(d)
	}
	return d
}

// Do runs fn with exclusive access to the document.
func (d *Document) Do(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn()
}

func (d *Document) Store() *graph.Store { return d.store }

// Changes is the model recorder accumulating the current batch.
func (d *Document) Changes() *changes.Recorder { return d.model }

// Recorders is the multiplexer every mutation is reported to. Additional
// sinks (UI notification, a per-pass local recorder) register here.
func (d *Document) Recorders() *changes.Multiplexer { return d.mux }

func (d *Document) Diagnostics() *Diagnostics { return d.diags }

func (d *Document) Logger() hclog.Logger { return d.log }

func (d *Document) Node(id string) (*graph.Node, error) { return d.store.Get(id) }

// Release hands out the accumulated change set and starts a new batch.
func (d *Document) Release() *changes.Recorder { return d.model.Release() }

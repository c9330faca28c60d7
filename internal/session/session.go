// Package session keeps a loaded scene settled. Every edit runs as one
// serialized batch followed by a propagation pass.
package session

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/agentic-research/stencil/internal/assets"
	"github.com/agentic-research/stencil/internal/changes"
	"github.com/agentic-research/stencil/internal/config"
	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/journal"
	"github.com/agentic-research/stencil/internal/propagate"
	"github.com/agentic-research/stencil/internal/props"
	"github.com/agentic-research/stencil/internal/scene"
)

type Session struct {
	cfg     config.Config
	log     hclog.Logger
	path    string
	doc     *document.Document
	prop    *propagate.Propagator
	files   *assets.Resolver
	journal *journal.Journal // nil when not configured
}

type Option func(*options)

type options struct {
	fs    afero.Fs
	hooks map[string]document.Hooks
}

// WithFs reads the scene and its assets from fs instead of the OS.
func WithFs(fs afero.Fs) Option { return func(o *options) { o.fs = fs } }

func WithHooks(h map[string]document.Hooks) Option { return func(o *options) { o.hooks = h } }

// Open loads the scene at path and settles it with a repair pass.
func Open(ctx context.Context, path string, cfg config.Config, log hclog.Logger, opts ...Option) (*Session, error) {
	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	sc, err := scene.ReadFile(o.fs, path)
	if err != nil {
		return nil, err
	}

	base := cfg.AssetRoot
	if !filepath.IsAbs(base) {
		base = filepath.Join(filepath.Dir(path), base)
	}
	doc := document.New(document.WithLogger(log.Named("document")), document.WithHooks(o.hooks))
	files := assets.NewResolver(o.fs, base, log.Named("assets"))
	s := &Session{
		cfg:   cfg,
		log:   log,
		path:  path,
		doc:   doc,
		files: files,
		prop:  propagate.New(doc, propagate.WithLogger(log.Named("propagate")), propagate.WithFiles(files)),
	}
	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return nil, err
		}
		s.journal = j
	}

	var rec *changes.Recorder
	err = doc.Do(func() error {
		defer func() { rec = doc.Release() }()
		return scene.Load(doc, sc, func() error {
			if err := files.Reload(doc, allIDs(doc)); err != nil {
				return err
			}
			_, err := s.prop.Propagate(ctx, propagate.Options{Repair: true})
			return err
		})
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := s.commit(ctx, "load "+filepath.Base(path), rec); err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Info("scene loaded", "path", path, "nodes", doc.Store().Len(), "diagnostics", doc.Diagnostics().Len())
	return s, nil
}

func allIDs(doc *document.Document) []string {
	nodes := doc.Store().Nodes()
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func (s *Session) Close() error {
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}

func (s *Session) Path() string              { return s.path }
func (s *Session) Files() *assets.Resolver   { return s.files }
func (s *Session) Journal() *journal.Journal { return s.journal }
func (s *Session) Logger() hclog.Logger      { return s.log }

// View runs fn with the document held and no propagation afterwards.
func (s *Session) View(fn func(doc *document.Document) error) error {
	return s.doc.Do(func() error { return fn(s.doc) })
}

// Edit applies fn and propagates the result in the same critical section.
// The combined change set is journaled under label. When fn fails the
// propagation still runs so that partial edits are never left unsynced.
func (s *Session) Edit(ctx context.Context, label string, repair bool, fn func(doc *document.Document) error) (propagate.Stats, error) {
	var st propagate.Stats
	var editErr error
	var rec *changes.Recorder
	err := s.doc.Do(func() error {
		if fn != nil {
			editErr = fn(s.doc)
		}
		var err error
		st, err = s.prop.Propagate(ctx, propagate.Options{Repair: repair})
		if err != nil {
			return err
		}
		rec = s.doc.Release()
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("%s: %w", label, err)
	}
	if err := s.commit(ctx, label, rec); err != nil {
		return st, err
	}
	if editErr != nil {
		return st, fmt.Errorf("%s: %w", label, editErr)
	}
	return st, nil
}

// Check runs a repair pass and verifies the document.
func (s *Session) Check(ctx context.Context) (propagate.Stats, error) {
	st, err := s.Edit(ctx, "check", true, nil)
	if err != nil {
		return st, err
	}
	return st, s.View(func(doc *document.Document) error { return doc.Verify() })
}

// FilesChanged reloads the nodes that reference any of paths.
func (s *Session) FilesChanged(ctx context.Context, paths []string) (propagate.Stats, error) {
	return s.Edit(ctx, "files changed", s.cfg.Repair, func(doc *document.Document) error {
		var ids []string
		for _, p := range paths {
			ids = append(ids, s.files.Dependents(p)...)
		}
		s.log.Debug("reloading file dependents", "files", len(paths), "nodes", len(ids))
		return s.files.Reload(doc, ids)
	})
}

// commit journals the change set of one batch.
func (s *Session) commit(ctx context.Context, label string, rec *changes.Recorder) error {
	if s.journal == nil {
		return nil
	}
	id, err := s.journal.Append(ctx, label, rec)
	if err != nil {
		return fmt.Errorf("journal %s: %w", label, err)
	}
	if id != 0 {
		s.log.Debug("journaled pass", "label", label, "pass", id)
	}
	return nil
}

// SetScalar parses text as the kind of the property at ref and stores it.
func SetScalar(doc *document.Document, ref, text string) error {
	h, err := scene.ResolveHandle(doc.Store(), ref)
	if err != nil {
		return err
	}
	cur, err := doc.Value(h)
	if err != nil {
		return err
	}
	v, err := props.ParseScalar(cur.Kind, text)
	if err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}
	return doc.SetValue(h, v)
}

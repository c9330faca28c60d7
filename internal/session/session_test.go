package session

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/stencil/internal/config"
	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/props"
	"github.com/agentic-research/stencil/internal/scene"
)

const sceneYAML = `
version: "1"
nodes:
  - name: Blink
    kind: template
    children:
      - name: Params
        interface: true
        props:
          schema: {type: string, value: params.yaml, uri: true}
      - name: LED
        props:
          level: {type: double, value: 0.5}
  - name: Room
    children:
      - {name: lamp, kind: instance, template: Blink}
`

func openTest(t *testing.T) (*Session, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/scene.yaml", []byte(sceneYAML), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/proj/params.yaml", []byte("rate: double\n"), 0o644))
	cfg := config.Default()
	cfg.Journal = ":memory:"
	s, err := Open(context.Background(), "/proj/scene.yaml", cfg, hclog.NewNullLogger(), WithFs(fs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, fs
}

func inputs(t *testing.T, s *Session, path string) []string {
	t.Helper()
	var names []string
	require.NoError(t, s.View(func(doc *document.Document) error {
		id, err := scene.ResolveNode(doc.Store(), path)
		if err != nil {
			return err
		}
		v, err := doc.Value(props.H(id, "inputs"))
		if err != nil {
			return err
		}
		names = v.Names()
		return nil
	}))
	return names
}

func TestOpen_SettlesScene(t *testing.T) {
	s, _ := openTest(t)
	assert.Equal(t, []string{"rate"}, inputs(t, s, "Blink/Params"))
	assert.Equal(t, []string{"rate"}, inputs(t, s, "Room/lamp/Params"))

	passes, err := s.Journal().List(context.Background())
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, "load scene.yaml", passes[0].Label)
}

func TestFilesChanged_Propagates(t *testing.T) {
	s, fs := openTest(t)
	require.NoError(t, afero.WriteFile(fs, "/proj/params.yaml", []byte("rate: double\ngain: int\n"), 0o644))

	_, err := s.FilesChanged(context.Background(), []string{"/proj/params.yaml"})
	require.NoError(t, err)
	assert.Equal(t, []string{"rate", "gain"}, inputs(t, s, "Room/lamp/Params"))

	passes, err := s.Journal().List(context.Background())
	require.NoError(t, err)
	assert.Len(t, passes, 2)
}

func TestEdit(t *testing.T) {
	s, _ := openTest(t)
	ctx := context.Background()

	st, err := s.Edit(ctx, "set level", false, func(doc *document.Document) error {
		led, err := scene.ResolveNode(doc.Store(), "Blink/LED")
		if err != nil {
			return err
		}
		return doc.SetValue(props.H(led, "level"), props.Double(0.9))
	})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Synced)

	var level *props.Value
	require.NoError(t, s.View(func(doc *document.Document) error {
		id, err := scene.ResolveNode(doc.Store(), "Room/lamp/LED")
		if err != nil {
			return err
		}
		level, err = doc.Value(props.H(id, "level"))
		return err
	}))
	assert.Equal(t, 0.9, level.Scalar)

	_, err = s.Edit(ctx, "edit generated", false, func(doc *document.Document) error {
		id, _ := scene.ResolveNode(doc.Store(), "Room/lamp/LED")
		return doc.SetValue(props.H(id, "level"), props.Double(0))
	})
	assert.ErrorIs(t, err, document.ErrReadOnly)

	passes, err := s.Journal().List(ctx)
	require.NoError(t, err)
	assert.Len(t, passes, 2, "rejected edits journal nothing")
}

func TestCheck(t *testing.T) {
	s, _ := openTest(t)
	st, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Synced)
	assert.Zero(t, st.Created)
}

func TestOpen_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Open(context.Background(), "/missing.yaml", config.Default(), nil, WithFs(fs))
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("nodes:\n  - {name: x, kind: widget}\n"), 0o644))
	_, err = Open(context.Background(), "/bad.yaml", config.Default(), nil, WithFs(fs))
	assert.ErrorContains(t, err, "widget")
}

func TestSetScalar(t *testing.T) {
	s, _ := openTest(t)
	_, err := s.Edit(context.Background(), "set", false, func(doc *document.Document) error {
		return SetScalar(doc, "Blink/LED#level", "0.25")
	})
	require.NoError(t, err)

	_, err = s.Edit(context.Background(), "set", false, func(doc *document.Document) error {
		return SetScalar(doc, "Blink/LED#level", "bright")
	})
	assert.ErrorContains(t, err, "Blink/LED#level")

	_, err = s.Edit(context.Background(), "set", false, func(doc *document.Document) error {
		return SetScalar(doc, "Blink/LED#missing", "1")
	})
	assert.ErrorIs(t, err, document.ErrNotFound)
}

package mcptools

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/stencil/internal/config"
	"github.com/agentic-research/stencil/internal/session"
)

const sceneYAML = `
nodes:
  - name: Blink
    kind: template
    children:
      - name: LED
        props:
          level: {type: double, value: 0.5}
  - name: Room
    children:
      - {name: lamp, kind: instance, template: Blink}
`

func newTools(t *testing.T) *tools {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/scene.yaml", []byte(sceneYAML), 0o644))
	cfg := config.Default()
	cfg.Journal = ":memory:"
	s, err := session.Open(context.Background(), "/scene.yaml", cfg, hclog.NewNullLogger(), session.WithFs(fs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return &tools{s: s}
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestTools_ReadOnly(t *testing.T) {
	tl := newTools(t)
	ctx := context.Background()

	res, err := tl.tree(ctx, call("tree", map[string]any{"props": true}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "level = 0.5")

	res, err = tl.query(ctx, call("query", map[string]any{"expr": "$.nodes[?(@.generated == true)].name"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `["LED"]`, text(t, res))

	res, err = tl.query(ctx, call("query", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tl.diagnostics(ctx, call("diagnostics", nil))
	require.NoError(t, err)
	assert.Equal(t, "no diagnostics", text(t, res))
}

func TestTools_SetValueAndHistory(t *testing.T) {
	tl := newTools(t)
	ctx := context.Background()

	res, err := tl.setValue(ctx, call("set_value", map[string]any{"property": "Blink/LED#level", "value": "0.75"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), "synced 1 instance(s)")

	res, err = tl.query(ctx, call("query", map[string]any{"expr": "$.nodes[*].props.level"}))
	require.NoError(t, err)
	assert.JSONEq(t, `[0.75, 0.75]`, text(t, res))

	res, err = tl.setValue(ctx, call("set_value", map[string]any{"property": "Room/lamp/LED#level", "value": "1"}))
	require.NoError(t, err)
	assert.True(t, res.IsError, "generated properties are read-only")

	res, err = tl.history(ctx, call("history", map[string]any{"node": "Room/lamp/LED"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "create")
	assert.Contains(t, text(t, res), "value")

	res, err = tl.check(ctx, call("check", nil))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "ok:")
}

func TestNew(t *testing.T) {
	tl := newTools(t)
	assert.NotNil(t, New(tl.s, "test"))
}

// Package mcptools exposes a session to MCP clients.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/scene"
	"github.com/agentic-research/stencil/internal/session"
	"github.com/agentic-research/stencil/internal/view"
)

// New builds an MCP server over s.
func New(s *session.Session, version string) *server.MCPServer {
	srv := server.NewMCPServer("stencil", version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	t := &tools{s: s}

	srv.AddTool(mcp.NewTool("tree",
		mcp.WithDescription("Print the node tree of the scene"),
		mcp.WithBoolean("props", mcp.Description("Include property values")),
	), t.tree)

	srv.AddTool(mcp.NewTool("query",
		mcp.WithDescription("Evaluate a JSONPath expression against the exported document"),
		mcp.WithString("expr", mcp.Required(), mcp.Description("JSONPath, e.g. $.nodes[?(@.generated == true)].name")),
	), t.query)

	srv.AddTool(mcp.NewTool("diagnostics",
		mcp.WithDescription("List every diagnostic attached to a node"),
	), t.diagnostics)

	srv.AddTool(mcp.NewTool("set_value",
		mcp.WithDescription("Set a scalar property and propagate the change into instances"),
		mcp.WithString("property", mcp.Required(), mcp.Description("Room/lamp#level style property path")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value, parsed as the property's kind")),
	), t.setValue)

	srv.AddTool(mcp.NewTool("check",
		mcp.WithDescription("Run a repair pass and verify the document"),
	), t.check)

	srv.AddTool(mcp.NewTool("history",
		mcp.WithDescription("List the journaled changes of one node"),
		mcp.WithString("node", mcp.Required(), mcp.Description("Slash-separated node path")),
	), t.history)

	return srv
}

type tools struct {
	s *session.Session
}

func (t *tools) tree(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var out string
	_ = t.s.View(func(doc *document.Document) error {
		out = view.Tree(doc, view.TreeOptions{Props: req.GetBool("props", false), Diagnostics: true})
		return nil
	})
	return mcp.NewToolResultText(out), nil
}

func (t *tools) query(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := req.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var body []byte
	err = t.s.View(func(doc *document.Document) error {
		res, err := view.Query(doc, expr)
		if err != nil {
			return err
		}
		body, err = json.MarshalIndent(res, "", "  ")
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (t *tools) diagnostics(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var lines []string
	_ = t.s.View(func(doc *document.Document) error {
		for _, d := range doc.Diagnostics().All() {
			lines = append(lines, d.String())
		}
		return nil
	})
	if len(lines) == 0 {
		return mcp.NewToolResultText("no diagnostics"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (t *tools) setValue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("property")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := t.s.Edit(ctx, "set "+ref, false, func(doc *document.Document) error {
		return session.SetScalar(doc, ref, text)
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("set %s = %s; synced %d instance(s)", ref, text, st.Synced)), nil
}

func (t *tools) check(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := t.s.Check(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("ok: %d template(s), %d instance(s) synced, %d created, %d deleted",
		st.Templates, st.Synced, st.Created, st.Deleted)), nil
}

func (t *tools) history(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("node")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	j := t.s.Journal()
	if j == nil {
		return mcp.NewToolResultError("no journal configured"), nil
	}
	var id string
	err = t.s.View(func(doc *document.Document) error {
		var err error
		id, err = scene.ResolveNode(doc.Store(), path)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	events, err := j.History(ctx, id)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "%s %s\n", ev.Kind, ev.Detail)
	}
	return mcp.NewToolResultText(b.String()), nil
}

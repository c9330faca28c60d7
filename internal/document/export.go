package document

// Export renders the document as plain maps and slices, ready for JSON
// encoding or JSONPath queries.
func (d *Document) Export() map[string]any {
	nodes := make([]any, 0, d.store.Len())
	for _, n := range d.store.Nodes() {
		m := map[string]any{
			"id":        n.ID,
			"name":      n.Name(),
			"kind":      n.Kind.String(),
			"type":      n.TypeName,
			"interface": n.Interface,
			"generated": d.Generated(n.ID),
			"children":  anySlice(n.Children),
			"props":     n.Props.Interface(),
		}
		if n.Parent != "" {
			m["parent"] = n.Parent
		}
		if n.Template != "" {
			m["template"] = n.Template
		}
		nodes = append(nodes, m)
	}

	links := make([]any, 0)
	for _, l := range d.store.Links() {
		links = append(links, map[string]any{
			"start": l.Start.String(),
			"end":   l.End.String(),
			"valid": l.Valid,
			"weak":  l.Weak,
		})
	}

	diags := make([]any, 0)
	for _, dg := range d.diags.All() {
		diags = append(diags, map[string]any{
			"node":     dg.Node,
			"category": dg.Category.String(),
			"level":    dg.Level.String(),
			"message":  dg.Message,
		})
	}

	return map[string]any{"nodes": nodes, "links": links, "diagnostics": diags}
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

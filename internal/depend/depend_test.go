package depend

import (
	"testing"

	"github.com/agentic-research/stencil/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type builder struct {
	t *testing.T
	s *graph.Store
}

func (b builder) node(id, parent string, kind graph.NodeKind, tmpl string) {
	b.t.Helper()
	n := graph.NewNode(id, kind, "", id)
	n.Parent = parent
	n.Template = tmpl
	require.NoError(b.t, b.s.Add(n))
	if parent != "" {
		p, err := b.s.Get(parent)
		require.NoError(b.t, err)
		p.Children = append(p.Children, id)
	}
}

func TestProcessingOrder_NestedInnerFirst(t *testing.T) {
	b := builder{t, graph.NewStore()}
	b.node("Outer", "", graph.KindTemplate, "")
	b.node("Inner", "", graph.KindTemplate, "")
	b.node("Inner1", "Outer", graph.KindInstance, "Inner")
	b.node("O1", "", graph.KindInstance, "Outer")

	order, err := Order(b.s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Outer", "Inner"}, order)

	proc, err := ProcessingOrder(b.s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Inner", "Outer"}, proc)
}

func TestProcessingOrder_ChainAndIndependent(t *testing.T) {
	b := builder{t, graph.NewStore()}
	b.node("Solo", "", graph.KindTemplate, "")
	b.node("Top", "", graph.KindTemplate, "")
	b.node("Mid", "", graph.KindTemplate, "")
	b.node("Leaf", "", graph.KindTemplate, "")
	b.node("mid1", "Top", graph.KindInstance, "Mid")
	b.node("leaf1", "Mid", graph.KindInstance, "Leaf")

	proc, err := ProcessingOrder(b.s)
	require.NoError(t, err)

	pos := map[string]int{}
	for i, id := range proc {
		pos[id] = i
	}
	assert.Len(t, proc, 4)
	assert.Less(t, pos["Leaf"], pos["Mid"])
	assert.Less(t, pos["Mid"], pos["Top"])
}

func TestOrder_IgnoresInstancesNestedInInstances(t *testing.T) {
	b := builder{t, graph.NewStore()}
	b.node("Outer", "", graph.KindTemplate, "")
	b.node("Inner", "", graph.KindTemplate, "")
	b.node("O1", "", graph.KindInstance, "Outer")
	// generated copy of a nested instance: not a dependency edge
	b.node("Inner1copy", "O1", graph.KindInstance, "Inner")

	assert.Empty(t, Embedding(b.s, "Inner"))
}

func TestOrder_CycleIsAnError(t *testing.T) {
	b := builder{t, graph.NewStore()}
	b.node("A", "", graph.KindTemplate, "")
	b.node("B", "", graph.KindTemplate, "")
	b.node("a_in_b", "B", graph.KindInstance, "A")
	b.node("b_in_a", "A", graph.KindInstance, "B")

	_, err := Order(b.s)
	require.ErrorIs(t, err, ErrCyclicInstantiation)
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"A", "B", "A"}, ce.Cycle)
}

func TestWouldCycle(t *testing.T) {
	b := builder{t, graph.NewStore()}
	b.node("A", "", graph.KindTemplate, "")
	b.node("B", "", graph.KindTemplate, "")
	b.node("C", "", graph.KindTemplate, "")
	b.node("a_in_b", "B", graph.KindInstance, "A")

	assert.True(t, WouldCycle(b.s, "A", "A"), "self instantiation")
	assert.True(t, WouldCycle(b.s, "B", "A"), "B already embeds A")
	assert.False(t, WouldCycle(b.s, "A", "C"))
	assert.False(t, WouldCycle(b.s, "C", "B"))
	assert.False(t, WouldCycle(b.s, "A", ""))
}

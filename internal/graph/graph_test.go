package graph

import (
	"testing"

	"github.com/agentic-research/stencil/internal/props"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tree builds: root -> (a -> (a1, a2), b)
func tree(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	add := func(id, parent string, kind NodeKind) {
		n := NewNode(id, kind, "Node", id)
		n.Parent = parent
		require.NoError(t, s.Add(n))
		if parent != "" {
			p, _ := s.Get(parent)
			p.Children = append(p.Children, id)
		}
	}
	add("root", "", KindTemplate)
	add("a", "root", KindObject)
	add("a1", "a", KindObject)
	add("a2", "a", KindInstance)
	add("b", "root", KindObject)
	return s
}

func TestStore_AddAndGet(t *testing.T) {
	s := tree(t)

	n, err := s.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", n.Name())
	assert.Equal(t, "a", n.Parent)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Add(NewNode("a", KindObject, "", "")), ErrDuplicate)

	orphan := NewNode("o", KindObject, "", "")
	orphan.Parent = "nowhere"
	assert.ErrorIs(t, s.Add(orphan), ErrNotFound)
}

func TestStore_DescendantsPreOrder(t *testing.T) {
	s := tree(t)
	assert.Equal(t, []string{"a", "a1", "a2", "b"}, s.Descendants("root"))
	assert.Empty(t, s.Descendants("b"))
	assert.Nil(t, s.Descendants("missing"))
}

func TestStore_Containment(t *testing.T) {
	s := tree(t)
	assert.Equal(t, "root", s.ContainingTemplate("a1"))
	assert.Equal(t, "root", s.ContainingTemplate("root"))
	assert.Equal(t, "a2", s.ContainingInstance("a2"))
	assert.Equal(t, "", s.EnclosingInstance("a2"))
	assert.True(t, s.IsAncestor("root", "a1"))
	assert.False(t, s.IsAncestor("a1", "root"))
}

func TestStore_InstanceIndex(t *testing.T) {
	s := tree(t)
	require.NoError(t, s.SetTemplate("a2", "root"))
	assert.Equal(t, []string{"a2"}, s.Instances("root"))

	require.NoError(t, s.SetTemplate("a2", ""))
	assert.Empty(t, s.Instances("root"))

	n, _ := s.Get("a2")
	n.Template = "root"
	s.ReindexInstances()
	assert.Equal(t, []string{"a2"}, s.Instances("root"))

	s.Remove("a2")
	assert.Empty(t, s.Instances("root"))
}

func TestStore_SubtreeSet(t *testing.T) {
	s := tree(t)
	bm := s.SubtreeSet("a")
	assert.True(t, s.InSet(bm, "a1"))
	assert.False(t, s.InSet(bm, "a"))
	assert.False(t, s.InSet(bm, "b"))
	assert.ElementsMatch(t, []string{"a1", "a2"}, s.IDsOf(bm))
}

func TestStore_LinkIndexes(t *testing.T) {
	s := tree(t)
	l1 := s.AddLink(Descriptor{Start: props.H("a1", "out"), End: props.H("b", "in"), Valid: true})
	l2 := s.AddLink(Descriptor{Start: props.H("a1", "out"), End: props.H("a2", "in", "x"), Valid: true, Weak: true})

	assert.Len(t, s.LinksFrom("a1"), 2)
	assert.Equal(t, []*Link{l1}, s.LinksTo("b"))
	assert.Equal(t, l2, s.LinkEndingAt(props.H("a2", "in", "x")))
	assert.Nil(t, s.LinkEndingAt(props.H("a2", "in")))
	assert.Equal(t, []*Link{l2}, s.LinksEndingBelow(props.H("a2", "in")))
	assert.Equal(t, []*Link{l2}, s.LinksOverlapping(props.H("a2")))
	assert.Len(t, s.LinksEndingIn([]string{"a2", "b"}), 2)

	removed, ok := s.RemoveLink(l1.ID)
	require.True(t, ok)
	assert.Equal(t, l1, removed)
	assert.Empty(t, s.LinksTo("b"))
	assert.Equal(t, []*Link{l2}, s.Links())
}

func TestStore_CreatesLoop(t *testing.T) {
	s := tree(t)
	s.AddLink(Descriptor{Start: props.H("a", "out"), End: props.H("b", "in")})
	s.AddLink(Descriptor{Start: props.H("b", "out"), End: props.H("a1", "in")})

	assert.True(t, s.CreatesLoop("a1", "a"), "a1 -> a -> b -> a1")
	assert.True(t, s.CreatesLoop("b", "b"))
	assert.False(t, s.CreatesLoop("a", "a1"))

	weak := NewStore()
	require.NoError(t, weak.Add(NewNode("x", KindObject, "", "")))
	require.NoError(t, weak.Add(NewNode("y", KindObject, "", "")))
	weak.AddLink(Descriptor{Start: props.H("x", "o"), End: props.H("y", "i"), Weak: true})
	assert.False(t, weak.CreatesLoop("y", "x"), "weak links do not close loops")
}

func TestNodeKind_RoundTrip(t *testing.T) {
	for _, k := range []NodeKind{KindObject, KindTemplate, KindInstance} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("prefab")
	assert.Error(t, err)
}

package changes

import (
	"testing"

	"github.com/agentic-research/stencil/internal/graph"
	"github.com/agentic-research/stencil/internal/props"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func link(start, end string) graph.Descriptor {
	return graph.Descriptor{Start: props.H(start, "out"), End: props.H(end, "in"), Valid: true}
}

func TestRecorder_ValueContainment(t *testing.T) {
	r := NewRecorder()
	r.RecordValueChanged(props.H("n", "inputs", "speed"))
	r.RecordValueChanged(props.H("n", "inputs", "speed"))
	r.RecordValueChanged(props.H("n", "inputs", "label"))
	assert.Len(t, r.ChangedValues(), 2)

	r.RecordValueChanged(props.H("n", "inputs"))
	assert.Equal(t, []props.Handle{props.H("n", "inputs")}, r.ChangedValues())

	r.RecordValueChanged(props.H("n", "inputs", "other"))
	assert.Len(t, r.ChangedValues(), 1, "descendant of a recorded handle is a no-op")

	assert.True(t, r.HasValueChanged(props.H("n", "inputs", "x")))
	assert.False(t, r.HasValueChanged(props.H("n")))
	assert.True(t, r.ValueChangedBelow(props.H("n")))
}

func TestRecorder_CreateThenDeleteCancels(t *testing.T) {
	r := NewRecorder()
	r.RecordCreate("a")
	r.RecordValueChanged(props.H("a", "x"))
	r.RecordDelete("a")

	assert.Empty(t, r.Created())
	assert.Empty(t, r.Deleted())
	assert.Empty(t, r.ChangedValues())
	assert.True(t, r.Empty())

	r.RecordDelete("b")
	assert.Equal(t, []string{"b"}, r.Deleted())
	assert.True(t, r.WasDeleted("b"))
}

func TestRecorder_LinkCancellation(t *testing.T) {
	r := NewRecorder()
	d := link("a", "b")

	r.RecordLinkAdded(d)
	r.RecordLinkRemoved(d)
	assert.Empty(t, r.AddedLinks())
	assert.Empty(t, r.RemovedLinks())

	r.RecordLinkRemoved(d)
	r.RecordLinkAdded(d)
	assert.Len(t, r.RemovedLinks(), 1, "remove then add is a replacement")
	assert.Len(t, r.AddedLinks(), 1)
}

func TestRecorder_ValidityFoldsIntoAdd(t *testing.T) {
	r := NewRecorder()
	d := link("a", "b")
	r.RecordLinkAdded(d)

	inv := d
	inv.Valid = false
	r.RecordLinkValidityChanged(inv)

	require.Len(t, r.AddedLinks(), 1)
	assert.False(t, r.AddedLinks()[0].Valid)
	assert.Empty(t, r.ValidityChangedLinks())

	other := link("c", "d")
	r.RecordLinkValidityChanged(other)
	assert.Len(t, r.ValidityChangedLinks(), 1)
	r.RecordLinkRemoved(other)
	assert.Empty(t, r.ValidityChangedLinks())
	assert.Len(t, r.RemovedLinks(), 1)
}

func TestRecorder_ReleaseResets(t *testing.T) {
	r := NewRecorder()
	r.RecordCreate("a")
	r.RecordErrorChanged("a")

	got := r.Release()
	assert.Equal(t, []string{"a"}, got.Created())
	assert.Equal(t, []string{"a"}, got.ErrorNodes())
	assert.True(t, r.Empty())

	r.RecordCreate("b")
	assert.Equal(t, []string{"a"}, got.Created(), "released snapshot is independent")
}

func TestRecorder_Merge(t *testing.T) {
	a := NewRecorder()
	a.RecordCreate("x")
	a.RecordValueChanged(props.H("y", "v"))

	b := NewRecorder()
	b.RecordDelete("x")
	b.RecordValueChanged(props.H("y", "v"))
	b.RecordValueChanged(props.H("z", "w"))
	b.RecordLinkAdded(link("y", "z"))

	a.Merge(b)
	assert.Empty(t, a.Created())
	assert.Empty(t, a.Deleted())
	assert.Len(t, a.ChangedValues(), 2)
	assert.Len(t, a.AddedLinks(), 1)
}

func TestRecorder_AllChangedObjects(t *testing.T) {
	r := NewRecorder()
	r.RecordCreate("c")
	r.RecordValueChanged(props.H("v", "x"))
	r.RecordLinkRemoved(link("s", "e"))

	assert.Equal(t, []string{"c", "v"}, r.AllChangedObjects(false, false))
	assert.Equal(t, []string{"c", "v", "e"}, r.AllChangedObjects(false, true))
	assert.Equal(t, []string{"c", "v", "s", "e"}, r.AllChangedObjects(true, true))
}

func TestMultiplexer_FansOut(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := NewMultiplexer(a)
	m.Add(b)

	m.RecordCreate("n")
	m.RecordLinkAdded(link("n", "m"))
	assert.Equal(t, a.Created(), b.Created())
	assert.Len(t, b.AddedLinks(), 1)

	require.True(t, m.Remove(b))
	assert.False(t, m.Remove(b))
	m.RecordDelete("q")
	assert.Equal(t, []string{"q"}, a.Deleted())
	assert.Empty(t, b.Deleted())
}

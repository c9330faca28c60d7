package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		require.True(t, Valid(id))
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestRemap_DeterministicAndReversible(t *testing.T) {
	child, tmpl, inst := New(), New(), New()

	a, err := Remap(child, tmpl, inst)
	require.NoError(t, err)
	b, err := Remap(child, tmpl, inst)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, child, a)

	back, err := Remap(a, inst, tmpl)
	require.NoError(t, err)
	assert.Equal(t, child, back)
}

func TestRemap_OwnerMapsToOwner(t *testing.T) {
	tmpl, inst := New(), New()
	assert.Equal(t, inst, MustRemap(tmpl, tmpl, inst))
}

func TestRemap_NestedComposition(t *testing.T) {
	x, inner, inner1, outer, o1 := New(), New(), New(), New(), New()

	// x generated into inner1, then inner1's subtree generated into o1.
	viaOuter := MustRemap(MustRemap(x, inner, inner1), outer, o1)
	// x generated directly into the copy of inner1 that lives in o1.
	inner1InO1 := MustRemap(inner1, outer, o1)
	direct := MustRemap(x, inner, inner1InO1)

	assert.Equal(t, viaOuter, direct)
}

func TestRemap_RejectsMalformed(t *testing.T) {
	_, err := Remap("not-a-uuid", New(), New())
	assert.ErrorIs(t, err, ErrNotUUID)
	assert.Panics(t, func() { MustRemap(New(), "x", New()) })
}

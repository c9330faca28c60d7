package props

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Value {
	return NewStruct(
		Field{"name", String("A")},
		Field{"x", Int(1)},
		Field{"target", RefTo("t-child")},
		Field{"inputs", NewStruct(
			Field{"speed", Double(1.5).With(FlagLinkEnd)},
			Field{"label", String("hi")},
		)},
		Field{"list", NewArray(Int64(1), Int64(2))},
	)
}

func TestValue_LookupAndSet(t *testing.T) {
	v := sample()

	got, ok := v.Lookup(ParsePath("inputs/speed"))
	require.True(t, ok)
	assert.Equal(t, 1.5, got.Scalar)
	assert.True(t, got.Flags.Has(FlagLinkEnd))

	got, ok = v.Lookup(Path{"list", "1"})
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Scalar)

	_, ok = v.Lookup(Path{"x", "deeper"})
	assert.False(t, ok, "scalars have no children")

	v.Get("list").Remove("0")
	assert.Equal(t, []string{"0"}, v.Get("list").Names())
	assert.Equal(t, int64(2), v.Get("list").Get("0").Scalar)
}

func TestValue_CloneIsDeep(t *testing.T) {
	v := sample()
	c := v.Clone()
	require.True(t, Equal(v, c, nil))

	c.Get("inputs").Get("label").Scalar = "changed"
	assert.Equal(t, "hi", v.Get("inputs").Get("label").Scalar)
}

func TestValue_TranslateRefs(t *testing.T) {
	v := sample()
	v.TranslateRefs(func(id string) string { return "i-" + id })
	assert.Equal(t, "i-t-child", v.Get("target").Ref)
	assert.Equal(t, []string{"i-t-child"}, v.Refs())
}

func TestWalk_PreOrder(t *testing.T) {
	var seen []string
	sample().Walk(func(p Path, _ *Value) bool {
		seen = append(seen, p.String())
		return p.String() != "inputs"
	})
	assert.Equal(t, []string{"", "name", "x", "target", "inputs", "list", "list/0", "list/1"}, seen)
}

func TestWalk_DeepTreeDoesNotRecurse(t *testing.T) {
	root := NewStruct()
	cur := root
	for i := 0; i < 2000; i++ {
		next := NewStruct()
		cur.Set("n", next)
		cur = next
	}
	count := 0
	root.Walk(func(Path, *Value) bool { count++; return true })
	assert.Equal(t, 2001, count)
}

func TestEqualAndShape(t *testing.T) {
	a := sample()
	b := sample()
	b.Get("x").Scalar = int32(7)

	assert.False(t, Equal(a, b, nil))
	assert.True(t, SameShape(a, b))

	b.Get("list").Append(Int64(3))
	assert.False(t, SameShape(a, b))

	tr := func(id string) string { return "i-" + id }
	c := sample()
	c.Get("target").Ref = "i-t-child"
	assert.True(t, Equal(c, sample(), tr))
}

func TestUpdate_ScalarsAndRefs(t *testing.T) {
	dst := sample()
	src := sample()
	src.Get("x").Scalar = int32(2)
	src.Get("target").Ref = "t-other"

	res := Update(dst, src, UpdateOptions{Translate: func(id string) string { return "i-" + id }})

	assert.Equal(t, int32(2), dst.Get("x").Scalar)
	assert.Equal(t, "i-t-other", dst.Get("target").Ref)
	assert.ElementsMatch(t, []string{"x", "target"}, pathStrings(res.Changed))
	assert.Empty(t, res.Reshaped)
}

func TestUpdate_NoChangeIsEmpty(t *testing.T) {
	res := Update(sample(), sample(), UpdateOptions{})
	assert.True(t, res.Empty())
}

func TestUpdate_StructuralChanges(t *testing.T) {
	dst := sample()
	src := sample()
	src.Remove("x")
	src.Get("inputs").Set("extra", Bool(true))
	src.Set("x", String("now a string"))

	res := Update(dst, src, UpdateOptions{})

	assert.Equal(t, src.Names(), dst.Names())
	assert.Equal(t, "now a string", dst.Get("x").Scalar)
	assert.Equal(t, true, dst.Get("inputs").Get("extra").Scalar)
	assert.Contains(t, pathStrings(res.Reshaped), "inputs/extra")
	assert.True(t, Equal(dst, src, nil))
}

func TestUpdate_KindMismatchReplacesSlot(t *testing.T) {
	dst := NewStruct(Field{"v", Int(1)})
	src := NewStruct(Field{"v", NewArray(Int(1))})

	res := Update(dst, src, UpdateOptions{})
	assert.Equal(t, []string{"v"}, pathStrings(res.Reshaped))
	assert.True(t, dst.Get("v").Array)
}

func TestUpdate_ArrayReplacedWholesale(t *testing.T) {
	dst := NewStruct(Field{"list", NewArray(Int64(1), Int64(2))})
	src := NewStruct(Field{"list", NewArray(Int64(5))})

	res := Update(dst, src, UpdateOptions{})
	assert.Equal(t, []string{"list"}, pathStrings(res.Changed))
	assert.Equal(t, []string{"list"}, pathStrings(res.Reshaped))
	assert.Len(t, dst.Get("list").Fields, 1)
}

func TestUpdate_StructureOnlyKeepsValues(t *testing.T) {
	dst := sample()
	dst.Get("inputs").Get("label").Scalar = "user override"
	src := sample()
	src.Get("inputs").Get("label").Scalar = "template value"
	src.Get("inputs").Set("added", Int(3))
	src.Get("inputs").Remove("speed")

	res := Update(dst, src, UpdateOptions{StructureOnly: true})

	in := dst.Get("inputs")
	assert.Equal(t, "user override", in.Get("label").Scalar)
	assert.Equal(t, int32(3), in.Get("added").Scalar)
	assert.Nil(t, in.Get("speed"))
	assert.ElementsMatch(t, []string{"inputs/added", "inputs/speed"}, pathStrings(res.Changed))
}

func TestUpdate_MissingOnly(t *testing.T) {
	dst := NewStruct(Field{"a", Int(1)}, Field{"b", Int(2)})
	src := NewStruct(Field{"a", Int(9)}, Field{"c", Int(3)})

	res := Update(dst, src, UpdateOptions{MissingOnly: true})

	assert.Equal(t, []string{"a", "b", "c"}, dst.Names())
	assert.Equal(t, int32(1), dst.Get("a").Scalar)
	assert.Equal(t, []string{"c"}, pathStrings(res.Changed))
}

func TestUpdate_ExcludeAndReorder(t *testing.T) {
	dst := NewStruct(Field{"name", String("mine")}, Field{"b", Int(2)}, Field{"a", Int(1)})
	src := NewStruct(Field{"name", String("theirs")}, Field{"a", Int(1)}, Field{"b", Int(2)})

	res := Update(dst, src, UpdateOptions{Exclude: func(n string) bool { return n == "name" }})

	assert.Equal(t, "mine", dst.Get("name").Scalar)
	assert.Equal(t, []string{"name", "a", "b"}, dst.Names())
	assert.Equal(t, []string{""}, pathStrings(res.Changed))
}

func TestHandle_Containment(t *testing.T) {
	a := H("n", "inputs")
	b := H("n", "inputs", "speed")
	assert.True(t, a.Contains(b))
	assert.False(t, b.Contains(a))
	assert.True(t, b.Overlaps(a))
	assert.False(t, H("m", "inputs").Overlaps(a))
	assert.Equal(t, "n/inputs/speed", b.String())
	assert.NotEqual(t, H("a", "b/c").Key(), H("a", "b", "c").Key())
}

func pathStrings(ps []Path) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

func TestParseScalar(t *testing.T) {
	cases := []struct {
		k    Kind
		text string
		want *Value
	}{
		{KindBool, "true", Bool(true)},
		{KindInt, "-7", Int(-7)},
		{KindInt64, "1099511627776", Int64(1 << 40)},
		{KindDouble, "2.5", Double(2.5)},
		{KindString, "", String("")},
	}
	for _, c := range cases {
		v, err := ParseScalar(c.k, c.text)
		require.NoError(t, err, c.k)
		assert.Equal(t, c.want, v)
	}

	_, err := ParseScalar(KindInt, "1099511627776")
	assert.Error(t, err)
	_, err = ParseScalar(KindBool, "maybe")
	assert.Error(t, err)
	_, err = ParseScalar(KindStruct, "{}")
	assert.Error(t, err)
}

package props

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/copystructure"
)

// Kind is the primitive type of a property slot.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt
	KindInt64
	KindDouble
	KindString
	KindStruct
	KindTable
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindStruct:
		return "struct"
	case KindTable:
		return "table"
	case KindRef:
		return "ref"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "bool":
		return KindBool, nil
	case "int":
		return KindInt, nil
	case "int64":
		return KindInt64, nil
	case "double", "float":
		return KindDouble, nil
	case "string":
		return KindString, nil
	case "struct":
		return KindStruct, nil
	case "table":
		return KindTable, nil
	case "ref":
		return KindRef, nil
	}
	return 0, fmt.Errorf("unknown property kind %q", s)
}

// Flags are annotations carried by a property slot.
type Flags uint8

const (
	FlagLinkStart Flags = 1 << iota
	FlagLinkEnd
	FlagURI
)

func (f Flags) Has(other Flags) bool { return f&other == other }

// Field is one named entry of a struct or table.
// For array tables the name is the decimal index of the entry.
type Field struct {
	Name  string
	Value *Value
}

// Value is a node in a property tree.
type Value struct {
	Kind   Kind
	Scalar any    // bool, int32, int64, float64 or string
	Ref    string // node ID for KindRef, "" is null
	Fields []Field
	Array  bool // table entries are addressed by index
	Flags  Flags
}

func Bool(b bool) *Value      { return &Value{Kind: KindBool, Scalar: b} }
func Int(i int32) *Value      { return &Value{Kind: KindInt, Scalar: i} }
func Int64(i int64) *Value    { return &Value{Kind: KindInt64, Scalar: i} }
func Double(f float64) *Value { return &Value{Kind: KindDouble, Scalar: f} }
func String(s string) *Value  { return &Value{Kind: KindString, Scalar: s} }
func RefTo(id string) *Value  { return &Value{Kind: KindRef, Ref: id} }
func NewTable() *Value        { return &Value{Kind: KindTable} }
func NewStruct(fields ...Field) *Value {
	return &Value{Kind: KindStruct, Fields: fields}
}

// NewArray builds an array table from its entries.
func NewArray(entries ...*Value) *Value {
	v := &Value{Kind: KindTable, Array: true}
	for _, e := range entries {
		v.Append(e)
	}
	return v
}

// Zero returns the default value of a scalar or container kind.
func Zero(k Kind) *Value {
	switch k {
	case KindBool:
		return Bool(false)
	case KindInt:
		return Int(0)
	case KindInt64:
		return Int64(0)
	case KindDouble:
		return Double(0)
	case KindString:
		return String("")
	case KindRef:
		return RefTo("")
	case KindStruct:
		return NewStruct()
	default:
		return NewTable()
	}
}

// ParseScalar reads text as a scalar of kind k.
func ParseScalar(k Kind, text string) (*Value, error) {
	switch k {
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, err
		}
		return Bool(b), nil
	case KindInt:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, err
		}
		return Int(int32(n)), nil
	case KindInt64:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, err
		}
		return Int64(n), nil
	case KindDouble:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, err
		}
		return Double(f), nil
	case KindString:
		return String(text), nil
	}
	return nil, fmt.Errorf("%s is not a scalar kind", k)
}

// With returns v with the given flags set.
func (v *Value) With(f Flags) *Value {
	v.Flags |= f
	return v
}

func (v *Value) IsContainer() bool { return v.Kind == KindStruct || v.Kind == KindTable }

func (v *Value) AsString() string {
	s, _ := v.Scalar.(string)
	return s
}

// Index returns the position of the named field, or -1.
func (v *Value) Index(name string) int {
	for i, f := range v.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Get returns the named field or nil.
func (v *Value) Get(name string) *Value {
	if i := v.Index(name); i >= 0 {
		return v.Fields[i].Value
	}
	return nil
}

// Set replaces the named field or appends it.
func (v *Value) Set(name string, val *Value) {
	if i := v.Index(name); i >= 0 {
		v.Fields[i].Value = val
		return
	}
	if v.Array {
		v.Append(val)
		return
	}
	v.Fields = append(v.Fields, Field{Name: name, Value: val})
}

// Remove drops the named field. Array entries after it are renumbered.
func (v *Value) Remove(name string) bool {
	i := v.Index(name)
	if i < 0 {
		return false
	}
	v.Fields = append(v.Fields[:i], v.Fields[i+1:]...)
	if v.Array {
		v.renumber()
	}
	return true
}

// Append adds an entry to an array table.
func (v *Value) Append(val *Value) {
	v.Fields = append(v.Fields, Field{Name: strconv.Itoa(len(v.Fields)), Value: val})
}

func (v *Value) renumber() {
	for i := range v.Fields {
		v.Fields[i].Name = strconv.Itoa(i)
	}
}

// Names lists field names in order.
func (v *Value) Names() []string {
	out := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		out[i] = f.Name
	}
	return out
}

// Lookup resolves a path below v. An empty path resolves to v itself.
func (v *Value) Lookup(p Path) (*Value, bool) {
	cur := v
	for _, seg := range p {
		if cur == nil || !cur.IsContainer() {
			return nil, false
		}
		cur = cur.Get(seg)
	}
	return cur, cur != nil
}

// Clone returns a deep copy of v.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	return copystructure.Must(copystructure.Copy(v)).(*Value)
}

// TranslateRefs rewrites every reference in the tree through fn.
func (v *Value) TranslateRefs(fn func(string) string) {
	if fn == nil {
		return
	}
	v.Walk(func(_ Path, val *Value) bool {
		if val.Kind == KindRef && val.Ref != "" {
			val.Ref = fn(val.Ref)
		}
		return true
	})
}

// Walk visits v and its descendants in pre-order. Returning false from fn
// skips the children of the visited value.
func (v *Value) Walk(fn func(Path, *Value) bool) {
	type frame struct {
		path Path
		val  *Value
	}
	stack := []frame{{nil, v}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(f.path, f.val) || !f.val.IsContainer() {
			continue
		}
		for i := len(f.val.Fields) - 1; i >= 0; i-- {
			fld := f.val.Fields[i]
			stack = append(stack, frame{f.path.Child(fld.Name), fld.Value})
		}
	}
}

// Refs collects every non-null reference in the tree.
func (v *Value) Refs() []string {
	var out []string
	v.Walk(func(_ Path, val *Value) bool {
		if val.Kind == KindRef && val.Ref != "" {
			out = append(out, val.Ref)
		}
		return true
	})
	return out
}

// Interface converts the tree to plain Go values (maps, slices, scalars),
// suitable for JSON encoding or JSONPath evaluation.
func (v *Value) Interface() any {
	switch v.Kind {
	case KindRef:
		if v.Ref == "" {
			return nil
		}
		return v.Ref
	case KindStruct, KindTable:
		if v.Array {
			out := make([]any, len(v.Fields))
			for i, f := range v.Fields {
				out[i] = f.Value.Interface()
			}
			return out
		}
		out := make(map[string]any, len(v.Fields))
		for _, f := range v.Fields {
			out[f.Name] = f.Value.Interface()
		}
		return out
	case KindInt:
		n, _ := v.Scalar.(int32)
		return int64(n)
	default:
		return v.Scalar
	}
}

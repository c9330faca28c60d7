package props

type pair struct{ a, b *Value }

// Equal reports whether a equals b after translating b's references
// through tr. A nil tr compares references verbatim.
func Equal(a, b *Value, tr func(string) string) bool {
	stack := []pair{{a, b}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.a == nil || p.b == nil {
			if p.a != p.b {
				return false
			}
			continue
		}
		if p.a.Kind != p.b.Kind || p.a.Array != p.b.Array || p.a.Flags != p.b.Flags {
			return false
		}
		switch p.a.Kind {
		case KindRef:
			ref := p.b.Ref
			if tr != nil && ref != "" {
				ref = tr(ref)
			}
			if p.a.Ref != ref {
				return false
			}
		case KindStruct, KindTable:
			if len(p.a.Fields) != len(p.b.Fields) {
				return false
			}
			for i := range p.a.Fields {
				if p.a.Fields[i].Name != p.b.Fields[i].Name {
					return false
				}
				stack = append(stack, pair{p.a.Fields[i].Value, p.b.Fields[i].Value})
			}
		default:
			if p.a.Scalar != p.b.Scalar {
				return false
			}
		}
	}
	return true
}

// SameShape compares kinds, field names and array sizes, ignoring scalar
// values, references and flags.
func SameShape(a, b *Value) bool {
	stack := []pair{{a, b}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.a == nil || p.b == nil {
			if p.a != p.b {
				return false
			}
			continue
		}
		if p.a.Kind != p.b.Kind || p.a.Array != p.b.Array {
			return false
		}
		if !p.a.IsContainer() {
			continue
		}
		if len(p.a.Fields) != len(p.b.Fields) {
			return false
		}
		for i := range p.a.Fields {
			if p.a.Fields[i].Name != p.b.Fields[i].Name {
				return false
			}
			stack = append(stack, pair{p.a.Fields[i].Value, p.b.Fields[i].Value})
		}
	}
	return true
}

// Shape flattens a tree into (path, kind) pairs in pre-order.
func Shape(v *Value) []ShapeEntry {
	var out []ShapeEntry
	v.Walk(func(p Path, val *Value) bool {
		out = append(out, ShapeEntry{Path: p.String(), Kind: val.Kind})
		return true
	})
	return out
}

type ShapeEntry struct {
	Path string
	Kind Kind
}

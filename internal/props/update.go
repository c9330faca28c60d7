package props

// UpdateOptions control how Update merges a source tree into a destination.
type UpdateOptions struct {
	// Translate maps references in src before they are written to dst.
	Translate func(string) string
	// StructureOnly keeps existing scalar and reference values in dst and
	// only adds, removes or reorders fields.
	StructureOnly bool
	// MissingOnly only adds fields of src that dst lacks.
	MissingOnly bool
	// Exclude skips top-level fields by name.
	Exclude func(name string) bool
}

// UpdateResult lists the paths touched by Update, relative to dst.
type UpdateResult struct {
	Changed []Path
	// Reshaped is the subset of Changed whose kind or layout changed.
	Reshaped []Path
}

func (r UpdateResult) Empty() bool { return len(r.Changed) == 0 }

func (r *UpdateResult) change(p Path, reshaped bool) {
	r.Changed = append(r.Changed, p)
	if reshaped {
		r.Reshaped = append(r.Reshaped, p)
	}
}

func translatedClone(v *Value, tr func(string) string) *Value {
	c := v.Clone()
	c.TranslateRefs(tr)
	return c
}

// Update makes dst match src according to opts and reports what changed.
// dst is modified in place; its pointer identity is preserved.
func Update(dst, src *Value, opts UpdateOptions) UpdateResult {
	var res UpdateResult
	type frame struct {
		dst, src *Value
		path     Path
	}
	stack := []frame{{dst, src, nil}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		d, s := f.dst, f.src

		if d.Kind != s.Kind || d.Array != s.Array {
			if opts.MissingOnly {
				continue
			}
			*d = *translatedClone(s, opts.Translate)
			res.change(f.path, true)
			continue
		}
		if d.Flags != s.Flags && !opts.MissingOnly {
			d.Flags = s.Flags
			res.change(f.path, true)
		}

		switch {
		case d.Kind == KindRef:
			if opts.StructureOnly || opts.MissingOnly {
				continue
			}
			ref := s.Ref
			if opts.Translate != nil && ref != "" {
				ref = opts.Translate(ref)
			}
			if d.Ref != ref {
				d.Ref = ref
				res.change(f.path, false)
			}

		case !d.IsContainer():
			if opts.StructureOnly || opts.MissingOnly {
				continue
			}
			if d.Scalar != s.Scalar {
				d.Scalar = s.Scalar
				res.change(f.path, false)
			}

		case d.Array:
			if opts.MissingOnly {
				continue
			}
			if opts.StructureOnly {
				if len(d.Fields) > len(s.Fields) {
					d.Fields = d.Fields[:len(s.Fields)]
					res.change(f.path, true)
				}
				for i := len(d.Fields); i < len(s.Fields); i++ {
					d.Append(translatedClone(s.Fields[i].Value, opts.Translate))
					res.change(f.path, true)
				}
				for i := range d.Fields {
					stack = append(stack, frame{d.Fields[i].Value, s.Fields[i].Value, f.path.Child(d.Fields[i].Name)})
				}
				continue
			}
			if !Equal(d, s, opts.Translate) {
				reshaped := !SameShape(d, s)
				repl := translatedClone(s, opts.Translate)
				d.Fields = repl.Fields
				res.change(f.path, reshaped)
			}

		default:
			top := len(f.path) == 0
			skip := func(name string) bool { return top && opts.Exclude != nil && opts.Exclude(name) }

			if !opts.MissingOnly {
				kept := d.Fields[:0]
				for _, fld := range d.Fields {
					if skip(fld.Name) || s.Index(fld.Name) >= 0 {
						kept = append(kept, fld)
						continue
					}
					res.change(f.path.Child(fld.Name), true)
				}
				d.Fields = kept
				if reorder(d, s, skip) {
					res.change(f.path, false)
				}
			}
			for _, sf := range s.Fields {
				if skip(sf.Name) {
					continue
				}
				if df := d.Get(sf.Name); df != nil {
					stack = append(stack, frame{df, sf.Value, f.path.Child(sf.Name)})
					continue
				}
				d.Fields = append(d.Fields, Field{Name: sf.Name, Value: translatedClone(sf.Value, opts.Translate)})
				res.change(f.path.Child(sf.Name), true)
			}
			if !opts.MissingOnly {
				reorder(d, s, skip)
			}
		}
	}
	return res
}

// reorder sorts the fields of d that also appear in s into s's order.
// Other fields keep their slots.
func reorder(d, s *Value, skip func(string) bool) bool {
	pos := make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		pos[f.Name] = i
	}
	var slots []int
	var known []Field
	for i, f := range d.Fields {
		if _, ok := pos[f.Name]; ok && !skip(f.Name) {
			slots = append(slots, i)
			known = append(known, f)
		}
	}
	sorted := true
	for i := 1; i < len(known); i++ {
		if pos[known[i-1].Name] > pos[known[i].Name] {
			sorted = false
			break
		}
	}
	if sorted {
		return false
	}
	for i := 1; i < len(known); i++ {
		for j := i; j > 0 && pos[known[j-1].Name] > pos[known[j].Name]; j-- {
			known[j-1], known[j] = known[j], known[j-1]
		}
	}
	for i, slot := range slots {
		d.Fields[slot] = known[i]
	}
	return true
}

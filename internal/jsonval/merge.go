package jsonval

import "math"

// Merge combines two documents with override-wins semantics:
// when both old and new are objects, every key of new is merged into a copy
// of old, recursing where both sides hold objects; in every other case new
// replaces old outright (arrays are never concatenated).
//
// Merge never mutates its inputs. A nil new returns a copy of old.
func Merge(old, new Value) Value {
	if new == nil {
		return DeepCopy(old)
	}
	oldObj, ok1 := AsObject(old)
	newObj, ok2 := AsObject(new)
	if !ok1 || !ok2 {
		return DeepCopy(new)
	}
	out := DeepCopy(oldObj).(*Object)
	newObj.Range(func(k string, nv Value) bool {
		ov, _ := out.Get(k)
		out.Set(k, Merge(ov, nv))
		return true
	})
	return out
}

// DeepCopy returns a structurally independent copy of v.
func DeepCopy(v Value) Value {
	switch t := v.(type) {
	case nil:
		return nil
	case Array:
		out := make(Array, len(t))
		for i, el := range t {
			out[i] = DeepCopy(el)
		}
		return out
	case *Object:
		if t == nil {
			return nil
		}
		out := &Object{keys: make([]string, len(t.keys)), vals: make(map[string]Value, len(t.vals))}
		copy(out.keys, t.keys)
		for k, el := range t.vals {
			out.vals[k] = DeepCopy(el)
		}
		return out
	default:
		return v
	}
}

// Equal reports structural equality. Object key order is not significant;
// numbers compare by value when their literal text differs.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch ta := a.(type) {
	case Null:
		return true
	case Bool:
		return ta == b.(Bool)
	case String:
		return ta == b.(String)
	case Number:
		tb := b.(Number)
		if ta == tb {
			return true
		}
		fa, oka := ta.Float()
		fb, okb := tb.Float()
		return oka && okb && !math.IsNaN(fa) && fa == fb
	case Array:
		tb := b.(Array)
		if len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equal(ta[i], tb[i]) {
				return false
			}
		}
		return true
	case *Object:
		tb := b.(*Object)
		if ta.Len() != tb.Len() {
			return false
		}
		eq := true
		ta.Range(func(k string, va Value) bool {
			vb, ok := tb.Get(k)
			eq = ok && Equal(va, vb)
			return eq
		})
		return eq
	}
	return false
}

package store

import (
	"smfdb/internal/coltype"
	"smfdb/internal/keys"
)

// Row holds one object's field data. Scalars (including Mixed and
// Link) live in Scalars; collection-valued columns live in Lists,
// Sets, or Dicts depending on the column's attribute.
type Row struct {
	Obj     keys.ObjKey
	Scalars map[keys.ColKey]coltype.Value
	Lists   map[keys.ColKey][]coltype.Value
	Sets    map[keys.ColKey]*orderedSet
	Dicts   map[keys.ColKey]map[string]coltype.Value
}

func newRow(obj keys.ObjKey) *Row {
	return &Row{
		Obj:     obj,
		Scalars: make(map[keys.ColKey]coltype.Value),
		Lists:   make(map[keys.ColKey][]coltype.Value),
		Sets:    make(map[keys.ColKey]*orderedSet),
		Dicts:   make(map[keys.ColKey]map[string]coltype.Value),
	}
}

// clone performs a deep-enough copy so mutations in one transaction's
// snapshot never leak into another's. This substitutes for the
// on-disk copy-on-write arena that §1 places out of scope.
func (r *Row) clone() *Row {
	out := newRow(r.Obj)
	for k, v := range r.Scalars {
		out.Scalars[k] = v
	}
	for k, v := range r.Lists {
		cp := make([]coltype.Value, len(v))
		copy(cp, v)
		out.Lists[k] = cp
	}
	for k, v := range r.Sets {
		out.Sets[k] = v.clone()
	}
	for k, v := range r.Dicts {
		cp := make(map[string]coltype.Value, len(v))
		for kk, vv := range v {
			cp[kk] = vv
		}
		out.Dicts[k] = cp
	}
	return out
}

// orderedSet is a set collection that preserves insertion order for
// iteration, matching the ordering policy used by Results over an
// unordered accessor while still giving deterministic enumeration.
type orderedSet struct {
	order []string
	byKey map[string]coltype.Value
}

func newOrderedSet() *orderedSet {
	return &orderedSet{byKey: make(map[string]coltype.Value)}
}

func (s *orderedSet) clone() *orderedSet {
	out := newOrderedSet()
	out.order = append(out.order, s.order...)
	for k, v := range s.byKey {
		out.byKey[k] = v
	}
	return out
}

func (s *orderedSet) add(sk string, v coltype.Value) bool {
	if _, exists := s.byKey[sk]; exists {
		return false
	}
	s.order = append(s.order, sk)
	s.byKey[sk] = v
	return true
}

func (s *orderedSet) remove(sk string) bool {
	if _, exists := s.byKey[sk]; !exists {
		return false
	}
	delete(s.byKey, sk)
	for i, k := range s.order {
		if k == sk {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *orderedSet) values() []coltype.Value {
	out := make([]coltype.Value, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}

func (s *orderedSet) size() int { return len(s.order) }

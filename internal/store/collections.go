package store

import (
	"fmt"
	"math"

	"smfdb/internal/coltype"
	"smfdb/internal/keys"
	"smfdb/internal/schema"
)

// List is the typed accessor over a LinkList or scalar list column,
// per §4.4.
type List struct {
	obj *Object
	col *schema.Column
}

func (l *List) values() []coltype.Value { return l.obj.row().Lists[l.col.Key] }

func (l *List) setValues(vs []coltype.Value) { l.obj.row().Lists[l.col.Key] = vs }

func (l *List) isLink() bool { return l.col.Kind == coltype.Link }

func (l *List) checkElem(v coltype.Value) error {
	if l.col.Kind != coltype.Mixed && !v.Null && v.Kind != l.col.Kind {
		return &ErrWrongType{Column: l.col.Name, Expected: l.col.Kind.String(), Actual: v.Kind.String()}
	}
	return nil
}

func (l *List) Size() int { return len(l.values()) }

func (l *List) Get(i int) (coltype.Value, error) {
	vs := l.values()
	if i < 0 || i >= len(vs) {
		return coltype.Value{}, &ErrOutOfBoundsIndex{Requested: i, Valid: len(vs)}
	}
	return vs[i], nil
}

// bindEmbeddedChild links an embedded-target element into the owner's
// backlink so the §3 single-owner invariant holds for list-of-embedded
// columns just as it does for scalar embedded links.
func (l *List) bindEmbeddedChild(v coltype.Value) error {
	if !l.isLink() || v.Null {
		return nil
	}
	targetTable := l.obj.tx.db.Schema.TableByKey(l.col.LinkedTo)
	if targetTable != nil && targetTable.Embedded {
		if row, ok := l.obj.tx.row(l.col.LinkedTo, keys.ObjKey(v.ObjID)); ok {
			if len(row.Lists[l.col.OriginCol]) > 0 {
				return &ErrInvalidEmbeddedOperation{Reason: "embedded object is already owned by another parent"}
			}
		}
	}
	l.obj.tx.addBacklink(l.col.LinkedTo, keys.ObjKey(v.ObjID), l.col.OriginCol, l.obj.key)
	return nil
}

func (l *List) unbindChild(v coltype.Value) error {
	if !l.isLink() || v.Null {
		return nil
	}
	l.obj.tx.removeBacklinkEntry(l.col.LinkedTo, keys.ObjKey(v.ObjID), l.col.OriginCol, l.obj.key)
	targetTable := l.obj.tx.db.Schema.TableByKey(l.col.LinkedTo)
	if targetTable != nil && targetTable.Embedded {
		return l.obj.tx.removeObjectRec(l.col.LinkedTo, keys.ObjKey(v.ObjID))
	}
	return nil
}

func (l *List) Set(i int, v coltype.Value) error {
	if err := l.checkElem(v); err != nil {
		return err
	}
	vs := l.values()
	if i < 0 || i >= len(vs) {
		return &ErrOutOfBoundsIndex{Requested: i, Valid: len(vs)}
	}
	if err := l.unbindChild(vs[i]); err != nil {
		return err
	}
	if err := l.bindEmbeddedChild(v); err != nil {
		return err
	}
	vs[i] = v
	l.obj.tx.log.record(Operation{Kind: OpSet, Table: l.obj.table.Key, Obj: l.obj.key, Col: l.col.Key, Index: i, Value: v})
	return nil
}

func (l *List) Add(v coltype.Value) error { return l.Insert(l.Size(), v) }

func (l *List) Insert(i int, v coltype.Value) error {
	if err := l.checkElem(v); err != nil {
		return err
	}
	vs := l.values()
	if i < 0 || i > len(vs) {
		return &ErrOutOfBoundsIndex{Requested: i, Valid: len(vs)}
	}
	if err := l.bindEmbeddedChild(v); err != nil {
		return err
	}
	vs = append(vs, coltype.Value{})
	copy(vs[i+1:], vs[i:])
	vs[i] = v
	l.setValues(vs)
	l.obj.tx.log.record(Operation{Kind: OpListInsert, Table: l.obj.table.Key, Obj: l.obj.key, Col: l.col.Key, Index: i, Value: v})
	return nil
}

func (l *List) Move(from, to int) error {
	vs := l.values()
	if from < 0 || from >= len(vs) || to < 0 || to >= len(vs) {
		return &ErrOutOfBoundsIndex{Requested: to, Valid: len(vs)}
	}
	v := vs[from]
	vs = append(vs[:from], vs[from+1:]...)
	vs = append(vs[:to], append([]coltype.Value{v}, vs[to:]...)...)
	l.setValues(vs)
	l.obj.tx.log.record(Operation{Kind: OpListMove, Table: l.obj.table.Key, Obj: l.obj.key, Col: l.col.Key, Index: from, ToIndex: to})
	return nil
}

func (l *List) Swap(i, j int) error {
	vs := l.values()
	if i < 0 || i >= len(vs) || j < 0 || j >= len(vs) {
		return &ErrOutOfBoundsIndex{Requested: j, Valid: len(vs)}
	}
	vs[i], vs[j] = vs[j], vs[i]
	l.obj.tx.log.record(Operation{Kind: OpListMove, Table: l.obj.table.Key, Obj: l.obj.key, Col: l.col.Key, Index: i, ToIndex: j})
	return nil
}

func (l *List) RemoveAt(i int) error {
	vs := l.values()
	if i < 0 || i >= len(vs) {
		return &ErrOutOfBoundsIndex{Requested: i, Valid: len(vs)}
	}
	if err := l.unbindChild(vs[i]); err != nil {
		return err
	}
	l.setValues(append(vs[:i], vs[i+1:]...))
	l.obj.tx.log.record(Operation{Kind: OpListErase, Table: l.obj.table.Key, Obj: l.obj.key, Col: l.col.Key, Index: i})
	return nil
}

func (l *List) RemoveAll() error {
	for _, v := range l.values() {
		if err := l.unbindChild(v); err != nil {
			return err
		}
	}
	l.setValues(nil)
	l.obj.tx.log.record(Operation{Kind: OpListClear, Table: l.obj.table.Key, Obj: l.obj.key, Col: l.col.Key})
	return nil
}

// DeleteAt removes the element at i and, for a link-list column,
// deletes the referenced object outright — distinct from RemoveAt,
// which only clears the list's own reference to it (§4.4: "remove" vs
// "delete_at"). A scalar list has no object to delete, so DeleteAt
// degrades to RemoveAt.
func (l *List) DeleteAt(i int) error {
	if !l.isLink() {
		return l.RemoveAt(i)
	}
	vs := l.values()
	if i < 0 || i >= len(vs) {
		return &ErrOutOfBoundsIndex{Requested: i, Valid: len(vs)}
	}
	v := vs[i]
	if v.Null {
		return l.RemoveAt(i)
	}
	if err := l.obj.tx.removeObjectRec(l.col.LinkedTo, keys.ObjKey(v.ObjID)); err != nil {
		return err
	}
	// removeObjectRec already pruned this element from the list via the
	// backlink-severing path (links.go's clearForwardLink).
	l.obj.tx.log.record(Operation{Kind: OpListErase, Table: l.obj.table.Key, Obj: l.obj.key, Col: l.col.Key, Index: i})
	return nil
}

// DeleteAll deletes every object the list refers to (RemoveAll for a
// scalar list, which has nothing to delete).
func (l *List) DeleteAll() error {
	if !l.isLink() {
		return l.RemoveAll()
	}
	for l.Size() > 0 {
		if err := l.DeleteAt(0); err != nil {
			return err
		}
	}
	return nil
}

// ListAssignPolicy selects the conflict rule List.Assign applies at
// each overlapping index, per §4.4.
type ListAssignPolicy int

const (
	// UpdateAll writes every overlapping index unconditionally.
	UpdateAll ListAssignPolicy = iota
	// UpdateModified writes an overlapping index only when the new
	// value differs from the old one, and makes Assign a no-op
	// (including no notification) when from is l's own current
	// contents.
	UpdateModified
)

// isSameSequence reports whether from is the very slice backing l's
// current contents, i.e. l.Assign(l.values(), ...) self-assignment
// rather than two lists that merely compare equal.
func (l *List) isSameSequence(from []coltype.Value) bool {
	cur := l.values()
	if len(cur) == 0 || len(cur) != len(from) {
		return false
	}
	return &cur[0] == &from[0]
}

// Assign replaces l's contents with from, per §4.4: for each index
// i < min(len(from), l.Size()), the overlapping element is written
// per policy; any excess prior elements are removed from the tail, and
// any excess new elements are appended.
func (l *List) Assign(from []coltype.Value, policy ListAssignPolicy) error {
	if policy == UpdateModified && l.isSameSequence(from) {
		return nil
	}
	old := l.values()
	n, m := len(old), len(from)
	overlap := n
	if m < overlap {
		overlap = m
	}
	for i := 0; i < overlap; i++ {
		if policy == UpdateAll || !old[i].Equal(from[i]) {
			if err := l.Set(i, from[i]); err != nil {
				return err
			}
		}
	}
	for n > overlap {
		n--
		if err := l.RemoveAt(n); err != nil {
			return err
		}
	}
	for i := overlap; i < m; i++ {
		if err := l.Add(from[i]); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the index of the first element equal to v, or -1.
func (l *List) Find(v coltype.Value) int {
	for i, e := range l.values() {
		if e.Equal(v) {
			return i
		}
	}
	return -1
}

func aggregate(kind coltype.Kind, op string, vs []coltype.Value, combine func(acc, v float64) float64, seed float64) (coltype.Value, error) {
	if !kind.IsNumeric() {
		return coltype.Value{}, &coltype.ErrUnsupportedColumnType{Kind: kind, Operation: op}
	}
	acc := seed
	count := 0
	for _, v := range vs {
		if v.Null {
			continue
		}
		acc = combine(acc, v.Float64())
		count++
	}
	if count == 0 {
		if op == "sum" {
			return floatToKind(kind, 0), nil
		}
		return coltype.NullValue(kind), nil
	}
	if op == "average" {
		acc /= float64(count)
	}
	return floatToKind(kind, acc), nil
}

func floatToKind(kind coltype.Kind, f float64) coltype.Value {
	switch kind {
	case coltype.Int:
		return coltype.IntValue(int64(f))
	case coltype.Float:
		return coltype.FloatValue(float32(f))
	default:
		return coltype.DoubleValue(f)
	}
}

func (l *List) Sum() (coltype.Value, error) {
	return aggregate(l.col.Kind, "sum", l.values(), func(acc, v float64) float64 { return acc + v }, 0)
}

func (l *List) Average() (coltype.Value, error) {
	return aggregate(l.col.Kind, "average", l.values(), func(acc, v float64) float64 { return acc + v }, 0)
}

func (l *List) Min() (coltype.Value, error) {
	return aggregate(l.col.Kind, "min", l.values(), func(acc, v float64) float64 { return math.Min(acc, v) }, math.Inf(1))
}

func (l *List) Max() (coltype.Value, error) {
	return aggregate(l.col.Kind, "max", l.values(), func(acc, v float64) float64 { return math.Max(acc, v) }, math.Inf(-1))
}

// Set is the typed accessor over a set-valued column: an unordered
// collection deduplicated on the element's set key.
type Set struct {
	obj *Object
	col *schema.Column
}

func (s *Set) set() *orderedSet {
	row := s.obj.row()
	os, ok := row.Sets[s.col.Key]
	if !ok {
		os = newOrderedSet()
		row.Sets[s.col.Key] = os
	}
	return os
}

func setKey(v coltype.Value) string {
	if v.Null {
		return "null"
	}
	return fmt.Sprintf("%s:%s", v.Kind, v.String())
}

func (s *Set) Size() int { return s.set().size() }

func (s *Set) Values() []coltype.Value { return s.set().values() }

func (s *Set) Contains(v coltype.Value) bool {
	_, ok := s.set().byKey[setKey(v)]
	return ok
}

func (s *Set) Insert(v coltype.Value) (bool, error) {
	if s.col.Kind != coltype.Mixed && !v.Null && v.Kind != s.col.Kind {
		return false, &ErrWrongType{Column: s.col.Name, Expected: s.col.Kind.String(), Actual: v.Kind.String()}
	}
	added := s.set().add(setKey(v), v)
	if added {
		s.obj.tx.log.record(Operation{Kind: OpSetInsert, Table: s.obj.table.Key, Obj: s.obj.key, Col: s.col.Key, Value: v})
	}
	return added, nil
}

func (s *Set) Remove(v coltype.Value) bool {
	removed := s.set().remove(setKey(v))
	if removed {
		s.obj.tx.log.record(Operation{Kind: OpSetErase, Table: s.obj.table.Key, Obj: s.obj.key, Col: s.col.Key, Value: v})
	}
	return removed
}

func (s *Set) Clear() {
	s.obj.row().Sets[s.col.Key] = newOrderedSet()
	s.obj.tx.log.record(Operation{Kind: OpSetClear, Table: s.obj.table.Key, Obj: s.obj.key, Col: s.col.Key})
}

// Dictionary is the typed accessor over a string-keyed dictionary
// column.
type Dictionary struct {
	obj *Object
	col *schema.Column
}

func (d *Dictionary) dict() map[string]coltype.Value {
	row := d.obj.row()
	m, ok := row.Dicts[d.col.Key]
	if !ok {
		m = make(map[string]coltype.Value)
		row.Dicts[d.col.Key] = m
	}
	return m
}

func (d *Dictionary) Size() int { return len(d.dict()) }

func (d *Dictionary) Get(key string) (coltype.Value, bool) {
	v, ok := d.dict()[key]
	return v, ok
}

func (d *Dictionary) Set(key string, v coltype.Value) error {
	if d.col.Kind != coltype.Mixed && !v.Null && v.Kind != d.col.Kind {
		return &ErrWrongType{Column: d.col.Name, Expected: d.col.Kind.String(), Actual: v.Kind.String()}
	}
	d.dict()[key] = v
	d.obj.tx.log.record(Operation{Kind: OpDictSet, Table: d.obj.table.Key, Obj: d.obj.key, Col: d.col.Key, DictKey: key, Value: v})
	return nil
}

func (d *Dictionary) Erase(key string) bool {
	m := d.dict()
	if _, ok := m[key]; !ok {
		return false
	}
	delete(m, key)
	d.obj.tx.log.record(Operation{Kind: OpDictErase, Table: d.obj.table.Key, Obj: d.obj.key, Col: d.col.Key, DictKey: key})
	return true
}

func (d *Dictionary) Clear() {
	d.obj.row().Dicts[d.col.Key] = make(map[string]coltype.Value)
	d.obj.tx.log.record(Operation{Kind: OpDictClear, Table: d.obj.table.Key, Obj: d.obj.key, Col: d.col.Key})
}

func (d *Dictionary) Keys() []string {
	out := make([]string, 0, len(d.dict()))
	for k := range d.dict() {
		out = append(out, k)
	}
	return out
}

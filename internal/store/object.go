package store

import (
	"smfdb/internal/coltype"
	"smfdb/internal/keys"
	"smfdb/internal/schema"
)

// Object is a handle onto one row, scoped to the Transaction that
// produced it via GetObject/CreateObject. It implements the accessor
// surface from §4.3: typed get/set with WrongType checking, diff-policy
// writes for scalars, and collection/link bookkeeping.
type Object struct {
	tx    *Transaction
	table *schema.Table
	key   keys.ObjKey
}

// GetObject binds an Object handle to obj in table t, failing if obj
// has been removed (or never existed) at this transaction's snapshot.
func (tx *Transaction) GetObject(t keys.TableKey, obj keys.ObjKey) (*Object, error) {
	table := tx.db.Schema.TableByKey(t)
	if table == nil {
		return nil, &ErrMissingProperty{Table: "<unknown>", Name: ""}
	}
	if !tx.ObjectExists(t, obj) {
		return nil, &ErrInvalidated{What: "object"}
	}
	return &Object{tx: tx, table: table, key: obj}, nil
}

func (o *Object) Key() keys.ObjKey { return o.key }

// Table returns the schema Table this object belongs to, so external
// packages (e.g. the query compiler) can continue a key path without
// reaching into store internals.
func (o *Object) Table() *schema.Table { return o.table }

func (o *Object) column(name string) (*schema.Column, error) {
	col := o.table.FindColumn(name)
	if col == nil {
		return nil, &ErrMissingProperty{Table: o.table.Name, Name: name}
	}
	return col, nil
}

func (o *Object) row() *Row {
	r, _ := o.tx.row(o.table.Key, o.key)
	return r
}

// Get returns name's current scalar value, or a Null of the column's
// kind if the field was never written, whether or not the column is
// nullable.
func (o *Object) Get(name string) (coltype.Value, error) {
	col, err := o.column(name)
	if err != nil {
		return coltype.Value{}, err
	}
	if col.IsCollection() || col.Kind == coltype.BackLink {
		return coltype.Value{}, &ErrWrongType{Column: name, Expected: "scalar", Actual: "collection"}
	}
	v, ok := o.row().Scalars[col.Key]
	if !ok {
		return coltype.NullValue(col.Kind), nil
	}
	return v, nil
}

// Set writes name's scalar value under the UpdateAll policy, enforcing
// the column's kind (Mixed columns accept any kind) and nullability.
func (o *Object) Set(name string, v coltype.Value) error {
	return o.SetWithPolicy(name, v, UpdateAll)
}

// SetWithPolicy is Set with an explicit ListAssignPolicy, mirroring
// List.Assign's diff policy at scalar granularity per §4.3: under
// UpdateModified, a write that doesn't change the stored value is a
// no-op, recording no Operation and firing no change notification.
func (o *Object) SetWithPolicy(name string, v coltype.Value, policy ListAssignPolicy) error {
	col, err := o.column(name)
	if err != nil {
		return err
	}
	if col.IsCollection() {
		return &ErrWrongType{Column: name, Expected: "collection", Actual: "scalar"}
	}
	if col.Kind != coltype.Mixed && !v.Null && v.Kind != col.Kind {
		return &ErrWrongType{Column: name, Expected: col.Kind.String(), Actual: v.Kind.String()}
	}
	if v.Null && !col.Nullable() {
		return &ErrWrongType{Column: name, Expected: "non-null " + col.Kind.String(), Actual: "null"}
	}
	if col.Kind == coltype.Link {
		if policy == UpdateModified {
			if prev, ok := o.row().Scalars[col.Key]; ok && prev.Equal(v) {
				return nil
			}
		}
		return o.setLink(col, v)
	}
	if policy == UpdateModified {
		if prev, ok := o.row().Scalars[col.Key]; ok && prev.Equal(v) {
			return nil
		}
	}
	o.row().Scalars[col.Key] = v
	o.tx.log.record(Operation{Kind: OpSet, Table: o.table.Key, Obj: o.key, Col: col.Key, Value: v})
	return nil
}

// setLink rewrites a forward Link field: it removes the previous
// target's backlink entry (and, for an embedded target, deletes the
// orphaned embedded child), then registers the new target's backlink.
// Linking an already-managed embedded object from a second parent is
// rejected, mirroring realm-core's single-owner embedded invariant.
func (o *Object) setLink(col *schema.Column, v coltype.Value) error {
	targetTable := o.tx.db.Schema.TableByKey(col.LinkedTo)
	if targetTable != nil && targetTable.Embedded && !v.Null {
		tgtObj := keys.ObjKey(v.ObjID)
		if row, ok := o.tx.row(col.LinkedTo, tgtObj); ok {
			if len(row.Lists[col.OriginCol]) > 0 {
				return &ErrInvalidEmbeddedOperation{Reason: "embedded object is already owned by another parent"}
			}
		}
	}

	row := o.row()
	if prev, ok := row.Scalars[col.Key]; ok && !prev.Null {
		o.tx.removeBacklinkEntry(col.LinkedTo, keys.ObjKey(prev.ObjID), col.OriginCol, o.key)
		if targetTable != nil && targetTable.Embedded {
			if err := o.tx.removeObjectRec(col.LinkedTo, keys.ObjKey(prev.ObjID)); err != nil {
				return err
			}
		}
	}
	if !v.Null {
		o.tx.addBacklink(col.LinkedTo, keys.ObjKey(v.ObjID), col.OriginCol, o.key)
	}
	row.Scalars[col.Key] = v
	o.tx.log.record(Operation{Kind: OpSet, Table: o.table.Key, Obj: o.key, Col: col.Key, Value: v})
	return nil
}

// CreateEmbedded creates a new object in the embedded target table of
// a Link column and atomically links it from o, replacing any
// previous occupant (§4.3, "setting an embedded link creates a fresh
// child and destroys the old one").
func (o *Object) CreateEmbedded(name string) (*Object, error) {
	col, err := o.column(name)
	if err != nil {
		return nil, err
	}
	if col.Kind != coltype.Link {
		return nil, &ErrWrongType{Column: name, Expected: "Link", Actual: col.Kind.String()}
	}
	targetTable := o.tx.db.Schema.TableByKey(col.LinkedTo)
	if targetTable == nil || !targetTable.Embedded {
		return nil, &ErrInvalidEmbeddedOperation{Reason: "target table is not embedded"}
	}
	child, err := o.tx.CreateObject(col.LinkedTo)
	if err != nil {
		return nil, err
	}
	if err := o.Set(name, coltype.LinkValue(uint64(child))); err != nil {
		return nil, err
	}
	return o.tx.GetObject(col.LinkedTo, child)
}

// Remove deletes the underlying row, severing every link in both
// directions (§4.3).
func (o *Object) Remove() error {
	return o.tx.RemoveObject(o.table.Key, o.key)
}

// List returns a List accessor over a LinkList or scalar-valued list
// column.
func (o *Object) List(name string) (*List, error) {
	col, err := o.column(name)
	if err != nil {
		return nil, err
	}
	if !col.IsList() {
		return nil, &ErrWrongType{Column: name, Expected: "list", Actual: "scalar"}
	}
	return &List{obj: o, col: col}, nil
}

// Set returns a Set accessor over a set-valued column. (Named SetOf to
// avoid colliding with the scalar Set method.)
func (o *Object) SetOf(name string) (*Set, error) {
	col, err := o.column(name)
	if err != nil {
		return nil, err
	}
	if !col.IsSet() {
		return nil, &ErrWrongType{Column: name, Expected: "set", Actual: "scalar"}
	}
	return &Set{obj: o, col: col}, nil
}

// Dictionary returns a Dictionary accessor over a dictionary-valued column.
func (o *Object) Dictionary(name string) (*Dictionary, error) {
	col, err := o.column(name)
	if err != nil {
		return nil, err
	}
	if !col.IsDict() {
		return nil, &ErrWrongType{Column: name, Expected: "dictionary", Actual: "scalar"}
	}
	return &Dictionary{obj: o, col: col}, nil
}

// The following are thin, panic-free convenience wrappers over Get/Set
// for the common scalar kinds, saving callers the coltype.Value
// boilerplate for the frequent cases.

func (o *Object) GetInt(name string) (int64, error) {
	v, err := o.Get(name)
	if err != nil {
		return 0, err
	}
	return v.I, nil
}

func (o *Object) SetInt(name string, val int64) error {
	return o.Set(name, coltype.IntValue(val))
}

func (o *Object) GetString(name string) (string, error) {
	v, err := o.Get(name)
	if err != nil {
		return "", err
	}
	return v.S, nil
}

func (o *Object) SetString(name string, val string) error {
	return o.Set(name, coltype.StringValue(val))
}

func (o *Object) GetBool(name string) (bool, error) {
	v, err := o.Get(name)
	if err != nil {
		return false, err
	}
	return v.B, nil
}

func (o *Object) SetBool(name string, val bool) error {
	return o.Set(name, coltype.BoolValue(val))
}

// GetLinkedObject resolves name's forward Link field to the target
// Object, returning ok=false when the field is null.
func (o *Object) GetLinkedObject(name string) (obj *Object, ok bool, err error) {
	col, err := o.column(name)
	if err != nil {
		return nil, false, err
	}
	if col.Kind != coltype.Link {
		return nil, false, &ErrWrongType{Column: name, Expected: "Link", Actual: col.Kind.String()}
	}
	v, exists := o.row().Scalars[col.Key]
	if !exists || v.Null {
		return nil, false, nil
	}
	target, err := o.tx.GetObject(col.LinkedTo, keys.ObjKey(v.ObjID))
	if err != nil {
		return nil, false, err
	}
	return target, true, nil
}

// SetLinkedObject points name's forward Link field at target.
func (o *Object) SetLinkedObject(name string, target *Object) error {
	if target == nil {
		col, err := o.column(name)
		if err != nil {
			return err
		}
		return o.Set(name, coltype.NullValue(col.Kind))
	}
	return o.Set(name, coltype.LinkValue(uint64(target.key)))
}

package store

import (
	"smfdb/internal/coltype"
	"smfdb/internal/keys"
	"smfdb/internal/schema"
)

// row looks up obj's row within table t at this transaction's
// snapshot, creating the table's slot lazily (read transactions never
// mutate it; write transactions already cloned the base snapshot in
// BeginWrite).
func (tx *Transaction) row(t keys.TableKey, obj keys.ObjKey) (*Row, bool) {
	td := tx.tableData(t)
	r, ok := td.rows[obj]
	return r, ok
}

// severOutgoingLink clears col's value(s) on row, removing the
// corresponding backlink entry from every target object and, when the
// target table is embedded, cascading the delete to the target itself
// (§3's "an embedded object is destroyed along with its owner").
func (tx *Transaction) severOutgoingLink(row *Row, col *schema.Column) error {
	targetTable := tx.db.Schema.TableByKey(col.LinkedTo)
	backColKey := col.OriginCol

	clearTarget := func(v coltype.Value) error {
		if v.Null {
			return nil
		}
		tgtObj := keys.ObjKey(v.ObjID)
		tx.removeBacklinkEntry(col.LinkedTo, tgtObj, backColKey, row.Obj)
		if targetTable != nil && targetTable.Embedded {
			return tx.removeObjectRec(col.LinkedTo, tgtObj)
		}
		return nil
	}

	if col.IsList() {
		for _, v := range row.Lists[col.Key] {
			if err := clearTarget(v); err != nil {
				return err
			}
		}
		delete(row.Lists, col.Key)
		return nil
	}

	if v, ok := row.Scalars[col.Key]; ok {
		if err := clearTarget(v); err != nil {
			return err
		}
	}
	delete(row.Scalars, col.Key)
	return nil
}

// severIncomingLinks clears, on every object that links to obj through
// the forward column backCol inverts, the field or list element
// referring to obj.
func (tx *Transaction) severIncomingLinks(table *schema.Table, backCol *schema.Column, obj keys.ObjKey) error {
	row, ok := tx.row(table.Key, obj)
	if !ok {
		return nil
	}
	originTable := tx.db.Schema.TableByKey(backCol.OriginTable)
	if originTable == nil {
		return nil
	}
	for _, v := range row.Lists[backCol.Key] {
		if v.Null {
			continue
		}
		tx.clearForwardLink(originTable, backCol.OriginCol, keys.ObjKey(v.ObjID), obj)
	}
	delete(row.Lists, backCol.Key)
	return nil
}

// clearForwardLink removes target from refObj's forward link/link-list
// field fwdColKey on originTable.
func (tx *Transaction) clearForwardLink(originTable *schema.Table, fwdColKey keys.ColKey, refObj, target keys.ObjKey) {
	row, ok := tx.row(originTable.Key, refObj)
	if !ok {
		return
	}
	col := originTable.ColumnByKey(fwdColKey)
	if col == nil {
		return
	}
	if col.IsList() {
		list := row.Lists[fwdColKey]
		out := list[:0]
		for _, v := range list {
			if !v.Null && keys.ObjKey(v.ObjID) == target {
				continue
			}
			out = append(out, v)
		}
		row.Lists[fwdColKey] = out
		return
	}
	if v, ok := row.Scalars[fwdColKey]; ok && !v.Null && keys.ObjKey(v.ObjID) == target {
		row.Scalars[fwdColKey] = coltype.NullValue(coltype.Link)
	}
}

// addBacklink appends referrer to the backlink list on tgtObj. Used
// whenever a forward link field is set, so the partner backlink column
// always reflects the live set of referrers (§3 invariant).
func (tx *Transaction) addBacklink(targetTable keys.TableKey, tgtObj keys.ObjKey, backColKey keys.ColKey, referrer keys.ObjKey) {
	row, ok := tx.row(targetTable, tgtObj)
	if !ok {
		return
	}
	row.Lists[backColKey] = append(row.Lists[backColKey], coltype.LinkValue(uint64(referrer)))
}

// removeBacklinkEntry removes one occurrence of referrer from tgtObj's
// backlink list.
func (tx *Transaction) removeBacklinkEntry(targetTable keys.TableKey, tgtObj keys.ObjKey, backColKey keys.ColKey, referrer keys.ObjKey) {
	row, ok := tx.row(targetTable, tgtObj)
	if !ok {
		return
	}
	list := row.Lists[backColKey]
	for i, v := range list {
		if !v.Null && keys.ObjKey(v.ObjID) == referrer {
			row.Lists[backColKey] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

package store

import (
	"smfdb/internal/keys"
)

// OperationKind enumerates the changeset wire-format instructions from
// §6: add/erase table and column, create/erase object, scalar set, and
// the per-collection mutation kinds.
//
// Grounded on the teacher's internal/migration.Operation enum (there,
// OperationSQL/OperationBreaking/OperationNote/OperationUnresolved);
// here the closed set is the sync changeset instruction vocabulary
// instead of a SQL-statement vocabulary.
type OperationKind int

const (
	OpAddTable OperationKind = iota
	OpEraseTable
	OpAddColumn
	OpEraseColumn
	OpCreateObject
	OpEraseObject
	OpSet
	OpListInsert
	OpListErase
	OpListMove
	OpListClear
	OpSetInsert
	OpSetErase
	OpSetClear
	OpDictSet
	OpDictErase
	OpDictClear
)

// Operation is one instruction in a transaction's changeset, over the
// (TableKey, ObjKey, ColKey, value) tuple shape described in §6.
type Operation struct {
	Kind     OperationKind
	Table    keys.TableKey
	Obj      keys.ObjKey
	Col      keys.ColKey
	Index    int // list index for OpListInsert/OpListErase; source index for OpListMove
	ToIndex  int // destination index for OpListMove
	DictKey  string
	Value    any
}

// ChangeLog accumulates the Operations produced within a single write
// transaction. Mirrors the teacher's Migration.Operations /
// AddStatement family of append helpers, generalized to the sync
// changeset vocabulary.
type ChangeLog struct {
	Version    uint64
	Operations []Operation
}

func (c *ChangeLog) record(op Operation) {
	c.Operations = append(c.Operations, op)
}

// AffectedObjects returns the set of (table, obj) pairs touched by
// this changeset.
func (c *ChangeLog) AffectedObjects() map[keys.TableKey]map[keys.ObjKey]struct{} {
	out := make(map[keys.TableKey]map[keys.ObjKey]struct{})
	for _, op := range c.Operations {
		tbl, ok := out[op.Table]
		if !ok {
			tbl = make(map[keys.ObjKey]struct{})
			out[op.Table] = tbl
		}
		tbl[op.Obj] = struct{}{}
	}
	return out
}

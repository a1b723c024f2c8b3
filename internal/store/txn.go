package store

import (
	"smfdb/internal/coltype"
	"smfdb/internal/keys"
)

// Transaction is a bound snapshot of the database, either read-only or
// writable. Object, List, and Results accessors borrow a reference to
// their host Transaction. Closing the transaction makes its write
// operations (Commit, CreateObject, RemoveObject, RemoveColumn) fail
// with ErrWrongTransactionState; accessors derived from it are not
// checked and keep reading its snapshot.
type Transaction struct {
	db       *DB
	snap     *snapshot
	writable bool
	log      *ChangeLog
	closed   bool
}

// Version returns the committed version this transaction observes.
func (tx *Transaction) Version() uint64 { return tx.snap.version }

func (tx *Transaction) requireOpen(op string) error {
	if tx.closed {
		return &ErrWrongTransactionState{Operation: op, Reason: "transaction is closed"}
	}
	return nil
}

func (tx *Transaction) requireWrite(op string) error {
	if err := tx.requireOpen(op); err != nil {
		return err
	}
	if !tx.writable {
		return &ErrWrongTransactionState{Operation: op, Reason: "not in a write transaction"}
	}
	return nil
}

func (tx *Transaction) tableData(t keys.TableKey) *tableData {
	td, ok := tx.snap.tables[t]
	if !ok {
		td = newTableData()
		tx.snap.tables[t] = td
	}
	return td
}

// Commit finalizes a write transaction, making its changes visible to
// subsequent readers and delivering change notifications.
func (tx *Transaction) Commit() error {
	if err := tx.requireWrite("Commit"); err != nil {
		return err
	}
	tx.closed = true
	return tx.db.commit(tx)
}

// Rollback discards a write transaction's staged changes without
// publishing them, releasing the writer lock.
func (tx *Transaction) Rollback() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.db.rollback(tx)
}

// Close marks a read transaction closed. For a write transaction it
// calls Rollback, which discards uncommitted changes and releases the
// writer lock.
func (tx *Transaction) Close() {
	if tx.writable {
		tx.Rollback()
		return
	}
	tx.closed = true
}

// Refresh rebinds a read transaction to the latest committed snapshot,
// per §5 ("A write becomes visible to a reader only after the reader
// observes the commit via refresh() or by opening a new read
// transaction").
func (tx *Transaction) Refresh() {
	if tx.writable || tx.closed {
		return
	}
	tx.snap = tx.db.latest()
}

// ObjectExists reports whether obj is present in table t at this
// transaction's snapshot.
func (tx *Transaction) ObjectExists(t keys.TableKey, obj keys.ObjKey) bool {
	td, ok := tx.snap.tables[t]
	if !ok {
		return false
	}
	_, ok = td.rows[obj]
	return ok
}

// CreateObject inserts a brand-new row with no fields set and records
// the OpCreateObject instruction in the changeset.
func (tx *Transaction) CreateObject(t keys.TableKey) (keys.ObjKey, error) {
	if err := tx.requireWrite("CreateObject"); err != nil {
		return 0, err
	}
	table := tx.db.Schema.TableByKey(t)
	obj := table.NextObjKey()
	td := tx.tableData(t)
	td.rows[obj] = newRow(obj)
	td.order = append(td.order, obj)
	tx.log.record(Operation{Kind: OpCreateObject, Table: t, Obj: obj})
	return obj, nil
}

// RemoveObject deletes obj from table t, clearing every outgoing link
// (updating partner backlinks) and incoming link (clearing the
// referring field or list element), and cascading to embedded
// children, per §4.3.
func (tx *Transaction) RemoveObject(t keys.TableKey, obj keys.ObjKey) error {
	if err := tx.requireWrite("RemoveObject"); err != nil {
		return err
	}
	return tx.removeObjectRec(t, obj)
}

// RemoveColumn deletes a column from t's schema, consulting this
// transaction's row count to decide whether removing the primary key
// column is currently allowed (schema.Table itself has no notion of
// object counts, since those live in store), and bracketing the change
// with schema's NeedUpgrade -> Upgrading -> Ready migration states.
func (tx *Transaction) RemoveColumn(t keys.TableKey, name string) error {
	if err := tx.requireWrite("RemoveColumn"); err != nil {
		return err
	}
	table := tx.db.Schema.TableByKey(t)
	if table == nil {
		return &ErrMissingProperty{Table: "<unknown>", Name: name}
	}
	if err := tx.db.Schema.RequireUpgrade(); err != nil {
		return err
	}
	if err := tx.db.Schema.BeginUpgrade(); err != nil {
		return err
	}
	td := tx.tableData(t)
	if err := table.RemoveColumn(tx.db.Schema, name, len(td.rows) == 0); err != nil {
		// The rejected removal changed nothing; return the schema to Ready.
		_ = tx.db.Schema.FinishUpgrade()
		return err
	}
	return tx.db.Schema.FinishUpgrade()
}

func (tx *Transaction) removeObjectRec(t keys.TableKey, obj keys.ObjKey) error {
	table := tx.db.Schema.TableByKey(t)
	td := tx.tableData(t)
	row, ok := td.rows[obj]
	if !ok {
		return nil
	}

	// Sever outgoing links: update partner backlinks, and cascade
	// delete children reached through links into embedded tables.
	for _, col := range table.Columns {
		if col.Kind != coltype.Link {
			continue
		}
		if err := tx.severOutgoingLink(row, col); err != nil {
			return err
		}
	}

	// Sever incoming links (backlinks): clear the referring field on
	// every linking object.
	for _, col := range table.Columns {
		if col.Kind != coltype.BackLink {
			continue
		}
		if err := tx.severIncomingLinks(table, col, obj); err != nil {
			return err
		}
	}

	delete(td.rows, obj)
	for i, k := range td.order {
		if k == obj {
			td.order = append(td.order[:i], td.order[i+1:]...)
			break
		}
	}
	table.UnbindObj(obj)
	tx.log.record(Operation{Kind: OpEraseObject, Table: t, Obj: obj})
	return nil
}

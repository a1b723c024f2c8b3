package store

import (
	"sync"

	"github.com/sirupsen/logrus"

	"smfdb/internal/keys"
	"smfdb/internal/schema"
)

var log = logrus.WithField("component", "store")

// tableData is the committed state of one table at the database's
// current version.
type tableData struct {
	rows  map[keys.ObjKey]*Row
	order []keys.ObjKey // insertion order, for the Insertion ordering policy
}

func newTableData() *tableData { return &tableData{rows: make(map[keys.ObjKey]*Row)} }

func (t *tableData) clone() *tableData {
	out := newTableData()
	for k, v := range t.rows {
		out.rows[k] = v.clone()
	}
	out.order = append(out.order, t.order...)
	return out
}

// snapshot is an immutable, versioned copy of every table's data, the
// substitute for realm-core's shared, ref-counted top-level array
// reference (§6's "top-level reference"). Because the on-disk
// allocator is out of scope (§1), snapshots live only in memory.
type snapshot struct {
	version uint64
	tables  map[keys.TableKey]*tableData
}

// DB is the single-file-equivalent embedded database: one Schema plus
// a history of committed snapshots. At most one write transaction is
// active at a time, serialized by writeMu, matching §5's "serialized
// by an advisory lock" model (here a real in-process mutex, since
// there is no separate process to race with).
type DB struct {
	Schema *schema.Database

	mu      sync.RWMutex // guards `current`
	writeMu sync.Mutex   // serializes writers

	current *snapshot

	notifyMu  sync.Mutex
	onCommit  []func(*ChangeLog)
}

func NewDB(sc *schema.Database) *DB {
	sc.Declare()
	return &DB{
		Schema: sc,
		current: &snapshot{
			version: 0,
			tables:  make(map[keys.TableKey]*tableData),
		},
	}
}

// RegisterCommitHook installs a callback invoked synchronously after
// every successful commit, with the commit's changeset. The notify
// package uses this to drive its background differencing job (§4.8
// step 1).
func (db *DB) RegisterCommitHook(fn func(*ChangeLog)) {
	db.notifyMu.Lock()
	defer db.notifyMu.Unlock()
	db.onCommit = append(db.onCommit, fn)
}

func (db *DB) latest() *snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.current
}

// BeginRead opens a read transaction pinned to the latest committed
// snapshot. The returned Transaction is valid until Close is called.
func (db *DB) BeginRead() *Transaction {
	snap := db.latest()
	return &Transaction{db: db, snap: snap, writable: false}
}

// BeginWrite acquires the exclusive writer lock (blocking per §5) and
// returns a Transaction whose table data is a private, mutable copy of
// the latest committed snapshot.
func (db *DB) BeginWrite() *Transaction {
	db.writeMu.Lock()
	base := db.latest()
	work := &snapshot{version: base.version, tables: make(map[keys.TableKey]*tableData, len(base.tables))}
	for k, v := range base.tables {
		work.tables[k] = v.clone()
	}
	return &Transaction{
		db:       db,
		snap:     work,
		writable: true,
		log:      &ChangeLog{},
	}
}

// Commit atomically advances the database's top reference to the
// writer's snapshot and fires the commit hooks with the changeset.
func (db *DB) commit(w *Transaction) error {
	if !w.writable {
		return &ErrWrongTransactionState{Operation: "Commit", Reason: "not a write transaction"}
	}
	defer db.writeMu.Unlock()

	w.snap.version = db.latest().version + 1
	db.mu.Lock()
	db.current = w.snap
	db.mu.Unlock()
	w.log.Version = w.snap.version

	db.notifyMu.Lock()
	hooks := append([]func(*ChangeLog){}, db.onCommit...)
	db.notifyMu.Unlock()
	for _, hook := range hooks {
		hook(w.log)
	}
	log.WithField("version", w.snap.version).WithField("ops", len(w.log.Operations)).Debug("committed write transaction")
	return nil
}

func (db *DB) rollback(w *Transaction) {
	if w.writable {
		db.writeMu.Unlock()
	}
}

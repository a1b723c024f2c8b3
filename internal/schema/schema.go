// Package schema is the single source of truth for the persistent
// per-table schema ("Spec") described in §3/§4.2: an ordered sequence
// of columns identified by stable ColKeys, the primary key designation,
// embedded-table marking, and forward-link/backlink pairing.
//
// It is grounded on the teacher's internal/core schema representation
// (Database/Table/Column/Constraint) but the domain is the object
// store's own schema, not a SQL dialect's DDL shape.
package schema

import (
	"fmt"
	"strings"

	"smfdb/internal/coltype"
	"smfdb/internal/keys"
)

// Database is the root schema: an ordered set of tables, each with a
// process-stable TableKey.
type Database struct {
	Tables     []*Table
	byName     map[string]*Table
	byKey      map[keys.TableKey]*Table
	tableAlloc *keys.TableAllocator

	migration MigrationState
}

// MigrationState reports where db currently sits in §4.2's migration
// state machine.
func (db *Database) MigrationState() MigrationState { return db.migration }

// Declare marks a freshly built, Unversioned schema Ready without
// running a migration, the path a store takes the first time it is
// ever opened (there is no prior on-disk version to reconcile). It is
// a no-op once db has left Unversioned.
func (db *Database) Declare() {
	if db.migration == Unversioned {
		db.migration = Ready
	}
}

// RequireUpgrade marks db as needing a migration before further schema
// changes may run, transitioning Unversioned or Ready to NeedUpgrade.
func (db *Database) RequireUpgrade() error {
	switch db.migration {
	case Unversioned, Ready:
		db.migration = NeedUpgrade
		return nil
	case NeedUpgrade:
		return nil
	default:
		return fmt.Errorf("schema: cannot require upgrade from state %s", db.migration)
	}
}

// BeginUpgrade transitions NeedUpgrade -> Upgrading, bracketing the
// start of a migration function's run.
func (db *Database) BeginUpgrade() error {
	if db.migration != NeedUpgrade {
		return fmt.Errorf("schema: cannot begin upgrade from state %s", db.migration)
	}
	db.migration = Upgrading
	return nil
}

// FinishUpgrade transitions Upgrading -> Ready once a migration
// function has finished running.
func (db *Database) FinishUpgrade() error {
	if db.migration != Upgrading {
		return fmt.Errorf("schema: cannot finish upgrade from state %s", db.migration)
	}
	db.migration = Ready
	return nil
}

func NewDatabase() *Database {
	return &Database{
		byName:     make(map[string]*Table),
		byKey:      make(map[keys.TableKey]*Table),
		tableAlloc: keys.NewTableAllocator(),
	}
}

// Column describes one column inside a Table.
type Column struct {
	Key      keys.ColKey
	Name     string
	Kind     coltype.Kind
	Attrs    keys.Attr
	LinkedTo keys.TableKey // valid when Kind is Link or BackLink
	// OriginCol is, for a BackLink column, the (table, column) pair of
	// the forward Link column it inverts; for a Link column it names
	// its partner backlink if one has been synthesized.
	OriginTable keys.TableKey
	OriginCol   keys.ColKey
}

func (c *Column) Nullable() bool   { return c.Attrs.Has(keys.AttrNullable) }
func (c *Column) IsList() bool     { return c.Attrs.Has(keys.AttrList) }
func (c *Column) IsSet() bool      { return c.Attrs.Has(keys.AttrSet) }
func (c *Column) IsDict() bool     { return c.Attrs.Has(keys.AttrDictionary) }
func (c *Column) IsCollection() bool { return c.Attrs.IsCollection() }

// Table is one table's Spec: its ordered columns, primary key, and
// embedded-table marking.
type Table struct {
	Key      keys.TableKey
	Name     string
	Columns  []*Column
	byName   map[string]*Column
	byKey    map[keys.ColKey]*Column
	leafNext uint32
	salter   *keys.ColKeySalter
	objAlloc *keys.ObjAllocator

	PrimaryKey *keys.ColKey
	Embedded   bool

	// GlobalKeyOf maps GlobalKey (sync identity) to ObjKey for this table.
	GlobalKeyOf map[keys.GlobalKey]keys.ObjKey
	// objGlobalKey is the reverse index, used when severing sync identity.
	objGlobalKey map[keys.ObjKey]keys.GlobalKey
}

// MigrationState is the schema migration state machine from §4.2: a
// freshly constructed Database starts Unversioned; Declare moves it
// straight to Ready for a store with no prior on-disk version to
// reconcile against, while RequireUpgrade/BeginUpgrade/FinishUpgrade
// bracket a schema change that must run as a migration before the
// store is usable again.
type MigrationState int

const (
	Unversioned MigrationState = iota
	NeedUpgrade
	Upgrading
	Ready
)

func (s MigrationState) String() string {
	switch s {
	case Unversioned:
		return "unversioned"
	case NeedUpgrade:
		return "need_upgrade"
	case Upgrading:
		return "upgrading"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("MigrationState(%d)", int(s))
	}
}

// AddTable creates a new, empty table and registers it by name.
func (db *Database) AddTable(name string) (*Table, error) {
	if _, exists := db.byName[name]; exists {
		return nil, fmt.Errorf("schema: table %q already exists", name)
	}
	t := &Table{
		Key:          db.tableAlloc.Next(),
		Name:         name,
		byName:       make(map[string]*Column),
		byKey:        make(map[keys.ColKey]*Column),
		salter:       keys.NewColKeySalter(),
		objAlloc:     keys.NewObjAllocator(),
		GlobalKeyOf:  make(map[keys.GlobalKey]keys.ObjKey),
		objGlobalKey: make(map[keys.ObjKey]keys.GlobalKey),
	}
	db.Tables = append(db.Tables, t)
	db.byName[name] = t
	db.byKey[t.Key] = t
	return t, nil
}

func (db *Database) FindTable(name string) *Table        { return db.byName[name] }
func (db *Database) TableByKey(k keys.TableKey) *Table    { return db.byKey[k] }

// AddColumn appends a scalar or collection-valued column to t,
// rewriting an empty name to "col_<ordinal>" and suffixing a duplicate
// name, per §4.2's migration-time renaming rule.
func (t *Table) AddColumn(name string, kind coltype.Kind, attrs keys.Attr) (*Column, error) {
	name = t.resolveName(name)
	leaf := t.leafNext
	t.leafNext++
	col := &Column{
		Key:   keys.NewColKey(leaf, kind, attrs, t.salter.Salt(leaf)),
		Name:  name,
		Kind:  kind,
		Attrs: attrs,
	}
	t.Columns = append(t.Columns, col)
	t.byName[name] = col
	t.byKey[col.Key] = col
	return col, nil
}

func (t *Table) resolveName(name string) string {
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("col_%d", t.leafNext)
	}
	if _, exists := t.byName[name]; !exists {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if _, exists := t.byName[candidate]; !exists {
			return candidate
		}
	}
}

// AddLinkColumn adds a forward Link (or LinkList, via AttrList) column
// from t to target and synthesizes the partner BackLink column on
// target atomically, per the §3 invariant.
func (t *Table) AddLinkColumn(name string, target *Table, attrs keys.Attr) (*Column, error) {
	fwd, err := t.AddColumn(name, coltype.Link, attrs)
	if err != nil {
		return nil, err
	}
	fwd.LinkedTo = target.Key

	backName := fmt.Sprintf("@backlink.%s.%s", t.Name, name)
	back, err := target.AddColumn(backName, coltype.BackLink, keys.AttrList)
	if err != nil {
		return nil, err
	}
	back.LinkedTo = t.Key
	back.OriginTable = t.Key
	back.OriginCol = fwd.Key

	fwd.OriginTable = target.Key
	fwd.OriginCol = back.Key
	return fwd, nil
}

// RemoveColumn deletes a column. If it is a forward Link column with a
// synthesized backlink, the backlink is removed atomically too (and
// vice versa), per the §3 invariant. tableEmpty must report whether t
// currently holds any objects: removing the primary key column is only
// rejected while the table is non-empty, since object counts are a
// store-level fact the schema package doesn't otherwise track.
func (t *Table) RemoveColumn(db *Database, name string, tableEmpty bool) error {
	col, ok := t.byName[name]
	if !ok {
		return fmt.Errorf("schema: column %q not found on table %q", name, t.Name)
	}
	if t.PrimaryKey != nil && *t.PrimaryKey == col.Key && !tableEmpty {
		return fmt.Errorf("schema: cannot remove primary key column %q while table %q is non-empty", name, t.Name)
	}
	t.removeColumnRaw(col)
	if t.PrimaryKey != nil && *t.PrimaryKey == col.Key {
		t.PrimaryKey = nil
	}

	if col.Kind == coltype.Link || col.Kind == coltype.BackLink {
		partnerTable := db.TableByKey(col.OriginTable)
		if partnerTable != nil {
			if partner := partnerTable.byKey[col.OriginCol]; partner != nil {
				partnerTable.removeColumnRaw(partner)
			}
		}
	}
	return nil
}

func (t *Table) removeColumnRaw(col *Column) {
	delete(t.byName, col.Name)
	delete(t.byKey, col.Key)
	for i, c := range t.Columns {
		if c == col {
			t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
			break
		}
	}
}

// RenameColumn renames a column while preserving its ColKey, per §3
// ("Column keys are stable across schema changes that do not remove
// the column").
func (t *Table) RenameColumn(oldName, newName string) error {
	col, ok := t.byName[oldName]
	if !ok {
		return fmt.Errorf("schema: column %q not found on table %q", oldName, t.Name)
	}
	newName = t.resolveName(newName)
	delete(t.byName, oldName)
	col.Name = newName
	t.byName[newName] = col
	return nil
}

// SetPrimaryKey designates col (of kind Int, String, ObjectID, or
// UUID) as the table's primary key.
func (t *Table) SetPrimaryKey(name string) error {
	col, ok := t.byName[name]
	if !ok {
		return fmt.Errorf("schema: column %q not found on table %q", name, t.Name)
	}
	switch col.Kind {
	case coltype.Int, coltype.String, coltype.ObjectID, coltype.UUID:
	default:
		return fmt.Errorf("schema: primary key column %q must be Int, String, ObjectId, or UUID, got %s", name, col.Kind)
	}
	k := col.Key
	t.PrimaryKey = &k
	return nil
}

func (t *Table) SetEmbedded(embedded bool) { t.Embedded = embedded }

func (t *Table) FindColumn(name string) *Column          { return t.byName[name] }
func (t *Table) ColumnByKey(k keys.ColKey) *Column        { return t.byKey[k] }

// ResolveName resolves a column name to its stable ColKey.
func (t *Table) ResolveName(name string) (keys.ColKey, error) {
	col, ok := t.byName[name]
	if !ok {
		return 0, fmt.Errorf("schema: column %q not found on table %q", name, t.Name)
	}
	return col.Key, nil
}

// NextObjKey allocates a fresh, never-reused ObjKey for a new row in t.
func (t *Table) NextObjKey() keys.ObjKey { return t.objAlloc.Next() }

// BindGlobalKey records the sync-identity mapping for a newly created object.
func (t *Table) BindGlobalKey(g keys.GlobalKey, o keys.ObjKey) {
	t.GlobalKeyOf[g] = o
	t.objGlobalKey[o] = g
}

func (t *Table) GlobalKeyForObj(o keys.ObjKey) (keys.GlobalKey, bool) {
	g, ok := t.objGlobalKey[o]
	return g, ok
}

func (t *Table) UnbindObj(o keys.ObjKey) {
	if g, ok := t.objGlobalKey[o]; ok {
		delete(t.GlobalKeyOf, g)
		delete(t.objGlobalKey, o)
	}
}

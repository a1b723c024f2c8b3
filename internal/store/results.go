package store

import (
	"sort"

	"smfdb/internal/keys"
	"smfdb/internal/schema"
)

// OrderPolicy selects how a Results view enumerates its matching
// objects when no explicit sort descriptor is supplied, per §4.4.
type OrderPolicy int

const (
	// Unordered makes no enumeration guarantee beyond "every live
	// match appears exactly once"; no constructor in this package
	// selects it.
	Unordered OrderPolicy = iota
	// Insertion enumerates in object creation order, the policy
	// ResultsFor gives a table's base Results.
	Insertion
	// Sorted enumerates by a descriptor-supplied comparator.
	Sorted
)

// Predicate is the compiled-query hook a Results view filters through.
// A nil Predicate matches every object in the table.
type Predicate func(tx *Transaction, table *schema.Table, obj keys.ObjKey) bool

// Less orders two objects for the Sorted policy.
type Less func(a, b keys.ObjKey) bool

// Results is the live, lazily-evaluated view over a table described in
// §4.4: re-running Snapshot against the transaction's current binding
// always reflects the latest writes the transaction can see, matching
// realm-core's "Results re-runs its query against the current
// transaction state" contract.
type Results struct {
	tx        *Transaction
	table     *schema.Table
	policy    OrderPolicy
	predicate Predicate
	less      Less
	distinct  []keys.ColKey
	limit     int // 0 means unlimited
}

// Tx returns the transaction r currently evaluates against, for
// callers (the query compiler's CompileOrdering, notably) that need to
// build a Less comparator referencing live row data.
func (r *Results) Tx() *Transaction { return r.tx }

// Table returns the schema table r is scoped to.
func (r *Results) Table() *schema.Table { return r.table }

// ResultsFor returns the unfiltered, insertion-ordered base Results for t.
func (tx *Transaction) ResultsFor(t keys.TableKey) *Results {
	return &Results{tx: tx, table: tx.db.Schema.TableByKey(t), policy: Insertion}
}

// Filter narrows r to rows matching p, as the query compiler's
// lowered condition tree does.
func (r *Results) Filter(p Predicate) *Results {
	return &Results{tx: r.tx, table: r.table, policy: r.policy, predicate: p, less: r.less, distinct: r.distinct, limit: r.limit}
}

// Sort returns a copy of r ordered by less, per the Sort descriptor in §4.6.
func (r *Results) Sort(less Less) *Results {
	return &Results{tx: r.tx, table: r.table, policy: Sorted, predicate: r.predicate, less: less, distinct: r.distinct, limit: r.limit}
}

// Distinct returns a copy of r deduplicated on the tuple of cols, per
// the Distinct descriptor; the first occurrence (in the current
// ordering) of each distinct tuple is kept.
func (r *Results) Distinct(cols ...keys.ColKey) *Results {
	return &Results{tx: r.tx, table: r.table, policy: r.policy, predicate: r.predicate, less: r.less, distinct: cols, limit: r.limit}
}

// Limit returns a copy of r capped to at most n results.
func (r *Results) Limit(n int) *Results {
	return &Results{tx: r.tx, table: r.table, policy: r.policy, predicate: r.predicate, less: r.less, distinct: r.distinct, limit: n}
}

// Snapshot materializes r's current matches as an ordered slice of
// object keys. The descriptor ordering from §4.6 applies in sequence:
// filter, then sort (if any), then distinct, then limit.
func (r *Results) Snapshot() []keys.ObjKey {
	td, ok := r.tx.snap.tables[r.table.Key]
	if !ok {
		return nil
	}
	out := append([]keys.ObjKey(nil), td.order...)

	if r.predicate != nil {
		filtered := out[:0]
		for _, obj := range out {
			if r.predicate(r.tx, r.table, obj) {
				filtered = append(filtered, obj)
			}
		}
		out = filtered
	}

	if r.less != nil {
		sort.SliceStable(out, func(i, j int) bool { return r.less(out[i], out[j]) })
	}

	if len(r.distinct) > 0 {
		out = r.dedupe(out)
	}

	if r.limit > 0 && len(out) > r.limit {
		out = out[:r.limit]
	}
	return out
}

func (r *Results) dedupe(in []keys.ObjKey) []keys.ObjKey {
	seen := make(map[string]struct{}, len(in))
	out := make([]keys.ObjKey, 0, len(in))
	for _, obj := range in {
		row, ok := r.tx.row(r.table.Key, obj)
		if !ok {
			continue
		}
		key := ""
		for _, c := range r.distinct {
			if v, ok := row.Scalars[c]; ok {
				key += setKey(v) + "\x00"
			} else {
				key += "null\x00"
			}
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, obj)
	}
	return out
}

// Count is equivalent to len(r.Snapshot()) but avoids building the
// distinct/limit-adjusted slice when neither is set.
func (r *Results) Count() int {
	if len(r.distinct) == 0 && r.limit == 0 {
		td, ok := r.tx.snap.tables[r.table.Key]
		if !ok {
			return 0
		}
		if r.predicate == nil {
			return len(td.order)
		}
	}
	return len(r.Snapshot())
}

// Freeze returns a copy of r bound to a frozen, read-only transaction
// pinned to the snapshot r's transaction currently observes. Because
// snapshots here are immutable values (§1's out-of-scope allocator is
// replaced by deep-copy-on-write), freezing only needs to retain a
// reference to the current snapshot; it is unaffected by later writes
// on the live database, matching §4.4's freeze semantics.
func (r *Results) Freeze() *Results {
	frozen := &Transaction{db: r.tx.db, snap: r.tx.snap, writable: false, closed: false}
	return &Results{tx: frozen, table: r.table, policy: r.policy, predicate: r.predicate, less: r.less, distinct: r.distinct, limit: r.limit}
}

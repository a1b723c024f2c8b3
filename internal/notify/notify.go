// Package notify implements the reactive delivery layer from §4.8: a
// ChangeSet differencer driven by store.DB's commit hook, and the
// Scheduler capability an accessor uses to decide whether and how a
// notification may be delivered to the thread that registered it.
//
// Grounded on the teacher's internal/diff package (SchemaDiff/
// TableDiff/ColumnChange, the Named-interface sort-then-compare
// pattern) generalized from a one-shot schema comparison to a
// per-commit, per-object changeset; and on realm-core's
// scheduler.hpp/cpp for the Scheduler contract itself.
package notify

import (
	"sort"
	"sync"

	"smfdb/internal/keys"
	"smfdb/internal/store"
)

// Scheduler is the capability notifications are delivered through,
// mirroring realm-core's util::Scheduler: notify() marshals a callback
// onto the scheduler's thread, is_on_thread()/can_deliver_notifications()
// let a caller decide whether registering a listener even makes sense.
type Scheduler interface {
	Notify(fn func())
	IsOnThread() bool
	CanDeliverNotifications() bool
}

// inlineScheduler runs every callback synchronously on the calling
// goroutine; this is the scheduler a single-threaded embedding (tests,
// a CLI) installs when it has no event loop of its own.
type inlineScheduler struct{}

func (inlineScheduler) Notify(fn func())              { fn() }
func (inlineScheduler) IsOnThread() bool              { return true }
func (inlineScheduler) CanDeliverNotifications() bool { return true }

// InlineScheduler returns the synchronous, always-on-thread Scheduler.
func InlineScheduler() Scheduler { return inlineScheduler{} }

// frozenScheduler never delivers: it is bound to a frozen, immutable
// accessor that by construction never changes again.
type frozenScheduler struct{}

func (frozenScheduler) Notify(func())                {}
func (frozenScheduler) IsOnThread() bool              { return true }
func (frozenScheduler) CanDeliverNotifications() bool { return false }

// FrozenScheduler is the process-wide singleton bound to every frozen
// Results/List/Object accessor, per the original implementation's
// frozen-object notifier short-circuit (see SPEC_FULL.md §12).
var FrozenScheduler Scheduler = frozenScheduler{}

// FieldChange records that obj's field col was modified in a commit.
type FieldChange struct {
	Col keys.ColKey
}

// Move records a single list-element reorder delivered within a
// commit's ChangeSet, per §4.8's `moves: (from,to) pairs`. From/To are
// the list indices the element occupied before and after the commit
// that produced this ChangeSet; Col identifies which list-valued
// column moved.
type Move struct {
	Col  keys.ColKey
	From int
	To   int
}

// ChangeSet is the per-table diff of one commit, keyed by the objects
// it touched: insertions, deletions, field-level modifications, and
// list-element moves. Mirrors the teacher's TableDiff/ColumnChange
// shape, generalized from column definitions to live object fields.
type ChangeSet struct {
	Version       uint64
	Table         keys.TableKey
	Insertions    []keys.ObjKey
	Deletions     []keys.ObjKey
	Modifications map[keys.ObjKey][]FieldChange
	Moves         map[keys.ObjKey][]Move
}

func (c *ChangeSet) Empty() bool {
	return len(c.Insertions) == 0 && len(c.Deletions) == 0 && len(c.Modifications) == 0 && len(c.Moves) == 0
}

// Listener is invoked with the per-table ChangeSets produced by one
// commit, already filtered to the tables the listener subscribed to.
type Listener func(changes map[keys.TableKey]*ChangeSet)

type subscription struct {
	id           uint64
	scheduler    Scheduler
	tables       map[keys.TableKey]bool // nil/empty means "all tables"
	listener     Listener
	mu           sync.Mutex
	suppressNext bool
}

// Token is returned by Subscribe and is the caller's handle onto one
// live subscription, per §5's "registering a notification returns a
// token; destroying the token cancels future deliveries." Destroying
// the token means calling Unsubscribe (or Notifier.Unsubscribe with
// its ID); there is no finalizer-driven cancellation.
type Token struct {
	id uint64
	n  *Notifier
	s  *subscription
}

// ID returns the numeric identifier also accepted by Notifier.Unsubscribe.
func (t *Token) ID() uint64 { return t.id }

// Unsubscribe cancels future deliveries to this token's listener.
func (t *Token) Unsubscribe() { t.n.Unsubscribe(t.id) }

// SuppressNext elides exactly the next delivery this token would
// otherwise receive, per §4.8 point 4: "a callback may call
// suppress_next() before returning to elide exactly the next delivery
// for that token." Typically called from within the listener itself,
// to skip the notification caused by a write the listener is about to
// make in reaction to the current one.
func (t *Token) SuppressNext() {
	t.s.mu.Lock()
	t.s.suppressNext = true
	t.s.mu.Unlock()
}

// Notifier differencing engine: it registers itself as a store.DB
// commit hook, builds a ChangeSet per table from the commit's
// ChangeLog, and delivers it to every live subscription through that
// subscription's Scheduler.
type Notifier struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
}

// NewNotifier creates a Notifier and wires it to db's commit hook.
func NewNotifier(db *store.DB) *Notifier {
	n := &Notifier{subs: make(map[uint64]*subscription)}
	db.RegisterCommitHook(n.onCommit)
	return n
}

// Subscribe registers listener for commits touching any of tables (or
// every table, if tables is empty), delivered through scheduler. It
// returns a Token the caller can Unsubscribe or call SuppressNext on.
func (n *Notifier) Subscribe(scheduler Scheduler, listener Listener, tables ...keys.TableKey) *Token {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	tset := make(map[keys.TableKey]bool, len(tables))
	for _, t := range tables {
		tset[t] = true
	}
	sub := &subscription{id: id, scheduler: scheduler, tables: tset, listener: listener}
	n.subs[id] = sub
	return &Token{id: id, n: n, s: sub}
}

func (n *Notifier) Unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, id)
}

func (n *Notifier) onCommit(log *store.ChangeLog) {
	byTable := buildChangeSets(log)
	if len(byTable) == 0 {
		return
	}
	n.mu.Lock()
	subs := make([]*subscription, 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	for _, s := range subs {
		relevant := filterForSubscription(byTable, s.tables)
		if len(relevant) == 0 {
			continue
		}
		s := s
		if !s.scheduler.CanDeliverNotifications() {
			continue
		}
		s.mu.Lock()
		skip := s.suppressNext
		s.suppressNext = false
		s.mu.Unlock()
		if skip {
			continue
		}
		s.scheduler.Notify(func() { s.listener(relevant) })
	}
}

func filterForSubscription(all map[keys.TableKey]*ChangeSet, tables map[keys.TableKey]bool) map[keys.TableKey]*ChangeSet {
	if len(tables) == 0 {
		return all
	}
	out := make(map[keys.TableKey]*ChangeSet)
	for t, cs := range all {
		if tables[t] {
			out[t] = cs
		}
	}
	return out
}

// buildChangeSets groups a commit's flat Operation log into one
// ChangeSet per table, sorted for deterministic delivery order —
// mirroring the teacher's diff.Diff()'s habit of sorting named entries
// before comparing them.
func buildChangeSets(log *store.ChangeLog) map[keys.TableKey]*ChangeSet {
	out := make(map[keys.TableKey]*ChangeSet)
	get := func(t keys.TableKey) *ChangeSet {
		cs, ok := out[t]
		if !ok {
			cs = &ChangeSet{
				Version:       log.Version,
				Table:         t,
				Modifications: make(map[keys.ObjKey][]FieldChange),
				Moves:         make(map[keys.ObjKey][]Move),
			}
			out[t] = cs
		}
		return cs
	}
	for _, op := range log.Operations {
		cs := get(op.Table)
		switch op.Kind {
		case store.OpCreateObject:
			cs.Insertions = append(cs.Insertions, op.Obj)
		case store.OpEraseObject:
			cs.Deletions = append(cs.Deletions, op.Obj)
		case store.OpListMove:
			cs.Moves[op.Obj] = append(cs.Moves[op.Obj], Move{Col: op.Col, From: op.Index, To: op.ToIndex})
		default:
			cs.Modifications[op.Obj] = append(cs.Modifications[op.Obj], FieldChange{Col: op.Col})
		}
	}
	for _, cs := range out {
		sort.Slice(cs.Insertions, func(i, j int) bool { return cs.Insertions[i] < cs.Insertions[j] })
		sort.Slice(cs.Deletions, func(i, j int) bool { return cs.Deletions[i] < cs.Deletions[j] })
	}
	return out
}

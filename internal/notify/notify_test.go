package notify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"smfdb/internal/coltype"
	"smfdb/internal/keys"
	"smfdb/internal/schema"
	"smfdb/internal/store"
)

func buildSchema(t *testing.T) (*schema.Database, *schema.Table) {
	t.Helper()
	sc := schema.NewDatabase()
	books, err := sc.AddTable("Book")
	require.NoError(t, err)
	_, err = books.AddColumn("title", coltype.String, keys.AttrNone)
	require.NoError(t, err)
	return sc, books
}

func TestNotifierDeliversInsertion(t *testing.T) {
	sc, books := buildSchema(t)
	db := store.NewDB(sc)
	n := NewNotifier(db)

	var got map[keys.TableKey]*ChangeSet
	n.Subscribe(InlineScheduler(), func(changes map[keys.TableKey]*ChangeSet) {
		got = changes
	})

	wt := db.BeginWrite()
	_, err := wt.CreateObject(books.Key)
	require.NoError(t, err)
	require.NoError(t, wt.Commit())

	require.NotNil(t, got)
	cs := got[books.Key]
	require.NotNil(t, cs)
	require.Len(t, cs.Insertions, 1)
	require.False(t, cs.Empty())
}

func TestNotifierFiltersByTable(t *testing.T) {
	sc, books := buildSchema(t)
	other, err := sc.AddTable("Author")
	require.NoError(t, err)
	db := store.NewDB(sc)
	n := NewNotifier(db)

	delivered := false
	n.Subscribe(InlineScheduler(), func(changes map[keys.TableKey]*ChangeSet) {
		delivered = true
	}, other.Key)

	wt := db.BeginWrite()
	_, err = wt.CreateObject(books.Key)
	require.NoError(t, err)
	require.NoError(t, wt.Commit())

	require.False(t, delivered)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	sc, books := buildSchema(t)
	db := store.NewDB(sc)
	n := NewNotifier(db)

	count := 0
	tok := n.Subscribe(InlineScheduler(), func(map[keys.TableKey]*ChangeSet) { count++ })
	n.Unsubscribe(tok.ID())

	wt := db.BeginWrite()
	_, err := wt.CreateObject(books.Key)
	require.NoError(t, err)
	require.NoError(t, wt.Commit())

	require.Equal(t, 0, count)
}

func TestFrozenSchedulerNeverDelivers(t *testing.T) {
	require.False(t, FrozenScheduler.CanDeliverNotifications())
}

func TestSuppressNextElidesExactlyOneDelivery(t *testing.T) {
	sc, books := buildSchema(t)
	db := store.NewDB(sc)
	n := NewNotifier(db)

	deliveries := 0
	var tok *Token
	tok = n.Subscribe(InlineScheduler(), func(map[keys.TableKey]*ChangeSet) {
		deliveries++
		tok.SuppressNext()
	})

	wt := db.BeginWrite()
	_, err := wt.CreateObject(books.Key)
	require.NoError(t, err)
	require.NoError(t, wt.Commit())
	require.Equal(t, 1, deliveries)

	// The callback above called SuppressNext, so this next commit's
	// delivery is elided.
	wt = db.BeginWrite()
	_, err = wt.CreateObject(books.Key)
	require.NoError(t, err)
	require.NoError(t, wt.Commit())
	require.Equal(t, 1, deliveries)

	// Suppression only elides exactly one delivery.
	wt = db.BeginWrite()
	_, err = wt.CreateObject(books.Key)
	require.NoError(t, err)
	require.NoError(t, wt.Commit())
	require.Equal(t, 2, deliveries)
}

func TestChangeSetRecordsListMoves(t *testing.T) {
	sc := schema.NewDatabase()
	authors, err := sc.AddTable("Author")
	require.NoError(t, err)
	books, err := sc.AddTable("Book")
	require.NoError(t, err)
	_, err = authors.AddLinkColumn("books", books, keys.AttrList)
	require.NoError(t, err)

	db := store.NewDB(sc)
	n := NewNotifier(db)

	wt := db.BeginWrite()
	author, err := wt.CreateObject(authors.Key)
	require.NoError(t, err)
	b1, err := wt.CreateObject(books.Key)
	require.NoError(t, err)
	b2, err := wt.CreateObject(books.Key)
	require.NoError(t, err)
	authorObj, err := wt.GetObject(authors.Key, author)
	require.NoError(t, err)
	list, err := authorObj.List("books")
	require.NoError(t, err)
	require.NoError(t, list.Add(coltype.LinkValue(uint64(b1))))
	require.NoError(t, list.Add(coltype.LinkValue(uint64(b2))))
	require.NoError(t, wt.Commit())

	var got map[keys.TableKey]*ChangeSet
	n.Subscribe(InlineScheduler(), func(changes map[keys.TableKey]*ChangeSet) {
		got = changes
	})

	wt = db.BeginWrite()
	authorObj, err = wt.GetObject(authors.Key, author)
	require.NoError(t, err)
	list, err = authorObj.List("books")
	require.NoError(t, err)
	require.NoError(t, list.Move(0, 1))
	require.NoError(t, wt.Commit())

	cs := got[authors.Key]
	require.NotNil(t, cs)
	moves := cs.Moves[author]
	require.Len(t, moves, 1)
	require.Equal(t, 0, moves[0].From)
	require.Equal(t, 1, moves[0].To)
}

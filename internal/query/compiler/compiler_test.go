package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"smfdb/internal/coltype"
	"smfdb/internal/keys"
	"smfdb/internal/query/lang"
	"smfdb/internal/schema"
	"smfdb/internal/store"
)

func buildLibrary(t *testing.T) (*schema.Database, *store.DB, *schema.Table, *schema.Table) {
	t.Helper()
	sc := schema.NewDatabase()
	authors, err := sc.AddTable("Author")
	require.NoError(t, err)
	_, err = authors.AddColumn("name", coltype.String, keys.AttrNone)
	require.NoError(t, err)

	books, err := sc.AddTable("Book")
	require.NoError(t, err)
	_, err = books.AddColumn("title", coltype.String, keys.AttrNone)
	require.NoError(t, err)
	_, err = books.AddColumn("price", coltype.Double, keys.AttrNone)
	require.NoError(t, err)
	_, err = books.AddColumn("genre", coltype.String, keys.AttrSet)
	require.NoError(t, err)
	_, err = books.AddColumn("cover", coltype.Binary, keys.AttrNullable)
	require.NoError(t, err)
	_, err = books.AddLinkColumn("author", authors, keys.AttrList)
	require.NoError(t, err)

	return sc, store.NewDB(sc), authors, books
}

func TestCompileAndEvaluateRelational(t *testing.T) {
	sc, db, _, books := buildLibrary(t)

	wt := db.BeginWrite()
	obj, err := wt.CreateObject(books.Key)
	require.NoError(t, err)
	o, err := wt.GetObject(books.Key, obj)
	require.NoError(t, err)
	require.NoError(t, o.SetString("title", "Dune"))
	require.NoError(t, o.Set("price", coltype.DoubleValue(15.0)))
	require.NoError(t, wt.Commit())

	pred, err := lang.Parse(`price > 10`)
	require.NoError(t, err)
	compiled, err := Compile(sc, books, pred, nil)
	require.NoError(t, err)

	rt := db.BeginRead()
	require.True(t, compiled(rt, books, obj))
}

func TestCompileRejectsCollectionVsCollection(t *testing.T) {
	sc, _, _, books := buildLibrary(t)
	pred, err := lang.Parse(`author == author`)
	require.NoError(t, err)
	_, err = Compile(sc, books, pred, nil)
	require.Error(t, err)
}

func TestCompileRejectsLinkListEqualsNull(t *testing.T) {
	sc, _, _, books := buildLibrary(t)
	pred, err := lang.Parse(`author == null`)
	require.NoError(t, err)
	_, err = Compile(sc, books, pred, nil)
	require.Error(t, err)
	var notImpl *ErrNotImplemented
	require.ErrorAs(t, err, &notImpl)
}

func TestCompileBetweenLowered(t *testing.T) {
	sc, db, _, books := buildLibrary(t)
	wt := db.BeginWrite()
	obj, err := wt.CreateObject(books.Key)
	require.NoError(t, err)
	o, err := wt.GetObject(books.Key, obj)
	require.NoError(t, err)
	require.NoError(t, o.Set("price", coltype.DoubleValue(15.0)))
	require.NoError(t, wt.Commit())

	pred, err := lang.Parse(`price BETWEEN {10, 20}`)
	require.NoError(t, err)
	compiled, err := Compile(sc, books, pred, nil)
	require.NoError(t, err)

	rt := db.BeginRead()
	require.True(t, compiled(rt, books, obj))
}

// buildTeam mirrors §8 scenario 2: Person(age, team: List<Person>).
func buildTeam(t *testing.T) (*schema.Database, *store.DB, *schema.Table) {
	t.Helper()
	sc := schema.NewDatabase()
	people, err := sc.AddTable("Person")
	require.NoError(t, err)
	_, err = people.AddColumn("age", coltype.Int, keys.AttrNone)
	require.NoError(t, err)
	_, err = people.AddLinkColumn("team", people, keys.AttrList)
	require.NoError(t, err)
	return sc, store.NewDB(sc), people
}

func TestCompileInWithListLiteral(t *testing.T) {
	sc, db, _, books := buildLibrary(t)
	wt := db.BeginWrite()
	obj, err := wt.CreateObject(books.Key)
	require.NoError(t, err)
	o, err := wt.GetObject(books.Key, obj)
	require.NoError(t, err)
	require.NoError(t, o.SetString("title", "Dune"))
	require.NoError(t, wt.Commit())

	pred, err := lang.Parse(`title IN {"Foundation", "Dune"}`)
	require.NoError(t, err)
	compiled, err := Compile(sc, books, pred, nil)
	require.NoError(t, err)

	rt := db.BeginRead()
	require.True(t, compiled(rt, books, obj))
}

func TestCompileInWithSetProperty(t *testing.T) {
	sc, db, _, books := buildLibrary(t)
	wt := db.BeginWrite()
	obj, err := wt.CreateObject(books.Key)
	require.NoError(t, err)
	o, err := wt.GetObject(books.Key, obj)
	require.NoError(t, err)
	genre, err := o.SetOf("genre")
	require.NoError(t, err)
	_, err = genre.Insert(coltype.StringValue("scifi"))
	require.NoError(t, err)
	require.NoError(t, wt.Commit())

	pred, err := lang.Parse(`"scifi" IN genre`)
	require.NoError(t, err)
	compiled, err := Compile(sc, books, pred, nil)
	require.NoError(t, err)

	rt := db.BeginRead()
	require.True(t, compiled(rt, books, obj))

	pred2, err := lang.Parse(`"fantasy" IN genre`)
	require.NoError(t, err)
	compiled2, err := Compile(sc, books, pred2, nil)
	require.NoError(t, err)
	require.False(t, compiled2(rt, books, obj))
}

func TestCompileRejectsInOverNonListProperty(t *testing.T) {
	sc, _, _, books := buildLibrary(t)
	pred, err := lang.Parse(`title IN price`)
	require.NoError(t, err)
	_, err = Compile(sc, books, pred, nil)
	require.Error(t, err)
}

func TestCompileRejectsUnsupportedComparison(t *testing.T) {
	sc, _, _, books := buildLibrary(t)
	pred, err := lang.Parse(`price > "x"`)
	require.NoError(t, err)
	_, err = Compile(sc, books, pred, nil)
	require.Error(t, err)
	var unsupported *coltype.ErrUnsupportedComparison
	require.ErrorAs(t, err, &unsupported)
}

func TestCompileStringOpOverBinary(t *testing.T) {
	sc, db, _, books := buildLibrary(t)
	wt := db.BeginWrite()
	obj, err := wt.CreateObject(books.Key)
	require.NoError(t, err)
	o, err := wt.GetObject(books.Key, obj)
	require.NoError(t, err)
	require.NoError(t, o.Set("cover", coltype.BinaryValue([]byte{0xDE, 0xAD, 0xBE, 0xEF})))
	require.NoError(t, wt.Commit())

	pred, err := lang.Parse(`cover BEGINSWITH cover`)
	require.NoError(t, err)
	compiled, err := Compile(sc, books, pred, nil)
	require.NoError(t, err)

	rt := db.BeginRead()
	require.True(t, compiled(rt, books, obj))
}

func TestCompileOrderingSortDistinctLimit(t *testing.T) {
	sc, db, _, books := buildLibrary(t)
	wt := db.BeginWrite()
	mkBook := func(title string, price float64) keys.ObjKey {
		obj, err := wt.CreateObject(books.Key)
		require.NoError(t, err)
		o, err := wt.GetObject(books.Key, obj)
		require.NoError(t, err)
		require.NoError(t, o.SetString("title", title))
		require.NoError(t, o.Set("price", coltype.DoubleValue(price)))
		return obj
	}
	mkBook("Dune", 12.5)
	mkBook("Dune Messiah", 11.0)
	mkBook("Foundation", 9.5)
	require.NoError(t, wt.Commit())

	ordering, err := lang.ParseDescriptorOrdering(`SORT(price DESC) LIMIT(2)`)
	require.NoError(t, err)
	apply, err := CompileOrdering(sc, books, ordering)
	require.NoError(t, err)

	rt := db.BeginRead()
	results := apply(rt.ResultsFor(books.Key))
	snap := results.Snapshot()
	require.Len(t, snap, 2)

	o0, err := rt.GetObject(books.Key, snap[0])
	require.NoError(t, err)
	title0, err := o0.GetString("title")
	require.NoError(t, err)
	require.Equal(t, "Dune", title0, "highest price must sort first under SORT(price DESC)")
}

func TestCompileOrderingMergesRepeatedSortByPrepending(t *testing.T) {
	sc, db, _, books := buildLibrary(t)
	wt := db.BeginWrite()
	mkBook := func(title string, price float64) {
		obj, err := wt.CreateObject(books.Key)
		require.NoError(t, err)
		o, err := wt.GetObject(books.Key, obj)
		require.NoError(t, err)
		require.NoError(t, o.SetString("title", title))
		require.NoError(t, o.Set("price", coltype.DoubleValue(price)))
	}
	mkBook("Alpha", 9.5)
	mkBook("Beta", 12.5)
	require.NoError(t, wt.Commit())

	// SORT(title) SORT(price DESC) must merge by prepending the later
	// Sort's keys ahead of the earlier one's, so price DESC decides
	// first and title only breaks ties it leaves open.
	ordering, err := lang.ParseDescriptorOrdering(`SORT(title) SORT(price DESC)`)
	require.NoError(t, err)
	apply, err := CompileOrdering(sc, books, ordering)
	require.NoError(t, err)

	rt := db.BeginRead()
	snap := apply(rt.ResultsFor(books.Key)).Snapshot()
	require.Len(t, snap, 2)
	first, err := rt.GetObject(books.Key, snap[0])
	require.NoError(t, err)
	firstTitle, err := first.GetString("title")
	require.NoError(t, err)
	require.Equal(t, "Beta", firstTitle, "higher price (12.5) must sort first once price DESC takes priority")
}

func TestCompileSubquerySize(t *testing.T) {
	sc, db, people := buildTeam(t)

	wt := db.BeginWrite()
	mkPerson := func(age int64) keys.ObjKey {
		obj, err := wt.CreateObject(people.Key)
		require.NoError(t, err)
		o, err := wt.GetObject(people.Key, obj)
		require.NoError(t, err)
		require.NoError(t, o.Set("age", coltype.IntValue(age)))
		return obj
	}
	adam := mkPerson(32)     // team: none
	brian := mkPerson(33)    // team: none
	charley := mkPerson(34)  // team: [Adam(32), Brian(33)]
	donald := mkPerson(35)   // team: none
	eddie := mkPerson(36)    // team: [Donald(35), Charley(34)]

	addToTeam := func(owner keys.ObjKey, members ...keys.ObjKey) {
		o, err := wt.GetObject(people.Key, owner)
		require.NoError(t, err)
		list, err := o.List("team")
		require.NoError(t, err)
		for _, m := range members {
			require.NoError(t, list.Add(coltype.LinkValue(uint64(m))))
		}
	}
	addToTeam(charley, adam, brian)
	addToTeam(eddie, donald, charley)
	require.NoError(t, wt.Commit())

	pred, err := lang.Parse(`SUBQUERY(team, $p, $p.age > 33).@size > 0`)
	require.NoError(t, err)
	compiled, err := Compile(sc, people, pred, nil)
	require.NoError(t, err)

	rt := db.BeginRead()
	require.False(t, compiled(rt, people, charley), "Charley's team is {32,33}, none over 33")
	require.True(t, compiled(rt, people, eddie), "Eddie's team includes Charley(34) > 33")
	require.False(t, compiled(rt, people, adam), "Adam has no team")
	require.False(t, compiled(rt, people, brian), "Brian has no team")
	require.False(t, compiled(rt, people, donald), "Donald has no team")
}

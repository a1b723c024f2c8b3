package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"smfdb/internal/coltype"
	"smfdb/internal/keys"
	"smfdb/internal/schema"
)

func buildSchema(t *testing.T) *schema.Database {
	t.Helper()
	db := schema.NewDatabase()

	authors, err := db.AddTable("Author")
	require.NoError(t, err)
	_, err = authors.AddColumn("name", coltype.String, keys.AttrNone)
	require.NoError(t, err)
	require.NoError(t, authors.SetPrimaryKey("name"))

	books, err := db.AddTable("Book")
	require.NoError(t, err)
	_, err = books.AddColumn("title", coltype.String, keys.AttrNone)
	require.NoError(t, err)
	_, err = books.AddColumn("price", coltype.Double, keys.AttrNone)
	require.NoError(t, err)
	_, err = books.AddLinkColumn("author", authors, keys.AttrNullable)
	require.NoError(t, err)

	return db
}

func TestObjectCreateAndGetSet(t *testing.T) {
	sc := buildSchema(t)
	db := NewDB(sc)
	bookTable := sc.FindTable("Book")

	wt := db.BeginWrite()
	obj, err := wt.CreateObject(bookTable.Key)
	require.NoError(t, err)

	o, err := wt.GetObject(bookTable.Key, obj)
	require.NoError(t, err)
	require.NoError(t, o.SetString("title", "Dune"))
	require.NoError(t, o.Set("price", coltype.DoubleValue(12.5)))
	require.NoError(t, wt.Commit())

	rt := db.BeginRead()
	o2, err := rt.GetObject(bookTable.Key, obj)
	require.NoError(t, err)
	title, err := o2.GetString("title")
	require.NoError(t, err)
	require.Equal(t, "Dune", title)
}

func TestSetWrongTypeRejected(t *testing.T) {
	sc := buildSchema(t)
	db := NewDB(sc)
	bookTable := sc.FindTable("Book")

	wt := db.BeginWrite()
	obj, err := wt.CreateObject(bookTable.Key)
	require.NoError(t, err)
	o, err := wt.GetObject(bookTable.Key, obj)
	require.NoError(t, err)

	err = o.Set("title", coltype.IntValue(5))
	require.Error(t, err)
	var wrongType *ErrWrongType
	require.ErrorAs(t, err, &wrongType)
}

func TestLinkAndBacklink(t *testing.T) {
	sc := buildSchema(t)
	db := NewDB(sc)
	authorTable := sc.FindTable("Author")
	bookTable := sc.FindTable("Book")

	wt := db.BeginWrite()
	authorObj, err := wt.CreateObject(authorTable.Key)
	require.NoError(t, err)
	author, err := wt.GetObject(authorTable.Key, authorObj)
	require.NoError(t, err)
	require.NoError(t, author.SetString("name", "Herbert"))

	bookObj, err := wt.CreateObject(bookTable.Key)
	require.NoError(t, err)
	book, err := wt.GetObject(bookTable.Key, bookObj)
	require.NoError(t, err)
	require.NoError(t, book.SetLinkedObject("author", author))
	require.NoError(t, wt.Commit())

	rt := db.BeginRead()
	book2, err := rt.GetObject(bookTable.Key, bookObj)
	require.NoError(t, err)
	linked, ok, err := book2.GetLinkedObject("author")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, authorObj, linked.Key())

	backCol := authorTable.FindColumn("@backlink.Book.author")
	require.NotNil(t, backCol)
	authorRow, ok := rt.row(authorTable.Key, authorObj)
	require.True(t, ok)
	require.Len(t, authorRow.Lists[backCol.Key], 1)
}

func TestRemoveObjectSeversLinks(t *testing.T) {
	sc := buildSchema(t)
	db := NewDB(sc)
	authorTable := sc.FindTable("Author")
	bookTable := sc.FindTable("Book")

	wt := db.BeginWrite()
	authorObj, _ := wt.CreateObject(authorTable.Key)
	author, _ := wt.GetObject(authorTable.Key, authorObj)
	require.NoError(t, author.SetString("name", "Herbert"))
	bookObj, _ := wt.CreateObject(bookTable.Key)
	book, _ := wt.GetObject(bookTable.Key, bookObj)
	require.NoError(t, book.SetLinkedObject("author", author))
	require.NoError(t, wt.Commit())

	wt2 := db.BeginWrite()
	require.NoError(t, wt2.RemoveObject(authorTable.Key, authorObj))
	require.NoError(t, wt2.Commit())

	rt := db.BeginRead()
	book2, err := rt.GetObject(bookTable.Key, bookObj)
	require.NoError(t, err)
	_, ok, err := book2.GetLinkedObject("author")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListInsertAndAggregate(t *testing.T) {
	sc := schema.NewDatabase()
	table, err := sc.AddTable("Sample")
	require.NoError(t, err)
	_, err = table.AddColumn("scores", coltype.Int, keys.AttrList)
	require.NoError(t, err)

	db := NewDB(sc)
	wt := db.BeginWrite()
	obj, err := wt.CreateObject(table.Key)
	require.NoError(t, err)
	o, err := wt.GetObject(table.Key, obj)
	require.NoError(t, err)
	list, err := o.List("scores")
	require.NoError(t, err)
	require.NoError(t, list.Add(coltype.IntValue(3)))
	require.NoError(t, list.Add(coltype.IntValue(7)))
	require.NoError(t, list.Add(coltype.IntValue(5)))

	sum, err := list.Sum()
	require.NoError(t, err)
	require.Equal(t, int64(15), sum.I)

	require.NoError(t, wt.Commit())
}

func TestListAssignSelfIsNoOp(t *testing.T) {
	sc := schema.NewDatabase()
	table, err := sc.AddTable("Sample")
	require.NoError(t, err)
	_, err = table.AddColumn("scores", coltype.Int, keys.AttrList)
	require.NoError(t, err)

	db := NewDB(sc)
	wt := db.BeginWrite()
	obj, err := wt.CreateObject(table.Key)
	require.NoError(t, err)
	o, err := wt.GetObject(table.Key, obj)
	require.NoError(t, err)
	list, err := o.List("scores")
	require.NoError(t, err)
	require.NoError(t, list.Add(coltype.IntValue(1)))
	require.NoError(t, list.Add(coltype.IntValue(2)))
	require.NoError(t, list.Add(coltype.IntValue(3)))

	before := append([]coltype.Value(nil), list.values()...)
	require.NoError(t, list.Assign(list.values(), UpdateModified))
	require.Equal(t, before, list.values())
}

func TestListAssignUpdateModifiedAndUpdateAll(t *testing.T) {
	sc := schema.NewDatabase()
	table, err := sc.AddTable("Sample")
	require.NoError(t, err)
	_, err = table.AddColumn("scores", coltype.Int, keys.AttrList)
	require.NoError(t, err)

	db := NewDB(sc)
	wt := db.BeginWrite()
	obj, err := wt.CreateObject(table.Key)
	require.NoError(t, err)
	o, err := wt.GetObject(table.Key, obj)
	require.NoError(t, err)
	list, err := o.List("scores")
	require.NoError(t, err)
	require.NoError(t, list.Add(coltype.IntValue(1)))
	require.NoError(t, list.Add(coltype.IntValue(2)))
	require.NoError(t, list.Add(coltype.IntValue(3)))

	require.NoError(t, list.Assign([]coltype.Value{coltype.IntValue(1), coltype.IntValue(9), coltype.IntValue(3), coltype.IntValue(4)}, UpdateModified))
	require.Equal(t, int64(1), list.values()[0].I)
	require.Equal(t, int64(9), list.values()[1].I)
	require.Equal(t, int64(3), list.values()[2].I)
	require.Equal(t, int64(4), list.values()[3].I)
	require.Equal(t, 4, list.Size())

	require.NoError(t, list.Assign([]coltype.Value{coltype.IntValue(0)}, UpdateAll))
	require.Equal(t, 1, list.Size())
	require.Equal(t, int64(0), list.values()[0].I)
}

func TestListDeleteAtDeletesLinkedObject(t *testing.T) {
	sc := schema.NewDatabase()
	parents, err := sc.AddTable("Parent")
	require.NoError(t, err)
	children, err := sc.AddTable("Child")
	require.NoError(t, err)
	_, err = parents.AddLinkColumn("kids", children, keys.AttrList)
	require.NoError(t, err)

	db := NewDB(sc)
	wt := db.BeginWrite()
	pObj, err := wt.CreateObject(parents.Key)
	require.NoError(t, err)
	p, err := wt.GetObject(parents.Key, pObj)
	require.NoError(t, err)
	cObj, err := wt.CreateObject(children.Key)
	require.NoError(t, err)
	list, err := p.List("kids")
	require.NoError(t, err)
	require.NoError(t, list.Add(coltype.LinkValue(uint64(cObj))))
	require.Equal(t, 1, list.Size())

	require.NoError(t, list.DeleteAt(0))
	require.Equal(t, 0, list.Size())
	require.False(t, wt.ObjectExists(children.Key, cObj))
}

func TestResultsSnapshotOrderingAndFilter(t *testing.T) {
	sc := schema.NewDatabase()
	table, err := sc.AddTable("Widget")
	require.NoError(t, err)
	_, err = table.AddColumn("n", coltype.Int, keys.AttrNone)
	require.NoError(t, err)

	db := NewDB(sc)
	wt := db.BeginWrite()
	var objs []keys.ObjKey
	for i := int64(0); i < 3; i++ {
		obj, err := wt.CreateObject(table.Key)
		require.NoError(t, err)
		o, err := wt.GetObject(table.Key, obj)
		require.NoError(t, err)
		require.NoError(t, o.SetInt("n", i))
		objs = append(objs, obj)
	}
	require.NoError(t, wt.Commit())

	rt := db.BeginRead()
	res := rt.ResultsFor(table.Key)
	require.Equal(t, objs, res.Snapshot())

	nCol, err := table.ResolveName("n")
	require.NoError(t, err)
	filtered := res.Filter(func(tx *Transaction, tbl *schema.Table, obj keys.ObjKey) bool {
		row, _ := tx.row(tbl.Key, obj)
		return row.Scalars[nCol].I >= 1
	})
	require.Len(t, filtered.Snapshot(), 2)
}

func TestListSumOverEmptyListIsZero(t *testing.T) {
	sc := schema.NewDatabase()
	table, err := sc.AddTable("Sample")
	require.NoError(t, err)
	_, err = table.AddColumn("scores", coltype.Int, keys.AttrList)
	require.NoError(t, err)

	db := NewDB(sc)
	wt := db.BeginWrite()
	obj, err := wt.CreateObject(table.Key)
	require.NoError(t, err)
	o, err := wt.GetObject(table.Key, obj)
	require.NoError(t, err)
	list, err := o.List("scores")
	require.NoError(t, err)

	sum, err := list.Sum()
	require.NoError(t, err)
	require.False(t, sum.Null)
	require.Equal(t, int64(0), sum.I)

	avg, err := list.Average()
	require.NoError(t, err)
	require.True(t, avg.Null, "average over an empty list is still none, per §4.4")
}

func TestSetWithPolicyUpdateModifiedIsNoOpWhenUnchanged(t *testing.T) {
	sc := buildSchema(t)
	db := NewDB(sc)
	bookTable := sc.FindTable("Book")

	wt := db.BeginWrite()
	obj, err := wt.CreateObject(bookTable.Key)
	require.NoError(t, err)
	o, err := wt.GetObject(bookTable.Key, obj)
	require.NoError(t, err)
	require.NoError(t, o.SetString("title", "Dune"))

	before := len(wt.log.Operations)
	require.NoError(t, o.SetWithPolicy("title", coltype.StringValue("Dune"), UpdateModified))
	require.Equal(t, before, len(wt.log.Operations), "an unchanged value must record no Operation under UpdateModified")

	require.NoError(t, o.SetWithPolicy("title", coltype.StringValue("Dune Messiah"), UpdateModified))
	require.Greater(t, len(wt.log.Operations), before)
	got, err := o.GetString("title")
	require.NoError(t, err)
	require.Equal(t, "Dune Messiah", got)
}

func TestTransactionRemoveColumnRespectsTableEmptiness(t *testing.T) {
	sc := schema.NewDatabase()
	table, err := sc.AddTable("Sample")
	require.NoError(t, err)
	_, err = table.AddColumn("id", coltype.Int, keys.AttrNone)
	require.NoError(t, err)
	require.NoError(t, table.SetPrimaryKey("id"))

	db := NewDB(sc)
	wt := db.BeginWrite()
	obj, err := wt.CreateObject(table.Key)
	require.NoError(t, err)

	require.Error(t, wt.RemoveColumn(table.Key, "id"), "must reject removing the primary key while the table holds objects")

	require.NoError(t, wt.RemoveObject(table.Key, obj))
	require.NoError(t, wt.RemoveColumn(table.Key, "id"), "must allow removing the primary key once the table is empty")
	require.Nil(t, table.FindColumn("id"))
}

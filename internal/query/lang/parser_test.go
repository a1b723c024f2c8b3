package lang

import (
	"testing"

	"github.com/stretchr/testify/require"

	"smfdb/internal/query/ast"
)

func TestParseSimpleComparison(t *testing.T) {
	pred, err := Parse(`price > 10`)
	require.NoError(t, err)
	rel, ok := pred.(ast.Relational)
	require.True(t, ok)
	require.Equal(t, ast.GT, rel.Op)
}

func TestParseAndOrNotPrecedence(t *testing.T) {
	pred, err := Parse(`title == "Dune" AND price < 20 OR NOT published == true`)
	require.NoError(t, err)
	or, ok := pred.(ast.Or)
	require.True(t, ok)
	_, ok = or.Left.(ast.And)
	require.True(t, ok)
	_, ok = or.Right.(ast.Not)
	require.True(t, ok)
}

func TestParseStringOpsAndCaseInsensitive(t *testing.T) {
	pred, err := Parse(`title CONTAINS[c] "dune"`)
	require.NoError(t, err)
	op, ok := pred.(ast.StringOp)
	require.True(t, ok)
	require.Equal(t, ast.Contains, op.Op)
	require.True(t, op.CaseInsensitive)
}

func TestParseBetweenKeepsBothBoundsAsConstants(t *testing.T) {
	pred, err := Parse(`price BETWEEN {10, 20}`)
	require.NoError(t, err)
	between, ok := pred.(ast.Between)
	require.True(t, ok)
	lo, ok := between.Lo.(ast.Constant)
	require.True(t, ok)
	require.Equal(t, int64(10), lo.Value.I)
	hi, ok := between.Hi.(ast.Constant)
	require.True(t, ok)
	require.Equal(t, int64(20), hi.Value.I)
}

func TestParseBacklinkPath(t *testing.T) {
	pred, err := Parse(`@links.Book.author.title == "Dune"`)
	require.NoError(t, err)
	eq, ok := pred.(ast.Equality)
	require.True(t, ok)
	prop, ok := eq.Left.(ast.Property)
	require.True(t, ok)
	require.Equal(t, []string{"@links", "Book", "author", "title"}, prop.Path)
}

func TestParseAnyQualifier(t *testing.T) {
	pred, err := Parse(`ANY books.price > 10`)
	require.NoError(t, err)
	rel, ok := pred.(ast.Relational)
	require.True(t, ok)
	link, ok := rel.Left.(ast.LinkAggr)
	require.True(t, ok)
	require.Equal(t, ast.Any, link.Qualifier)
}

func TestParseLengthRewrittenToSize(t *testing.T) {
	pred, err := Parse(`title.length == 4`)
	require.NoError(t, err)
	eq, ok := pred.(ast.Equality)
	require.True(t, ok)
	aggr, ok := eq.Left.(ast.ListAggr)
	require.True(t, ok)
	require.Equal(t, ast.AggrSize, aggr.Op)
}

func TestParseDescriptorOrdering(t *testing.T) {
	desc, err := ParseDescriptorOrdering(`SORT(price DESC) DISTINCT(title) LIMIT(5)`)
	require.NoError(t, err)
	require.Len(t, desc.Descriptors, 3)
	sort, ok := desc.Descriptors[0].(ast.Sort)
	require.True(t, ok)
	require.True(t, sort.Keys[0].Descending)
	limit, ok := desc.Descriptors[2].(ast.Limit)
	require.True(t, ok)
	require.Equal(t, 5, limit.N)
}

func TestParseInWithListLiteral(t *testing.T) {
	pred, err := Parse(`genre IN {"scifi", "fantasy"}`)
	require.NoError(t, err)
	eq, ok := pred.(ast.Equality)
	require.True(t, ok)
	require.Equal(t, ast.EqIn, eq.Op)
	list, ok := eq.Right.(ast.List)
	require.True(t, ok)
	require.Len(t, list.Elems, 2)
}

func TestParseInWithPropertyRHS(t *testing.T) {
	pred, err := Parse(`author IN coauthors`)
	require.NoError(t, err)
	eq, ok := pred.(ast.Equality)
	require.True(t, ok)
	require.Equal(t, ast.EqIn, eq.Op)
	prop, ok := eq.Right.(ast.Property)
	require.True(t, ok)
	require.Equal(t, []string{"coauthors"}, prop.Path)
}

func TestParseUnknownTokenErrors(t *testing.T) {
	_, err := Parse(`price >`)
	require.Error(t, err)
}

func TestParseSubquerySize(t *testing.T) {
	pred, err := Parse(`SUBQUERY(team, $p, $p.age > 33).@size > 0`)
	require.NoError(t, err)
	rel, ok := pred.(ast.Relational)
	require.True(t, ok)
	sub, ok := rel.Left.(ast.Subquery)
	require.True(t, ok)
	require.Equal(t, []string{"team"}, sub.CollectionPath)
	require.Equal(t, "p", sub.Var)
	inner, ok := sub.Predicate.(ast.Relational)
	require.True(t, ok)
	prop, ok := inner.Left.(ast.Property)
	require.True(t, ok)
	require.Equal(t, []string{"p", "age"}, prop.Path)
}

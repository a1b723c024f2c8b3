// Package compiler lowers the closed predicate AST (internal/query/ast)
// into an executable store.Predicate: key-path resolution through
// links and backlinks, comparability rejection, and the Open Question
// decisions recorded in DESIGN.md (LinkList-vs-null,
// collection-vs-collection comparison, and BETWEEN lowering). Constant
// operands are not folded; each is evaluated as written whenever the
// predicate runs.
//
// Grounded on the teacher's internal/migration package's role as the
// thing that turns a parsed, declarative shape into something directly
// executable; here the executable target is a store.Predicate closure
// instead of SQL text.
package compiler

import (
	"bytes"
	"fmt"
	"strings"

	"smfdb/internal/coltype"
	"smfdb/internal/keys"
	"smfdb/internal/query/ast"
	"smfdb/internal/schema"
	"smfdb/internal/store"
)

// ErrNotImplemented is returned for grammatically valid but
// deliberately unsupported constructs. Per Open Question (b), a
// comparison between two collection-valued subexpressions is rejected
// here rather than given an implicit cross-join semantics. Per Open
// Question (c), comparing a LinkList property directly against null is
// rejected the same way (use @count == 0 instead).
type ErrNotImplemented struct {
	What string
}

func (e *ErrNotImplemented) Error() string {
	return fmt.Sprintf("query: not implemented yet: %s", e.What)
}

// ErrCompile wraps a resolution failure (unknown property, malformed
// key path) with the table it was resolved against.
type ErrCompile struct {
	Table string
	Msg   string
}

func (e *ErrCompile) Error() string { return fmt.Sprintf("query: %s (table %q)", e.Msg, e.Table) }

// Compile lowers pred into a store.Predicate scoped to table. args
// binds the `$0`, `$1`, ... placeholders the parser represents as Int
// constants.
func Compile(db *schema.Database, table *schema.Table, pred ast.Predicate, args []coltype.Value) (store.Predicate, error) {
	c := &compilerState{db: db, args: args}
	if err := c.checkStatic(pred, table); err != nil {
		return nil, err
	}
	return c.compilePredicate(pred, table)
}

// CompileOrdering lowers a parsed SORT/DISTINCT/LIMIT chain (§4.6) into
// a function that applies those descriptors to a store.Results view.
// Descriptors fold left-to-right: repeated Sort descriptors merge by
// prepending the later one's keys ahead of the earlier ones', so the
// last-written SORT wins ties first while earlier SORT keys still
// break ties the later one leaves open; Distinct paths accumulate
// across every Distinct descriptor; Limit values compose by minimum,
// since applying several in sequence can only shrink the result
// further, matching Results.Snapshot's fixed filter -> sort -> distinct
// -> limit execution order.
func CompileOrdering(db *schema.Database, table *schema.Table, ordering *ast.DescriptorOrdering) (func(*store.Results) *store.Results, error) {
	c := &compilerState{db: db}

	var sortKeys []ast.SortKey
	var distinctCols []keys.ColKey
	limit := 0

	for _, d := range ordering.Descriptors {
		switch desc := d.(type) {
		case ast.Sort:
			sortKeys = append(append([]ast.SortKey(nil), desc.Keys...), sortKeys...)
		case ast.Distinct:
			for _, p := range desc.Paths {
				if len(p) != 1 {
					return nil, &ErrCompile{Table: table.Name, Msg: "DISTINCT does not support multi-segment paths"}
				}
				col := table.FindColumn(p[0])
				if col == nil {
					return nil, &ErrCompile{Table: table.Name, Msg: fmt.Sprintf("unknown DISTINCT column %q", p[0])}
				}
				distinctCols = append(distinctCols, col.Key)
			}
		case ast.Limit:
			if limit == 0 || desc.N < limit {
				limit = desc.N
			}
		default:
			return nil, &ErrCompile{Table: table.Name, Msg: fmt.Sprintf("unsupported descriptor %T", d)}
		}
	}

	return func(r *store.Results) *store.Results {
		out := r
		if len(sortKeys) > 0 {
			tx := r.Tx()
			out = out.Sort(func(a, b keys.ObjKey) bool {
				for _, sk := range sortKeys {
					av, aerr := c.evalProperty(sk.Path, table, tx, a)
					bv, berr := c.evalProperty(sk.Path, table, tx, b)
					if aerr != nil || berr != nil {
						continue
					}
					cmp, ok := compareValues(av, bv)
					if !ok || cmp == 0 {
						continue
					}
					if sk.Descending {
						return cmp > 0
					}
					return cmp < 0
				}
				return false
			})
		}
		if len(distinctCols) > 0 {
			out = out.Distinct(distinctCols...)
		}
		if limit > 0 {
			out = out.Limit(limit)
		}
		return out
	}, nil
}

type compilerState struct {
	db   *schema.Database
	args []coltype.Value
	// vars holds the SUBQUERY-bound variable names currently in scope,
	// so evalProperty can tell a `$p.age` reference (resolved against
	// the subquery's current element) apart from an ordinary outer-table
	// property.
	vars map[string]bool
}

// checkStatic rejects the Open Question (b)/(c) constructs before any
// row is ever evaluated, since both are schema-level facts independent
// of the data.
func (c *compilerState) checkStatic(pred ast.Predicate, table *schema.Table) error {
	switch p := pred.(type) {
	case ast.Parens:
		return c.checkStatic(p.Expr, table)
	case ast.Not:
		return c.checkStatic(p.Expr, table)
	case ast.And:
		if err := c.checkStatic(p.Left, table); err != nil {
			return err
		}
		return c.checkStatic(p.Right, table)
	case ast.Or:
		if err := c.checkStatic(p.Left, table); err != nil {
			return err
		}
		return c.checkStatic(p.Right, table)
	case ast.Equality:
		return c.checkEqualityStatic(p, table)
	}
	return nil
}

func (c *compilerState) checkEqualityStatic(p ast.Equality, table *schema.Table) error {
	if p.Op == ast.EqIn {
		return c.checkInRHS(p.Right, table)
	}
	leftCol, leftIsCollection := c.staticColumnOf(p.Left, table)
	rightCol, rightIsCollection := c.staticColumnOf(p.Right, table)
	if leftIsCollection && rightIsCollection {
		return &ErrNotImplemented{What: "comparing two collection-valued subexpressions"}
	}
	if leftIsCollection && isNullConstant(p.Right) && leftCol != nil && leftCol.Kind == coltype.Link {
		return &ErrNotImplemented{What: "LinkList == null; use @count == 0 instead"}
	}
	if rightIsCollection && isNullConstant(p.Left) && rightCol != nil && rightCol.Kind == coltype.Link {
		return &ErrNotImplemented{What: "LinkList == null; use @count == 0 instead"}
	}
	return nil
}

// checkInRHS enforces §4.7 point 3: IN's right-hand operand must be an
// explicit list literal or a property that resolves to a list/set
// column; anything else (a bare scalar property, for instance) is a
// compile error rather than a silent empty match.
func (c *compilerState) checkInRHS(rhs ast.ValueExpr, table *schema.Table) error {
	if _, ok := rhs.(ast.List); ok {
		return nil
	}
	col, isCollection := c.staticColumnOf(rhs, table)
	if col != nil && isCollection {
		return nil
	}
	return &ErrCompile{Table: table.Name, Msg: "property of non-list type used with IN"}
}

func isNullConstant(v ast.ValueExpr) bool {
	c, ok := v.(ast.Constant)
	return ok && c.Value.Null
}

// staticColumnOf resolves a Property's terminal column using only
// schema information (no row data), returning ok=true with isCollection
// when the expression names a collection-valued property.
func (c *compilerState) staticColumnOf(v ast.ValueExpr, table *schema.Table) (col *schema.Column, isCollection bool) {
	prop, ok := v.(ast.Property)
	if !ok || len(prop.Path) == 0 {
		return nil, false
	}
	cur := table
	for i, seg := range prop.Path {
		if seg == "@links" {
			return nil, false
		}
		col = cur.FindColumn(seg)
		if col == nil {
			return nil, false
		}
		if i < len(prop.Path)-1 {
			if col.Kind != coltype.Link {
				return nil, false
			}
			cur = c.db.TableByKey(col.LinkedTo)
			if cur == nil {
				return nil, false
			}
		}
	}
	return col, col != nil && col.IsCollection()
}

// staticKindOf best-effort resolves a value expression's column kind
// using only schema information, covering the Property-vs-Constant
// case (e.g. `price > "x"`) where comparability can be rejected at
// compile time. It reports ok=false for anything it cannot determine
// without row data (collection aggregates, subqueries, null constants),
// leaving those to relOpCompare's runtime IsComparable check.
func (c *compilerState) staticKindOf(v ast.ValueExpr, table *schema.Table) (coltype.Kind, bool) {
	switch e := v.(type) {
	case ast.Constant:
		if e.Value.Null {
			return 0, false
		}
		return e.Value.Kind, true
	case ast.Property:
		col, isCollection := c.staticColumnOf(e, table)
		if col == nil || isCollection {
			return 0, false
		}
		return col.Kind, true
	default:
		return 0, false
	}
}

func (c *compilerState) compilePredicate(pred ast.Predicate, table *schema.Table) (store.Predicate, error) {
	switch p := pred.(type) {
	case ast.True:
		return func(*store.Transaction, *schema.Table, keys.ObjKey) bool { return true }, nil
	case ast.False:
		return func(*store.Transaction, *schema.Table, keys.ObjKey) bool { return false }, nil
	case ast.Parens:
		return c.compilePredicate(p.Expr, table)
	case ast.Not:
		inner, err := c.compilePredicate(p.Expr, table)
		if err != nil {
			return nil, err
		}
		return func(tx *store.Transaction, t *schema.Table, obj keys.ObjKey) bool { return !inner(tx, t, obj) }, nil
	case ast.And:
		left, err := c.compilePredicate(p.Left, table)
		if err != nil {
			return nil, err
		}
		right, err := c.compilePredicate(p.Right, table)
		if err != nil {
			return nil, err
		}
		return func(tx *store.Transaction, t *schema.Table, obj keys.ObjKey) bool {
			return left(tx, t, obj) && right(tx, t, obj)
		}, nil
	case ast.Or:
		left, err := c.compilePredicate(p.Left, table)
		if err != nil {
			return nil, err
		}
		right, err := c.compilePredicate(p.Right, table)
		if err != nil {
			return nil, err
		}
		return func(tx *store.Transaction, t *schema.Table, obj keys.ObjKey) bool {
			return left(tx, t, obj) || right(tx, t, obj)
		}, nil
	case ast.Between:
		// Open Question (a): BETWEEN lowers to `lo <= expr AND expr <= hi`
		// at compile time, since the semantics are unambiguous and every
		// operand kind that supports <= already does so transitively.
		lowered := ast.And{
			Left:  ast.Relational{Op: ast.LE, Left: p.Lo, Right: p.Expr},
			Right: ast.Relational{Op: ast.LE, Left: p.Expr, Right: p.Hi},
		}
		return c.compilePredicate(lowered, table)
	case ast.Equality:
		return c.compileEquality(p, table)
	case ast.Relational:
		return c.compileRelational(p, table)
	case ast.StringOp:
		return c.compileStringOp(p, table)
	default:
		return nil, &ErrCompile{Table: table.Name, Msg: fmt.Sprintf("unsupported predicate node %T", pred)}
	}
}

func (c *compilerState) compileEquality(p ast.Equality, table *schema.Table) (store.Predicate, error) {
	if p.Op == ast.EqIn {
		return c.compileIn(p, table)
	}
	cmp := func(lv, rv coltype.Value) bool {
		eq := lv.Equal(rv)
		if p.CaseInsensitive {
			eq = foldEqual(lv, rv)
		}
		if p.Op == ast.EqNE {
			return !eq
		}
		return eq
	}
	if link, ok := p.Left.(ast.LinkAggr); ok {
		return c.compileQualified(link, p.Right, cmp), nil
	}
	if link, ok := p.Right.(ast.LinkAggr); ok {
		return c.compileQualified(link, p.Left, func(lv, rv coltype.Value) bool { return cmp(rv, lv) }), nil
	}
	left, right := p.Left, p.Right
	return func(tx *store.Transaction, t *schema.Table, obj keys.ObjKey) bool {
		lv, lerr := c.eval(left, t, tx, obj)
		rv, rerr := c.eval(right, t, tx, obj)
		if lerr != nil || rerr != nil {
			return false
		}
		return cmp(lv, rv)
	}, nil
}

// compileIn lowers `lhs IN rhs`, where checkInRHS has already verified
// rhs is either a list literal or a list/set-valued property, into a
// Predicate testing lhs against every element of rhs.
func (c *compilerState) compileIn(p ast.Equality, table *schema.Table) (store.Predicate, error) {
	left := p.Left
	eq := func(lv, rv coltype.Value) bool {
		if p.CaseInsensitive {
			return foldEqual(lv, rv)
		}
		return lv.Equal(rv)
	}
	if list, ok := p.Right.(ast.List); ok {
		elems := list.Elems
		return func(tx *store.Transaction, t *schema.Table, obj keys.ObjKey) bool {
			lv, err := c.eval(left, t, tx, obj)
			if err != nil {
				return false
			}
			for _, e := range elems {
				rv, err := c.eval(e, t, tx, obj)
				if err != nil {
					continue
				}
				if eq(lv, rv) {
					return true
				}
			}
			return false
		}, nil
	}
	prop, ok := p.Right.(ast.Property)
	if !ok {
		return nil, &ErrCompile{Table: table.Name, Msg: "property of non-list type used with IN"}
	}
	path := prop.Path
	return func(tx *store.Transaction, t *schema.Table, obj keys.ObjKey) bool {
		lv, err := c.eval(left, t, tx, obj)
		if err != nil {
			return false
		}
		vs, err := c.evalListValues(path, t, tx, obj)
		if err != nil {
			return false
		}
		for _, rv := range vs {
			if eq(lv, rv) {
				return true
			}
		}
		return false
	}, nil
}

// evalListValues resolves path to its owning object and list/set
// column, the same way evalListAggr and evalSubquery locate a
// collection via walkToCollectionOwner, and returns that collection's
// live element values.
func (c *compilerState) evalListValues(path []string, table *schema.Table, tx *store.Transaction, obj keys.ObjKey) ([]coltype.Value, error) {
	o, err := tx.GetObject(table.Key, obj)
	if err != nil {
		return nil, err
	}
	cur, colName, ok, err := c.walkToCollectionOwner(o, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	col := cur.Table().FindColumn(colName)
	if col == nil {
		return nil, &ErrCompile{Table: cur.Table().Name, Msg: fmt.Sprintf("unknown property %q", colName)}
	}
	switch {
	case col.IsList():
		list, err := cur.List(colName)
		if err != nil {
			return nil, err
		}
		out := make([]coltype.Value, 0, list.Size())
		for i := 0; i < list.Size(); i++ {
			v, err := list.Get(i)
			if err != nil {
				continue
			}
			out = append(out, v)
		}
		return out, nil
	case col.IsSet():
		set, err := cur.SetOf(colName)
		if err != nil {
			return nil, err
		}
		return set.Values(), nil
	default:
		return nil, &ErrCompile{Table: cur.Table().Name, Msg: fmt.Sprintf("%q is not a list or set property", colName)}
	}
}

// compileQualified implements the ANY/ALL/NONE qualifier over a
// LinkList key path: ANY is satisfied if at least one linked object's
// sub-property satisfies cmp against rhs (false over an empty list),
// ALL requires every element to satisfy it (vacuously true over an
// empty list), NONE is the negation of ANY.
func (c *compilerState) compileQualified(link ast.LinkAggr, rhs ast.ValueExpr, cmp func(elem, rhs coltype.Value) bool) store.Predicate {
	return func(tx *store.Transaction, t *schema.Table, obj keys.ObjKey) bool {
		rv, err := c.eval(rhs, t, tx, obj)
		if err != nil {
			return false
		}
		elems, err := c.resolveQualifiedElements(link.Path, t, tx, obj)
		if err != nil {
			return false
		}
		switch link.Qualifier {
		case ast.Any:
			for _, e := range elems {
				if cmp(e, rv) {
					return true
				}
			}
			return false
		case ast.All:
			for _, e := range elems {
				if !cmp(e, rv) {
					return false
				}
			}
			return true
		case ast.None:
			for _, e := range elems {
				if cmp(e, rv) {
					return false
				}
			}
			return true
		default:
			return false
		}
	}
}

// resolveQualifiedElements walks link.Path, whose final segment names
// a scalar property reachable on every object a LinkList column
// (itself named by the preceding segment) points at, and returns that
// property's value for each live linked element.
func (c *compilerState) resolveQualifiedElements(path []string, table *schema.Table, tx *store.Transaction, obj keys.ObjKey) ([]coltype.Value, error) {
	if len(path) < 2 {
		return nil, &ErrCompile{Table: table.Name, Msg: "ANY/ALL/NONE requires collection.property"}
	}
	o, err := tx.GetObject(table.Key, obj)
	if err != nil {
		return nil, err
	}
	cur := o
	curTable := table
	for _, seg := range path[:len(path)-2] {
		linked, ok, err := cur.GetLinkedObject(seg)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		cur = linked
		curTable = linked.Table()
	}
	listColName := path[len(path)-2]
	subProp := path[len(path)-1]
	listCol := curTable.FindColumn(listColName)
	if listCol == nil || listCol.Kind != coltype.Link {
		return nil, &ErrCompile{Table: curTable.Name, Msg: fmt.Sprintf("%q is not a link list", listColName)}
	}
	targetTable := c.db.TableByKey(listCol.LinkedTo)
	list, err := cur.List(listColName)
	if err != nil {
		return nil, err
	}
	out := make([]coltype.Value, 0, list.Size())
	for i := 0; i < list.Size(); i++ {
		v, err := list.Get(i)
		if err != nil || v.Null {
			continue
		}
		elemObj, err := tx.GetObject(targetTable.Key, keys.ObjKey(v.ObjID))
		if err != nil {
			continue
		}
		pv, err := elemObj.Get(subProp)
		if err != nil {
			continue
		}
		out = append(out, pv)
	}
	return out, nil
}

func foldEqual(a, b coltype.Value) bool {
	if a.Kind == coltype.String && b.Kind == coltype.String {
		return foldCase(a.S) == foldCase(b.S)
	}
	return a.Equal(b)
}

func foldCase(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}

// compareValues orders lv against rv, mixing numeric kinds via
// Float64 the same way relOpCompare always has; ok is false when the
// two values are not comparable at all (kind mismatch outside the
// numeric class) or are unordered (NaN). Shared by relOpCompare and
// CompileOrdering's sort comparator.
func compareValues(lv, rv coltype.Value) (cmp int, ok bool) {
	if !coltype.IsComparable(lv.Kind, rv.Kind) {
		return 0, false
	}
	if lv.Kind != rv.Kind && lv.Kind.IsNumeric() && rv.Kind.IsNumeric() {
		lf, rf := lv.Float64(), rv.Float64()
		switch {
		case lf < rf:
			return -1, true
		case lf > rf:
			return 1, true
		default:
			return 0, true
		}
	}
	return lv.Compare(rv)
}

func relOpCompare(op ast.RelOp, lv, rv coltype.Value) bool {
	cmp, ok := compareValues(lv, rv)
	if !ok {
		return false
	}
	switch op {
	case ast.LT:
		return cmp < 0
	case ast.LE:
		return cmp <= 0
	case ast.GT:
		return cmp > 0
	case ast.GE:
		return cmp >= 0
	}
	return false
}

func flipRelOp(op ast.RelOp) ast.RelOp {
	switch op {
	case ast.LT:
		return ast.GT
	case ast.LE:
		return ast.GE
	case ast.GT:
		return ast.LT
	case ast.GE:
		return ast.LE
	}
	return op
}

func (c *compilerState) compileRelational(p ast.Relational, table *schema.Table) (store.Predicate, error) {
	if link, ok := p.Left.(ast.LinkAggr); ok {
		return c.compileQualified(link, p.Right, func(lv, rv coltype.Value) bool { return relOpCompare(p.Op, lv, rv) }), nil
	}
	if link, ok := p.Right.(ast.LinkAggr); ok {
		flipped := flipRelOp(p.Op)
		return c.compileQualified(link, p.Left, func(lv, rv coltype.Value) bool { return relOpCompare(flipped, lv, rv) }), nil
	}
	if lk, lok := c.staticKindOf(p.Left, table); lok {
		if rk, rok := c.staticKindOf(p.Right, table); rok && !coltype.IsComparable(lk, rk) {
			return nil, &coltype.ErrUnsupportedComparison{Left: lk, Right: rk}
		}
	}
	return func(tx *store.Transaction, t *schema.Table, obj keys.ObjKey) bool {
		lv, lerr := c.eval(p.Left, t, tx, obj)
		rv, rerr := c.eval(p.Right, t, tx, obj)
		if lerr != nil || rerr != nil {
			return false
		}
		return relOpCompare(p.Op, lv, rv)
	}, nil
}

// stringOpKindComparable reports whether a and b may appear on either
// side of a CONTAINS/BEGINSWITH/ENDSWITH/LIKE comparison: per spec.md's
// requirement that right_kind ∈ {String, Binary}, both sides must agree
// on String or Binary (Mixed matches either).
func stringOpKindComparable(a, b coltype.Kind) bool {
	if a == coltype.Mixed || b == coltype.Mixed {
		return true
	}
	stringLike := func(k coltype.Kind) bool { return k == coltype.String || k == coltype.Binary }
	return stringLike(a) && stringLike(b) && a == b
}

func (c *compilerState) compileStringOp(p ast.StringOp, table *schema.Table) (store.Predicate, error) {
	if lk, lok := c.staticKindOf(p.Left, table); lok {
		if rk, rok := c.staticKindOf(p.Right, table); rok && !stringOpKindComparable(lk, rk) {
			return nil, &coltype.ErrUnsupportedComparison{Left: lk, Right: rk}
		}
	}
	return func(tx *store.Transaction, t *schema.Table, obj keys.ObjKey) bool {
		lv, lerr := c.eval(p.Left, t, tx, obj)
		rv, rerr := c.eval(p.Right, t, tx, obj)
		if lerr != nil || rerr != nil {
			return false
		}
		switch {
		case lv.Kind == coltype.Binary || rv.Kind == coltype.Binary:
			if (lv.Kind != coltype.Binary && lv.Kind != coltype.Mixed) || (rv.Kind != coltype.Binary && rv.Kind != coltype.Mixed) {
				return false
			}
			return matchBinaryOp(p.Op, lv.Bin, rv.Bin)
		case lv.Kind == coltype.String && rv.Kind == coltype.String:
			hay, needle := lv.S, rv.S
			if p.CaseInsensitive {
				hay, needle = foldCase(hay), foldCase(needle)
			}
			return matchStringOp(p.Op, hay, needle)
		default:
			return false
		}
	}, nil
}

func matchStringOp(op ast.StringOpKind, hay, needle string) bool {
	switch op {
	case ast.Contains:
		return containsSubstring(hay, needle)
	case ast.BeginsWith:
		return len(hay) >= len(needle) && hay[:len(needle)] == needle
	case ast.EndsWith:
		return len(hay) >= len(needle) && hay[len(hay)-len(needle):] == needle
	case ast.Like:
		return matchLike(hay, needle)
	}
	return false
}

// matchBinaryOp is matchStringOp's byte-slice analogue, reached when
// either operand of a CONTAINS/BEGINSWITH/ENDSWITH/LIKE comparison is
// Binary-kind rather than String-kind.
func matchBinaryOp(op ast.StringOpKind, hay, needle []byte) bool {
	switch op {
	case ast.Contains:
		return bytes.Contains(hay, needle)
	case ast.BeginsWith:
		return bytes.HasPrefix(hay, needle)
	case ast.EndsWith:
		return bytes.HasSuffix(hay, needle)
	case ast.Like:
		return likeMatchBytes(hay, needle)
	}
	return false
}

func containsSubstring(hay, needle string) bool {
	if len(needle) == 0 {
		return true
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		if hay[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// matchLike implements the §6 glob-style LIKE pattern: '*' matches any
// run of characters, '?' matches exactly one.
func matchLike(s, pattern string) bool {
	return likeMatch([]rune(s), []rune(pattern))
}

func likeMatch(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '*' {
		if likeMatch(s, p[1:]) {
			return true
		}
		for len(s) > 0 {
			s = s[1:]
			if likeMatch(s, p[1:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if p[0] == '?' || p[0] == s[0] {
		return likeMatch(s[1:], p[1:])
	}
	return false
}

// likeMatchBytes is matchLike's byte-slice analogue for Binary operands.
func likeMatchBytes(s, p []byte) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '*' {
		if likeMatchBytes(s, p[1:]) {
			return true
		}
		for len(s) > 0 {
			s = s[1:]
			if likeMatchBytes(s, p[1:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if p[0] == '?' || p[0] == s[0] {
		return likeMatchBytes(s[1:], p[1:])
	}
	return false
}

// eval evaluates a ValueExpr against a bound object using only the
// store's exported Object accessor surface.
func (c *compilerState) eval(expr ast.ValueExpr, table *schema.Table, tx *store.Transaction, obj keys.ObjKey) (coltype.Value, error) {
	switch v := expr.(type) {
	case ast.Constant:
		return v.Value, nil
	case ast.Property:
		return c.evalProperty(v.Path, table, tx, obj)
	case ast.ListAggr:
		return c.evalListAggr(v, table, tx, obj)
	case ast.LinkAggr:
		return c.evalLinkAggr(v, table, tx, obj)
	case ast.Subquery:
		return c.evalSubquery(v, table, tx, obj)
	default:
		return coltype.Value{}, &ErrCompile{Table: table.Name, Msg: fmt.Sprintf("unsupported value expression %T", expr)}
	}
}

func (c *compilerState) evalProperty(path []string, table *schema.Table, tx *store.Transaction, obj keys.ObjKey) (coltype.Value, error) {
	// A leading `$var` segment names the SUBQUERY-bound element itself
	// (§4.7's Subquery: "a fresh key-path context is pushed with the
	// declared variable name mapped to the inner table"), not an
	// outer-table column; strip it so the remaining path resolves
	// against obj, which is already the inner element.
	if len(path) > 0 && c.vars[path[0]] {
		path = path[1:]
	}
	if len(path) == 0 {
		return coltype.Value{}, &ErrCompile{Table: table.Name, Msg: "subquery variable used without a property"}
	}
	o, err := tx.GetObject(table.Key, obj)
	if err != nil {
		return coltype.Value{}, err
	}
	cur := o
	curTable := table
	i := 0
	for i < len(path) {
		seg := path[i]
		if seg == "@links" {
			if i+2 >= len(path) {
				return coltype.Value{}, &ErrCompile{Table: curTable.Name, Msg: "@links requires Table.column"}
			}
			originTable := c.db.FindTable(path[i+1])
			if originTable == nil {
				originTable = c.db.FindTable(strings.TrimPrefix(path[i+1], "class_"))
			}
			if originTable == nil {
				return coltype.Value{}, &ErrCompile{Table: curTable.Name, Msg: "unknown @links table"}
			}
			fwd := originTable.FindColumn(path[i+2])
			if fwd == nil {
				return coltype.Value{}, &ErrCompile{Table: curTable.Name, Msg: "unknown @links column"}
			}
			backCol := curTable.ColumnByKey(fwd.OriginCol)
			if backCol == nil {
				return coltype.NullValue(coltype.Link), nil
			}
			list, err := cur.List(backCol.Name)
			if err != nil || list.Size() == 0 {
				return coltype.NullValue(coltype.Link), nil
			}
			v, _ := list.Get(0)
			cur, err = tx.GetObject(originTable.Key, keys.ObjKey(v.ObjID))
			if err != nil {
				return coltype.NullValue(coltype.Link), nil
			}
			curTable = originTable
			i += 3
			continue
		}

		last := i == len(path)-1
		if !last {
			linked, ok, err := cur.GetLinkedObject(seg)
			if err != nil {
				return coltype.Value{}, err
			}
			if !ok {
				return coltype.NullValue(coltype.Link), nil
			}
			cur = linked
			curTable = linked.Table()
			i++
			continue
		}
		return cur.Get(seg)
	}
	return coltype.Value{}, &ErrCompile{Table: table.Name, Msg: "empty key path"}
}

func (c *compilerState) evalListAggr(v ast.ListAggr, table *schema.Table, tx *store.Transaction, obj keys.ObjKey) (coltype.Value, error) {
	o, err := tx.GetObject(table.Key, obj)
	if err != nil {
		return coltype.Value{}, err
	}
	cur, col, ok, err := c.walkToCollectionOwner(o, v.Path)
	if err != nil {
		return coltype.Value{}, err
	}
	if !ok {
		return coltype.IntValue(0), nil
	}
	list, err := cur.List(col)
	if err != nil {
		return coltype.Value{}, err
	}
	switch v.Op {
	case ast.AggrCount, ast.AggrSize:
		return coltype.IntValue(int64(list.Size())), nil
	case ast.AggrMin:
		return list.Min()
	case ast.AggrMax:
		return list.Max()
	case ast.AggrSum:
		return list.Sum()
	case ast.AggrAvg:
		return list.Average()
	}
	return coltype.Value{}, &ErrCompile{Table: table.Name, Msg: "unsupported aggregate"}
}

// evalLinkAggr is reached only when an ANY/ALL/NONE-qualified LinkAggr
// appears where a plain value is expected, and always returns
// ErrNotImplemented. Qualified comparisons are evaluated by
// compileQualified, which compileEquality and compileRelational select
// when they find a LinkAggr operand.
func (c *compilerState) evalLinkAggr(v ast.LinkAggr, table *schema.Table, tx *store.Transaction, obj keys.ObjKey) (coltype.Value, error) {
	return coltype.Value{}, &ErrNotImplemented{What: "ANY/ALL/NONE qualified comparisons are evaluated structurally, not as a plain value"}
}

// evalSubquery implements `SUBQUERY(collection, $v, pred).@size`: for
// each live element of the collection named by v.CollectionPath, it
// binds v.Var to that element and counts how many satisfy v.Predicate,
// per §4.7 point 6.
func (c *compilerState) evalSubquery(v ast.Subquery, table *schema.Table, tx *store.Transaction, obj keys.ObjKey) (coltype.Value, error) {
	o, err := tx.GetObject(table.Key, obj)
	if err != nil {
		return coltype.Value{}, err
	}
	cur, colName, ok, err := c.walkToCollectionOwner(o, v.CollectionPath)
	if err != nil {
		return coltype.Value{}, err
	}
	if !ok {
		return coltype.IntValue(0), nil
	}
	col := cur.Table().FindColumn(colName)
	if col == nil || col.Kind != coltype.Link {
		return coltype.Value{}, &ErrCompile{Table: cur.Table().Name, Msg: fmt.Sprintf("%q is not a list property", colName)}
	}
	targetTable := c.db.TableByKey(col.LinkedTo)
	if targetTable == nil {
		return coltype.Value{}, &ErrCompile{Table: cur.Table().Name, Msg: fmt.Sprintf("%q has no link target", colName)}
	}
	list, err := cur.List(colName)
	if err != nil {
		return coltype.Value{}, err
	}

	if c.vars == nil {
		c.vars = make(map[string]bool)
	}
	wasBound := c.vars[v.Var]
	c.vars[v.Var] = true
	defer func() {
		if !wasBound {
			delete(c.vars, v.Var)
		}
	}()
	innerPred, err := c.compilePredicate(v.Predicate, targetTable)
	if err != nil {
		return coltype.Value{}, err
	}

	count := 0
	for i := 0; i < list.Size(); i++ {
		elem, err := list.Get(i)
		if err != nil || elem.Null {
			continue
		}
		if innerPred(tx, targetTable, keys.ObjKey(elem.ObjID)) {
			count++
		}
	}
	return coltype.IntValue(int64(count)), nil
}

func (c *compilerState) walkToCollectionOwner(o *store.Object, path []string) (*store.Object, string, bool, error) {
	cur := o
	for i, seg := range path {
		if i == len(path)-1 {
			return cur, seg, true, nil
		}
		linked, ok, err := cur.GetLinkedObject(seg)
		if err != nil {
			return nil, "", false, err
		}
		if !ok {
			return nil, "", false, nil
		}
		cur = linked
	}
	return nil, "", false, &ErrCompile{Msg: "empty key path"}
}

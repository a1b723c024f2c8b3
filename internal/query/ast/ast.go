// Package ast defines the closed predicate AST described in §4.5: a
// fixed node set produced by the lang parser and consumed by the
// compiler. It never grows at runtime; new predicate shapes mean a
// new node type, not a generic escape hatch.
package ast

import "smfdb/internal/coltype"

// Node is implemented by every AST node.
type Node interface{ isNode() }

// Predicate is implemented by boolean-valued nodes (the WHERE clause shape).
type Predicate interface {
	Node
	isPredicate()
}

// ValueExpr is implemented by value-producing nodes (comparison operands).
type ValueExpr interface {
	Node
	isValueExpr()
}

type base struct{}

func (base) isNode() {}

// Boolean connectives.

type Or struct {
	base
	Left, Right Predicate
}

type And struct {
	base
	Left, Right Predicate
}

type Not struct {
	base
	Expr Predicate
}

// Parens preserves explicit grouping from the source text; the
// compiler strips it after parsing but it survives long enough for
// error messages to quote the original subexpression.
type Parens struct {
	base
	Expr Predicate
}

type True struct{ base }
type False struct{ base }

func (Or) isPredicate() {}
func (And) isPredicate() {}
func (Not) isPredicate() {}
func (Parens) isPredicate() {}
func (True) isPredicate() {}
func (False) isPredicate() {}

// RelOp is the closed set of ordering comparison operators.
type RelOp int

const (
	LT RelOp = iota
	LE
	GT
	GE
)

func (op RelOp) String() string {
	return [...]string{"<", "<=", ">", ">="}[op]
}

// EqOp is the closed set of equality-family operators: ==, !=, and IN.
type EqOp int

const (
	EqEQ EqOp = iota
	EqNE
	EqIn
)

func (op EqOp) String() string {
	return [...]string{"==", "!=", "IN"}[op]
}

// Equality is `lhs == rhs`, `lhs != rhs`, or `lhs IN rhs` (§4.7 point
// 3: rhs must resolve to a list-valued property or an explicit list
// literal).
type Equality struct {
	base
	Left, Right     ValueExpr
	Op              EqOp
	CaseInsensitive bool
}

func (Equality) isPredicate() {}

// List is a literal `{a, b, c}` list of value expressions, used as the
// right-hand operand of IN.
type List struct {
	base
	Elems []ValueExpr
}

func (List) isValueExpr() {}

// Relational is one of <, <=, >, >=.
type Relational struct {
	base
	Op          RelOp
	Left, Right ValueExpr
}

func (Relational) isPredicate() {}

// StringOpKind is the closed set of string predicate operators from §6.
type StringOpKind int

const (
	Contains StringOpKind = iota
	BeginsWith
	EndsWith
	Like
)

func (k StringOpKind) String() string {
	return [...]string{"CONTAINS", "BEGINSWITH", "ENDSWITH", "LIKE"}[k]
}

type StringOp struct {
	base
	Op              StringOpKind
	Left, Right     ValueExpr
	CaseInsensitive bool
}

func (StringOp) isPredicate() {}

// Between is `lo <= expr <= hi`, resolved per the BETWEEN Open
// Question decision recorded in DESIGN.md: it lowers to the
// conjunction of two Relational nodes at compile time rather than
// remaining its own runtime operator.
type Between struct {
	base
	Expr    ValueExpr
	Lo, Hi  ValueExpr
}

func (Between) isPredicate() {}

// Constant is a literal value, already coerced to a coltype.Value by
// the parser's literal grammar (§6).
type Constant struct {
	base
	Value coltype.Value
}

func (Constant) isValueExpr() {}

// Property is a key path: an identifier sequence optionally starting
// with "@links" (an explicit backlink traversal) and optionally ending
// with "@size"/"@count"/"@min"/"@max"/"@sum"/"@avg" (a collection
// aggregate, represented instead as ListAggr once the parser
// recognizes the suffix — Property itself never carries an aggregate
// suffix).
type Property struct {
	base
	Path            []string
	CaseInsensitive bool // the `[c]` suffix from §6
}

func (Property) isValueExpr() {}

// AggrOp is the closed set of collection aggregate operators
// reachable through `@count`/`@size`/`@min`/`@max`/`@sum`/`@avg`.
type AggrOp int

const (
	AggrCount AggrOp = iota
	AggrSize
	AggrMin
	AggrMax
	AggrSum
	AggrAvg
)

// ListAggr computes an aggregate over a list/set-valued key path.
type ListAggr struct {
	base
	Path []string
	Op   AggrOp
}

func (ListAggr) isValueExpr() {}

// LinkAggr is the operand of an ANY/ALL/NONE-qualified comparison over
// a link-list key path, e.g. `ANY books.price > 10`: Path names the
// link-list column followed by the property read on each linked
// object. The parser sets only Path and Qualifier; Op and SubPath stay
// at their zero values, and an unqualified link aggregate such as
// `books.@sum.price` is not parsed into a LinkAggr.
type LinkAggrQualifier int

const (
	NoQualifier LinkAggrQualifier = iota
	Any
	All
	None
)

type LinkAggr struct {
	base
	Path      []string
	Qualifier LinkAggrQualifier
	Op        AggrOp
	SubPath   []string // not set by the parser; the linked property is Path's last segment
}

func (LinkAggr) isValueExpr() {}

// Subquery is `SUBQUERY(collection, var, predicate).@count`.
type Subquery struct {
	base
	CollectionPath []string
	Var            string
	Predicate      Predicate
}

func (Subquery) isValueExpr() {}

// Descriptor ordering, §4.6: DescriptorOrdering keeps Sort, Distinct,
// and Limit in the sequence they are written rather than bucketing by
// kind; compiler.CompileOrdering decides how they combine.

type SortKey struct {
	Path       []string
	Descending bool
}

type Sort struct {
	base
	Keys []SortKey
}

type Distinct struct {
	base
	Paths [][]string
}

type Limit struct {
	base
	N int
}

// Descriptor is implemented by Sort, Distinct, and Limit.
type Descriptor interface{ Node }

// DescriptorOrdering is the ordered chain of descriptors trailing a
// query, e.g. `SORT(a) DISTINCT(b) LIMIT(5)`.
type DescriptorOrdering struct {
	Descriptors []Descriptor
}

package lang

import (
	"fmt"
	"strconv"
	"strings"

	"smfdb/internal/coltype"
	"smfdb/internal/query/ast"
)

// ParseError carries the source position of a syntax error, mirroring
// the teacher's parser facade's habit of returning positioned errors
// rather than a bare string.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("lang: %s (at position %d)", e.Message, e.Pos)
}

type parser struct {
	toks []token
	i    int
}

// Parse compiles a predicate expression (the WHERE-clause text) into
// the closed AST.
func Parse(src string) (ast.Predicate, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, &ParseError{Pos: p.cur().pos, Message: fmt.Sprintf("unexpected trailing input %q", p.cur().text)}
	}
	return pred, nil
}

// ParseDescriptorOrdering compiles a trailing `SORT(...) DISTINCT(...)
// LIMIT(n)` clause.
func ParseDescriptorOrdering(src string) (*ast.DescriptorOrdering, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	desc, err := p.parseDescriptorOrdering()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, &ParseError{Pos: p.cur().pos, Message: fmt.Sprintf("unexpected trailing input %q", p.cur().text)}
	}
	return desc, nil
}

func (p *parser) cur() token  { return p.toks[p.i] }
func (p *parser) advance() token {
	t := p.toks[p.i]
	if p.i < len(p.toks)-1 {
		p.i++
	}
	return t
}

func (p *parser) lowerIdent() string { return strings.ToLower(p.cur().text) }

func (p *parser) isKeyword(kw string) bool {
	return p.cur().kind == tokIdent && p.lowerIdent() == kw
}

func (p *parser) isPunct(s string) bool {
	return p.cur().kind == tokPunct && p.cur().text == s
}

func (p *parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return &ParseError{Pos: p.cur().pos, Message: fmt.Sprintf("expected %q, found %q", s, p.cur().text)}
	}
	p.advance()
	return nil
}

// parseOr := parseAnd ( (OR|"||") parseAnd )*
func (p *parser) parseOr() (ast.Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") || p.isPunct("||") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Predicate, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") || p.isPunct("&&") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = ast.And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (ast.Predicate, error) {
	if p.isKeyword("not") || p.isPunct("!") {
		p.advance()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return ast.Not{Expr: inner}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (ast.Predicate, error) {
	if p.isPunct("(") {
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return ast.Parens{Expr: inner}, nil
	}
	if p.isKeyword("truepredicate") {
		p.advance()
		return ast.True{}, nil
	}
	if p.isKeyword("falsepredicate") {
		p.advance()
		return ast.False{}, nil
	}
	if p.isKeyword("subquery") {
		return p.parseSubqueryCount()
	}
	return p.parseComparison()
}

// parseSubqueryCount handles `SUBQUERY(collection, $var, predicate).@count compOp N`.
func (p *parser) parseSubqueryCount() (ast.Predicate, error) {
	p.advance() // "subquery"
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	collection, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	var varName string
	switch p.cur().kind {
	case tokVar:
		varName = p.advance().text
	case tokIdent:
		varName = p.advance().text
	default:
		return nil, &ParseError{Pos: p.cur().pos, Message: "expected subquery variable name"}
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	inner, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	sub := ast.Subquery{CollectionPath: collection, Var: varName, Predicate: inner}

	// require a trailing `.@size` (the grammar's own terminal; `@count`
	// is accepted as the original implementation's synonym, see
	// SPEC_FULL.md §12).
	if err := p.expectPunct("."); err != nil {
		return nil, err
	}
	suffix := strings.ToLower(p.cur().text)
	if suffix != "@size" && suffix != "size" && suffix != "@count" && suffix != "count" {
		return nil, &ParseError{Pos: p.cur().pos, Message: "expected @size after SUBQUERY(...)"}
	}
	p.advance()
	op, err := p.parseCompOp()
	if err != nil {
		return nil, err
	}
	rhs, err := p.parseValueExpr()
	if err != nil {
		return nil, err
	}
	return compFromOp(op, sub, rhs)
}

func (p *parser) parseComparison() (ast.Predicate, error) {
	qualifier := ast.NoQualifier
	if p.isKeyword("any") {
		qualifier = ast.Any
		p.advance()
	} else if p.isKeyword("all") {
		qualifier = ast.All
		p.advance()
	} else if p.isKeyword("none") {
		qualifier = ast.None
		p.advance()
	}

	left, err := p.parseValueExpr()
	if err != nil {
		return nil, err
	}

	if p.isKeyword("between") {
		p.advance()
		if err := p.expectPunct("{"); err != nil {
			return nil, err
		}
		lo, err := p.parseValueExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		hi, err := p.parseValueExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("}"); err != nil {
			return nil, err
		}
		return ast.Between{Expr: left, Lo: lo, Hi: hi}, nil
	}

	op, err := p.parseCompOp()
	if err != nil {
		return nil, err
	}
	ci := false
	if p.isPunct("[") {
		p.advance()
		if p.cur().kind == tokIdent && p.lowerIdent() == "c" {
			ci = true
			p.advance()
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	}
	var right ast.ValueExpr
	if op.kind == "in" {
		right, err = p.parseValueOrList()
	} else {
		right, err = p.parseValueExpr()
	}
	if err != nil {
		return nil, err
	}

	if qualifier != ast.NoQualifier {
		prop, ok := left.(ast.Property)
		if !ok {
			return nil, &ParseError{Pos: p.cur().pos, Message: "ANY/ALL/NONE must qualify a property path"}
		}
		link := ast.LinkAggr{Path: prop.Path, Qualifier: qualifier}
		return qualifiedCompFromOp(op, link, right, ci)
	}

	pred, err := compFromOp(op, left, right)
	if err != nil {
		return nil, err
	}
	return applyCaseInsensitive(pred, ci), nil
}

type compOp struct {
	kind string // "eq", "ne", "lt", "le", "gt", "ge", or a StringOpKind name
}

func (p *parser) parseCompOp() (compOp, error) {
	if p.isPunct("==") {
		p.advance()
		return compOp{"eq"}, nil
	}
	if p.isPunct("!=") {
		p.advance()
		return compOp{"ne"}, nil
	}
	if p.isPunct("<=") {
		p.advance()
		return compOp{"le"}, nil
	}
	if p.isPunct(">=") {
		p.advance()
		return compOp{"ge"}, nil
	}
	if p.isPunct("<") {
		p.advance()
		return compOp{"lt"}, nil
	}
	if p.isPunct(">") {
		p.advance()
		return compOp{"gt"}, nil
	}
	if p.isKeyword("in") {
		p.advance()
		return compOp{"in"}, nil
	}
	for _, kw := range []string{"contains", "beginswith", "endswith", "like"} {
		if p.isKeyword(kw) {
			p.advance()
			return compOp{kw}, nil
		}
	}
	return compOp{}, &ParseError{Pos: p.cur().pos, Message: fmt.Sprintf("expected comparison operator, found %q", p.cur().text)}
}

func compFromOp(op compOp, left, right ast.ValueExpr) (ast.Predicate, error) {
	switch op.kind {
	case "eq":
		return ast.Equality{Left: left, Right: right, Op: ast.EqEQ}, nil
	case "ne":
		return ast.Equality{Left: left, Right: right, Op: ast.EqNE}, nil
	case "in":
		return ast.Equality{Left: left, Right: right, Op: ast.EqIn}, nil
	case "lt":
		return ast.Relational{Op: ast.LT, Left: left, Right: right}, nil
	case "le":
		return ast.Relational{Op: ast.LE, Left: left, Right: right}, nil
	case "gt":
		return ast.Relational{Op: ast.GT, Left: left, Right: right}, nil
	case "ge":
		return ast.Relational{Op: ast.GE, Left: left, Right: right}, nil
	case "contains":
		return ast.StringOp{Op: ast.Contains, Left: left, Right: right}, nil
	case "beginswith":
		return ast.StringOp{Op: ast.BeginsWith, Left: left, Right: right}, nil
	case "endswith":
		return ast.StringOp{Op: ast.EndsWith, Left: left, Right: right}, nil
	case "like":
		return ast.StringOp{Op: ast.Like, Left: left, Right: right}, nil
	}
	return nil, fmt.Errorf("lang: unknown operator %q", op.kind)
}

// qualifiedCompFromOp builds an ANY/ALL/NONE-qualified LinkAggr
// comparison; since the closed AST models the qualifier inside
// LinkAggr, the comparison operator stays a plain Equality/Relational/
// StringOp over the LinkAggr value expression, whose Path ends with the
// property read on each linked object.
func qualifiedCompFromOp(op compOp, link ast.LinkAggr, right ast.ValueExpr, ci bool) (ast.Predicate, error) {
	pred, err := compFromOp(op, link, right)
	if err != nil {
		return nil, err
	}
	return applyCaseInsensitive(pred, ci), nil
}

func applyCaseInsensitive(pred ast.Predicate, ci bool) ast.Predicate {
	if !ci {
		return pred
	}
	switch p := pred.(type) {
	case ast.Equality:
		p.CaseInsensitive = true
		return p
	case ast.StringOp:
		p.CaseInsensitive = true
		return p
	default:
		return pred
	}
}

// parseValueOrList parses either a single value expression or, when a
// `{` introduces a list literal (the same brace syntax BETWEEN already
// uses for its `{lo, hi}` pair), a comma-separated ast.List of value
// expressions. This is IN's right-hand operand grammar (§4.7 point 3):
// either a list literal or a property that resolves to a list column.
func (p *parser) parseValueOrList() (ast.ValueExpr, error) {
	if !p.isPunct("{") {
		return p.parseValueExpr()
	}
	p.advance()
	var elems []ast.ValueExpr
	for {
		v, err := p.parseValueExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return ast.List{Elems: elems}, nil
}

// parseValueExpr parses a literal, property path, argument, or
// aggregate expression operand.
func (p *parser) parseValueExpr() (ast.ValueExpr, error) {
	switch p.cur().kind {
	case tokInt:
		t := p.advance()
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, &ParseError{Pos: t.pos, Message: "malformed integer literal"}
		}
		return ast.Constant{Value: coltype.IntValue(n)}, nil
	case tokFloat:
		t := p.advance()
		text := strings.TrimRight(t.text, "fFdD")
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, &ParseError{Pos: t.pos, Message: "malformed floating-point literal"}
		}
		isFloat32 := strings.ContainsAny(t.text, "fF")
		if isFloat32 {
			return ast.Constant{Value: coltype.FloatValue(float32(f))}, nil
		}
		return ast.Constant{Value: coltype.DoubleValue(f)}, nil
	case tokString:
		t := p.advance()
		return ast.Constant{Value: coltype.StringValue(t.text)}, nil
	case tokArg:
		t := p.advance()
		idx, _ := strconv.Atoi(t.text)
		return ast.Constant{Value: coltype.IntValue(int64(idx))}, nil // resolved against bind args by the compiler
	case tokVar:
		t := p.advance()
		return p.buildPropertyOrAggregate(strings.Split(t.text, "."))
	case tokIdent:
		lower := p.lowerIdent()
		switch lower {
		case "true":
			p.advance()
			return ast.Constant{Value: coltype.BoolValue(true)}, nil
		case "false":
			p.advance()
			return ast.Constant{Value: coltype.BoolValue(false)}, nil
		case "null", "nil":
			p.advance()
			return ast.Constant{Value: coltype.NullValue(coltype.Mixed)}, nil
		}
		return p.parsePropertyOrAggregate()
	}
	return nil, &ParseError{Pos: p.cur().pos, Message: fmt.Sprintf("unexpected token %q", p.cur().text)}
}

// aggregateSuffixes maps a trailing path segment to its AggrOp.
var aggregateSuffixes = map[string]ast.AggrOp{
	"@count": ast.AggrCount,
	"@size":  ast.AggrSize,
	"@min":   ast.AggrMin,
	"@max":   ast.AggrMax,
	"@sum":   ast.AggrSum,
	"@avg":   ast.AggrAvg,
}

func (p *parser) parsePropertyOrAggregate() (ast.ValueExpr, error) {
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	return p.buildPropertyOrAggregate(path)
}

// buildPropertyOrAggregate finishes parsing a property expression once
// its dotted path is already in hand, whether that path came from a
// plain identifier (parsePropertyOrAggregate) or a `$var.path`
// SUBQUERY variable reference (parseValueExpr's tokVar case).
func (p *parser) buildPropertyOrAggregate(path []string) (ast.ValueExpr, error) {
	// `length` is rewritten to `@size` per the original implementation's
	// convenience alias (see SPEC_FULL.md §12).
	for i, seg := range path {
		if strings.EqualFold(seg, "length") {
			path[i] = "@size"
		}
	}

	last := path[len(path)-1]
	if op, ok := aggregateSuffixes[strings.ToLower(last)]; ok {
		return ast.ListAggr{Path: path[:len(path)-1], Op: op}, nil
	}

	ci := false
	if p.isPunct("[") {
		p.advance()
		if p.cur().kind == tokIdent && p.lowerIdent() == "c" {
			ci = true
			p.advance()
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	}
	return ast.Property{Path: path, CaseInsensitive: ci}, nil
}

// parsePath consumes a dotted identifier sequence, including an
// explicit `@links.Table.column` backlink segment.
func (p *parser) parsePath() ([]string, error) {
	if p.cur().kind != tokIdent {
		return nil, &ParseError{Pos: p.cur().pos, Message: fmt.Sprintf("expected identifier, found %q", p.cur().text)}
	}
	t := p.advance()
	return strings.Split(t.text, "."), nil
}

func (p *parser) parseDescriptorOrdering() (*ast.DescriptorOrdering, error) {
	out := &ast.DescriptorOrdering{}
	for {
		switch {
		case p.isKeyword("sort"):
			d, err := p.parseSort()
			if err != nil {
				return nil, err
			}
			out.Descriptors = append(out.Descriptors, d)
		case p.isKeyword("distinct"):
			d, err := p.parseDistinct()
			if err != nil {
				return nil, err
			}
			out.Descriptors = append(out.Descriptors, d)
		case p.isKeyword("limit"):
			d, err := p.parseLimit()
			if err != nil {
				return nil, err
			}
			out.Descriptors = append(out.Descriptors, d)
		default:
			return out, nil
		}
	}
}

func (p *parser) parseSort() (ast.Sort, error) {
	p.advance()
	if err := p.expectPunct("("); err != nil {
		return ast.Sort{}, err
	}
	var keys []ast.SortKey
	for {
		path, err := p.parsePath()
		if err != nil {
			return ast.Sort{}, err
		}
		desc := false
		if p.isKeyword("desc") || p.isKeyword("descending") {
			desc = true
			p.advance()
		} else if p.isKeyword("asc") || p.isKeyword("ascending") {
			p.advance()
		}
		keys = append(keys, ast.SortKey{Path: path, Descending: desc})
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return ast.Sort{}, err
	}
	return ast.Sort{Keys: keys}, nil
}

func (p *parser) parseDistinct() (ast.Distinct, error) {
	p.advance()
	if err := p.expectPunct("("); err != nil {
		return ast.Distinct{}, err
	}
	var paths [][]string
	for {
		path, err := p.parsePath()
		if err != nil {
			return ast.Distinct{}, err
		}
		paths = append(paths, path)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return ast.Distinct{}, err
	}
	return ast.Distinct{Paths: paths}, nil
}

func (p *parser) parseLimit() (ast.Limit, error) {
	p.advance()
	if err := p.expectPunct("("); err != nil {
		return ast.Limit{}, err
	}
	if p.cur().kind != tokInt {
		return ast.Limit{}, &ParseError{Pos: p.cur().pos, Message: "expected integer LIMIT argument"}
	}
	n, _ := strconv.Atoi(p.advance().text)
	if err := p.expectPunct(")"); err != nil {
		return ast.Limit{}, err
	}
	return ast.Limit{N: n}, nil
}

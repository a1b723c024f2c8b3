// Package lang implements the hand-written lexer and recursive-descent
// parser for the predicate grammar in §6: a case-insensitive,
// Realm-flavored query language (not SQL), producing the closed AST
// in internal/query/ast.
//
// Grounded in spirit on the teacher's internal/parser facade pattern
// (a Parse(src string) (*ast, error) entry point returning parse
// errors with position information) and, for the grammar itself, on
// realm-core's query_bison.yy / driver.cpp (see original_source/),
// expressed here as a lexer+parser pair instead of a bison grammar,
// since Go's ecosystem convention for small custom DSLs is a
// hand-written recursive-descent parser rather than a generated one.
package lang

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokArg // $0, $1, ...
	tokVar // $p, $p.age, ... — a SUBQUERY-bound variable reference
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// reserved words are case-insensitively recognized as keywords only
// when not immediately followed by a path-continuation character;
// the parser itself re-classifies a reserved word used where an
// identifier is grammatically required (§6's "reserved words are
// valid property names when unambiguous").
var reservedWords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "between": true,
	"true": true, "false": true, "null": true, "nil": true,
	"truepredicate": true, "falsepredicate": true,
	"contains": true, "beginswith": true, "endswith": true, "like": true,
	"any": true, "all": true, "none": true, "sort": true, "distinct": true,
	"limit": true, "ascending": true, "asc": true, "descending": true, "desc": true,
	"subquery": true,
}

type lexer struct {
	src    string
	pos    int
	tokens []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.kind == tokEOF {
			break
		}
	}
	return l.tokens, nil
}

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}
	c := l.src[l.pos]

	switch {
	case c == '"' || c == '\'':
		return l.lexString(c)
	case c == '$':
		l.pos++
		s := l.pos
		if l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
			return token{kind: tokArg, text: l.src[s:l.pos], pos: start}, nil
		}
		// A SUBQUERY-bound variable, e.g. `$p` or `$p.age`: the dollar
		// sigil marks it as a variable reference rather than a plain
		// property path rooted at the outer table.
		if l.pos < len(l.src) && isIdentStart(l.src[l.pos]) {
			for l.pos < len(l.src) && (isIdentPart(l.src[l.pos]) || l.src[l.pos] == '.') {
				l.pos++
			}
			return token{kind: tokVar, text: l.src[s:l.pos], pos: start}, nil
		}
		return token{}, fmt.Errorf("lang: malformed argument placeholder at position %d", start)
	case isDigit(c) || (c == '-' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		return l.lexNumber()
	case isIdentStart(c) || c == '@':
		return l.lexIdent()
	default:
		return l.lexPunct()
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		r, sz := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += sz
	}
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token{}, fmt.Errorf("lang: unterminated string literal starting at position %d", start)
		}
		c := l.src[l.pos]
		if c == quote {
			l.pos++
			break
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			sb.WriteByte(l.src[l.pos])
			l.pos++
			continue
		}
		sb.WriteByte(c)
		l.pos++
	}
	return token{kind: tokString, text: sb.String(), pos: start}, nil
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	isFloat := false
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		if l.src[l.pos] == '.' {
			isFloat = true
		}
		l.pos++
	}
	// scientific notation or typed suffix (1.5f, 100d)
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		isFloat = true
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	text := l.src[start:l.pos]
	if l.pos < len(l.src) && strings.ContainsRune("fFdD", rune(l.src[l.pos])) {
		text += string(l.src[l.pos])
		l.pos++
		isFloat = true
	}
	if isFloat {
		return token{kind: tokFloat, text: text, pos: start}, nil
	}
	return token{kind: tokInt, text: text, pos: start}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isIdentPart(c) || c == '@' || c == '.' || c == '#' {
			l.pos++
			continue
		}
		break
	}
	return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
}

func (l *lexer) lexPunct() (token, error) {
	start := l.pos
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "==", "!=", "<=", ">=", "&&", "||":
		l.pos += 2
		return token{kind: tokPunct, text: two, pos: start}, nil
	}
	c := l.src[l.pos]
	switch c {
	case '(', ')', ',', '<', '>', '=', '!', '[', ']', '.', '{', '}':
		l.pos++
		return token{kind: tokPunct, text: string(c), pos: start}, nil
	}
	return token{}, fmt.Errorf("lang: unexpected character %q at position %d", c, start)
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }

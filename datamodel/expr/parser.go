package expr

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) consume() token {
	t := p.tokens[p.pos]
	p.pos++

	return t
}

func (p *parser) expect(kind tokenKind, val string) error {
	t := p.peek()
	if t.kind != kind {
		return fmt.Errorf("%w: expected %q but got %q at position %d", ErrSyntax, val, t.val, t.pos)
	}

	p.consume()

	return nil
}

func (p *parser) atOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind == tokOp && slices.Contains(ops, t.val) {
		return t.val, true
	}

	return "", false
}

// Parse parses a single expression. Newlines count as whitespace; a
// semicolon is a syntax error.
func Parse(src string) (Node, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	tokens = slices.DeleteFunc(tokens, func(t token) bool {
		return t.kind == tokSep && t.val == "\n"
	})

	p := &parser{tokens: tokens}

	if p.peek().kind == tokEOF {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q after expression at position %d", ErrSyntax, t.val, t.pos)
	}

	return node, nil
}

// ParseScript parses statements separated by newlines or semicolons. Each
// statement is either "location = expression" or a bare expression.
func ParseScript(src string) ([]Statement, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}

	var stmts []Statement

	for {
		for p.peek().kind == tokSep {
			p.consume()
		}

		if p.peek().kind == tokEOF {
			return stmts, nil
		}

		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}

		stmts = append(stmts, stmt)

		if t := p.peek(); t.kind != tokSep && t.kind != tokEOF {
			return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, t.val, t.pos)
		}
	}
}

func (p *parser) parseStatement() (Statement, error) {
	if p.peek().kind == tokWord && p.tokens[p.pos+1].kind == tokOp && p.tokens[p.pos+1].val == "=" {
		target := splitPath(p.consume().val)
		p.consume()

		value, err := p.parseOr()
		if err != nil {
			return Statement{}, err
		}

		return Statement{Target: target, Value: value}, nil
	}

	value, err := p.parseOr()
	if err != nil {
		return Statement{}, err
	}

	return Statement{Value: value}, nil
}

// ParsePath parses a location such as "a.b.c".
func ParsePath(location string) (*Path, error) {
	tokens, err := tokenize(strings.TrimSpace(location))
	if err != nil {
		return nil, err
	}

	if len(tokens) != 2 || tokens[0].kind != tokWord {
		return nil, fmt.Errorf("%w: invalid location %q", ErrSyntax, location)
	}

	path := splitPath(tokens[0].val)
	if slices.Contains(path.Segments, "") {
		return nil, fmt.Errorf("%w: invalid location %q", ErrSyntax, location)
	}

	return path, nil
}

func splitPath(word string) *Path {
	return &Path{Segments: strings.Split(word, ".")}
}

// binaryLevel parses a left-associative chain of the given operators.
func (p *parser) binaryLevel(next func() (Node, error), ops ...string) (Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	for {
		op, ok := p.atOp(ops...)
		if !ok {
			return left, nil
		}

		p.consume()

		right, err := next()
		if err != nil {
			return nil, err
		}

		left = &Binary{Op: op, Left: left, Right: right}
	}
}

// or = and ( "||" and )*
func (p *parser) parseOr() (Node, error) {
	return p.binaryLevel(p.parseAnd, "||")
}

// and = equality ( "&&" equality )*
func (p *parser) parseAnd() (Node, error) {
	return p.binaryLevel(p.parseEquality, "&&")
}

func (p *parser) parseEquality() (Node, error) {
	return p.binaryLevel(p.parseComparison, "==", "!=")
}

func (p *parser) parseComparison() (Node, error) {
	return p.binaryLevel(p.parseAdditive, "<", "<=", ">", ">=")
}

func (p *parser) parseAdditive() (Node, error) {
	return p.binaryLevel(p.parseMultiplicative, "+", "-")
}

func (p *parser) parseMultiplicative() (Node, error) {
	return p.binaryLevel(p.parseUnary, "*", "/", "%")
}

// unary = ( "!" | "-" ) unary | primary
func (p *parser) parseUnary() (Node, error) {
	if op, ok := p.atOp("!", "-"); ok {
		p.consume()

		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &Unary{Op: op, X: inner}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) { //nolint:cyclop
	t := p.peek()

	switch t.kind {
	case tokString:
		p.consume()

		return &Literal{Value: t.val}, nil
	case tokNumber:
		p.consume()

		return parseNumber(t)
	case tokLParen:
		p.consume()

		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}

		return inner, nil
	case tokLBracket:
		p.consume()

		items, err := p.parseList(tokRBracket, "]")
		if err != nil {
			return nil, err
		}

		return &List{Items: items}, nil
	case tokWord:
		p.consume()

		switch t.val {
		case "true":
			return &Literal{Value: true}, nil
		case "false":
			return &Literal{Value: false}, nil
		case "null", "nil":
			return &Literal{Value: nil}, nil
		}

		if p.peek().kind == tokLParen {
			p.consume()

			args, err := p.parseList(tokRParen, ")")
			if err != nil {
				return nil, err
			}

			return &Call{Name: t.val, Args: args}, nil
		}

		path := splitPath(t.val)
		if slices.Contains(path.Segments, "") {
			return nil, fmt.Errorf("%w: invalid path %q at position %d", ErrSyntax, t.val, t.pos)
		}

		return path, nil
	default:
		if t.kind == tokEOF {
			return nil, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
		}

		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, t.val, t.pos)
	}
}

// parseList parses comma separated expressions up to the closing token.
func (p *parser) parseList(closing tokenKind, closingVal string) ([]Node, error) {
	var items []Node

	if p.peek().kind == closing {
		p.consume()

		return items, nil
	}

	for {
		item, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		items = append(items, item)

		if p.peek().kind == tokComma {
			p.consume()

			continue
		}

		if err := p.expect(closing, closingVal); err != nil {
			return nil, err
		}

		return items, nil
	}
}

func parseNumber(t token) (Node, error) {
	if strings.Contains(t.val, ".") {
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q", ErrSyntax, t.val)
		}

		return &Literal{Value: f}, nil
	}

	n, err := strconv.ParseInt(t.val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid integer %q", ErrSyntax, t.val)
	}

	return &Literal{Value: n}, nil
}

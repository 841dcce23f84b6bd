// internal/rules/parse.go
package rules

import (
	"fmt"
	"strconv"

	"github.com/solatis/cratedigger/internal/types"
)

/*
 * Recursive-descent parser for rule expressions.
 *
 * Grammar (tightest first):
 *
 *   expr      := or
 *   or        := and ( OR and )*
 *   and       := unary ( AND unary )*
 *   unary     := NOT unary | primary
 *   primary   := '(' expr ')' | predicate
 *   predicate := operand cmpop operand
 *              | field [NOT] IN '(' literal ( ',' literal )* ')'
 *              | field MATCHES ( regex | string )
 *              | field BETWEEN literal AND literal
 *   operand   := field | literal
 *   field     := IDENT | IDENT '[' string ']'
 *
 * NOT binds to the single predicate (or parenthesized group) that follows it;
 * "NOT a AND b" is (NOT a) AND b. AND and OR chains are left-associative.
 *
 * Tokenizer failures surface as *types.SyntaxError; everything the parser
 * rejects is a *types.ExpressionError. Field names and operator/type pairs are
 * validated by Compile so pre-built trees get the same checks.
 */

type parser struct {
	toks  []token
	pos   int
	depth int
}

// Parse turns rule text into an AST. Empty or whitespace-only text yields a nil
// node, which compiles to a rule that matches nothing.
func Parse(src string) (types.Node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if len(toks) == 1 {
		return nil, nil
	}

	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, types.Expressionf("unexpected %s at offset %d", describe(t), t.offset)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) atKeyword(kw string) bool {
	t := p.peek()
	return t.kind == tokKeyword && t.text == kw
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > types.MaxTreeDepth {
		return types.Expressionf("expression nesting exceeds maximum depth %d", types.MaxTreeDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseOr() (types.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &types.LogicalOr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (types.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &types.LogicalAnd{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (types.Node, error) {
	if !p.atKeyword("NOT") {
		return p.parsePrimary()
	}
	p.next()
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	inner, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &types.LogicalNot{Inner: inner}, nil
}

func (p *parser) parsePrimary() (types.Node, error) {
	if p.peek().kind != tokLParen {
		return p.parsePredicate()
	}
	open := p.next()
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.next(); t.kind != tokRParen {
		return nil, types.Expressionf("missing ')' for '(' at offset %d, got %s", open.offset, describe(t))
	}
	return n, nil
}

func (p *parser) parsePredicate() (types.Node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	switch {
	case t.kind == tokOp:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &types.Comparison{Op: types.CompareOp(t.text), Left: left, Right: right}, nil

	case t.kind == tokKeyword && t.text == "IN":
		return p.parseIn(left, false)

	case t.kind == tokKeyword && t.text == "NOT":
		p.next()
		if !p.atKeyword("IN") {
			return nil, types.Expressionf("expected IN after NOT at offset %d, got %s", t.offset, describe(p.peek()))
		}
		return p.parseIn(left, true)

	case t.kind == tokKeyword && t.text == "MATCHES":
		field, err := requireField(left, "MATCHES")
		if err != nil {
			return nil, err
		}
		p.next()
		pat := p.next()
		switch pat.kind {
		case tokRegex:
			return &types.RegexMatch{Field: field, Pattern: pat.text, Flags: pat.flags}, nil
		case tokString:
			return &types.RegexMatch{Field: field, Pattern: pat.text}, nil
		default:
			return nil, types.Expressionf("MATCHES requires a regex literal, got %s", describe(pat))
		}

	case t.kind == tokKeyword && t.text == "BETWEEN":
		field, err := requireField(left, "BETWEEN")
		if err != nil {
			return nil, err
		}
		p.next()
		low, err := p.parseLiteral("BETWEEN lower bound")
		if err != nil {
			return nil, err
		}
		if !p.atKeyword("AND") {
			return nil, types.Expressionf("BETWEEN requires AND and an upper bound, got %s", describe(p.peek()))
		}
		p.next()
		high, err := p.parseLiteral("BETWEEN upper bound")
		if err != nil {
			return nil, err
		}
		return &types.Between{Field: field, Low: low, High: high}, nil

	case t.kind == tokIdent:
		return nil, types.Expressionf("unknown operator %q at offset %d", t.text, t.offset)

	case t.kind == tokEOF:
		return nil, types.Expressionf("expected operator after %s", describeNode(left))

	default:
		return nil, types.Expressionf("expected operator after %s, got %s", describeNode(left), describe(t))
	}
}

func (p *parser) parseIn(left types.Node, negated bool) (types.Node, error) {
	field, err := requireField(left, "IN")
	if err != nil {
		return nil, err
	}
	p.next() // IN

	if t := p.next(); t.kind != tokLParen {
		return nil, types.Expressionf("IN requires a parenthesized list, got %s", describe(t))
	}
	var values []*types.Literal
	if p.peek().kind == tokRParen {
		return nil, types.Expressionf("IN list must not be empty")
	}
	for {
		lit, err := p.parseLiteral("IN list element")
		if err != nil {
			return nil, err
		}
		values = append(values, lit)
		t := p.next()
		if t.kind == tokRParen {
			break
		}
		if t.kind != tokComma {
			return nil, types.Expressionf("expected ',' or ')' in IN list, got %s", describe(t))
		}
	}
	return &types.InList{Field: field, Negated: negated, Values: values}, nil
}

func (p *parser) parseOperand() (types.Node, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		if p.peek().kind != tokLBracket {
			return &types.FieldReference{Name: t.text}, nil
		}
		p.next()
		key := p.next()
		if key.kind != tokString {
			return nil, types.Expressionf("%s[...] requires a quoted key, got %s", t.text, describe(key))
		}
		if closing := p.next(); closing.kind != tokRBracket {
			return nil, types.Expressionf("missing ']' after %s['%s'], got %s", t.text, key.text, describe(closing))
		}
		return &types.FieldReference{Name: t.text, Key: key.text}, nil
	case tokString:
		return types.StringLiteral(t.text), nil
	case tokNumber:
		return types.NumberLiteral(t.num), nil
	case tokEOF:
		return nil, types.Expressionf("unexpected end of expression")
	default:
		return nil, types.Expressionf("expected field or literal, got %s", describe(t))
	}
}

func (p *parser) parseLiteral(what string) (*types.Literal, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return types.StringLiteral(t.text), nil
	case tokNumber:
		return types.NumberLiteral(t.num), nil
	case tokEOF:
		return nil, types.Expressionf("missing %s", what)
	default:
		return nil, types.Expressionf("%s must be a literal, got %s", what, describe(t))
	}
}

func requireField(n types.Node, op string) (*types.FieldReference, error) {
	f, ok := n.(*types.FieldReference)
	if !ok {
		return nil, types.Expressionf("%s requires a field on its left, got %s", op, describeNode(n))
	}
	return f, nil
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokString:
		return "string " + strconv.Quote(t.text)
	case tokRegex:
		return "regex /" + t.text + "/" + t.flags
	case tokKeyword:
		return "keyword " + t.text
	default:
		return strconv.Quote(t.text)
	}
}

func describeNode(n types.Node) string {
	switch v := n.(type) {
	case *types.FieldReference:
		return "field " + v.String()
	case *types.Literal:
		if v.Kind == types.LiteralString {
			return "string " + strconv.Quote(v.Str)
		}
		return "number " + v.Text()
	default:
		return fmt.Sprintf("%T", n)
	}
}

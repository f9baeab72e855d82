package condition

import "fmt"

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() token {
	if p.done() {
		return token{}
	}
	return p.tokens[p.pos]
}

func (p *parser) accept(kinds ...tokenKind) (token, bool) {
	if p.done() {
		return token{}, false
	}
	for _, kind := range kinds {
		if p.tokens[p.pos].kind == kind {
			tok := p.tokens[p.pos]
			p.pos++
			return tok, true
		}
	}
	return token{}, false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(tokOr); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(tokAnd); !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if _, ok := p.accept(tokNot); ok {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if _, ok := p.accept(tokLParen); ok {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, ok := p.accept(tokRParen); !ok {
			return nil, fmt.Errorf("condition: missing ')'")
		}
		return inner, nil
	}

	ident, ok := p.accept(tokIdent)
	if !ok {
		if p.done() {
			return nil, fmt.Errorf("condition: unexpected end of expression")
		}
		return nil, fmt.Errorf("condition: expected field name at %d, got %q", p.peek().pos, p.peek().text)
	}

	op, ok := p.accept(tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte)
	if !ok {
		return truthyNode{name: ident.text}, nil
	}
	lit, ok := p.accept(tokString, tokNumber, tokBool, tokEmpty, tokIdent)
	if !ok {
		return nil, fmt.Errorf("condition: expected value after %q", op.text)
	}
	if lit.kind == tokIdent {
		// Bare words compare as strings.
		lit.kind = tokString
	}
	return compareNode{name: ident.text, op: op.kind, literal: lit}, nil
}

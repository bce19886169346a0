package formula

import (
	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// parser is a single-pass recursive-descent parser over the lexer's token
// stream. Precedence, loosest first: comparison, additive, multiplicative,
// unary, primary.
type parser struct {
	lex *lexer
	cur token
}

// parse parses a complete formula and requires the whole input to be
// consumed.
func parse(src string) (expr, *schema.TrailError) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	e, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, parseErrorAt(p.cur.off, "unexpected trailing input")
	}
	return e, nil
}

func (p *parser) advance() *schema.TrailError {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) parseComparison() (expr, *schema.TrailError) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch p.cur.kind {
	case tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte:
		op := p.cur.kind
		off := p.cur.off
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{off: off, op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (expr, *schema.TrailError) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokPlus || p.cur.kind == tokMinus {
		op := p.cur.kind
		off := p.cur.off
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{off: off, op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (expr, *schema.TrailError) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokStar || p.cur.kind == tokSlash {
		op := p.cur.kind
		off := p.cur.off
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{off: off, op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (expr, *schema.TrailError) {
	if p.cur.kind == tokMinus {
		off := p.cur.off
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{off: off, op: tokMinus, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (expr, *schema.TrailError) {
	tok := p.cur
	switch tok.kind {
	case tokNumber:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &numberLit{off: tok.off, val: tok.num}, nil

	case tokString:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &stringLit{off: tok.off, val: tok.text}, nil

	case tokReference:
		if err := p.advance(); err != nil {
			return nil, err
		}
		ref := &refExpr{off: tok.off, name: tok.text}
		// Postfix field path: [Node].output.field
		for p.cur.kind == tokDot {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.kind != tokIdent {
				return nil, parseErrorAt(p.cur.off, "expected field name after '.'")
			}
			ref.path = append(ref.path, p.cur.text)
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		return ref, nil

	case tokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == tokLParen {
			return p.parseCall(tok)
		}
		switch tok.text {
		case "TRUE":
			return &boolLit{off: tok.off, val: true}, nil
		case "FALSE":
			return &boolLit{off: tok.off, val: false}, nil
		}
		return nil, parseErrorAt(tok.off, "bare identifier %q; column references use [%s]", tok.text, tok.text)

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, parseErrorAt(p.cur.off, "expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil

	case tokEOF:
		return nil, parseErrorAt(tok.off, "unexpected end of formula")
	}

	return nil, parseErrorAt(tok.off, "unexpected token")
}

// parseCall parses the argument list of name(...). The opening paren is
// the current token.
func (p *parser) parseCall(name token) (expr, *schema.TrailError) {
	call := &callExpr{off: name.off, name: name.text}
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}

	if p.cur.kind == tokRParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return call, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)

		switch p.cur.kind {
		case tokComma:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case tokRParen:
			if err := p.advance(); err != nil {
				return nil, err
			}
			return call, nil
		default:
			return nil, parseErrorAt(p.cur.off, "expected ',' or ')' in argument list of %s", name.text)
		}
	}
}

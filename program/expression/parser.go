package expression

import (
	"fmt"
)

type parser struct {
	src    string
	tokens []Token
	i      int
}

// infix binding powers
func lbp(t TokenType) (int, bool) {
	switch t {
	case STAR, SLASH, PERCENT:
		return 70, true
	case PLUS, MINUS:
		return 60, true
	case LESS, LESS_EQ, GREATER, GREATER_EQ:
		return 50, true
	case EQ, NEQ:
		return 40, true
	case ASSIGN:
		return 10, true
	}
	return 0, false
}

const prefixBP = 80

// Parse parses a plain expression. An assignment is a syntax error here.
func Parse(src string) (Node, error) {
	n, err := parseAny(src)
	if err != nil {
		return nil, err
	}
	if a, ok := n.(*Assignment); ok {
		return nil, &SyntaxError{Source: src, Pos: 0, Message: fmt.Sprintf("unexpected assignment to %s", a.Target)}
	}
	return n, nil
}

// ParseAssignment parses "name = expr"
func ParseAssignment(src string) (*Assignment, error) {
	n, err := parseAny(src)
	if err != nil {
		return nil, err
	}
	a, ok := n.(*Assignment)
	if !ok {
		return nil, &SyntaxError{Source: src, Pos: 0, Message: "expected assignment of the form name = expression"}
	}
	return a, nil
}

func parseAny(src string) (Node, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, tokens: tokens}
	if p.peek().Type == EOF {
		return nil, p.errorf(p.peek(), "empty expression")
	}

	n, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != EOF {
		return nil, p.errorf(tok, "unexpected %s", tok.Type)
	}
	return n, nil
}

func (p *parser) peek() Token {
	return p.tokens[p.i]
}

func (p *parser) advance() Token {
	tok := p.tokens[p.i]
	if tok.Type != EOF {
		p.i++
	}
	return tok
}

func (p *parser) errorf(tok Token, format string, args ...any) error {
	return &SyntaxError{Source: p.src, Pos: tok.Pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) expr(minBP int) (Node, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}

	for {
		op := p.peek()
		bp, ok := lbp(op.Type)
		if !ok || bp <= minBP {
			return left, nil
		}
		p.advance()

		if op.Type == ASSIGN {
			id, isIdent := left.(*Ident)
			if !isIdent || minBP != 0 {
				return nil, p.errorf(op, "left side of = must be a variable name")
			}
			value, err := p.expr(bp - 1)
			if err != nil {
				return nil, err
			}
			left = &Assignment{Target: id.Name, Value: value}
			continue
		}

		right, err := p.expr(bp)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op.Type, Left: left, Right: right}
	}
}

func (p *parser) prefix() (Node, error) {
	tok := p.advance()
	switch tok.Type {
	case NUMBER:
		return &Number{Value: tok.Number}, nil
	case IDENT:
		return &Ident{Name: tok.Lexeme}, nil
	case MINUS, PLUS:
		operand, err := p.expr(prefixBP)
		if err != nil {
			return nil, err
		}
		if tok.Type == PLUS {
			return operand, nil
		}
		return &Unary{Op: MINUS, Operand: operand}, nil
	case LPAREN:
		inner, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, isAssign := inner.(*Assignment); isAssign {
			return nil, p.errorf(tok, "assignment inside parentheses")
		}
		if closing := p.advance(); closing.Type != RPAREN {
			return nil, p.errorf(closing, "expected ) but found %s", closing.Type)
		}
		return inner, nil
	case EOF:
		return nil, p.errorf(tok, "unexpected end of expression")
	default:
		return nil, p.errorf(tok, "unexpected %s", tok.Type)
	}
}

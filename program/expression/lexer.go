// Package expression parses and evaluates the small arithmetic and
// relational language used by Compare and SetValue blocks.
//
// The grammar covers numbers, identifiers, the binary operators
// + - * / % == < <= > >=, unary minus, parentheses and a single top-level
// assignment "name = expr". Relational operators evaluate to 1 or 0.
package expression

import (
	"fmt"
	"strconv"
)

// TokenType identifies a lexical token
type TokenType int

const (
	EOF TokenType = iota
	ILLEGAL

	NUMBER
	IDENT

	PLUS
	MINUS
	STAR
	SLASH
	PERCENT

	EQ
	NEQ
	LESS
	LESS_EQ
	GREATER
	GREATER_EQ

	ASSIGN
	LPAREN
	RPAREN
)

var tokenNames = map[TokenType]string{
	EOF:        "end of input",
	ILLEGAL:    "illegal",
	NUMBER:     "number",
	IDENT:      "identifier",
	PLUS:       "+",
	MINUS:      "-",
	STAR:       "*",
	SLASH:      "/",
	PERCENT:    "%",
	EQ:         "==",
	NEQ:        "!=",
	LESS:       "<",
	LESS_EQ:    "<=",
	GREATER:    ">",
	GREATER_EQ: ">=",
	ASSIGN:     "=",
	LPAREN:     "(",
	RPAREN:     ")",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is one lexeme with its byte offset in the source
type Token struct {
	Type   TokenType
	Lexeme string
	Number float64
	Pos    int
}

type lexer struct {
	src    string
	pos    int
	tokens []Token
}

// Lex splits src into tokens. The returned slice always ends with EOF.
func Lex(src string) ([]Token, error) {
	lx := &lexer{src: src}
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		lx.tokens = append(lx.tokens, tok)
		if tok.Type == EOF {
			return lx.tokens, nil
		}
	}
}

func (lx *lexer) next() (Token, error) {
	for lx.pos < len(lx.src) && isSpace(lx.src[lx.pos]) {
		lx.pos++
	}
	if lx.pos >= len(lx.src) {
		return Token{Type: EOF, Pos: lx.pos}, nil
	}

	start := lx.pos
	c := lx.src[lx.pos]

	switch {
	case isDigit(c) || (c == '.' && lx.pos+1 < len(lx.src) && isDigit(lx.src[lx.pos+1])):
		return lx.number()
	case isIdentStart(c):
		for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
			lx.pos++
		}
		return Token{Type: IDENT, Lexeme: lx.src[start:lx.pos], Pos: start}, nil
	}

	two := ""
	if lx.pos+1 < len(lx.src) {
		two = lx.src[lx.pos : lx.pos+2]
	}
	switch two {
	case "==":
		return lx.emit(EQ, 2), nil
	case "!=":
		return lx.emit(NEQ, 2), nil
	case "<=":
		return lx.emit(LESS_EQ, 2), nil
	case ">=":
		return lx.emit(GREATER_EQ, 2), nil
	}

	switch c {
	case '+':
		return lx.emit(PLUS, 1), nil
	case '-':
		return lx.emit(MINUS, 1), nil
	case '*':
		return lx.emit(STAR, 1), nil
	case '/':
		return lx.emit(SLASH, 1), nil
	case '%':
		return lx.emit(PERCENT, 1), nil
	case '<':
		return lx.emit(LESS, 1), nil
	case '>':
		return lx.emit(GREATER, 1), nil
	case '=':
		return lx.emit(ASSIGN, 1), nil
	case '(':
		return lx.emit(LPAREN, 1), nil
	case ')':
		return lx.emit(RPAREN, 1), nil
	}

	return Token{}, &SyntaxError{Source: lx.src, Pos: start, Message: fmt.Sprintf("unexpected character %q", c)}
}

func (lx *lexer) emit(tt TokenType, width int) Token {
	tok := Token{Type: tt, Lexeme: lx.src[lx.pos : lx.pos+width], Pos: lx.pos}
	lx.pos += width
	return tok
}

func (lx *lexer) number() (Token, error) {
	start := lx.pos
	seenDot := false
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == '.' && !seenDot {
			seenDot = true
		} else if !isDigit(c) {
			break
		}
		lx.pos++
	}

	text := lx.src[start:lx.pos]
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, &SyntaxError{Source: lx.src, Pos: start, Message: fmt.Sprintf("bad number %q", text)}
	}
	return Token{Type: NUMBER, Lexeme: text, Number: v, Pos: start}, nil
}

func isSpace(c byte) bool      { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }

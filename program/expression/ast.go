package expression

import (
	"strconv"
	"strings"
)

// Node is a parsed expression tree node
type Node interface {
	String() string
}

// Number is a numeric literal
type Number struct {
	Value float64
}

// Ident is a variable reference resolved against the input map
type Ident struct {
	Name string
}

// Unary is a prefix operator application
type Unary struct {
	Op      TokenType
	Operand Node
}

// Binary is an infix operator application
type Binary struct {
	Op          TokenType
	Left, Right Node
}

// Assignment is the top-level "name = expr" form
type Assignment struct {
	Target string
	Value  Node
}

func (n *Number) String() string { return strconv.FormatFloat(n.Value, 'g', -1, 64) }
func (n *Ident) String() string  { return n.Name }
func (n *Unary) String() string  { return "(" + n.Op.String() + n.Operand.String() + ")" }

func (n *Binary) String() string {
	return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
}

func (n *Assignment) String() string { return n.Target + " = " + n.Value.String() }

// Variables returns the identifiers referenced by n in order of first
// appearance. An assignment target is not included.
func Variables(n Node) []string {
	var names []string
	seen := make(map[string]bool)

	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *Ident:
			if !seen[v.Name] {
				seen[v.Name] = true
				names = append(names, v.Name)
			}
		case *Unary:
			walk(v.Operand)
		case *Binary:
			walk(v.Left)
			walk(v.Right)
		case *Assignment:
			walk(v.Value)
		}
	}
	walk(n)
	return names
}

// Normalize reformats src through the parser so that equivalent spellings
// compare equal. Unparseable text is returned trimmed.
func Normalize(src string) string {
	n, err := parseAny(src)
	if err != nil {
		return strings.TrimSpace(src)
	}
	return n.String()
}

package expression

import (
	"fmt"
	"math"

	cerrors "github.com/c360/blockflow/errors"
)

// BinaryFunc implements one infix operator
type BinaryFunc func(left, right float64) (float64, error)

var binaryOps = map[TokenType]BinaryFunc{
	PLUS:       func(l, r float64) (float64, error) { return l + r, nil },
	MINUS:      func(l, r float64) (float64, error) { return l - r, nil },
	STAR:       func(l, r float64) (float64, error) { return l * r, nil },
	SLASH:      opDivide,
	PERCENT:    opModulo,
	EQ:         relational(func(l, r float64) bool { return l == r }),
	NEQ:        relational(func(l, r float64) bool { return l != r }),
	LESS:       relational(func(l, r float64) bool { return l < r }),
	LESS_EQ:    relational(func(l, r float64) bool { return l <= r }),
	GREATER:    relational(func(l, r float64) bool { return l > r }),
	GREATER_EQ: relational(func(l, r float64) bool { return l >= r }),
}

func opDivide(l, r float64) (float64, error) {
	if r == 0 {
		return 0, ErrDivisionByZero
	}
	return l / r, nil
}

func opModulo(l, r float64) (float64, error) {
	if r == 0 {
		return 0, ErrDivisionByZero
	}
	return math.Mod(l, r), nil
}

func relational(cmp func(l, r float64) bool) BinaryFunc {
	return func(l, r float64) (float64, error) {
		if cmp(l, r) {
			return 1, nil
		}
		return 0, nil
	}
}

// Eval evaluates n against vars. An Assignment evaluates to its right side.
func Eval(n Node, vars map[string]float64) (float64, error) {
	switch v := n.(type) {
	case *Number:
		return v.Value, nil

	case *Ident:
		x, ok := vars[v.Name]
		if !ok {
			return 0, &EvaluationError{
				Variable: v.Name,
				Message:  "variable has no value",
				Err:      cerrors.ErrMissingValue,
			}
		}
		return x, nil

	case *Unary:
		x, err := Eval(v.Operand, vars)
		if err != nil {
			return 0, err
		}
		if v.Op != MINUS {
			return 0, unreachable("unary operator " + v.Op.String())
		}
		return -x, nil

	case *Binary:
		fn, ok := binaryOps[v.Op]
		if !ok {
			return 0, unreachable("binary operator " + v.Op.String())
		}
		l, err := Eval(v.Left, vars)
		if err != nil {
			return 0, err
		}
		r, err := Eval(v.Right, vars)
		if err != nil {
			return 0, err
		}
		out, err := fn(l, r)
		if err != nil {
			return 0, &EvaluationError{Operator: v.Op.String(), Message: "operator failed", Err: err}
		}
		return out, nil

	case *Assignment:
		return Eval(v.Value, vars)

	case nil:
		return 0, unreachable("nil node")
	}

	return 0, unreachable(fmt.Sprintf("node type %T", n))
}

func unreachable(what string) error {
	return cerrors.WrapFatal(fmt.Errorf("%s: %w", what, cerrors.ErrUnreachable), "expression", "Eval", "dispatch")
}

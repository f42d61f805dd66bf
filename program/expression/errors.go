package expression

import (
	"fmt"

	cerrors "github.com/c360/blockflow/errors"
)

// ErrDivisionByZero is returned for "/" and "%" with a zero right operand
var ErrDivisionByZero = fmt.Errorf("division by zero: %w", cerrors.ErrInvalidData)

// SyntaxError reports malformed expression text
type SyntaxError struct {
	Source  string
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d in %q: %s", e.Pos, e.Source, e.Message)
}

// Unwrap exposes ErrSyntax so callers can match with errors.Is
func (e *SyntaxError) Unwrap() error {
	return cerrors.ErrSyntax
}

// EvaluationError represents an error while evaluating a parsed tree
type EvaluationError struct {
	Variable string
	Operator string
	Message  string
	Err      error
}

func (e *EvaluationError) Error() string {
	subject := e.Operator
	if e.Variable != "" {
		subject = e.Variable
	}
	if e.Err != nil {
		return fmt.Sprintf("evaluation error at '%s': %s: %v", subject, e.Message, e.Err)
	}
	return fmt.Sprintf("evaluation error at '%s': %s", subject, e.Message)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

package program

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueType tags the dynamic type held by a Value
type ValueType int

const (
	// ValueAbsent is the zero Value: no result yet
	ValueAbsent ValueType = iota
	ValueNumber
	ValueText
	ValueBool
)

func (t ValueType) String() string {
	switch t {
	case ValueNumber:
		return "number"
	case ValueText:
		return "text"
	case ValueBool:
		return "bool"
	default:
		return "absent"
	}
}

// Value is the untyped runtime value carried by a port
type Value struct {
	typ  ValueType
	num  float64
	text string
	b    bool
}

// Number returns a numeric Value
func Number(f float64) Value { return Value{typ: ValueNumber, num: f} }

// Text returns a text Value
func Text(s string) Value { return Value{typ: ValueText, text: s} }

// Bool returns a boolean Value
func Bool(b bool) Value { return Value{typ: ValueBool, b: b} }

// Absent returns the empty Value
func Absent() Value { return Value{} }

func (v Value) Type() ValueType { return v.typ }
func (v Value) IsAbsent() bool  { return v.typ == ValueAbsent }

// Float returns the numeric payload. Only number values convert.
func (v Value) Float() (float64, bool) {
	if v.typ != ValueNumber {
		return 0, false
	}
	return v.num, true
}

// Truthy reports whether v equals 1. Number 1 and boolean true are truthy;
// every other value, text and absent included, is not.
func (v Value) Truthy() bool {
	switch v.typ {
	case ValueNumber:
		return v.num == 1
	case ValueBool:
		return v.b
	}
	return false
}

// String renders v the way a Speak block would say it
func (v Value) String() string {
	switch v.typ {
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case ValueText:
		return v.text
	case ValueBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Equal compares type and payload
func (v Value) Equal(o Value) bool {
	return v == o
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case ValueNumber:
		return json.Marshal(v.num)
	case ValueText:
		return json.Marshal(v.text)
	case ValueBool:
		return json.Marshal(v.b)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Absent()
	case float64:
		*v = Number(x)
	case string:
		*v = Text(x)
	case bool:
		*v = Bool(x)
	default:
		return fmt.Errorf("unsupported value %s", string(data))
	}
	return nil
}

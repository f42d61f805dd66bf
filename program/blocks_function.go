package program

import (
	"encoding/json"
	"fmt"
	"slices"

	cerrors "github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/program/expression"
)

const (
	dataPortTop     = 10
	dataPortSpacing = 15
)

type funcBase struct {
	blockBase
}

// readInputs collects every DataIn value by port name. Nothing is written
// when an input is absent or not a number.
func (f *funcBase) readInputs() (map[string]float64, error) {
	vars := make(map[string]float64)
	for _, p := range f.ports {
		if p.kind != DataIn {
			continue
		}
		v, ok := p.value.Float()
		if !ok {
			return nil, cerrors.WrapInvalid(fmt.Errorf("input %q: %w", p.name, cerrors.ErrMissingValue),
				f.kind.String(), "Compute", "read inputs")
		}
		vars[p.name] = v
	}
	return vars, nil
}

// RequiredInputs returns every DataIn port
func (f *funcBase) RequiredInputs() []*Port {
	var in []*Port
	for _, p := range f.ports {
		if p.kind == DataIn {
			in = append(in, p)
		}
	}
	return in
}

// inputNames returns the DataIn port names in declaration order
func (f *funcBase) inputNames() []string {
	var names []string
	for _, p := range f.ports {
		if p.kind == DataIn {
			names = append(names, p.name)
		}
	}
	return names
}

// rebindInputs replaces the DataIn ports with one per name. Ports whose
// name survives keep their identity and connections; dropped ports are
// disconnected.
func (f *funcBase) rebindInputs(names []string) {
	var outputs, inputs []*Port
	old := make(map[string]*Port)
	for _, p := range f.ports {
		if p.kind == DataIn {
			old[p.name] = p
		} else {
			outputs = append(outputs, p)
		}
	}

	for _, name := range names {
		if p, ok := old[name]; ok {
			inputs = append(inputs, p)
			delete(old, name)
			continue
		}
		inputs = append(inputs, newPort(f.self, DataIn, name, Vec2{}))
	}
	for _, p := range old {
		DisconnectAll(p)
	}

	f.ports = append(outputs, inputs...)
	f.layoutDataPorts()
}

// layoutDataPorts stacks inputs on the left edge and outputs on the right
func (f *funcBase) layoutDataPorts() {
	var in, out int
	for _, p := range f.ports {
		switch p.kind {
		case DataIn:
			p.offset = Vec2{X: 0, Y: dataPortTop + float64(in)*dataPortSpacing}
			in++
		case DataOut:
			p.offset = Vec2{X: BlockWidth, Y: dataPortTop + float64(out)*dataPortSpacing}
			out++
		}
	}
	rows := max(in, out, 1)
	f.size = Vec2{X: BlockWidth, Y: max(FunctionHeight, 2*dataPortTop+float64(rows-1)*dataPortSpacing)}
}

// NumberInput publishes a number set by an input widget
type NumberInput struct {
	funcBase
	out   *Port
	min   float64
	max   float64
	value float64
}

type numberInputFields struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Value float64 `json:"value"`
}

func NewNumberInput() *NumberInput {
	n := &NumberInput{min: 0, max: 100, value: 50}
	n.init(n, KindNumberInput, Vec2{X: BlockWidth, Y: FunctionHeight})
	n.out = n.addPort(DataOut, "value", Vec2{})
	n.layoutDataPorts()
	return n
}

func (n *NumberInput) OutputPort() *Port { return n.out }
func (n *NumberInput) Value() float64    { return n.value }

// SetRange sets the bounds and clamps the current value into them
func (n *NumberInput) SetRange(lo, hi float64) {
	if lo > hi {
		lo, hi = hi, lo
	}
	n.min, n.max = lo, hi
	n.value = min(max(n.value, lo), hi)
}

func (n *NumberInput) Compute() error {
	SetValue(n.out, Number(n.value))
	return nil
}

// UpdatePort is the widget entry point: store v and propagate it
func (n *NumberInput) UpdatePort(v float64) error {
	n.value = min(max(v, n.min), n.max)
	return Calc(n)
}

func (n *NumberInput) Clone() Block {
	c := NewNumberInput()
	n.copyInto(&c.blockBase)
	c.min, c.max, c.value = n.min, n.max, n.value
	return c
}

func (n *NumberInput) MarshalFields() (json.RawMessage, error) {
	return marshalFields(numberInputFields{Min: n.min, Max: n.max, Value: n.value})
}

func (n *NumberInput) UnmarshalFields(data json.RawMessage) error {
	f := numberInputFields{Min: n.min, Max: n.max, Value: n.value}
	if err := unmarshalFields(data, &f); err != nil {
		return err
	}
	n.min, n.max, n.value = f.Min, f.Max, f.Value
	return nil
}

// TextInput publishes a text set by an input widget
type TextInput struct {
	funcBase
	out  *Port
	text string
}

type textInputFields struct {
	Text string `json:"text"`
}

func NewTextInput() *TextInput {
	t := &TextInput{}
	t.init(t, KindTextInput, Vec2{X: BlockWidth, Y: FunctionHeight})
	t.out = t.addPort(DataOut, "text", Vec2{})
	t.layoutDataPorts()
	return t
}

func (t *TextInput) OutputPort() *Port { return t.out }
func (t *TextInput) Text() string      { return t.text }

func (t *TextInput) Compute() error {
	SetValue(t.out, Text(t.text))
	return nil
}

// UpdatePort is the widget entry point: store s and propagate it
func (t *TextInput) UpdatePort(s string) error {
	t.text = s
	return Calc(t)
}

func (t *TextInput) Clone() Block {
	c := NewTextInput()
	t.copyInto(&c.blockBase)
	c.text = t.text
	return c
}

func (t *TextInput) MarshalFields() (json.RawMessage, error) {
	return marshalFields(textInputFields{Text: t.text})
}

func (t *TextInput) UnmarshalFields(data json.RawMessage) error {
	f := textInputFields{Text: t.text}
	if err := unmarshalFields(data, &f); err != nil {
		return err
	}
	t.text = f.Text
	return nil
}

// Sensor publishes readings pushed by a device poller
type Sensor struct {
	funcBase
	out     *Port
	name    string
	reading Value
}

type sensorFields struct {
	Name string `json:"name"`
}

func NewSensor() *Sensor {
	s := &Sensor{name: "sensor"}
	s.init(s, KindSensor, Vec2{X: BlockWidth, Y: FunctionHeight})
	s.out = s.addPort(DataOut, "value", Vec2{})
	s.layoutDataPorts()
	return s
}

func (s *Sensor) OutputPort() *Port { return s.out }
func (s *Sensor) Name() string      { return s.name }
func (s *Sensor) SetName(n string)  { s.name = n }
func (s *Sensor) Reading() Value    { return s.reading }

func (s *Sensor) Compute() error {
	SetValue(s.out, s.reading)
	return nil
}

// UpdateReading is the external trigger: store v and propagate it
func (s *Sensor) UpdateReading(v float64) error {
	s.reading = Number(v)
	return Calc(s)
}

func (s *Sensor) Clone() Block {
	c := NewSensor()
	s.copyInto(&c.blockBase)
	c.name = s.name
	return c
}

func (s *Sensor) MarshalFields() (json.RawMessage, error) {
	return marshalFields(sensorFields{Name: s.name})
}

func (s *Sensor) UnmarshalFields(data json.RawMessage) error {
	f := sensorFields{Name: s.name}
	if err := unmarshalFields(data, &f); err != nil {
		return err
	}
	s.name = f.Name
	return nil
}

type exprFields struct {
	Expression string   `json:"expression"`
	Inputs     []string `json:"inputs"`
	Output     string   `json:"output,omitempty"`
}

// Compare evaluates a relational expression and publishes 1 or 0 on
// "result". Malformed text or a failed evaluation publishes absent.
type Compare struct {
	funcBase
	result  *Port
	source  string
	node    expression.Node
	lastErr error
}

func NewCompare() *Compare {
	c := &Compare{}
	c.init(c, KindCompare, Vec2{X: BlockWidth, Y: FunctionHeight})
	c.result = c.addPort(DataOut, "result", Vec2{})
	_ = c.SetExpression("x < 10")
	return c
}

func (c *Compare) ResultPort() *Port  { return c.result }
func (c *Compare) Expression() string { return c.source }

// Err returns the error behind the last absent result, if any
func (c *Compare) Err() error { return c.lastErr }

// ExpressionError returns the syntax error of the current text, if any
func (c *Compare) ExpressionError() error {
	if c.node != nil {
		return nil
	}
	_, err := expression.Parse(c.source)
	return err
}

// SetExpression stores src and, when it parses, rebinds one input per
// referenced variable. On a syntax error the text is kept, the ports stay
// as they were and the error is returned.
func (c *Compare) SetExpression(src string) error {
	c.source = src
	node, err := expression.Parse(src)
	if err != nil {
		c.node = nil
		return err
	}
	c.node = node
	c.rebindInputs(expression.Variables(node))
	return nil
}

func (c *Compare) Compute() error {
	if c.node == nil {
		_, err := expression.Parse(c.source)
		return c.degrade(err)
	}

	vars, err := c.readInputs()
	if err != nil {
		return err
	}

	v, err := expression.Eval(c.node, vars)
	if err != nil {
		if cerrors.IsFatal(err) {
			return err
		}
		return c.degrade(err)
	}

	c.lastErr = nil
	SetValue(c.result, Number(v))
	return nil
}

func (c *Compare) degrade(err error) error {
	c.lastErr = err
	c.log().Warn("compare produced no result",
		"block_id", c.id,
		"expression", c.source,
		"error", err)
	SetValue(c.result, Absent())
	return nil
}

func (c *Compare) restore(f exprFields) {
	c.source = f.Expression
	c.node, _ = expression.Parse(f.Expression)
	c.rebindInputs(f.Inputs)
}

func (c *Compare) Clone() Block {
	n := NewCompare()
	c.copyInto(&n.blockBase)
	n.restore(exprFields{Expression: c.source, Inputs: c.inputNames()})
	return n
}

func (c *Compare) MarshalFields() (json.RawMessage, error) {
	return marshalFields(exprFields{Expression: c.source, Inputs: nonNil(c.inputNames())})
}

// UnmarshalFields restores the expression. Without an "inputs" list the
// inputs are the variables of the expression.
func (c *Compare) UnmarshalFields(data json.RawMessage) error {
	f := exprFields{Expression: c.source}
	if err := unmarshalFields(data, &f); err != nil {
		return err
	}
	if f.Inputs == nil {
		f.Inputs = c.inputNames()
		if node, err := expression.Parse(f.Expression); err == nil {
			f.Inputs = expression.Variables(node)
		}
	}
	c.restore(f)
	return nil
}

// SetValueBlock evaluates "lhs = rhs" and publishes the result on the output
// port named lhs. Unlike Compare, a malformed expression fails the call.
type SetValueBlock struct {
	funcBase
	out    *Port
	source string
	assign *expression.Assignment
}

func NewSetValueBlock() *SetValueBlock {
	s := &SetValueBlock{}
	s.init(s, KindSetValue, Vec2{X: BlockWidth, Y: FunctionHeight})
	s.out = s.addPort(DataOut, "y", Vec2{})
	_ = s.SetExpression("y = x + 1")
	return s
}

func (s *SetValueBlock) OutputPort() *Port  { return s.out }
func (s *SetValueBlock) Expression() string { return s.source }

// SetExpression stores src and, when it parses, renames the output to the
// assignment target and rebinds the inputs.
func (s *SetValueBlock) SetExpression(src string) error {
	s.source = src
	a, err := expression.ParseAssignment(src)
	if err != nil {
		s.assign = nil
		return err
	}
	s.assign = a
	s.out.name = a.Target
	s.rebindInputs(expression.Variables(a))
	return nil
}

// ExpressionError returns the syntax error of the current text, if any
func (s *SetValueBlock) ExpressionError() error {
	if s.assign != nil {
		return nil
	}
	_, err := expression.ParseAssignment(s.source)
	return err
}

func (s *SetValueBlock) Compute() error {
	if s.assign == nil {
		_, err := expression.ParseAssignment(s.source)
		s.log().Error("set value expression rejected", "block_id", s.id, "expression", s.source, "error", err)
		return cerrors.WrapInvalid(err, "SetValue", "Compute", "parse expression")
	}

	vars, err := s.readInputs()
	if err != nil {
		return err
	}

	v, err := expression.Eval(s.assign, vars)
	if err != nil {
		if cerrors.IsFatal(err) {
			return err
		}
		return cerrors.WrapInvalid(err, "SetValue", "Compute", "evaluate")
	}

	SetValue(s.out, Number(v))
	return nil
}

func (s *SetValueBlock) restore(f exprFields) {
	s.source = f.Expression
	s.assign, _ = expression.ParseAssignment(f.Expression)
	if f.Output != "" {
		s.out.name = f.Output
	}
	s.rebindInputs(f.Inputs)
}

func (s *SetValueBlock) Clone() Block {
	n := NewSetValueBlock()
	s.copyInto(&n.blockBase)
	n.restore(exprFields{Expression: s.source, Inputs: s.inputNames(), Output: s.out.name})
	return n
}

func (s *SetValueBlock) MarshalFields() (json.RawMessage, error) {
	return marshalFields(exprFields{Expression: s.source, Inputs: nonNil(s.inputNames()), Output: s.out.name})
}

// UnmarshalFields restores the expression. Missing "inputs" and "output"
// come from the parsed assignment.
func (s *SetValueBlock) UnmarshalFields(data json.RawMessage) error {
	f := exprFields{Expression: s.source}
	if err := unmarshalFields(data, &f); err != nil {
		return err
	}
	a, err := expression.ParseAssignment(f.Expression)
	if f.Inputs == nil {
		f.Inputs = s.inputNames()
		if err == nil {
			f.Inputs = expression.Variables(a)
		}
	}
	if f.Output == "" && err == nil {
		f.Output = a.Target
	}
	s.restore(f)
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clip(s)
}

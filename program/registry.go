package program

import (
	"fmt"

	cerrors "github.com/c360/blockflow/errors"
)

// Kind is the closed set of block variants
type Kind int

const (
	KindStart Kind = iota
	KindSpeak
	KindSleep
	KindServo
	KindBranch
	KindLoop
	KindNumberInput
	KindTextInput
	KindCompare
	KindSetValue
	KindSensor
)

var kindNames = [...]string{
	KindStart:       "Start",
	KindSpeak:       "Speak",
	KindSleep:       "Sleep",
	KindServo:       "Servo",
	KindBranch:      "Branch",
	KindLoop:        "Loop",
	KindNumberInput: "NumberInput",
	KindTextInput:   "TextInput",
	KindCompare:     "Compare",
	KindSetValue:    "SetValue",
	KindSensor:      "Sensor",
}

// legacyKindNames are type names written by the browser editor
var legacyKindNames = map[string]Kind{
	"StartBlock":      KindStart,
	"ActionBlock":     KindSpeak,
	"IfBlock":         KindBranch,
	"InfiniteLoop":    KindLoop,
	"ConditionBlock":  KindCompare,
	"InputRangeBlock": KindNumberInput,
	"ServoMotorBlock": KindServo,
	"SetValueBlock":   KindSetValue,
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind resolves a serialized type name
func ParseKind(typeName string) (Kind, error) {
	for k, name := range kindNames {
		if name == typeName {
			return Kind(k), nil
		}
	}
	if k, ok := legacyKindNames[typeName]; ok {
		return k, nil
	}
	return 0, cerrors.WrapInvalid(fmt.Errorf("%q: %w", typeName, cerrors.ErrUnknownBlockType), "program", "ParseKind", "type name lookup")
}

// Constructor builds a fresh block with its ports
type Constructor func() Block

var constructors = map[Kind]Constructor{
	KindStart:       func() Block { return NewStart() },
	KindSpeak:       func() Block { return NewSpeak() },
	KindSleep:       func() Block { return NewSleep() },
	KindServo:       func() Block { return NewServo() },
	KindBranch:      func() Block { return NewBranch() },
	KindLoop:        func() Block { return NewLoop() },
	KindNumberInput: func() Block { return NewNumberInput() },
	KindTextInput:   func() Block { return NewTextInput() },
	KindCompare:     func() Block { return NewCompare() },
	KindSetValue:    func() Block { return NewSetValueBlock() },
	KindSensor:      func() Block { return NewSensor() },
}

// Kinds returns every registered kind in declaration order
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := range kindNames {
		kinds = append(kinds, Kind(k))
	}
	return kinds
}

// NewBlock constructs a block of the given kind
func NewBlock(kind Kind) (Block, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, cerrors.WrapInvalid(fmt.Errorf("%s: %w", kind, cerrors.ErrUnknownBlockType), "program", "NewBlock", "constructor lookup")
	}
	return ctor(), nil
}

// NewTemplate constructs a palette block. Templates are never run and are
// copied into a program with Program.Instantiate.
func NewTemplate(kind Kind) (Block, error) {
	b, err := NewBlock(kind)
	if err != nil {
		return nil, err
	}
	b.core().template = true
	return b, nil
}

// Palette returns one template of every kind, stacked vertically
func Palette() []Block {
	var (
		out []Block
		y   float64
	)
	for _, k := range Kinds() {
		b, _ := NewTemplate(k)
		b.SetPosition(Vec2{X: 0, Y: y})
		y += b.Size().Y + paletteGap
		out = append(out, b)
	}
	return out
}

const paletteGap = 10

package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/blockflow/program"
)

// ChainOf links blocks bottom to top in order and adds them to p.
func ChainOf(t testing.TB, p *program.Program, blocks ...program.ActionBlock) {
	t.Helper()

	for i, b := range blocks {
		require.NoError(t, p.Add(b))
		if i > 0 {
			require.NoError(t, program.Connect(blocks[i-1].BottomPort(), b.TopPort()))
		}
	}
}

// Speaks returns one Speak block per text.
func Speaks(texts ...string) []program.ActionBlock {
	out := make([]program.ActionBlock, 0, len(texts))
	for _, text := range texts {
		s := program.NewSpeak()
		s.SetText(text)
		out = append(out, s)
	}
	return out
}

// LinearProgram returns Start followed by one Speak block per text.
func LinearProgram(t testing.TB, texts ...string) *program.Program {
	t.Helper()

	p := program.NewProgram()
	ChainOf(t, p, append([]program.ActionBlock{program.NewStart()}, Speaks(texts...)...)...)
	return p
}

// BranchFixture is Start -> Branch{inner} -> after with the condition fed
// by a NumberInput.
type BranchFixture struct {
	Program   *program.Program
	Start     *program.Start
	Branch    *program.Branch
	Condition *program.NumberInput
}

// BranchProgram builds a BranchFixture whose inner chain speaks inner and
// whose successor speaks after. The condition starts at value.
func BranchProgram(t testing.TB, value float64, inner, after string) *BranchFixture {
	t.Helper()

	f := &BranchFixture{
		Program:   program.NewProgram(),
		Start:     program.NewStart(),
		Branch:    program.NewBranch(),
		Condition: program.NewNumberInput(),
	}
	ChainOf(t, f.Program, append([]program.ActionBlock{f.Start, f.Branch}, Speaks(after)...)...)

	innerChain := Speaks(inner)
	ChainOf(t, f.Program, innerChain...)
	require.NoError(t, program.Connect(f.Branch.InnerPort(), innerChain[0].TopPort()))

	require.NoError(t, f.Program.Add(f.Condition))
	require.NoError(t, program.Connect(f.Condition.OutputPort(), f.Branch.ConditionPort()))
	require.NoError(t, f.Condition.UpdatePort(value))

	f.Program.Relayout()
	return f
}

// LoopProgram returns Start -> Loop with the texts as the loop body.
func LoopProgram(t testing.TB, texts ...string) (*program.Program, *program.Loop) {
	t.Helper()

	p := program.NewProgram()
	loop := program.NewLoop()
	ChainOf(t, p, program.NewStart(), loop)

	body := Speaks(texts...)
	ChainOf(t, p, body...)
	if len(body) > 0 {
		require.NoError(t, program.Connect(loop.InnerPort(), body[0].TopPort()))
	}
	p.Relayout()
	return p, loop
}

// SampleDocument is a stored program: Start -> Speak("hello") with the
// speech text fed by a TextInput.
const SampleDocument = `{
  "version": 1,
  "blocks": [
    {
      "id": "start-1",
      "typeName": "Start",
      "x": 10,
      "y": 10,
      "ports": [
        {"id": "start-1.top", "name": "top", "kind": "top", "destinationIds": []},
        {"id": "start-1.bottom", "name": "bottom", "kind": "bottom", "destinationIds": ["speak-1.top"]}
      ]
    },
    {
      "id": "speak-1",
      "typeName": "Speak",
      "x": 10,
      "y": 60,
      "ports": [
        {"id": "speak-1.top", "name": "top", "kind": "top", "destinationIds": []},
        {"id": "speak-1.bottom", "name": "bottom", "kind": "bottom", "destinationIds": []},
        {"id": "speak-1.text", "name": "text", "kind": "inputPort", "destinationIds": []}
      ],
      "fields": {"text": "hello"}
    },
    {
      "id": "text-1",
      "typeName": "TextInput",
      "x": 200,
      "y": 60,
      "ports": [
        {"id": "text-1.text", "name": "text", "kind": "outputPort", "destinationIds": ["speak-1.text"]}
      ],
      "fields": {"text": "from input"}
    }
  ]
}`

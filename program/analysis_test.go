package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_Healthy(t *testing.T) {
	p := NewProgram()
	start, speak, text := NewStart(), NewSpeak(), NewTextInput()
	for _, b := range []Block{start, speak, text} {
		require.NoError(t, p.Add(b))
	}
	chain(t, start, speak)
	require.NoError(t, Connect(text.OutputPort(), speak.Ports()[2]))

	a := Analyze(p)

	assert.Equal(t, "healthy", a.ValidationStatus)
	assert.Equal(t, [][]string{{start.ID(), speak.ID()}}, a.TopChains)
	assert.Empty(t, a.UnreachableActions)
	assert.Empty(t, a.UnconnectedInputs)
	assert.Empty(t, a.DisconnectedBlocks)
	assert.Empty(t, a.ExpressionErrors)
}

func TestAnalyze_Warnings(t *testing.T) {
	p := NewProgram()
	start, branch := NewStart(), NewBranch()
	orphan := NewSpeak()
	lone := NewNumberInput()
	bad := NewCompare()
	require.Error(t, bad.SetExpression("x <"))

	for _, b := range []Block{start, branch, orphan, lone, bad} {
		require.NoError(t, p.Add(b))
	}
	chain(t, start, branch)

	// templates are never reported
	tmpl, err := NewTemplate(KindSpeak)
	require.NoError(t, err)
	require.NoError(t, p.Add(tmpl))

	a := Analyze(p)

	assert.Equal(t, "warnings", a.ValidationStatus)
	assert.Equal(t, [][]string{{start.ID(), branch.ID()}, {orphan.ID()}}, a.TopChains)
	assert.Equal(t, []string{orphan.ID()}, a.UnreachableActions)
	assert.Equal(t, []UnconnectedInput{
		{BlockID: branch.ID(), Kind: "Branch", Port: "condition"},
		{BlockID: bad.ID(), Kind: "Compare", Port: "x"},
	}, a.UnconnectedInputs)

	require.Len(t, a.DisconnectedBlocks, 2)
	assert.Equal(t, lone.ID(), a.DisconnectedBlocks[0].BlockID)
	assert.Equal(t, bad.ID(), a.DisconnectedBlocks[1].BlockID)

	require.Len(t, a.ExpressionErrors, 1)
	assert.Equal(t, "x <", a.ExpressionErrors[0].Expression)
	assert.NotEmpty(t, a.ExpressionErrors[0].Error)
}

func TestAnalyze_Empty(t *testing.T) {
	a := Analyze(NewProgram())
	assert.Equal(t, "healthy", a.ValidationStatus)
	assert.NotNil(t, a.TopChains)
	assert.NotNil(t, a.UnreachableActions)
}

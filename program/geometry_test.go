package program

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(blocks ...Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.ID()
	}
	return out
}

func collect(seq func(func(ActionBlock) bool)) []string {
	var out []string
	for b := range seq {
		out = append(out, b.ID())
	}
	return out
}

func chain(t *testing.T, blocks ...ActionBlock) {
	t.Helper()
	for i := 1; i < len(blocks); i++ {
		require.NoError(t, Connect(blocks[i-1].BottomPort(), blocks[i].TopPort()))
	}
}

func TestLayout_NestHeights(t *testing.T) {
	branch := NewBranch()
	Layout(branch)
	assert.Equal(t, 85.0, branch.Size().Y)
	assert.Equal(t, 85.0, branch.BottomPort().Offset().Y)

	loop := NewLoop()
	Layout(loop)
	assert.Equal(t, 75.0, loop.Size().Y)

	require.NoError(t, Connect(branch.InnerPort(), NewSpeak().TopPort()))
	Layout(branch)
	assert.Equal(t, 135.0, branch.Size().Y)
	assert.Equal(t, branch.Size().Y, branch.BottomPort().Offset().Y)

	outer := NewBranch()
	require.NoError(t, Connect(outer.InnerPort(), loop.TopPort()))
	require.NoError(t, Connect(loop.InnerPort(), NewSpeak().TopPort()))
	Layout(outer)
	assert.Equal(t, 125.0, loop.Size().Y)
	assert.Equal(t, 210.0, outer.Size().Y)

	// removing the inner chain shrinks the block back
	DisconnectAll(outer.InnerPort())
	Layout(outer)
	assert.Equal(t, 85.0, outer.Size().Y)
}

func TestChainHeight(t *testing.T) {
	start, speak := NewStart(), NewSpeak()
	chain(t, start, speak)

	assert.Equal(t, 100.0, ChainHeight(start))
	assert.Equal(t, 50.0, ChainHeight(speak))
	assert.Equal(t, ids(start, speak), collect(Chain(start)))
	assert.Same(t, speak, Next(start))
	assert.Nil(t, Next(speak))
	assert.Nil(t, Inner(start))
}

func TestAdjustPosition(t *testing.T) {
	start, branch, after := NewStart(), NewBranch(), NewSpeak()
	s1 := NewSpeak()
	chain(t, start, branch, after)
	require.NoError(t, Connect(branch.InnerPort(), s1.TopPort()))
	Layout(branch)

	AdjustPosition(start, Vec2{X: 10, Y: 20})

	assert.Equal(t, Vec2{X: 10, Y: 70}, branch.Position())
	assert.Equal(t, branch.InnerPort().Position(), s1.TopPort().Position())
	assert.Equal(t, Vec2{X: 45, Y: 105}, s1.Position())
	assert.Equal(t, branch.BottomPort().Position(), after.TopPort().Position())
	assert.Equal(t, Vec2{X: 10, Y: 205}, after.Position())
}

func TestDependants_Order(t *testing.T) {
	start, branch, after := NewStart(), NewBranch(), NewSpeak()
	s1, s2 := NewSpeak(), NewSleep()
	chain(t, start, branch, after)
	chain(t, s1, s2)
	require.NoError(t, Connect(branch.InnerPort(), s1.TopPort()))

	assert.Equal(t, ids(branch, s1, s2, after), collect(Dependants(start)))
	assert.Equal(t, ids(s1, s2, after), collect(Dependants(branch)))
	assert.Empty(t, collect(Dependants(after)))

	// early exit stops the walk
	var first []string
	for b := range Dependants(start) {
		first = append(first, b.ID())
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, ids(branch, s1), first)
}

func TestProgram_Snap(t *testing.T) {
	p := NewProgram()
	start, speak := NewStart(), NewSpeak()
	require.NoError(t, p.Add(start))
	require.NoError(t, p.Add(speak))
	speak.SetPosition(Vec2{X: 5, Y: 52})

	linked, err := p.Snap(speak, 10)
	require.NoError(t, err)
	assert.True(t, linked)
	assert.True(t, start.BottomPort().ConnectedTo(speak.TopPort()))
	assert.Equal(t, Vec2{X: 0, Y: 50}, speak.Position())

	// a small nudge keeps the link
	speak.SetPosition(Vec2{X: 2, Y: 52})
	linked, err = p.Snap(speak, 10)
	require.NoError(t, err)
	assert.False(t, linked)
	assert.True(t, start.BottomPort().ConnectedTo(speak.TopPort()))

	speak.SetPosition(Vec2{X: 300, Y: 300})
	linked, err = p.Snap(speak, 10)
	require.NoError(t, err)
	assert.False(t, linked)
	assert.False(t, speak.TopPort().IsConnected())
	assert.Equal(t, ids(start, speak), ids(blocksOf(p.TopActions())...))
}

func TestProgram_SnapIntoNest(t *testing.T) {
	p := NewProgram()
	start, loop, speak := NewStart(), NewLoop(), NewSpeak()
	for _, b := range []Block{start, loop, speak} {
		require.NoError(t, p.Add(b))
	}
	chain(t, start, loop)
	p.Relayout()

	// inner port sits at (70, 85) once the loop hangs under start
	speak.SetPosition(Vec2{X: 36, Y: 86})
	linked, err := p.Snap(speak, 5)
	require.NoError(t, err)
	require.True(t, linked)

	assert.True(t, loop.InnerPort().ConnectedTo(speak.TopPort()))
	assert.Equal(t, Vec2{X: 35, Y: 85}, speak.Position())
	assert.Equal(t, 125.0, loop.Size().Y)
	assert.Equal(t, []ActionBlock{start}, p.TopActions())
}

func TestProgram_CanConnectAt(t *testing.T) {
	p := NewProgram()
	start, speak, outside := NewStart(), NewSpeak(), NewSpeak()
	require.NoError(t, p.Add(start))
	require.NoError(t, p.Add(speak))
	speak.SetPosition(Vec2{X: 0, Y: 50})
	outside.SetPosition(Vec2{X: 0, Y: 50})

	assert.True(t, p.CanConnectAt(start.BottomPort(), speak.TopPort(), 1))
	assert.False(t, p.CanConnectAt(start.BottomPort(), outside.TopPort(), 1), "port outside the program")
	assert.False(t, p.CanConnectAt(start.BottomPort(), speak.BottomPort(), 100), "kind mismatch")

	speak.SetPosition(Vec2{X: 0, Y: 80})
	assert.False(t, p.CanConnectAt(start.BottomPort(), speak.TopPort(), 1))
	assert.False(t, start.BottomPort().IsConnected())
}

func TestProgram_Instantiate(t *testing.T) {
	palette := Palette()
	require.Len(t, palette, len(Kinds()))
	for i, b := range palette {
		assert.True(t, b.Template())
		assert.Equal(t, Kinds()[i], b.Kind())
	}

	p := NewProgram()
	tmpl := palette[KindSpeak]
	b, err := p.Instantiate(tmpl, Vec2{X: 40, Y: 60})
	require.NoError(t, err)

	assert.False(t, b.Template())
	assert.NotEqual(t, tmpl.ID(), b.ID())
	assert.Equal(t, Vec2{X: 40, Y: 60}, b.Position())
	assert.Equal(t, 1, p.Len())
	assert.Empty(t, p.TopActions()[0].TopPort().Sources())
}

func TestClone(t *testing.T) {
	c := NewCompare()
	require.NoError(t, c.SetExpression("a > b"))
	n := NewNumberInput()
	require.NoError(t, Connect(n.OutputPort(), input(t, c, "a")))
	c.SetPosition(Vec2{X: 7, Y: 8})

	clone, ok := c.Clone().(*Compare)
	require.True(t, ok)

	assert.NotEqual(t, c.ID(), clone.ID())
	assert.Equal(t, "a > b", clone.Expression())
	assert.Equal(t, []string{"a", "b"}, clone.inputNames())
	assert.Equal(t, c.Position(), clone.Position())
	for _, port := range clone.Ports() {
		assert.False(t, port.IsConnected())
		assert.Same(t, clone, port.Block())
		assert.False(t, slices.Contains(c.Ports(), port))
	}
}

func blocksOf(actions []ActionBlock) []Block {
	out := make([]Block, len(actions))
	for i, a := range actions {
		out[i] = a
	}
	return out
}

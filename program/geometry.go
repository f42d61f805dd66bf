package program

import (
	"iter"
	"slices"
)

// Block metrics in editor units
const (
	BlockWidth     float64 = 150
	ActionHeight   float64 = 50
	FunctionHeight float64 = 50
	// NotchX is the horizontal offset of the top and bottom notches
	NotchX float64 = 35

	NestHeaderHeight float64 = 35
	NestSlotHeight   float64 = 30
	NestFooterHeight float64 = 10
	NotchRadius      float64 = 10
)

// follow returns the action block linked from a ControlOut port
func follow(p *Port) ActionBlock {
	d := p.next()
	if d == nil {
		return nil
	}
	a, _ := d.block.(ActionBlock)
	return a
}

// Next returns the block after b in its chain, or nil
func Next(b ActionBlock) ActionBlock {
	return follow(b.BottomPort())
}

// Inner returns the first block of a nest block's inner chain. It is nil
// for plain action blocks and for an empty nest.
func Inner(b ActionBlock) ActionBlock {
	nb, ok := b.(NestBlock)
	if !ok {
		return nil
	}
	return follow(nb.InnerPort())
}

// Chain yields top and every block after it
func Chain(top ActionBlock) iter.Seq[ActionBlock] {
	return func(yield func(ActionBlock) bool) {
		for b := top; b != nil; b = Next(b) {
			if !yield(b) {
				return
			}
		}
	}
}

// ChainHeight is the vertical extent of the chain starting at top
func ChainHeight(top ActionBlock) float64 {
	var h float64
	for b := range Chain(top) {
		h += b.BottomPort().Offset().Y - b.TopPort().Offset().Y
	}
	return h
}

// Dependants yields every action block that moves with b: its successors
// and, for nest blocks, the inner chains, depth first with inner chains
// before successors. b itself is not yielded. Each call walks afresh.
func Dependants(b ActionBlock) iter.Seq[ActionBlock] {
	return func(yield func(ActionBlock) bool) {
		stack := successors(b, nil)
		for len(stack) > 0 {
			a := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(a) {
				return
			}
			stack = successors(a, stack)
		}
	}
}

// successors pushes the blocks linked from b's dependent ports so that the
// first dependent port is popped first
func successors(b ActionBlock, stack []ActionBlock) []ActionBlock {
	for _, p := range slices.Backward(b.DependentPorts()) {
		if next := follow(p); next != nil {
			stack = append(stack, next)
		}
	}
	return stack
}

// AdjustPosition moves b to pos and drags every dependent chain along so
// that each linked top port sits exactly on its source port.
func AdjustPosition(b ActionBlock, pos Vec2) {
	b.SetPosition(pos)
	for _, p := range b.DependentPorts() {
		d := p.next()
		if d == nil {
			continue
		}
		if next, ok := d.block.(ActionBlock); ok {
			AdjustPosition(next, p.Position().Sub(d.offset))
		}
	}
}

// Layout recomputes the height of a nest block from its inner chain,
// laying out nested blocks first, and moves its bottom port to match.
// Other blocks have a fixed layout.
func Layout(b Block) {
	nb, ok := b.(NestBlock)
	if !ok {
		return
	}
	inner := Inner(nb)
	var innerHeight float64
	if inner != nil {
		for a := range Chain(inner) {
			Layout(a)
		}
		innerHeight = ChainHeight(inner)
	}

	n := nb.nest()
	h := nestHeight(n.footer, innerHeight)
	n.size.Y = h
	n.bottom.offset.Y = h
}

// Relayout lays out every chain and re-seats each chain on its root
func (p *Program) Relayout() {
	for _, top := range p.TopActions() {
		for b := range Chain(top) {
			Layout(b)
		}
		AdjustPosition(top, top.Position())
	}
}

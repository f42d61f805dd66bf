package program

import (
	"context"
)

type nestBase struct {
	actionBase
	inner *Port
	// extra height below the inner slot, Branch reserves room for its notch
	footer float64
}

func (n *nestBase) initNest(self NestBlock, kind Kind, innerName string, footer float64) {
	n.footer = footer
	n.initAction(self, kind, nestHeight(footer, 0))
	n.inner = n.addPort(ControlOut, innerName, Vec2{X: 2 * NotchX, Y: NestHeaderHeight})
}

func (n *nestBase) InnerPort() *Port        { return n.inner }
func (n *nestBase) DependentPorts() []*Port { return []*Port{n.inner, n.bottom} }
func (n *nestBase) nest() *nestBase         { return n }

func nestHeight(footer, innerHeight float64) float64 {
	return NestHeaderHeight + NestSlotHeight + NestFooterHeight + footer + innerHeight
}

// Branch runs its inner chain once when the condition input is truthy
type Branch struct {
	nestBase
	noFields
	condition *Port
}

func NewBranch() *Branch {
	b := &Branch{}
	b.initNest(b, KindBranch, "true", NotchRadius)
	b.condition = b.addPort(DataIn, "condition", Vec2{X: BlockWidth, Y: NestHeaderHeight / 2})
	return b
}

func (b *Branch) ConditionPort() *Port    { return b.condition }
func (b *Branch) RequiredInputs() []*Port { return []*Port{b.condition} }

// IsTrue reports whether the condition currently holds
func (b *Branch) IsTrue() bool {
	return b.condition.Value().Truthy()
}

func (b *Branch) Run(ctx context.Context, exec Executor) error {
	inner := Inner(b)
	if inner == nil || !b.IsTrue() {
		return nil
	}
	return exec.RunChain(ctx, inner)
}

func (b *Branch) Clone() Block {
	c := NewBranch()
	b.copyInto(&c.blockBase)
	return c
}

// Loop repeats its inner chain until the run is stopped
type Loop struct {
	nestBase
	noFields
}

func NewLoop() *Loop {
	l := &Loop{}
	l.initNest(l, KindLoop, "loop", 0)
	return l
}

// Run checks the stop token only between iterations. A stop requested while
// the inner chain runs takes effect once that iteration finishes.
func (l *Loop) Run(ctx context.Context, exec Executor) error {
	inner := Inner(l)
	if inner == nil {
		return nil
	}
	for {
		if err := exec.RunChain(ctx, inner); err != nil {
			return err
		}
		if exec.Stopped() {
			return nil
		}
		if err := exec.Sleep(ctx, exec.LoopDelay()); err != nil {
			return err
		}
	}
}

func (l *Loop) Clone() Block {
	c := NewLoop()
	l.copyInto(&c.blockBase)
	return c
}

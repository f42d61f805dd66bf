package program

import (
	"errors"
	"slices"

	cerrors "github.com/c360/blockflow/errors"
)

// SetValue writes v to p and to every destination of p, notifying each
// destination's block through ValueChanged.
func SetValue(p *Port, v Value) {
	p.value = v
	for _, d := range p.destinations {
		d.value = v
		d.block.ValueChanged(d)
	}
}

// Calc computes b once and then propagates to every downstream function
// block. When b itself fails nothing is propagated.
func Calc(b FunctionBlock) error {
	if err := b.Compute(); err != nil {
		return err
	}
	return PropagateCalc(b)
}

// Downstream returns the function blocks reachable from b's outputs in
// topological order, b excluded. Ties follow port declaration order.
func Downstream(b FunctionBlock) []FunctionBlock {
	visited := map[Block]bool{}
	var post []FunctionBlock

	var visit func(FunctionBlock)
	visit = func(fb FunctionBlock) {
		visited[fb] = true
		// walk backwards so that reversing the postorder puts siblings
		// back in declaration order
		for _, p := range slices.Backward(fb.Ports()) {
			if p.kind != DataOut {
				continue
			}
			for _, d := range slices.Backward(p.destinations) {
				next, ok := d.block.(FunctionBlock)
				if !ok || visited[next] {
					continue
				}
				visit(next)
			}
		}
		post = append(post, fb)
	}
	visit(b)

	// reverse postorder, minus the root which finished last
	order := make([]FunctionBlock, 0, len(post)-1)
	for i := len(post) - 2; i >= 0; i-- {
		order = append(order, post[i])
	}
	return order
}

// PropagateCalc computes every function block downstream of b exactly
// once. Blocks still waiting for an input are skipped; other failures are
// collected and the pass continues.
func PropagateCalc(b FunctionBlock) error {
	var errs []error
	for _, fb := range Downstream(b) {
		err := fb.Compute()
		if err == nil || errors.Is(err, cerrors.ErrMissingValue) {
			continue
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Recalculate pushes the value of every source function block, one without
// data inputs, through the graph. Loaded programs carry no port values until
// this runs.
func (p *Program) Recalculate() error {
	var errs []error
	for _, b := range p.blocks {
		fb, ok := b.(FunctionBlock)
		if !ok || fb.Template() || slices.ContainsFunc(fb.Ports(), func(port *Port) bool { return port.kind == DataIn }) {
			continue
		}
		if err := Calc(fb); err != nil && !errors.Is(err, cerrors.ErrMissingValue) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Package program holds the block graph: ports, block variants, the
// connection rules, dataflow propagation, chain geometry and the document
// format used to persist a program.
//
// Connect accepts only the complementary pairs ControlOut to ControlIn and
// DataOut to DataIn, and never links two ports of the same block
// (ErrSelfConnection). A ControlOut port has at most one destination and a
// ControlIn port at most one source; a second link fails with
// ErrPortOccupied until the first is disconnected. A control link that
// would close a cycle fails with ErrControlCycle. Data outputs fan out
// freely, and connecting an already linked pair is a no-op. When a data
// input loses its last source its value becomes absent.
//
// The graph is not safe for concurrent mutation. Editors and the
// interpreter share one goroutine; see package interpreter.
package program

import (
	"fmt"
	"log/slog"
	"slices"

	cerrors "github.com/c360/blockflow/errors"
)

// Program is an ordered set of blocks indexed by id
type Program struct {
	blocks []Block
	byID   map[string]Block
	logger *slog.Logger
}

// Option configures a Program
type Option func(*Program)

// WithLogger sets the logger handed to blocks added to the program
func WithLogger(l *slog.Logger) Option {
	return func(p *Program) {
		p.logger = l
	}
}

// NewProgram returns an empty program
func NewProgram(opts ...Option) *Program {
	p := &Program{byID: make(map[string]Block)}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Add appends b. Adding the same id twice fails with ErrDuplicateBlock.
func (p *Program) Add(b Block) error {
	if _, ok := p.byID[b.ID()]; ok {
		return cerrors.WrapInvalid(fmt.Errorf("%s: %w", b.ID(), cerrors.ErrDuplicateBlock), "Program", "Add", "index block")
	}
	b.core().logger = p.logger.With("block_kind", b.Kind().String())
	p.blocks = append(p.blocks, b)
	p.byID[b.ID()] = b
	return nil
}

// Remove disconnects every port of the block and drops it
func (p *Program) Remove(id string) error {
	b, ok := p.byID[id]
	if !ok {
		return cerrors.WrapInvalid(fmt.Errorf("block %s: %w", id, cerrors.ErrKeyNotFound), "Program", "Remove", "lookup block")
	}
	for _, port := range b.Ports() {
		DisconnectAll(port)
	}
	delete(p.byID, id)
	p.blocks = slices.DeleteFunc(p.blocks, func(x Block) bool { return x == b })
	return nil
}

// Clear disconnects and removes every block
func (p *Program) Clear() {
	for _, b := range p.blocks {
		for _, port := range b.Ports() {
			DisconnectAll(port)
		}
	}
	p.blocks = nil
	p.byID = make(map[string]Block)
}

func (p *Program) Len() int { return len(p.blocks) }

// Block looks a block up by id
func (p *Program) Block(id string) (Block, bool) {
	b, ok := p.byID[id]
	return b, ok
}

// Blocks returns the blocks in insertion order
func (p *Program) Blocks() []Block {
	return slices.Clone(p.blocks)
}

// Port finds a port of any block in the program
func (p *Program) Port(id string) (*Port, bool) {
	for _, b := range p.blocks {
		for _, port := range b.Ports() {
			if port.id == id {
				return port, true
			}
		}
	}
	return nil, false
}

// Contains reports whether port belongs to a block of this program
func (p *Program) Contains(port *Port) bool {
	if port == nil || port.block == nil {
		return false
	}
	b, ok := p.byID[port.block.ID()]
	return ok && b == port.block
}

// Actions returns the non-template action blocks in program order
func (p *Program) Actions() []ActionBlock {
	var out []ActionBlock
	for _, b := range p.blocks {
		if a, ok := b.(ActionBlock); ok && !a.Template() {
			out = append(out, a)
		}
	}
	return out
}

// TopActions returns the chain roots: non-template action blocks whose
// top port has no source, in program order.
func (p *Program) TopActions() []ActionBlock {
	var out []ActionBlock
	for _, a := range p.Actions() {
		if len(a.TopPort().sources) == 0 {
			out = append(out, a)
		}
	}
	return out
}

// Instantiate clones a palette block into the program at pos
func (p *Program) Instantiate(template Block, pos Vec2) (Block, error) {
	b := template.Clone()
	b.core().template = false
	b.SetPosition(pos)
	if err := p.Add(b); err != nil {
		return nil, err
	}
	return b, nil
}

// CanConnectAt combines the graph rule with proximity: both ports belong to
// this program, Connect would succeed and they are within tolerance.
func (p *Program) CanConnectAt(a, b *Port, tolerance float64) bool {
	if !p.Contains(a) || !p.Contains(b) {
		return false
	}
	return CanConnect(a, b) == nil && Near(a, b, tolerance)
}

// Snap applies drop behaviour to a moved action block. A top port that
// drifted beyond tolerance from its source is disconnected; a free top
// port then attaches to the nearest free ControlOut within tolerance and
// the block's chain is moved onto it. Snap reports whether a new link was
// made.
func (p *Program) Snap(b ActionBlock, tolerance float64) (bool, error) {
	top := b.TopPort()
	if len(top.sources) > 0 {
		src := top.sources[0]
		if Near(top, src, tolerance) {
			return false, nil
		}
		Disconnect(src, top)
		p.Relayout()
	}

	var (
		best     *Port
		bestDist float64
	)
	for _, a := range p.Actions() {
		if a == b {
			continue
		}
		for _, out := range a.DependentPorts() {
			if len(out.destinations) > 0 || CanConnect(out, top) != nil {
				continue
			}
			d := out.Position().Dist(top.Position())
			if d <= tolerance && (best == nil || d < bestDist) {
				best, bestDist = out, d
			}
		}
	}
	if best == nil {
		return false, nil
	}

	if err := Connect(best, top); err != nil {
		return false, err
	}
	AdjustPosition(b, best.Position().Sub(top.offset))
	p.Relayout()
	return true, nil
}

package program

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/blockflow/device"
)

// Block is a node in the program graph. The set of implementations is
// closed: every variant is constructed through the Kind registry.
type Block interface {
	ID() string
	Kind() Kind
	// Ports returns the owned ports in declaration order. The slice must not be modified.
	Ports() []*Port
	Position() Vec2
	// SetPosition moves only this block. Use AdjustPosition to move a chain.
	SetPosition(Vec2)
	Size() Vec2
	Template() bool
	// ValueChanged is called after SetValue wrote to one of the block's input ports
	ValueChanged(p *Port)
	// Clone returns an editable copy with fresh ids and no connections
	Clone() Block
	MarshalFields() (json.RawMessage, error)
	UnmarshalFields(json.RawMessage) error

	core() *blockBase
}

// FunctionBlock computes DataOut values from DataIn values on demand
type FunctionBlock interface {
	Block
	// Compute evaluates the block once and writes its outputs.
	// It does not propagate to downstream blocks.
	Compute() error
}

// ActionBlock is a link in a control chain
type ActionBlock interface {
	Block
	TopPort() *Port
	BottomPort() *Port
	// DependentPorts are the ControlOut ports whose chains move with this block
	DependentPorts() []*Port
	Run(ctx context.Context, exec Executor) error
}

// NestBlock owns an inner chain in addition to its successor
type NestBlock interface {
	ActionBlock
	InnerPort() *Port
	nest() *nestBase
}

// Executor is the interpreter surface that action blocks run against
type Executor interface {
	RunChain(ctx context.Context, top ActionBlock) error
	Stopped() bool
	Sleep(ctx context.Context, d time.Duration) error
	Speaker() device.Speaker
	Commander() device.Commander
	Logger() *slog.Logger
	LoopDelay() time.Duration
}

type blockBase struct {
	self     Block
	id       string
	kind     Kind
	ports    []*Port
	pos      Vec2
	size     Vec2
	template bool
	logger   *slog.Logger
}

func (b *blockBase) init(self Block, kind Kind, size Vec2) {
	b.self = self
	b.id = uuid.NewString()
	b.kind = kind
	b.size = size
}

func (b *blockBase) ID() string           { return b.id }
func (b *blockBase) Kind() Kind           { return b.kind }
func (b *blockBase) Ports() []*Port       { return b.ports }
func (b *blockBase) Position() Vec2       { return b.pos }
func (b *blockBase) SetPosition(pos Vec2) { b.pos = pos }
func (b *blockBase) Size() Vec2           { return b.size }
func (b *blockBase) Template() bool       { return b.template }
func (b *blockBase) ValueChanged(*Port)   {}
func (b *blockBase) core() *blockBase     { return b }

func (b *blockBase) addPort(kind PortKind, name string, offset Vec2) *Port {
	p := newPort(b.self, kind, name, offset)
	b.ports = append(b.ports, p)
	return p
}

// portNamed returns the first port of kind with the given name
func (b *blockBase) portNamed(kind PortKind, name string) *Port {
	for _, p := range b.ports {
		if p.kind == kind && p.name == name {
			return p
		}
	}
	return nil
}

func (b *blockBase) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

// copyInto gives dst the position of b. Ids, ports and connections are
// never copied, and size comes from the new block's own layout.
func (b *blockBase) copyInto(dst *blockBase) {
	dst.pos = b.pos
	dst.logger = b.logger
}

func marshalFields(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func unmarshalFields(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

// noFields is embedded by blocks without type-specific state
type noFields struct{}

func (noFields) MarshalFields() (json.RawMessage, error) { return nil, nil }
func (noFields) UnmarshalFields(json.RawMessage) error   { return nil }

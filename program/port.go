package program

import (
	"slices"

	"github.com/google/uuid"
)

// PortKind is the connection role of a port
type PortKind int

const (
	ControlOut PortKind = iota
	ControlIn
	DataIn
	DataOut
)

var portKindNames = [...]string{
	ControlOut: "bottom",
	ControlIn:  "top",
	DataIn:     "inputPort",
	DataOut:    "outputPort",
}

func (k PortKind) String() string {
	if k < 0 || int(k) >= len(portKindNames) {
		return "unknown"
	}
	return portKindNames[k]
}

// ParsePortKind maps the serialized name back to a PortKind
func ParsePortKind(s string) (PortKind, bool) {
	for k, name := range portKindNames {
		if name == s {
			return PortKind(k), true
		}
	}
	return 0, false
}

// IsSource reports whether k is output-like. Sources own the destination list.
func (k PortKind) IsSource() bool {
	return k == ControlOut || k == DataOut
}

// IsControl reports whether k takes part in control chains
func (k PortKind) IsControl() bool {
	return k == ControlOut || k == ControlIn
}

// Complement returns the only kind k may connect to
func (k PortKind) Complement() PortKind {
	switch k {
	case ControlOut:
		return ControlIn
	case ControlIn:
		return ControlOut
	case DataIn:
		return DataOut
	default:
		return DataIn
	}
}

// Port is a typed attachment point owned by exactly one block.
// Its connection lists are only changed through Connect and Disconnect.
type Port struct {
	id           string
	name         string
	kind         PortKind
	value        Value
	offset       Vec2
	destinations []*Port
	sources      []*Port
	block        Block
}

func newPort(owner Block, kind PortKind, name string, offset Vec2) *Port {
	return &Port{
		id:     uuid.NewString(),
		name:   name,
		kind:   kind,
		offset: offset,
		block:  owner,
	}
}

func (p *Port) ID() string       { return p.id }
func (p *Port) Name() string     { return p.name }
func (p *Port) Kind() PortKind   { return p.kind }
func (p *Port) Value() Value     { return p.value }
func (p *Port) Block() Block     { return p.block }
func (p *Port) Offset() Vec2     { return p.offset }
func (p *Port) SetOffset(o Vec2) { p.offset = o }

// Position is the absolute position: owner anchor plus offset
func (p *Port) Position() Vec2 {
	return p.block.Position().Add(p.offset)
}

// Destinations returns a copy of the outgoing connections
func (p *Port) Destinations() []*Port { return slices.Clone(p.destinations) }

// Sources returns a copy of the incoming connections
func (p *Port) Sources() []*Port { return slices.Clone(p.sources) }

// IsConnected reports whether p has any connection in either direction
func (p *Port) IsConnected() bool {
	return len(p.destinations) > 0 || len(p.sources) > 0
}

// ConnectedTo reports whether p and o are connected in either direction
func (p *Port) ConnectedTo(o *Port) bool {
	return slices.Contains(p.destinations, o) || slices.Contains(p.sources, o)
}

// next follows the single exercised control successor
func (p *Port) next() *Port {
	if len(p.destinations) == 0 {
		return nil
	}
	return p.destinations[0]
}

// cloneFor returns a fresh port with the same kind, name and offset
func (p *Port) cloneFor(owner Block) *Port {
	return newPort(owner, p.kind, p.name, p.offset)
}

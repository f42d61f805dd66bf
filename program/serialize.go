package program

import (
	"encoding/json"
	"fmt"

	cerrors "github.com/c360/blockflow/errors"
)

// SnapshotVersion is the document version written by Serialize
const SnapshotVersion = 1

// Snapshot is the persisted form of a program
type Snapshot struct {
	Version int             `json:"version"`
	Blocks  []BlockSnapshot `json:"blocks"`
}

// BlockSnapshot is one block of a Snapshot. Fields holds the kind-specific state.
type BlockSnapshot struct {
	ID       string          `json:"id"`
	TypeName string          `json:"typeName"`
	X        float64         `json:"x"`
	Y        float64         `json:"y"`
	Template bool            `json:"template,omitempty"`
	Ports    []PortSnapshot  `json:"ports"`
	Fields   json.RawMessage `json:"fields,omitempty"`
}

// PortSnapshot records a port and its outgoing links
type PortSnapshot struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	Kind           string   `json:"kind"`
	DestinationIDs []string `json:"destinationIds"`
}

// Serialize captures the program as a Snapshot
func Serialize(p *Program) (*Snapshot, error) {
	snap := &Snapshot{Version: SnapshotVersion, Blocks: make([]BlockSnapshot, 0, len(p.blocks))}

	for _, b := range p.blocks {
		fields, err := b.MarshalFields()
		if err != nil {
			return nil, cerrors.Wrap(err, "program", "Serialize", fmt.Sprintf("marshal fields of %s", b.ID()))
		}

		bs := BlockSnapshot{
			ID:       b.ID(),
			TypeName: b.Kind().String(),
			X:        b.Position().X,
			Y:        b.Position().Y,
			Template: b.Template(),
			Ports:    make([]PortSnapshot, 0, len(b.Ports())),
			Fields:   fields,
		}
		for _, port := range b.Ports() {
			ps := PortSnapshot{
				ID:             port.id,
				Name:           port.name,
				Kind:           port.kind.String(),
				DestinationIDs: make([]string, 0, len(port.destinations)),
			}
			for _, d := range port.destinations {
				ps.DestinationIDs = append(ps.DestinationIDs, d.id)
			}
			bs.Ports = append(bs.Ports, ps)
		}
		snap.Blocks = append(snap.Blocks, bs)
	}
	return snap, nil
}

func invalidSnapshot(format string, args ...any) error {
	return cerrors.WrapInvalid(fmt.Errorf(format+": %w", append(args, cerrors.ErrInvalidData)...),
		"program", "Deserialize", "rebuild graph")
}

// Deserialize rebuilds a program: blocks come from the kind registry with
// their ids restored, then every recorded link is replayed through Connect.
func Deserialize(snap *Snapshot, opts ...Option) (*Program, error) {
	if snap.Version > SnapshotVersion {
		return nil, invalidSnapshot("document version %d is newer than %d", snap.Version, SnapshotVersion)
	}

	p := NewProgram(opts...)
	ports := make(map[string]*Port)

	for _, bs := range snap.Blocks {
		kind, err := ParseKind(bs.TypeName)
		if err != nil {
			return nil, err
		}
		b, err := NewBlock(kind)
		if err != nil {
			return nil, err
		}
		if err := b.UnmarshalFields(bs.Fields); err != nil {
			return nil, invalidSnapshot("block %s fields: %v", bs.ID, err)
		}

		if bs.ID == "" {
			return nil, invalidSnapshot("%s block without id", bs.TypeName)
		}
		core := b.core()
		core.id = bs.ID
		core.template = bs.Template
		core.pos = Vec2{X: bs.X, Y: bs.Y}

		if len(bs.Ports) != len(core.ports) {
			return nil, invalidSnapshot("block %s has %d ports, %s expects %d", bs.ID, len(bs.Ports), kind, len(core.ports))
		}
		for i, ps := range bs.Ports {
			port := core.ports[i]
			if ps.Kind != "" && ps.Kind != port.kind.String() {
				return nil, invalidSnapshot("block %s port %d is %s, expected %s", bs.ID, i, ps.Kind, port.kind)
			}
			if ps.ID != "" {
				if _, dup := ports[ps.ID]; dup {
					return nil, invalidSnapshot("duplicate port id %s", ps.ID)
				}
				port.id = ps.ID
			}
			ports[port.id] = port
		}

		if err := p.Add(b); err != nil {
			return nil, err
		}
	}

	for _, bs := range snap.Blocks {
		b, _ := p.Block(bs.ID)
		for i, ps := range bs.Ports {
			src := b.Ports()[i]
			for _, dstID := range ps.DestinationIDs {
				dst, ok := ports[dstID]
				if !ok {
					return nil, cerrors.WrapInvalid(fmt.Errorf("destination %s: %w", dstID, cerrors.ErrUnknownPort),
						"program", "Deserialize", "replay links")
				}
				if err := Connect(src, dst); err != nil {
					return nil, err
				}
			}
		}
	}

	p.Relayout()
	return p, nil
}

// Marshal encodes the program as an indented JSON document
func Marshal(p *Program) ([]byte, error) {
	snap, err := Serialize(p)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(snap, "", "  ")
}

// Unmarshal validates data against the document schema and rebuilds the program
func Unmarshal(data []byte, opts ...Option) (*Program, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, cerrors.WrapInvalid(fmt.Errorf("%v: %w", err, cerrors.ErrParsingFailed), "program", "Unmarshal", "decode document")
	}
	return Deserialize(&snap, opts...)
}

package program

import (
	"fmt"
	"slices"

	cerrors "github.com/c360/blockflow/errors"
)

// orient returns (source, destination) for a complementary pair
func orient(a, b *Port) (*Port, *Port, error) {
	if a == nil || b == nil {
		return nil, nil, cerrors.WrapInvalid(cerrors.ErrUnknownPort, "Port", "Connect", "resolve ports")
	}
	src, dst := a, b
	if !src.kind.IsSource() {
		src, dst = b, a
	}
	if !src.kind.IsSource() || dst.kind != src.kind.Complement() {
		return nil, nil, cerrors.WrapInvalid(
			fmt.Errorf("%s and %s: %w", a.kind, b.kind, cerrors.ErrPortKindMismatch),
			"Port", "Connect", "validate kind pair")
	}
	return src, dst, nil
}

// CanConnect reports, without mutating anything, why Connect(a, b) would
// fail. A nil result means Connect would succeed.
func CanConnect(a, b *Port) error {
	_, _, err := checkConnect(a, b)
	return err
}

func checkConnect(a, b *Port) (src, dst *Port, err error) {
	src, dst, err = orient(a, b)
	if err != nil {
		return nil, nil, err
	}
	if src.block == dst.block {
		return nil, nil, cerrors.WrapInvalid(cerrors.ErrSelfConnection, "Port", "Connect", "validate owners")
	}
	if slices.Contains(src.destinations, dst) {
		return src, dst, nil
	}
	if !src.kind.IsControl() {
		return src, dst, nil
	}

	if len(src.destinations) > 0 {
		return nil, nil, cerrors.WrapInvalid(fmt.Errorf("%s port %q: %w", src.kind, src.name, cerrors.ErrPortOccupied),
			"Port", "Connect", "validate successor")
	}
	if len(dst.sources) > 0 {
		return nil, nil, cerrors.WrapInvalid(fmt.Errorf("%s port: %w", dst.kind, cerrors.ErrPortOccupied),
			"Port", "Connect", "validate predecessor")
	}
	if reachesControl(dst.block, src.block) {
		return nil, nil, cerrors.WrapInvalid(cerrors.ErrControlCycle, "Port", "Connect", "validate acyclic")
	}
	return src, dst, nil
}

// reachesControl reports whether target is reachable from start through
// ControlOut connections
func reachesControl(start, target Block) bool {
	seen := map[Block]bool{}
	stack := []Block{start}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if b == target {
			return true
		}
		if seen[b] {
			continue
		}
		seen[b] = true
		for _, p := range b.Ports() {
			if p.kind != ControlOut {
				continue
			}
			for _, d := range p.destinations {
				stack = append(stack, d.block)
			}
		}
	}
	return false
}

// Connect links a and b in either argument order. The output-like port
// becomes the source. Control ports hold at most one link each and may not
// close a cycle. Connecting an already linked pair is a no-op.
func Connect(a, b *Port) error {
	src, dst, err := checkConnect(a, b)
	if err != nil {
		return err
	}
	if slices.Contains(src.destinations, dst) {
		return nil
	}
	src.destinations = append(src.destinations, dst)
	dst.sources = append(dst.sources, src)
	return nil
}

// Disconnect removes the link between a and b in either direction. It is a
// no-op when they are not linked.
func Disconnect(a, b *Port) {
	if a == nil || b == nil {
		return
	}
	unlink(a, b)
	unlink(b, a)
}

func unlink(src, dst *Port) {
	if i := slices.Index(src.destinations, dst); i >= 0 {
		src.destinations = slices.Delete(src.destinations, i, i+1)
	}
	if i := slices.Index(dst.sources, src); i >= 0 {
		dst.sources = slices.Delete(dst.sources, i, i+1)
		// an input without a source holds no value
		if dst.kind == DataIn && len(dst.sources) == 0 {
			dst.value = Absent()
		}
	}
}

// DisconnectAll removes every link of p
func DisconnectAll(p *Port) {
	for _, d := range slices.Clone(p.destinations) {
		unlink(p, d)
	}
	for _, s := range slices.Clone(p.sources) {
		unlink(s, p)
	}
}

// Near reports whether the absolute positions of a and b are within
// tolerance. It knows nothing about port kinds.
func Near(a, b *Port, tolerance float64) bool {
	return a.Position().Dist(b.Position()) <= tolerance
}

package scene

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-graph/engine/game_object"
)

// PartitionKind names one of the ordered lists of a target.
type PartitionKind int

const (
	PartitionUnprojectedOpaque PartitionKind = iota
	PartitionUnprojectedTransparent
	PartitionProjectedOpaque
	PartitionProjectedTransparent
	PartitionPingPong
	PartitionComposite
)

func (k PartitionKind) String() string {
	switch k {
	case PartitionUnprojectedOpaque:
		return "unprojectedOpaque"
	case PartitionUnprojectedTransparent:
		return "unprojectedTransparent"
	case PartitionProjectedOpaque:
		return "projectedOpaque"
	case PartitionProjectedTransparent:
		return "projectedTransparent"
	case PartitionPingPong:
		return "pingPong"
	case PartitionComposite:
		return "composite"
	default:
		return "unknown"
	}
}

// Transparent reports whether members of k are sorted by camera depth.
func (k PartitionKind) Transparent() bool {
	return k == PartitionUnprojectedTransparent || k == PartitionProjectedTransparent
}

// member is a drawable's place in a partition. depth is the camera-space depth resolved this frame.
type member struct {
	obj   game_object.Drawable
	depth float32
}

func (m *member) pipelineID() uint64 {
	if e := m.obj.Pipeline(); e != nil {
		return e.ID()
	}
	return 0
}

type partition struct {
	kind    PartitionKind
	members []*member
}

// insert places m after the last member sharing its pipeline entry, then re-sorts by creation index,
// by descending depth when transparent, and by ascending render order.
func (p *partition) insert(m *member) {
	rest := p.without(m.obj)

	pos := 0
	if id := m.pipelineID(); id != 0 {
		for i := len(rest) - 1; i >= 0; i-- {
			if rest[i].pipelineID() == id {
				pos = i + 1
				break
			}
		}
	}
	p.members = slices.Insert(rest, pos, m)
	// creation IDs are unique, so the first sort pass below fully decides the order and erases this placement
	p.sort()
}

func (p *partition) sort() {
	slices.SortStableFunc(p.members, func(a, b *member) int {
		return compareUint(a.obj.ID(), b.obj.ID())
	})
	if p.kind.Transparent() {
		slices.SortStableFunc(p.members, func(a, b *member) int {
			switch {
			case a.depth > b.depth:
				return -1
			case a.depth < b.depth:
				return 1
			default:
				return 0
			}
		})
	}
	slices.SortStableFunc(p.members, func(a, b *member) int {
		return a.obj.RenderOrder() - b.obj.RenderOrder()
	})
}

// remove drops obj and reports whether it was a member. The order of the others is unchanged.
func (p *partition) remove(obj game_object.Object) bool {
	n := len(p.members)
	p.members = p.without(obj)
	return len(p.members) != n
}

func (p *partition) without(obj game_object.Object) []*member {
	out := make([]*member, 0, len(p.members))
	for _, m := range p.members {
		if !sameObject(m.obj, obj) {
			out = append(out, m)
		}
	}
	return out
}

func (p *partition) find(obj game_object.Object) *member {
	for _, m := range p.members {
		if sameObject(m.obj, obj) {
			return m
		}
	}
	return nil
}

func (p *partition) objects() []game_object.Drawable {
	out := make([]game_object.Drawable, len(p.members))
	for i, m := range p.members {
		out[i] = m.obj
	}
	return out
}

// sameObject compares by identity. Objects are pointer-backed, so the interface values compare equal
// only for the same object.
func sameObject(a, b game_object.Object) bool {
	return a == b
}

func compareUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

package network

import (
	"voxelroute.ai/internal/sim/routing/filter"
	"voxelroute.ai/internal/sim/routing/model"
)

// Kind names a concrete node type. Stats are configured per kind.
type Kind string

const (
	KindRelay  Kind = "routing_node"
	KindInput  Kind = "input_routing_node"
	KindOutput Kind = "output_routing_node"
	KindIO     Kind = "io_routing_node"
	KindMaster Kind = "master_routing_node"
)

// Caps are the transfer roles a node plays. They hold for every side of
// the node; sides without an inventory simply yield no filter.
type Caps uint8

const (
	CapItemInput Caps = 1 << iota
	CapItemOutput
	CapFluidInput
	CapFluidOutput
)

const (
	capsInput  = CapItemInput | CapFluidInput
	capsOutput = CapItemOutput | CapFluidOutput
)

func (c Caps) Has(x Caps) bool { return c&x == x }

// KindCaps returns the roles of a kind and whether it carries side filters.
func KindCaps(k Kind) (caps Caps, sides bool, ok bool) {
	switch k {
	case KindRelay, KindMaster:
		return 0, false, true
	case KindInput:
		return capsInput, true, true
	case KindOutput:
		return capsOutput, true, true
	case KindIO:
		return capsInput | capsOutput, true, true
	}
	return 0, false, false
}

// Node is one participant in a routing network. Capabilities are composed
// per node: Sides is set for filtered kinds and Master for the coordinator.
type Node struct {
	Pos  model.Vec3i
	Kind Kind

	// MasterPos is the cached master binding; the zero value means unbound.
	// Master nodes point at themselves.
	MasterPos   model.Vec3i
	Connections []model.Vec3i

	// Signal is the external redstone-style strength; > 0 blocks new links.
	Signal int

	Caps   Caps
	Sides  *Sides
	Master *Master
}

// NewNode returns an unbound node of kind k, or nil for unknown kinds.
func NewNode(pos model.Vec3i, k Kind) *Node {
	caps, sides, ok := KindCaps(k)
	if !ok {
		return nil
	}
	n := &Node{Pos: pos, Kind: k, Caps: caps}
	if sides {
		n.Sides = &Sides{}
	}
	if k == KindMaster {
		n.Master = NewMaster(pos)
		n.MasterPos = pos
	}
	return n
}

func (n *Node) IsMaster() bool { return n != nil && n.Master != nil }

func (n *Node) HasMaster() bool { return n != nil && !n.MasterPos.IsZero() }

// ConnectionEnabled reports whether new links may be formed through n.
func (n *Node) ConnectionEnabled() bool { return n.Signal <= 0 }

func (n *Node) IsInput(ch model.Channel) bool {
	if ch == model.FluidChannel {
		return n.Caps.Has(CapFluidInput)
	}
	return n.Caps.Has(CapItemInput)
}

func (n *Node) IsOutput(ch model.Channel) bool {
	if ch == model.FluidChannel {
		return n.Caps.Has(CapFluidOutput)
	}
	return n.Caps.Has(CapItemOutput)
}

func (n *Node) IsConnectedTo(pos model.Vec3i) bool {
	return n != nil && indexOf(n.Connections, pos) >= 0
}

// AddConnection records an edge locally. Re-adding is a no-op.
func (n *Node) AddConnection(pos model.Vec3i) {
	if pos == n.Pos || n.IsConnectedTo(pos) {
		return
	}
	n.Connections = append(n.Connections, pos)
}

// RemoveConnection drops a local edge. Dropping the edge to the cached
// master also clears the binding.
func (n *Node) RemoveConnection(pos model.Vec3i) {
	n.Connections = removeValue(n.Connections, pos)
	if !n.IsMaster() && pos == n.MasterPos {
		n.MasterPos = model.Vec3i{}
	}
}

// Side is the per-face configuration of a filtered node.
type Side struct {
	Filter   *filter.Config
	Priority int
}

// Sides holds one filter item and one priority per face. Invalid face
// indices are ignored by every mutator.
type Sides struct {
	Faces      [model.NumDirections]Side
	ActiveSide model.Direction
}

func (s *Sides) Filter(d model.Direction) *filter.Config {
	if s == nil || !d.Valid() {
		return nil
	}
	return s.Faces[d].Filter
}

func (s *Sides) SetFilter(d model.Direction, cfg *filter.Config) bool {
	if s == nil || !d.Valid() {
		return false
	}
	if cfg != nil {
		c := cfg.Clone()
		cfg = &c
	}
	s.Faces[d].Filter = cfg
	return true
}

func (s *Sides) Priority(d model.Direction) int {
	if s == nil || !d.Valid() {
		return 0
	}
	return s.Faces[d].Priority
}

// SetPriority sets a face priority. Negative values are rejected.
func (s *Sides) SetPriority(d model.Direction, p int) bool {
	if s == nil || !d.Valid() || p < 0 || p > maxPriority {
		return false
	}
	s.Faces[d].Priority = p
	return true
}

func (s *Sides) IncrementPriority(d model.Direction) bool {
	return s.SetPriority(d, s.Priority(d)+1)
}

func (s *Sides) DecrementPriority(d model.Direction) bool {
	return s.SetPriority(d, s.Priority(d)-1)
}

func (s *Sides) SwapPriority(a, b model.Direction) bool {
	if s == nil || !a.Valid() || !b.Valid() {
		return false
	}
	s.Faces[a].Priority, s.Faces[b].Priority = s.Faces[b].Priority, s.Faces[a].Priority
	return true
}

func (s *Sides) SwapFilters(a, b model.Direction) bool {
	if s == nil || !a.Valid() || !b.Valid() {
		return false
	}
	s.Faces[a].Filter, s.Faces[b].Filter = s.Faces[b].Filter, s.Faces[a].Filter
	return true
}

func (s *Sides) SetActiveSide(d model.Direction) bool {
	if s == nil || !d.Valid() {
		return false
	}
	s.ActiveSide = d
	return true
}

func indexOf(list []model.Vec3i, pos model.Vec3i) int {
	for i, p := range list {
		if p == pos {
			return i
		}
	}
	return -1
}

// removeValue deletes pos from list preserving order.
func removeValue(list []model.Vec3i, pos model.Vec3i) []model.Vec3i {
	i := indexOf(list, pos)
	if i < 0 {
		return list
	}
	return append(list[:i], list[i+1:]...)
}

func appendUnique(list []model.Vec3i, pos model.Vec3i) []model.Vec3i {
	if indexOf(list, pos) >= 0 {
		return list
	}
	return append(list, pos)
}

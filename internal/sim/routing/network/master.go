package network

import (
	"voxelroute.ai/internal/sim/routing/model"
)

const (
	// PriorityBias turns priorities into ascending bucket keys: higher
	// priority, smaller key, serviced first.
	PriorityBias = 1 << 20
	maxPriority  = 1 << 16
)

// Master is the coordinator state of one connected component. Its lists
// are the source of truth for transfers; node bindings are only a cache.
type Master struct {
	Pos           model.Vec3i
	ConnectionMap map[model.Vec3i][]model.Vec3i

	General      []model.Vec3i
	ItemInputs   []model.Vec3i
	ItemOutputs  []model.Vec3i
	FluidInputs  []model.Vec3i
	FluidOutputs []model.Vec3i

	SpeedUpgrades int
	StackUpgrades int
}

func NewMaster(pos model.Vec3i) *Master {
	return &Master{Pos: pos, ConnectionMap: map[model.Vec3i][]model.Vec3i{}}
}

// AddNodeToList files a newly discovered node under every list its
// capabilities qualify it for.
func (m *Master) AddNodeToList(n *Node) {
	if n == nil || n.IsMaster() {
		return
	}
	m.General = appendUnique(m.General, n.Pos)
	if n.Caps.Has(CapItemInput) {
		m.ItemInputs = appendUnique(m.ItemInputs, n.Pos)
	}
	if n.Caps.Has(CapItemOutput) {
		m.ItemOutputs = appendUnique(m.ItemOutputs, n.Pos)
	}
	if n.Caps.Has(CapFluidInput) {
		m.FluidInputs = appendUnique(m.FluidInputs, n.Pos)
	}
	if n.Caps.Has(CapFluidOutput) {
		m.FluidOutputs = appendUnique(m.FluidOutputs, n.Pos)
	}
}

// Contains reports whether pos is a member of this component.
func (m *Master) Contains(pos model.Vec3i) bool {
	return indexOf(m.General, pos) >= 0
}

// AddConnection records the undirected edge a-b in the adjacency map.
func (m *Master) AddConnection(a, b model.Vec3i) {
	if a == b {
		return
	}
	if m.ConnectionMap == nil {
		m.ConnectionMap = map[model.Vec3i][]model.Vec3i{}
	}
	m.ConnectionMap[a] = appendUnique(m.ConnectionMap[a], b)
	m.ConnectionMap[b] = appendUnique(m.ConnectionMap[b], a)
}

func (m *Master) AddConnections(pos model.Vec3i, list []model.Vec3i) {
	for _, p := range list {
		m.AddConnection(pos, p)
	}
}

// RemoveEdge drops the undirected edge a-b from the adjacency map.
func (m *Master) RemoveEdge(a, b model.Vec3i) {
	m.dropHalf(a, b)
	m.dropHalf(b, a)
}

func (m *Master) dropHalf(a, b model.Vec3i) {
	list, ok := m.ConnectionMap[a]
	if !ok {
		return
	}
	list = removeValue(list, b)
	if len(list) == 0 {
		delete(m.ConnectionMap, a)
		return
	}
	m.ConnectionMap[a] = list
}

// RemoveConnection removes pos from every list and every edge touching it
// from the adjacency map.
func (m *Master) RemoveConnection(pos model.Vec3i) {
	m.General = removeValue(m.General, pos)
	m.ItemInputs = removeValue(m.ItemInputs, pos)
	m.ItemOutputs = removeValue(m.ItemOutputs, pos)
	m.FluidInputs = removeValue(m.FluidInputs, pos)
	m.FluidOutputs = removeValue(m.FluidOutputs, pos)
	for _, other := range append([]model.Vec3i(nil), m.ConnectionMap[pos]...) {
		m.dropHalf(other, pos)
	}
	delete(m.ConnectionMap, pos)
}

func (m *Master) reset() {
	m.General = nil
	m.ItemInputs = nil
	m.ItemOutputs = nil
	m.FluidInputs = nil
	m.FluidOutputs = nil
	m.ConnectionMap = map[model.Vec3i][]model.Vec3i{}
}

// list returns the categorized list feeding one side of one channel.
func (m *Master) list(ch model.Channel, output bool) []model.Vec3i {
	switch {
	case ch == model.ItemChannel && output:
		return m.ItemOutputs
	case ch == model.ItemChannel:
		return m.ItemInputs
	case output:
		return m.FluidOutputs
	default:
		return m.FluidInputs
	}
}

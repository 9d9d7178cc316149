package network

import (
	"sort"

	"voxelroute.ai/internal/sim/routing/model"
)

// Store is the single seam through which the graph looks nodes up by
// coordinate. A nil result means the block is gone or unloaded.
type Store interface {
	Node(pos model.Vec3i) *Node
	Put(n *Node)
	Delete(pos model.Vec3i)
	Positions() []model.Vec3i
}

// MemStore is the in-memory Store used by the world and by tests.
type MemStore struct {
	nodes map[model.Vec3i]*Node
}

func NewMemStore() *MemStore {
	return &MemStore{nodes: map[model.Vec3i]*Node{}}
}

func (s *MemStore) Node(pos model.Vec3i) *Node { return s.nodes[pos] }

func (s *MemStore) Put(n *Node) {
	if n == nil {
		return
	}
	s.nodes[n.Pos] = n
}

func (s *MemStore) Delete(pos model.Vec3i) { delete(s.nodes, pos) }

func (s *MemStore) Len() int { return len(s.nodes) }

// Positions returns every stored coordinate sorted by X, Y, Z.
func (s *MemStore) Positions() []model.Vec3i {
	return SortedPositions(s.nodes)
}

func SortedPositions[T any](m map[model.Vec3i]T) []model.Vec3i {
	if len(m) == 0 {
		return nil
	}
	out := make([]model.Vec3i, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

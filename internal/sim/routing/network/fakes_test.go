package network

import (
	"testing"

	"voxelroute.ai/internal/sim/catalogs"
	"voxelroute.ai/internal/sim/routing/filter"
	"voxelroute.ai/internal/sim/routing/model"
)

func v(x, y, z int) model.Vec3i { return model.Vec3i{X: x, Y: y, Z: z} }

// chest is a slot inventory with a per-slot cap.
type chest struct {
	slots []model.Stack
	limit int
}

func newChest(n int, contents ...model.Stack) *chest {
	c := &chest{slots: make([]model.Stack, n), limit: 64}
	copy(c.slots, contents)
	return c
}

func (c *chest) Slots() int                       { return len(c.slots) }
func (c *chest) StackInSlot(slot int) model.Stack { return c.slots[slot] }

func (c *chest) InsertItem(slot int, st model.Stack, simulate bool) model.Stack {
	cur := c.slots[slot]
	if !cur.IsEmpty() && cur.ID != st.ID {
		return st
	}
	n := min(c.limit-cur.Count, st.Count)
	if n <= 0 {
		return st
	}
	if !simulate {
		c.slots[slot] = model.Stack{ID: st.ID, Count: cur.Count + n}
	}
	return st.WithCount(st.Count - n)
}

func (c *chest) ExtractItem(slot int, amount int, simulate bool) model.Stack {
	cur := c.slots[slot]
	if cur.IsEmpty() {
		return model.Stack{}
	}
	n := min(amount, cur.Count)
	if !simulate {
		cur.Count -= n
		if cur.Count == 0 {
			cur = model.Stack{}
		}
		c.slots[slot] = cur
	}
	return model.Stack{ID: cur.ID, Count: n}
}

func (c *chest) total(id string) int {
	n := 0
	for _, st := range c.slots {
		if st.ID == id {
			n += st.Count
		}
	}
	return n
}

type tank struct {
	fluid model.Stack
	cap   int
}

func (t *tank) Tanks() int                  { return 1 }
func (t *tank) FluidInTank(int) model.Stack { return t.fluid }

func (t *tank) Fill(s model.Stack, simulate bool) int {
	if !t.fluid.IsEmpty() && t.fluid.ID != s.ID {
		return 0
	}
	n := min(t.cap-t.fluid.Count, s.Count)
	if n <= 0 {
		return 0
	}
	if !simulate {
		t.fluid = model.Stack{ID: s.ID, Count: t.fluid.Count + n}
	}
	return n
}

func (t *tank) Drain(s model.Stack, simulate bool) model.Stack {
	if t.fluid.IsEmpty() || t.fluid.ID != s.ID {
		return model.Stack{}
	}
	n := min(t.fluid.Count, s.Count)
	if !simulate {
		t.fluid.Count -= n
		if t.fluid.Count == 0 {
			t.fluid = model.Stack{}
		}
	}
	return model.Stack{ID: s.ID, Count: n}
}

type fakeEnv struct {
	chests map[model.Vec3i]*chest
	tanks  map[model.Vec3i]*tank
}

func (e *fakeEnv) ItemHandler(pos model.Vec3i, _ model.Direction) model.ItemHandler {
	if c, ok := e.chests[pos]; ok {
		return c
	}
	return nil
}

func (e *fakeEnv) FluidHandler(pos model.Vec3i, _ model.Direction) model.FluidHandler {
	if t, ok := e.tanks[pos]; ok {
		return t
	}
	return nil
}

type statsMap map[string]catalogs.ResolvedStats

func (m statsMap) Resolved(kind string) catalogs.ResolvedStats {
	if s, ok := m[kind]; ok {
		return s
	}
	return catalogs.DefaultStats
}

func newTestGraph() (*Graph, *fakeEnv) {
	env := &fakeEnv{chests: map[model.Vec3i]*chest{}, tanks: map[model.Vec3i]*tank{}}
	return NewGraph(NewMemStore(), env, filter.NewRegistry(nil), statsMap{}), env
}

func place(t *testing.T, g *Graph, pos model.Vec3i, k Kind) *Node {
	t.Helper()
	n := NewNode(pos, k)
	if !g.PlaceNode(n) {
		t.Fatalf("PlaceNode(%v, %s) failed", pos, k)
	}
	return n
}

func connect(t *testing.T, g *Graph, pairs ...[2]model.Vec3i) {
	t.Helper()
	for _, p := range pairs {
		if !g.Connect(p[0], p[1]) {
			t.Fatalf("Connect(%v, %v) failed", p[0], p[1])
		}
	}
}

func edgePair(a, b model.Vec3i) [2]model.Vec3i { return [2]model.Vec3i{a, b} }

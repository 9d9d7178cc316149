package world

import (
	"voxelroute.ai/internal/sim/routing/model"
)

const defaultSlotLimit = 64

// Container is a slot chest. Every face exposes the same inventory.
type Container struct {
	Pos      model.Vec3i
	Contents []model.Stack

	limit func(id string) int
}

func NewContainer(pos model.Vec3i, slots int, limit func(id string) int) *Container {
	return &Container{Pos: pos, Contents: make([]model.Stack, max(slots, 1)), limit: limit}
}

func (c *Container) stackLimit(id string) int {
	if c.limit == nil {
		return defaultSlotLimit
	}
	return c.limit(id)
}

func (c *Container) Slots() int { return len(c.Contents) }

func (c *Container) StackInSlot(slot int) model.Stack {
	if slot < 0 || slot >= len(c.Contents) {
		return model.Stack{}
	}
	return c.Contents[slot]
}

func (c *Container) InsertItem(slot int, s model.Stack, simulate bool) model.Stack {
	if slot < 0 || slot >= len(c.Contents) || s.IsEmpty() {
		return s
	}
	cur := c.Contents[slot]
	if !cur.IsEmpty() && cur.ID != s.ID {
		return s
	}
	n := min(c.stackLimit(s.ID)-max(cur.Count, 0), s.Count)
	if n <= 0 {
		return s
	}
	if !simulate {
		c.Contents[slot] = model.Stack{ID: s.ID, Count: max(cur.Count, 0) + n}
	}
	return s.WithCount(s.Count - n)
}

func (c *Container) ExtractItem(slot int, amount int, simulate bool) model.Stack {
	if slot < 0 || slot >= len(c.Contents) || amount <= 0 {
		return model.Stack{}
	}
	cur := c.Contents[slot]
	if cur.IsEmpty() {
		return model.Stack{}
	}
	n := min(amount, cur.Count)
	if !simulate {
		cur.Count -= n
		if cur.Count == 0 {
			cur = model.Stack{}
		}
		c.Contents[slot] = cur
	}
	return model.Stack{ID: cur.ID, Count: n}
}

// Deposit spreads s across slots and returns what did not fit.
func (c *Container) Deposit(s model.Stack) model.Stack {
	for i := range c.Contents {
		if s.IsEmpty() {
			break
		}
		s = c.InsertItem(i, s, false)
	}
	return s
}

// Total counts the units of id across all slots.
func (c *Container) Total(id string) int {
	n := 0
	for _, s := range c.Contents {
		if s.ID == id {
			n += s.Count
		}
	}
	return n
}

// Tank holds a single fluid up to Capacity millibuckets.
type Tank struct {
	Pos      model.Vec3i
	Capacity int
	Fluid    model.Stack
}

func (t *Tank) Tanks() int { return 1 }

func (t *Tank) FluidInTank(i int) model.Stack {
	if i != 0 {
		return model.Stack{}
	}
	return t.Fluid
}

func (t *Tank) Fill(s model.Stack, simulate bool) int {
	if s.IsEmpty() || !t.Fluid.IsEmpty() && t.Fluid.ID != s.ID {
		return 0
	}
	n := min(t.Capacity-max(t.Fluid.Count, 0), s.Count)
	if n <= 0 {
		return 0
	}
	if !simulate {
		t.Fluid = model.Stack{ID: s.ID, Count: max(t.Fluid.Count, 0) + n}
	}
	return n
}

func (t *Tank) Drain(s model.Stack, simulate bool) model.Stack {
	if t.Fluid.IsEmpty() || s.ID != t.Fluid.ID || s.Count <= 0 {
		return model.Stack{}
	}
	n := min(t.Fluid.Count, s.Count)
	out := model.Stack{ID: t.Fluid.ID, Count: n}
	if !simulate {
		t.Fluid.Count -= n
		if t.Fluid.Count == 0 {
			t.Fluid = model.Stack{}
		}
	}
	return out
}

// env exposes containers and tanks to the routing graph.
type env struct{ w *World }

func (e env) ItemHandler(pos model.Vec3i, _ model.Direction) model.ItemHandler {
	if c, ok := e.w.containers[pos]; ok {
		return c
	}
	return nil
}

func (e env) FluidHandler(pos model.Vec3i, _ model.Direction) model.FluidHandler {
	if t, ok := e.w.tanks[pos]; ok {
		return t
	}
	return nil
}

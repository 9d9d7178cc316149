package filter

import "voxelroute.ai/internal/sim/routing/model"

type tagMap map[string][]string

func (m tagMap) Tags(id string) []string { return m[id] }

// slotInv is a minimal slot inventory with a per-slot cap.
type slotInv struct {
	slots []model.Stack
	max   int
}

func newSlotInv(n, limit int, contents ...model.Stack) *slotInv {
	inv := &slotInv{slots: make([]model.Stack, n), max: limit}
	copy(inv.slots, contents)
	return inv
}

func (s *slotInv) Slots() int                       { return len(s.slots) }
func (s *slotInv) StackInSlot(slot int) model.Stack { return s.slots[slot] }

func (s *slotInv) InsertItem(slot int, st model.Stack, simulate bool) model.Stack {
	cur := s.slots[slot]
	if !cur.IsEmpty() && cur.ID != st.ID {
		return st
	}
	room := s.max - cur.Count
	if room <= 0 {
		return st
	}
	n := min(room, st.Count)
	if !simulate {
		s.slots[slot] = model.Stack{ID: st.ID, Count: cur.Count + n}
	}
	return st.WithCount(st.Count - n)
}

func (s *slotInv) ExtractItem(slot int, amount int, simulate bool) model.Stack {
	cur := s.slots[slot]
	if cur.IsEmpty() {
		return model.Stack{}
	}
	n := min(amount, cur.Count)
	if !simulate {
		cur.Count -= n
		if cur.Count == 0 {
			cur = model.Stack{}
		}
		s.slots[slot] = cur
	}
	return model.Stack{ID: cur.ID, Count: n}
}

func (s *slotInv) total(id string) int {
	n := 0
	for _, st := range s.slots {
		if st.ID == id {
			n += st.Count
		}
	}
	return n
}

// tank is a single-fluid tank.
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

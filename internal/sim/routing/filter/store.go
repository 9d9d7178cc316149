package filter

import "voxelroute.ai/internal/sim/routing/model"

// Store adapts an external inventory to the slot view filters work on.
// Extract and Insert return the amount moved (or that would move when
// simulating).
type Store interface {
	Size() int
	At(i int) model.Stack
	Extract(i int, amount int, simulate bool) int
	Insert(s model.Stack, simulate bool) int
}

// ItemStore wraps an item handler. Nil handlers yield a nil Store.
func ItemStore(h model.ItemHandler) Store {
	if h == nil {
		return nil
	}
	return itemStore{h: h}
}

// FluidStore wraps a fluid handler. Nil handlers yield a nil Store.
func FluidStore(h model.FluidHandler) Store {
	if h == nil {
		return nil
	}
	return fluidStore{h: h}
}

type itemStore struct{ h model.ItemHandler }

func (s itemStore) Size() int            { return s.h.Slots() }
func (s itemStore) At(i int) model.Stack { return s.h.StackInSlot(i) }

func (s itemStore) Extract(i int, amount int, simulate bool) int {
	if amount <= 0 {
		return 0
	}
	out := s.h.ExtractItem(i, amount, simulate)
	if out.IsEmpty() {
		return 0
	}
	return out.Count
}

// Insert spreads the stack over slots in order, like a hopper would.
func (s itemStore) Insert(st model.Stack, simulate bool) int {
	if st.IsEmpty() {
		return 0
	}
	remaining := st
	for slot := 0; slot < s.h.Slots() && remaining.Count > 0; slot++ {
		rem := s.h.InsertItem(slot, remaining, simulate)
		if rem.IsEmpty() {
			remaining.Count = 0
			break
		}
		remaining.Count = rem.Count
	}
	return st.Count - remaining.Count
}

type fluidStore struct{ h model.FluidHandler }

func (s fluidStore) Size() int            { return s.h.Tanks() }
func (s fluidStore) At(i int) model.Stack { return s.h.FluidInTank(i) }

func (s fluidStore) Extract(i int, amount int, simulate bool) int {
	cur := s.h.FluidInTank(i)
	if cur.IsEmpty() || amount <= 0 {
		return 0
	}
	out := s.h.Drain(cur.WithCount(amount), simulate)
	if out.IsEmpty() || out.ID != cur.ID {
		return 0
	}
	return out.Count
}

func (s fluidStore) Insert(st model.Stack, simulate bool) int {
	if st.IsEmpty() {
		return 0
	}
	return s.h.Fill(st, simulate)
}

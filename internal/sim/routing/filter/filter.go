package filter

import "voxelroute.ai/internal/sim/routing/model"

// Origin records which node side a filter was built for.
type Origin struct {
	Pos  model.Vec3i
	Side model.Direction
}

// Filter is an ordered key list bound to one external inventory. Input
// filters pull out of their inventory, output filters push into theirs.
// Key counts are consumed as units move, so a filter is only valid for the
// tick it was built in.
type Filter struct {
	keys      []Key
	blacklist bool
	output    bool
	store     Store
	origin    Origin
}

func (f *Filter) Keys() []Key       { return f.keys }
func (f *Filter) Blacklist() bool   { return f.blacklist }
func (f *Filter) IsOutput() bool    { return f.output }
func (f *Filter) Origin() Origin    { return f.origin }
func (f *Filter) Initialized() bool { return f.store != nil }

// Matches reports whether at least one unit of s would pass the filter's
// keys. Inventory space is not considered.
func (f *Filter) Matches(s model.Stack) bool {
	return f.allowance(s) > 0
}

// allowance is the number of units of s the keys let through.
func (f *Filter) allowance(s model.Stack) int {
	if s.IsEmpty() {
		return 0
	}
	if f.blacklist {
		for _, k := range f.keys {
			if k.Matches(s) {
				return 0
			}
		}
		return Unbounded
	}
	for _, k := range f.keys {
		if k.Count() > 0 && k.Matches(s) {
			return k.Count()
		}
	}
	return 0
}

// consume charges n moved units of s against the key allowance picked:
// the first matching key with count left. Blacklist keys carry no counts.
func (f *Filter) consume(s model.Stack, n int) {
	if f.blacklist {
		return
	}
	for _, k := range f.keys {
		if k.Count() > 0 && k.Matches(s) {
			k.Shrink(n)
			return
		}
	}
}

// TransferThroughInput moves at most budget units from this (input)
// filter's inventory through out into out's inventory. It returns the
// amount actually moved.
func (f *Filter) TransferThroughInput(out *Filter, budget int) int {
	return f.TransferThroughInputFunc(out, budget, nil)
}

// TransferThroughInputFunc is TransferThroughInput with a callback invoked
// once per slot move with the resource and amount that changed hands.
func (f *Filter) TransferThroughInputFunc(out *Filter, budget int, moved func(model.Stack)) int {
	if f == nil || out == nil || f.store == nil || out.store == nil || budget <= 0 {
		return 0
	}
	total := 0
	for slot := 0; slot < f.store.Size() && total < budget; slot++ {
		s := f.store.At(slot)
		if s.IsEmpty() {
			continue
		}
		allowed := min(f.allowance(s), s.Count, budget-total)
		if allowed <= 0 {
			continue
		}
		allowed = f.store.Extract(slot, allowed, true)
		if allowed <= 0 {
			continue
		}
		rem := out.TransferThroughOutput(s.WithCount(allowed))
		changed := allowed - rem.Count
		if changed <= 0 {
			continue
		}
		f.store.Extract(slot, changed, false)
		f.consume(s, changed)
		total += changed
		if moved != nil {
			moved(s.WithCount(changed))
		}
	}
	return total
}

// TransferThroughOutput inserts as much of s as the keys and inventory
// allow and returns the remainder.
func (f *Filter) TransferThroughOutput(s model.Stack) model.Stack {
	if f == nil || f.store == nil || s.IsEmpty() {
		return s
	}
	allowed := min(f.allowance(s), s.Count)
	if allowed <= 0 {
		return s
	}
	accepted := f.store.Insert(s.WithCount(allowed), true)
	if accepted <= 0 {
		return s
	}
	accepted = f.store.Insert(s.WithCount(accepted), false)
	f.consume(s, accepted)
	return s.WithCount(s.Count - accepted)
}

// initInput turns configured counts into extractable amounts: a key's
// count is what the inventory holds above the configured keep amount.
func (f *Filter) initInput() {
	if f.blacklist {
		for _, k := range f.keys {
			k.SetCount(Unbounded)
		}
		return
	}
	for _, k := range f.keys {
		k.SetCount(-k.Count())
	}
	f.countPresent(func(k Key, n int) { k.Grow(n) })
}

// initOutput turns configured counts into room left below the configured
// stock target. A zero target means no limit.
func (f *Filter) initOutput() {
	for _, k := range f.keys {
		if f.blacklist || k.Count() <= 0 {
			k.SetCount(Unbounded)
		}
	}
	if f.blacklist {
		return
	}
	f.countPresent(func(k Key, n int) { k.Shrink(n) })
}

// countPresent calls apply for every key and inventory slot it matches.
func (f *Filter) countPresent(apply func(k Key, n int)) {
	for i := 0; i < f.store.Size(); i++ {
		s := f.store.At(i)
		if s.IsEmpty() {
			continue
		}
		for _, k := range f.keys {
			if k.Matches(s) {
				apply(k, s.Count)
			}
		}
	}
}

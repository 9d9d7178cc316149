package model

import "strings"

// Channel separates the item and fluid transfer paths of a network.
type Channel int

const (
	ItemChannel Channel = iota
	FluidChannel
)

func (c Channel) String() string {
	if c == FluidChannel {
		return "fluid"
	}
	return "item"
}

// DefaultNamespace is assumed for resource ids without a "namespace:" prefix.
const DefaultNamespace = "core"

// Stack is an amount of one resource. Item stacks count units; fluid stacks
// count millibuckets.
type Stack struct {
	ID    string
	Count int
}

func (s Stack) IsEmpty() bool { return s.ID == "" || s.Count <= 0 }

func (s Stack) WithCount(n int) Stack { return Stack{ID: s.ID, Count: n} }

// Namespace returns the source namespace of a resource id ("core:stone" -> "core").
func Namespace(id string) string {
	if i := strings.IndexByte(id, ':'); i >= 0 {
		return id[:i]
	}
	return DefaultNamespace
}

// ItemHandler is the capability exposed by an external slot inventory.
// Insert returns the remainder that did not fit; Extract returns what was
// (or would be, when simulate is set) removed.
type ItemHandler interface {
	Slots() int
	StackInSlot(slot int) Stack
	InsertItem(slot int, s Stack, simulate bool) Stack
	ExtractItem(slot int, amount int, simulate bool) Stack
}

// FluidHandler is the capability exposed by an external tank set.
// Fill returns the amount accepted; Drain returns the fluid removed.
type FluidHandler interface {
	Tanks() int
	FluidInTank(tank int) Stack
	Fill(s Stack, simulate bool) int
	Drain(s Stack, simulate bool) Stack
}

package network

import (
	"sort"

	"voxelroute.ai/internal/sim/routing/filter"
	"voxelroute.ai/internal/sim/routing/model"
)

// Transfer is one move between an input side and an output side.
type Transfer struct {
	Channel  model.Channel
	From     filter.Origin
	To       filter.Origin
	Resource string
	Amount   int
}

// TickReport describes what one master did in one tick. Ran is false when
// the tick was skipped by the client-side or tick-rate gate.
type TickReport struct {
	Master   model.Vec3i
	GameTime uint64
	Ran      bool

	ItemBudget  int
	FluidBudget int
	ItemMoved   int
	FluidMoved  int

	Transfers []Transfer
	// Unreachable lists listed nodes whose path to the master is gone.
	Unreachable []model.Vec3i
}

// EffectiveTickRate is the number of game ticks between transfer runs.
func (g *Graph) EffectiveTickRate(master *Node) int {
	st := g.Stats(master.Kind)
	speed := clampUpgrades(master.Master.SpeedUpgrades, st.MaxSpeedUpgrades)
	rate := st.BaseTickRate - speed*(st.BaseTickRate/(st.MaxSpeedUpgrades+1))
	return max(1, rate)
}

func (g *Graph) EffectiveItemTransfer(master *Node) int {
	st := g.Stats(master.Kind)
	return st.BaseItemTransfer + clampUpgrades(master.Master.StackUpgrades, st.MaxStackUpgrades)*st.ItemPerUpgrade
}

func (g *Graph) EffectiveFluidTransfer(master *Node) int {
	st := g.Stats(master.Kind)
	return st.BaseFluidTransfer + clampUpgrades(master.Master.StackUpgrades, st.MaxStackUpgrades)*st.FluidPerUpgrade
}

func clampUpgrades(n, limit int) int {
	return min(max(n, 0), max(limit, 0))
}

// IsConnectedOptimized reports whether nodePos still has a live edge path
// back to master through nodes bound to it. visited is cleared by the
// caller between nodes.
func (g *Graph) IsConnectedOptimized(master *Node, visited map[model.Vec3i]bool, nodePos model.Vec3i) bool {
	n := g.store.Node(nodePos)
	if n == nil || !master.IsMaster() || n.MasterPos != master.Pos {
		return false
	}
	if n.Pos == master.Pos {
		return true
	}
	return g.walk(n, visited, nil, func(nb *Node) (bool, bool) {
		if nb.Pos == master.Pos {
			return false, true
		}
		return !nb.IsMaster() && nb.MasterPos == master.Pos, false
	}, nil)
}

// TickMaster runs one tick of the master at pos: item channel first, then
// fluid, each with its own budget shared by every filter pair.
func (g *Graph) TickMaster(pos model.Vec3i, gameTime uint64, authoritative bool) TickReport {
	rep := TickReport{Master: pos, GameTime: gameTime}
	master := g.store.Node(pos)
	if !authoritative || !master.IsMaster() {
		return rep
	}
	if gameTime%uint64(g.EffectiveTickRate(master)) != 0 {
		return rep
	}
	rep.Ran = true
	rep.ItemBudget = g.EffectiveItemTransfer(master)
	rep.FluidBudget = g.EffectiveFluidTransfer(master)

	visited := map[model.Vec3i]bool{}
	unreachable := map[model.Vec3i]bool{}
	for _, ch := range []model.Channel{model.ItemChannel, model.FluidChannel} {
		outs := g.gather(master, ch, true, visited, unreachable)
		ins := g.gather(master, ch, false, visited, unreachable)
		budget := rep.ItemBudget
		if ch == model.FluidChannel {
			budget = rep.FluidBudget
		}
		moved := allocate(ch, outs, ins, budget, &rep.Transfers)
		if ch == model.FluidChannel {
			rep.FluidMoved = moved
		} else {
			rep.ItemMoved = moved
		}
	}
	rep.Unreachable = SortedPositions(unreachable)
	return rep
}

// buckets groups filters by bias-adjusted priority; ascending keys are
// serviced first.
type buckets map[int][]*filter.Filter

func (b buckets) order() []int {
	keys := make([]int, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (g *Graph) gather(master *Node, ch model.Channel, output bool, visited, unreachable map[model.Vec3i]bool) buckets {
	out := buckets{}
	for _, p := range master.Master.list(ch, output) {
		clear(visited)
		if !g.IsConnectedOptimized(master, visited, p) {
			unreachable[p] = true
			continue
		}
		n := g.store.Node(p)
		bonus := g.Stats(n.Kind).PriorityBonus
		for _, d := range model.Directions() {
			if !g.IsInventoryConnectedToSide(n, ch, d) {
				continue
			}
			var f *filter.Filter
			if output {
				f = g.OutputFilterForSide(n, ch, d)
			} else {
				f = g.InputFilterForSide(n, ch, d)
			}
			if f == nil {
				continue
			}
			key := PriorityBias - (n.Sides.Priority(d) + bonus)
			out[key] = append(out[key], f)
		}
	}
	return out
}

// allocate walks output x input pairs in priority order, charging every
// move against one budget, and returns the total moved.
func allocate(ch model.Channel, outs, ins buckets, budget int, moves *[]Transfer) int {
	total := 0
	inOrder := ins.order()
	for _, outKey := range outs.order() {
		for _, out := range outs[outKey] {
			for _, inKey := range inOrder {
				for _, in := range ins[inKey] {
					if budget-total <= 0 {
						return total
					}
					if sameInventory(in.Origin(), out.Origin()) {
						continue
					}
					total += in.TransferThroughInputFunc(out, budget-total, func(s model.Stack) {
						*moves = append(*moves, Transfer{
							Channel:  ch,
							From:     in.Origin(),
							To:       out.Origin(),
							Resource: s.ID,
							Amount:   s.Count,
						})
					})
				}
			}
		}
	}
	return total
}

func sameInventory(a, b filter.Origin) bool {
	return a.Pos.Add(a.Side.Offset()) == b.Pos.Add(b.Side.Offset())
}

package network

import (
	"voxelroute.ai/internal/sim/catalogs"
	"voxelroute.ai/internal/sim/routing/filter"
	"voxelroute.ai/internal/sim/routing/model"
)

// Env resolves the external inventories adjacent to nodes. Implementations
// must return an untyped nil when (pos, face) exposes no handler.
type Env interface {
	ItemHandler(pos model.Vec3i, face model.Direction) model.ItemHandler
	FluidHandler(pos model.Vec3i, face model.Direction) model.FluidHandler
}

// StatsSource returns the resolved stats of a node kind.
type StatsSource interface {
	Resolved(kind string) catalogs.ResolvedStats
}

// Graph owns graph maintenance and transfer scheduling over a Store. It is
// not safe for concurrent use; the world goroutine is its only caller.
type Graph struct {
	store   Store
	env     Env
	filters *filter.Registry
	stats   StatsSource
}

func NewGraph(store Store, env Env, filters *filter.Registry, stats StatsSource) *Graph {
	return &Graph{store: store, env: env, filters: filters, stats: stats}
}

func (g *Graph) Store() Store              { return g.store }
func (g *Graph) Filters() *filter.Registry { return g.filters }

func (g *Graph) Stats(k Kind) catalogs.ResolvedStats {
	if g.stats == nil {
		return catalogs.DefaultStats
	}
	return g.stats.Resolved(string(k))
}

// MasterOf returns the live master node n is bound to, or nil when n is
// unbound or its binding is stale.
func (g *Graph) MasterOf(n *Node) *Node {
	if n.IsMaster() {
		return n
	}
	if !n.HasMaster() {
		return nil
	}
	m := g.store.Node(n.MasterPos)
	if !m.IsMaster() {
		return nil
	}
	return m
}

type frame struct {
	node *Node
	next int
}

// edge is an undirected pair of positions.
type edge struct{ a, b model.Vec3i }

func (e *edge) is(x, y model.Vec3i) bool {
	return e != nil && ((e.a == x && e.b == y) || (e.a == y && e.b == x))
}

// walk runs a depth-first traversal from start in the order a recursive
// walk would take. checked is shared with the caller and mutated in place.
// enter is called once per unvisited neighbor that still exists and
// reports whether to descend into it and whether to stop the walk. leave
// runs after every edge of a node has been examined. A non-nil skip edge is
// treated as absent. walk returns true if enter stopped it.
func (g *Graph) walk(start *Node, checked map[model.Vec3i]bool, skip *edge, enter func(*Node) (descend, stop bool), leave func(*Node)) bool {
	checked[start.Pos] = true
	stack := []frame{{node: start}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.node.Connections) {
			if leave != nil {
				leave(top.node)
			}
			stack = stack[:len(stack)-1]
			continue
		}
		p := top.node.Connections[top.next]
		top.next++
		if checked[p] || skip.is(top.node.Pos, p) {
			continue
		}
		checked[p] = true
		nb := g.store.Node(p)
		if nb == nil {
			continue
		}
		descend, stop := enter(nb)
		if stop {
			return true
		}
		if descend {
			stack = append(stack, frame{node: nb})
		}
	}
	return false
}

// ConnectMasterToRemainingNode binds the node at pos to master and claims
// every unclaimed node reachable from it. Each visited node reports its
// edges to the master's adjacency map once its neighbors are done.
func (g *Graph) ConnectMasterToRemainingNode(pos model.Vec3i, alreadyChecked map[model.Vec3i]bool, master *Node) {
	start := g.store.Node(pos)
	if start == nil || !master.IsMaster() {
		return
	}
	if alreadyChecked == nil {
		alreadyChecked = map[model.Vec3i]bool{}
	}
	m := master.Master
	if !start.IsMaster() {
		m.AddNodeToList(start)
		start.MasterPos = master.Pos
	}
	g.walk(start, alreadyChecked, nil, func(nb *Node) (bool, bool) {
		if nb.IsMaster() || g.MasterOf(nb) != nil {
			return false, false
		}
		m.AddNodeToList(nb)
		nb.MasterPos = master.Pos
		return true, false
	}, func(n *Node) {
		m.AddConnections(n.Pos, n.Connections)
	})
}

// Connect adds the edge a-b and merges masters: an unclaimed side joins
// the other side's master. It refuses to join two live masters.
func (g *Graph) Connect(a, b model.Vec3i) bool {
	na, nb := g.store.Node(a), g.store.Node(b)
	if na == nil || nb == nil || a == b {
		return false
	}
	ma, mb := g.MasterOf(na), g.MasterOf(nb)
	if ma != nil && mb != nil && ma != mb {
		return false
	}
	na.AddConnection(b)
	nb.AddConnection(a)
	switch {
	case ma != nil && mb != nil:
		ma.Master.AddConnection(a, b)
	case ma != nil:
		g.ConnectMasterToRemainingNode(b, map[model.Vec3i]bool{a: true}, ma)
	case mb != nil:
		g.ConnectMasterToRemainingNode(a, map[model.Vec3i]bool{b: true}, mb)
	}
	return true
}

// RecheckConnectionToMaster checks whether the node at pos still reaches
// its cached master. On failure nodeList holds the start node and every
// node visited through it, in visit order.
func (g *Graph) RecheckConnectionToMaster(pos model.Vec3i, alreadyChecked map[model.Vec3i]bool, nodeList []model.Vec3i) (bool, map[model.Vec3i]bool, []model.Vec3i) {
	return g.recheck(pos, alreadyChecked, nodeList, nil)
}

func (g *Graph) recheck(pos model.Vec3i, alreadyChecked map[model.Vec3i]bool, nodeList []model.Vec3i, skip *edge) (bool, map[model.Vec3i]bool, []model.Vec3i) {
	if alreadyChecked == nil {
		alreadyChecked = map[model.Vec3i]bool{}
	}
	start := g.store.Node(pos)
	if start == nil {
		return false, alreadyChecked, nodeList
	}
	if start.IsMaster() {
		return true, alreadyChecked, nodeList
	}
	if !start.HasMaster() {
		return false, alreadyChecked, nodeList
	}
	target := start.MasterPos
	nodeList = append(nodeList, pos)
	found := g.walk(start, alreadyChecked, skip, func(nb *Node) (bool, bool) {
		if nb.IsMaster() {
			return false, nb.Pos == target
		}
		if nb.MasterPos != target {
			return false, false
		}
		nodeList = append(nodeList, nb.Pos)
		return true, false
	}, nil)
	return found, alreadyChecked, nodeList
}

// CheckAndPurgeConnectionToMaster rechecks the node at pos as if the edge
// pos-ignorePos were gone. If the master is unreachable every node of the
// detached part is unbound and dropped from the master. It returns the
// purged positions.
func (g *Graph) CheckAndPurgeConnectionToMaster(pos, ignorePos model.Vec3i) []model.Vec3i {
	n := g.store.Node(pos)
	if n == nil || n.IsMaster() || !n.HasMaster() {
		return nil
	}
	masterPos := n.MasterPos
	ok, _, list := g.recheck(pos, nil, nil, &edge{a: pos, b: ignorePos})
	if ok {
		return nil
	}
	var m *Master
	if mn := g.store.Node(masterPos); mn.IsMaster() {
		m = mn.Master
	}
	for _, p := range list {
		if nb := g.store.Node(p); nb != nil && nb.MasterPos == masterPos {
			nb.MasterPos = model.Vec3i{}
		}
		if m != nil {
			m.RemoveConnection(p)
		}
	}
	return list
}

// Disconnect removes the edge a-b. Both ends are purge-checked while the
// edge still exists, with that edge skipped, so the stale master is still
// known when a split is detected.
func (g *Graph) Disconnect(a, b model.Vec3i) []model.Vec3i {
	na, nb := g.store.Node(a), g.store.Node(b)
	if !na.IsConnectedTo(b) && !nb.IsConnectedTo(a) {
		return nil
	}
	var masters []*Node
	for _, n := range []*Node{na, nb} {
		if m := g.MasterOf(n); m != nil && (len(masters) == 0 || masters[0] != m) {
			masters = append(masters, m)
		}
	}
	var purged []model.Vec3i
	purged = append(purged, g.CheckAndPurgeConnectionToMaster(a, b)...)
	purged = append(purged, g.CheckAndPurgeConnectionToMaster(b, a)...)
	if na != nil {
		na.RemoveConnection(b)
	}
	if nb != nil {
		nb.RemoveConnection(a)
	}
	for _, m := range masters {
		m.Master.RemoveEdge(a, b)
	}
	return purged
}

// PlaceNode stores a freshly created node: unclaimed unless it is a master,
// and without edges. The origin is reserved as the unbound sentinel.
func (g *Graph) PlaceNode(n *Node) bool {
	if n == nil || n.Pos.IsZero() || g.store.Node(n.Pos) != nil {
		return false
	}
	n.Connections = nil
	if n.IsMaster() {
		n.MasterPos = n.Pos
		n.Master.reset()
	} else {
		n.MasterPos = model.Vec3i{}
	}
	g.store.Put(n)
	return true
}

// RemoveNode destroys the node at pos. A master releases its whole
// component; any other node leaves its master and each former neighbor is
// purge-checked. It returns every node that lost its binding.
func (g *Graph) RemoveNode(pos model.Vec3i) []model.Vec3i {
	n := g.store.Node(pos)
	if n == nil {
		return nil
	}
	var purged []model.Vec3i
	if n.IsMaster() {
		purged = g.RemoveAllConnections(n)
	} else if m := g.MasterOf(n); m != nil {
		m.Master.RemoveConnection(pos)
	}
	neighbors := append([]model.Vec3i(nil), n.Connections...)
	for _, p := range neighbors {
		if nb := g.store.Node(p); nb != nil {
			nb.RemoveConnection(pos)
		}
	}
	g.store.Delete(pos)
	if n.IsMaster() {
		return purged
	}
	for _, p := range neighbors {
		purged = append(purged, g.CheckAndPurgeConnectionToMaster(p, pos)...)
	}
	return purged
}

// RemoveAllConnections tears down a master's component: dependents lose
// their binding and every list and the adjacency map are cleared. The
// graph edges themselves are untouched.
func (g *Graph) RemoveAllConnections(master *Node) []model.Vec3i {
	if !master.IsMaster() {
		return nil
	}
	var released []model.Vec3i
	for _, p := range master.Master.General {
		if n := g.store.Node(p); n != nil && n.MasterPos == master.Pos {
			n.MasterPos = model.Vec3i{}
			released = append(released, p)
		}
	}
	master.Master.reset()
	return released
}

func (g *Graph) inventory(ch model.Channel, pos model.Vec3i, face model.Direction) filter.Store {
	if g.env == nil {
		return nil
	}
	if ch == model.FluidChannel {
		h := g.env.FluidHandler(pos, face)
		if h == nil {
			return nil
		}
		return filter.FluidStore(h)
	}
	h := g.env.ItemHandler(pos, face)
	if h == nil {
		return nil
	}
	return filter.ItemStore(h)
}

func (g *Graph) sideInventory(n *Node, ch model.Channel, d model.Direction) filter.Store {
	if n == nil || !d.Valid() {
		return nil
	}
	return g.inventory(ch, n.Pos.Add(d.Offset()), d.Opposite())
}

// IsInventoryConnectedToSide reports whether the block on side d of n
// exposes a handler for ch on its facing face.
func (g *Graph) IsInventoryConnectedToSide(n *Node, ch model.Channel, d model.Direction) bool {
	return g.sideInventory(n, ch, d) != nil
}

// InputFilterForSide builds the input filter of side d for this tick, or
// nil when the side has no filter for ch or no inventory.
func (g *Graph) InputFilterForSide(n *Node, ch model.Channel, d model.Direction) *filter.Filter {
	return g.filterForSide(n, ch, d, false)
}

func (g *Graph) OutputFilterForSide(n *Node, ch model.Channel, d model.Direction) *filter.Filter {
	return g.filterForSide(n, ch, d, true)
}

func (g *Graph) filterForSide(n *Node, ch model.Channel, d model.Direction, output bool) *filter.Filter {
	if n == nil || g.filters == nil {
		return nil
	}
	if output && !n.IsOutput(ch) || !output && !n.IsInput(ch) {
		return nil
	}
	cfg := n.Sides.Filter(d)
	if cfg == nil || cfg.Channel() != ch {
		return nil
	}
	st := g.sideInventory(n, ch, d)
	if st == nil {
		return nil
	}
	origin := filter.Origin{Pos: n.Pos, Side: d}
	var (
		f   *filter.Filter
		err error
	)
	if output {
		f, err = g.filters.OutputFilter(*cfg, st, origin)
	} else {
		f, err = g.filters.InputFilter(*cfg, st, origin)
	}
	if err != nil {
		return nil
	}
	return f
}

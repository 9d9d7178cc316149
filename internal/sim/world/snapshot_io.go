package world

import (
	"fmt"

	"voxelroute.ai/internal/persistence/snapshot"
	"voxelroute.ai/internal/sim/routing/filter"
	"voxelroute.ai/internal/sim/routing/model"
	"voxelroute.ai/internal/sim/routing/network"
)

// ExportSnapshot captures the full world state at nowTick. It must run on
// the world loop goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:           w.cfg.TickRateHz,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
	}
	if w.catalogs.Nodes != nil {
		snap.NodesDigest = w.catalogs.Nodes.Digest
	}
	if w.catalogs.Resources != nil {
		snap.ResourcesDigest = w.catalogs.Resources.Digest
	}

	for _, p := range w.nodes.Positions() {
		snap.Nodes = append(snap.Nodes, exportNode(w.nodes.Node(p)))
	}
	for _, p := range network.SortedPositions(w.containers) {
		c := w.containers[p]
		cv := snapshot.ContainerV1{Pos: p.ToArray(), Slots: make([]snapshot.StackV1, 0, len(c.Contents))}
		for _, s := range c.Contents {
			cv.Slots = append(cv.Slots, snapshot.StackV1{ID: s.ID, Count: s.Count})
		}
		snap.Containers = append(snap.Containers, cv)
	}
	for _, p := range network.SortedPositions(w.tanks) {
		t := w.tanks[p]
		snap.Tanks = append(snap.Tanks, snapshot.TankV1{
			Pos:      p.ToArray(),
			Capacity: t.Capacity,
			Fluid:    snapshot.StackV1{ID: t.Fluid.ID, Count: t.Fluid.Count},
		})
	}
	snap.Digest = w.stateDigest(nowTick)
	return snap
}

func exportNode(n *network.Node) snapshot.NodeV1 {
	nv := snapshot.NodeV1{
		Pos:         n.Pos.ToArray(),
		Kind:        string(n.Kind),
		MasterPos:   n.MasterPos.ToArray(),
		Connections: toArrays(n.Connections),
		Signal:      n.Signal,
	}
	if n.Sides != nil {
		nv.ActiveSide = int(n.Sides.ActiveSide)
		nv.Sides = make([]snapshot.SideV1, 0, len(n.Sides.Faces))
		for _, f := range n.Sides.Faces {
			sv := snapshot.SideV1{Priority: f.Priority}
			if f.Filter != nil {
				fv := exportFilter(*f.Filter)
				sv.Filter = &fv
			}
			nv.Sides = append(nv.Sides, sv)
		}
	}
	if m := n.Master; m != nil {
		mv := &snapshot.MasterV1{
			General:       toArrays(m.General),
			ItemInputs:    toArrays(m.ItemInputs),
			ItemOutputs:   toArrays(m.ItemOutputs),
			FluidInputs:   toArrays(m.FluidInputs),
			FluidOutputs:  toArrays(m.FluidOutputs),
			SpeedUpgrades: m.SpeedUpgrades,
			StackUpgrades: m.StackUpgrades,
		}
		for _, from := range network.SortedPositions(m.ConnectionMap) {
			mv.ConnectionMap = append(mv.ConnectionMap, snapshot.EdgeListV1{
				From: from.ToArray(),
				To:   toArrays(m.ConnectionMap[from]),
			})
		}
		nv.Master = mv
	}
	return nv
}

func exportFilter(c filter.Config) snapshot.FilterV1 {
	fv := snapshot.FilterV1{Provider: c.Provider, Fluid: c.Fluid, Blacklist: c.Blacklist}
	for _, e := range c.Entries {
		fv.Entries = append(fv.Entries, snapshot.FilterEntryV1{
			Resource:  e.Resource,
			Tag:       e.Tag,
			AnyTag:    e.AnyTag,
			Namespace: e.Namespace,
			Count:     e.Count,
		})
	}
	for _, n := range c.Nested {
		fv.Nested = append(fv.Nested, exportFilter(n))
	}
	return fv
}

func importFilter(fv snapshot.FilterV1) filter.Config {
	c := filter.Config{Provider: fv.Provider, Fluid: fv.Fluid, Blacklist: fv.Blacklist}
	for _, e := range fv.Entries {
		c.Entries = append(c.Entries, filter.Entry{
			Resource:  e.Resource,
			Tag:       e.Tag,
			AnyTag:    e.AnyTag,
			Namespace: e.Namespace,
			Count:     e.Count,
		})
	}
	for _, n := range fv.Nested {
		c.Nested = append(c.Nested, importFilter(n))
	}
	return c
}

// ImportSnapshot replaces the world state with snap. Bindings, master
// lists and connection maps are restored verbatim, not re-derived. It must
// be called before Run.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", snap.Header.Version)
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("snapshot world mismatch: %q != %q", snap.Header.WorldID, w.cfg.ID)
	}
	if w.catalogs.Nodes != nil && snap.NodesDigest != "" && snap.NodesDigest != w.catalogs.Nodes.Digest {
		w.log.Printf("snapshot %d: node stats catalog changed since export", snap.Header.Tick)
	}

	nodes := network.NewMemStore()
	for _, nv := range snap.Nodes {
		n, err := importNode(nv)
		if err != nil {
			return err
		}
		if nodes.Node(n.Pos) != nil {
			return fmt.Errorf("duplicate node at %v", n.Pos)
		}
		nodes.Put(n)
	}
	containers := map[model.Vec3i]*Container{}
	for _, cv := range snap.Containers {
		pos := model.FromArray(cv.Pos)
		c := NewContainer(pos, len(cv.Slots), w.stackLimit)
		for i, s := range cv.Slots {
			c.Contents[i] = model.Stack{ID: s.ID, Count: s.Count}
		}
		containers[pos] = c
	}
	tanks := map[model.Vec3i]*Tank{}
	for _, tv := range snap.Tanks {
		pos := model.FromArray(tv.Pos)
		tanks[pos] = &Tank{Pos: pos, Capacity: tv.Capacity, Fluid: model.Stack{ID: tv.Fluid.ID, Count: tv.Fluid.Count}}
	}

	if snap.Digest != "" {
		if got := digestState(snap.Header.Tick, nodes, containers, tanks); got != snap.Digest {
			return fmt.Errorf("snapshot %d digest mismatch: got %s want %s", snap.Header.Tick, got, snap.Digest)
		}
	}

	// The graph holds w.nodes, so swap contents in place.
	for _, p := range w.nodes.Positions() {
		w.nodes.Delete(p)
	}
	for _, p := range nodes.Positions() {
		w.nodes.Put(nodes.Node(p))
	}
	w.containers = containers
	w.tanks = tanks
	w.tick.Store(snap.Header.Tick)
	return nil
}

func importNode(nv snapshot.NodeV1) (*network.Node, error) {
	pos := model.FromArray(nv.Pos)
	n := network.NewNode(pos, network.Kind(nv.Kind))
	if n == nil {
		return nil, fmt.Errorf("%w: %q at %v", ErrUnknownKind, nv.Kind, pos)
	}
	n.MasterPos = model.FromArray(nv.MasterPos)
	n.Connections = fromArrays(nv.Connections)
	n.Signal = nv.Signal

	if n.Sides != nil {
		if len(nv.Sides) > len(n.Sides.Faces) {
			return nil, fmt.Errorf("node %v: %d sides", pos, len(nv.Sides))
		}
		for i, sv := range nv.Sides {
			n.Sides.Faces[i].Priority = sv.Priority
			if sv.Filter != nil {
				c := importFilter(*sv.Filter)
				n.Sides.Faces[i].Filter = &c
			}
		}
		n.Sides.SetActiveSide(model.Direction(nv.ActiveSide))
	}

	if n.Master != nil && nv.Master != nil {
		mv := nv.Master
		m := n.Master
		m.General = fromArrays(mv.General)
		m.ItemInputs = fromArrays(mv.ItemInputs)
		m.ItemOutputs = fromArrays(mv.ItemOutputs)
		m.FluidInputs = fromArrays(mv.FluidInputs)
		m.FluidOutputs = fromArrays(mv.FluidOutputs)
		m.SpeedUpgrades = mv.SpeedUpgrades
		m.StackUpgrades = mv.StackUpgrades
		for _, el := range mv.ConnectionMap {
			m.ConnectionMap[model.FromArray(el.From)] = fromArrays(el.To)
		}
	}
	return n, nil
}

func fromArrays(as [][3]int) []model.Vec3i {
	if len(as) == 0 {
		return nil
	}
	out := make([]model.Vec3i, 0, len(as))
	for _, a := range as {
		out = append(out, model.FromArray(a))
	}
	return out
}

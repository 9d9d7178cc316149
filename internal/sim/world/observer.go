package world

import (
	"encoding/json"

	"voxelroute.ai/internal/observerproto"
	"voxelroute.ai/internal/sim/routing/model"
	"voxelroute.ai/internal/sim/routing/network"
)

// ObserverJoinRequest registers a read-only observer session that receives
// one TICK message per simulated tick on TickOut.
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte

	// Masters limits per-master detail; empty means all masters.
	Masters [][3]int
}

// ObserverSubscribeRequest updates an existing observer session.
type ObserverSubscribeRequest struct {
	SessionID string
	Masters   [][3]int
}

type observerClient struct {
	id      string
	tickOut chan []byte

	// masters is nil when the client follows every master.
	masters map[model.Vec3i]bool
}

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func masterSet(ps [][3]int) map[model.Vec3i]bool {
	if len(ps) == 0 {
		return nil
	}
	m := make(map[model.Vec3i]bool, len(ps))
	for _, p := range ps {
		m[model.FromArray(p)] = true
	}
	return m
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	w.observers[req.SessionID] = &observerClient{
		id:      req.SessionID,
		tickOut: req.TickOut,
		masters: masterSet(req.Masters),
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.masters = masterSet(req.Masters)
}

func (w *World) handleObserverLeave(id string) {
	c := w.observers[id]
	if c == nil {
		return
	}
	delete(w.observers, id)
	close(c.tickOut)
}

func (w *World) stepObservers(entry TickLogEntry, reports []network.TickReport) {
	if len(w.observers) == 0 {
		return
	}

	ran := make(map[model.Vec3i]network.TickReport, len(reports))
	for _, r := range reports {
		ran[r.Master] = r
	}
	var masters []observerproto.MasterState
	for _, p := range w.nodes.Positions() {
		n := w.nodes.Node(p)
		if !n.IsMaster() {
			continue
		}
		ms := observerproto.MasterState{Pos: p.ToArray(), Nodes: len(n.Master.General)}
		if r, ok := ran[p]; ok {
			ms.Ran = true
			ms.ItemBudget = r.ItemBudget
			ms.FluidBudget = r.FluidBudget
			ms.ItemMoved = r.ItemMoved
			ms.FluidMoved = r.FluidMoved
			ms.Unreachable = toArrays(r.Unreachable)
		}
		masters = append(masters, ms)
	}

	edits := make([]observerproto.EditInfo, 0, len(entry.Edits))
	for _, e := range entry.Edits {
		edits = append(edits, observerproto.EditInfo{Op: e.Edit.Op, Pos: e.Edit.Pos, Error: e.Error})
	}

	// Most clients follow every master; encode that message once.
	var all []byte
	for _, c := range w.observers {
		if c.masters == nil && all != nil {
			sendLatest(c.tickOut, all)
			continue
		}
		msg := observerproto.TickMsg{
			Type:            "TICK",
			ProtocolVersion: observerproto.Version,
			Tick:            entry.Tick,
			Digest:          entry.Digest,
			Purged:          entry.Purged,
			Edits:           edits,
		}
		for _, ms := range masters {
			if c.masters == nil || c.masters[model.FromArray(ms.Pos)] {
				msg.Masters = append(msg.Masters, ms)
			}
		}
		for _, tr := range entry.Transfers {
			if c.masters == nil || c.masters[model.FromArray(tr.Master)] {
				msg.Transfers = append(msg.Transfers, observerproto.TransferInfo{
					Master:   tr.Master,
					Channel:  tr.Channel,
					From:     tr.From,
					To:       tr.To,
					Resource: tr.Resource,
					Amount:   tr.Amount,
				})
			}
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if c.masters == nil {
			all = b
		}
		sendLatest(c.tickOut, b)
	}
}

package world

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"voxelroute.ai/internal/persistence/snapshot"
	"voxelroute.ai/internal/sim/catalogs"
	"voxelroute.ai/internal/sim/routing/filter"
	"voxelroute.ai/internal/sim/routing/linktool"
	"voxelroute.ai/internal/sim/routing/model"
	"voxelroute.ai/internal/sim/routing/network"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	SnapshotEveryTicks int
	ObserverBuffer     int
	EditQueue          int
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry is the durable record of one tick.
type TickLogEntry struct {
	Tick      uint64           `json:"tick"`
	Edits     []EditRecord     `json:"edits,omitempty"`
	Transfers []TransferRecord `json:"transfers,omitempty"`
	Purged    [][3]int         `json:"purged,omitempty"`
	Digest    string           `json:"digest"`
}

type EditRecord struct {
	Edit  Edit   `json:"edit"`
	Error string `json:"error,omitempty"`
}

type TransferRecord struct {
	Master   [3]int `json:"master"`
	Channel  string `json:"channel"`
	From     [3]int `json:"from"`
	FromSide string `json:"from_side"`
	To       [3]int `json:"to"`
	ToSide   string `json:"to_side"`
	Resource string `json:"resource"`
	Amount   int    `json:"amount"`
}

// World is a single-threaded authoritative simulation of routing networks
// and the inventories they serve. All state must be accessed only from
// the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	log      *log.Logger

	tick atomic.Uint64

	nodes   *network.MemStore
	graph   *network.Graph
	tool    *linktool.Tool
	filters *filter.Registry

	containers map[model.Vec3i]*Container
	tanks      map[model.Vec3i]*Tank

	edits         chan editReq
	admin         chan adminSnapshotReq
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	stop          chan struct{}

	observers map[string]*observerClient

	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1

	totals  totals
	metrics atomic.Value
}

func New(cfg WorldConfig, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("world id is required")
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be positive: %d", cfg.TickRateHz)
	}
	if cfg.ObserverBuffer <= 0 {
		cfg.ObserverBuffer = 8
	}
	if cfg.EditQueue <= 0 {
		cfg.EditQueue = 256
	}
	if cats == nil {
		cats = &catalogs.Catalogs{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[world] ", log.LstdFlags)
	}

	w := &World{
		cfg:           cfg,
		catalogs:      cats,
		log:           logger,
		nodes:         network.NewMemStore(),
		containers:    map[model.Vec3i]*Container{},
		tanks:         map[model.Vec3i]*Tank{},
		edits:         make(chan editReq, cfg.EditQueue),
		admin:         make(chan adminSnapshotReq, 16),
		observerJoin:  make(chan ObserverJoinRequest, 64),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 64),
		stop:          make(chan struct{}),
		observers:     map[string]*observerClient{},
	}
	// A nil resource catalog must stay an untyped nil tag source.
	var tags filter.TagSource
	if cats.Resources != nil {
		tags = cats.Resources
	}
	w.filters = filter.NewRegistry(tags)
	w.graph = network.NewGraph(w.nodes, env{w: w}, w.filters, cats.Nodes)
	w.tool = linktool.New(w.graph)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Config() WorldConfig   { return w.cfg }
func (w *World) CurrentTick() uint64   { return w.tick.Load() }
func (w *World) Graph() *network.Graph { return w.graph }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingEdits []editReq
	var pendingSnapshots []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.edits:
			pendingEdits = append(pendingEdits, req)
		case req := <-w.admin:
			pendingSnapshots = append(pendingSnapshots, req)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case <-ticker.C:
			w.step(pendingEdits)
			w.handleAdminSnapshotRequests(pendingSnapshots)
			pendingEdits = pendingEdits[:0]
			pendingSnapshots = pendingSnapshots[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by one tick outside of Run. Tests and
// offline tools use it; it must not be mixed with a running loop.
func (w *World) StepOnce(edits []Edit) []EditResult {
	reqs := make([]editReq, 0, len(edits))
	resps := make([]chan EditResult, 0, len(edits))
	for _, e := range edits {
		ch := make(chan EditResult, 1)
		reqs = append(reqs, editReq{Edit: e, Resp: ch})
		resps = append(resps, ch)
	}
	w.step(reqs)
	out := make([]EditResult, 0, len(resps))
	for _, ch := range resps {
		out = append(out, <-ch)
	}
	return out
}

// step applies queued edits, advances game time and ticks every master
// in position order.
func (w *World) step(edits []editReq) {
	start := time.Now()
	nowTick := w.tick.Load() + 1

	entry := TickLogEntry{Tick: nowTick}
	for _, r := range edits {
		res := w.applyEdit(r.Edit)
		res.Tick = nowTick
		entry.Edits = append(entry.Edits, EditRecord{Edit: r.Edit, Error: res.Error})
		entry.Purged = append(entry.Purged, res.Purged...)
		if r.Resp != nil {
			select {
			case r.Resp <- res:
			default:
				// Caller gave up; don't block the sim loop.
			}
		}
	}
	if n := len(entry.Purged); n > 0 {
		w.log.Printf("tick %d: %d node(s) lost their master", nowTick, n)
	}

	w.tick.Store(nowTick)

	var unreachable int
	var reports []network.TickReport
	for _, pos := range w.nodes.Positions() {
		if !w.nodes.Node(pos).IsMaster() {
			continue
		}
		rep := w.graph.TickMaster(pos, nowTick, true)
		if !rep.Ran {
			continue
		}
		reports = append(reports, rep)
		unreachable += len(rep.Unreachable)
		w.totals.masterRuns++
		w.totals.itemsMoved += uint64(rep.ItemMoved)
		w.totals.fluidMoved += uint64(rep.FluidMoved)
		for _, tr := range rep.Transfers {
			entry.Transfers = append(entry.Transfers, TransferRecord{
				Master:   rep.Master.ToArray(),
				Channel:  tr.Channel.String(),
				From:     tr.From.Pos.ToArray(),
				FromSide: tr.From.Side.String(),
				To:       tr.To.Pos.ToArray(),
				ToSide:   tr.To.Side.String(),
				Resource: tr.Resource,
				Amount:   tr.Amount,
			})
		}
	}
	w.totals.purged += uint64(len(entry.Purged))
	entry.Digest = w.stateDigest(nowTick)

	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(entry)
	}
	w.stepObservers(entry, reports)

	if every := w.cfg.SnapshotEveryTicks; every > 0 && nowTick%uint64(every) == 0 && w.snapshotSink != nil {
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
			w.log.Printf("tick %d: snapshot sink full, skipped", nowTick)
		}
	}

	w.updateMetrics(nowTick, unreachable, time.Since(start))
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// NodeKinds lists the kinds with configured stats. Catalogs are read-only,
// so this is safe from any goroutine.
func (w *World) NodeKinds() []string { return w.catalogs.Nodes.Kinds() }

func (w *World) ResourceIDs() []string { return w.catalogs.Resources.IDs() }

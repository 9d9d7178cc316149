package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Nodes      int `json:"nodes"`
	Masters    int `json:"masters"`
	Containers int `json:"containers"`
	Tanks      int `json:"tanks"`
	Observers  int `json:"observers"`

	// Unreachable counts listed nodes whose path to their master was gone
	// on the last run of that master.
	Unreachable int `json:"unreachable"`

	MasterRunsTotal uint64 `json:"master_runs_total"`
	ItemsMovedTotal uint64 `json:"items_moved_total"`
	FluidMovedTotal uint64 `json:"fluid_moved_total"`
	PurgedTotal     uint64 `json:"purged_total"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Edits     int `json:"edits"`
	Observers int `json:"observers"`
}

type totals struct {
	masterRuns uint64
	itemsMoved uint64
	fluidMoved uint64
	purged     uint64
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) updateMetrics(nowTick uint64, unreachable int, took time.Duration) {
	m := WorldMetrics{
		Tick:            nowTick,
		Containers:      len(w.containers),
		Tanks:           len(w.tanks),
		Observers:       len(w.observers),
		Unreachable:     unreachable,
		MasterRunsTotal: w.totals.masterRuns,
		ItemsMovedTotal: w.totals.itemsMoved,
		FluidMovedTotal: w.totals.fluidMoved,
		PurgedTotal:     w.totals.purged,
		QueueDepths: QueueDepths{
			Edits:     len(w.edits),
			Observers: len(w.observerJoin) + len(w.observerSub) + len(w.observerLeave),
		},
		StepMS: float64(took.Microseconds()) / 1000,
	}
	for _, p := range w.nodes.Positions() {
		m.Nodes++
		if w.nodes.Node(p).IsMaster() {
			m.Masters++
		}
	}
	w.metrics.Store(m)
}

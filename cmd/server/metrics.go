package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxelroute.ai/internal/persistence/r2s3"
	"voxelroute.ai/internal/sim/world"
)

type metricsSource interface {
	Metrics() world.WorldMetrics
}

type mirrorStatsSource interface {
	stats() (r2s3.Stats, bool)
}

func desc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc("voxelroute_"+name, help, labels, nil)
}

var (
	descTick        = desc("world_tick", "Current world tick.")
	descNodes       = desc("world_nodes", "Placed network nodes.")
	descMasters     = desc("world_masters", "Placed master nodes.")
	descContainers  = desc("world_containers", "Placed item containers.")
	descTanks       = desc("world_tanks", "Placed fluid tanks.")
	descObservers   = desc("world_observers", "Connected observer sessions.")
	descUnreachable = desc("world_unreachable_nodes", "Listed nodes without a path to their master on the last run.")
	descStepMS      = desc("world_step_ms", "Duration of the last world step in milliseconds.")
	descQueue       = desc("world_queue_depth", "Pending requests per world queue.", "queue")
	descMasterRuns  = desc("master_runs_total", "Master transfer passes executed.")
	descMoved       = desc("moved_total", "Units moved by masters.", "channel")
	descPurged      = desc("purged_total", "Nodes unbound after disconnects.")

	descMirrorQueue   = desc("mirror_queue_depth", "Files waiting for upload.")
	descMirrorEnq     = desc("mirror_enqueued_total", "Files accepted by the mirror.")
	descMirrorDropped = desc("mirror_dropped_total", "Files dropped because the queue stayed full.")
	descMirrorUploads = desc("mirror_uploads_total", "Upload attempts by final result.", "result")
)

// worldCollector reads the published world metrics at scrape time.
type worldCollector struct {
	w      metricsSource
	mirror mirrorStatsSource
}

var _ prometheus.Collector = (*worldCollector)(nil)

func (c *worldCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descTick, descNodes, descMasters, descContainers, descTanks, descObservers,
		descUnreachable, descStepMS, descQueue, descMasterRuns, descMoved, descPurged,
		descMirrorQueue, descMirrorEnq, descMirrorDropped, descMirrorUploads,
	} {
		ch <- d
	}
}

func (c *worldCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.w.Metrics()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	gauge(descTick, float64(m.Tick))
	gauge(descNodes, float64(m.Nodes))
	gauge(descMasters, float64(m.Masters))
	gauge(descContainers, float64(m.Containers))
	gauge(descTanks, float64(m.Tanks))
	gauge(descObservers, float64(m.Observers))
	gauge(descUnreachable, float64(m.Unreachable))
	gauge(descStepMS, m.StepMS)
	gauge(descQueue, float64(m.QueueDepths.Edits), "edits")
	gauge(descQueue, float64(m.QueueDepths.Observers), "observers")
	counter(descMasterRuns, float64(m.MasterRunsTotal))
	counter(descMoved, float64(m.ItemsMovedTotal), "item")
	counter(descMoved, float64(m.FluidMovedTotal), "fluid")
	counter(descPurged, float64(m.PurgedTotal))

	if c.mirror == nil {
		return
	}
	st, ok := c.mirror.stats()
	if !ok {
		return
	}
	gauge(descMirrorQueue, float64(st.QueueDepth))
	counter(descMirrorEnq, float64(st.EnqueuedTotal))
	counter(descMirrorDropped, float64(st.DroppedTotal))
	counter(descMirrorUploads, float64(st.UploadSuccessTotal), "success")
	counter(descMirrorUploads, float64(st.UploadFailTotal), "fail")
}

func newMetricsRegistry(w metricsSource, mirror mirrorStatsSource) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		&worldCollector{w: w, mirror: mirror},
	)
	return reg
}

func metricsHandler(w metricsSource, mirror mirrorStatsSource) http.Handler {
	reg := newMetricsRegistry(w, mirror)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Package telemetry exposes world and persistence counters in the Prometheus
// text format.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dishrush.game/internal/persistence/indexdb"
	"dishrush.game/internal/sim/world"
)

type MetricsSource interface {
	Metrics() world.WorldMetrics
}

// Options wires optional persistence stats. Nil funcs are skipped.
type Options struct {
	IndexStats    func() indexdb.IndexStats
	SignalDropped func() uint64
}

// Registry owns the collectors for one world.
type Registry struct {
	reg  *prometheus.Registry
	step prometheus.Histogram
}

func New(worldID string, src MetricsSource, opts Options) *Registry {
	labels := prometheus.Labels{"world": worldID}
	r := &Registry{
		reg: prometheus.NewRegistry(),
		step: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "dishrush_world_step_duration_ms",
			Help:        "Tick step duration in milliseconds.",
			ConstLabels: labels,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 50},
		}),
	}
	r.reg.MustRegister(r.step, newWorldCollector(labels, src, opts))
	return r
}

// ObserveStep is meant for world.OnStep.
func (r *Registry) ObserveStep(m world.WorldMetrics) { r.step.Observe(m.StepMS) }

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

type worldCollector struct {
	src  MetricsSource
	opts Options

	tick        *prometheus.Desc
	population  *prometheus.Desc
	queueDepth  *prometheus.Desc
	stepMS      *prometheus.Desc
	gameplay    *prometheus.Desc
	indexQueue  *prometheus.Desc
	indexDrops  *prometheus.Desc
	signalDrops *prometheus.Desc
}

func newWorldCollector(labels prometheus.Labels, src MetricsSource, opts Options) *worldCollector {
	return &worldCollector{
		src:         src,
		opts:        opts,
		tick:        prometheus.NewDesc("dishrush_world_tick", "Current world tick.", nil, labels),
		population:  prometheus.NewDesc("dishrush_world_entities", "Live entity counts by kind.", []string{"kind"}, labels),
		queueDepth:  prometheus.NewDesc("dishrush_world_queue_depth", "Channel backlog depth.", []string{"queue"}, labels),
		stepMS:      prometheus.NewDesc("dishrush_world_step_ms", "Last tick step duration in milliseconds.", nil, labels),
		gameplay:    prometheus.NewDesc("dishrush_gameplay_total", "Gameplay signal totals since world start.", []string{"kind"}, labels),
		indexQueue:  prometheus.NewDesc("dishrush_index_queue", "SQLite index writer queue.", []string{"stat"}, labels),
		indexDrops:  prometheus.NewDesc("dishrush_index_dropped_total", "Index writes dropped or failed.", []string{"what"}, labels),
		signalDrops: prometheus.NewDesc("dishrush_signal_log_dropped_total", "Signal journal records dropped on a full queue.", nil, labels),
	}
}

func (c *worldCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.tick, c.population, c.queueDepth, c.stepMS, c.gameplay, c.indexQueue, c.indexDrops, c.signalDrops} {
		ch <- d
	}
}

func (c *worldCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.src.Metrics()
	gauge := func(d *prometheus.Desc, v float64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, lv...)
	}
	counter := func(d *prometheus.Desc, v uint64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), lv...)
	}

	gauge(c.tick, float64(m.Tick))
	gauge(c.population, float64(m.Agents), "agents")
	gauge(c.population, float64(m.Clients), "clients")
	gauge(c.population, float64(m.Sources), "sources")
	gauge(c.population, float64(m.Consumables), "consumables")
	gauge(c.population, float64(m.Carried), "carried")
	gauge(c.queueDepth, float64(m.QueueDepths.Inbox), "inbox")
	gauge(c.queueDepth, float64(m.QueueDepths.Join), "join")
	gauge(c.queueDepth, float64(m.QueueDepths.Leave), "leave")
	gauge(c.stepMS, m.StepMS)

	t := m.Totals
	counter(c.gameplay, t.Pickups, "pickups")
	counter(c.gameplay, t.Deliveries, "deliveries")
	counter(c.gameplay, t.DishesCleaned, "dishes_cleaned")
	counter(c.gameplay, t.Stumbles, "stumbles")
	counter(c.gameplay, t.DishesDropped, "dishes_dropped")
	counter(c.gameplay, t.ChecksBegun, "checks_begun")
	counter(c.gameplay, t.ChecksPassed, "checks_passed")
	counter(c.gameplay, t.ChecksFailed, "checks_failed")
	counter(c.gameplay, t.StaleOutcomes, "stale_outcomes")
	counter(c.gameplay, t.Impairments, "impairments")
	counter(c.gameplay, t.Splatters, "splatters")
	counter(c.gameplay, t.ConsumablesEaten, "consumables_eaten")

	if c.opts.IndexStats != nil {
		s := c.opts.IndexStats()
		gauge(c.indexQueue, float64(s.QueueDepth), "depth")
		gauge(c.indexQueue, float64(s.QueueCapacity), "capacity")
		counter(c.indexDrops, s.DropTickTotal, "tick")
		counter(c.indexDrops, s.DropSignalTotal, "signal")
		counter(c.indexDrops, s.WriteFailTotal, "write_fail")
	}
	if c.opts.SignalDropped != nil {
		counter(c.signalDrops, c.opts.SignalDropped())
	}
}

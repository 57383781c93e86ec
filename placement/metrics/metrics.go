// Package metrics instruments planning runs with prometheus collectors.
// A batch run has no scrape endpoint, so the registry is exported once at
// the end through the node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inference-sim/slo-placement/placement"
)

const namespace = "slo_placement"

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}

// Recorder owns a private registry. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	pairs         *prometheus.CounterVec
	rootIters     prometheus.Histogram
	stageSeconds  *prometheus.HistogramVec
	modelSize     *prometheus.GaugeVec
	solverNodes   prometheus.Gauge
	objective     prometheus.Gauge
	siteOpen      *prometheus.GaugeVec
	siteInstances *prometheus.GaugeVec
	siteRho       *prometheus.GaugeVec
}

// NewRecorder registers the planner collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		pairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_total",
			Help:      "Arrival-rate limits computed, by outcome",
		}, []string{"outcome"}),
		rootIters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "root_iterations",
			Help:      "Root-finder iterations per feasible pair",
			Buckets:   prometheus.LinearBuckets(0, 5, 12),
		}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock time per pipeline stage",
			Buckets:   durationBuckets,
		}, []string{"stage"}),
		modelSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_size",
			Help:      "Size of the placement MILP",
		}, []string{"kind"}),
		solverNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "solver_nodes",
			Help:      "Branch-and-bound nodes explored",
		}),
		objective: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "objective_value",
			Help:      "Optimal objective value of the placement",
		}),
		siteOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "site_open",
			Help:      "Whether a site is opened by the placement",
		}, []string{"site"}),
		siteInstances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "site_instances",
			Help:      "Instances placed on a site",
		}, []string{"site"}),
		siteRho: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "site_utilization",
			Help:      "Per-instance utilization of a site",
		}, []string{"site"}),
	}
	r.registry.MustRegister(r.pairs, r.rootIters, r.stageSeconds, r.modelSize,
		r.solverNodes, r.objective, r.siteOpen, r.siteInstances, r.siteRho)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveLimits counts feasible and barred pairs.
func (r *Recorder) ObserveLimits(table *placement.LimitTable) {
	if r == nil {
		return
	}
	for _, l := range table.All() {
		if !l.Feasible() {
			r.pairs.WithLabelValues("infeasible").Inc()
			continue
		}
		r.pairs.WithLabelValues("feasible").Inc()
		r.rootIters.Observe(float64(l.Iterations))
	}
}

// ObserveStage records how long a pipeline stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveModel records the size of the MILP and the search effort.
func (r *Recorder) ObserveModel(stats placement.PlanStats) {
	if r == nil {
		return
	}
	r.modelSize.WithLabelValues("variables").Set(float64(stats.Variables))
	r.modelSize.WithLabelValues("constraints").Set(float64(stats.Constraints))
	r.solverNodes.Set(float64(stats.Nodes))
}

// ObserveDecision exports the chosen placement.
func (r *Recorder) ObserveDecision(d *placement.PlacementDecision, serviceRate float64) {
	if r == nil {
		return
	}
	r.objective.Set(d.ObjectiveValue)
	for _, s := range d.Sites {
		open := 0.0
		if s.Open {
			open = 1
		}
		r.siteOpen.WithLabelValues(s.Site).Set(open)
		r.siteInstances.WithLabelValues(s.Site).Set(float64(s.Instances))
		r.siteRho.WithLabelValues(s.Site).Set(s.Utilization(serviceRate))
	}
}

// WriteTextfile writes the registry to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

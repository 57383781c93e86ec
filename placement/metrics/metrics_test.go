package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/slo-placement/placement"
	"github.com/inference-sim/slo-placement/placement/metrics"
)

func TestRecorder_ObserveLimits(t *testing.T) {
	r := metrics.NewRecorder()
	r.ObserveLimits(placement.NewLimitTable([]placement.ArrivalRateLimit{
		{Pair: placement.Pair{Site: "s1", User: "u1"}, Limit: 0.2, Iterations: 7},
		{Pair: placement.Pair{Site: "s1", User: "u2"}, Limit: 0.3, Iterations: 9},
		{Pair: placement.Pair{Site: "s2", User: "u1"}, Err: &placement.InfeasiblePairError{Site: "s2", User: "u1"}},
	}))

	expected := `
# HELP slo_placement_pairs_total Arrival-rate limits computed, by outcome
# TYPE slo_placement_pairs_total counter
slo_placement_pairs_total{outcome="feasible"} 2
slo_placement_pairs_total{outcome="infeasible"} 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "slo_placement_pairs_total"))
}

func TestRecorder_ObserveDecision(t *testing.T) {
	r := metrics.NewRecorder()
	r.ObserveModel(placement.PlanStats{Variables: 40, Constraints: 55, Nodes: 13})
	r.ObserveDecision(&placement.PlacementDecision{
		ObjectiveValue: 3,
		Sites: []placement.SiteDecision{
			{Site: "s1", Open: true, Instances: 2, InstanceArrivalRate: 0.125},
			{Site: "s2"},
		},
	}, 1)

	expected := `
# HELP slo_placement_site_instances Instances placed on a site
# TYPE slo_placement_site_instances gauge
slo_placement_site_instances{site="s1"} 2
slo_placement_site_instances{site="s2"} 0
# HELP slo_placement_site_utilization Per-instance utilization of a site
# TYPE slo_placement_site_utilization gauge
slo_placement_site_utilization{site="s1"} 0.125
slo_placement_site_utilization{site="s2"} 0
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected),
		"slo_placement_site_instances", "slo_placement_site_utilization"))
	n, err := testutil.GatherAndCount(r.Registry(), "slo_placement_model_size")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := metrics.NewRecorder()
	r.ObserveStage("limits", 20*time.Millisecond)
	path := filepath.Join(t.TempDir(), "plan.prom")

	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `slo_placement_stage_duration_seconds_count{stage="limits"} 1`)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *metrics.Recorder
	assert.NotPanics(t, func() {
		r.ObserveStage("solve", time.Second)
		r.ObserveLimits(placement.NewLimitTable(nil))
		r.ObserveModel(placement.PlanStats{})
		r.ObserveDecision(&placement.PlacementDecision{}, 1)
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "unused.prom")))
}

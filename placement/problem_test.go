package placement_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/slo-placement/placement"
	"github.com/inference-sim/slo-placement/placement/internal/testutil"
)

func TestNewProblem_Accessors(t *testing.T) {
	p := testutil.TwoSiteProblem(t)

	pairs := p.Pairs()
	require.Len(t, pairs, 6)
	assert.Equal(t, placement.Pair{Site: "s1", User: "u1"}, pairs[0])
	assert.Equal(t, placement.Pair{Site: "s2", User: "u3"}, pairs[5])
	assert.Equal(t, "(s2, u3)", pairs[5].String())

	assert.Equal(t, 47.5, p.Latency("s2", "u2"))
	assert.Equal(t, 48.0, p.MaxLatency())
	assert.InDelta(t, 0.45, p.TotalArrivalRate(), 1e-15)

	site, ok := p.Site("s2")
	require.True(t, ok)
	assert.Equal(t, 3, site.Capacity)
	_, ok = p.User("u9")
	assert.False(t, ok)
	assert.Panics(t, func() { p.Latency("s1", "u9") })
}

func TestNewProblem_Rejects(t *testing.T) {
	sites := []placement.Site{{ID: "s1", Capacity: 2}}
	users := []placement.User{{ID: "u1", ArrivalRate: 0.1}}
	edge := placement.LatencyEdge{Site: "s1", User: "u1", Latency: 3}

	tests := []struct {
		name  string
		sites []placement.Site
		users []placement.User
		edges []placement.LatencyEdge
		field string
	}{
		{"no sites", nil, users, nil, "sites"},
		{"no users", sites, nil, nil, "users"},
		{"zero capacity", []placement.Site{{ID: "s1"}}, users, []placement.LatencyEdge{edge}, "sites[0].capacity"},
		{"duplicate site", []placement.Site{sites[0], sites[0]}, users, []placement.LatencyEdge{edge}, "sites[1].id"},
		{"negative rate", sites, []placement.User{{ID: "u1", ArrivalRate: -1}}, []placement.LatencyEdge{edge}, "users[0].arrival_rate"},
		{"missing pair", sites, users, nil, "latency[s1][u1]"},
		{"unknown site", sites, users, []placement.LatencyEdge{edge, {Site: "s9", User: "u1"}}, "latency[s9][u1]"},
		{"duplicate edge", sites, users, []placement.LatencyEdge{edge, edge}, "latency[s1][u1]"},
		{"negative latency", sites, users, []placement.LatencyEdge{{Site: "s1", User: "u1", Latency: -2}}, "latency[s1][u1]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := placement.NewProblem("p", tc.sites, tc.users, tc.edges)
			var ce *placement.ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestLimitTable(t *testing.T) {
	barred := &placement.InfeasiblePairError{Site: "s2", User: "u1", Latency: 60, Budget: -11}
	table := placement.NewLimitTable([]placement.ArrivalRateLimit{
		{Pair: placement.Pair{Site: "s1", User: "u1"}, Limit: 0.3},
		{Pair: placement.Pair{Site: "s1", User: "u2"}, Limit: 0.5},
		{Pair: placement.Pair{Site: "s2", User: "u1"}, Err: barred},
	})

	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 0.5, table.MaxFeasibleLimit("s1"))
	assert.Equal(t, 0.0, table.MaxFeasibleLimit("s2"))
	got, ok := table.Get("s1", "u2")
	require.True(t, ok)
	assert.True(t, got.Feasible())
	require.Len(t, table.Infeasible(), 1)
	assert.Same(t, barred, table.Infeasible()[0].Err)
	assert.Contains(t, barred.Error(), "(s2, u1)")
}

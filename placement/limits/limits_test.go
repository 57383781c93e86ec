package limits_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/slo-placement/placement"
	"github.com/inference-sim/slo-placement/placement/internal/testutil"
	"github.com/inference-sim/slo-placement/placement/limits"
	"github.com/inference-sim/slo-placement/placement/queueing"
	"github.com/inference-sim/slo-placement/placement/rootfind"
)

func TestForPair_KnownLimits(t *testing.T) {
	params := testutil.Params(placement.MinimizeInstances)
	tests := []struct {
		latency float64
		want    float64
	}{
		{0, 0.9540520074671573},
		{10, 0.9426017139305879},
		{45, 0.5607832965122593},
		{48, 0.13515728435879},
		{49, 0.01}, // zero queueing budget: P(W <= 0) = 1 - ρ
	}
	for _, tc := range tests {
		limit, err := limits.ForPair(placement.Pair{Site: "s", User: "u"}, tc.latency, params, rootfind.DefaultSettings())
		require.NoError(t, err, "latency=%v", tc.latency)
		require.True(t, limit.Feasible())
		assert.InDelta(t, tc.want, limit.Limit, 1e-9, "latency=%v", tc.latency)
	}
}

func TestForPair_LimitMeetsConfidence(t *testing.T) {
	// GIVEN the limits of a range of latencies
	params := testutil.Params(placement.MinimizeInstances)
	for _, latency := range []float64{0, 5, 20, 35, 47.5, 48.9} {
		limit, err := limits.ForPair(placement.Pair{Site: "s", User: "u"}, latency, params, rootfind.DefaultSettings())
		require.NoError(t, err)

		// THEN λ* lies in [0, μ) and the SLO probability at λ* is θ
		assert.GreaterOrEqual(t, limit.Limit, 0.0)
		assert.Less(t, limit.Limit, params.ServiceRate)
		p, err := queueing.WaitingTimeProbability(limit.Budget, limit.Limit, params.ServiceRate)
		require.NoError(t, err)
		assert.InDelta(t, params.Theta, p, 1e-8, "latency=%v", latency)
		assert.GreaterOrEqual(t, p, params.Theta, "limit must sit on the feasible side")
	}
}

func TestForPair_StrictlyDecreasingInLatency(t *testing.T) {
	params := testutil.Params(placement.MinimizeInstances)
	prev := params.ServiceRate
	for _, latency := range []float64{0, 1, 5, 10, 20, 30, 40, 45, 47, 48, 48.5, 49} {
		limit, err := limits.ForPair(placement.Pair{Site: "s", User: "u"}, latency, params, rootfind.DefaultSettings())
		require.NoError(t, err)
		assert.Less(t, limit.Limit, prev, "latency=%v", latency)
		prev = limit.Limit
	}
}

func TestForPair_LatencyBeyondBudgetIsInfeasible(t *testing.T) {
	params := testutil.Params(placement.MinimizeInstances)
	limit, err := limits.ForPair(placement.Pair{Site: "s3", User: "u1"}, 49.5, params, rootfind.DefaultSettings())
	require.NoError(t, err)
	require.False(t, limit.Feasible())
	assert.Equal(t, "s3", limit.Err.Site)
	assert.Equal(t, "u1", limit.Err.User)
	assert.InDelta(t, -0.5, limit.Err.Budget, 1e-12)
}

func TestForPair_ExhaustedIterationsIsNonConvergence(t *testing.T) {
	params := testutil.Params(placement.MinimizeInstances)
	s := rootfind.Settings{XTol: 0, RTol: 0, MaxIterations: 1}
	_, err := limits.ForPair(placement.Pair{Site: "s", User: "u"}, 10, params, s)
	var nc *placement.NumericalNonConvergenceError
	require.True(t, errors.As(err, &nc), "got %v", err)
	assert.ErrorIs(t, err, rootfind.ErrMaxIterations)
}

func TestSolve_CoversEveryPairInProblemOrder(t *testing.T) {
	problem := testutil.TwoSiteProblem(t)
	params := testutil.Params(placement.MinimizeInstances)

	table, err := limits.Solve(context.Background(), problem, params, limits.Options{Workers: 3})
	require.NoError(t, err)
	require.Equal(t, len(problem.Pairs()), table.Len())
	for i, l := range table.All() {
		assert.Equal(t, problem.Pairs()[i], l.Pair)
		assert.True(t, l.Feasible())
	}
	s2u2, ok := table.Get("s2", "u2")
	require.True(t, ok)
	assert.InDelta(t, 0.21319805438219167, s2u2.Limit, 1e-9)
	assert.Equal(t, s2u2.Limit, table.MaxFeasibleLimit("s2"))
}

func TestSolve_WorkerCountDoesNotChangeResult(t *testing.T) {
	problem := testutil.WithUnreachableSite(t)
	params := testutil.Params(placement.MinimizeInstances)

	serial, err := limits.Solve(context.Background(), problem, params, limits.Options{Workers: 1})
	require.NoError(t, err)
	parallel, err := limits.Solve(context.Background(), problem, params, limits.Options{Workers: 8})
	require.NoError(t, err)
	assert.Equal(t, serial.All(), parallel.All())
}

func TestSolve_InfeasiblePairBarredOrFatal(t *testing.T) {
	problem := testutil.WithUnreachableSite(t)
	params := testutil.Params(placement.MinimizeInstances)

	// Default: the pair is recorded and the run continues.
	table, err := limits.Solve(context.Background(), problem, params, limits.DefaultOptions())
	require.NoError(t, err)
	infeasible := table.Infeasible()
	require.Len(t, infeasible, 1)
	assert.Equal(t, placement.Pair{Site: "s3", User: "u1"}, infeasible[0].Pair)

	// Strict: the pair aborts the run with InfeasiblePairError.
	opts := limits.DefaultOptions()
	opts.StrictPairs = true
	_, err = limits.Solve(context.Background(), problem, params, opts)
	var pe *placement.InfeasiblePairError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "s3", pe.Site)
}

func TestSolve_RejectsInvalidParameters(t *testing.T) {
	problem := testutil.TwoSiteProblem(t)
	params := testutil.Params(placement.MinimizeInstances)
	params.Theta = 1
	_, err := limits.Solve(context.Background(), problem, params, limits.DefaultOptions())
	var ce *placement.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestPercentile_InvertsWaitingTime(t *testing.T) {
	params := testutil.Params(placement.MinimizeInstances)
	const latency, lambda = 10.0, 0.6

	r, err := limits.Percentile(0.99, latency, lambda, params)
	require.NoError(t, err)
	assert.Greater(t, r, latency+params.ServiceTime())

	p, err := queueing.WaitingTimeProbability(r-latency-params.ServiceTime(), lambda, params.ServiceRate)
	require.NoError(t, err)
	assert.InDelta(t, 0.99, p, 1e-8)
}

func TestPercentile_IdleInstanceAnswersAtFloor(t *testing.T) {
	params := testutil.Params(placement.MinimizeInstances)
	// With ρ = 0.005 the server is idle with probability 0.995 >= 0.99.
	r, err := limits.Percentile(0.99, 3, 0.005, params)
	require.NoError(t, err)
	assert.InDelta(t, 3+params.ServiceTime(), r, 1e-12)
}

package bnb_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/slo-placement/placement"
	"github.com/inference-sim/slo-placement/placement/internal/testutil"
	"github.com/inference-sim/slo-placement/placement/limits"
	"github.com/inference-sim/slo-placement/placement/milp"
	"github.com/inference-sim/slo-placement/placement/milp/bnb"
)

func knapsack() *milp.Model {
	m := milp.NewModel("knapsack")
	values := []float64{10, 13, 7, 8}
	weights := []float64{3, 4, 2, 3}
	var obj, load []milp.Term
	for i := range values {
		v := m.AddVariable("x", milp.Binary, 0, 1)
		obj = append(obj, milp.Term{Var: v, Coef: values[i]})
		load = append(load, milp.Term{Var: v, Coef: weights[i]})
	}
	m.AddConstraint("capacity", milp.LessEqual, 7, load...)
	m.SetObjective(milp.Maximize, obj...)
	return m
}

func TestSolve_Knapsack(t *testing.T) {
	// GIVEN a 0/1 knapsack whose LP relaxation is fractional
	m := knapsack()

	// WHEN solved
	sol, err := bnb.New().Solve(context.Background(), m)

	// THEN the integral optimum picks the first two items
	require.NoError(t, err)
	require.Equal(t, milp.Optimal, sol.Status)
	assert.InDelta(t, 23, sol.Objective, 1e-9)
	assert.Equal(t, []float64{1, 1, 0, 0}, sol.Values)
	assert.NoError(t, m.CheckFeasible(sol.Values, 1e-9))
	assert.Greater(t, sol.Nodes, 1)
}

func TestSolve_RoundsUpIntegerCover(t *testing.T) {
	m := milp.NewModel("cover")
	x := m.AddVariable("x", milp.Integer, 0, 10)
	y := m.AddVariable("y", milp.Integer, 0, 10)
	m.AddConstraint("demand", milp.GreaterEqual, 3, milp.Term{Var: x, Coef: 2}, milp.Term{Var: y, Coef: 2})
	m.SetObjective(milp.Minimize, milp.Term{Var: x, Coef: 1}, milp.Term{Var: y, Coef: 1})

	sol, err := bnb.New().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, milp.Optimal, sol.Status)
	assert.InDelta(t, 2, sol.Objective, 1e-9)
	assert.NoError(t, m.CheckFeasible(sol.Values, 1e-9))
}

func TestSolve_ContinuousVariablesKeepFractions(t *testing.T) {
	m := milp.NewModel("mixed")
	x := m.AddVariable("x", milp.Continuous, 0.5, math.Inf(1))
	n := m.AddVariable("n", milp.Integer, 0, 5)
	m.AddConstraint("link", milp.LessEqual, 0, milp.Term{Var: x, Coef: 1}, milp.Term{Var: n, Coef: -0.4})
	m.SetObjective(milp.Minimize, milp.Term{Var: x, Coef: 1}, milp.Term{Var: n, Coef: 1})

	sol, err := bnb.New().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, milp.Optimal, sol.Status)
	assert.Equal(t, 2.0, sol.Values[n])
	assert.InDelta(t, 0.5, sol.Values[x], 1e-9)
	assert.InDelta(t, 2.5, sol.Objective, 1e-9)
}

func TestSolve_Infeasible(t *testing.T) {
	tests := []struct {
		name  string
		build func() *milp.Model
	}{
		{
			name: "bound conflict",
			build: func() *milp.Model {
				m := milp.NewModel("bounds")
				x := m.AddVariable("x", milp.Binary, 0, 1)
				m.AddConstraint("too-big", milp.GreaterEqual, 2, milp.Term{Var: x, Coef: 1})
				return m
			},
		},
		{
			name: "no integral point",
			build: func() *milp.Model {
				m := milp.NewModel("parity")
				x := m.AddVariable("x", milp.Integer, 0, 10)
				m.AddConstraint("half", milp.Equal, 1, milp.Term{Var: x, Coef: 2})
				return m
			},
		},
		{
			name: "empty row",
			build: func() *milp.Model {
				m := milp.NewModel("empty")
				m.AddVariable("x", milp.Continuous, 0, 1)
				m.AddConstraint("zero", milp.GreaterEqual, 1)
				return m
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sol, err := bnb.New().Solve(context.Background(), tc.build())
			require.NoError(t, err)
			assert.Equal(t, milp.Infeasible, sol.Status)
			assert.Nil(t, sol.Values)
		})
	}
}

func TestSolve_Unbounded(t *testing.T) {
	m := milp.NewModel("ray")
	x := m.AddVariable("x", milp.Continuous, 0, math.Inf(1))
	y := m.AddVariable("y", milp.Continuous, 0, 3)
	m.AddConstraint("x>=y", milp.GreaterEqual, 0, milp.Term{Var: x, Coef: 1}, milp.Term{Var: y, Coef: -1})
	m.SetObjective(milp.Minimize, milp.Term{Var: x, Coef: -1})

	sol, err := bnb.New().Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, milp.Unbounded, sol.Status)
}

func TestSolve_RejectsInvalidModel(t *testing.T) {
	m := milp.NewModel("bad")
	m.AddVariable("x", milp.Continuous, 0, 1)
	m.AddConstraint("dangling", milp.LessEqual, 1, milp.Term{Var: 3, Coef: 1})

	_, err := bnb.New().Solve(context.Background(), m)
	assert.Error(t, err)
}

func TestSolve_NodeLimit(t *testing.T) {
	s := bnb.New()
	s.MaxNodes = 1
	_, err := s.Solve(context.Background(), knapsack())
	assert.True(t, errors.Is(err, bnb.ErrNodeLimit), "got %v", err)
}

func TestSolve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bnb.New().Solve(ctx, knapsack())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolve_Deterministic(t *testing.T) {
	// GIVEN a model with several optimal vertices
	build := func() *milp.Model {
		m := milp.NewModel("ties")
		var terms []milp.Term
		for i := 0; i < 4; i++ {
			terms = append(terms, milp.Term{Var: m.AddVariable("x", milp.Binary, 0, 1), Coef: 1})
		}
		m.AddConstraint("pick-two", milp.Equal, 2, terms...)
		m.SetObjective(milp.Minimize, terms...)
		return m
	}

	// WHEN solved twice
	a, err := bnb.New().Solve(context.Background(), build())
	require.NoError(t, err)
	b, err := bnb.New().Solve(context.Background(), build())
	require.NoError(t, err)

	// THEN both runs agree exactly
	assert.Equal(t, a, b)
}

func TestSolve_RedundantEqualitiesAndFixedColumns(t *testing.T) {
	// GIVEN equality rows that repeat each other and a column fixed by its
	// bounds
	m := milp.NewModel("redundant")
	x := m.AddVariable("x", milp.Integer, 0, 4)
	y := m.AddVariable("y", milp.Continuous, 0, 4)
	z := m.AddVariable("z", milp.Continuous, 1, 1)
	sum := []milp.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}, {Var: z, Coef: 1}}
	m.AddConstraint("sum", milp.Equal, 3.5, sum...)
	m.AddConstraint("sum-again", milp.Equal, 3.5, sum...)
	m.AddConstraint("sum-doubled", milp.Equal, 7,
		milp.Term{Var: x, Coef: 2}, milp.Term{Var: y, Coef: 2}, milp.Term{Var: z, Coef: 2})
	m.AddConstraint("pinned", milp.Equal, 1, milp.Term{Var: z, Coef: 1})
	m.SetObjective(milp.Minimize, milp.Term{Var: x, Coef: 1}, milp.Term{Var: y, Coef: 3})

	// WHEN solved
	sol, err := bnb.New().Solve(context.Background(), m)

	// THEN the dependent rows do not trouble the relaxation
	require.NoError(t, err)
	require.Equal(t, milp.Optimal, sol.Status)
	assert.Equal(t, 2.0, sol.Values[x])
	assert.InDelta(t, 0.5, sol.Values[y], 1e-9)
	assert.InDelta(t, 3.5, sol.Objective, 1e-9)
	assert.NoError(t, m.CheckFeasible(sol.Values, 1e-9))
}

func TestSolve_InconsistentRedundantRows(t *testing.T) {
	m := milp.NewModel("clash")
	x := m.AddVariable("x", milp.Continuous, 0, 10)
	y := m.AddVariable("y", milp.Continuous, 0, 10)
	m.AddConstraint("a", milp.Equal, 2, milp.Term{Var: x, Coef: 1}, milp.Term{Var: y, Coef: 1})
	m.AddConstraint("b", milp.Equal, 3, milp.Term{Var: x, Coef: 1}, milp.Term{Var: y, Coef: 1})

	sol, err := bnb.New().Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, milp.Infeasible, sol.Status)
}

func TestSolve_PlacementModels(t *testing.T) {
	scenarios := map[string]func(testing.TB) *placement.Problem{
		"two-site":         testutil.TwoSiteProblem,
		"unreachable-site": testutil.WithUnreachableSite,
	}
	for name, build := range scenarios {
		for _, obj := range []placement.Objective{placement.MinimizeOpenSites, placement.MinimizeInstances, placement.MinimizeLatency} {
			t.Run(name+"/"+string(obj), func(t *testing.T) {
				// GIVEN a placement model with barred pairs and equality
				// chains over the instance count
				problem := build(t)
				params := testutil.Params(obj)
				table, err := limits.Solve(context.Background(), problem, params, limits.DefaultOptions())
				require.NoError(t, err)
				model, err := placement.BuildModel(problem, params, table)
				require.NoError(t, err)

				// WHEN solved
				sol, err := bnb.New().Solve(context.Background(), model.MILP)

				// THEN the answer is optimal, feasible and decodes cleanly
				require.NoError(t, err)
				require.Equal(t, milp.Optimal, sol.Status)
				require.NoError(t, model.MILP.CheckFeasible(sol.Values, 1e-6))
				decision, err := model.Decode(sol)
				require.NoError(t, err)
				assert.NoError(t, decision.Verify(problem, params, table))
			})
		}
	}
}

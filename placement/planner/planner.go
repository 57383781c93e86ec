// Package planner wires the placement stages into one blocking run:
// validate, compute arrival-rate limits, build the MILP, solve, decode and
// verify. Any stage error aborts the run and no partial plan is returned.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/slo-placement/placement"
	"github.com/inference-sim/slo-placement/placement/limits"
	"github.com/inference-sim/slo-placement/placement/metrics"
	"github.com/inference-sim/slo-placement/placement/milp"
)

// Planner runs planning requests against a solver.
type Planner struct {
	solver   milp.Solver
	limits   limits.Options
	recorder *metrics.Recorder
}

// New returns a Planner. recorder may be nil.
func New(solver milp.Solver, opts limits.Options, recorder *metrics.Recorder) *Planner {
	return &Planner{solver: solver, limits: opts, recorder: recorder}
}

// Plan computes an optimal placement for problem under params.
func (p *Planner) Plan(ctx context.Context, problem *placement.Problem, params placement.GlobalParameters) (*placement.Plan, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	plan := &placement.Plan{Problem: problem, Params: params}
	logrus.Infof("planning %q: %d sites, %d users, objective %s, theta %g",
		problem.Name, len(problem.Sites), len(problem.Users), params.Objective, params.Theta)

	start := time.Now()
	table, err := limits.Solve(ctx, problem, params, p.limits)
	if err != nil {
		return nil, fmt.Errorf("computing arrival-rate limits: %w", err)
	}
	plan.Limits = table
	plan.Stats.LimitsElapsed = time.Since(start)
	p.recorder.ObserveStage("limits", plan.Stats.LimitsElapsed)
	p.recorder.ObserveLimits(table)
	logrus.Infof("arrival-rate limits: %d pairs, %d barred, %v",
		table.Len(), len(table.Infeasible()), plan.Stats.LimitsElapsed)

	start = time.Now()
	model, err := placement.BuildModel(problem, params, table)
	if err != nil {
		return nil, err
	}
	p.recorder.ObserveStage("build", time.Since(start))
	plan.Stats.Variables = len(model.MILP.Variables)
	plan.Stats.Constraints = len(model.MILP.Constraints)

	start = time.Now()
	sol, err := p.solver.Solve(ctx, model.MILP)
	if err != nil {
		return nil, fmt.Errorf("solving placement model: %w", err)
	}
	plan.Stats.SolveElapsed = time.Since(start)
	plan.Stats.Nodes = sol.Nodes
	p.recorder.ObserveStage("solve", plan.Stats.SolveElapsed)
	p.recorder.ObserveModel(plan.Stats)
	logrus.Infof("solver: %s after %d nodes (%d variables, %d constraints), %v",
		sol.Status, sol.Nodes, plan.Stats.Variables, plan.Stats.Constraints, plan.Stats.SolveElapsed)

	decision, err := model.Decode(sol)
	if err != nil {
		return nil, err
	}
	if err := decision.Verify(problem, params, table); err != nil {
		return nil, fmt.Errorf("solver returned an invalid placement: %w", err)
	}
	plan.Decision = decision
	p.recorder.ObserveDecision(decision, params.ServiceRate)
	logrus.Infof("placement: %d open sites, %d instances, objective %g",
		decision.OpenSites(), decision.TotalInstances(), decision.ObjectiveValue)
	return plan, nil
}

// Package placement plans where to run instances of a service so that every
// user meets a response-time SLO with a given confidence θ.
//
// # Reading Guide
//
// Start with these files to understand the planning data:
//   - problem.go: sites, users and the site-to-user latency matrix
//   - config.go: global parameters (service rate, SLO, θ, objective)
//   - model.go: the mixed-integer program built from a problem
//   - decision.go: the decoded placement and its independent verification
//
// # Architecture
//
// This package holds the shared types and the model builder; the stages
// live in sub-packages:
//   - placement/queueing/: P(W <= t) for one FIFO instance, in high precision
//   - placement/rootfind/: bracketing scalar root finding
//   - placement/limits/: per-pair arrival-rate limits, computed in parallel
//   - placement/milp/: solver-neutral MILP description; milp/bnb solves it
//   - placement/planner/: limits, model, solve, decode and verify in one run
//   - placement/report/: table and YAML rendering of plans and limits
//   - placement/simulate/: discrete-event replay of a plan
//   - placement/metrics/: prometheus instrumentation of a run
//
// Infeasible (site, user) pairs are barred rather than fatal unless strict
// pair evaluation is requested.
package placement

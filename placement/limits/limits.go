// Package limits derives, for every (site, user) pair, the largest
// per-instance arrival rate that keeps the user's response time within the
// SLO at the required confidence.
package limits

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/slo-placement/placement"
	"github.com/inference-sim/slo-placement/placement/queueing"
	"github.com/inference-sim/slo-placement/placement/rootfind"
)

// Options tune the limit computation.
type Options struct {
	Workers     int               // concurrent pair evaluations; <= 0 means GOMAXPROCS
	RootFinding rootfind.Settings // zero value means rootfind.DefaultSettings
	StrictPairs bool              // abort on the first infeasible pair instead of barring it
}

// DefaultOptions returns Options with GOMAXPROCS workers and default
// root-finding tolerances.
func DefaultOptions() Options {
	return Options{Workers: runtime.GOMAXPROCS(0), RootFinding: rootfind.DefaultSettings()}
}

func (o Options) settings() rootfind.Settings {
	if o.RootFinding.MaxIterations <= 0 {
		return rootfind.DefaultSettings()
	}
	return o.RootFinding
}

// Solve computes the limit of every pair of the problem. Pairs are
// independent and are evaluated concurrently; the table lists them in
// problem order regardless of completion order.
//
// Infeasible pairs are recorded in the table unless opts.StrictPairs is set,
// in which case the first one is returned as an error. Numerical failures
// always abort.
func Solve(ctx context.Context, problem *placement.Problem, params placement.GlobalParameters, opts Options) (*placement.LimitTable, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	pairs := problem.Pairs()
	results := make([]placement.ArrivalRateLimit, len(pairs))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	settings := opts.settings()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			limit, err := ForPair(pair, problem.Latency(pair.Site, pair.User), params, settings)
			if err != nil {
				return err
			}
			if !limit.Feasible() {
				if opts.StrictPairs {
					return limit.Err
				}
				logrus.Warnf("barring %v: %v", pair, limit.Err)
			} else {
				logrus.Debugf("limit %v: latency=%g budget=%g lambda*=%.9g (%d iterations)",
					pair, limit.Latency, limit.Budget, limit.Limit, limit.Iterations)
			}
			results[i] = limit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return placement.NewLimitTable(results), nil
}

// ForPair computes λ* for a single pair: the root in [0, μ) of
// P(W <= SLO - latency - 1/μ; λ) - θ. The returned limit is the end of the
// final bracket on the feasible side, so the SLO holds at λ* itself.
func ForPair(pair placement.Pair, latency float64, params placement.GlobalParameters, s rootfind.Settings) (placement.ArrivalRateLimit, error) {
	limit := placement.ArrivalRateLimit{
		Pair:    pair,
		Latency: latency,
		Budget:  params.QueueingBudget(latency),
	}
	infeasible := &placement.InfeasiblePairError{
		Site: pair.Site, User: pair.User, Latency: latency, Budget: limit.Budget,
	}
	if limit.Budget < 0 {
		limit.Err = infeasible
		return limit, nil
	}

	mu := params.ServiceRate
	f := func(lambda float64) (float64, error) {
		p, err := queueing.WaitingTimeProbability(limit.Budget, lambda, mu)
		return p - params.Theta, err
	}
	res, err := rootfind.Brent(f, 0, mu, s)
	if err != nil {
		var be *rootfind.BracketError
		if errors.As(err, &be) && be.FA < 0 {
			// θ is out of reach even without contention.
			limit.Err = infeasible
			return limit, nil
		}
		return limit, &placement.NumericalNonConvergenceError{
			Site: pair.Site, User: pair.User, Iterations: res.Iterations, Cause: err,
		}
	}
	lambda, _ := res.NonNegativeEnd()
	if lambda >= mu {
		return limit, &placement.NumericalNonConvergenceError{
			Site: pair.Site, User: pair.User, Iterations: res.Iterations,
			Cause: fmt.Errorf("limit %g not below service rate %g", lambda, mu),
		}
	}
	limit.Limit = lambda
	limit.Iterations = res.Iterations
	return limit, nil
}

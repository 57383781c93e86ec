// Package bnb solves milp models by depth-first branch-and-bound over
// bounded-variable simplex relaxations kept in gonum dense matrices.
package bnb

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/slo-placement/placement/milp"
)

// ErrNodeLimit is returned when the search exceeds Solver.MaxNodes.
var ErrNodeLimit = errors.New("bnb: node limit reached")

// Solver is a deterministic branch-and-bound engine. The zero value is not
// usable; call New.
type Solver struct {
	Tolerance            float64 // reduced-cost tolerance; also the width below which a column counts as fixed
	IntegralityTolerance float64 // distance from an integer still treated as integral
	MaxNodes             int
}

// New returns a Solver with default tolerances and a node budget of 200000.
func New() *Solver {
	return &Solver{Tolerance: 1e-9, IntegralityTolerance: 1e-6, MaxNodes: 200000}
}

type node struct {
	lower, upper []float64
}

// Solve runs branch-and-bound over m. Nodes are explored depth first, the
// child nearest the relaxed value first, branching on the most fractional
// variable with the lowest index, so identical models give identical
// answers.
func (s *Solver) Solve(ctx context.Context, m *milp.Model) (*milp.Solution, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	n := len(m.Variables)
	sign := 1.0
	if m.Objective.Direction == milp.Maximize {
		sign = -1
	}
	cost := make([]float64, n)
	for _, t := range m.Objective.Terms {
		cost[t.Var] += sign * t.Coef
	}

	root := node{lower: make([]float64, n), upper: make([]float64, n)}
	for i, v := range m.Variables {
		root.lower[i], root.upper[i] = v.Lower, v.Upper
		if v.IsIntegral() {
			root.lower[i] = math.Ceil(v.Lower - s.IntegralityTolerance)
			root.upper[i] = math.Floor(v.Upper + s.IntegralityTolerance)
		}
	}

	var (
		incumbent []float64
		best      = math.Inf(1)
		stack     = []node{root}
		nodes     int
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nodes++
		if s.MaxNodes > 0 && nodes > s.MaxNodes {
			return nil, fmt.Errorf("%w after %d nodes", ErrNodeLimit, s.MaxNodes)
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		obj, x, status, err := s.relax(m, cost, nd.lower, nd.upper)
		if err != nil {
			return nil, err
		}
		switch status {
		case milp.Infeasible:
			continue
		case milp.Unbounded:
			if nodes == 1 {
				return &milp.Solution{Status: milp.Unbounded, Nodes: nodes}, nil
			}
			return nil, fmt.Errorf("bnb: relaxation unbounded below a bounded root")
		}
		if obj >= best-1e-9*math.Max(1, math.Abs(best)) {
			continue
		}

		k := s.branchVariable(m, x)
		if k < 0 {
			best, incumbent = obj, x
			logrus.Debugf("bnb: incumbent %g at node %d", sign*obj, nodes)
			continue
		}

		floor := math.Floor(x[k])
		down := node{lower: clone(nd.lower), upper: clone(nd.upper)}
		down.upper[k] = floor
		up := node{lower: clone(nd.lower), upper: clone(nd.upper)}
		up.lower[k] = floor + 1
		if x[k]-floor >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	if incumbent == nil {
		return &milp.Solution{Status: milp.Infeasible, Nodes: nodes}, nil
	}
	for i, v := range m.Variables {
		if v.IsIntegral() {
			incumbent[i] = math.Round(incumbent[i])
		}
	}
	incumbent = s.polish(m, cost, incumbent)
	return &milp.Solution{
		Status:    milp.Optimal,
		Objective: m.Evaluate(incumbent),
		Values:    incumbent,
		Nodes:     nodes,
	}, nil
}

// branchVariable returns the integral variable furthest from an integer,
// or -1 when x is integral.
func (s *Solver) branchVariable(m *milp.Model, x []float64) int {
	k, worst := -1, s.IntegralityTolerance
	for i, v := range m.Variables {
		if !v.IsIntegral() {
			continue
		}
		frac := math.Abs(x[i] - math.Round(x[i]))
		if frac > worst {
			k, worst = i, frac
		}
	}
	return k
}

// relax solves the linear relaxation of m within the node bounds.
//
// Columns whose bounds coincide are fixed and folded into the right-hand
// sides. The remaining columns are shifted to x = lower + x' with
// 0 <= x' <= upper - lower and handed to the bounded simplex, so bounds
// never become rows. Redundant or dependent rows are absorbed by
// artificial columns pinned at zero after phase one.
func (s *Solver) relax(m *milp.Model, cost, lower, upper []float64) (float64, []float64, milp.Status, error) {
	n := len(m.Variables)
	col := make([]int, n) // tableau column of a free variable, -1 when fixed
	var free []int
	for i := range m.Variables {
		if lower[i] > upper[i]+s.IntegralityTolerance {
			return 0, nil, milp.Infeasible, nil
		}
		if math.IsInf(lower[i], -1) {
			return 0, nil, 0, fmt.Errorf("bnb: variable %s has no finite lower bound", m.Variables[i].Name)
		}
		col[i] = -1
		if upper[i]-lower[i] > s.Tolerance {
			col[i] = len(free)
			free = append(free, i)
		}
	}

	var rows []row
	for _, c := range m.Constraints {
		coef := make([]float64, len(free))
		rhs := c.RHS
		nonzero := false
		for _, t := range c.Terms {
			rhs -= t.Coef * lower[t.Var]
			if j := col[t.Var]; j >= 0 {
				coef[j] += t.Coef
			}
		}
		for _, a := range coef {
			if a != 0 {
				nonzero = true
				break
			}
		}
		if !nonzero {
			if !trivial(c.Sense, rhs, 1e-9*math.Max(1, math.Abs(c.RHS))) {
				return 0, nil, milp.Infeasible, nil
			}
			continue
		}
		rows = append(rows, row{coef: coef, sense: c.Sense, rhs: rhs})
	}

	x := clone(lower)
	span := make([]float64, len(free))
	freeCost := make([]float64, len(free))
	for j, i := range free {
		span[j] = upper[i] - lower[i]
		freeCost[j] = cost[i]
	}
	var shifted []float64
	if len(rows) == 0 {
		shifted = make([]float64, len(free))
		for j := range free {
			if freeCost[j] < 0 {
				if math.IsInf(span[j], 1) {
					return 0, nil, milp.Unbounded, nil
				}
				shifted[j] = span[j]
			}
		}
	} else {
		tb := newTableau(rows, span, s.Tolerance)
		status, err := tb.solve(freeCost)
		if err != nil {
			return 0, nil, 0, fmt.Errorf("bnb: solving relaxation of %s: %w", m.Name, err)
		}
		if status != milp.Optimal {
			return 0, nil, status, nil
		}
		shifted = tb.values()
	}
	for j, i := range free {
		x[i] = lower[i] + shifted[j]
	}
	return dotDense(cost, x), x, milp.Optimal, nil
}

// polish re-solves the relaxation with every integral variable fixed at
// its rounded value so the continuous variables are consistent with the
// rounding. The unpolished point is kept if the re-solve fails.
func (s *Solver) polish(m *milp.Model, cost, x []float64) []float64 {
	lower, upper := clone(x), clone(x)
	for i, v := range m.Variables {
		if !v.IsIntegral() {
			lower[i], upper[i] = v.Lower, v.Upper
		}
	}
	_, y, status, err := s.relax(m, cost, lower, upper)
	if err != nil || status != milp.Optimal {
		return x
	}
	return y
}

func trivial(sense milp.Sense, rhs, tol float64) bool {
	switch sense {
	case milp.LessEqual:
		return 0 <= rhs+tol
	case milp.GreaterEqual:
		return 0 >= rhs-tol
	default:
		return math.Abs(rhs) <= tol
	}
}

func dotDense(c, x []float64) float64 {
	var s float64
	for i := range c {
		s += c[i] * x[i]
	}
	return s
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

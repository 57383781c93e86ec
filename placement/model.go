package placement

import (
	"fmt"
	"math"

	"github.com/inference-sim/slo-placement/placement/milp"
	"github.com/inference-sim/slo-placement/placement/queueing"
)

// tangentCuts is the number of tangent lines approximating the mean
// queueing delay from below in the latency objective.
const tangentCuts = 16

// Model is the placement MILP together with the variable indices needed to
// read a PlacementDecision back out of a solution.
type Model struct {
	MILP *milp.Model

	problem *Problem
	params  GlobalParameters

	open      []int // y[s]
	instances []int // n[s]
	assign    map[Pair]int
}

// BuildModel turns a problem and its arrival-rate limits into a pure MILP.
//
// The product "per-instance rate × instance count" is linearised by
// discretising the instance count: z[s,k] selects exactly one k in
// 1..capacity for an open site and w[s,k] carries the per-instance rate for
// that k, so a[s] = Σ k·w[s,k] holds exactly. The SLO bound on assigned
// pairs is the big-M form l[s] + (μ - λ*)·x[s,u] <= μ.
func BuildModel(problem *Problem, params GlobalParameters, limits *LimitTable) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if limits == nil || limits.Len() != len(problem.Sites)*len(problem.Users) {
		return nil, fmt.Errorf("building model: limit table does not cover every (site, user) pair")
	}

	mu := params.ServiceRate
	m := &Model{
		MILP:      milp.NewModel(problem.Name),
		problem:   problem,
		params:    params,
		open:      make([]int, len(problem.Sites)),
		instances: make([]int, len(problem.Sites)),
		assign:    make(map[Pair]int, len(problem.Sites)*len(problem.Users)),
	}
	lp := m.MILP
	inf := math.Inf(1)

	flow := make(map[Pair]int, len(m.assign))
	rate := make([]int, len(problem.Sites))
	perInstance := make([]int, len(problem.Sites))
	for i, s := range problem.Sites {
		m.open[i] = lp.AddVariable("y["+s.ID+"]", milp.Binary, 0, 1)
		m.instances[i] = lp.AddVariable("n["+s.ID+"]", milp.Integer, 0, float64(s.Capacity))
		rate[i] = lp.AddVariable("a["+s.ID+"]", milp.Continuous, 0, inf)
		perInstance[i] = lp.AddVariable("l["+s.ID+"]", milp.Continuous, 0, mu)
		for _, u := range problem.Users {
			pair := Pair{Site: s.ID, User: u.ID}
			limit, ok := limits.Get(s.ID, u.ID)
			if !ok {
				return nil, fmt.Errorf("building model: no arrival-rate limit for pair %s", pair)
			}
			upper := 1.0
			if !limit.Feasible() {
				upper = 0
			}
			m.assign[pair] = lp.AddVariable("x"+pair.String(), milp.Binary, 0, upper)
			flow[pair] = lp.AddVariable("f"+pair.String(), milp.Continuous, 0, u.ArrivalRate)
		}
	}

	// Single assignment.
	for _, u := range problem.Users {
		terms := make([]milp.Term, 0, len(problem.Sites))
		for _, s := range problem.Sites {
			terms = append(terms, milp.Term{Var: m.assign[Pair{Site: s.ID, User: u.ID}], Coef: 1})
		}
		lp.AddConstraint("assign["+u.ID+"]", milp.Equal, 1, terms...)
	}

	for i, s := range problem.Sites {
		y, n := m.open[i], m.instances[i]
		lp.AddConstraint("capacity["+s.ID+"]", milp.LessEqual, 0,
			milp.Term{Var: n, Coef: 1}, milp.Term{Var: y, Coef: -float64(s.Capacity)})
		lp.AddConstraint("footprint["+s.ID+"]", milp.GreaterEqual, 0,
			milp.Term{Var: n, Coef: 1}, milp.Term{Var: y, Coef: -1})

		count := lp.AddVariable("u["+s.ID+"]", milp.Integer, 0, float64(len(problem.Users)))
		users := []milp.Term{{Var: count, Coef: 1}}
		siteRate := []milp.Term{{Var: rate[i], Coef: 1}}
		for _, u := range problem.Users {
			pair := Pair{Site: s.ID, User: u.ID}
			x := m.assign[pair]
			lp.AddConstraint("open"+pair.String(), milp.LessEqual, 0,
				milp.Term{Var: x, Coef: 1}, milp.Term{Var: y, Coef: -1})
			lp.AddConstraint("flow"+pair.String(), milp.Equal, 0,
				milp.Term{Var: flow[pair], Coef: 1}, milp.Term{Var: x, Coef: -u.ArrivalRate})
			users = append(users, milp.Term{Var: x, Coef: -1})
			siteRate = append(siteRate, milp.Term{Var: flow[pair], Coef: -1})
		}
		lp.AddConstraint("users["+s.ID+"]", milp.Equal, 0, users...)
		lp.AddConstraint("rate["+s.ID+"]", milp.Equal, 0, siteRate...)

		selected := []milp.Term{{Var: y, Coef: -1}}
		instances := []milp.Term{{Var: n, Coef: 1}}
		shares := []milp.Term{{Var: perInstance[i], Coef: 1}}
		split := []milp.Term{{Var: rate[i], Coef: 1}}
		for k := 1; k <= s.Capacity; k++ {
			name := fmt.Sprintf("[%s,%d]", s.ID, k)
			z := lp.AddVariable("z"+name, milp.Binary, 0, 1)
			w := lp.AddVariable("w"+name, milp.Continuous, 0, mu)
			lp.AddConstraint("link"+name, milp.LessEqual, 0,
				milp.Term{Var: w, Coef: 1}, milp.Term{Var: z, Coef: -mu})
			selected = append(selected, milp.Term{Var: z, Coef: 1})
			instances = append(instances, milp.Term{Var: z, Coef: -float64(k)})
			shares = append(shares, milp.Term{Var: w, Coef: -1})
			split = append(split, milp.Term{Var: w, Coef: -float64(k)})
		}
		lp.AddConstraint("one-count["+s.ID+"]", milp.Equal, 0, selected...)
		lp.AddConstraint("count["+s.ID+"]", milp.Equal, 0, instances...)
		lp.AddConstraint("instance-rate["+s.ID+"]", milp.Equal, 0, shares...)
		lp.AddConstraint("split["+s.ID+"]", milp.Equal, 0, split...)

		for _, u := range problem.Users {
			limit, _ := limits.Get(s.ID, u.ID)
			if !limit.Feasible() {
				continue
			}
			pair := Pair{Site: s.ID, User: u.ID}
			lp.AddConstraint("slo"+pair.String(), milp.LessEqual, mu,
				milp.Term{Var: perInstance[i], Coef: 1}, milp.Term{Var: m.assign[pair], Coef: mu - limit.Limit})
		}
	}

	switch params.Objective {
	case MinimizeOpenSites:
		// Σn breaks ties between plans with the same open sites. Its
		// weight keeps the whole tie-break below one site.
		total := 0
		for _, s := range problem.Sites {
			total += s.Capacity
		}
		tieBreak := 1 / float64(total+1)
		terms := make([]milp.Term, 0, 2*len(m.open))
		for i, y := range m.open {
			terms = append(terms, milp.Term{Var: y, Coef: 1}, milp.Term{Var: m.instances[i], Coef: tieBreak})
		}
		lp.SetObjective(milp.Minimize, terms...)
	case MinimizeInstances:
		terms := make([]milp.Term, 0, len(m.instances))
		for _, n := range m.instances {
			terms = append(terms, milp.Term{Var: n, Coef: 1})
		}
		lp.SetObjective(milp.Minimize, terms...)
	case MinimizeLatency:
		m.addLatencyObjective(limits, perInstance)
	}
	return m, nil
}

// addLatencyObjective adds q[s] >= mean queueing delay at l[s], through
// tangent cuts of the convex curve on [0, max λ* of s], and
// rtt[s,u] >= (latency + 1/μ)·x + q - Q·(1 - x), then minimises Σ rtt.
// rtt is non-negative so unassigned pairs contribute nothing. The cuts
// bound the delay from below, so the solver's objective may undershoot
// the true mean RTT between tangent points; Decode reports the exact sum.
func (m *Model) addLatencyObjective(limits *LimitTable, perInstance []int) {
	lp := m.MILP
	mu := m.params.ServiceRate
	var objective []milp.Term
	for i, s := range m.problem.Sites {
		lmax := limits.MaxFeasibleLimit(s.ID)
		bound := queueing.MeanWait(lmax, mu)
		q := lp.AddVariable("q["+s.ID+"]", milp.Continuous, 0, bound)
		if lmax > 0 {
			for k := 1; k <= tangentCuts; k++ {
				at := lmax * float64(k) / tangentCuts
				slope := queueing.MeanWaitSlope(at, mu)
				lp.AddConstraint(fmt.Sprintf("queue[%s,%d]", s.ID, k), milp.GreaterEqual,
					queueing.MeanWait(at, mu)-slope*at,
					milp.Term{Var: q, Coef: 1}, milp.Term{Var: perInstance[i], Coef: -slope})
			}
		}
		for _, u := range m.problem.Users {
			pair := Pair{Site: s.ID, User: u.ID}
			rtt := lp.AddVariable("rtt"+pair.String(), milp.Continuous, 0, math.Inf(1))
			fixed := m.problem.Latency(s.ID, u.ID) + m.params.ServiceTime()
			lp.AddConstraint("rtt"+pair.String(), milp.GreaterEqual, -bound,
				milp.Term{Var: rtt, Coef: 1},
				milp.Term{Var: m.assign[pair], Coef: -(fixed + bound)},
				milp.Term{Var: q, Coef: -1})
			objective = append(objective, milp.Term{Var: rtt, Coef: 1})
		}
	}
	lp.SetObjective(milp.Minimize, objective...)
}

// Decode reads a PlacementDecision out of a solver answer. Rates and the
// objective value are recomputed from the integral decisions rather than
// taken from the relaxed continuous variables.
func (m *Model) Decode(sol *milp.Solution) (*PlacementDecision, error) {
	if sol == nil {
		return nil, &ModelInfeasibleError{Status: "no solution"}
	}
	if sol.Status != milp.Optimal {
		return nil, &ModelInfeasibleError{Status: sol.Status.String()}
	}
	if len(sol.Values) != len(m.MILP.Variables) {
		return nil, fmt.Errorf("decoding placement: %d values for %d variables", len(sol.Values), len(m.MILP.Variables))
	}
	value := func(i int) int { return int(math.Round(sol.Values[i])) }

	d := &PlacementDecision{
		Objective: m.params.Objective,
		Sites:     make([]SiteDecision, 0, len(m.problem.Sites)),
	}
	for i, s := range m.problem.Sites {
		sd := SiteDecision{
			Site:      s.ID,
			Open:      value(m.open[i]) == 1,
			Instances: value(m.instances[i]),
		}
		for _, u := range m.problem.Users {
			if value(m.assign[Pair{Site: s.ID, User: u.ID}]) == 1 {
				sd.Users = append(sd.Users, u.ID)
				sd.ArrivalRate += u.ArrivalRate
			}
		}
		if sd.Instances > 0 {
			sd.InstanceArrivalRate = sd.ArrivalRate / float64(sd.Instances)
		}
		d.Sites = append(d.Sites, sd)
	}
	d.ObjectiveValue = m.objectiveValue(d)
	return d, nil
}

// objectiveValue evaluates the objective exactly on a decoded decision,
// without the tie-break weights or the tangent approximation of the model.
func (m *Model) objectiveValue(d *PlacementDecision) float64 {
	switch m.params.Objective {
	case MinimizeOpenSites:
		return float64(d.OpenSites())
	case MinimizeInstances:
		return float64(d.TotalInstances())
	}
	var total float64
	for _, sd := range d.Sites {
		wait := queueing.MeanWait(sd.InstanceArrivalRate, m.params.ServiceRate)
		for _, u := range sd.Users {
			total += m.problem.Latency(sd.Site, u) + m.params.ServiceTime() + wait
		}
	}
	return total
}

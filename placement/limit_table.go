package placement

// ArrivalRateLimit is the largest per-instance arrival rate λ* at which a
// user served by an instance at a site still meets the SLO with
// probability θ. Err is set, and Limit is meaningless, when the pair is
// infeasible.
type ArrivalRateLimit struct {
	Pair
	Latency    float64
	Budget     float64 // queueing time left after latency and service time
	Limit      float64 // λ*, in [0, μ)
	Iterations int     // root-finder iterations spent
	Err        *InfeasiblePairError
}

// Feasible reports whether the pair can be assigned at all.
func (l ArrivalRateLimit) Feasible() bool {
	return l.Err == nil
}

// LimitTable maps every (site, user) pair to its ArrivalRateLimit.
// It is read-only once built.
type LimitTable struct {
	entries map[Pair]ArrivalRateLimit
	order   []Pair
}

// NewLimitTable indexes limits by pair, keeping the given order for listing.
func NewLimitTable(limits []ArrivalRateLimit) *LimitTable {
	t := &LimitTable{
		entries: make(map[Pair]ArrivalRateLimit, len(limits)),
		order:   make([]Pair, 0, len(limits)),
	}
	for _, l := range limits {
		if _, dup := t.entries[l.Pair]; !dup {
			t.order = append(t.order, l.Pair)
		}
		t.entries[l.Pair] = l
	}
	return t
}

// Get returns the limit of a pair.
func (t *LimitTable) Get(site, user string) (ArrivalRateLimit, bool) {
	l, ok := t.entries[Pair{Site: site, User: user}]
	return l, ok
}

// Len is the number of pairs in the table.
func (t *LimitTable) Len() int {
	return len(t.order)
}

// All lists every limit in insertion order.
func (t *LimitTable) All() []ArrivalRateLimit {
	out := make([]ArrivalRateLimit, 0, len(t.order))
	for _, p := range t.order {
		out = append(out, t.entries[p])
	}
	return out
}

// Infeasible lists the pairs barred from assignment.
func (t *LimitTable) Infeasible() []ArrivalRateLimit {
	var out []ArrivalRateLimit
	for _, p := range t.order {
		if l := t.entries[p]; !l.Feasible() {
			out = append(out, l)
		}
	}
	return out
}

// MaxFeasibleLimit is the largest λ* among the feasible pairs of a site,
// or 0 if the site cannot serve anyone.
func (t *LimitTable) MaxFeasibleLimit(site string) float64 {
	var m float64
	for _, p := range t.order {
		if p.Site != site {
			continue
		}
		if l := t.entries[p]; l.Feasible() && l.Limit > m {
			m = l.Limit
		}
	}
	return m
}

package placement

import (
	"fmt"
	"time"
)

// verifyTolerance absorbs the simplex tolerance when a decoded per-instance
// rate is compared against its limit.
const verifyTolerance = 1e-7

// SiteDecision is the plan for one site.
type SiteDecision struct {
	Site                string   `yaml:"site"`
	Open                bool     `yaml:"open"`
	Instances           int      `yaml:"instances"`
	Users               []string `yaml:"users,omitempty"`
	ArrivalRate         float64  `yaml:"arrival_rate"`          // total rate routed to the site
	InstanceArrivalRate float64  `yaml:"instance_arrival_rate"` // rate seen by each instance
}

// Utilization is ρ = per-instance arrival rate / μ.
func (d SiteDecision) Utilization(serviceRate float64) float64 {
	return d.InstanceArrivalRate / serviceRate
}

// PlacementDecision is the optimisation output: per site whether it is
// open, how many instances it runs and which users it serves.
type PlacementDecision struct {
	Objective      Objective      `yaml:"objective"`
	ObjectiveValue float64        `yaml:"objective_value"` // exact, for min-latency the summed mean RTT
	Sites          []SiteDecision `yaml:"sites"`
}

// AssignedSite returns the site serving user.
func (d *PlacementDecision) AssignedSite(user string) (string, bool) {
	for _, s := range d.Sites {
		for _, u := range s.Users {
			if u == user {
				return s.Site, true
			}
		}
	}
	return "", false
}

// Site returns the decision for one site.
func (d *PlacementDecision) Site(id string) (SiteDecision, bool) {
	for _, s := range d.Sites {
		if s.Site == id {
			return s, true
		}
	}
	return SiteDecision{}, false
}

// TotalInstances sums the instances of every site.
func (d *PlacementDecision) TotalInstances() int {
	var n int
	for _, s := range d.Sites {
		n += s.Instances
	}
	return n
}

// OpenSites counts the open sites.
func (d *PlacementDecision) OpenSites() int {
	var n int
	for _, s := range d.Sites {
		if s.Open {
			n++
		}
	}
	return n
}

// Verify checks the decision against the placement invariants: every user
// on exactly one open site, closed sites empty, open sites within
// [1, capacity] instances, and no assigned pair above its λ*.
func (d *PlacementDecision) Verify(problem *Problem, params GlobalParameters, limits *LimitTable) error {
	seen := make(map[string]string, len(problem.Users))
	for _, sd := range d.Sites {
		site, ok := problem.Site(sd.Site)
		if !ok {
			return fmt.Errorf("decision names unknown site %q", sd.Site)
		}
		if !sd.Open {
			if sd.Instances != 0 || len(sd.Users) != 0 {
				return fmt.Errorf("closed site %s has %d instances and %d users", sd.Site, sd.Instances, len(sd.Users))
			}
			continue
		}
		if sd.Instances < 1 || sd.Instances > site.Capacity {
			return fmt.Errorf("open site %s runs %d instances, want 1..%d", sd.Site, sd.Instances, site.Capacity)
		}
		if sd.InstanceArrivalRate >= params.ServiceRate {
			return fmt.Errorf("site %s per-instance rate %g saturates service rate %g", sd.Site, sd.InstanceArrivalRate, params.ServiceRate)
		}
		for _, u := range sd.Users {
			if _, ok := problem.User(u); !ok {
				return fmt.Errorf("site %s serves unknown user %q", sd.Site, u)
			}
			if prev, dup := seen[u]; dup {
				return fmt.Errorf("user %s assigned to both %s and %s", u, prev, sd.Site)
			}
			seen[u] = sd.Site
			limit, ok := limits.Get(sd.Site, u)
			if !ok {
				return fmt.Errorf("no arrival-rate limit for pair (%s, %s)", sd.Site, u)
			}
			if !limit.Feasible() {
				return fmt.Errorf("user %s assigned to barred site %s: %w", u, sd.Site, limit.Err)
			}
			if sd.InstanceArrivalRate > limit.Limit+verifyTolerance {
				return fmt.Errorf("site %s per-instance rate %g exceeds limit %g of user %s",
					sd.Site, sd.InstanceArrivalRate, limit.Limit, u)
			}
		}
	}
	for _, u := range problem.Users {
		if _, ok := seen[u.ID]; !ok {
			return fmt.Errorf("user %s is not assigned", u.ID)
		}
	}
	return nil
}

// PlanStats records the size of the model and where the run spent time.
type PlanStats struct {
	Variables     int
	Constraints   int
	Nodes         int
	LimitsElapsed time.Duration
	SolveElapsed  time.Duration
}

// Plan is the outcome of one planning run.
type Plan struct {
	Problem  *Problem
	Params   GlobalParameters
	Limits   *LimitTable
	Decision *PlacementDecision
	Stats    PlanStats
}

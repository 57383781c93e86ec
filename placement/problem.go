package placement

import (
	"fmt"
)

// Site is a candidate location for service instances.
type Site struct {
	ID       string  `yaml:"id"`
	Capacity int     `yaml:"capacity"` // maximum instances the site can run (> 0)
	Price    float64 `yaml:"price"`    // price per instance, reporting only
}

// User is a source of requests.
type User struct {
	ID          string  `yaml:"id"`
	ArrivalRate float64 `yaml:"arrival_rate"` // requests per time unit
}

// LatencyEdge is the fixed network latency between a site and a user.
type LatencyEdge struct {
	Site    string
	User    string
	Latency float64
}

// Pair identifies a (site, user) combination.
type Pair struct {
	Site string
	User string
}

func (p Pair) String() string {
	return fmt.Sprintf("(%s, %s)", p.Site, p.User)
}

// Problem is the immutable placement input: sites, users and the full
// site×user latency matrix.
type Problem struct {
	Name  string
	Sites []Site
	Users []User

	latency   map[Pair]float64
	siteIndex map[string]int
	userIndex map[string]int
}

// NewProblem validates the input and returns a Problem. Every (site, user)
// pair must have exactly one latency edge.
func NewProblem(name string, sites []Site, users []User, edges []LatencyEdge) (*Problem, error) {
	if len(sites) == 0 {
		return nil, configErrorf("sites", "at least one site required")
	}
	if len(users) == 0 {
		return nil, configErrorf("users", "at least one user required")
	}
	p := &Problem{
		Name:      name,
		Sites:     append([]Site(nil), sites...),
		Users:     append([]User(nil), users...),
		latency:   make(map[Pair]float64, len(sites)*len(users)),
		siteIndex: make(map[string]int, len(sites)),
		userIndex: make(map[string]int, len(users)),
	}
	for i, s := range p.Sites {
		prefix := fmt.Sprintf("sites[%d]", i)
		if s.ID == "" {
			return nil, configErrorf(prefix+".id", "must not be empty")
		}
		if _, dup := p.siteIndex[s.ID]; dup {
			return nil, configErrorf(prefix+".id", "duplicate site %q", s.ID)
		}
		if s.Capacity <= 0 {
			return nil, configErrorf(prefix+".capacity", "must be positive, got %d", s.Capacity)
		}
		if err := validateFiniteNonNegative(prefix+".price", s.Price); err != nil {
			return nil, err
		}
		p.siteIndex[s.ID] = i
	}
	for i, u := range p.Users {
		prefix := fmt.Sprintf("users[%d]", i)
		if u.ID == "" {
			return nil, configErrorf(prefix+".id", "must not be empty")
		}
		if _, dup := p.userIndex[u.ID]; dup {
			return nil, configErrorf(prefix+".id", "duplicate user %q", u.ID)
		}
		if err := validateFiniteNonNegative(prefix+".arrival_rate", u.ArrivalRate); err != nil {
			return nil, err
		}
		p.userIndex[u.ID] = i
	}
	for _, e := range edges {
		field := fmt.Sprintf("latency[%s][%s]", e.Site, e.User)
		if _, ok := p.siteIndex[e.Site]; !ok {
			return nil, configErrorf(field, "unknown site %q", e.Site)
		}
		if _, ok := p.userIndex[e.User]; !ok {
			return nil, configErrorf(field, "unknown user %q", e.User)
		}
		if err := validateFiniteNonNegative(field, e.Latency); err != nil {
			return nil, err
		}
		key := Pair{Site: e.Site, User: e.User}
		if _, dup := p.latency[key]; dup {
			return nil, configErrorf(field, "duplicate latency edge")
		}
		p.latency[key] = e.Latency
	}
	for _, pair := range p.Pairs() {
		if _, ok := p.latency[pair]; !ok {
			return nil, configErrorf(fmt.Sprintf("latency[%s][%s]", pair.Site, pair.User), "missing")
		}
	}
	return p, nil
}

// Latency returns the network latency of a pair. It panics on an unknown
// pair, which NewProblem rules out for the problem's own sites and users.
func (p *Problem) Latency(site, user string) float64 {
	l, ok := p.latency[Pair{Site: site, User: user}]
	if !ok {
		panic(fmt.Sprintf("placement: no latency for pair (%s, %s)", site, user))
	}
	return l
}

// Pairs lists every (site, user) pair, sites outermost, in input order.
func (p *Problem) Pairs() []Pair {
	pairs := make([]Pair, 0, len(p.Sites)*len(p.Users))
	for _, s := range p.Sites {
		for _, u := range p.Users {
			pairs = append(pairs, Pair{Site: s.ID, User: u.ID})
		}
	}
	return pairs
}

// Edges lists the latency matrix in Pairs order.
func (p *Problem) Edges() []LatencyEdge {
	edges := make([]LatencyEdge, 0, len(p.latency))
	for _, pair := range p.Pairs() {
		edges = append(edges, LatencyEdge{Site: pair.Site, User: pair.User, Latency: p.latency[pair]})
	}
	return edges
}

// MaxLatency is the largest latency in the matrix.
func (p *Problem) MaxLatency() float64 {
	var m float64
	for _, l := range p.latency {
		if l > m {
			m = l
		}
	}
	return m
}

// TotalArrivalRate sums the arrival rates of all users.
func (p *Problem) TotalArrivalRate() float64 {
	var total float64
	for _, u := range p.Users {
		total += u.ArrivalRate
	}
	return total
}

// Site returns the site with the given ID.
func (p *Problem) Site(id string) (Site, bool) {
	i, ok := p.siteIndex[id]
	if !ok {
		return Site{}, false
	}
	return p.Sites[i], true
}

// User returns the user with the given ID.
func (p *Problem) User(id string) (User, bool) {
	i, ok := p.userIndex[id]
	if !ok {
		return User{}, false
	}
	return p.Users[i], true
}

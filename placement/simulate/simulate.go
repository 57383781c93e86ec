// Package simulate replays a placement plan as a discrete-event simulation:
// every user emits requests at its arrival rate, each request joins a
// uniformly chosen instance of its assigned site, and instances serve FIFO.
// Measured SLO attainment is an independent check of the analytical limits.
package simulate

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/slo-placement/placement"
)

// Service time distributions.
const (
	ServiceDeterministic = "deterministic"
	ServiceExponential   = "exponential"
)

// Config controls a simulation run. Times are in the model's time unit.
type Config struct {
	Seed    int64
	Horizon float64 // arrivals are generated on [0, Horizon)
	Warmup  float64 // requests arriving before Warmup are not measured
	Process string  // arrival process: poisson (default) or gamma
	CV      float64 // coefficient of variation of gamma inter-arrival times
	Service string  // deterministic (default) or exponential
}

// DefaultConfig simulates 10^5 time units after a 1% warmup with Poisson
// arrivals and constant service time.
func DefaultConfig() Config {
	return Config{Seed: 42, Horizon: 1e5, Warmup: 1e3, Process: ProcessPoisson, CV: 1, Service: ServiceDeterministic}
}

// Validate rejects empty horizons and unknown distributions.
func (c Config) Validate() error {
	if !(c.Horizon > 0) || math.IsInf(c.Horizon, 0) {
		return &placement.ConfigurationError{Field: "horizon", Reason: fmt.Sprintf("must be positive and finite, got %v", c.Horizon)}
	}
	if c.Warmup < 0 || c.Warmup >= c.Horizon {
		return &placement.ConfigurationError{Field: "warmup", Reason: fmt.Sprintf("must be in [0, horizon), got %v", c.Warmup)}
	}
	switch c.Process {
	case "", ProcessPoisson, ProcessGamma:
	default:
		return &placement.ConfigurationError{Field: "arrival-process", Reason: fmt.Sprintf("unknown process %q; valid: poisson, gamma", c.Process)}
	}
	switch c.Service {
	case "", ServiceDeterministic, ServiceExponential:
	default:
		return &placement.ConfigurationError{Field: "service", Reason: fmt.Sprintf("unknown service distribution %q; valid: deterministic, exponential", c.Service)}
	}
	return nil
}

// UserStats are the measurements of one user.
type UserStats struct {
	User               string  `yaml:"user"`
	Site               string  `yaml:"site"`
	Requests           int     `yaml:"requests"`
	MetSLO             int     `yaml:"met_slo"`
	MeanWait           float64 `yaml:"mean_wait"`
	MeanResponse       float64 `yaml:"mean_response"`
	PercentileResponse float64 `yaml:"percentile_response"` // at the plan's θ
}

// Attainment is the fraction of measured requests that met the SLO.
func (u UserStats) Attainment() float64 {
	if u.Requests == 0 {
		return 1
	}
	return float64(u.MetSLO) / float64(u.Requests)
}

// InstanceStats are the measurements of one instance.
type InstanceStats struct {
	Site        string  `yaml:"site"`
	Index       int     `yaml:"index"`
	Served      int     `yaml:"served"`
	Utilization float64 `yaml:"utilization"` // busy time / horizon
}

// Result is the outcome of a simulation run.
type Result struct {
	Users     []UserStats     `yaml:"users"`
	Instances []InstanceStats `yaml:"instances"`
	Events    int             `yaml:"events"`
}

// Event is a timestamped step of the simulation.
type Event interface {
	Timestamp() float64
	Execute(*Simulator)
}

type scheduled struct {
	ev  Event
	seq uint64
}

// eventQueue is a min-heap on (timestamp, insertion order).
type eventQueue []scheduled

func (eq eventQueue) Len() int { return len(eq) }
func (eq eventQueue) Less(i, j int) bool {
	ti, tj := eq[i].ev.Timestamp(), eq[j].ev.Timestamp()
	if ti != tj {
		return ti < tj
	}
	return eq[i].seq < eq[j].seq
}
func (eq eventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *eventQueue) Push(x any) {
	*eq = append(*eq, x.(scheduled))
}

func (eq *eventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	*eq = old[0 : n-1]
	return item
}

type instance struct {
	busyUntil float64
	busy      float64
	served    int
}

type siteState struct {
	id        string
	instances []*instance
	route     *rand.Rand
}

type userState struct {
	id        string
	site      *siteState
	latency   float64
	sampler   ArrivalSampler
	rng       *rand.Rand
	requests  int
	met       int
	sumWait   float64
	sumResp   float64
	responses []float64
}

// Simulator holds the clock, the event queue and the state of every site
// and user of one run.
type Simulator struct {
	Clock float64

	cfg         Config
	slo         float64
	serviceTime float64
	service     *rand.Rand
	queue       eventQueue
	seq         uint64
	events      int
	sites       []*siteState
	users       []*userState
}

// ArrivalEvent is one request of a user reaching its site.
type ArrivalEvent struct {
	time float64
	user *userState
}

func (e *ArrivalEvent) Timestamp() float64 { return e.time }

// Execute routes the request, serves it FIFO and schedules the user's next
// request.
func (e *ArrivalEvent) Execute(sim *Simulator) {
	u := e.user
	site := u.site
	inst := site.instances[site.route.Intn(len(site.instances))]

	service := sim.serviceTime
	if sim.cfg.Service == ServiceExponential {
		service = sim.service.ExpFloat64() * sim.serviceTime
	}
	start := math.Max(e.time, inst.busyUntil)
	wait := start - e.time
	inst.busyUntil = start + service
	inst.busy += service
	inst.served++

	if e.time >= sim.cfg.Warmup {
		response := u.latency + wait + service
		u.requests++
		u.sumWait += wait
		u.sumResp += response
		u.responses = append(u.responses, response)
		if response <= sim.slo {
			u.met++
		}
	}

	if next := e.time + u.sampler.SampleIAT(u.rng); next < sim.cfg.Horizon {
		sim.Schedule(&ArrivalEvent{time: next, user: u})
	}
}

// Schedule pushes an event into the queue.
func (sim *Simulator) Schedule(ev Event) {
	heap.Push(&sim.queue, scheduled{ev: ev, seq: sim.seq})
	sim.seq++
}

// New prepares a simulation of plan.
func New(plan *placement.Plan, cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if plan == nil || plan.Decision == nil {
		return nil, fmt.Errorf("simulating: plan has no placement decision")
	}
	rng := newPartitionedRNG(cfg.Seed)
	sim := &Simulator{
		cfg:         cfg,
		slo:         plan.Params.SLO,
		serviceTime: plan.Params.ServiceTime(),
		service:     rng.forSubsystem(subsystemService),
	}
	byID := make(map[string]*siteState)
	for _, sd := range plan.Decision.Sites {
		if !sd.Open {
			continue
		}
		s := &siteState{id: sd.Site, route: rng.forSubsystem(subsystemRoute(sd.Site))}
		for i := 0; i < sd.Instances; i++ {
			s.instances = append(s.instances, &instance{})
		}
		sim.sites = append(sim.sites, s)
		byID[sd.Site] = s
	}
	for _, user := range plan.Problem.Users {
		siteID, ok := plan.Decision.AssignedSite(user.ID)
		if !ok || byID[siteID] == nil {
			return nil, fmt.Errorf("simulating: user %s has no open site", user.ID)
		}
		u := &userState{
			id:      user.ID,
			site:    byID[siteID],
			latency: plan.Problem.Latency(siteID, user.ID),
			rng:     rng.forSubsystem(subsystemArrival(user.ID)),
		}
		sim.users = append(sim.users, u)
		if user.ArrivalRate <= 0 {
			continue
		}
		u.sampler = NewArrivalSampler(cfg.Process, cfg.CV, user.ArrivalRate)
		if first := u.sampler.SampleIAT(u.rng); first < cfg.Horizon {
			sim.Schedule(&ArrivalEvent{time: first, user: u})
		}
	}
	return sim, nil
}

// Run processes events until the queue drains.
func (sim *Simulator) Run() {
	for len(sim.queue) > 0 {
		s := heap.Pop(&sim.queue).(scheduled)
		sim.Clock = s.ev.Timestamp()
		s.ev.Execute(sim)
		sim.events++
	}
}

// Result summarises the run; q is the response-time percentile level in
// (0, 1).
func (sim *Simulator) Result(q float64) *Result {
	res := &Result{Events: sim.events}
	for _, u := range sim.users {
		res.Users = append(res.Users, UserStats{
			User:               u.id,
			Site:               u.site.id,
			Requests:           u.requests,
			MetSLO:             u.met,
			MeanWait:           mean(u.sumWait, u.requests),
			MeanResponse:       mean(u.sumResp, u.requests),
			PercentileResponse: percentile(sortedCopy(u.responses), 100*q),
		})
	}
	for _, s := range sim.sites {
		for i, inst := range s.instances {
			res.Instances = append(res.Instances, InstanceStats{
				Site:        s.id,
				Index:       i,
				Served:      inst.served,
				Utilization: inst.busy / sim.cfg.Horizon,
			})
		}
	}
	return res
}

// Run simulates plan under cfg and reports per-user SLO attainment and
// per-instance utilization.
func Run(plan *placement.Plan, cfg Config) (*Result, error) {
	sim, err := New(plan, cfg)
	if err != nil {
		return nil, err
	}
	sim.Run()
	res := sim.Result(plan.Params.Theta)
	logrus.Infof("simulation: %d events over %g time units (seed %d)", res.Events, cfg.Horizon, cfg.Seed)
	for _, u := range res.Users {
		logrus.Debugf("simulation: user %s on %s: %d requests, attainment %.5f", u.User, u.Site, u.Requests, u.Attainment())
	}
	return res, nil
}

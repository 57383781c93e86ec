// Package report renders planning results for people and for tooling.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/slo-placement/placement"
	"github.com/inference-sim/slo-placement/placement/limits"
	"github.com/inference-sim/slo-placement/placement/queueing"
	"github.com/inference-sim/slo-placement/placement/simulate"
)

// Output formats.
const (
	FormatTable = "table"
	FormatYAML  = "yaml"
)

var validFormats = map[string]bool{FormatTable: true, FormatYAML: true}

// IsValidFormat reports whether name is a known output format.
func IsValidFormat(name string) bool {
	return validFormats[name]
}

// Summary is the reportable view of a plan.
type Summary struct {
	Name           string              `yaml:"name"`
	Objective      placement.Objective `yaml:"objective"`
	ObjectiveValue float64             `yaml:"objective_value"`
	ServiceRate    float64             `yaml:"service_rate"`
	SLO            float64             `yaml:"slo"`
	Theta          float64             `yaml:"theta"`
	OpenSites      int                 `yaml:"open_sites"`
	Instances      int                 `yaml:"instances"`
	Cost           float64             `yaml:"cost"`
	Sites          []SiteRow           `yaml:"sites"`
	Users          []UserRow           `yaml:"users"`
	Barred         []BarredPair        `yaml:"barred_pairs,omitempty"`
}

// SiteRow describes one site of the plan.
type SiteRow struct {
	Site        string   `yaml:"site"`
	Open        bool     `yaml:"open"`
	Instances   int      `yaml:"instances"`
	Capacity    int      `yaml:"capacity"`
	Users       []string `yaml:"users,omitempty"`
	ArrivalRate float64  `yaml:"arrival_rate"`
	Utilization float64  `yaml:"utilization"`
	Cost        float64  `yaml:"cost"`
}

// UserRow describes how one user is served.
type UserRow struct {
	User           string  `yaml:"user"`
	Site           string  `yaml:"site"`
	Latency        float64 `yaml:"latency"`
	Limit          float64 `yaml:"limit"`
	MeanRTT        float64 `yaml:"mean_rtt"`
	PercentileRTT  float64 `yaml:"percentile_rtt"`
	SLOProbability float64 `yaml:"slo_probability"`
}

// BarredPair is a (site, user) pair excluded from assignment.
type BarredPair struct {
	Site    string  `yaml:"site"`
	User    string  `yaml:"user"`
	Latency float64 `yaml:"latency"`
	Budget  float64 `yaml:"budget"`
}

// Summarize evaluates the operating point of every assignment: mean
// response time, its θ-percentile and the probability of meeting the SLO
// at the chosen per-instance arrival rate.
func Summarize(plan *placement.Plan) (*Summary, error) {
	params, problem, d := plan.Params, plan.Problem, plan.Decision
	s := &Summary{
		Name:           problem.Name,
		Objective:      d.Objective,
		ObjectiveValue: d.ObjectiveValue,
		ServiceRate:    params.ServiceRate,
		SLO:            params.SLO,
		Theta:          params.Theta,
		OpenSites:      d.OpenSites(),
		Instances:      d.TotalInstances(),
	}
	for _, sd := range d.Sites {
		site, _ := problem.Site(sd.Site)
		row := SiteRow{
			Site:        sd.Site,
			Open:        sd.Open,
			Instances:   sd.Instances,
			Capacity:    site.Capacity,
			Users:       sd.Users,
			ArrivalRate: sd.ArrivalRate,
			Utilization: sd.Utilization(params.ServiceRate),
			Cost:        float64(sd.Instances) * site.Price,
		}
		s.Cost += row.Cost
		s.Sites = append(s.Sites, row)
	}
	for _, u := range problem.Users {
		siteID, ok := d.AssignedSite(u.ID)
		if !ok {
			return nil, fmt.Errorf("user %s has no site in the plan", u.ID)
		}
		sd, _ := d.Site(siteID)
		lambda := sd.InstanceArrivalRate
		latency := problem.Latency(siteID, u.ID)
		row := UserRow{
			User:    u.ID,
			Site:    siteID,
			Latency: latency,
			MeanRTT: latency + params.ServiceTime() + queueing.MeanWait(lambda, params.ServiceRate),
		}
		if l, ok := plan.Limits.Get(siteID, u.ID); ok {
			row.Limit = l.Limit
		}
		var err error
		if row.PercentileRTT, err = limits.Percentile(params.Theta, latency, lambda, params); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
		if row.SLOProbability, err = queueing.WaitingTimeProbability(params.QueueingBudget(latency), lambda, params.ServiceRate); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
		s.Users = append(s.Users, row)
	}
	for _, l := range plan.Limits.Infeasible() {
		s.Barred = append(s.Barred, BarredPair{Site: l.Site, User: l.User, Latency: l.Latency, Budget: l.Err.Budget})
	}
	return s, nil
}

// Write renders the plan in the given format.
func Write(w io.Writer, plan *placement.Plan, format string) error {
	s, err := Summarize(plan)
	if err != nil {
		return err
	}
	switch format {
	case FormatYAML:
		return writeYAML(w, s)
	case FormatTable:
		return s.writeTable(w)
	}
	return fmt.Errorf("unknown report format %q; valid: table, yaml", format)
}

func (s *Summary) writeTable(w io.Writer) error {
	fmt.Fprintf(w, "Plan %q: objective %s = %s, %d open sites, %d instances, cost %s\n",
		s.Name, s.Objective, num(s.ObjectiveValue), s.OpenSites, s.Instances, num(s.Cost))

	sites := tablewriter.NewWriter(w)
	sites.Header("Site", "Open", "Instances", "Capacity", "Users", "Arrival Rate", "Utilization", "Cost")
	for _, r := range s.Sites {
		if err := sites.Append([]string{
			r.Site, strconv.FormatBool(r.Open), strconv.Itoa(r.Instances), strconv.Itoa(r.Capacity),
			strings.Join(r.Users, ","), num(r.ArrivalRate), num(r.Utilization), num(r.Cost),
		}); err != nil {
			return err
		}
	}
	if err := sites.Render(); err != nil {
		return err
	}

	users := tablewriter.NewWriter(w)
	users.Header("User", "Site", "Latency", "Limit", "Mean RTT", fmt.Sprintf("P%s RTT", num(100*s.Theta)), "P(RTT <= SLO)")
	for _, r := range s.Users {
		if err := users.Append([]string{
			r.User, r.Site, num(r.Latency), num(r.Limit), num(r.MeanRTT), num(r.PercentileRTT), num(r.SLOProbability),
		}); err != nil {
			return err
		}
	}
	if err := users.Render(); err != nil {
		return err
	}

	if len(s.Barred) > 0 {
		fmt.Fprintln(w, "Barred pairs (latency leaves no queueing budget):")
		barred := tablewriter.NewWriter(w)
		barred.Header("Site", "User", "Latency", "Budget")
		for _, b := range s.Barred {
			if err := barred.Append([]string{b.Site, b.User, num(b.Latency), num(b.Budget)}); err != nil {
				return err
			}
		}
		return barred.Render()
	}
	return nil
}

// LimitRow is one entry of a limits listing.
type LimitRow struct {
	Site       string  `yaml:"site"`
	User       string  `yaml:"user"`
	Latency    float64 `yaml:"latency"`
	Budget     float64 `yaml:"budget"`
	Limit      float64 `yaml:"limit,omitempty"`
	Iterations int     `yaml:"iterations,omitempty"`
	Feasible   bool    `yaml:"feasible"`
}

// WriteLimits renders an arrival-rate limit table.
func WriteLimits(w io.Writer, table *placement.LimitTable, format string) error {
	var rows []LimitRow
	for _, l := range table.All() {
		rows = append(rows, LimitRow{
			Site: l.Site, User: l.User, Latency: l.Latency, Budget: l.Budget,
			Limit: l.Limit, Iterations: l.Iterations, Feasible: l.Feasible(),
		})
	}
	switch format {
	case FormatYAML:
		return writeYAML(w, rows)
	case FormatTable:
		t := tablewriter.NewWriter(w)
		t.Header("Site", "User", "Latency", "Budget", "Limit", "Iterations")
		for _, r := range rows {
			limit := "barred"
			if r.Feasible {
				limit = num(r.Limit)
			}
			if err := t.Append([]string{r.Site, r.User, num(r.Latency), num(r.Budget), limit, strconv.Itoa(r.Iterations)}); err != nil {
				return err
			}
		}
		return t.Render()
	}
	return fmt.Errorf("unknown report format %q; valid: table, yaml", format)
}

// WriteSimulation renders measured SLO attainment next to the target θ.
func WriteSimulation(w io.Writer, res *simulate.Result, theta float64, format string) error {
	switch format {
	case FormatYAML:
		return writeYAML(w, map[string]any{"simulation": res})
	case FormatTable:
		fmt.Fprintf(w, "Simulation: %d events\n", res.Events)
		t := tablewriter.NewWriter(w)
		t.Header("User", "Site", "Requests", "Attainment", "Target", "Mean Wait", "Mean RTT", fmt.Sprintf("P%s RTT", num(100*theta)))
		for _, u := range res.Users {
			if err := t.Append([]string{
				u.User, u.Site, strconv.Itoa(u.Requests), num(u.Attainment()), num(theta),
				num(u.MeanWait), num(u.MeanResponse), num(u.PercentileResponse),
			}); err != nil {
				return err
			}
		}
		return t.Render()
	}
	return fmt.Errorf("unknown report format %q; valid: table, yaml", format)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

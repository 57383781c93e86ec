package placement

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// LegacyInput is the flat JSON layout used by earlier planner deployments:
// site and user lists, per-site maps, and a latency map keyed by the
// textual tuple "('site', 'user')".
type LegacyInput struct {
	Nodes          []string           `yaml:"nodes"`
	Pricing        map[string]float64 `yaml:"pricing"`
	Users          []string           `yaml:"users"`
	Capacities     map[string]int     `yaml:"capacities"`
	LatencyMatrix  map[string]float64 `yaml:"latency_node_user"`
	ServiceRate    float64            `yaml:"service_rate"`
	RPS            float64            `yaml:"rps,omitempty"` // ignored; per-user request_rates replace it
	SLO            float64            `yaml:"slo"`
	DeploymentName string             `yaml:"deployment_name"`
	OptiPref       int                `yaml:"opti_pref"`
	RequestRates   map[string]float64 `yaml:"request_rates"`
}

// legacyObjectives maps opti_pref codes to objectives.
var legacyObjectives = map[int]Objective{
	1: MinimizeOpenSites,
	2: MinimizeInstances,
	3: MinimizeLatency,
}

var legacyPairKey = regexp.MustCompile(`^\(\s*'([^']*)'\s*,\s*'([^']*)'\s*\)$`)

// LoadLegacyInput reads a legacy JSON document and upgrades it to Input.
func LoadLegacyInput(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading legacy planning input: %w", err)
	}
	var legacy LegacyInput
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&legacy); err != nil {
		return nil, fmt.Errorf("parsing legacy planning input: %w", err)
	}
	return legacy.Upgrade()
}

// Upgrade converts the legacy layout into an Input. The confidence θ was a
// constant in the legacy planner, so it is left unset (DefaultTheta).
func (l *LegacyInput) Upgrade() (*Input, error) {
	obj, ok := legacyObjectives[l.OptiPref]
	if !ok {
		return nil, configErrorf("opti_pref", "unknown optimization preference %d; valid: 1 (open sites), 2 (instances), 3 (latency)", l.OptiPref)
	}
	if l.RPS != 0 {
		logrus.Warnf("legacy field rps=%v ignored; per-user request_rates are used instead", l.RPS)
	}
	in := &Input{
		Name:        l.DeploymentName,
		ServiceRate: l.ServiceRate,
		SLO:         l.SLO,
		Objective:   string(obj),
		Latency:     make(map[string]map[string]float64, len(l.Nodes)),
	}
	for _, id := range l.Nodes {
		capacity, ok := l.Capacities[id]
		if !ok {
			return nil, configErrorf("capacities."+id, "missing")
		}
		in.Sites = append(in.Sites, Site{ID: id, Capacity: capacity, Price: l.Pricing[id]})
	}
	for _, id := range l.Users {
		rate, ok := l.RequestRates[id]
		if !ok {
			return nil, configErrorf("request_rates."+id, "missing")
		}
		in.Users = append(in.Users, User{ID: id, ArrivalRate: rate})
	}
	for key, latency := range l.LatencyMatrix {
		m := legacyPairKey.FindStringSubmatch(key)
		if m == nil {
			return nil, configErrorf("latency_node_user", "malformed pair key %q; expected \"('site', 'user')\"", key)
		}
		site, user := m[1], m[2]
		if in.Latency[site] == nil {
			in.Latency[site] = make(map[string]float64)
		}
		in.Latency[site][user] = latency
	}
	return in, nil
}

package placement

import (
	"math"
	"strings"
)

// Objective selects what the placement optimisation minimises.
type Objective string

const (
	// MinimizeOpenSites minimises the number of open sites.
	MinimizeOpenSites Objective = "min-open-sites"
	// MinimizeInstances minimises the total instance count across sites.
	MinimizeInstances Objective = "min-instances"
	// MinimizeLatency minimises the summed round-trip time of all assignments.
	MinimizeLatency Objective = "min-latency"
)

// DefaultTheta is the SLO confidence used when the input does not set one.
const DefaultTheta = 0.99

// objectiveAliases maps accepted spellings to canonical objectives.
var objectiveAliases = map[string]Objective{
	"min-open-sites":      MinimizeOpenSites,
	"minimize-open-sites": MinimizeOpenSites,
	"open-sites":          MinimizeOpenSites,
	"min-instances":       MinimizeInstances,
	"minimize-instances":  MinimizeInstances,
	"instances":           MinimizeInstances,
	"min-latency":         MinimizeLatency,
	"minimize-latency":    MinimizeLatency,
	"latency":             MinimizeLatency,
}

// ParseObjective returns the canonical objective for name.
// An empty or unknown name is a ConfigurationError.
func ParseObjective(name string) (Objective, error) {
	if obj, ok := objectiveAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return obj, nil
	}
	if name == "" {
		return "", configErrorf("objective", "missing; valid: min-open-sites, min-instances, min-latency")
	}
	return "", configErrorf("objective", "unknown objective %q; valid: min-open-sites, min-instances, min-latency", name)
}

// GlobalParameters are the run-wide constants threaded through every stage.
type GlobalParameters struct {
	ServiceRate float64   // μ, requests per time unit served by one instance (> 0)
	SLO         float64   // response-time bound in time units (> 0)
	Theta       float64   // required probability of meeting the SLO, in (0, 1)
	Objective   Objective // optimisation objective
}

// Validate rejects non-positive rates and bounds, θ outside (0,1) and
// unknown objectives.
func (g GlobalParameters) Validate() error {
	if err := validateFinitePositive("service_rate", g.ServiceRate); err != nil {
		return err
	}
	if err := validateFinitePositive("slo", g.SLO); err != nil {
		return err
	}
	if math.IsNaN(g.Theta) || g.Theta <= 0 || g.Theta >= 1 {
		return configErrorf("theta", "must be in (0, 1), got %v", g.Theta)
	}
	switch g.Objective {
	case MinimizeOpenSites, MinimizeInstances, MinimizeLatency:
	default:
		_, err := ParseObjective(string(g.Objective))
		return err
	}
	return nil
}

// ServiceTime is the mean time one instance spends on a request (1/μ).
func (g GlobalParameters) ServiceTime() float64 {
	return 1 / g.ServiceRate
}

// QueueingBudget is the time left for queueing once the network latency and
// the service time are taken out of the SLO.
func (g GlobalParameters) QueueingBudget(latency float64) float64 {
	return g.SLO - latency - g.ServiceTime()
}

func validateFinitePositive(field string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return configErrorf(field, "must be a finite number, got %v", val)
	}
	if val <= 0 {
		return configErrorf(field, "must be positive, got %v", val)
	}
	return nil
}

func validateFiniteNonNegative(field string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return configErrorf(field, "must be a finite number, got %v", val)
	}
	if val < 0 {
		return configErrorf(field, "must be non-negative, got %v", val)
	}
	return nil
}

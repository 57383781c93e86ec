package placement

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Input is the on-disk planning document. JSON is accepted as well since it
// is a subset of YAML.
type Input struct {
	Name        string                        `yaml:"name"`
	ServiceRate float64                       `yaml:"service_rate"`
	SLO         float64                       `yaml:"slo"`
	Theta       *float64                      `yaml:"theta,omitempty"` // nil = DefaultTheta
	Objective   string                        `yaml:"objective"`
	Sites       []Site                        `yaml:"sites"`
	Users       []User                        `yaml:"users"`
	Latency     map[string]map[string]float64 `yaml:"latency"` // site -> user -> latency
}

// LoadInput reads and parses a planning document.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadInput(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading planning input: %w", err)
	}
	return ParseInput(data)
}

// ParseInput decodes a planning document held in memory.
func ParseInput(data []byte) (*Input, error) {
	var in Input
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&in); err != nil {
		return nil, fmt.Errorf("parsing planning input: %w", err)
	}
	return &in, nil
}

// Problem builds and validates the Problem described by the document.
func (in *Input) Problem() (*Problem, error) {
	siteIDs := make([]string, 0, len(in.Latency))
	for site := range in.Latency {
		siteIDs = append(siteIDs, site)
	}
	sort.Strings(siteIDs)
	var edges []LatencyEdge
	for _, site := range siteIDs {
		userIDs := make([]string, 0, len(in.Latency[site]))
		for user := range in.Latency[site] {
			userIDs = append(userIDs, user)
		}
		sort.Strings(userIDs)
		for _, user := range userIDs {
			edges = append(edges, LatencyEdge{Site: site, User: user, Latency: in.Latency[site][user]})
		}
	}
	return NewProblem(in.Name, in.Sites, in.Users, edges)
}

// Parameters returns the validated global parameters of the document.
func (in *Input) Parameters() (GlobalParameters, error) {
	obj, err := ParseObjective(in.Objective)
	if err != nil {
		return GlobalParameters{}, err
	}
	theta := DefaultTheta
	if in.Theta != nil {
		theta = *in.Theta
	}
	params := GlobalParameters{
		ServiceRate: in.ServiceRate,
		SLO:         in.SLO,
		Theta:       theta,
		Objective:   obj,
	}
	if err := params.Validate(); err != nil {
		return GlobalParameters{}, err
	}
	return params, nil
}

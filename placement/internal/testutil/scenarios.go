// Package testutil provides shared planning scenarios for the placement
// test packages.
package testutil

import (
	"testing"

	"github.com/inference-sim/slo-placement/placement"
)

// Params returns the global parameters shared by the scenarios:
// μ = 1 req/ms, SLO = 50 ms, θ = 0.99.
func Params(obj placement.Objective) placement.GlobalParameters {
	return placement.GlobalParameters{ServiceRate: 1, SLO: 50, Theta: 0.99, Objective: obj}
}

// TwoSiteProblem is the reference scenario: a cheap far site s1 (capacity
// 5) and a closer site s2 limited to 3 instances, serving three users at
// 0.1, 0.2 and 0.15 req/ms.
//
// The limits are λ*(s1,·) ≈ 0.1352, λ*(s2,u1) = λ*(s2,u3) ≈ 0.1469 and
// λ*(s2,u2) ≈ 0.2132. Serving everyone from s2 would need 4 instances, so
// the unique instance-minimal plan sends u1 and u3 to s1 (2 instances) and
// u2 to s2 (1 instance).
func TwoSiteProblem(t testing.TB) *placement.Problem {
	t.Helper()
	sites := []placement.Site{
		{ID: "s1", Capacity: 5, Price: 1.0},
		{ID: "s2", Capacity: 3, Price: 2.5},
	}
	users := []placement.User{
		{ID: "u1", ArrivalRate: 0.1},
		{ID: "u2", ArrivalRate: 0.2},
		{ID: "u3", ArrivalRate: 0.15},
	}
	latency := map[placement.Pair]float64{
		{Site: "s1", User: "u1"}: 48, {Site: "s1", User: "u2"}: 48, {Site: "s1", User: "u3"}: 48,
		{Site: "s2", User: "u1"}: 47.9, {Site: "s2", User: "u2"}: 47.5, {Site: "s2", User: "u3"}: 47.9,
	}
	return mustProblem(t, "two-site", sites, users, latency)
}

// WithUnreachableSite extends TwoSiteProblem with a site s3 whose latency
// to u1 alone exceeds the SLO.
func WithUnreachableSite(t testing.TB) *placement.Problem {
	t.Helper()
	base := TwoSiteProblem(t)
	sites := append(append([]placement.Site(nil), base.Sites...), placement.Site{ID: "s3", Capacity: 4})
	latency := make(map[placement.Pair]float64)
	for _, e := range base.Edges() {
		latency[placement.Pair{Site: e.Site, User: e.User}] = e.Latency
	}
	latency[placement.Pair{Site: "s3", User: "u1"}] = 49.5
	latency[placement.Pair{Site: "s3", User: "u2"}] = 20
	latency[placement.Pair{Site: "s3", User: "u3"}] = 20
	return mustProblem(t, "unreachable-site", sites, base.Users, latency)
}

func mustProblem(t testing.TB, name string, sites []placement.Site, users []placement.User, latency map[placement.Pair]float64) *placement.Problem {
	t.Helper()
	var edges []placement.LatencyEdge
	for _, s := range sites {
		for _, u := range users {
			edges = append(edges, placement.LatencyEdge{Site: s.ID, User: u.ID, Latency: latency[placement.Pair{Site: s.ID, User: u.ID}]})
		}
	}
	p, err := placement.NewProblem(name, sites, users, edges)
	if err != nil {
		t.Fatalf("building %s problem: %v", name, err)
	}
	return p
}

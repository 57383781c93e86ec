package report_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/slo-placement/placement"
	"github.com/inference-sim/slo-placement/placement/internal/testutil"
	"github.com/inference-sim/slo-placement/placement/limits"
	"github.com/inference-sim/slo-placement/placement/milp/bnb"
	"github.com/inference-sim/slo-placement/placement/planner"
	"github.com/inference-sim/slo-placement/placement/report"
	"github.com/inference-sim/slo-placement/placement/simulate"
)

func plan(t *testing.T, problem *placement.Problem) *placement.Plan {
	t.Helper()
	p, err := planner.New(bnb.New(), limits.DefaultOptions(), nil).
		Plan(context.Background(), problem, testutil.Params(placement.MinimizeInstances))
	require.NoError(t, err)
	return p
}

func TestSummarize_OperatingPointMeetsSLO(t *testing.T) {
	// GIVEN a solved plan
	p := plan(t, testutil.TwoSiteProblem(t))

	// WHEN summarised
	s, err := report.Summarize(p)
	require.NoError(t, err)

	// THEN every user meets the SLO at the configured confidence
	assert.Equal(t, 3, s.Instances)
	assert.InDelta(t, 2*1.0+1*2.5, s.Cost, 1e-12)
	require.Len(t, s.Users, 3)
	for _, u := range s.Users {
		assert.GreaterOrEqual(t, u.SLOProbability, p.Params.Theta-1e-9, u.User)
		assert.LessOrEqual(t, u.PercentileRTT, p.Params.SLO+1e-6, u.User)
		assert.Greater(t, u.PercentileRTT, u.Latency+p.Params.ServiceTime(), u.User)
		assert.Greater(t, u.MeanRTT, u.Latency+p.Params.ServiceTime(), u.User)
		assert.LessOrEqual(t, u.MeanRTT, u.PercentileRTT, u.User)
	}
	assert.Empty(t, s.Barred)
}

func TestWrite_Table(t *testing.T) {
	p := plan(t, testutil.WithUnreachableSite(t))
	var buf bytes.Buffer

	require.NoError(t, report.Write(&buf, p, report.FormatTable))

	out := buf.String()
	assert.Contains(t, out, `Plan "unreachable-site"`)
	assert.Contains(t, out, "s3")
	assert.Contains(t, out, "Barred pairs")
	assert.Contains(t, out, "49.5")
}

func TestWrite_YAMLRoundTrips(t *testing.T) {
	p := plan(t, testutil.TwoSiteProblem(t))
	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, p, report.FormatYAML))

	var got report.Summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	want, err := report.Summarize(p)
	require.NoError(t, err)
	assert.Equal(t, want.Sites, got.Sites)
	assert.Equal(t, placement.MinimizeInstances, got.Objective)
}

func TestWrite_UnknownFormat(t *testing.T) {
	p := plan(t, testutil.TwoSiteProblem(t))
	assert.ErrorContains(t, report.Write(&bytes.Buffer{}, p, "csv"), "unknown report format")
	assert.False(t, report.IsValidFormat("csv"))
	assert.True(t, report.IsValidFormat(report.FormatYAML))
}

func TestWriteLimits(t *testing.T) {
	table := placement.NewLimitTable([]placement.ArrivalRateLimit{
		{Pair: placement.Pair{Site: "s1", User: "u1"}, Latency: 10, Budget: 39, Limit: 0.9426, Iterations: 8},
		{Pair: placement.Pair{Site: "s3", User: "u1"}, Latency: 49.5, Budget: -0.5,
			Err: &placement.InfeasiblePairError{Site: "s3", User: "u1", Latency: 49.5, Budget: -0.5}},
	})

	var tbl bytes.Buffer
	require.NoError(t, report.WriteLimits(&tbl, table, report.FormatTable))
	assert.Contains(t, tbl.String(), "0.9426")
	assert.Contains(t, tbl.String(), "barred")

	var doc bytes.Buffer
	require.NoError(t, report.WriteLimits(&doc, table, report.FormatYAML))
	var rows []report.LimitRow
	require.NoError(t, yaml.Unmarshal(doc.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Feasible)
	assert.False(t, rows[1].Feasible)
	assert.Equal(t, -0.5, rows[1].Budget)
}

func TestWriteSimulation(t *testing.T) {
	// GIVEN a short simulation of a solved plan
	p := plan(t, testutil.TwoSiteProblem(t))
	cfg := simulate.DefaultConfig()
	cfg.Horizon = 5000
	res, err := simulate.Run(p, cfg)
	require.NoError(t, err)

	// WHEN rendered as a table
	var tbl bytes.Buffer
	require.NoError(t, report.WriteSimulation(&tbl, res, p.Params.Theta, report.FormatTable))

	// THEN every user appears with the event count in the heading
	assert.Contains(t, tbl.String(), "Simulation: ")
	for _, u := range res.Users {
		assert.Contains(t, tbl.String(), u.User)
	}

	// AND the YAML form decodes back to the same measurements
	var doc bytes.Buffer
	require.NoError(t, report.WriteSimulation(&doc, res, p.Params.Theta, report.FormatYAML))
	var back struct {
		Simulation simulate.Result `yaml:"simulation"`
	}
	require.NoError(t, yaml.Unmarshal(doc.Bytes(), &back))
	assert.Equal(t, res.Events, back.Simulation.Events)
	require.Len(t, back.Simulation.Users, len(res.Users))
	assert.Equal(t, res.Users[0].MetSLO, back.Simulation.Users[0].MetSLO)

	assert.Error(t, report.WriteSimulation(&bytes.Buffer{}, res, p.Params.Theta, "csv"))
}

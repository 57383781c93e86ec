package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/slo-placement/placement"
	"github.com/inference-sim/slo-placement/placement/limits"
	"github.com/inference-sim/slo-placement/placement/metrics"
	"github.com/inference-sim/slo-placement/placement/milp/bnb"
	"github.com/inference-sim/slo-placement/placement/planner"
	"github.com/inference-sim/slo-placement/placement/report"
	"github.com/inference-sim/slo-placement/placement/simulate"
)

var (
	maxNodes    int    // Branch-and-bound node budget
	metricsFile string // Prometheus textfile output

	// Simulation of the resulting plan
	simHorizon float64 // Simulated time; 0 disables the simulation
	simWarmup  float64 // Unmeasured prefix of the simulated time
	simSeed    int64   // Simulation RNG seed
	simProcess string  // Arrival process (poisson, gamma)
	simCV      float64 // Gamma inter-arrival coefficient of variation
	simService string  // Service time distribution (deterministic, exponential)
)

// planCmd computes and prints an optimal placement
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute an SLO-feasible placement of instances and users",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := runPlan(ctx, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Planning failed: %v", err)
		}
	},
}

func runPlan(ctx context.Context, w io.Writer) error {
	if !report.IsValidFormat(format) {
		return fmt.Errorf("unknown --format %q; valid: table, yaml", format)
	}
	problem, params, err := loadProblem()
	if err != nil {
		return err
	}

	solver := bnb.New()
	if maxNodes > 0 {
		solver.MaxNodes = maxNodes
	}
	var rec *metrics.Recorder
	if metricsFile != "" {
		rec = metrics.NewRecorder()
	}

	plan, err := planner.New(solver, limitOptions(), rec).Plan(ctx, problem, params)
	if err != nil {
		return err
	}
	if err := report.Write(w, plan, format); err != nil {
		return err
	}
	if simHorizon > 0 {
		cfg := simulate.Config{
			Seed:    simSeed,
			Horizon: simHorizon,
			Warmup:  simWarmup,
			Process: simProcess,
			CV:      simCV,
			Service: simService,
		}
		res, err := simulate.Run(plan, cfg)
		if err != nil {
			return err
		}
		if err := report.WriteSimulation(w, res, plan.Params.Theta, format); err != nil {
			return err
		}
	}
	if metricsFile != "" {
		if err := rec.WriteTextfile(metricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
		logrus.Infof("metrics written to %s", metricsFile)
	}
	return nil
}

// loadProblem reads the planning document named by --input or --legacy and
// applies the command-line overrides.
func loadProblem() (*placement.Problem, placement.GlobalParameters, error) {
	var (
		in  *placement.Input
		err error
	)
	switch {
	case inputPath != "" && legacyPath != "":
		return nil, placement.GlobalParameters{}, fmt.Errorf("--input and --legacy are mutually exclusive")
	case legacyPath != "":
		in, err = placement.LoadLegacyInput(legacyPath)
	case inputPath != "":
		in, err = placement.LoadInput(inputPath)
	default:
		return nil, placement.GlobalParameters{}, fmt.Errorf("one of --input or --legacy is required")
	}
	if err != nil {
		return nil, placement.GlobalParameters{}, err
	}
	if objectiveName != "" {
		in.Objective = objectiveName
	}
	if theta != 0 {
		in.Theta = &theta
	}
	params, err := in.Parameters()
	if err != nil {
		return nil, placement.GlobalParameters{}, err
	}
	problem, err := in.Problem()
	if err != nil {
		return nil, placement.GlobalParameters{}, err
	}
	return problem, params, nil
}

func limitOptions() limits.Options {
	opts := limits.DefaultOptions()
	if workers > 0 {
		opts.Workers = workers
	}
	opts.StrictPairs = strictPairs
	return opts
}

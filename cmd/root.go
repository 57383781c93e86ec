package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/slo-placement/placement/simulate"
)

var (
	logLevel string // Log verbosity level

	// Planning input
	inputPath     string  // Planning document (YAML or JSON)
	legacyPath    string  // Legacy flat JSON document
	objectiveName string  // Objective override
	theta         float64 // SLO confidence override; 0 keeps the input value

	// Limit computation
	workers     int  // Concurrent pair evaluations
	strictPairs bool // Abort on the first infeasible pair

	// Output
	format string // Report format (table, yaml)
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "slo-placement",
	Short: "SLO-aware placement planner for service instances across sites",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addInputFlags registers the flags shared by commands that read a
// planning document.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&inputPath, "input", "", "Planning document (YAML or JSON)")
	cmd.Flags().StringVar(&legacyPath, "legacy", "", "Legacy flat JSON planning document")
	cmd.Flags().StringVar(&objectiveName, "objective", "", "Objective override (min-open-sites, min-instances, min-latency)")
	cmd.Flags().Float64Var(&theta, "theta", 0, "SLO confidence override in (0, 1); 0 keeps the input value")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent arrival-rate limit computations (0 = GOMAXPROCS)")
	cmd.Flags().BoolVar(&strictPairs, "strict-pairs", false, "Fail when a (site, user) pair cannot meet the SLO instead of barring it")
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table, yaml)")
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	addInputFlags(planCmd)
	planCmd.Flags().IntVar(&maxNodes, "max-nodes", 0, "Branch-and-bound node budget (0 = solver default)")
	planCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics in prometheus text format to this file")
	simDefaults := simulate.DefaultConfig()
	planCmd.Flags().Float64Var(&simHorizon, "simulate-horizon", 0, "Simulate the plan for this many time units and report SLO attainment (0 = skip)")
	planCmd.Flags().Float64Var(&simWarmup, "simulate-warmup", simDefaults.Warmup, "Simulated time excluded from measurement")
	planCmd.Flags().Int64Var(&simSeed, "seed", simDefaults.Seed, "Seed for the simulation random number generators")
	planCmd.Flags().StringVar(&simProcess, "arrival-process", simDefaults.Process, "Simulated arrival process (poisson, gamma)")
	planCmd.Flags().Float64Var(&simCV, "arrival-cv", simDefaults.CV, "Coefficient of variation of gamma inter-arrival times")
	planCmd.Flags().StringVar(&simService, "service", simDefaults.Service, "Simulated service time distribution (deterministic, exponential)")
	rootCmd.AddCommand(planCmd)

	addInputFlags(limitsCmd)
	rootCmd.AddCommand(limitsCmd)

	probabilityCmd.Flags().Float64Var(&waitBound, "wait", 0, "Waiting-time bound t")
	probabilityCmd.Flags().Float64Var(&arrivalRate, "lambda", 0, "Per-instance arrival rate")
	probabilityCmd.Flags().Float64Var(&serviceRate, "mu", 1, "Instance service rate")
	rootCmd.AddCommand(probabilityCmd)
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/slo-placement/placement/limits"
	"github.com/inference-sim/slo-placement/placement/report"
)

// limitsCmd prints the arrival-rate limit of every (site, user) pair
var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Print the per-instance arrival-rate limit of every (site, user) pair",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := runLimits(ctx, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Computing limits failed: %v", err)
		}
	},
}

func runLimits(ctx context.Context, w io.Writer) error {
	if !report.IsValidFormat(format) {
		return fmt.Errorf("unknown --format %q; valid: table, yaml", format)
	}
	problem, params, err := loadProblem()
	if err != nil {
		return err
	}
	table, err := limits.Solve(ctx, problem, params, limitOptions())
	if err != nil {
		return err
	}
	return report.WriteLimits(w, table, format)
}

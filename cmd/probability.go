package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/slo-placement/placement/queueing"
)

var (
	waitBound   float64 // t
	arrivalRate float64 // λ
	serviceRate float64 // μ
)

// probabilityCmd evaluates the waiting-time model at one point
var probabilityCmd = &cobra.Command{
	Use:   "probability",
	Short: "Evaluate P(W <= t) for a single-server queue at arrival rate lambda",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runProbability(cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Evaluation failed: %v", err)
		}
	},
}

func runProbability(w io.Writer) error {
	p, err := queueing.WaitingTimeProbability(waitBound, arrivalRate, serviceRate)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "P(W <= %g | lambda=%g, mu=%g) = %.15g\n", waitBound, arrivalRate, serviceRate, p)
	fmt.Fprintf(w, "mean wait = %.15g\n", queueing.MeanWait(arrivalRate, serviceRate))
	fmt.Fprintf(w, "precision = %d digits\n", queueing.Precision(waitBound, arrivalRate))
	return nil
}

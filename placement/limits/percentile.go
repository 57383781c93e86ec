package limits

import (
	"fmt"

	"github.com/inference-sim/slo-placement/placement"
	"github.com/inference-sim/slo-placement/placement/queueing"
	"github.com/inference-sim/slo-placement/placement/rootfind"
)

// maxPercentileExpansions bounds how often the upper end of the search is
// doubled before giving up.
const maxPercentileExpansions = 60

// Percentile returns the q-quantile of the response time seen by a user at
// the given network latency when its instance receives arrival rate lambda:
// the smallest r with P(W <= r - latency - 1/μ) >= q. It inverts the same
// waiting-time model used for the limits and is meant for reporting.
func Percentile(q, latency, lambda float64, params placement.GlobalParameters) (float64, error) {
	if q <= 0 || q >= 1 {
		return 0, fmt.Errorf("percentile level must be in (0, 1), got %v", q)
	}
	mu := params.ServiceRate
	if lambda >= mu {
		return 0, fmt.Errorf("arrival rate %g saturates service rate %g", lambda, mu)
	}
	floor := latency + params.ServiceTime()
	f := func(r float64) (float64, error) {
		p, err := queueing.WaitingTimeProbability(r-floor, lambda, mu)
		return p - q, err
	}

	flo, err := f(floor)
	if err != nil {
		return 0, err
	}
	if flo >= 0 {
		return floor, nil
	}
	hi := floor + params.SLO + 1
	for i := 0; ; i++ {
		fhi, err := f(hi)
		if err != nil {
			return 0, err
		}
		if fhi >= 0 {
			break
		}
		if i == maxPercentileExpansions {
			return 0, fmt.Errorf("no response time reaches percentile %v below %g", q, hi)
		}
		hi = floor + 2*(hi-floor)
	}

	res, err := rootfind.Brent(f, floor, hi, rootfind.DefaultSettings())
	if err != nil {
		return 0, fmt.Errorf("percentile %v at lambda=%g: %w", q, lambda, err)
	}
	r, _ := res.NonNegativeEnd()
	return r, nil
}

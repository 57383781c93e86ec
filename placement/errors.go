package placement

import (
	"fmt"
)

// ConfigurationError reports a missing or invalid run parameter or input
// field. It is fatal: no default is substituted for the offending value.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InfeasiblePairError marks a (site, user) pair whose latency leaves no
// queueing budget that can meet the SLO at the configured confidence.
// Such a pair is barred from assignment rather than given a zero limit.
type InfeasiblePairError struct {
	Site    string
	User    string
	Latency float64
	Budget  float64 // SLO - latency - service time; negative when latency alone breaks the SLO
}

func (e *InfeasiblePairError) Error() string {
	return fmt.Sprintf("pair (%s, %s) is infeasible: latency %g leaves queueing budget %g",
		e.Site, e.User, e.Latency, e.Budget)
}

// NumericalNonConvergenceError reports that root finding could not produce
// an arrival-rate limit for a pair. Unlike InfeasiblePairError this is a
// limitation of the numerical method, not a property of the pair.
type NumericalNonConvergenceError struct {
	Site       string
	User       string
	Iterations int
	Cause      error
}

func (e *NumericalNonConvergenceError) Error() string {
	return fmt.Sprintf("pair (%s, %s): root finding did not converge after %d iterations: %v",
		e.Site, e.User, e.Iterations, e.Cause)
}

func (e *NumericalNonConvergenceError) Unwrap() error { return e.Cause }

// ModelInfeasibleError reports that the solver found no feasible placement.
// No partial plan accompanies it.
type ModelInfeasibleError struct {
	Status string
}

func (e *ModelInfeasibleError) Error() string {
	return fmt.Sprintf("no placement satisfies capacity, assignment and SLO constraints (solver status: %s)", e.Status)
}

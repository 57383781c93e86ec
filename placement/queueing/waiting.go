// Package queueing computes waiting-time guarantees for a single FIFO
// server with Poisson arrivals at rate λ and service rate μ.
package queueing

import (
	"fmt"
	"math"

	"github.com/cockroachdb/apd"
)

// MinPrecision is the fewest significant decimal digits used for the
// waiting-time series.
const MinPrecision = 80

// Precision returns the working precision for a series evaluation at
// (t, λ). Each term is bounded by e^{2λt}, so that many decimal digits are
// added on top of MinPrecision to absorb the cancellation between terms.
func Precision(t, lambda float64) uint32 {
	guard := math.Ceil(2 * lambda * t / math.Ln10)
	if guard < 0 || math.IsNaN(guard) {
		guard = 0
	}
	return MinPrecision + uint32(guard)
}

// WaitingTimeProbability returns P(W <= t), the probability that a request
// waits at most t before service starts.
//
// It is 0 for an unstable queue (λ >= μ) and for t < 0, and 1 when there is
// no traffic (λ <= 0). Otherwise it evaluates
//
//	(1 - λ/μ) Σ_{i=0}^{⌊tμ⌋} e^{-λ(i/μ - t)} (λ(i/μ - t))^i / i!
//
// in arbitrary-precision decimals. The terms alternate in sign and reach
// magnitudes far beyond the result, so float64 summation is not usable.
func WaitingTimeProbability(t, lambda, mu float64) (float64, error) {
	if math.IsNaN(mu) || math.IsInf(mu, 0) || mu <= 0 {
		return 0, fmt.Errorf("service rate must be a finite positive number, got %v", mu)
	}
	if math.IsNaN(t) || math.IsNaN(lambda) {
		return 0, fmt.Errorf("waiting time probability undefined for t=%v, lambda=%v", t, lambda)
	}
	switch {
	case t < 0:
		return 0, nil
	case lambda >= mu:
		return 0, nil
	case lambda <= 0:
		return 1, nil
	case math.IsInf(t, 1):
		return 1, nil
	}

	ctx := apd.BaseContext.WithPrecision(Precision(t, lambda))
	ed := apd.MakeErrDecimal(ctx)

	dl, err := decimal(lambda)
	if err != nil {
		return 0, err
	}
	dm, err := decimal(mu)
	if err != nil {
		return 0, err
	}
	dt, err := decimal(t)
	if err != nil {
		return 0, err
	}

	n := int64(math.Floor(t * mu))
	sum := apd.New(0, 0)
	fact := apd.New(1, 0)
	for i := int64(0); i <= n; i++ {
		if i > 0 {
			ed.Mul(fact, fact, apd.New(i, 0))
		}
		// offset = i/μ - t, never positive for i <= ⌊tμ⌋
		offset := new(apd.Decimal)
		ed.Quo(offset, apd.New(i, 0), dm)
		ed.Sub(offset, offset, dt)

		scaled := new(apd.Decimal)
		ed.Mul(scaled, dl, offset)

		exp := new(apd.Decimal)
		ed.Neg(exp, scaled)
		ed.Exp(exp, exp)

		term := intPow(&ed, scaled, i)
		ed.Mul(term, term, exp)
		ed.Quo(term, term, fact)
		ed.Add(sum, sum, term)
	}

	idle := new(apd.Decimal)
	ed.Quo(idle, dl, dm)
	ed.Sub(idle, apd.New(1, 0), idle)
	ed.Mul(sum, sum, idle)
	if err := ed.Err(); err != nil {
		return 0, fmt.Errorf("waiting time series at t=%v, lambda=%v, mu=%v: %w", t, lambda, mu, err)
	}

	p, err := sum.Float64()
	if err != nil {
		return 0, fmt.Errorf("converting waiting time probability: %w", err)
	}
	return clamp01(p), nil
}

// intPow returns base^k by repeated squaring, with 0^0 = 1.
func intPow(ed *apd.ErrDecimal, base *apd.Decimal, k int64) *apd.Decimal {
	result := apd.New(1, 0)
	sq := new(apd.Decimal).Set(base)
	for k > 0 {
		if k&1 == 1 {
			ed.Mul(result, result, sq)
		}
		k >>= 1
		if k > 0 {
			ed.Mul(sq, sq, sq)
		}
	}
	return result
}

func decimal(f float64) (*apd.Decimal, error) {
	d, err := new(apd.Decimal).SetFloat64(f)
	if err != nil {
		return nil, fmt.Errorf("converting %v to decimal: %w", f, err)
	}
	return d, nil
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// MeanWait is the mean queueing delay ρ/(2μ(1-ρ)) at utilisation ρ = λ/μ.
// It is +Inf for an unstable queue.
func MeanWait(lambda, mu float64) float64 {
	rho := lambda / mu
	if rho >= 1 {
		return math.Inf(1)
	}
	if rho <= 0 {
		return 0
	}
	return rho / (2 * mu * (1 - rho))
}

// MeanWaitSlope is d(MeanWait)/dλ = 1/(2(μ-λ)²).
func MeanWaitSlope(lambda, mu float64) float64 {
	if lambda >= mu {
		return math.Inf(1)
	}
	if lambda < 0 {
		lambda = 0
	}
	d := mu - lambda
	return 1 / (2 * d * d)
}

// Package rootfind locates roots of scalar functions inside a bracket
// without derivatives.
package rootfind

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoBracket is returned when f(a) and f(b) have the same sign.
	ErrNoBracket = errors.New("rootfind: root not bracketed")
	// ErrMaxIterations is returned when the bracket did not shrink below
	// tolerance within the iteration budget.
	ErrMaxIterations = errors.New("rootfind: iteration budget exhausted")
)

// Func is a scalar function that may fail to evaluate.
type Func func(x float64) (float64, error)

// Settings bound the search.
type Settings struct {
	XTol          float64 // absolute tolerance on the root
	RTol          float64 // relative tolerance on the root
	MaxIterations int
}

// DefaultSettings mirrors the tolerances commonly used for Brent's method.
func DefaultSettings() Settings {
	return Settings{
		XTol:          2e-12,
		RTol:          4 * 2.220446049250313e-16,
		MaxIterations: 100,
	}
}

// Result is a converged bracket. Root is the best estimate; Partner is the
// other end of the final bracket, so f(Root) and f(Partner) never share a
// strict sign.
type Result struct {
	Root       float64
	FRoot      float64
	Partner    float64
	FPartner   float64
	Iterations int
}

// NonNegativeEnd returns whichever end of the bracket has f >= 0, together
// with its function value.
func (r Result) NonNegativeEnd() (x, fx float64) {
	if r.FRoot >= 0 {
		return r.Root, r.FRoot
	}
	return r.Partner, r.FPartner
}

// BracketError reports the function values at the ends of a bracket that
// does not straddle a root.
type BracketError struct {
	A, B   float64
	FA, FB float64
}

func (e *BracketError) Error() string {
	return fmt.Sprintf("%v: f(%g)=%g, f(%g)=%g", ErrNoBracket, e.A, e.FA, e.B, e.FB)
}

func (e *BracketError) Unwrap() error { return ErrNoBracket }

// Brent finds a root of f in [a, b] with the Brent–Dekker method: inverse
// quadratic interpolation or secant steps when they make progress, bisection
// otherwise. f(a) and f(b) must differ in sign.
func Brent(f Func, a, b float64, s Settings) (Result, error) {
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultSettings().MaxIterations
	}
	xpre, xcur := a, b
	fpre, err := f(xpre)
	if err != nil {
		return Result{}, err
	}
	fcur, err := f(xcur)
	if err != nil {
		return Result{}, err
	}
	if fpre == 0 {
		return Result{Root: xpre, FRoot: fpre, Partner: xcur, FPartner: fcur}, nil
	}
	if fcur == 0 {
		return Result{Root: xcur, FRoot: fcur, Partner: xpre, FPartner: fpre}, nil
	}
	if math.Signbit(fpre) == math.Signbit(fcur) {
		return Result{}, &BracketError{A: a, B: b, FA: fpre, FB: fcur}
	}

	var xblk, fblk, spre, scur float64
	for i := 1; i <= s.MaxIterations; i++ {
		if fpre != 0 && fcur != 0 && math.Signbit(fpre) != math.Signbit(fcur) {
			xblk, fblk = xpre, fpre
			spre = xcur - xpre
			scur = spre
		}
		if math.Abs(fblk) < math.Abs(fcur) {
			xpre, xcur, xblk = xcur, xblk, xcur
			fpre, fcur, fblk = fcur, fblk, fcur
		}

		delta := (s.XTol + s.RTol*math.Abs(xcur)) / 2
		sbis := (xblk - xcur) / 2
		if fcur == 0 || math.Abs(sbis) < delta {
			return Result{Root: xcur, FRoot: fcur, Partner: xblk, FPartner: fblk, Iterations: i}, nil
		}

		if math.Abs(spre) > delta && math.Abs(fcur) < math.Abs(fpre) {
			var stry float64
			if xpre == xblk {
				// secant
				stry = -fcur * (xcur - xpre) / (fcur - fpre)
			} else {
				// inverse quadratic interpolation
				dpre := (fpre - fcur) / (xpre - xcur)
				dblk := (fblk - fcur) / (xblk - xcur)
				stry = -fcur * (fblk*dblk - fpre*dpre) / (dblk * dpre * (fblk - fpre))
			}
			if 2*math.Abs(stry) < math.Min(math.Abs(spre), 3*math.Abs(sbis)-delta) {
				spre, scur = scur, stry
			} else {
				spre, scur = sbis, sbis
			}
		} else {
			spre, scur = sbis, sbis
		}

		xpre, fpre = xcur, fcur
		if math.Abs(scur) > delta {
			xcur += scur
		} else if sbis > 0 {
			xcur += delta
		} else {
			xcur -= delta
		}
		if fcur, err = f(xcur); err != nil {
			return Result{}, err
		}
	}
	return Result{Root: xcur, FRoot: fcur, Partner: xblk, FPartner: fblk, Iterations: s.MaxIterations}, ErrMaxIterations
}

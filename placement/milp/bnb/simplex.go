package bnb

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/inference-sim/slo-placement/placement/milp"
)

var errUnbounded = errors.New("bnb: relaxation is unbounded")

const (
	pivotTolerance = 1e-9
	tieTolerance   = 1e-12
	// blandAfter switches pricing to Bland's rule after this many
	// consecutive degenerate pivots, which rules out cycling.
	blandAfter = 50
)

// row is one relaxation constraint over the free columns, already shifted
// by the column lower bounds.
type row struct {
	coef  []float64
	sense milp.Sense
	rhs   float64
}

// tableau is a dense bounded-variable primal simplex: every column j lies
// in [0, upper[j]] and nonbasic columns sit at one of their bounds.
// Columns are the structural variables, then one slack per inequality,
// then one artificial per row whose slack cannot start in the basis.
type tableau struct {
	t       *mat.Dense // B⁻¹A
	beta    []float64  // values of the basic columns, by row
	basis   []int      // basic column of each row
	rowOf   []int      // row of a basic column, -1 when nonbasic
	upper   []float64
	atUpper []bool

	structural  int
	artificials []int

	tol     float64
	maxIter int
}

func newTableau(rows []row, upper []float64, tol float64) *tableau {
	m, k := len(rows), len(upper)
	slacks := 0
	for _, r := range rows {
		if r.sense != milp.Equal {
			slacks++
		}
	}

	// Decide the starting basic column of every row first so the width is
	// known: the slack when it can carry the right-hand side, otherwise a
	// fresh artificial.
	type start struct {
		slack, sign float64
		slackCol    int
		artificial  bool
	}
	starts := make([]start, m)
	nextSlack, arts := k, 0
	for i, r := range rows {
		st := start{slackCol: -1}
		switch r.sense {
		case milp.LessEqual:
			st.slack = 1
		case milp.GreaterEqual:
			st.slack = -1
		}
		if st.slack != 0 {
			st.slackCol = nextSlack
			nextSlack++
		}
		if st.slack != 0 && st.slack*r.rhs >= 0 {
			st.sign = st.slack
		} else {
			st.artificial = true
			st.sign = 1
			if r.rhs < 0 {
				st.sign = -1
			}
			arts++
		}
		starts[i] = st
	}

	n := k + slacks + arts
	tb := &tableau{
		t:          mat.NewDense(m, n, nil),
		beta:       make([]float64, m),
		basis:      make([]int, m),
		rowOf:      make([]int, n),
		upper:      make([]float64, n),
		atUpper:    make([]bool, n),
		structural: k,
		tol:        tol,
		maxIter:    50*(m+n) + 1000,
	}
	copy(tb.upper, upper)
	for j := k; j < n; j++ {
		tb.upper[j] = math.Inf(1)
	}
	for j := range tb.rowOf {
		tb.rowOf[j] = -1
	}

	nextArt := k + slacks
	for i, r := range rows {
		st := starts[i]
		// Scale the row by sign so the starting basic column has
		// coefficient +1 and the right-hand side is non-negative.
		dst := tb.t.RawRowView(i)
		for j, a := range r.coef {
			dst[j] = st.sign * a
		}
		tb.beta[i] = st.sign * r.rhs
		basic := st.slackCol
		if st.slackCol >= 0 {
			dst[st.slackCol] = st.sign * st.slack
		}
		if st.artificial {
			basic = nextArt
			dst[nextArt] = 1
			tb.artificials = append(tb.artificials, nextArt)
			nextArt++
		}
		tb.basis[i] = basic
		tb.rowOf[basic] = i
	}
	return tb
}

// solve minimises cost over the structural columns. It reports
// milp.Infeasible when no point satisfies the rows and errUnbounded when
// the objective has no lower bound.
func (tb *tableau) solve(cost []float64) (milp.Status, error) {
	if len(tb.artificials) > 0 {
		phase1 := make([]float64, len(tb.upper))
		scale := 1.0
		for _, j := range tb.artificials {
			phase1[j] = 1
		}
		for _, b := range tb.beta {
			scale = math.Max(scale, math.Abs(b))
		}
		if err := tb.iterate(phase1); err != nil {
			return 0, err
		}
		var residual float64
		for i, j := range tb.basis {
			if phase1[j] != 0 {
				residual += tb.beta[i]
			}
		}
		if residual > 1e-7*scale {
			return milp.Infeasible, nil
		}
		// Artificials stay at zero from here on. Basic ones left over
		// belong to redundant rows and leave on the first pivot touching
		// them.
		for _, j := range tb.artificials {
			tb.upper[j] = 0
			if r := tb.rowOf[j]; r >= 0 {
				tb.beta[r] = 0
			}
		}
	}
	full := make([]float64, len(tb.upper))
	copy(full, cost)
	if err := tb.iterate(full); err != nil {
		if errors.Is(err, errUnbounded) {
			return milp.Unbounded, nil
		}
		return 0, err
	}
	return milp.Optimal, nil
}

func (tb *tableau) iterate(cost []float64) error {
	m, n := tb.t.Dims()
	cb := mat.NewVecDense(m, nil)
	priced := mat.NewVecDense(n, nil)
	degenerate := 0
	for iter := 0; ; iter++ {
		if iter > tb.maxIter {
			return errors.New("bnb: simplex iteration limit reached")
		}
		for i, j := range tb.basis {
			cb.SetVec(i, cost[j])
		}
		priced.MulVec(tb.t.T(), cb)

		bland := degenerate > blandAfter
		q, best := -1, 0.0
		for j := 0; j < n; j++ {
			if tb.rowOf[j] >= 0 || tb.upper[j] <= 0 {
				continue
			}
			d := cost[j] - priced.AtVec(j)
			gain := -d
			if tb.atUpper[j] {
				gain = d
			}
			if gain <= tb.tol {
				continue
			}
			if q < 0 || (!bland && gain > best) {
				q, best = j, gain
			}
			if bland {
				break
			}
		}
		if q < 0 {
			return nil
		}

		dir := 1.0
		if tb.atUpper[q] {
			dir = -1
		}
		theta, leave, leaveToUpper := tb.upper[q], -1, false
		var pivot float64
		for i := 0; i < m; i++ {
			alpha := dir * tb.t.At(i, q)
			if math.Abs(alpha) <= pivotTolerance {
				continue
			}
			var ratio float64
			toUpper := false
			if alpha > 0 {
				ratio = tb.beta[i] / alpha
			} else {
				ub := tb.upper[tb.basis[i]]
				if math.IsInf(ub, 1) {
					continue
				}
				ratio = (ub - tb.beta[i]) / -alpha
				toUpper = true
			}
			ratio = math.Max(ratio, 0)
			better := ratio < theta-tieTolerance
			if !better && leave >= 0 && ratio <= theta+tieTolerance {
				if bland {
					better = tb.basis[i] < tb.basis[leave]
				} else {
					better = math.Abs(alpha) > math.Abs(pivot)
				}
			}
			if better {
				theta, leave, leaveToUpper, pivot = ratio, i, toUpper, alpha
			}
		}
		if math.IsInf(theta, 1) {
			return errUnbounded
		}

		if theta <= tb.tol {
			degenerate++
		} else {
			degenerate = 0
		}
		for i := 0; i < m; i++ {
			tb.beta[i] -= dir * theta * tb.t.At(i, q)
		}
		entering := dir * theta
		if tb.atUpper[q] {
			entering += tb.upper[q]
		}
		if leave < 0 {
			tb.atUpper[q] = !tb.atUpper[q]
			continue
		}

		out := tb.basis[leave]
		tb.rowOf[out] = -1
		tb.atUpper[out] = leaveToUpper
		tb.pivot(leave, q)
		tb.basis[leave] = q
		tb.rowOf[q] = leave
		tb.atUpper[q] = false
		tb.beta[leave] = entering
	}
}

func (tb *tableau) pivot(r, q int) {
	m, _ := tb.t.Dims()
	prow := tb.t.RawRowView(r)
	floats.Scale(1/prow[q], prow)
	prow[q] = 1
	for i := 0; i < m; i++ {
		if i == r {
			continue
		}
		dst := tb.t.RawRowView(i)
		if f := dst[q]; f != 0 {
			floats.AddScaled(dst, -f, prow)
			dst[q] = 0
		}
	}
}

// values returns the structural columns of the current basic solution,
// clamped into their bounds.
func (tb *tableau) values() []float64 {
	x := make([]float64, tb.structural)
	for j := range x {
		switch {
		case tb.rowOf[j] >= 0:
			x[j] = tb.beta[tb.rowOf[j]]
		case tb.atUpper[j]:
			x[j] = tb.upper[j]
		}
		x[j] = math.Min(math.Max(x[j], 0), tb.upper[j])
	}
	return x
}

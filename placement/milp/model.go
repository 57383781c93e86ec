// Package milp describes mixed-integer linear programs independently of
// the engine that solves them. A Solver accepts a Model and returns either
// an optimal assignment of every variable or an explicit status.
package milp

import (
	"context"
	"fmt"
	"math"
)

// VarType is the domain of a decision variable.
type VarType int

const (
	Continuous VarType = iota
	Integer
	Binary
)

func (t VarType) String() string {
	switch t {
	case Continuous:
		return "continuous"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	}
	return fmt.Sprintf("VarType(%d)", int(t))
}

// Variable is a typed decision variable with bounds. Upper may be +Inf.
type Variable struct {
	Name  string
	Type  VarType
	Lower float64
	Upper float64
}

// IsIntegral reports whether the variable must take an integer value.
func (v Variable) IsIntegral() bool {
	return v.Type == Integer || v.Type == Binary
}

// Sense is the relation of a linear constraint.
type Sense int

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "="
	}
	return fmt.Sprintf("Sense(%d)", int(s))
}

// Term is coef·x[Var].
type Term struct {
	Var  int
	Coef float64
}

// Constraint is Σ terms (sense) RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Direction of optimisation.
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

// Objective is a linear function to optimise.
type Objective struct {
	Direction Direction
	Terms     []Term
	Constant  float64
}

// Model is a mixed-integer linear program.
type Model struct {
	Name        string
	Variables   []Variable
	Constraints []Constraint
	Objective   Objective
}

// NewModel returns an empty minimisation model.
func NewModel(name string) *Model {
	return &Model{Name: name}
}

// AddVariable appends a variable and returns its index. Binary variables
// are clamped to [0, 1].
func (m *Model) AddVariable(name string, typ VarType, lower, upper float64) int {
	if typ == Binary {
		lower = math.Max(lower, 0)
		upper = math.Min(upper, 1)
	}
	m.Variables = append(m.Variables, Variable{Name: name, Type: typ, Lower: lower, Upper: upper})
	return len(m.Variables) - 1
}

// AddConstraint appends Σ terms (sense) rhs.
func (m *Model) AddConstraint(name string, sense Sense, rhs float64, terms ...Term) {
	m.Constraints = append(m.Constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// SetObjective replaces the objective.
func (m *Model) SetObjective(dir Direction, terms ...Term) {
	m.Objective = Objective{Direction: dir, Terms: terms}
}

// Validate checks variable indices, bounds and coefficients.
func (m *Model) Validate() error {
	for i, v := range m.Variables {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || v.Lower > v.Upper {
			return fmt.Errorf("milp: variable %d (%s) has invalid bounds [%v, %v]", i, v.Name, v.Lower, v.Upper)
		}
	}
	check := func(where string, terms []Term) error {
		for _, t := range terms {
			if t.Var < 0 || t.Var >= len(m.Variables) {
				return fmt.Errorf("milp: %s references unknown variable %d", where, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("milp: %s has non-finite coefficient on %s", where, m.Variables[t.Var].Name)
			}
		}
		return nil
	}
	for _, c := range m.Constraints {
		if err := check("constraint "+c.Name, c.Terms); err != nil {
			return err
		}
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("milp: constraint %s has non-finite right-hand side", c.Name)
		}
	}
	return check("objective", m.Objective.Terms)
}

// Evaluate returns the objective value at values.
func (m *Model) Evaluate(values []float64) float64 {
	return m.Objective.Constant + dot(m.Objective.Terms, values)
}

// CheckFeasible verifies bounds, integrality and every constraint at values
// within tol.
func (m *Model) CheckFeasible(values []float64, tol float64) error {
	if len(values) != len(m.Variables) {
		return fmt.Errorf("milp: %d values for %d variables", len(values), len(m.Variables))
	}
	for i, v := range m.Variables {
		x := values[i]
		if x < v.Lower-tol || x > v.Upper+tol {
			return fmt.Errorf("milp: %s = %v outside [%v, %v]", v.Name, x, v.Lower, v.Upper)
		}
		if v.IsIntegral() && math.Abs(x-math.Round(x)) > tol {
			return fmt.Errorf("milp: %s = %v is not integral", v.Name, x)
		}
	}
	for _, c := range m.Constraints {
		lhs := dot(c.Terms, values)
		var ok bool
		switch c.Sense {
		case LessEqual:
			ok = lhs <= c.RHS+tol
		case GreaterEqual:
			ok = lhs >= c.RHS-tol
		case Equal:
			ok = math.Abs(lhs-c.RHS) <= tol
		}
		if !ok {
			return fmt.Errorf("milp: constraint %s violated: %v %v %v", c.Name, lhs, c.Sense, c.RHS)
		}
	}
	return nil
}

func dot(terms []Term, values []float64) float64 {
	var s float64
	for _, t := range terms {
		s += t.Coef * values[t.Var]
	}
	return s
}

// Status is the outcome of a solve.
type Status int

const (
	Optimal Status = iota
	Infeasible
	Unbounded
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Solution is a solver's answer. Values and Objective are only meaningful
// when Status is Optimal.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int // search nodes explored, if the engine reports it
}

// Solver is the constraint-solving capability used by the planner.
type Solver interface {
	Solve(ctx context.Context, m *Model) (*Solution, error)
}

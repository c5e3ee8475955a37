package lp

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"gonum.org/v1/gonum/mat"
	"gotest.tools/v3/assert"
)

const eps = 1e-6

func near(t *testing.T, got *float64, want float64) {
	t.Helper()
	assert.Assert(t, got != nil)
	assert.Assert(t, math.Abs(*got-want) < eps, "got %v, want %v", *got, want)
}

// min -2x - y  s.t.  x + y <= 4,  x <= 3
func smallModel(t *testing.T) (*Model, uuid.UUID, []Var) {
	m := NewModel()
	id := uuid.New()
	m.Reserve(id, "test")
	v := m.NewVars("v", 2)
	err := m.SetBlock(id, Block{
		Rows: []Row{
			{Name: "total", Terms: []Term{T(v[0], 1), T(v[1], 1)}, Sense: LE, RHS: 4},
			{Name: "cap", Terms: []Term{T(v[0], 1)}, Sense: LE, RHS: 3},
		},
		Cost: []Term{T(v[0], -2), T(v[1], -1)},
	})
	assert.NilError(t, err)
	return m, id, v
}

func TestSolveSmall(t *testing.T) {
	m, id, v := smallModel(t)
	s := NewSolver()

	res, sol, err := s.Solve(m)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, Optimal)
	assert.Assert(t, math.Abs(res.Objective+7) < eps)
	assert.Equal(t, res.WarmStart, false)

	near(t, sol.Value(v[0]), 3)
	near(t, sol.Value(v[1]), 1)
	near(t, sol.Dual(id, 0), -1)
	near(t, sol.Dual(id, 1), -1)
	near(t, sol.Eval([]Term{T(v[0], 1), T(v[1], 10)}), 13)
}

func TestWarmStartOnSameStructure(t *testing.T) {
	m, id, v := smallModel(t)
	s := NewSolver()

	first, _, err := s.Solve(m)
	assert.NilError(t, err)
	assert.Equal(t, first.Status, Optimal)

	// new right-hand sides, same rows
	err = m.SetBlock(id, Block{
		Rows: []Row{
			{Name: "total", Terms: []Term{T(v[0], 1), T(v[1], 1)}, Sense: LE, RHS: 5},
			{Name: "cap", Terms: []Term{T(v[0], 1)}, Sense: LE, RHS: 3},
		},
		Cost: []Term{T(v[0], -2), T(v[1], -1)},
	})
	assert.NilError(t, err)

	second, sol, err := s.Solve(m)
	assert.NilError(t, err)
	assert.Equal(t, second.Status, Optimal)
	assert.Equal(t, second.WarmStart, true)
	assert.Equal(t, second.Rows, first.Rows)
	assert.Equal(t, second.Cols, first.Cols)
	near(t, sol.Value(v[1]), 2)
	assert.Equal(t, s.Stats().WarmStarts, 1)
}

func TestUnusedColumnIsUnresolved(t *testing.T) {
	m, _, _ := smallModel(t)
	free := m.NewVars("free", 1)[0]

	res, sol, err := NewSolver().Solve(m)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, Optimal)
	assert.Assert(t, sol.Value(free) == nil)
	assert.Assert(t, sol.Eval([]Term{T(free, 1)}) == nil)
}

func TestInfeasible(t *testing.T) {
	m := NewModel()
	id := uuid.New()
	m.Reserve(id, "test")
	x := m.NewVars("x", 1)[0]
	assert.NilError(t, m.SetBlock(id, Block{Rows: []Row{
		{Terms: []Term{T(x, 1)}, Sense: GE, RHS: 5},
		{Terms: []Term{T(x, 1)}, Sense: LE, RHS: 3},
	}}))

	res, sol, err := NewSolver().Solve(m)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, Infeasible)
	assert.Equal(t, res.Objective, 0.0)
	assert.Assert(t, sol.Value(x) == nil)
	assert.Assert(t, !sol.Optimal())
}

func TestEmptyRowInfeasible(t *testing.T) {
	m := NewModel()
	id := uuid.New()
	m.Reserve(id, "test")
	assert.NilError(t, m.SetBlock(id, Block{Rows: []Row{{Name: "empty", Sense: EQ, RHS: 1}}}))

	res, _, err := NewSolver().Solve(m)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, Infeasible)
}

func TestUnbounded(t *testing.T) {
	m := NewModel()
	id := uuid.New()
	m.Reserve(id, "test")
	v := m.NewVars("v", 2)
	assert.NilError(t, m.SetBlock(id, Block{
		Rows: []Row{{Terms: []Term{T(v[0], 1), T(v[1], -1)}, Sense: LE, RHS: 1}},
		Cost: []Term{T(v[0], -1)},
	}))

	res, _, err := NewSolver().Solve(m)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, Unbounded)

	// negative cost on a column no row limits
	m2 := NewModel()
	m2.Reserve(id, "test")
	y := m2.NewVars("y", 1)[0]
	assert.NilError(t, m2.SetBlock(id, Block{Cost: []Term{T(y, -1)}}))
	res, _, err = NewSolver().Solve(m2)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, Unbounded)
}

func TestDependentRowDropped(t *testing.T) {
	m := NewModel()
	id := uuid.New()
	m.Reserve(id, "test")
	v := m.NewVars("v", 2)
	assert.NilError(t, m.SetBlock(id, Block{
		Rows: []Row{
			{Terms: []Term{T(v[0], 1), T(v[1], 1)}, Sense: EQ, RHS: 2},
			{Terms: []Term{T(v[0], 2), T(v[1], 2)}, Sense: EQ, RHS: 4},
		},
		Cost: []Term{T(v[0], 1), T(v[1], 3)},
	}))

	res, sol, err := NewSolver().Solve(m)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, Optimal)
	assert.Equal(t, res.Rows, 1)
	near(t, sol.Value(v[0]), 2)
	near(t, sol.Dual(id, 0), 1)
	assert.Assert(t, sol.Dual(id, 1) == nil)
}

// min -x - 2y  s.t.  x + y <= 1,  y <= 0
// The optimum x=1 is degenerate: the slack of the second row is a valid basic
// column at zero but its basis prices y wrong.
func TestDegenerateVertexDuals(t *testing.T) {
	m := NewModel()
	id := uuid.New()
	m.Reserve(id, "test")
	v := m.NewVars("v", 2)
	assert.NilError(t, m.SetBlock(id, Block{
		Rows: []Row{
			{Name: "total", Terms: []Term{T(v[0], 1), T(v[1], 1)}, Sense: LE, RHS: 1},
			{Name: "cap", Terms: []Term{T(v[1], 1)}, Sense: LE, RHS: 0},
		},
		Cost: []Term{T(v[0], -1), T(v[1], -2)},
	}))

	res, sol, err := NewSolver().Solve(m)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, Optimal)
	near(t, sol.Value(v[0]), 1)
	near(t, sol.Value(v[1]), 0)
	near(t, sol.Dual(id, 0), -1)
	near(t, sol.Dual(id, 1), -1)
}

func TestDualFeasibleBasisPivots(t *testing.T) {
	// columns x, y, s0, s1
	std := &standard{
		m: 2,
		n: 4,
		c: []float64{-1, -2, 0, 0},
		a: mat.NewDense(2, 4, []float64{
			1, 1, 1, 0,
			0, 1, 0, 1,
		}),
		b: []float64{1, 0},
	}
	basis := []int{0, 3}
	_, ok := basisDuals(std, basis)
	assert.Assert(t, !ok)

	y, ok := dualFeasibleBasis(std, basis)
	assert.Assert(t, ok)
	assert.DeepEqual(t, basis, []int{0, 1})
	near(t, &y[0], -1)
	near(t, &y[1], -1)
}

func TestContradictingEqualities(t *testing.T) {
	m := NewModel()
	id := uuid.New()
	m.Reserve(id, "test")
	x := m.NewVars("x", 1)[0]
	assert.NilError(t, m.SetBlock(id, Block{Rows: []Row{
		{Terms: []Term{T(x, 1)}, Sense: EQ, RHS: 1},
		{Terms: []Term{T(x, 1)}, Sense: EQ, RHS: 2},
	}}))

	res, _, err := NewSolver().Solve(m)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, Infeasible)
}

func TestSolverBoundToOneModel(t *testing.T) {
	a, _, _ := smallModel(t)
	b, _, _ := smallModel(t)
	s := NewSolver()

	_, _, err := s.Solve(a)
	assert.NilError(t, err)
	_, _, err = s.Solve(b)
	assert.Assert(t, errors.Is(err, errs.ErrSolverShared))
}

func TestSetBlockRejectsUnknownColumn(t *testing.T) {
	m := NewModel()
	id := uuid.New()

	err := m.SetBlock(id, Block{})
	assert.ErrorContains(t, err, "never reserved")

	m.Reserve(id, "test")
	err = m.SetBlock(id, Block{Cost: []Term{T(Var(7), 1)}})
	assert.ErrorContains(t, err, "out of range")
}

func TestClearVarsKeepsSlots(t *testing.T) {
	m, id, _ := smallModel(t)
	m.ClearVars()
	assert.Equal(t, m.NumVars(), 0)
	assert.Equal(t, m.NumRows(), 0)
	_, ok := m.Block(id)
	assert.Assert(t, ok)
}

func TestEchelon(t *testing.T) {
	e := &echelon{}
	ok, _ := e.insert([]float64{1, 1, 0}, 2)
	assert.Assert(t, ok)
	ok, _ = e.insert([]float64{0, 1, 1}, 1)
	assert.Assert(t, ok)
	ok, residual := e.insert([]float64{1, 2, 1}, 3)
	assert.Assert(t, !ok)
	assert.Assert(t, math.Abs(residual) < eps)
	assert.Equal(t, e.size(), 2)
}

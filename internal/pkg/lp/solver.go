package lp

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	golp "gonum.org/v1/gonum/optimize/convex/lp"
	"gonum.org/v1/gonum/mat"
)

const (
	simplexTol  = 1e-10
	basicTol    = 1e-9
	feasibleTol = 1e-14
	dualTol     = 1e-7
)

// Status is the outcome reported by the solver. It is never an error.
type Status string

// Solver outcomes
const (
	Optimal    Status = "optimal"
	Infeasible Status = "infeasible"
	Unbounded  Status = "unbounded"
	Failed     Status = "error"
)

// Result summarizes one solve.
type Result struct {
	Status    Status        `json:"status" yaml:"status" bson:"status"`
	Objective float64       `json:"objective" yaml:"objective" bson:"objective"`
	Duration  time.Duration `json:"duration" yaml:"duration" bson:"duration"`
	WarmStart bool          `json:"warm_start" yaml:"warm_start" bson:"warm_start"`
	Rows      int           `json:"rows" yaml:"rows" bson:"rows"`
	Cols      int           `json:"cols" yaml:"cols" bson:"cols"`
	Message   string        `json:"message,omitempty" yaml:"message,omitempty" bson:"message,omitempty"`
}

// Stats counts solves over the life of a handle.
type Stats struct {
	Solves     int
	WarmStarts int
}

// Solver is the persistent solver handle. It keeps the last optimal basis so the
// next solve of a structurally identical problem starts from it. A handle is
// bound to the first model it solves.
type Solver struct {
	pid    uuid.UUID
	owner  uuid.UUID
	basis  []int
	layout layout
	stats  Stats
}

// NewSolver returns an unbound handle.
func NewSolver() *Solver {
	return &Solver{pid: uuid.New()}
}

// PID is a getter for the handle id
func (s *Solver) PID() uuid.UUID {
	return s.pid
}

// Stats returns the solve counters.
func (s *Solver) Stats() Stats {
	return s.stats
}

// Reset forgets the retained basis.
func (s *Solver) Reset() {
	s.basis = nil
	s.layout = layout{}
}

// Solve optimizes m. Solver-reported failures are carried in Result.Status; the
// error is reserved for misuse of the handle.
func (s *Solver) Solve(m *Model) (Result, *Solution, error) {
	if s.owner == uuid.Nil {
		s.owner = m.PID()
	} else if s.owner != m.PID() {
		return Result{}, nil, fmt.Errorf("%w: handle %v", errs.ErrSolverShared, s.pid)
	}

	start := time.Now()
	res, sol := s.solve(m)
	res.Duration = time.Since(start)

	s.stats.Solves++
	if res.WarmStart {
		s.stats.WarmStarts++
	}
	return res, sol, nil
}

func (s *Solver) solve(m *Model) (Result, *Solution) {
	sol := newSolution(m)

	std, err := toStandard(m)
	if err != nil {
		s.Reset()
		var pe *presolveError
		if errors.As(err, &pe) {
			return Result{Status: pe.status, Message: pe.reason}, sol
		}
		return Result{Status: Failed, Message: err.Error()}, sol
	}
	res := Result{Rows: std.m, Cols: std.n}
	if std.m == 0 {
		s.Reset()
		res.Status = Optimal
		sol.optimal = true
		return res, sol
	}

	initial := s.warmBasis(std)
	f, x, err := simplex(std, initial)
	if err != nil && initial != nil {
		initial = nil
		f, x, err = simplex(std, nil)
	}
	if err != nil {
		s.Reset()
		res.Status, res.Message = classify(err), err.Error()
		return res, sol
	}

	basis := reconstructBasis(std, x)
	y := duals(std, basis)
	s.basis, s.layout = basis, std.layout

	res.Status = Optimal
	res.Objective = f
	res.WarmStart = initial != nil
	sol.fill(std, x, y)
	return res, sol
}

func classify(err error) Status {
	switch {
	case errors.Is(err, golp.ErrInfeasible):
		return Infeasible
	case errors.Is(err, golp.ErrUnbounded):
		return Unbounded
	}
	return Failed
}

func simplex(std *standard, initial []int) (f float64, x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lp: simplex: %v", r)
		}
	}()
	return golp.Simplex(std.c, std.a, std.b, simplexTol, initial)
}

// warmBasis returns the retained basis when it is usable for std: same layout,
// nonsingular and primal feasible.
func (s *Solver) warmBasis(std *standard) []int {
	if s.basis == nil || !std.layout.equal(s.layout) || len(s.basis) != std.m {
		return nil
	}
	b := columns(std.a, s.basis)
	var xb mat.VecDense
	if err := xb.SolveVec(b, mat.NewVecDense(std.m, append([]float64(nil), std.b...))); err != nil {
		return nil
	}
	for i := 0; i < std.m; i++ {
		if xb.AtVec(i) < -feasibleTol {
			return nil
		}
	}
	return append([]int(nil), s.basis...)
}

func columns(a *mat.Dense, idx []int) *mat.Dense {
	m, _ := a.Dims()
	b := mat.NewDense(m, len(idx), nil)
	for k, j := range idx {
		for i := 0; i < m; i++ {
			b.Set(i, k, a.At(i, j))
		}
	}
	return b
}

// reconstructBasis recovers a basis of the optimal vertex x: its positive
// columns, padded with slacks and then structural columns until it spans.
func reconstructBasis(std *standard, x []float64) []int {
	ech := &echelon{}
	in := make(map[int]bool)
	var basis []int
	add := func(j int) {
		if in[j] || len(basis) == std.m {
			return
		}
		if ok, _ := ech.insert(mat.Col(nil, j, std.a), 0); ok {
			in[j] = true
			basis = append(basis, j)
		}
	}
	for j, v := range x {
		if v > basicTol {
			add(j)
		}
	}
	for j := len(std.cols); j < std.n; j++ {
		add(j)
	}
	for j := 0; j < len(std.cols); j++ {
		add(j)
	}
	if len(basis) != std.m {
		return nil
	}
	return basis
}

// duals returns ∂objective/∂b for every standard row, or nil. A degenerate
// vertex may come back with a basis that is not dual feasible; it is pivoted
// in place until it is, so basis may be modified.
func duals(std *standard, basis []int) []float64 {
	if basis != nil {
		if y, ok := basisDuals(std, basis); ok {
			return y
		}
		if y, ok := dualFeasibleBasis(std, basis); ok {
			return y
		}
	}
	y, err := dualProgram(std)
	if err != nil {
		return nil
	}
	return y
}

func basisDuals(std *standard, basis []int) ([]float64, bool) {
	cb := make([]float64, len(basis))
	for k, j := range basis {
		cb[k] = std.c[j]
	}
	var yv mat.VecDense
	if err := yv.SolveVec(columns(std.a, basis).T(), mat.NewVecDense(len(cb), cb)); err != nil {
		return nil, false
	}
	y := make([]float64, std.m)
	for i := range y {
		y[i] = yv.AtVec(i)
	}
	for j := 0; j < std.n; j++ {
		reduced := std.c[j]
		for i := 0; i < std.m; i++ {
			reduced -= std.a.At(i, j) * y[i]
		}
		if reduced < -dualTol*math.Max(1, math.Abs(std.c[j])) {
			return nil, false
		}
	}
	return y, true
}

// dualFeasibleBasis runs primal simplex pivots from basis, which must span the
// optimal vertex. The vertex is optimal, so every pivot is degenerate and only
// the basis moves. Bland's rule keeps it from cycling.
func dualFeasibleBasis(std *standard, basis []int) ([]float64, bool) {
	m := std.m
	b := mat.NewVecDense(m, append([]float64(nil), std.b...))
	for iter := 0; iter < 50*(std.m+std.n); iter++ {
		bm := columns(std.a, basis)
		cb := make([]float64, m)
		for k, j := range basis {
			cb[k] = std.c[j]
		}
		var yv mat.VecDense
		if err := yv.SolveVec(bm.T(), mat.NewVecDense(m, cb)); err != nil {
			return nil, false
		}

		in := make(map[int]bool, m)
		for _, j := range basis {
			in[j] = true
		}
		enter := -1
		for j := 0; j < std.n && enter < 0; j++ {
			if in[j] {
				continue
			}
			reduced := std.c[j]
			for i := 0; i < m; i++ {
				reduced -= std.a.At(i, j) * yv.AtVec(i)
			}
			if reduced < -dualTol*math.Max(1, math.Abs(std.c[j])) {
				enter = j
			}
		}
		if enter < 0 {
			y := make([]float64, m)
			for i := range y {
				y[i] = yv.AtVec(i)
			}
			return y, true
		}

		var d, xb mat.VecDense
		if err := d.SolveVec(bm, mat.NewVecDense(m, mat.Col(nil, enter, std.a))); err != nil {
			return nil, false
		}
		if err := xb.SolveVec(bm, b); err != nil {
			return nil, false
		}
		leave, best := -1, math.Inf(1)
		for i := 0; i < m; i++ {
			if d.AtVec(i) <= basicTol {
				continue
			}
			ratio := math.Max(xb.AtVec(i), 0) / d.AtVec(i)
			switch {
			case ratio < best-basicTol:
				leave, best = i, ratio
			case ratio <= best+basicTol && basis[i] < basis[leave]:
				leave = i
			}
		}
		if leave < 0 {
			return nil, false
		}
		basis[leave] = enter
	}
	return nil, false
}

// dualProgram solves max bᵀy s.t. Aᵀy <= c with y split into y⁺ - y⁻.
func dualProgram(std *standard) ([]float64, error) {
	m, n := std.m, std.n
	c := make([]float64, 2*m+n)
	a := mat.NewDense(n, 2*m+n, nil)
	for i := 0; i < m; i++ {
		c[i] = -std.b[i]
		c[m+i] = std.b[i]
		for j := 0; j < n; j++ {
			if v := std.a.At(i, j); v != 0 {
				a.Set(j, i, v)
				a.Set(j, m+i, -v)
			}
		}
	}
	for j := 0; j < n; j++ {
		a.Set(j, 2*m+j, 1)
	}
	var x []float64
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("lp: dual simplex: %v", r)
			}
		}()
		_, x, err = golp.Simplex(c, a, append([]float64(nil), std.c...), simplexTol, nil)
	}()
	if err != nil {
		return nil, err
	}
	y := make([]float64, m)
	for i := range y {
		y[i] = x[i] - x[m+i]
	}
	return y, nil
}

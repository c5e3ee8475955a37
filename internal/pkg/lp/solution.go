package lp

import (
	"math"

	"github.com/google/uuid"
)

// Solution holds column values and row duals of a solve. Columns that appear in
// no row and rows dropped before the simplex are unresolved and read as nil, as
// is everything after a non-optimal solve.
type Solution struct {
	optimal bool
	values  []*float64
	duals   [][]*float64
	index   map[uuid.UUID]int
}

func newSolution(m *Model) *Solution {
	s := &Solution{
		values: make([]*float64, len(m.cols)),
		duals:  make([][]*float64, len(m.slots)),
		index:  make(map[uuid.UUID]int, len(m.index)),
	}
	for i, sl := range m.slots {
		s.duals[i] = make([]*float64, len(sl.block.Rows))
	}
	for id, i := range m.index {
		s.index[id] = i
	}
	return s
}

func (s *Solution) fill(std *standard, x, y []float64) {
	s.optimal = true
	for i, j := range std.cols {
		v := x[i]
		if math.Abs(v) < zeroTol {
			v = 0
		}
		s.values[j] = &v
	}
	if y == nil {
		return
	}
	for i, ref := range std.rows {
		r := std.refs[ref]
		d := y[i]
		if math.Abs(d) < zeroTol {
			d = 0
		}
		s.duals[r.slot][r.local] = &d
	}
}

// Optimal reports whether the values are resolved.
func (s *Solution) Optimal() bool {
	return s != nil && s.optimal
}

// Value returns the value of v, or nil.
func (s *Solution) Value(v Var) *float64 {
	if s == nil || int(v) < 0 || int(v) >= len(s.values) {
		return nil
	}
	return s.values[v]
}

// Values maps Value over vars.
func (s *Solution) Values(vars []Var) []*float64 {
	out := make([]*float64, len(vars))
	for i, v := range vars {
		out[i] = s.Value(v)
	}
	return out
}

// Eval returns Σ coef·value over terms, or nil if any column is unresolved.
func (s *Solution) Eval(terms []Term) *float64 {
	if !s.Optimal() {
		return nil
	}
	sum := 0.0
	for _, t := range terms {
		v := s.Value(t.Var)
		if v == nil {
			return nil
		}
		sum += t.Coef * *v
	}
	return &sum
}

// Dual returns the shadow price of row i of the block reserved for id: the
// change of the objective per unit increase of the row's right-hand side.
func (s *Solution) Dual(id uuid.UUID, i int) *float64 {
	if s == nil {
		return nil
	}
	slot, ok := s.index[id]
	if !ok || i < 0 || i >= len(s.duals[slot]) {
		return nil
	}
	return s.duals[slot][i]
}

// Duals returns the shadow prices of every row of a block.
func (s *Solution) Duals(id uuid.UUID) []*float64 {
	if s == nil {
		return nil
	}
	slot, ok := s.index[id]
	if !ok {
		return nil
	}
	return append([]*float64(nil), s.duals[slot]...)
}

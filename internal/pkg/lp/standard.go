package lp

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	zeroTol       = 1e-12
	dependenceTol = 1e-9
	residualTol   = 1e-7
)

// layout identifies the structure of a standard form problem. Two problems with
// equal layouts have the same rows and columns in the same positions, so a
// basis of one is a candidate basis of the other.
type layout struct {
	cols  []int   // model column of each structural column
	rows  []int   // flattened model row of each standard row
	slack []Sense // sense of each standard row; LE and GE rows carry a slack
}

func (l layout) equal(o layout) bool {
	return slices.Equal(l.cols, o.cols) && slices.Equal(l.rows, o.rows) && slices.Equal(l.slack, o.slack)
}

// standard is min cᵀx s.t. Ax = b, x >= 0 as required by gonum's Simplex.
type standard struct {
	layout
	refs []rowRef // every flattened model row
	c    []float64
	a    *mat.Dense
	b    []float64
	m, n int
}

// presolveError reports a status decided before the simplex runs.
type presolveError struct {
	status Status
	reason string
}

func (e *presolveError) Error() string {
	return fmt.Sprintf("%s: %s", e.status, e.reason)
}

// toStandard converts the model. Empty rows are checked and dropped, columns that
// appear in no row are dropped (their values stay unresolved), inequality rows get
// a slack and linearly dependent equality rows are dropped.
func toStandard(m *Model) (*standard, error) {
	costs := m.costs()

	type dense struct {
		ref   int
		coefs map[int]float64
		sense Sense
		rhs   float64
	}
	var refs []rowRef
	var kept []dense
	used := make(map[int]bool)
	for si, s := range m.slots {
		for li, r := range s.block.Rows {
			ref := len(refs)
			refs = append(refs, rowRef{si, li})

			coefs := make(map[int]float64)
			for _, t := range r.Terms {
				coefs[int(t.Var)] += t.Coef
			}
			for j, v := range coefs {
				if math.Abs(v) <= zeroTol {
					delete(coefs, j)
				}
			}
			if len(coefs) == 0 {
				if !emptyRowHolds(r.Sense, r.RHS) {
					return nil, &presolveError{Infeasible, fmt.Sprintf("%s row %q reads 0 %s %v", s.owner, r.Name, r.Sense, r.RHS)}
				}
				continue
			}
			for j := range coefs {
				used[j] = true
			}
			kept = append(kept, dense{ref, coefs, r.Sense, r.RHS})
		}
	}

	for j, c := range costs {
		if !used[j] && c < -zeroTol {
			return nil, &presolveError{Unbounded, fmt.Sprintf("column %s has negative cost and no constraint", m.VarName(Var(j)))}
		}
	}

	cols := make([]int, 0, len(used))
	for j := range used {
		cols = append(cols, j)
	}
	slices.Sort(cols)
	position := make(map[int]int, len(cols))
	for i, j := range cols {
		position[j] = i
	}

	// Only equality rows can be dependent: every inequality row owns a slack
	// column that no other row touches.
	ech := &echelon{}
	var rows []dense
	for _, r := range kept {
		if r.sense != EQ {
			rows = append(rows, r)
			continue
		}
		v := make([]float64, len(cols))
		for j, coef := range r.coefs {
			v[position[j]] = coef
		}
		ok, residual := ech.insert(v, r.rhs)
		if ok {
			rows = append(rows, r)
			continue
		}
		if math.Abs(residual) > residualTol*math.Max(1, math.Abs(r.rhs)) {
			ref := refs[r.ref]
			return nil, &presolveError{Infeasible, fmt.Sprintf("%s row %d contradicts other equalities", m.slots[ref.slot].owner, ref.local)}
		}
	}

	nSlack := 0
	for _, r := range rows {
		if r.sense != EQ {
			nSlack++
		}
	}
	mRows, nCols := len(rows), len(cols)+nSlack
	std := &standard{
		refs: refs,
		c:    make([]float64, nCols),
		b:    make([]float64, mRows),
		m:    mRows,
		n:    nCols,
	}
	std.cols = cols
	for i, j := range cols {
		std.c[i] = costs[j]
	}
	if mRows == 0 {
		return std, nil
	}
	std.a = mat.NewDense(mRows, nCols, nil)
	next := len(cols)
	for i, r := range rows {
		for j, coef := range r.coefs {
			std.a.Set(i, position[j], coef)
		}
		switch r.sense {
		case LE:
			std.a.Set(i, next, 1)
			next++
		case GE:
			std.a.Set(i, next, -1)
			next++
		}
		std.b[i] = r.rhs
		std.rows = append(std.rows, r.ref)
		std.slack = append(std.slack, r.sense)
	}
	return std, nil
}

func emptyRowHolds(s Sense, rhs float64) bool {
	switch s {
	case LE:
		return rhs >= -residualTol
	case GE:
		return rhs <= residualTol
	}
	return math.Abs(rhs) <= residualTol
}

// echelon accumulates linearly independent vectors in reduced form.
type echelon struct {
	pivots []pivot
}

type pivot struct {
	vec []float64
	col int
	rhs float64
}

// insert reduces v against the stored pivots. It stores v and returns true when
// v is independent, otherwise it returns false and the reduced right-hand side.
func (e *echelon) insert(v []float64, rhs float64) (bool, float64) {
	v = append([]float64(nil), v...)
	scale := math.Max(1, floats.Norm(v, math.Inf(1)))
	for _, p := range e.pivots {
		if f := v[p.col] / p.vec[p.col]; f != 0 {
			floats.AddScaled(v, -f, p.vec)
			rhs -= f * p.rhs
		}
	}
	col, best := -1, 0.0
	for j, x := range v {
		if math.Abs(x) > best {
			col, best = j, math.Abs(x)
		}
	}
	if col < 0 || best <= dependenceTol*scale {
		return false, rhs
	}
	e.pivots = append(e.pivots, pivot{v, col, rhs})
	return true, rhs
}

func (e *echelon) size() int {
	return len(e.pivots)
}

// Package lp holds the linear program assembled by the network and the solver
// handle that optimizes it. Rows and cost terms are grouped into blocks, one per
// builder, so a builder can replace its own rows without touching the others.
package lp

import (
	"fmt"

	"github.com/google/uuid"
)

// Var is a column index. Every column is non-negative.
type Var int

// Term is a coefficient applied to a column.
type Term struct {
	Var  Var
	Coef float64
}

// T is shorthand for Term{v, coef}.
func T(v Var, coef float64) Term {
	return Term{v, coef}
}

// Sense is the relation of a row to its right-hand side.
type Sense int

// Row senses
const (
	EQ Sense = iota
	LE
	GE
)

func (s Sense) String() string {
	switch s {
	case EQ:
		return "="
	case LE:
		return "<="
	case GE:
		return ">="
	}
	return "?"
}

// Row is a single linear constraint.
type Row struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Block is the contribution of one builder: constraint rows and objective terms.
type Block struct {
	Rows []Row
	Cost []Term
}

type slot struct {
	id    uuid.UUID
	owner string
	block Block
}

// Model is a minimization problem over non-negative columns.
type Model struct {
	pid   uuid.UUID
	cols  []string
	slots []slot
	index map[uuid.UUID]int
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		pid:   uuid.New(),
		index: make(map[uuid.UUID]int),
	}
}

// PID is a getter for the model id
func (m *Model) PID() uuid.UUID {
	return m.pid
}

// NewVars appends n columns named name[0..n-1].
func (m *Model) NewVars(name string, n int) []Var {
	vars := make([]Var, n)
	for i := range vars {
		vars[i] = Var(len(m.cols))
		m.cols = append(m.cols, fmt.Sprintf("%s[%d]", name, i))
	}
	return vars
}

// VarName returns the name a column was declared with.
func (m *Model) VarName(v Var) string {
	if int(v) < 0 || int(v) >= len(m.cols) {
		return fmt.Sprintf("var(%d)", v)
	}
	return m.cols[v]
}

// Reserve appends an empty block slot for id. Slots keep their reservation order.
func (m *Model) Reserve(id uuid.UUID, owner string) {
	if _, ok := m.index[id]; ok {
		return
	}
	m.index[id] = len(m.slots)
	m.slots = append(m.slots, slot{id: id, owner: owner})
}

// SetBlock replaces the rows and costs of a reserved slot.
func (m *Model) SetBlock(id uuid.UUID, b Block) error {
	i, ok := m.index[id]
	if !ok {
		return fmt.Errorf("lp: block %v was never reserved", id)
	}
	for _, r := range b.Rows {
		if err := m.checkTerms(r.Terms); err != nil {
			return fmt.Errorf("lp: %s row %q: %w", m.slots[i].owner, r.Name, err)
		}
	}
	if err := m.checkTerms(b.Cost); err != nil {
		return fmt.Errorf("lp: %s cost: %w", m.slots[i].owner, err)
	}
	m.slots[i].block = b
	return nil
}

// Block returns the current contents of a slot.
func (m *Model) Block(id uuid.UUID) (Block, bool) {
	i, ok := m.index[id]
	if !ok {
		return Block{}, false
	}
	return m.slots[i].block, true
}

// ClearVars drops every column and empties every slot. Slot order survives.
func (m *Model) ClearVars() {
	m.cols = m.cols[:0]
	for i := range m.slots {
		m.slots[i].block = Block{}
	}
}

// NumVars is the number of columns.
func (m *Model) NumVars() int {
	return len(m.cols)
}

// NumRows is the number of rows across all blocks.
func (m *Model) NumRows() int {
	n := 0
	for _, s := range m.slots {
		n += len(s.block.Rows)
	}
	return n
}

func (m *Model) checkTerms(terms []Term) error {
	for _, t := range terms {
		if int(t.Var) < 0 || int(t.Var) >= len(m.cols) {
			return fmt.Errorf("column %d out of range", t.Var)
		}
	}
	return nil
}

// rowRef locates a flattened row inside its block.
type rowRef struct {
	slot  int
	local int
}

func (m *Model) costs() []float64 {
	c := make([]float64, len(m.cols))
	for _, s := range m.slots {
		for _, t := range s.block.Cost {
			c[t.Var] += t.Coef
		}
	}
	return c
}

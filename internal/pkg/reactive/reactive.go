// Package reactive tracks which constraint builders read which parameters and
// rebuilds only the builders whose inputs changed.
package reactive

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/param"
)

// BuildFunc produces the rows and cost terms of one builder from the current
// parameter values.
type BuildFunc func() (lp.Block, error)

// Node is a constraint/cost builder. It owns one block of the model and lists
// the parameters it reads.
type Node struct {
	id    uuid.UUID
	name  string
	reads []param.Source
	build BuildFunc
	graph *Graph
	dirty bool
}

// ID is a getter for the node id. It is also the block id in the model.
func (n *Node) ID() uuid.UUID {
	return n.id
}

// Name is a getter for the node name
func (n *Node) Name() string {
	return n.name
}

// Reads returns the ids of the parameters n reads.
func (n *Node) Reads() []uuid.UUID {
	ids := make([]uuid.UUID, len(n.reads))
	for i, s := range n.reads {
		ids[i] = s.ID()
	}
	return ids
}

// IsDirty reports whether n waits for a rebuild.
func (n *Node) IsDirty() bool {
	return n.dirty
}

// Invalidate marks n for rebuild. It satisfies param.Dependent.
func (n *Node) Invalidate() {
	if n.dirty {
		return
	}
	n.dirty = true
	n.graph.dirty = append(n.graph.dirty, n)
}

// Graph is the set of builder nodes of one model plus the reverse index from
// parameter id to the nodes that read it.
type Graph struct {
	model    *lp.Model
	nodes    []*Node
	index    map[uuid.UUID][]uuid.UUID
	dirty    []*Node
	rebuilds int
}

// NewGraph returns an empty graph writing into m.
func NewGraph(m *lp.Model) *Graph {
	return &Graph{
		model: m,
		index: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Add creates a node, reserves its block and registers it with every parameter
// it reads. New nodes start dirty.
func (g *Graph) Add(name string, build BuildFunc, reads ...param.Source) *Node {
	n := &Node{
		id:    uuid.New(),
		name:  name,
		reads: reads,
		build: build,
		graph: g,
	}
	g.nodes = append(g.nodes, n)
	g.model.Reserve(n.id, name)
	for _, s := range reads {
		if s == nil {
			continue
		}
		s.Register(n)
		g.index[s.ID()] = appendUnique(g.index[s.ID()], n.id)
	}
	n.Invalidate()
	return n
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Dependents returns the ids of the nodes that read the parameter.
func (g *Graph) Dependents(paramID uuid.UUID) []uuid.UUID {
	return append([]uuid.UUID(nil), g.index[paramID]...)
}

// Len is the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Dirty returns the names of the nodes waiting for a rebuild, in the order they
// were invalidated.
func (g *Graph) Dirty() []string {
	names := make([]string, len(g.dirty))
	for i, n := range g.dirty {
		names[i] = n.name
	}
	return names
}

// InvalidateAll marks every node for rebuild.
func (g *Graph) InvalidateAll() {
	for _, n := range g.nodes {
		n.Invalidate()
	}
}

// Rebuilds is the number of node rebuilds performed so far.
func (g *Graph) Rebuilds() int {
	return g.rebuilds
}

// Rebuild replaces the block of every dirty node. On failure the failing node
// and every node after it stay dirty.
func (g *Graph) Rebuild() (int, error) {
	done := 0
	for len(g.dirty) > 0 {
		n := g.dirty[0]
		b, err := n.build()
		if err != nil {
			return done, fmt.Errorf("rebuild %s: %w", n.name, err)
		}
		if err := g.model.SetBlock(n.id, b); err != nil {
			return done, fmt.Errorf("rebuild %s: %w", n.name, err)
		}
		n.dirty = false
		g.dirty = g.dirty[1:]
		done++
		g.rebuilds++
	}
	g.dirty = nil
	return done, nil
}

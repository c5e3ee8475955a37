package element

import (
	"fmt"

	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/output"
	"github.com/ohowland/cgc_opt/internal/pkg/param"
	"github.com/ohowland/cgc_opt/internal/pkg/period"
	"github.com/ohowland/cgc_opt/internal/pkg/reactive"
)

// Node is a junction: Σ leaving − source + sink = injection in every period.
type Node struct {
	base
	source    bool
	sink      bool
	injection *param.Tracked[[]float64]
	supply    []lp.Var
	demand    []lp.Var
}

// NewNode returns a junction element.
func NewNode(name string, opts ...Option) (*Node, error) {
	o := collect(opts)
	b, err := newBase(name, o.shadow)
	if err != nil {
		return nil, err
	}
	n := &Node{base: b, source: o.source, sink: o.sink}
	if o.injection != nil {
		if _, err := period.Broadcast(o.injection, 1); err != nil {
			return nil, fmt.Errorf("node %q injection: %w", name, err)
		}
		n.injection = param.Of("injection", o.injection)
	}
	return n, nil
}

// Injection returns the fixed injection parameter, or nil.
func (n *Node) Injection() *param.Tracked[[]float64] {
	return n.injection
}

// Declare allocates the supply and consumption columns.
func (n *Node) Declare(m *lp.Model, h *period.Horizon) {
	n.n = h.Len()
	n.supply, n.demand = nil, nil
	if n.source {
		n.supply = m.NewVars(n.name+".source", n.n)
	}
	if n.sink {
		n.demand = m.NewVars(n.name+".sink", n.n)
	}
}

// Register adds the balance builder.
func (n *Node) Register(g *reactive.Graph, h *period.Horizon, f Flows) {
	n.flows = f
	var reads []param.Source
	if n.injection != nil {
		reads = append(reads, n.injection)
	}
	n.balance = g.Add(n.name+".balance", n.buildBalance, reads...)
}

func (n *Node) buildBalance() (lp.Block, error) {
	rhs := make([]float64, n.n)
	if n.injection != nil {
		inj, err := period.Read(n.injection, n.n)
		if err != nil {
			return lp.Block{}, err
		}
		rhs = inj
	}
	var b lp.Block
	for t := 0; t < n.n; t++ {
		var extra []lp.Term
		if n.source {
			extra = append(extra, lp.T(n.supply[t], -1))
		}
		if n.sink {
			extra = append(extra, lp.T(n.demand[t], 1))
		}
		b.Rows = append(b.Rows, n.balanceRow(t, extra, rhs[t]))
	}
	return b, nil
}

// Outputs returns net_power and, when enabled, source_power and sink_power.
func (n *Node) Outputs(sol *lp.Solution) map[string]output.Output {
	outs := map[string]output.Output{"net_power": n.netPower(sol)}
	if n.source {
		outs["source_power"] = output.Sequence(sol.Values(n.supply))
	}
	if n.sink {
		outs["sink_power"] = output.Sequence(sol.Values(n.demand))
	}
	return outs
}

// Params returns the node inputs by name.
func (n *Node) Params() map[string]param.Loader {
	ps := make(map[string]param.Loader)
	if n.injection != nil {
		ps["injection"] = n.injection
	}
	return ps
}

// Package network owns the elements and connections of an energy network and
// orchestrates incremental rebuild, warm-started solve and output extraction.
package network

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/connection"
	"github.com/ohowland/cgc_opt/internal/pkg/element"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/output"
	"github.com/ohowland/cgc_opt/internal/pkg/param"
	"github.com/ohowland/cgc_opt/internal/pkg/period"
	"github.com/ohowland/cgc_opt/internal/pkg/reactive"
)

// Owner is the input owner name of network-wide parameters.
const Owner = "network"

// Network is the arena of elements and connections. Elements and connections
// reference each other only by id.
type Network struct {
	pid     uuid.UUID
	horizon *period.Horizon
	model   *lp.Model
	solver  *lp.Solver
	graph   *reactive.Graph

	elements []element.Element
	byName   map[string]int
	conns    []*connection.Connection
	connByID map[uuid.UUID]int
	connName map[string]int

	declared bool
	solved   bool
	result   lp.Result
	solution *lp.Solution
}

// New returns an empty network over the given period durations, in seconds.
func New(durations []float64) (*Network, error) {
	h, err := period.NewHorizon(durations)
	if err != nil {
		return nil, err
	}
	m := lp.NewModel()
	return &Network{
		pid:      uuid.New(),
		horizon:  h,
		model:    m,
		solver:   lp.NewSolver(),
		graph:    reactive.NewGraph(m),
		byName:   make(map[string]int),
		connByID: make(map[uuid.UUID]int),
		connName: make(map[string]int),
	}, nil
}

// PID is a getter for the network id
func (n *Network) PID() uuid.UUID {
	return n.pid
}

// Horizon returns the period sequence.
func (n *Network) Horizon() *period.Horizon {
	return n.horizon
}

func (n *Network) nameTaken(name string) bool {
	_, isElement := n.byName[name]
	_, isConn := n.connName[name]
	return isElement || isConn || name == Owner
}

// AddElement adds e. Failures are wrapped in *errs.BuildError.
func (n *Network) AddElement(e element.Element) error {
	if e == nil {
		return errs.Wrap("element", "", errs.Configuration("nil element"))
	}
	if strings.Contains(e.Name(), ".") {
		return errs.Wrap("element", e.Name(), errs.Configuration("name %q contains '.'", e.Name()))
	}
	if n.nameTaken(e.Name()) {
		return errs.Wrap("element", e.Name(), errs.Configuration("name %q already in use", e.Name()))
	}
	n.byName[e.Name()] = len(n.elements)
	n.elements = append(n.elements, e)
	e.Register(n.graph, n.horizon, n)
	n.declared = false
	return nil
}

// AddConnection resolves the endpoints of c, binds its segments and adds it.
// Failures are wrapped in *errs.BuildError.
func (n *Network) AddConnection(c *connection.Connection) error {
	if c == nil {
		return errs.Wrap("connection", "", errs.Configuration("nil connection"))
	}
	return errs.Wrap("connection", c.Name(), n.addConnection(c))
}

// Segment inputs are owned by "<connection>.<segment>", so neither element nor
// connection names may contain a dot.
func (n *Network) addConnection(c *connection.Connection) error {
	if strings.Contains(c.Name(), ".") {
		return errs.Configuration("name %q contains '.'", c.Name())
	}
	if n.nameTaken(c.Name()) {
		return errs.Configuration("name %q already in use", c.Name())
	}
	src, ok := n.Element(c.Source())
	if !ok {
		return errs.Configuration("unknown source element %q", c.Source())
	}
	tgt, ok := n.Element(c.Target())
	if !ok {
		return errs.Configuration("unknown target element %q", c.Target())
	}
	if err := c.Bind(src, tgt); err != nil {
		return err
	}
	src.Attach(c.PID())
	tgt.Attach(c.PID())

	n.connByID[c.PID()] = len(n.conns)
	n.connName[c.Name()] = len(n.conns)
	n.conns = append(n.conns, c)
	c.Register(n.graph, n.horizon)
	n.declared = false
	return nil
}

// Element looks up an element by name.
func (n *Network) Element(name string) (element.Element, bool) {
	i, ok := n.byName[name]
	if !ok {
		return nil, false
	}
	return n.elements[i], true
}

// Connection looks up a connection by name.
func (n *Network) Connection(name string) (*connection.Connection, bool) {
	i, ok := n.connName[name]
	if !ok {
		return nil, false
	}
	return n.conns[i], true
}

// Elements returns the element names in insertion order.
func (n *Network) Elements() []string {
	names := make([]string, len(n.elements))
	for i, e := range n.elements {
		names[i] = e.Name()
	}
	return names
}

// Connections returns the connection names in insertion order.
func (n *Network) Connections() []string {
	names := make([]string, len(n.conns))
	for i, c := range n.conns {
		names[i] = c.Name()
	}
	return names
}

// Leaving implements element.Flows.
func (n *Network) Leaving(conn uuid.UUID, at uuid.UUID, t int) []lp.Term {
	i, ok := n.connByID[conn]
	if !ok {
		return nil
	}
	return n.conns[i].Leaving(at, t)
}

// UpdatePeriods replaces the period durations. A change of durations alone
// dirties only the builders that read them; a change of length re-declares
// every column and discards the warm basis.
func (n *Network) UpdatePeriods(durations []float64) error {
	before := n.horizon.Len()
	if err := n.horizon.Update(durations); err != nil {
		return err
	}
	if len(durations) != before {
		log.Printf("[Network] horizon length %d -> %d, rebuilding all\n", before, len(durations))
		n.declared = false
	}
	return nil
}

func (n *Network) declare() {
	n.model.ClearVars()
	for _, e := range n.elements {
		e.Declare(n.model, n.horizon)
	}
	for _, c := range n.conns {
		c.Declare(n.model, n.horizon)
	}
	n.graph.InvalidateAll()
	n.solver.Reset()
	n.declared = true
}

// Solve rebuilds the dirty builders and runs the solver. Infeasible and
// unbounded problems are reported in the status; only build failures are errors.
func (n *Network) Solve() (lp.Result, error) {
	if !n.declared {
		n.declare()
	}
	rebuilt, err := n.graph.Rebuild()
	if err != nil {
		return lp.Result{}, fmt.Errorf("network %v: %w", n.pid, err)
	}
	res, sol, err := n.solver.Solve(n.model)
	if err != nil {
		return lp.Result{}, err
	}
	n.result, n.solution, n.solved = res, sol, true
	log.Printf("[Network] %s: objective %.6g, %d builders rebuilt, warm start %v, %v\n",
		res.Status, res.Objective, rebuilt, res.WarmStart, res.Duration)
	return res, nil
}

// Result returns the last solve result.
func (n *Network) Result() lp.Result {
	return n.result
}

// Outputs extracts the outputs of the last solve. After a non-optimal solve
// every value is nil.
func (n *Network) Outputs() (output.Set, error) {
	if !n.solved {
		return nil, fmt.Errorf("%w: network has not been solved", errs.ErrUnset)
	}
	set := make(output.Set)
	for _, e := range n.elements {
		set.Merge(e.Name(), e.Outputs(n.solution))
	}
	for _, c := range n.conns {
		set.Merge(c.Name(), c.Outputs(n.solution))
		for owner, outs := range c.SegmentOutputs(n.solution) {
			set.Merge(owner, outs)
		}
	}
	return set, nil
}

// Params returns every settable parameter by owner and input name.
func (n *Network) Params() map[string]map[string]param.Loader {
	ps := make(map[string]map[string]param.Loader)
	for _, e := range n.elements {
		if p := e.Params(); len(p) > 0 {
			ps[e.Name()] = p
		}
	}
	for _, c := range n.conns {
		for owner, p := range c.Params() {
			ps[owner] = p
		}
	}
	return ps
}

// Apply routes input values to parameters. The "network" owner accepts
// "periods". Every value is converted and checked before any is set, so a
// failing message leaves the network untouched.
func (n *Network) Apply(inputs map[string]map[string]interface{}) error {
	params := n.Params()
	owners := make([]string, 0, len(inputs))
	for owner := range inputs {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	var commits []func() error
	for _, owner := range owners {
		values := inputs[owner]
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			commit, err := n.stage(params, owner, name, values[name])
			if err != nil {
				return fmt.Errorf("input %s.%s: %w", owner, name, err)
			}
			commits = append(commits, commit)
		}
	}
	for _, commit := range commits {
		if err := commit(); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) stage(params map[string]map[string]param.Loader, owner, name string, v interface{}) (func() error, error) {
	if owner == Owner {
		if name != "periods" {
			return nil, errs.Configuration("unknown network input")
		}
		seq, ok := v.([]float64)
		if !ok {
			p := param.New[[]float64]("periods")
			if err := p.Assign(v); err != nil {
				return nil, err
			}
			seq, _ = p.Get()
		}
		if err := period.Validate(seq); err != nil {
			return nil, err
		}
		return func() error { return n.UpdatePeriods(seq) }, nil
	}
	ps, ok := params[owner]
	if !ok {
		return nil, errs.Configuration("unknown owner")
	}
	p, ok := ps[name]
	if !ok {
		return nil, errs.Configuration("unknown input")
	}
	set, err := p.Stage(v)
	if err != nil {
		return nil, err
	}
	return func() error { set(); return nil }, nil
}

// Dirty returns the names of the builders waiting for a rebuild.
func (n *Network) Dirty() []string {
	return n.graph.Dirty()
}

// Dependents returns the ids of the builders reading a parameter.
func (n *Network) Dependents(paramID uuid.UUID) []uuid.UUID {
	return n.graph.Dependents(paramID)
}

// Dims returns the row and column count of the assembled model.
func (n *Network) Dims() (rows, cols int) {
	return n.model.NumRows(), n.model.NumVars()
}

// Stats returns the solver counters.
func (n *Network) Stats() lp.Stats {
	return n.solver.Stats()
}

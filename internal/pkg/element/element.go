// Package element implements the network participants whose connection flows
// are tied together by a power balance.
package element

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/output"
	"github.com/ohowland/cgc_opt/internal/pkg/param"
	"github.com/ohowland/cgc_opt/internal/pkg/period"
	"github.com/ohowland/cgc_opt/internal/pkg/reactive"
)

// Flows resolves connection ids to the flow terms leaving an element.
type Flows interface {
	Leaving(conn uuid.UUID, at uuid.UUID, t int) []lp.Term
}

// Element is a network participant. The network owns elements and hands them
// connection ids, never connections.
type Element interface {
	PID() uuid.UUID
	Name() string
	Attach(conn uuid.UUID)
	Connections() []uuid.UUID
	Declare(m *lp.Model, h *period.Horizon)
	Register(g *reactive.Graph, h *period.Horizon, f Flows)
	Outputs(sol *lp.Solution) map[string]output.Output
	Params() map[string]param.Loader
}

// Option configures an element.
type Option func(*options)

type options struct {
	source    bool
	sink      bool
	shadow    bool
	injection []float64
}

// WithSource gives a node a free non-negative supply column.
func WithSource() Option {
	return func(o *options) { o.source = true }
}

// WithSink gives a node a free non-negative consumption column.
func WithSink() Option {
	return func(o *options) { o.sink = true }
}

// WithShadowPrices adds the balance shadow price to net_power.
func WithShadowPrices() Option {
	return func(o *options) { o.shadow = true }
}

// WithInjection fixes the power a node injects per period, positive for
// generation. The value broadcasts over the horizon.
func WithInjection(v []float64) Option {
	return func(o *options) { o.injection = v }
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type base struct {
	pid     uuid.UUID
	name    string
	conns   []uuid.UUID
	shadow  bool
	flows   Flows
	n       int
	balance *reactive.Node
}

func newBase(name string, shadow bool) (base, error) {
	if name == "" {
		return base{}, errs.Configuration("element needs a name")
	}
	return base{pid: uuid.New(), name: name, shadow: shadow}, nil
}

// PID is a getter for the element id
func (b *base) PID() uuid.UUID {
	return b.pid
}

// Name is a getter for the element name
func (b *base) Name() string {
	return b.name
}

// Attach records a connection ending at this element.
func (b *base) Attach(conn uuid.UUID) {
	for _, c := range b.conns {
		if c == conn {
			return
		}
	}
	b.conns = append(b.conns, conn)
}

// Connections returns the attached connection ids.
func (b *base) Connections() []uuid.UUID {
	return append([]uuid.UUID(nil), b.conns...)
}

// leaving is the signed flow leaving the element in period t.
func (b *base) leaving(t int) []lp.Term {
	var terms []lp.Term
	for _, c := range b.conns {
		terms = append(terms, b.flows.Leaving(c, b.pid, t)...)
	}
	return terms
}

func (b *base) balanceRow(t int, extra []lp.Term, rhs float64) lp.Row {
	return lp.Row{
		Name:  fmt.Sprintf("balance[%d]", t),
		Terms: append(b.leaving(t), extra...),
		Sense: lp.EQ,
		RHS:   rhs,
	}
}

func (b *base) netPower(sol *lp.Solution) output.Output {
	values := make([]*float64, b.n)
	for t := range values {
		values[t] = sol.Eval(b.leaving(t))
	}
	o := output.Sequence(values)
	if b.shadow && b.balance != nil {
		o = o.WithShadowPrice(sol.Duals(b.balance.ID()))
	}
	return o
}

func positive(v float64) error {
	if !(v > 0) {
		return errs.Value("%v is not positive", v)
	}
	return nil
}

func nonNegative(v float64) error {
	if !(v >= 0) {
		return errs.Value("%v is negative", v)
	}
	return nil
}

func unitFactor(v float64) error {
	if !(v > 0 && v <= 1) {
		return errs.Value("%v outside (0, 1]", v)
	}
	return nil
}

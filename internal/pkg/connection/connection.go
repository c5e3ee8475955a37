// Package connection implements the ordered segment pipeline between two
// elements. A connection carries a forward flow entering at its source and a
// reverse flow entering at its target in every period.
package connection

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/element"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/output"
	"github.com/ohowland/cgc_opt/internal/pkg/param"
	"github.com/ohowland/cgc_opt/internal/pkg/period"
	"github.com/ohowland/cgc_opt/internal/pkg/reactive"
	"github.com/ohowland/cgc_opt/internal/pkg/segment"
)

// Connection links a source and a target element by name.
type Connection struct {
	pid      uuid.UUID
	name     string
	source   string
	target   string
	segments []*segment.Segment

	sourceID uuid.UUID
	targetID uuid.UUID

	fwdIn, fwdOut []lp.Var
	revIn, revOut []lp.Var
}

// New returns a connection from source to target through segs, in order.
func New(name, source, target string, segs ...*segment.Segment) (*Connection, error) {
	if name == "" {
		return nil, errs.Configuration("connection needs a name")
	}
	if source == "" || target == "" {
		return nil, errs.Configuration("connection %q needs a source and a target", name)
	}
	if source == target {
		return nil, errs.Configuration("connection %q has identical endpoints %q", name, source)
	}
	seen := make(map[string]bool, len(segs))
	for i, s := range segs {
		if s == nil {
			return nil, errs.Configuration("connection %q segment %d is nil", name, i)
		}
		if seen[s.Name()] {
			return nil, errs.Configuration("connection %q has two segments named %q", name, s.Name())
		}
		seen[s.Name()] = true
	}
	return &Connection{
		pid:      uuid.New(),
		name:     name,
		source:   source,
		target:   target,
		segments: segs,
	}, nil
}

// PID is a getter for the connection id
func (c *Connection) PID() uuid.UUID {
	return c.pid
}

// Name is a getter for the connection name
func (c *Connection) Name() string {
	return c.name
}

// Source is the name of the source element.
func (c *Connection) Source() string {
	return c.source
}

// Target is the name of the target element.
func (c *Connection) Target() string {
	return c.target
}

// Segments returns the segment chain in forward order.
func (c *Connection) Segments() []*segment.Segment {
	return append([]*segment.Segment(nil), c.segments...)
}

// Segment looks up a segment by name.
func (c *Connection) Segment(name string) (*segment.Segment, bool) {
	for _, s := range c.segments {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// SegmentOwner is the output owner name of a segment of c.
func (c *Connection) SegmentOwner(s *segment.Segment) string {
	return c.name + "." + s.Name()
}

// Bind resolves the endpoints. It fails if both names resolve to one element or
// a segment cannot bind to the endpoints.
func (c *Connection) Bind(source, target element.Element) error {
	if source.PID() == target.PID() {
		return errs.Configuration("connection %q starts and ends at %q", c.name, source.Name())
	}
	for _, s := range c.segments {
		if err := s.Bind(source, target); err != nil {
			return fmt.Errorf("segment %q: %w", s.Name(), err)
		}
	}
	c.sourceID, c.targetID = source.PID(), target.PID()
	return nil
}

// Declare allocates the flow columns and routes them through the segments:
// forward flows in order, reverse flows in reverse order.
func (c *Connection) Declare(m *lp.Model, h *period.Horizon) {
	n := h.Len()
	for _, s := range c.segments {
		s.Declare(m, c.SegmentOwner(s), n)
	}

	c.fwdIn = m.NewVars(c.name+".forward", n)
	c.revIn = m.NewVars(c.name+".reverse", n)

	flow := c.fwdIn
	for _, s := range c.segments {
		flow = s.Route(m, c.SegmentOwner(s), segment.Forward, flow)
	}
	c.fwdOut = flow

	flow = c.revIn
	for i := len(c.segments) - 1; i >= 0; i-- {
		s := c.segments[i]
		flow = s.Route(m, c.SegmentOwner(s), segment.Reverse, flow)
	}
	c.revOut = flow
}

// Register adds the builder nodes of every segment.
func (c *Connection) Register(g *reactive.Graph, h *period.Horizon) {
	for _, s := range c.segments {
		s.Register(g, h, c.SegmentOwner(s))
	}
}

// Leaving returns the flow leaving the element at in period t. Positive terms
// enter the connection at that element; negative terms arrive there.
func (c *Connection) Leaving(at uuid.UUID, t int) []lp.Term {
	switch at {
	case c.sourceID:
		return []lp.Term{lp.T(c.fwdIn[t], 1), lp.T(c.revOut[t], -1)}
	case c.targetID:
		return []lp.Term{lp.T(c.revIn[t], 1), lp.T(c.fwdOut[t], -1)}
	}
	return nil
}

// Outputs returns power_source, power_target, flow_forward and flow_reverse.
func (c *Connection) Outputs(sol *lp.Solution) map[string]output.Output {
	n := len(c.fwdIn)
	src := make([]*float64, n)
	tgt := make([]*float64, n)
	for t := 0; t < n; t++ {
		src[t] = sol.Eval(c.Leaving(c.sourceID, t))
		tgt[t] = sol.Eval(c.Leaving(c.targetID, t))
	}
	return map[string]output.Output{
		"power_source": output.Sequence(src),
		"power_target": output.Sequence(tgt),
		"flow_forward": output.Sequence(sol.Values(c.fwdIn)),
		"flow_reverse": output.Sequence(sol.Values(c.revIn)),
	}
}

// SegmentOutputs returns the outputs of every segment keyed by owner name.
func (c *Connection) SegmentOutputs(sol *lp.Solution) map[string]map[string]output.Output {
	outs := make(map[string]map[string]output.Output)
	for _, s := range c.segments {
		if o := s.Outputs(sol); len(o) > 0 {
			outs[c.SegmentOwner(s)] = o
		}
	}
	return outs
}

// Params returns the segment parameters keyed by owner name.
func (c *Connection) Params() map[string]map[string]param.Loader {
	ps := make(map[string]map[string]param.Loader)
	for _, s := range c.segments {
		if p := s.Params(); len(p) > 0 {
			ps[c.SegmentOwner(s)] = p
		}
	}
	return ps
}

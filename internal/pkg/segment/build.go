package segment

import (
	"fmt"

	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/output"
	"github.com/ohowland/cgc_opt/internal/pkg/param"
	"github.com/ohowland/cgc_opt/internal/pkg/period"
	"github.com/ohowland/cgc_opt/internal/pkg/reactive"
)

const secondsPerHour = 3600.0

// Declare allocates the columns a segment owns for n periods. owner prefixes
// the column names.
func (s *Segment) Declare(m *lp.Model, owner string, n int) {
	s.routes = [2]route{}
	s.slackUnder, s.slackOver = nil, nil
	if s.under != nil {
		s.slackUnder = m.NewVars(owner+".undercharge", n)
	}
	if s.over != nil {
		s.slackOver = m.NewVars(owner+".overcharge", n)
	}
}

// Route passes the flow columns of direction d through the segment and returns
// the columns leaving it. Only efficiency allocates new columns.
func (s *Segment) Route(m *lp.Model, owner string, d Direction, in []lp.Var) []lp.Var {
	out := in
	if s.kind == Efficiency && s.scalar[d] != nil {
		out = m.NewVars(fmt.Sprintf("%s.%s", owner, d), len(in))
	}
	s.routes[d] = route{in: in, out: out}
	return out
}

// Register adds the builder node of s to g. Passthrough segments have none.
func (s *Segment) Register(g *reactive.Graph, h *period.Horizon, owner string) {
	s.node = nil
	var reads []param.Source
	reads = appendSet(reads, s.scalar[:]...)
	reads = appendSet(reads, s.series[:]...)
	switch s.kind {
	case Passthrough:
		return
	case Efficiency:
		s.node = g.Add(owner, s.buildEfficiency, reads...)
	case PowerLimit:
		s.node = g.Add(owner, s.buildPowerLimit, reads...)
	case TimeSlice:
		s.node = g.Add(owner, s.buildTimeSlice, reads...)
	case Pricing:
		s.node = g.Add(owner, func() (lp.Block, error) { return s.buildPricing(h) }, append(reads, h.Source())...)
	case SOCPricing:
		reads = appendSet(reads, s.under, s.over, s.underPrice, s.overPrice)
		if s.battery != nil {
			reads = append(reads, s.battery.Capacity())
		}
		s.node = g.Add(owner, func() (lp.Block, error) { return s.buildSOC(h) }, append(reads, h.Source())...)
	}
}

func appendSet[T any](reads []param.Source, ps ...*param.Tracked[T]) []param.Source {
	for _, p := range ps {
		if p != nil {
			reads = append(reads, p)
		}
	}
	return reads
}

func (s *Segment) buildEfficiency() (lp.Block, error) {
	var b lp.Block
	for d, p := range s.scalar {
		if p == nil {
			continue
		}
		f, err := p.Read()
		if err != nil {
			return lp.Block{}, err
		}
		r := s.routes[d]
		for t := range r.in {
			b.Rows = append(b.Rows, lp.Row{
				Name:  fmt.Sprintf("%s[%d]", Direction(d), t),
				Terms: []lp.Term{lp.T(r.out[t], 1), lp.T(r.in[t], -f)},
				Sense: lp.EQ,
			})
		}
	}
	return b, nil
}

func (s *Segment) buildPowerLimit() (lp.Block, error) {
	sense := lp.LE
	if s.fixed {
		sense = lp.EQ
	}
	var b lp.Block
	for d, p := range s.scalar {
		if p == nil {
			continue
		}
		limit, err := p.Read()
		if err != nil {
			return lp.Block{}, err
		}
		for t, v := range s.routes[d].in {
			b.Rows = append(b.Rows, lp.Row{
				Name:  fmt.Sprintf("%s[%d]", Direction(d), t),
				Terms: []lp.Term{lp.T(v, 1)},
				Sense: sense,
				RHS:   limit,
			})
		}
	}
	return b, nil
}

func (s *Segment) buildTimeSlice() (lp.Block, error) {
	var b lp.Block
	for d, p := range s.series {
		if p == nil {
			continue
		}
		in := s.routes[d].in
		bounds, err := period.Read(p, len(in))
		if err != nil {
			return lp.Block{}, err
		}
		for t, v := range in {
			b.Rows = append(b.Rows, lp.Row{
				Name:  fmt.Sprintf("%s[%d]", Direction(d), t),
				Terms: []lp.Term{lp.T(v, 1)},
				Sense: lp.LE,
				RHS:   bounds[t],
			})
		}
	}
	return b, nil
}

func (s *Segment) buildPricing(h *period.Horizon) (lp.Block, error) {
	dt := h.Durations()
	s.cost = make([][]lp.Term, len(dt))
	var b lp.Block
	for d, p := range s.series {
		if p == nil {
			continue
		}
		in := s.routes[d].in
		prices, err := period.Read(p, len(in))
		if err != nil {
			return lp.Block{}, err
		}
		for t, v := range in {
			term := lp.T(v, prices[t]*dt[t]/secondsPerHour)
			b.Cost = append(b.Cost, term)
			s.cost[t] = append(s.cost[t], term)
		}
	}
	return b, nil
}

func (s *Segment) buildSOC(h *period.Horizon) (lp.Block, error) {
	dt := h.Durations()
	s.cost = make([][]lp.Term, len(dt))
	if !s.Priced() {
		return lp.Block{}, nil
	}
	capacity, err := s.battery.Capacity().Read()
	if err != nil {
		return lp.Block{}, err
	}
	energy := s.battery.Energy()

	var b lp.Block
	band := []struct {
		label     string
		threshold *param.Tracked[float64]
		price     *param.Tracked[float64]
		slack     []lp.Var
		sign      float64
		sense     lp.Sense
	}{
		{"undercharge", s.under, s.underPrice, s.slackUnder, 1, lp.GE},
		{"overcharge", s.over, s.overPrice, s.slackOver, -1, lp.LE},
	}
	for _, side := range band {
		if side.threshold == nil {
			continue
		}
		level, err := side.threshold.Read()
		if err != nil {
			return lp.Block{}, err
		}
		price, err := side.price.Read()
		if err != nil {
			return lp.Block{}, err
		}
		for t, e := range energy {
			b.Rows = append(b.Rows, lp.Row{
				Name:  fmt.Sprintf("%s[%d]", side.label, t),
				Terms: []lp.Term{lp.T(e, 1), lp.T(side.slack[t], side.sign)},
				Sense: side.sense,
				RHS:   level * capacity,
			})
			term := lp.T(side.slack[t], price*dt[t]/secondsPerHour)
			b.Cost = append(b.Cost, term)
			s.cost[t] = append(s.cost[t], term)
		}
	}
	return b, nil
}

// In returns the columns entering s in direction d.
func (s *Segment) In(d Direction) []lp.Var {
	return s.routes[d].in
}

// Out returns the columns leaving s in direction d.
func (s *Segment) Out(d Direction) []lp.Var {
	return s.routes[d].out
}

// Outputs extracts the outputs named by Kind.Outputs from sol.
func (s *Segment) Outputs(sol *lp.Solution) map[string]output.Output {
	switch s.kind {
	case Efficiency:
		return map[string]output.Output{"loss": s.loss(sol)}
	case PowerLimit, TimeSlice:
		var duals []*float64
		if s.node != nil {
			duals = sol.Duals(s.node.ID())
		}
		outs := make(map[string]output.Output, 2)
		offset := 0
		for d := range s.routes {
			o := output.Sequence(sol.Values(s.routes[d].in))
			if s.bounded(Direction(d)) {
				n := len(s.routes[d].in)
				if len(duals) >= offset+n {
					o = o.WithShadowPrice(duals[offset : offset+n])
				}
				offset += n
			}
			outs["flow_"+Direction(d).String()] = o
		}
		return outs
	case Pricing, SOCPricing:
		return map[string]output.Output{"cost": s.costOutput(sol)}
	}
	return nil
}

func (s *Segment) bounded(d Direction) bool {
	if s.kind == TimeSlice {
		return s.series[d] != nil
	}
	return s.scalar[d] != nil
}

func (s *Segment) loss(sol *lp.Solution) output.Output {
	n := len(s.routes[Forward].in)
	values := make([]*float64, n)
	for t := 0; t < n; t++ {
		var terms []lp.Term
		for d := range s.routes {
			r := s.routes[d]
			if s.scalar[d] == nil || t >= len(r.in) {
				continue
			}
			terms = append(terms, lp.T(r.in[t], 1), lp.T(r.out[t], -1))
		}
		values[t] = sol.Eval(terms)
	}
	return output.Sequence(values)
}

func (s *Segment) costOutput(sol *lp.Solution) output.Output {
	n := len(s.routes[Forward].in)
	values := make([]*float64, n)
	if s.kind == SOCPricing && !s.Priced() {
		return output.Sequence(values)
	}
	for t := 0; t < n && t < len(s.cost); t++ {
		values[t] = sol.Eval(s.cost[t])
	}
	return output.Sequence(values)
}

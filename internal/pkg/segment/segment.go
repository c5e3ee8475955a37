// Package segment implements the elementary rules composed along a connection:
// passthrough, efficiency, power limit, time-sliced bound, pricing and
// state-of-charge pricing. The set of kinds is closed.
package segment

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/param"
	"github.com/ohowland/cgc_opt/internal/pkg/period"
	"github.com/ohowland/cgc_opt/internal/pkg/reactive"
)

// Direction is the sense of a flow along a connection.
type Direction int

// Flow directions. Forward runs from the connection source to its target.
const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// Kind enumerates the segment variants.
type Kind int

// Segment kinds
const (
	Passthrough Kind = iota
	Efficiency
	PowerLimit
	TimeSlice
	Pricing
	SOCPricing
)

var kindNames = map[Kind]string{
	Passthrough: "passthrough",
	Efficiency:  "efficiency",
	PowerLimit:  "power_limit",
	TimeSlice:   "time_slice",
	Pricing:     "pricing",
	SOCPricing:  "soc_pricing",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a document type name to a Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, errs.Configuration("unknown segment type %q", name)
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	return []Kind{Passthrough, Efficiency, PowerLimit, TimeSlice, Pricing, SOCPricing}
}

// Outputs lists the output names a segment of kind k produces.
func (k Kind) Outputs() []string {
	switch k {
	case Efficiency:
		return []string{"loss"}
	case PowerLimit, TimeSlice:
		return []string{"flow_forward", "flow_reverse"}
	case Pricing, SOCPricing:
		return []string{"cost"}
	}
	return nil
}

// Battery is the view of a battery element a SOC pricing segment needs.
type Battery interface {
	Name() string
	Energy() []lp.Var
	Capacity() *param.Tracked[float64]
}

type route struct {
	in  []lp.Var
	out []lp.Var
}

// Segment is one rule along a connection. Which fields are used depends on kind.
type Segment struct {
	pid  uuid.UUID
	name string
	kind Kind

	// efficiency factors or power limits
	scalar [2]*param.Tracked[float64]
	fixed  bool
	// time-sliced bounds or prices
	series [2]*param.Tracked[[]float64]
	// soc pricing
	under, over           *param.Tracked[float64]
	underPrice, overPrice *param.Tracked[float64]
	battery               Battery
	slackUnder, slackOver []lp.Var

	routes [2]route
	cost   [][]lp.Term
	node   *reactive.Node
}

// PID is a getter for the segment id
func (s *Segment) PID() uuid.UUID {
	return s.pid
}

// Name is a getter for the segment name
func (s *Segment) Name() string {
	return s.name
}

// Kind is a getter for the segment kind
func (s *Segment) Kind() Kind {
	return s.kind
}

// Node returns the builder node, or nil for a passthrough.
func (s *Segment) Node() *reactive.Node {
	return s.node
}

func newSegment(name string, kind Kind) *Segment {
	return &Segment{pid: uuid.New(), name: name, kind: kind}
}

// NewPassthrough returns a segment whose output equals its input.
func NewPassthrough(name string) *Segment {
	return newSegment(name, Passthrough)
}

// NewEfficiency returns a segment scaling each configured direction by a factor
// in (0, 1]. A nil factor leaves that direction untouched.
func NewEfficiency(name string, forward, reverse *float64) (*Segment, error) {
	if forward == nil && reverse == nil {
		return nil, errs.Configuration("efficiency %q needs a forward or reverse factor", name)
	}
	s := newSegment(name, Efficiency)
	for d, f := range []*float64{forward, reverse} {
		if f == nil {
			continue
		}
		if err := unitFactor(*f); err != nil {
			return nil, errs.Configuration("efficiency %q %s: %v", name, Direction(d), err)
		}
		s.scalar[d] = param.Of(Direction(d).String(), *f, param.WithCheck(unitFactor))
	}
	return s, nil
}

// NewPowerLimit returns a segment bounding the flow entering it in each
// configured direction. Fixed turns the bounds into equalities.
func NewPowerLimit(name string, forward, reverse *float64, fixed bool) (*Segment, error) {
	if forward == nil && reverse == nil {
		return nil, errs.Configuration("power limit %q needs a forward or reverse limit", name)
	}
	s := newSegment(name, PowerLimit)
	s.fixed = fixed
	for d, l := range []*float64{forward, reverse} {
		if l == nil {
			continue
		}
		if err := nonNegative(*l); err != nil {
			return nil, errs.Configuration("power limit %q %s: %v", name, Direction(d), err)
		}
		s.scalar[d] = param.Of(Direction(d).String(), *l, param.WithCheck(nonNegative))
	}
	return s, nil
}

// NewTimeSlice returns a segment bounding the flow in each period. Bounds are
// broadcast to the horizon. A nil sequence leaves that direction unbounded.
func NewTimeSlice(name string, forward, reverse []float64) (*Segment, error) {
	if forward == nil && reverse == nil {
		return nil, errs.Configuration("time slice %q needs a forward or reverse bound", name)
	}
	s := newSegment(name, TimeSlice)
	for d, b := range [][]float64{forward, reverse} {
		if b == nil {
			continue
		}
		if _, err := period.Broadcast(b, 1); err != nil {
			return nil, fmt.Errorf("time slice %q %s: %w", name, Direction(d), err)
		}
		s.series[d] = param.Of(Direction(d).String(), b, param.WithCheck(nonEmpty))
	}
	return s, nil
}

// NewPricing returns a segment adding price × flow × duration to the objective
// for each direction that has a price.
func NewPricing(name string, forward, reverse []float64) (*Segment, error) {
	if forward == nil && reverse == nil {
		return nil, errs.Configuration("pricing %q needs a forward or reverse price", name)
	}
	s := newSegment(name, Pricing)
	for d, p := range [][]float64{forward, reverse} {
		if p == nil {
			continue
		}
		if _, err := period.Broadcast(p, 1); err != nil {
			return nil, fmt.Errorf("pricing %q %s: %w", name, Direction(d), err)
		}
		s.series[d] = param.Of(Direction(d).String(), p, param.WithCheck(nonEmpty))
	}
	return s, nil
}

// SOCThresholds configures a SOC pricing segment. Thresholds are fractions of
// the battery capacity; prices are charged per unit of energy outside the band.
type SOCThresholds struct {
	Undercharge      *float64
	UnderchargePrice *float64
	Overcharge       *float64
	OverchargePrice  *float64
}

// NewSOCPricing returns a segment penalizing battery energy outside the
// [undercharge, overcharge] band. It must be bound to a battery endpoint.
func NewSOCPricing(name string, th SOCThresholds) (*Segment, error) {
	pairs := []struct {
		label            string
		threshold, price *float64
	}{
		{"undercharge", th.Undercharge, th.UnderchargePrice},
		{"overcharge", th.Overcharge, th.OverchargePrice},
	}
	for _, p := range pairs {
		switch {
		case p.threshold != nil && p.price == nil:
			return nil, errs.Configuration("soc pricing %q: %s threshold has no price", name, p.label)
		case p.threshold == nil && p.price != nil:
			return nil, errs.Configuration("soc pricing %q: %s price has no threshold", name, p.label)
		case p.threshold == nil:
			continue
		}
		if err := fraction(*p.threshold); err != nil {
			return nil, errs.Configuration("soc pricing %q %s: %v", name, p.label, err)
		}
		if err := nonNegative(*p.price); err != nil {
			return nil, errs.Configuration("soc pricing %q %s price: %v", name, p.label, err)
		}
	}
	if th.Undercharge != nil && th.Overcharge != nil && *th.Undercharge > *th.Overcharge {
		return nil, errs.Configuration("soc pricing %q: undercharge %v above overcharge %v", name, *th.Undercharge, *th.Overcharge)
	}

	s := newSegment(name, SOCPricing)
	if th.Undercharge != nil {
		s.under = param.Of("undercharge", *th.Undercharge, param.WithCheck(fraction))
		s.underPrice = param.Of("undercharge_price", *th.UnderchargePrice, param.WithCheck(nonNegative))
	}
	if th.Overcharge != nil {
		s.over = param.Of("overcharge", *th.Overcharge, param.WithCheck(fraction))
		s.overPrice = param.Of("overcharge_price", *th.OverchargePrice, param.WithCheck(nonNegative))
	}
	return s, nil
}

// Priced reports whether a SOC pricing segment has any threshold configured.
func (s *Segment) Priced() bool {
	return s.under != nil || s.over != nil
}

// Bind resolves the endpoints a segment depends on. SOC pricing binds to the
// first endpoint that is a battery.
func (s *Segment) Bind(source, target interface{}) error {
	if s.kind != SOCPricing {
		return nil
	}
	for _, e := range []interface{}{source, target} {
		if b, ok := e.(Battery); ok {
			s.battery = b
			return nil
		}
	}
	return errs.Configuration("soc pricing %q needs a battery endpoint", s.name)
}

// Params returns the configured parameters by input name.
func (s *Segment) Params() map[string]param.Loader {
	ps := make(map[string]param.Loader)
	for d := range s.scalar {
		if s.scalar[d] != nil {
			ps[Direction(d).String()] = s.scalar[d]
		}
		if s.series[d] != nil {
			ps[Direction(d).String()] = s.series[d]
		}
	}
	for _, p := range []*param.Tracked[float64]{s.under, s.over, s.underPrice, s.overPrice} {
		if p != nil {
			ps[p.Name()] = p
		}
	}
	return ps
}

func unitFactor(v float64) error {
	if !(v > 0 && v <= 1) {
		return errs.Value("factor %v outside (0, 1]", v)
	}
	return nil
}

func nonNegative(v float64) error {
	if !(v >= 0) {
		return errs.Value("%v is negative", v)
	}
	return nil
}

func fraction(v float64) error {
	if !(v >= 0 && v <= 1) {
		return errs.Value("%v outside [0, 1]", v)
	}
	return nil
}

func nonEmpty(v []float64) error {
	if len(v) == 0 {
		return errs.Value("empty sequence")
	}
	return nil
}

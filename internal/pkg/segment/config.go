package segment

import (
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/period"
)

// Config describes a segment in a topology document.
type Config struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`

	// Forward and Reverse are efficiency factors or power limits.
	Forward *float64 `json:"forward,omitempty" yaml:"forward,omitempty"`
	Reverse *float64 `json:"reverse,omitempty" yaml:"reverse,omitempty"`
	Fixed   bool     `json:"fixed,omitempty" yaml:"fixed,omitempty"`

	ForwardBound period.Sequence `json:"forward_bound,omitempty" yaml:"forward_bound,omitempty"`
	ReverseBound period.Sequence `json:"reverse_bound,omitempty" yaml:"reverse_bound,omitempty"`

	// Directions enables pricing directions explicitly. Empty enables every
	// direction that has a price.
	Directions   []string        `json:"directions,omitempty" yaml:"directions,omitempty"`
	ForwardPrice period.Sequence `json:"forward_price,omitempty" yaml:"forward_price,omitempty"`
	ReversePrice period.Sequence `json:"reverse_price,omitempty" yaml:"reverse_price,omitempty"`

	Undercharge      *float64 `json:"undercharge,omitempty" yaml:"undercharge,omitempty"`
	UnderchargePrice *float64 `json:"undercharge_price,omitempty" yaml:"undercharge_price,omitempty"`
	Overcharge       *float64 `json:"overcharge,omitempty" yaml:"overcharge,omitempty"`
	OverchargePrice  *float64 `json:"overcharge_price,omitempty" yaml:"overcharge_price,omitempty"`
}

// New builds the segment described by cfg.
func New(cfg Config) (*Segment, error) {
	kind, err := ParseKind(cfg.Type)
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = kind.String()
	}
	switch kind {
	case Efficiency:
		return NewEfficiency(name, cfg.Forward, cfg.Reverse)
	case PowerLimit:
		return NewPowerLimit(name, cfg.Forward, cfg.Reverse, cfg.Fixed)
	case TimeSlice:
		return NewTimeSlice(name, cfg.ForwardBound, cfg.ReverseBound)
	case Pricing:
		forward, reverse := []float64(cfg.ForwardPrice), []float64(cfg.ReversePrice)
		if len(cfg.Directions) > 0 {
			enabled := map[string]bool{}
			for _, d := range cfg.Directions {
				if d != Forward.String() && d != Reverse.String() {
					return nil, errs.Configuration("pricing %q: unknown direction %q", name, d)
				}
				enabled[d] = true
			}
			if enabled[Forward.String()] && forward == nil {
				return nil, errs.Configuration("pricing %q: forward direction enabled without a price", name)
			}
			if enabled[Reverse.String()] && reverse == nil {
				return nil, errs.Configuration("pricing %q: reverse direction enabled without a price", name)
			}
			if !enabled[Forward.String()] {
				forward = nil
			}
			if !enabled[Reverse.String()] {
				reverse = nil
			}
		}
		return NewPricing(name, forward, reverse)
	case SOCPricing:
		return NewSOCPricing(name, SOCThresholds{
			Undercharge:      cfg.Undercharge,
			UnderchargePrice: cfg.UnderchargePrice,
			Overcharge:       cfg.Overcharge,
			OverchargePrice:  cfg.OverchargePrice,
		})
	}
	return NewPassthrough(name), nil
}

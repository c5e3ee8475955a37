package asset

import (
	"fmt"

	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/period"
)

// Kind enumerates the asset archetypes.
type Kind int

// Asset kinds
const (
	ESS Kind = iota
	Grid
	Feeder
	PV
	Junction
)

var kindNames = map[Kind][]string{
	ESS:      {"battery", "ess"},
	Grid:     {"grid"},
	Feeder:   {"load", "feeder"},
	PV:       {"photovoltaics", "pv"},
	Junction: {"node", "bus"},
}

func (k Kind) String() string {
	if names, ok := kindNames[k]; ok {
		return names[0]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a document asset type to a Kind.
func ParseKind(name string) (Kind, error) {
	for k, names := range kindNames {
		for _, n := range names {
			if n == name {
				return k, nil
			}
		}
	}
	return 0, errs.Configuration("unknown asset type %q", name)
}

// Config holds the asset configuration parameters. Power is in W, energy in Wh
// and prices per kWh.
type Config struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	Bus  string `json:"bus,omitempty" yaml:"bus,omitempty"`

	// ESS
	Capacity         *float64 `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	InitialCharge    *float64 `json:"initial_charge,omitempty" yaml:"initial_charge,omitempty"`
	Efficiency       *float64 `json:"efficiency,omitempty" yaml:"efficiency,omitempty"`
	ChargeLimit      *float64 `json:"charge_limit,omitempty" yaml:"charge_limit,omitempty"`
	DischargeLimit   *float64 `json:"discharge_limit,omitempty" yaml:"discharge_limit,omitempty"`
	Undercharge      *float64 `json:"undercharge,omitempty" yaml:"undercharge,omitempty"`
	UnderchargePrice *float64 `json:"undercharge_price,omitempty" yaml:"undercharge_price,omitempty"`
	Overcharge       *float64 `json:"overcharge,omitempty" yaml:"overcharge,omitempty"`
	OverchargePrice  *float64 `json:"overcharge_price,omitempty" yaml:"overcharge_price,omitempty"`

	// Grid
	ImportLimit *float64        `json:"import_limit,omitempty" yaml:"import_limit,omitempty"`
	ExportLimit *float64        `json:"export_limit,omitempty" yaml:"export_limit,omitempty"`
	ImportPrice period.Sequence `json:"import_price,omitempty" yaml:"import_price,omitempty"`
	ExportPrice period.Sequence `json:"export_price,omitempty" yaml:"export_price,omitempty"`

	// Feeder and PV
	Forecast    period.Sequence `json:"forecast,omitempty" yaml:"forecast,omitempty"`
	Curtailable bool            `json:"curtailable,omitempty" yaml:"curtailable,omitempty"`
	Array       *Array          `json:"array,omitempty" yaml:"array,omitempty"`

	// Junction
	Source       bool `json:"source,omitempty" yaml:"source,omitempty"`
	Sink         bool `json:"sink,omitempty" yaml:"sink,omitempty"`
	ShadowPrices bool `json:"shadow_prices,omitempty" yaml:"shadow_prices,omitempty"`
}

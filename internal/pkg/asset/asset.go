// Package asset maps the physical assets of a site (energy storage, grid
// intertie, load feeder, photovoltaics) onto network elements and connections.
package asset

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/connection"
	"github.com/ohowland/cgc_opt/internal/pkg/element"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/param"
)

// Identifier names an asset
type Identifier interface {
	PID() uuid.UUID
	Name() string
}

// Alias routes an asset input to the parameter that carries it.
type Alias struct {
	Owner  string
	Param  string
	Negate bool
}

// Asset is the set of network items built for one configured asset.
type Asset struct {
	pid         uuid.UUID
	config      Config
	elements    []element.Element
	connections []*connection.Connection
	aliases     map[string]Alias
}

// PID is a getter for the asset PID
func (a *Asset) PID() uuid.UUID {
	return a.pid
}

// Name is a getter for the asset Name
func (a *Asset) Name() string {
	return a.config.Name
}

// Bus is a getter for the element the asset connects to
func (a *Asset) Bus() string {
	return a.config.Bus
}

// Config returns the configuration the asset was built from.
func (a *Asset) Config() Config {
	return a.config
}

// Elements returns the elements to add to the network, in order.
func (a *Asset) Elements() []element.Element {
	return a.elements
}

// Connections returns the connections to add once every element is present.
func (a *Asset) Connections() []*connection.Connection {
	return a.connections
}

// Aliases returns the asset inputs by name.
func (a *Asset) Aliases() map[string]Alias {
	return a.aliases
}

// New builds the network items of the asset described by cfg.
func New(cfg Config) (*Asset, error) {
	if cfg.Name == "" {
		return nil, errs.Configuration("asset needs a name")
	}
	kind, err := ParseKind(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("asset %q: %w", cfg.Name, err)
	}
	if kind != Junction && cfg.Bus == "" {
		return nil, errs.Configuration("asset %q: %s needs a bus", cfg.Name, kind)
	}

	a := &Asset{
		pid:     uuid.New(),
		config:  cfg,
		aliases: make(map[string]Alias),
	}
	switch kind {
	case ESS:
		err = a.buildESS()
	case Grid:
		err = a.buildGrid()
	case Feeder:
		err = a.buildFeeder()
	case PV:
		err = a.buildPV()
	case Junction:
		err = a.buildJunction()
	}
	if err != nil {
		return nil, fmt.Errorf("asset %q: %w", cfg.Name, err)
	}
	return a, nil
}

func (a *Asset) link() string {
	return a.config.Name + "_" + a.config.Bus
}

// Inputs translates asset inputs into parameter inputs. Owners that are not
// this asset, and inputs without an alias, pass through unchanged.
func (a *Asset) Inputs(inputs map[string]map[string]interface{}) (map[string]map[string]interface{}, error) {
	values, ok := inputs[a.config.Name]
	if !ok {
		return inputs, nil
	}
	out := make(map[string]map[string]interface{}, len(inputs))
	for owner, vs := range inputs {
		if owner != a.config.Name {
			out[owner] = vs
		}
	}
	for name, v := range values {
		alias, ok := a.aliases[name]
		if !ok {
			alias = Alias{Owner: a.config.Name, Param: name}
		}
		if alias.Negate {
			neg, err := negate(v)
			if err != nil {
				return nil, fmt.Errorf("input %s.%s: %w", a.config.Name, name, err)
			}
			v = neg
		}
		if out[alias.Owner] == nil {
			out[alias.Owner] = make(map[string]interface{})
		}
		out[alias.Owner][alias.Param] = v
	}
	return out, nil
}

func negate(v interface{}) ([]float64, error) {
	p := param.New[[]float64]("value")
	if err := p.Assign(v); err != nil {
		return nil, err
	}
	seq, _ := p.Get()
	return negated(seq), nil
}

func negated(seq []float64) []float64 {
	if seq == nil {
		return nil
	}
	out := make([]float64, len(seq))
	for i, v := range seq {
		out[i] = -v
	}
	return out
}

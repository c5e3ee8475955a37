package scenario

import (
	"time"

	"github.com/ohowland/cgc_opt/internal/pkg/asset"
	"github.com/ohowland/cgc_opt/internal/pkg/connection"
	"github.com/ohowland/cgc_opt/internal/pkg/element"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/network"
	"github.com/ohowland/cgc_opt/internal/pkg/output"
	"github.com/ohowland/cgc_opt/internal/pkg/segment"
)

// Site is a network built from a topology together with the assets that
// translate asset inputs into parameter inputs.
type Site struct {
	Network  *network.Network
	Assets   []*asset.Asset
	Topology Topology
}

// Build constructs the network described by t. Every element is added before
// any connection.
func Build(t Topology) (*Site, error) {
	net, err := network.New(t.Periods)
	if err != nil {
		return nil, err
	}
	site := &Site{Network: net, Topology: t}

	var conns []*connection.Connection
	for _, cfg := range t.Assets {
		cfg, err := cfg.Forecasted(t.Periods)
		if err != nil {
			return nil, errs.Wrap("asset", cfg.Name, err)
		}
		a, err := asset.New(cfg)
		if err != nil {
			return nil, errs.Wrap("asset", cfg.Name, err)
		}
		for _, e := range a.Elements() {
			if err := net.AddElement(e); err != nil {
				return nil, err
			}
		}
		conns = append(conns, a.Connections()...)
		site.Assets = append(site.Assets, a)
	}
	for _, cfg := range t.Elements {
		e, err := newElement(cfg)
		if err != nil {
			return nil, errs.Wrap("element", cfg.Name, err)
		}
		if err := net.AddElement(e); err != nil {
			return nil, err
		}
	}
	for _, cfg := range t.Connections {
		c, err := newConnection(cfg)
		if err != nil {
			return nil, errs.Wrap("connection", cfg.Name, err)
		}
		conns = append(conns, c)
	}
	for _, c := range conns {
		if err := net.AddConnection(c); err != nil {
			return nil, err
		}
	}
	return site, nil
}

func newElement(cfg ElementConfig) (element.Element, error) {
	var opts []element.Option
	if cfg.Source {
		opts = append(opts, element.WithSource())
	}
	if cfg.Sink {
		opts = append(opts, element.WithSink())
	}
	if cfg.ShadowPrices {
		opts = append(opts, element.WithShadowPrices())
	}
	if cfg.Injection != nil {
		opts = append(opts, element.WithInjection(cfg.Injection))
	}
	switch cfg.Type {
	case "", "node":
		return element.NewNode(cfg.Name, opts...)
	case "battery":
		efficiency := 1.0
		if cfg.Efficiency != nil {
			efficiency = *cfg.Efficiency
		}
		return element.NewBattery(cfg.Name, cfg.Capacity, cfg.InitialCharge, efficiency, opts...)
	}
	return nil, errs.Configuration("unknown element type %q", cfg.Type)
}

func newConnection(cfg ConnectionConfig) (*connection.Connection, error) {
	segs := make([]*segment.Segment, 0, len(cfg.Segments))
	for _, sc := range cfg.Segments {
		s, err := segment.New(sc)
		if err != nil {
			return nil, err
		}
		segs = append(segs, s)
	}
	return connection.New(cfg.Name, cfg.Source, cfg.Target, segs...)
}

// Apply translates asset inputs and routes every value into the network.
func (s *Site) Apply(inputs map[string]map[string]interface{}) error {
	var err error
	for _, a := range s.Assets {
		inputs, err = a.Inputs(inputs)
		if err != nil {
			return err
		}
	}
	return s.Network.Apply(inputs)
}

// Solve runs the network and collects its outputs.
func (s *Site) Solve() (Report, error) {
	res, err := s.Network.Solve()
	if err != nil {
		return Report{}, err
	}
	outs, err := s.Network.Outputs()
	if err != nil {
		return Report{}, err
	}
	return Report{Result: res, Outputs: outs}, nil
}

// Snapshot returns a document of the current topology, the given inputs and
// the report.
func (s *Site) Snapshot(inputs map[string]map[string]interface{}, r Report) Document {
	now := time.Now().UTC()
	res := r.Result
	t := s.Topology
	t.Periods = s.Network.Horizon().Durations()
	return Document{
		Config: t,
		Environment: Environment{
			Timestamp: &now,
			Version:   Version,
			Network:   s.Network.PID().String(),
		},
		Inputs:  inputs,
		Result:  &res,
		Outputs: r.Outputs,
	}
}

// Report is the result of running a document.
type Report struct {
	Result  lp.Result
	Outputs output.Set
}

// Run builds the document's network, applies its inputs and solves it.
func Run(doc Document) (Report, error) {
	site, err := Build(doc.Config)
	if err != nil {
		return Report{}, err
	}
	if err := site.Apply(doc.Inputs); err != nil {
		return Report{}, err
	}
	return site.Solve()
}

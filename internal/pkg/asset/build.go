package asset

import (
	"github.com/ohowland/cgc_opt/internal/pkg/connection"
	"github.com/ohowland/cgc_opt/internal/pkg/element"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/segment"
)

// Segment names used by the asset builders.
const (
	LimitSegment    = "limit"
	PriceSegment    = "price"
	ReserveSegment  = "reserve"
	ForecastSegment = "forecast"
)

func (a *Asset) owner(seg string) string {
	return a.link() + "." + seg
}

// buildESS adds a battery discharging toward the bus in the forward direction.
func (a *Asset) buildESS() error {
	c := a.config
	if c.Capacity == nil {
		return errs.Configuration("ess needs a capacity")
	}
	initial, efficiency := 0.0, 1.0
	if c.InitialCharge != nil {
		initial = *c.InitialCharge
	}
	if c.Efficiency != nil {
		efficiency = *c.Efficiency
	}
	var opts []element.Option
	if c.ShadowPrices {
		opts = append(opts, element.WithShadowPrices())
	}
	battery, err := element.NewBattery(c.Name, *c.Capacity, initial, efficiency, opts...)
	if err != nil {
		return err
	}

	var segs []*segment.Segment
	if c.DischargeLimit != nil || c.ChargeLimit != nil {
		limit, err := segment.NewPowerLimit(LimitSegment, c.DischargeLimit, c.ChargeLimit, false)
		if err != nil {
			return err
		}
		segs = append(segs, limit)
		a.alias("discharge_limit", LimitSegment, segment.Forward.String(), c.DischargeLimit != nil)
		a.alias("charge_limit", LimitSegment, segment.Reverse.String(), c.ChargeLimit != nil)
	}
	if c.Undercharge != nil || c.Overcharge != nil || c.UnderchargePrice != nil || c.OverchargePrice != nil {
		reserve, err := segment.NewSOCPricing(ReserveSegment, segment.SOCThresholds{
			Undercharge:      c.Undercharge,
			UnderchargePrice: c.UnderchargePrice,
			Overcharge:       c.Overcharge,
			OverchargePrice:  c.OverchargePrice,
		})
		if err != nil {
			return err
		}
		segs = append(segs, reserve)
		for _, name := range []string{"undercharge", "undercharge_price", "overcharge", "overcharge_price"} {
			a.alias(name, ReserveSegment, name, true)
		}
	}
	conn, err := connection.New(a.link(), c.Name, c.Bus, segs...)
	if err != nil {
		return err
	}
	a.elements = []element.Element{battery}
	a.connections = []*connection.Connection{conn}
	return nil
}

// buildGrid adds an unbounded supply importing forward and exporting in reverse.
func (a *Asset) buildGrid() error {
	c := a.config
	grid, err := element.NewNode(c.Name, element.WithSource(), element.WithSink())
	if err != nil {
		return err
	}

	var segs []*segment.Segment
	if c.ImportLimit != nil || c.ExportLimit != nil {
		limit, err := segment.NewPowerLimit(LimitSegment, c.ImportLimit, c.ExportLimit, false)
		if err != nil {
			return err
		}
		segs = append(segs, limit)
		a.alias("import_limit", LimitSegment, segment.Forward.String(), c.ImportLimit != nil)
		a.alias("export_limit", LimitSegment, segment.Reverse.String(), c.ExportLimit != nil)
	}
	if c.ImportPrice != nil || c.ExportPrice != nil {
		price, err := segment.NewPricing(PriceSegment, c.ImportPrice, negated(c.ExportPrice))
		if err != nil {
			return err
		}
		segs = append(segs, price)
		a.alias("import_price", PriceSegment, segment.Forward.String(), c.ImportPrice != nil)
		if c.ExportPrice != nil {
			a.aliases["export_price"] = Alias{Owner: a.owner(PriceSegment), Param: segment.Reverse.String(), Negate: true}
		}
	}
	conn, err := connection.New(a.link(), c.Name, c.Bus, segs...)
	if err != nil {
		return err
	}
	a.elements = []element.Element{grid}
	a.connections = []*connection.Connection{conn}
	return nil
}

// buildFeeder adds a fixed demand of forecast, fed from the bus.
func (a *Asset) buildFeeder() error {
	c := a.config
	if len(c.Forecast) == 0 {
		return errs.Configuration("load needs a forecast")
	}
	load, err := element.NewNode(c.Name, element.WithInjection(negated(c.Forecast)))
	if err != nil {
		return err
	}
	conn, err := connection.New(c.Bus+"_"+c.Name, c.Bus, c.Name)
	if err != nil {
		return err
	}
	a.aliases["forecast"] = Alias{Owner: c.Name, Param: "injection", Negate: true}
	a.elements = []element.Element{load}
	a.connections = []*connection.Connection{conn}
	return nil
}

// buildPV adds generation of forecast. A curtailable array may deliver anything
// up to forecast.
func (a *Asset) buildPV() error {
	c := a.config
	if len(c.Forecast) == 0 {
		return errs.Configuration("photovoltaics needs a forecast")
	}

	var (
		pv   *element.Node
		segs []*segment.Segment
		err  error
	)
	if c.Curtailable {
		pv, err = element.NewNode(c.Name, element.WithSource())
		if err != nil {
			return err
		}
		slice, err := segment.NewTimeSlice(ForecastSegment, c.Forecast, []float64{0})
		if err != nil {
			return err
		}
		segs = append(segs, slice)
		a.alias("forecast", ForecastSegment, segment.Forward.String(), true)
	} else {
		pv, err = element.NewNode(c.Name, element.WithInjection(c.Forecast))
		if err != nil {
			return err
		}
		a.aliases["forecast"] = Alias{Owner: c.Name, Param: "injection"}
	}
	conn, err := connection.New(a.link(), c.Name, c.Bus, segs...)
	if err != nil {
		return err
	}
	a.elements = []element.Element{pv}
	a.connections = []*connection.Connection{conn}
	return nil
}

// buildJunction adds a plain node, linked to the bus when one is named.
func (a *Asset) buildJunction() error {
	c := a.config
	var opts []element.Option
	if c.Source {
		opts = append(opts, element.WithSource())
	}
	if c.Sink {
		opts = append(opts, element.WithSink())
	}
	if c.ShadowPrices {
		opts = append(opts, element.WithShadowPrices())
	}
	if c.Forecast != nil {
		opts = append(opts, element.WithInjection(c.Forecast))
	}
	node, err := element.NewNode(c.Name, opts...)
	if err != nil {
		return err
	}
	a.elements = []element.Element{node}
	if c.Bus != "" {
		conn, err := connection.New(a.link(), c.Name, c.Bus)
		if err != nil {
			return err
		}
		a.connections = []*connection.Connection{conn}
	}
	return nil
}

func (a *Asset) alias(input, seg, name string, ok bool) {
	if ok {
		a.aliases[input] = Alias{Owner: a.owner(seg), Param: name}
	}
}

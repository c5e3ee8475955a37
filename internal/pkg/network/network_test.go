package network

import (
	"errors"
	"math"
	"testing"

	"github.com/ohowland/cgc_opt/internal/pkg/connection"
	"github.com/ohowland/cgc_opt/internal/pkg/element"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/segment"
	"gotest.tools/v3/assert"
)

func ptr(v float64) *float64 { return &v }

type microgrid struct {
	net     *Network
	battery *element.Battery
	load    *element.Node
}

// battery, grid, load and pv around a bus, two half-hour periods
func newMicrogrid(t *testing.T) *microgrid {
	net, err := New([]float64{1800, 1800})
	assert.NilError(t, err)

	bus, err := element.NewNode("bus", element.WithShadowPrices())
	assert.NilError(t, err)
	battery, err := element.NewBattery("battery", 10000, 0, 0.9)
	assert.NilError(t, err)
	grid, err := element.NewNode("grid", element.WithSource(), element.WithSink())
	assert.NilError(t, err)
	load, err := element.NewNode("load", element.WithInjection([]float64{-1000}))
	assert.NilError(t, err)
	pv, err := element.NewNode("pv", element.WithInjection([]float64{2000}))
	assert.NilError(t, err)
	for _, e := range []element.Element{bus, battery, grid, load, pv} {
		assert.NilError(t, net.AddElement(e))
	}

	limit, err := segment.NewPowerLimit("limit", ptr(5000), ptr(5000), false)
	assert.NilError(t, err)
	price, err := segment.NewPricing("price", []float64{0.30}, []float64{-0.05})
	assert.NilError(t, err)

	conns := []struct {
		name, source, target string
		segs                 []*segment.Segment
	}{
		{"battery_bus", "battery", "bus", []*segment.Segment{limit}},
		{"grid_bus", "grid", "bus", []*segment.Segment{price}},
		{"bus_load", "bus", "load", nil},
		{"pv_bus", "pv", "bus", nil},
	}
	for _, c := range conns {
		conn, err := connection.New(c.name, c.source, c.target, c.segs...)
		assert.NilError(t, err)
		assert.NilError(t, net.AddConnection(conn))
	}
	return &microgrid{net: net, battery: battery, load: load}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestEndToEnd(t *testing.T) {
	g := newMicrogrid(t)

	res, err := g.net.Solve()
	assert.NilError(t, err)
	assert.Equal(t, res.Status, lp.Optimal)

	outs, err := g.net.Outputs()
	assert.NilError(t, err)
	fwd := outs["grid_bus"]["flow_forward"].Values
	rev := outs["grid_bus"]["flow_reverse"].Values
	durations := g.net.Horizon().Durations()
	cost := 0.0
	for i, dt := range durations {
		assert.Assert(t, fwd[i] != nil && rev[i] != nil)
		cost += (*fwd[i]*0.30 - *rev[i]*0.05) * dt / 3600
	}
	assert.Assert(t, approx(res.Objective, cost), "objective %v, grid cost %v", res.Objective, cost)
	// the surplus of 1000 W is exported in both periods
	assert.Assert(t, approx(res.Objective, -50), "objective %v", res.Objective)

	priced := outs["grid_bus.price"]["cost"].Sum()
	assert.Assert(t, priced != nil && approx(*priced, cost))

	net := outs["bus_load"]["power_target"].Values
	assert.Assert(t, approx(*net[0], -1000))
	// one more watt at the bus is exported for 0.05 over half an hour
	shadow := outs["bus"]["net_power"].ShadowPrice
	assert.Equal(t, len(shadow), 2)
	for i, y := range shadow {
		assert.Assert(t, y != nil, "period %d", i)
		assert.Assert(t, approx(*y, -0.025), "period %d shadow %v", i, *y)
	}
	assert.Equal(t, len(outs["battery"]["soc"].Values), 2)
}

func TestBusShadowPriceFollowsImport(t *testing.T) {
	g := newMicrogrid(t)
	assert.NilError(t, g.net.Apply(map[string]map[string]interface{}{
		"load": {"injection": []float64{-3000}},
	}))

	res, err := g.net.Solve()
	assert.NilError(t, err)
	assert.Equal(t, res.Status, lp.Optimal)
	assert.Assert(t, approx(res.Objective, 300), "objective %v", res.Objective)

	outs, err := g.net.Outputs()
	assert.NilError(t, err)
	shadow := outs["bus"]["net_power"].ShadowPrice
	assert.Equal(t, len(shadow), 2)
	for i, y := range shadow {
		assert.Assert(t, y != nil, "period %d", i)
		assert.Assert(t, approx(*y, 0.15), "period %d shadow %v", i, *y)
	}
}

func TestScalarUpdateKeepsDims(t *testing.T) {
	g := newMicrogrid(t)
	_, err := g.net.Solve()
	assert.NilError(t, err)
	rows, cols := g.net.Dims()

	g.battery.Capacity().Set(12000)
	assert.DeepEqual(t, g.net.Dirty(), []string{"battery.capacity"})

	res, err := g.net.Solve()
	assert.NilError(t, err)
	assert.Equal(t, res.Status, lp.Optimal)
	assert.Equal(t, res.WarmStart, true)
	r, c := g.net.Dims()
	assert.Equal(t, r, rows)
	assert.Equal(t, c, cols)

	g.battery.InitialCharge().Set(1000)
	assert.DeepEqual(t, g.net.Dirty(), []string{"battery.first_period"})
	_, err = g.net.Solve()
	assert.NilError(t, err)
	r, c = g.net.Dims()
	assert.Equal(t, r, rows)
	assert.Equal(t, c, cols)
}

func TestDurationUpdateDirtiesReaders(t *testing.T) {
	g := newMicrogrid(t)
	_, err := g.net.Solve()
	assert.NilError(t, err)
	rows, cols := g.net.Dims()

	assert.NilError(t, g.net.UpdatePeriods([]float64{900, 900}))
	assert.DeepEqual(t, g.net.Dirty(), []string{"battery.first_period", "battery.dynamics", "grid_bus.price"})

	res, err := g.net.Solve()
	assert.NilError(t, err)
	assert.Equal(t, res.Status, lp.Optimal)
	assert.Assert(t, approx(res.Objective, -25), "objective %v", res.Objective)
	r, c := g.net.Dims()
	assert.Equal(t, r, rows)
	assert.Equal(t, c, cols)
}

func TestHorizonLengthChange(t *testing.T) {
	g := newMicrogrid(t)
	_, err := g.net.Solve()
	assert.NilError(t, err)
	_, cols := g.net.Dims()

	assert.NilError(t, g.net.UpdatePeriods([]float64{1800, 1800, 1800}))
	res, err := g.net.Solve()
	assert.NilError(t, err)
	assert.Equal(t, res.Status, lp.Optimal)
	assert.Equal(t, res.WarmStart, false)
	assert.Assert(t, approx(res.Objective, -75), "objective %v", res.Objective)
	_, c := g.net.Dims()
	assert.Equal(t, c, cols*3/2)

	outs, err := g.net.Outputs()
	assert.NilError(t, err)
	assert.Equal(t, len(outs["battery"]["energy_stored"].Values), 3)

	err = g.net.UpdatePeriods(nil)
	assert.Assert(t, errors.Is(err, errs.ErrValue))
}

func TestApplyInputs(t *testing.T) {
	g := newMicrogrid(t)
	_, err := g.net.Solve()
	assert.NilError(t, err)

	err = g.net.Apply(map[string]map[string]interface{}{
		"load":           {"injection": []interface{}{-1500, -1500}},
		"grid_bus.price": {"reverse": -0.10},
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, g.net.Dirty(), []string{"grid_bus.price", "load.balance"})

	res, err := g.net.Solve()
	assert.NilError(t, err)
	assert.Assert(t, approx(res.Objective, -50), "objective %v", res.Objective)

	err = g.net.Apply(map[string]map[string]interface{}{"battery": {"capacity": "large"}})
	assert.Assert(t, errors.Is(err, errs.ErrType))
	err = g.net.Apply(map[string]map[string]interface{}{"nobody": {"capacity": 1.0}})
	assert.Assert(t, errors.Is(err, errs.ErrConfiguration))
	err = g.net.Apply(map[string]map[string]interface{}{Owner: {"periods": []interface{}{1800.0}}})
	assert.NilError(t, err)
	assert.Equal(t, g.net.Horizon().Len(), 1)
}

func TestApplyIsAllOrNothing(t *testing.T) {
	g := newMicrogrid(t)
	_, err := g.net.Solve()
	assert.NilError(t, err)

	err = g.net.Apply(map[string]map[string]interface{}{
		"battery": {"capacity": 20000.0},
		"load":    {"injection": "oops"},
	})
	assert.Assert(t, errors.Is(err, errs.ErrType))
	capacity, err := g.battery.Capacity().Get()
	assert.NilError(t, err)
	assert.Equal(t, capacity, 10000.0)
	assert.Equal(t, len(g.net.Dirty()), 0)

	err = g.net.Apply(map[string]map[string]interface{}{
		"battery": {"capacity": 20000.0},
		Owner:     {"periods": []float64{1800, -1}},
	})
	assert.Assert(t, errors.Is(err, errs.ErrValue))
	assert.Equal(t, len(g.net.Dirty()), 0)
	assert.DeepEqual(t, g.net.Horizon().Durations(), []float64{1800, 1800})

	err = g.net.Apply(map[string]map[string]interface{}{
		"battery": {"capacity": 20000.0},
		"nobody":  {"capacity": 1.0},
	})
	assert.Assert(t, errors.Is(err, errs.ErrConfiguration))
	assert.Equal(t, len(g.net.Dirty()), 0)
}

func TestBuildErrorFromSolve(t *testing.T) {
	g := newMicrogrid(t)
	g.battery.Capacity().Set(-1)
	_, err := g.net.Solve()
	assert.Assert(t, errors.Is(err, errs.ErrValue))
}

func TestInfeasibleIsStatus(t *testing.T) {
	net, err := New([]float64{3600})
	assert.NilError(t, err)
	load, _ := element.NewNode("load", element.WithInjection([]float64{-1000}))
	bus, _ := element.NewNode("bus")
	assert.NilError(t, net.AddElement(load))
	assert.NilError(t, net.AddElement(bus))
	limit, err := segment.NewPowerLimit("limit", ptr(500), nil, false)
	assert.NilError(t, err)
	c, err := connection.New("bus_load", "bus", "load", limit)
	assert.NilError(t, err)
	assert.NilError(t, net.AddConnection(c))

	res, err := net.Solve()
	assert.NilError(t, err)
	assert.Assert(t, res.Status != lp.Optimal)
	assert.Equal(t, res.Objective, 0.0)

	outs, err := net.Outputs()
	assert.NilError(t, err)
	assert.Assert(t, outs["load"]["net_power"].Values[0] == nil)
}

func TestAddFailuresAreWrapped(t *testing.T) {
	g := newMicrogrid(t)

	soc, err := segment.NewSOCPricing("soc", segment.SOCThresholds{Undercharge: ptr(0.1), UnderchargePrice: ptr(1)})
	assert.NilError(t, err)
	c, err := connection.New("grid_load", "grid", "load", soc)
	assert.NilError(t, err)
	err = g.net.AddConnection(c)

	var be *errs.BuildError
	assert.Assert(t, errors.As(err, &be))
	assert.Equal(t, be.Item, "connection")
	assert.Equal(t, be.Name, "grid_load")
	assert.Assert(t, errors.Is(err, errs.ErrConfiguration))

	dup, _ := element.NewNode("bus")
	err = g.net.AddElement(dup)
	assert.Assert(t, errors.As(err, &be))
	assert.Equal(t, be.Item, "element")

	orphan, err := connection.New("ghost", "bus", "nowhere")
	assert.NilError(t, err)
	assert.Assert(t, errors.Is(g.net.AddConnection(orphan), errs.ErrConfiguration))

	_, err = connection.New("loop", "bus", "bus")
	assert.Assert(t, errors.Is(err, errs.ErrConfiguration))
}

func TestDottedNamesRejected(t *testing.T) {
	g := newMicrogrid(t)

	// "grid_bus.price" is already the owner of the pricing segment inputs
	dotted, err := element.NewNode("grid_bus.price", element.WithInjection([]float64{10}))
	assert.NilError(t, err)
	err = g.net.AddElement(dotted)
	var be *errs.BuildError
	assert.Assert(t, errors.As(err, &be))
	assert.Equal(t, be.Item, "element")
	assert.Assert(t, errors.Is(err, errs.ErrConfiguration))
	_, ok := g.net.Element("grid_bus.price")
	assert.Assert(t, !ok)

	c, err := connection.New("pv.bus", "pv", "bus")
	assert.NilError(t, err)
	err = g.net.AddConnection(c)
	assert.Assert(t, errors.As(err, &be))
	assert.Equal(t, be.Item, "connection")
	assert.Assert(t, errors.Is(err, errs.ErrConfiguration))

	_, ok = g.net.Params()["grid_bus.price"]["reverse"]
	assert.Assert(t, ok)
}

func TestSOCPricingOnBattery(t *testing.T) {
	g := newMicrogrid(t)
	battery, _ := g.net.Element("battery")

	soc, err := segment.NewSOCPricing("soc", segment.SOCThresholds{Undercharge: ptr(0.2), UnderchargePrice: ptr(1)})
	assert.NilError(t, err)
	c, err := connection.New("battery_reserve", "battery", "bus", soc)
	assert.NilError(t, err)
	assert.NilError(t, g.net.AddConnection(c))

	res, err := g.net.Solve()
	assert.NilError(t, err)
	assert.Equal(t, res.Status, lp.Optimal)

	outs, err := g.net.Outputs()
	assert.NilError(t, err)
	cost := outs["battery_reserve.soc"]["cost"].Values
	assert.Equal(t, len(cost), 2)
	assert.Assert(t, cost[0] != nil)

	g.battery.Capacity().Set(20000)
	assert.DeepEqual(t, g.net.Dirty(), []string{"battery.capacity", "battery_reserve.soc"})
	assert.Assert(t, len(g.net.Dependents(g.battery.Capacity().ID())) == 2)
	assert.Equal(t, battery.Name(), "battery")
}

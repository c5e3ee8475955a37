package element

import (
	"fmt"
	"math"

	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/output"
	"github.com/ohowland/cgc_opt/internal/pkg/param"
	"github.com/ohowland/cgc_opt/internal/pkg/period"
	"github.com/ohowland/cgc_opt/internal/pkg/reactive"
)

// Battery stores energy between periods. Power leaving the battery is
// discharge minus charge; the round-trip efficiency is split evenly between
// charging and discharging.
type Battery struct {
	base
	capacity   *param.Tracked[float64]
	initial    *param.Tracked[float64]
	efficiency *param.Tracked[float64]

	energy    []lp.Var
	charge    []lp.Var
	discharge []lp.Var

	first    *reactive.Node
	dynamics *reactive.Node
	bound    *reactive.Node
}

// NewBattery returns a battery of capacity Wh holding initialCharge Wh.
func NewBattery(name string, capacity, initialCharge, efficiency float64, opts ...Option) (*Battery, error) {
	o := collect(opts)
	b, err := newBase(name, o.shadow)
	if err != nil {
		return nil, err
	}
	checks := []struct {
		label string
		v     float64
		check func(float64) error
	}{
		{"capacity", capacity, positive},
		{"initial_charge", initialCharge, nonNegative},
		{"efficiency", efficiency, unitFactor},
	}
	for _, c := range checks {
		if err := c.check(c.v); err != nil {
			return nil, errs.Configuration("battery %q %s: %v", name, c.label, err)
		}
	}
	return &Battery{
		base:       b,
		capacity:   param.Of("capacity", capacity, param.WithCheck(positive)),
		initial:    param.Of("initial_charge", initialCharge, param.WithCheck(nonNegative)),
		efficiency: param.Of("efficiency", efficiency, param.WithCheck(unitFactor)),
	}, nil
}

// Energy returns the stored energy columns, one per period.
func (b *Battery) Energy() []lp.Var {
	return b.energy
}

// Capacity returns the capacity parameter.
func (b *Battery) Capacity() *param.Tracked[float64] {
	return b.capacity
}

// InitialCharge returns the initial charge parameter.
func (b *Battery) InitialCharge() *param.Tracked[float64] {
	return b.initial
}

// Efficiency returns the round-trip efficiency parameter.
func (b *Battery) Efficiency() *param.Tracked[float64] {
	return b.efficiency
}

// Declare allocates energy, charge and discharge columns.
func (b *Battery) Declare(m *lp.Model, h *period.Horizon) {
	b.n = h.Len()
	b.energy = m.NewVars(b.name+".energy", b.n)
	b.charge = m.NewVars(b.name+".charge", b.n)
	b.discharge = m.NewVars(b.name+".discharge", b.n)
}

// Register adds one builder per row group so that each parameter dirties only
// the rows it appears in.
func (b *Battery) Register(g *reactive.Graph, h *period.Horizon, f Flows) {
	b.flows = f
	b.balance = g.Add(b.name+".balance", b.buildBalance)
	b.first = g.Add(b.name+".first_period", func() (lp.Block, error) { return b.buildFirst(h) },
		b.initial, b.efficiency, h.Source())
	b.dynamics = g.Add(b.name+".dynamics", func() (lp.Block, error) { return b.buildDynamics(h) },
		b.efficiency, h.Source())
	b.bound = g.Add(b.name+".capacity", b.buildCapacity, b.capacity)
}

func (b *Battery) buildBalance() (lp.Block, error) {
	var blk lp.Block
	for t := 0; t < b.n; t++ {
		extra := []lp.Term{lp.T(b.discharge[t], -1), lp.T(b.charge[t], 1)}
		blk.Rows = append(blk.Rows, b.balanceRow(t, extra, 0))
	}
	return blk, nil
}

// split returns the one-way charge and discharge factors of the round-trip efficiency.
func (b *Battery) split() (float64, float64, error) {
	eta, err := b.efficiency.Read()
	if err != nil {
		return 0, 0, err
	}
	root := math.Sqrt(eta)
	return root, 1 / root, nil
}

func (b *Battery) stateTerms(t int, hours float64, in, out float64) []lp.Term {
	return []lp.Term{
		lp.T(b.energy[t], 1),
		lp.T(b.charge[t], -in*hours),
		lp.T(b.discharge[t], out*hours),
	}
}

func (b *Battery) buildFirst(h *period.Horizon) (lp.Block, error) {
	initial, err := b.initial.Read()
	if err != nil {
		return lp.Block{}, err
	}
	in, out, err := b.split()
	if err != nil {
		return lp.Block{}, err
	}
	hours := h.Hours()
	return lp.Block{Rows: []lp.Row{{
		Name:  "energy[0]",
		Terms: b.stateTerms(0, hours[0], in, out),
		Sense: lp.EQ,
		RHS:   initial,
	}}}, nil
}

func (b *Battery) buildDynamics(h *period.Horizon) (lp.Block, error) {
	in, out, err := b.split()
	if err != nil {
		return lp.Block{}, err
	}
	hours := h.Hours()
	var blk lp.Block
	for t := 1; t < b.n; t++ {
		blk.Rows = append(blk.Rows, lp.Row{
			Name:  fmt.Sprintf("energy[%d]", t),
			Terms: append(b.stateTerms(t, hours[t], in, out), lp.T(b.energy[t-1], -1)),
			Sense: lp.EQ,
		})
	}
	return blk, nil
}

func (b *Battery) buildCapacity() (lp.Block, error) {
	capacity, err := b.capacity.Read()
	if err != nil {
		return lp.Block{}, err
	}
	var blk lp.Block
	for t, e := range b.energy {
		blk.Rows = append(blk.Rows, lp.Row{
			Name:  fmt.Sprintf("capacity[%d]", t),
			Terms: []lp.Term{lp.T(e, 1)},
			Sense: lp.LE,
			RHS:   capacity,
		})
	}
	return blk, nil
}

// Outputs returns energy_stored, soc, power_charge, power_discharge and net_power.
func (b *Battery) Outputs(sol *lp.Solution) map[string]output.Output {
	energy := sol.Values(b.energy)
	soc := make([]*float64, len(energy))
	if capacity, err := b.capacity.Read(); err == nil {
		for t, e := range energy {
			if e != nil {
				soc[t] = output.Float(*e / capacity)
			}
		}
	}
	stored := output.Sequence(energy)
	if b.bound != nil {
		stored = stored.WithShadowPrice(sol.Duals(b.bound.ID()))
	}
	return map[string]output.Output{
		"energy_stored":   stored,
		"soc":             output.Sequence(soc),
		"power_charge":    output.Sequence(sol.Values(b.charge)),
		"power_discharge": output.Sequence(sol.Values(b.discharge)),
		"net_power":       b.netPower(sol),
	}
}

// Params returns the battery inputs by name.
func (b *Battery) Params() map[string]param.Loader {
	return map[string]param.Loader{
		"capacity":       b.capacity,
		"initial_charge": b.initial,
		"efficiency":     b.efficiency,
	}
}

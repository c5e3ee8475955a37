// Package period describes the optimization horizon and aligns configuration
// values to it.
package period

import (
	"fmt"

	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/param"
)

const secondsPerHour = 3600.0

// Horizon is the ordered sequence of period durations, in seconds.
type Horizon struct {
	durations *param.Tracked[[]float64]
}

// NewHorizon returns a Horizon over the given durations.
func NewHorizon(durations []float64) (*Horizon, error) {
	if err := Validate(durations); err != nil {
		return nil, err
	}
	return &Horizon{param.Of("periods", durations)}, nil
}

// Update replaces the durations. Readers are invalidated only on change.
func (h *Horizon) Update(durations []float64) error {
	if err := Validate(durations); err != nil {
		return err
	}
	h.durations.Set(durations)
	return nil
}

// Source exposes the durations for dependency registration.
func (h *Horizon) Source() param.Source {
	return h.durations
}

// Len is the number of periods.
func (h *Horizon) Len() int {
	d, _ := h.durations.Get()
	return len(d)
}

// Durations returns the period durations in seconds.
func (h *Horizon) Durations() []float64 {
	d, _ := h.durations.Get()
	return d
}

// Hours returns the period durations in hours.
func (h *Horizon) Hours() []float64 {
	d := h.Durations()
	hours := make([]float64, len(d))
	for i, s := range d {
		hours[i] = s / secondsPerHour
	}
	return hours
}

// Validate checks that durations can form a horizon.
func Validate(durations []float64) error {
	if len(durations) == 0 {
		return errs.Value("horizon needs at least one period")
	}
	for i, d := range durations {
		if d <= 0 {
			return errs.Value("period %d has non-positive duration %v", i, d)
		}
	}
	return nil
}

// Broadcast aligns v to n entries. A single value repeats n times, an exact
// length passes through, a longer sequence is truncated and a shorter non-empty
// sequence is extended by repeating its last entry. Empty input fails.
func Broadcast(v []float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, errs.Value("cannot broadcast to %d periods", n)
	}
	if len(v) == 0 {
		return nil, errs.Value("cannot broadcast an empty sequence")
	}
	out := make([]float64, n)
	copy(out, v)
	for i := len(v); i < n; i++ {
		out[i] = v[len(v)-1]
	}
	return out, nil
}

// Read is Broadcast applied to the current value of p.
func Read(p *param.Tracked[[]float64], n int) ([]float64, error) {
	v, err := p.Read()
	if err != nil {
		return nil, err
	}
	out, err := Broadcast(v, n)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", p.Name(), err)
	}
	return out, nil
}

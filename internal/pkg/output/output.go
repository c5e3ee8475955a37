// Package output holds the named values produced by a solve.
package output

import (
	"sort"
)

// Output is a per-period (or scalar) value sequence with an optional shadow
// price. A nil entry is a value the solver did not resolve.
type Output struct {
	Values      []*float64 `json:"values" yaml:"values" bson:"values"`
	Scalar      bool       `json:"scalar,omitempty" yaml:"scalar,omitempty" bson:"scalar,omitempty"`
	ShadowPrice []*float64 `json:"shadow_price,omitempty" yaml:"shadow_price,omitempty" bson:"shadow_price,omitempty"`
}

// Sequence returns a per-period output.
func Sequence(values []*float64) Output {
	return Output{Values: values}
}

// WithShadowPrice returns o carrying the given shadow prices.
func (o Output) WithShadowPrice(prices []*float64) Output {
	o.ShadowPrice = prices
	return o
}

// Value returns the first entry, or nil. It is the value of a scalar output.
func (o Output) Value() *float64 {
	if len(o.Values) == 0 {
		return nil
	}
	return o.Values[0]
}

// Sum adds the entries, or returns nil if any entry is unresolved.
func (o Output) Sum() *float64 {
	if len(o.Values) == 0 {
		return nil
	}
	total := 0.0
	for _, v := range o.Values {
		if v == nil {
			return nil
		}
		total += *v
	}
	return &total
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Floats converts a sequence to resolved entries.
func Floats(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i := range vs {
		out[i] = Float(vs[i])
	}
	return out
}

// Set maps owner name to output name to Output.
type Set map[string]map[string]Output

// Put stores o under owner and name.
func (s Set) Put(owner, name string, o Output) {
	if s[owner] == nil {
		s[owner] = make(map[string]Output)
	}
	s[owner][name] = o
}

// Merge stores every output of a single owner.
func (s Set) Merge(owner string, outputs map[string]Output) {
	for name, o := range outputs {
		s.Put(owner, name, o)
	}
}

// Get looks up one output.
func (s Set) Get(owner, name string) (Output, bool) {
	o, ok := s[owner][name]
	return o, ok
}

// Owners returns the owner names in sorted order.
func (s Set) Owners() []string {
	owners := make([]string, 0, len(s))
	for owner := range s {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

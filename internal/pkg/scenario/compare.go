package scenario

import (
	"fmt"
	"math"
	"sort"

	"github.com/ohowland/cgc_opt/internal/pkg/output"
)

// Mismatch is one difference between expected and solved outputs. Index is -1
// when the whole output is missing or has the wrong length.
type Mismatch struct {
	Owner string
	Name  string
	Field string
	Index int
	Want  *float64
	Got   *float64
}

func (m Mismatch) String() string {
	if m.Index < 0 {
		return fmt.Sprintf("%s.%s: %s", m.Owner, m.Name, m.Field)
	}
	return fmt.Sprintf("%s.%s %s[%d]: want %s, got %s", m.Owner, m.Name, m.Field, m.Index, show(m.Want), show(m.Got))
}

func show(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%g", *v)
}

// Compare checks every output in want against got. Outputs only present in got
// are ignored. Values match when both are nil or they differ by at most tol.
func Compare(want, got output.Set, tol float64) []Mismatch {
	var diffs []Mismatch
	for _, owner := range want.Owners() {
		names := make([]string, 0, len(want[owner]))
		for name := range want[owner] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			w := want[owner][name]
			g, ok := got.Get(owner, name)
			if !ok {
				diffs = append(diffs, Mismatch{Owner: owner, Name: name, Field: "missing", Index: -1})
				continue
			}
			diffs = append(diffs, compare(owner, name, "values", w.Values, g.Values, tol)...)
			if w.ShadowPrice != nil {
				diffs = append(diffs, compare(owner, name, "shadow_price", w.ShadowPrice, g.ShadowPrice, tol)...)
			}
		}
	}
	return diffs
}

func compare(owner, name, field string, want, got []*float64, tol float64) []Mismatch {
	if len(want) != len(got) {
		return []Mismatch{{Owner: owner, Name: name, Field: field + " length", Index: -1}}
	}
	var diffs []Mismatch
	for i := range want {
		if !within(want[i], got[i], tol) {
			diffs = append(diffs, Mismatch{owner, name, field, i, want[i], got[i]})
		}
	}
	return diffs
}

func within(a, b *float64, tol float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) <= tol
}

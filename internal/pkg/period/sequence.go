package period

import (
	"encoding/json"

	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"gopkg.in/yaml.v3"
)

// Sequence is a per-period value in a document. A bare number decodes as a
// one-entry sequence, which broadcasts to every period.
type Sequence []float64

// UnmarshalJSON accepts a number or an array of numbers.
func (s *Sequence) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*s = Sequence{f}
		return nil
	}
	var seq []float64
	if err := json.Unmarshal(data, &seq); err != nil {
		return errs.Type("want a number or a sequence of numbers: %v", err)
	}
	*s = seq
	return nil
}

// UnmarshalYAML accepts a number or a sequence of numbers.
func (s *Sequence) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var f float64
		if err := node.Decode(&f); err != nil {
			return errs.Type("want a number: %v", err)
		}
		*s = Sequence{f}
		return nil
	}
	var seq []float64
	if err := node.Decode(&seq); err != nil {
		return errs.Type("want a sequence of numbers: %v", err)
	}
	*s = seq
	return nil
}

// Package scenario reads and writes network snapshot documents and runs them
// through the optimizer.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ohowland/cgc_opt/internal/pkg/asset"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/output"
	"github.com/ohowland/cgc_opt/internal/pkg/period"
	"github.com/ohowland/cgc_opt/internal/pkg/segment"
	"gopkg.in/yaml.v3"
)

// Version is stamped into the environment of every document produced here.
const Version = "0.1.0"

// Format is a document encoding.
type Format string

// Document encodings
const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// FormatOf picks the encoding from a file extension. Unknown extensions are JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	}
	return JSON
}

// Document is a network snapshot: topology, inputs and, once solved, outputs.
type Document struct {
	Config      Topology                          `json:"config" yaml:"config"`
	Environment Environment                       `json:"environment" yaml:"environment"`
	Inputs      map[string]map[string]interface{} `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Result      *lp.Result                        `json:"result,omitempty" yaml:"result,omitempty"`
	Outputs     output.Set                        `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// Environment records where a snapshot came from.
type Environment struct {
	Timestamp *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Version   string     `json:"version,omitempty" yaml:"version,omitempty"`
	Network   string     `json:"network,omitempty" yaml:"network,omitempty"`
}

// Topology describes the network. Assets expand to elements and connections;
// Elements and Connections add items directly.
type Topology struct {
	Periods     period.Sequence    `json:"periods" yaml:"periods"`
	Assets      []asset.Config     `json:"assets,omitempty" yaml:"assets,omitempty"`
	Elements    []ElementConfig    `json:"elements,omitempty" yaml:"elements,omitempty"`
	Connections []ConnectionConfig `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// ElementConfig describes a node or battery element.
type ElementConfig struct {
	Name         string          `json:"name" yaml:"name"`
	Type         string          `json:"type" yaml:"type"`
	Source       bool            `json:"source,omitempty" yaml:"source,omitempty"`
	Sink         bool            `json:"sink,omitempty" yaml:"sink,omitempty"`
	ShadowPrices bool            `json:"shadow_prices,omitempty" yaml:"shadow_prices,omitempty"`
	Injection    period.Sequence `json:"injection,omitempty" yaml:"injection,omitempty"`

	Capacity      float64  `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	InitialCharge float64  `json:"initial_charge,omitempty" yaml:"initial_charge,omitempty"`
	Efficiency    *float64 `json:"efficiency,omitempty" yaml:"efficiency,omitempty"`
}

// ConnectionConfig describes a connection and its segment chain.
type ConnectionConfig struct {
	Name     string           `json:"name" yaml:"name"`
	Source   string           `json:"source" yaml:"source"`
	Target   string           `json:"target" yaml:"target"`
	Segments []segment.Config `json:"segments,omitempty" yaml:"segments,omitempty"`
}

// Load reads the document at path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	doc, err := Decode(data, FormatOf(path))
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Decode parses a document.
func Decode(data []byte, format Format) (Document, error) {
	doc := Document{}
	var err error
	switch format {
	case YAML:
		err = yaml.Unmarshal(data, &doc)
	case JSON:
		err = json.Unmarshal(data, &doc)
	default:
		return doc, errs.Configuration("unknown document format %q", format)
	}
	if err != nil {
		return doc, fmt.Errorf("%w: %v", errs.ErrValue, err)
	}
	doc.Inputs = normalize(doc.Inputs)
	return doc, nil
}

// Encode renders a document.
func Encode(doc Document, format Format) ([]byte, error) {
	switch format {
	case YAML:
		return yaml.Marshal(doc)
	case JSON:
		return json.MarshalIndent(doc, "", "  ")
	}
	return nil, errs.Configuration("unknown document format %q", format)
}

// Save writes doc to path in the encoding its extension names.
func Save(doc Document, path string) error {
	data, err := Encode(doc, FormatOf(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// normalize turns YAML integers into floats so both encodings load the same
// input values.
func normalize(inputs map[string]map[string]interface{}) map[string]map[string]interface{} {
	for _, values := range inputs {
		for name, v := range values {
			values[name] = number(v)
		}
	}
	return inputs
}

func number(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case []interface{}:
		out := make([]interface{}, len(n))
		for i := range n {
			out[i] = number(n[i])
		}
		return out
	}
	return v
}

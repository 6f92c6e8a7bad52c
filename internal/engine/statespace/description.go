package statespace

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/tianwei1989/EstimationPy/internal/engine"
)

const (
	DefaultIntegrator = "rk4"
	DefaultMaxStep    = 0.01
	DefaultTolerance  = 1e-6
)

// Description is the YAML model description of a linear time-invariant
// system
//
//	x' = A x + B u
//	y  = C x + D u
//
// where every matrix entry is either a number or the name of a tunable
// variable, so parameters can be changed between runs.
type Description struct {
	Name        string         `yaml:"name"`
	Author      string         `yaml:"author"`
	Description string         `yaml:"description"`
	Type        string         `yaml:"type"`
	Version     string         `yaml:"version"`
	GUID        string         `yaml:"guid"`
	Tool        string         `yaml:"tool"`
	Solver      SolverConfig   `yaml:"solver"`
	Variables   []VariableSpec `yaml:"variables"`
	System      SystemSpec     `yaml:"system"`
}

type SolverConfig struct {
	Integrator string  `yaml:"integrator"`
	MaxStep    float64 `yaml:"max_step"`
	MinStep    float64 `yaml:"min_step"`
	Tolerance  float64 `yaml:"tolerance"`
}

type VariableSpec struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Causality   string  `yaml:"causality"`
	Start       float64 `yaml:"start"`
}

type SystemSpec struct {
	States  []string `yaml:"states"`
	Inputs  []string `yaml:"inputs"`
	Outputs []string `yaml:"outputs"`
	A       Matrix   `yaml:"a"`
	B       Matrix   `yaml:"b"`
	C       Matrix   `yaml:"c"`
	D       Matrix   `yaml:"d"`
}

// Matrix is a row-major matrix of entries. A nil Matrix means all zeros.
type Matrix [][]Entry

// Entry is a literal coefficient or a reference to a variable by name.
type Entry struct {
	Value float64
	Ref   string
}

func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: matrix entry must be a number or a variable name", node.Line)
	}
	if f, err := strconv.ParseFloat(node.Value, 64); err == nil {
		e.Value = f
		return nil
	}
	if node.Value == "" {
		return fmt.Errorf("line %d: empty matrix entry", node.Line)
	}
	e.Ref = node.Value
	return nil
}

func (e Entry) String() string {
	if e.Ref != "" {
		return e.Ref
	}
	return strconv.FormatFloat(e.Value, 'g', -1, 64)
}

// Parse decodes and validates a description.
func Parse(data []byte) (*Description, error) {
	var desc Description
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	desc.applyDefaults()
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

func (d *Description) applyDefaults() {
	if d.Solver.Integrator == "" {
		d.Solver.Integrator = DefaultIntegrator
	}
	if d.Solver.MaxStep <= 0 {
		d.Solver.MaxStep = DefaultMaxStep
	}
	if d.Solver.Tolerance <= 0 {
		d.Solver.Tolerance = DefaultTolerance
	}
}

// Validate checks names, causalities and matrix shapes.
func (d *Description) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: missing model name", ErrMalformed)
	}

	causality := make(map[string]engine.Causality, len(d.Variables))
	for _, v := range d.Variables {
		if v.Name == "" {
			return fmt.Errorf("%w: variable without a name", ErrMalformed)
		}
		if _, dup := causality[v.Name]; dup {
			return fmt.Errorf("%w: duplicate variable %q", ErrMalformed, v.Name)
		}
		c, err := engine.ParseCausality(v.Causality)
		if err != nil {
			return fmt.Errorf("%w: variable %q: %v", ErrMalformed, v.Name, err)
		}
		causality[v.Name] = c
	}

	states := make(map[string]bool, len(d.System.States))
	for _, name := range d.System.States {
		c, ok := causality[name]
		if !ok {
			return fmt.Errorf("%w: state %q is not a declared variable", ErrMalformed, name)
		}
		if c == engine.Input {
			return fmt.Errorf("%w: state %q cannot be an input", ErrMalformed, name)
		}
		states[name] = true
	}
	for _, name := range d.System.Inputs {
		if c, ok := causality[name]; !ok || c != engine.Input {
			return fmt.Errorf("%w: system input %q must be declared with causality input", ErrMalformed, name)
		}
	}
	for _, name := range d.System.Outputs {
		c, ok := causality[name]
		if !ok || states[name] || c == engine.Input {
			return fmt.Errorf("%w: system output %q must be a declared, non-state, non-input variable", ErrMalformed, name)
		}
	}

	n, m, p := len(d.System.States), len(d.System.Inputs), len(d.System.Outputs)
	shapes := []struct {
		label      string
		mat        Matrix
		rows, cols int
	}{
		{"a", d.System.A, n, n},
		{"b", d.System.B, n, m},
		{"c", d.System.C, p, n},
		{"d", d.System.D, p, m},
	}
	for _, s := range shapes {
		if err := checkShape(s.label, s.mat, s.rows, s.cols); err != nil {
			return err
		}
		for _, row := range s.mat {
			for _, e := range row {
				if e.Ref == "" {
					continue
				}
				c, ok := causality[e.Ref]
				if !ok {
					return fmt.Errorf("%w: matrix %s references unknown variable %q", ErrMalformed, s.label, e.Ref)
				}
				if c == engine.Input || c == engine.Output || states[e.Ref] {
					return fmt.Errorf("%w: matrix %s references %s variable %q", ErrMalformed, s.label, c, e.Ref)
				}
			}
		}
	}
	return nil
}

func checkShape(label string, mat Matrix, rows, cols int) error {
	if mat == nil {
		return nil
	}
	if len(mat) != rows {
		return fmt.Errorf("%w: matrix %s has %d rows, want %d", ErrMalformed, label, len(mat), rows)
	}
	for i, row := range mat {
		if len(row) != cols {
			return fmt.Errorf("%w: matrix %s row %d has %d columns, want %d", ErrMalformed, label, i, len(row), cols)
		}
	}
	return nil
}

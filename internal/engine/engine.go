// Package engine defines the simulator capability a model is driven through.
//
// An [Instance] is an opaque, already-loaded simulator: it lists its scalar
// variables, exchanges real values by [ValueReference], initializes, and
// advances time in communication steps. A [Loader] turns a model description
// path into an Instance. Any engine, native or foreign, that can do those
// five things can sit behind a model.Model.
package engine

import (
	"fmt"
	"strings"
)

// Causality is the role a variable plays at the simulator's interface.
type Causality int

const (
	// Internal variables are engine-private (tunable constants, intermediates).
	Internal Causality = iota
	Input
	Output
	Parameter
	Local
)

var causalityNames = map[Causality]string{
	Internal:  "internal",
	Input:     "input",
	Output:    "output",
	Parameter: "parameter",
	Local:     "local",
}

func (c Causality) String() string {
	if name, ok := causalityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("causality(%d)", int(c))
}

// ParseCausality maps a description keyword to a Causality.
func ParseCausality(s string) (Causality, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for c, name := range causalityNames {
		if name == key {
			return c, nil
		}
	}
	return Internal, fmt.Errorf("unknown causality %q", s)
}

// ValueReference is the handle a simulator uses to address a scalar.
type ValueReference uint32

// ScalarVariable describes one variable as reported by the simulator.
type ScalarVariable struct {
	Name           string
	Description    string
	Causality      Causality
	ValueReference ValueReference
	// IsState marks variables that hold part of the integrated state.
	IsState bool
	Start   float64
}

// Metadata is the descriptive information of a loaded simulator.
type Metadata struct {
	Name        string
	Author      string
	Description string
	Type        string
	Version     string
	GUID        string
	Tool        string
	NumStates   int
}

// Instance is a loaded simulator. Implementations need not be safe for
// concurrent use; an Instance belongs to exactly one model.
type Instance interface {
	// Variables returns every variable in the order the simulator declares them.
	Variables() []ScalarVariable

	GetReal(refs ...ValueReference) ([]float64, error)
	SetReal(refs []ValueReference, values []float64) error

	// Initialize resets the integrated state to its start values at
	// startTime. Values set through SetReal on non-state variables survive.
	Initialize(startTime float64) error

	// DoStep advances the simulator from currentTime by stepSize seconds
	// holding the current input values.
	DoStep(currentTime, stepSize float64) error

	Metadata() Metadata
}

// Loader opens a model description and returns a ready instance.
type Loader interface {
	Load(path string) (Instance, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(path string) (Instance, error)

func (f LoaderFunc) Load(path string) (Instance, error) {
	return f(path)
}

package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tianwei1989/EstimationPy/internal/engine"
	"github.com/tianwei1989/EstimationPy/internal/engine/statespace"
)

// Properties is the descriptive metadata of the loaded simulator.
type Properties struct {
	Name        string
	Author      string
	Description string
	Type        string
	Version     string
	GUID        string
	Tool        string
	NumStates   int
}

type Option func(*Model)

// WithLoader selects the engine used to open model descriptions.
func WithLoader(l engine.Loader) Option {
	return func(m *Model) { m.loader = l }
}

// WithStrictInputs makes InitializeSimulator fail on inputs without data
// instead of leaving them at the engine's value.
func WithStrictInputs(strict bool) Option {
	return func(m *Model) { m.strictInputs = strict }
}

// Model is a facade over one simulator instance. It is not safe for
// concurrent use; see Pool for parallel runs.
type Model struct {
	loader       engine.Loader
	strictInputs bool

	path     string
	props    Properties
	fmu      engine.Instance
	loadID   uuid.UUID
	registry *Registry

	// values set through SetReal, re-applied whenever the engine is initialized
	overrides     map[engine.ValueReference]float64
	overrideOrder []engine.ValueReference

	initialized bool
	origin      time.Time
}

// New returns an empty model.
func New(opts ...Option) *Model {
	m := &Model{loader: statespace.NewLoader()}
	for _, opt := range opts {
		opt(m)
	}
	m.reset()
	return m
}

// Open returns a model loaded from path.
func Open(path string, opts ...Option) (*Model, error) {
	m := New(opts...)
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) reset() {
	m.path = ""
	m.props = Properties{}
	m.fmu = nil
	m.loadID = uuid.Nil
	m.registry = emptyRegistry()
	m.overrides = make(map[engine.ValueReference]float64)
	m.overrideOrder = nil
	m.initialized = false
	m.origin = time.Time{}
}

// Load discards any current simulator and loads the description at path.
// On failure the model is left empty.
func (m *Model) Load(path string) error {
	m.reset()

	inst, err := m.loader.Load(path)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	if inst == nil {
		return &LoadError{Path: path, Err: errors.New("engine returned no instance")}
	}

	load := uuid.New()
	reg, err := NewRegistry(inst.Variables(), load)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}

	meta := inst.Metadata()
	m.path = path
	m.fmu = inst
	m.loadID = load
	m.registry = reg
	m.props = Properties{
		Name:        meta.Name,
		Author:      meta.Author,
		Description: meta.Description,
		Type:        meta.Type,
		Version:     meta.Version,
		GUID:        meta.GUID,
		Tool:        meta.Tool,
		NumStates:   meta.NumStates,
	}

	logrus.Infof("model: loaded %s from %s (%d inputs, %d outputs, %d states)",
		meta.Name, path, reg.inputs.len(), reg.outputs.len(), reg.states.len())
	return nil
}

// ReInit is Load under the name callers use to reset a model: all previous
// state, including initialization, is discarded.
func (m *Model) ReInit(path string) error {
	return m.Load(path)
}

func (m *Model) IsLoaded() bool { return m.fmu != nil }

func (m *Model) IsInitialized() bool { return m.initialized }

func (m *Model) GetProperties() Properties { return m.props }

func (m *Model) GetFmuName() string { return m.props.Name }

func (m *Model) GetFmuFilePath() string { return m.path }

// GetFMU returns the engine instance, nil when nothing is loaded.
func (m *Model) GetFMU() engine.Instance { return m.fmu }

func (m *Model) GetInputs() []*Input                         { return m.registry.Inputs() }
func (m *Model) GetOutputs() []*Output                       { return m.registry.Outputs() }
func (m *Model) GetStates() []*Output                        { return m.registry.States() }
func (m *Model) GetParameters() []*Parameter                 { return m.registry.Parameters() }
func (m *Model) GetVariables() []*FreeVariable               { return m.registry.Variables() }
func (m *Model) GetInputNames() []string                     { return m.registry.inputs.names() }
func (m *Model) GetOutputNames() []string                    { return m.registry.outputs.names() }
func (m *Model) GetStateNames() []string                     { return m.registry.states.names() }
func (m *Model) GetParameterNames() []string                 { return m.registry.parameters.names() }
func (m *Model) GetVariableNames() []string                  { return m.registry.variables.names() }
func (m *Model) GetNumInputs() int                           { return m.registry.inputs.len() }
func (m *Model) GetNumOutputs() int                          { return m.registry.outputs.len() }
func (m *Model) GetNumParameters() int                       { return m.registry.parameters.len() }
func (m *Model) GetNumVariables() int                        { return m.registry.variables.len() }
func (m *Model) GetNumStates() int                           { return m.registry.states.len() }
func (m *Model) GetInputByName(name string) (*Input, bool)   { return m.registry.Input(name) }
func (m *Model) GetOutputByName(name string) (*Output, bool) { return m.registry.Output(name) }

// GetVariableObject looks a name up across every class, including
// engine-internal variables such as tunable coefficients.
func (m *Model) GetVariableObject(name string) (Variable, bool) {
	return m.registry.Lookup(name)
}

// GetMeasuredOutputs lists outputs with measured data attached.
func (m *Model) GetMeasuredOutputs() []*Output {
	out := make([]*Output, 0)
	for _, o := range m.registry.Outputs() {
		if o.IsMeasured() {
			out = append(out, o)
		}
	}
	return out
}

func (m *Model) GetNumMeasuredOutputs() int { return len(m.GetMeasuredOutputs()) }

// GetMeasuredValues samples every measured output's data at t.
func (m *Model) GetMeasuredValues(t time.Time) (map[string]float64, error) {
	values := make(map[string]float64)
	for _, o := range m.GetMeasuredOutputs() {
		data, err := o.GetMeasuredDataSeries()
		if err != nil {
			return nil, fmt.Errorf("model: measured output %s: %w", o.Name(), err)
		}
		values[o.Name()] = data.ValueAt(t)
	}
	return values, nil
}

func (m *Model) check(v Variable) error {
	if isNil(v) {
		return fmt.Errorf("%w: nil variable", ErrInvalidVariable)
	}
	if m.fmu == nil || v.loadID() != m.loadID {
		return fmt.Errorf("%w: %s", ErrInvalidVariable, v.Name())
	}
	return nil
}

// SetReal writes a value to the simulator. The value is remembered and
// written again every time the simulator is initialized.
func (m *Model) SetReal(v Variable, value float64) error {
	if err := m.check(v); err != nil {
		return err
	}
	ref := v.ValueReference()
	if err := m.fmu.SetReal([]engine.ValueReference{ref}, []float64{value}); err != nil {
		return fmt.Errorf("model: set %s: %w", v.Name(), err)
	}
	m.remember(ref, value)
	return nil
}

func (m *Model) GetReal(v Variable) (float64, error) {
	if err := m.check(v); err != nil {
		return 0, err
	}
	vals, err := m.fmu.GetReal(v.ValueReference())
	if err != nil {
		return 0, fmt.Errorf("model: get %s: %w", v.Name(), err)
	}
	if len(vals) != 1 {
		return 0, &SimulationError{Err: fmt.Errorf("get %s: engine returned %d values", v.Name(), len(vals))}
	}
	return vals[0], nil
}

func (m *Model) remember(ref engine.ValueReference, value float64) {
	if _, seen := m.overrides[ref]; !seen {
		m.overrideOrder = append(m.overrideOrder, ref)
	}
	m.overrides[ref] = value
}

// GetState reads the state outputs in registry order.
func (m *Model) GetState() ([]float64, error) {
	if m.fmu == nil {
		return nil, ErrNotReady
	}
	states := m.registry.States()
	refs := make([]engine.ValueReference, len(states))
	for i, s := range states {
		refs[i] = s.ValueReference()
	}
	vals, err := m.fmu.GetReal(refs...)
	if err != nil {
		return nil, fmt.Errorf("model: get state: %w", err)
	}
	return vals, nil
}

// SetState writes the state outputs in registry order.
func (m *Model) SetState(values []float64) error {
	if m.fmu == nil {
		return ErrNotReady
	}
	states := m.registry.States()
	if len(values) != len(states) {
		return fmt.Errorf("model: state vector has %d entries, want %d", len(values), len(states))
	}
	for i, s := range states {
		if err := m.SetReal(s, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// InitializeSimulator checks the input bindings and primes the engine.
// Inputs without data keep the engine's value unless the model was created
// WithStrictInputs.
func (m *Model) InitializeSimulator() error {
	if m.fmu == nil {
		return ErrNotReady
	}

	for _, in := range m.registry.Inputs() {
		if !in.IsBound() {
			if m.strictInputs {
				return &UnboundInputError{Name: in.Name()}
			}
			logrus.Warnf("model: input %s has no data bound, keeping the engine value", in.Name())
			continue
		}
		if _, err := in.GetDataSeries(); err != nil {
			return fmt.Errorf("model: input %s: %w", in.Name(), err)
		}
	}
	for _, o := range m.GetMeasuredOutputs() {
		if _, err := o.GetMeasuredDataSeries(); err != nil {
			return fmt.Errorf("model: measured output %s: %w", o.Name(), err)
		}
	}

	if err := m.prime(); err != nil {
		return err
	}
	m.initialized = true
	m.origin = time.Time{}
	return nil
}

// prime initializes the engine at time zero and re-applies remembered values.
func (m *Model) prime() error {
	if err := m.fmu.Initialize(0); err != nil {
		return &SimulationError{Err: fmt.Errorf("initialize: %w", err)}
	}
	if len(m.overrideOrder) == 0 {
		return nil
	}
	vals := make([]float64, len(m.overrideOrder))
	for i, ref := range m.overrideOrder {
		vals[i] = m.overrides[ref]
	}
	if err := m.fmu.SetReal(m.overrideOrder, vals); err != nil {
		return &SimulationError{Err: fmt.Errorf("restore values: %w", err)}
	}
	return nil
}

func (m *Model) String() string {
	if m.fmu == nil {
		return "Model <empty>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Model %s (%s)\n", m.props.Name, m.path)
	fmt.Fprintf(&b, "  author: %s\n", m.props.Author)
	fmt.Fprintf(&b, "  description: %s\n", m.props.Description)
	fmt.Fprintf(&b, "  type: %s  version: %s  tool: %s\n", m.props.Type, m.props.Version, m.props.Tool)
	fmt.Fprintf(&b, "  guid: %s\n", m.props.GUID)
	fmt.Fprintf(&b, "  inputs: %v\n", m.GetInputNames())
	fmt.Fprintf(&b, "  outputs: %v\n", m.GetOutputNames())
	fmt.Fprintf(&b, "  states: %v\n", m.GetStateNames())
	fmt.Fprintf(&b, "  parameters: %v\n", m.GetParameterNames())
	fmt.Fprintf(&b, "  variables: %v", m.GetVariableNames())
	return b.String()
}

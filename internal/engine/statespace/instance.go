package statespace

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/tianwei1989/EstimationPy/internal/dynamo"
	"github.com/tianwei1989/EstimationPy/internal/engine"
	"github.com/tianwei1989/EstimationPy/internal/integrators"
)

// Loader reads YAML descriptions from disk.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

func (l *Loader) Load(path string) (engine.Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	desc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	inst, err := New(desc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inst, nil
}

// Instance simulates a Description. Variable values live in a flat table
// indexed by value reference; computed outputs are refreshed after every
// change so GetReal never sees stale values.
type Instance struct {
	id   uuid.UUID
	desc *Description
	meta engine.Metadata
	vars []engine.ScalarVariable

	values   []float64
	byName   map[string]engine.ValueReference
	states   []engine.ValueReference
	inputs   []engine.ValueReference
	outputs  []engine.ValueReference
	settable []bool

	integ dynamo.Integrator
	tol   dynamo.Tolerances

	initialized bool
	time        float64
}

var _ engine.Instance = (*Instance)(nil)

func New(desc *Description) (*Instance, error) {
	integ, err := integrators.ByName(desc.Solver.Integrator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	inst := &Instance{
		id:       uuid.New(),
		desc:     desc,
		vars:     make([]engine.ScalarVariable, len(desc.Variables)),
		values:   make([]float64, len(desc.Variables)),
		byName:   make(map[string]engine.ValueReference, len(desc.Variables)),
		settable: make([]bool, len(desc.Variables)),
		integ:    integ,
		tol: dynamo.Tolerances{
			MaxStep:  desc.Solver.MaxStep,
			MinStep:  desc.Solver.MinStep,
			Relative: desc.Solver.Tolerance,
		},
	}
	if inst.tol.MinStep <= 0 {
		inst.tol.MinStep = dynamo.DefaultTolerances().MinStep
	}

	isState := make(map[string]bool, len(desc.System.States))
	for _, name := range desc.System.States {
		isState[name] = true
	}
	computed := make(map[string]bool, len(desc.System.Outputs))
	for _, name := range desc.System.Outputs {
		computed[name] = true
	}

	for i, v := range desc.Variables {
		c, _ := engine.ParseCausality(v.Causality)
		ref := engine.ValueReference(i)
		inst.vars[i] = engine.ScalarVariable{
			Name:           v.Name,
			Description:    v.Description,
			Causality:      c,
			ValueReference: ref,
			IsState:        isState[v.Name],
			Start:          v.Start,
		}
		inst.values[i] = v.Start
		inst.byName[v.Name] = ref
		inst.settable[i] = !computed[v.Name]
	}
	for _, name := range desc.System.States {
		inst.states = append(inst.states, inst.byName[name])
	}
	for _, name := range desc.System.Inputs {
		inst.inputs = append(inst.inputs, inst.byName[name])
	}
	for _, name := range desc.System.Outputs {
		inst.outputs = append(inst.outputs, inst.byName[name])
	}

	inst.meta = engine.Metadata{
		Name:        desc.Name,
		Author:      desc.Author,
		Description: desc.Description,
		Type:        desc.Type,
		Version:     desc.Version,
		GUID:        desc.GUID,
		Tool:        desc.Tool,
		NumStates:   len(inst.states),
	}
	inst.refreshOutputs()

	logrus.Debugf("statespace: instance %s of %s (%d states, %d inputs, %d outputs, %s)",
		inst.id, desc.Name, len(inst.states), len(inst.inputs), len(inst.outputs), integ.Name())
	return inst, nil
}

// ID identifies this instance among all instances created by the process.
func (i *Instance) ID() string { return i.id.String() }

func (i *Instance) Metadata() engine.Metadata { return i.meta }

func (i *Instance) Variables() []engine.ScalarVariable {
	out := make([]engine.ScalarVariable, len(i.vars))
	copy(out, i.vars)
	return out
}

func (i *Instance) GetReal(refs ...engine.ValueReference) ([]float64, error) {
	out := make([]float64, len(refs))
	for k, ref := range refs {
		if int(ref) >= len(i.values) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownReference, ref)
		}
		out[k] = i.values[ref]
	}
	return out, nil
}

func (i *Instance) SetReal(refs []engine.ValueReference, values []float64) error {
	if len(refs) != len(values) {
		return fmt.Errorf("statespace: %d references but %d values", len(refs), len(values))
	}
	for _, ref := range refs {
		if int(ref) >= len(i.values) {
			return fmt.Errorf("%w: %d", ErrUnknownReference, ref)
		}
		if !i.settable[ref] {
			return fmt.Errorf("%w: %s", ErrReadOnly, i.vars[ref].Name)
		}
	}
	for k, ref := range refs {
		i.values[ref] = values[k]
	}
	i.refreshOutputs()
	return nil
}

func (i *Instance) Initialize(startTime float64) error {
	for _, ref := range i.states {
		i.values[ref] = i.vars[ref].Start
	}
	i.time = startTime
	i.initialized = true
	i.refreshOutputs()
	return nil
}

func (i *Instance) DoStep(currentTime, stepSize float64) error {
	if !i.initialized {
		return ErrNotInitialized
	}
	if stepSize < 0 {
		return fmt.Errorf("statespace: negative step size %g", stepSize)
	}

	sys := &linearSystem{
		n: len(i.states),
		m: len(i.inputs),
		a: i.resolve(i.desc.System.A, len(i.states), len(i.states)),
		b: i.resolve(i.desc.System.B, len(i.states), len(i.inputs)),
	}
	x, err := integrators.Advance(i.integ, sys, i.gather(i.states), dynamo.Control(i.gather(i.inputs)), currentTime, stepSize, i.tol)
	if err != nil {
		return fmt.Errorf("statespace: %s: %w", i.meta.Name, err)
	}
	for k, ref := range i.states {
		i.values[ref] = x[k]
	}
	i.time = currentTime + stepSize
	i.refreshOutputs()
	return nil
}

// Time is the simulated time reached by the last Initialize or DoStep.
func (i *Instance) Time() float64 { return i.time }

func (i *Instance) gather(refs []engine.ValueReference) []float64 {
	out := make([]float64, len(refs))
	for k, ref := range refs {
		out[k] = i.values[ref]
	}
	return out
}

// resolve substitutes the current variable values into a matrix template.
// It returns nil for empty shapes, which gonum cannot represent.
func (i *Instance) resolve(tmpl Matrix, rows, cols int) *mat.Dense {
	if rows == 0 || cols == 0 {
		return nil
	}
	m := mat.NewDense(rows, cols, nil)
	for r, row := range tmpl {
		for c, e := range row {
			v := e.Value
			if e.Ref != "" {
				v = i.values[i.byName[e.Ref]]
			}
			m.Set(r, c, v)
		}
	}
	return m
}

func (i *Instance) refreshOutputs() {
	p := len(i.outputs)
	if p == 0 {
		return
	}
	y := mat.NewVecDense(p, nil)
	if c := i.resolve(i.desc.System.C, p, len(i.states)); c != nil {
		y.MulVec(c, mat.NewVecDense(len(i.states), i.gather(i.states)))
	}
	if d := i.resolve(i.desc.System.D, p, len(i.inputs)); d != nil {
		var du mat.VecDense
		du.MulVec(d, mat.NewVecDense(len(i.inputs), i.gather(i.inputs)))
		y.AddVec(y, &du)
	}
	for k, ref := range i.outputs {
		i.values[ref] = y.AtVec(k)
	}
}

type linearSystem struct {
	n, m int
	a, b *mat.Dense
}

func (s *linearSystem) StateDim() int   { return s.n }
func (s *linearSystem) ControlDim() int { return s.m }

func (s *linearSystem) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	dx := mat.NewVecDense(s.n, nil)
	if s.a != nil {
		dx.MulVec(s.a, mat.NewVecDense(s.n, x))
	}
	if s.b != nil && len(u) == s.m {
		var bu mat.VecDense
		bu.MulVec(s.b, mat.NewVecDense(s.m, u))
		dx.AddVec(dx, &bu)
	}
	return dynamo.State(dx.RawVector().Data)
}

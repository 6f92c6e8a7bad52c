package model

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tianwei1989/EstimationPy/internal/engine"
)

type index[T Variable] struct {
	order  []T
	byName map[string]T
}

func newIndex[T Variable]() *index[T] {
	return &index[T]{byName: make(map[string]T)}
}

func (ix *index[T]) add(v T) {
	ix.order = append(ix.order, v)
	ix.byName[v.Name()] = v
}

func (ix *index[T]) get(name string) (T, bool) {
	v, ok := ix.byName[name]
	return v, ok
}

func (ix *index[T]) list() []T {
	out := make([]T, len(ix.order))
	copy(out, ix.order)
	return out
}

func (ix *index[T]) names() []string {
	out := make([]string, len(ix.order))
	for i, v := range ix.order {
		out[i] = v.Name()
	}
	return out
}

func (ix *index[T]) len() int { return len(ix.order) }

// Registry partitions a simulator's variables by causality. It is built once
// per load and never mutated afterwards.
type Registry struct {
	inputs     *index[*Input]
	outputs    *index[*Output]
	states     *index[*Output]
	parameters *index[*Parameter]
	variables  *index[*FreeVariable]
	all        *index[Variable]
}

func emptyRegistry() *Registry {
	return &Registry{
		inputs:     newIndex[*Input](),
		outputs:    newIndex[*Output](),
		states:     newIndex[*Output](),
		parameters: newIndex[*Parameter](),
		variables:  newIndex[*FreeVariable](),
		all:        newIndex[Variable](),
	}
}

// NewRegistry builds the class views in simulator order. Names must be
// unique across the whole simulator.
func NewRegistry(vars []engine.ScalarVariable, load uuid.UUID) (*Registry, error) {
	r := emptyRegistry()
	for _, sv := range vars {
		if _, dup := r.all.get(sv.Name); dup {
			return nil, fmt.Errorf("duplicate variable name %q", sv.Name)
		}
		v := newVariable(sv, load)
		r.all.add(v)

		switch t := v.(type) {
		case *Input:
			r.inputs.add(t)
		case *Output:
			r.outputs.add(t)
			if t.IsState() {
				r.states.add(t)
			}
		case *Parameter:
			r.parameters.add(t)
		case *FreeVariable:
			r.variables.add(t)
		}
	}
	return r, nil
}

func (r *Registry) Inputs() []*Input                   { return r.inputs.list() }
func (r *Registry) Outputs() []*Output                 { return r.outputs.list() }
func (r *Registry) States() []*Output                  { return r.states.list() }
func (r *Registry) Parameters() []*Parameter           { return r.parameters.list() }
func (r *Registry) Variables() []*FreeVariable         { return r.variables.list() }
func (r *Registry) Input(name string) (*Input, bool)   { return r.inputs.get(name) }
func (r *Registry) Output(name string) (*Output, bool) { return r.outputs.get(name) }

// Lookup finds a variable of any class, internal ones included.
func (r *Registry) Lookup(name string) (Variable, bool) { return r.all.get(name) }

// Len is the number of variables the simulator reported.
func (r *Registry) Len() int { return r.all.len() }

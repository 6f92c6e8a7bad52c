package model

import (
	"github.com/google/uuid"

	"github.com/tianwei1989/EstimationPy/internal/engine"
	"github.com/tianwei1989/EstimationPy/internal/series"
)

// Variable is a simulator quantity as seen through a Model. Concrete types
// are *Input, *Output, *Parameter, *FreeVariable and *InternalVariable.
type Variable interface {
	Name() string
	Description() string
	Causality() engine.Causality
	ValueReference() engine.ValueReference
	Start() float64

	loadID() uuid.UUID
}

type variable struct {
	name        string
	description string
	causality   engine.Causality
	ref         engine.ValueReference
	start       float64
	load        uuid.UUID
}

func (v *variable) Name() string                          { return v.name }
func (v *variable) Description() string                   { return v.description }
func (v *variable) Causality() engine.Causality           { return v.causality }
func (v *variable) ValueReference() engine.ValueReference { return v.ref }
func (v *variable) Start() float64                        { return v.start }
func (v *variable) loadID() uuid.UUID                     { return v.load }

// Input is fed from a bound data source during a run.
type Input struct {
	variable
	source *series.Source
}

func (in *Input) src() *series.Source {
	if in.source == nil {
		in.source = series.NewSource()
	}
	return in.source
}

// GetCsvReader returns the reader used to bind a file column to the input.
func (in *Input) GetCsvReader() *series.CSVReader { return in.src().GetCsvReader() }

// SetDataSeries binds an in-memory series, replacing any previous binding.
func (in *Input) SetDataSeries(s series.Series) error { return in.src().SetDataSeries(s) }

func (in *Input) IsBound() bool { return in.source != nil && in.source.IsBound() }

func (in *Input) GetDataSeries() (series.Series, error) {
	if in.source == nil {
		return nil, series.ErrUnbound
	}
	return in.source.Series()
}

// Output is a simulator output. State outputs carry part of the integrated
// state. Measured data may be attached for comparison with the trajectory.
type Output struct {
	variable
	state    bool
	measured *series.Source
}

func (o *Output) IsState() bool { return o.state }

func (o *Output) msrc() *series.Source {
	if o.measured == nil {
		o.measured = series.NewSource()
	}
	return o.measured
}

func (o *Output) GetCsvReader() *series.CSVReader { return o.msrc().GetCsvReader() }

func (o *Output) SetMeasuredDataSeries(s series.Series) error { return o.msrc().SetDataSeries(s) }

func (o *Output) IsMeasured() bool { return o.measured != nil && o.measured.IsBound() }

func (o *Output) GetMeasuredDataSeries() (series.Series, error) {
	if o.measured == nil {
		return nil, series.ErrUnbound
	}
	return o.measured.Series()
}

type Parameter struct{ variable }

type FreeVariable struct{ variable }

// InternalVariable is engine-private: not part of the simulator interface,
// but still addressable by name, e.g. tunable coefficients.
type InternalVariable struct{ variable }

func newVariable(sv engine.ScalarVariable, load uuid.UUID) Variable {
	base := variable{
		name:        sv.Name,
		description: sv.Description,
		causality:   sv.Causality,
		ref:         sv.ValueReference,
		start:       sv.Start,
		load:        load,
	}
	switch sv.Causality {
	case engine.Input:
		return &Input{variable: base}
	case engine.Output:
		return &Output{variable: base, state: sv.IsState}
	case engine.Parameter:
		return &Parameter{variable: base}
	case engine.Local:
		return &FreeVariable{variable: base}
	default:
		return &InternalVariable{variable: base}
	}
}

func isNil(v Variable) bool {
	switch t := v.(type) {
	case nil:
		return true
	case *Input:
		return t == nil
	case *Output:
		return t == nil
	case *Parameter:
		return t == nil
	case *FreeVariable:
		return t == nil
	case *InternalVariable:
		return t == nil
	}
	return false
}

package model

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tianwei1989/EstimationPy/internal/engine"
)

// Job is one run of a Pool: parameter values by variable name and an
// optional initial state vector, applied on top of the prototype's setup.
type Job struct {
	Parameters map[string]float64
	State      []float64
}

// Run is the outcome of a Job.
type Run struct {
	Time    []time.Time
	Results map[string][]float64
}

// Pool runs many jobs over replicas of one model in parallel. Replicas are
// loaded from the prototype's description and share its data bindings.
type Pool struct {
	replicas []*Model
	free     chan *Model
}

// NewPool builds size replicas of proto, which must be loaded. Values set on
// proto with SetReal carry over to every replica.
func NewPool(proto *Model, size int) (*Pool, error) {
	if proto == nil || proto.fmu == nil {
		return nil, ErrNotReady
	}
	if size < 1 {
		size = 1
	}

	p := &Pool{free: make(chan *Model, size)}
	for i := 0; i < size; i++ {
		r, err := proto.replicate()
		if err != nil {
			return nil, fmt.Errorf("model: replica %d: %w", i, err)
		}
		p.replicas = append(p.replicas, r)
		p.free <- r
	}
	logrus.Debugf("model: pool of %d replicas of %s", size, proto.props.Name)
	return p, nil
}

func (p *Pool) Size() int { return len(p.replicas) }

// Run executes jobs concurrently and returns their results in job order.
// The first failure cancels the remaining jobs.
func (p *Pool) Run(ctx context.Context, opts SimulateOptions, jobs []Job) ([]Run, error) {
	runs := make([]Run, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(len(p.replicas))

	for i, job := range jobs {
		g.Go(func() error {
			var m *Model
			select {
			case m = <-p.free:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { p.free <- m }()

			t, res, err := m.runJob(ctx, opts, job)
			if err != nil {
				return fmt.Errorf("model: job %d: %w", i, err)
			}
			runs[i] = Run{Time: t, Results: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (m *Model) replicate() (*Model, error) {
	r := New(WithLoader(m.loader), WithStrictInputs(m.strictInputs))
	if err := r.Load(m.path); err != nil {
		return nil, err
	}

	for _, in := range m.registry.Inputs() {
		if !in.IsBound() {
			continue
		}
		data, err := in.GetDataSeries()
		if err != nil {
			return nil, fmt.Errorf("model: input %s: %w", in.Name(), err)
		}
		target, ok := r.GetInputByName(in.Name())
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidVariable, in.Name())
		}
		if err := target.SetDataSeries(data); err != nil {
			return nil, err
		}
	}
	for _, o := range m.GetMeasuredOutputs() {
		data, err := o.GetMeasuredDataSeries()
		if err != nil {
			return nil, fmt.Errorf("model: measured output %s: %w", o.Name(), err)
		}
		target, ok := r.GetOutputByName(o.Name())
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidVariable, o.Name())
		}
		if err := target.SetMeasuredDataSeries(data); err != nil {
			return nil, err
		}
	}

	// same description, same references
	for _, ref := range m.overrideOrder {
		r.remember(ref, m.overrides[ref])
	}
	if err := r.InitializeSimulator(); err != nil {
		return nil, err
	}
	return r, nil
}

// runJob applies a job, simulates and puts the replica back the way it was.
func (m *Model) runJob(ctx context.Context, opts SimulateOptions, job Job) ([]time.Time, map[string][]float64, error) {
	savedOverrides := make(map[engine.ValueReference]float64, len(m.overrides))
	for ref, v := range m.overrides {
		savedOverrides[ref] = v
	}
	savedOrder := append([]engine.ValueReference(nil), m.overrideOrder...)

	var (
		touched []engine.ValueReference
		prev    []float64
	)
	defer func() {
		if len(touched) > 0 {
			if err := m.fmu.SetReal(touched, prev); err != nil {
				logrus.Warnf("model: restoring replica values: %v", err)
			}
		}
		m.overrides = savedOverrides
		m.overrideOrder = savedOrder
	}()

	for name, value := range job.Parameters {
		v, ok := m.GetVariableObject(name)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrInvalidVariable, name)
		}
		old, err := m.GetReal(v)
		if err != nil {
			return nil, nil, err
		}
		if err := m.SetReal(v, value); err != nil {
			return nil, nil, err
		}
		touched = append(touched, v.ValueReference())
		prev = append(prev, old)
	}
	if job.State != nil {
		if err := m.SetState(job.State); err != nil {
			return nil, nil, err
		}
	}

	opts.Continue = false
	return m.SimulateContext(ctx, opts)
}

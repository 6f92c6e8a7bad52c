package model

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tianwei1989/EstimationPy/internal/engine"
	"github.com/tianwei1989/EstimationPy/internal/series"
)

// DefaultIntervals is the number of communication intervals used when
// neither a step nor an interval count is given and no input data fixes
// the time grid.
const DefaultIntervals = 500

// SimulateOptions controls a run. Zero StartTime or FinalTime are derived
// from the bound inputs: the run covers the span all of them have data for.
type SimulateOptions struct {
	StartTime time.Time
	FinalTime time.Time

	// StepSize fixes the communication step. The last step is shortened to
	// land on FinalTime, or stretched when only a sliver would remain.
	StepSize time.Duration
	// Intervals splits the run into equal steps when StepSize is zero.
	Intervals int

	// Continue steps on from the current engine state instead of
	// re-initializing it. Ignored before the first run.
	Continue bool
}

type boundInput struct {
	ref  engine.ValueReference
	data series.Series
}

func (m *Model) Simulate(opts SimulateOptions) ([]time.Time, map[string][]float64, error) {
	return m.SimulateContext(context.Background(), opts)
}

// SimulateContext runs the simulator over the requested interval and returns
// the time grid and one trajectory per output. Nothing is returned unless
// every step succeeds.
func (m *Model) SimulateContext(ctx context.Context, opts SimulateOptions) ([]time.Time, map[string][]float64, error) {
	if m.fmu == nil {
		return nil, nil, ErrNotReady
	}
	if !m.initialized {
		return nil, nil, ErrNotInitialized
	}

	inputs, err := m.boundInputs()
	if err != nil {
		return nil, nil, err
	}
	start, final, err := interval(opts, inputs)
	if err != nil {
		return nil, nil, err
	}
	grid := timeGrid(start, final, opts, inputs)

	if !opts.Continue || m.origin.IsZero() {
		m.origin = time.Time{}
		if err := m.prime(); err != nil {
			return nil, nil, err
		}
		m.origin = start
	}

	outputs := m.registry.Outputs()
	refs := make([]engine.ValueReference, len(outputs))
	results := make(map[string][]float64, len(outputs))
	for i, o := range outputs {
		refs[i] = o.ValueReference()
		results[o.Name()] = make([]float64, len(grid))
	}

	logrus.Debugf("model: simulating %s from %s to %s in %d steps",
		m.props.Name, start.Format(time.RFC3339Nano), final.Format(time.RFC3339Nano), len(grid)-1)

	// the engine is left mid-run on failure, so the next run must re-prime
	fail := func(step int, err error) ([]time.Time, map[string][]float64, error) {
		m.origin = time.Time{}
		return nil, nil, &SimulationError{Step: step, Time: grid[step], Err: err}
	}

	if err := m.applyInputs(inputs, grid[0]); err != nil {
		return fail(0, err)
	}
	if err := m.record(refs, outputs, results, 0); err != nil {
		return fail(0, err)
	}
	for k := 1; k < len(grid); k++ {
		if err := ctx.Err(); err != nil {
			m.origin = time.Time{}
			return nil, nil, err
		}
		h := grid[k].Sub(grid[k-1]).Seconds()
		if err := m.fmu.DoStep(m.engineTime(grid[k-1]), h); err != nil {
			return fail(k, err)
		}
		if err := m.applyInputs(inputs, grid[k]); err != nil {
			return fail(k, err)
		}
		if err := m.record(refs, outputs, results, k); err != nil {
			return fail(k, err)
		}
	}
	return grid, results, nil
}

func (m *Model) engineTime(t time.Time) float64 {
	return t.Sub(m.origin).Seconds()
}

func (m *Model) boundInputs() ([]boundInput, error) {
	var out []boundInput
	for _, in := range m.registry.Inputs() {
		if !in.IsBound() {
			continue
		}
		data, err := in.GetDataSeries()
		if err != nil {
			return nil, fmt.Errorf("model: input %s: %w", in.Name(), err)
		}
		out = append(out, boundInput{ref: in.ValueReference(), data: data})
	}
	return out, nil
}

func (m *Model) applyInputs(inputs []boundInput, t time.Time) error {
	if len(inputs) == 0 {
		return nil
	}
	refs := make([]engine.ValueReference, len(inputs))
	vals := make([]float64, len(inputs))
	for i, in := range inputs {
		refs[i] = in.ref
		vals[i] = in.data.ValueAt(t)
	}
	return m.fmu.SetReal(refs, vals)
}

func (m *Model) record(refs []engine.ValueReference, outputs []*Output, results map[string][]float64, k int) error {
	vals, err := m.fmu.GetReal(refs...)
	if err != nil {
		return err
	}
	if len(vals) != len(refs) {
		return fmt.Errorf("engine returned %d values for %d outputs", len(vals), len(refs))
	}
	for i, o := range outputs {
		results[o.Name()][k] = vals[i]
	}
	return nil
}

// interval resolves the run bounds, filling omitted ends from the span
// covered by every bound input.
func interval(opts SimulateOptions, inputs []boundInput) (time.Time, time.Time, error) {
	start, final := opts.StartTime, opts.FinalTime
	if start.IsZero() || final.IsZero() {
		if len(inputs) == 0 {
			return time.Time{}, time.Time{}, ErrNoTimeBounds
		}
		lo, hi := inputs[0].data.Extent()
		for _, in := range inputs[1:] {
			first, last := in.data.Extent()
			if first.After(lo) {
				lo = first
			}
			if last.Before(hi) {
				hi = last
			}
		}
		if start.IsZero() {
			start = lo
		}
		if final.IsZero() {
			final = hi
		}
	}
	if final.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: final time %s before start time %s",
			ErrInvalidInterval, final.Format(time.RFC3339Nano), start.Format(time.RFC3339Nano))
	}
	return start, final, nil
}

// timeGrid returns the communication points. The first is start and the
// last is final exactly.
func timeGrid(start, final time.Time, opts SimulateOptions, inputs []boundInput) []time.Time {
	span := final.Sub(start)
	if span == 0 {
		return []time.Time{start}
	}

	switch {
	case opts.StepSize > 0:
		n := int(span / opts.StepSize)
		// a remainder under a thousandth of a step is folded into the last step
		if rem := span % opts.StepSize; rem != 0 && rem >= opts.StepSize/1000 {
			n++
		}
		grid := make([]time.Time, 0, n+1)
		for k := 0; k < n; k++ {
			grid = append(grid, start.Add(time.Duration(k)*opts.StepSize))
		}
		return append(grid, final)

	case opts.Intervals > 0:
		return uniform(start, span, opts.Intervals)

	case len(inputs) > 0:
		points := []time.Time{start, final}
		for _, in := range inputs {
			points = append(points, in.data.Window(start, final).Times()...)
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })
		grid := points[:1]
		for _, t := range points[1:] {
			if t.After(grid[len(grid)-1]) {
				grid = append(grid, t)
			}
		}
		return grid
	}
	return uniform(start, span, DefaultIntervals)
}

func uniform(start time.Time, span time.Duration, n int) []time.Time {
	grid := make([]time.Time, n+1)
	for k := 0; k < n; k++ {
		grid[k] = start.Add(time.Duration(float64(span) * float64(k) / float64(n)))
	}
	grid[n] = start.Add(span)
	return grid
}

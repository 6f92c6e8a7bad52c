package integrators

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tianwei1989/EstimationPy/internal/dynamo"
)

var registry = map[string]func() dynamo.Integrator{
	"euler": func() dynamo.Integrator { return NewEuler() },
	"rk4":   func() dynamo.Integrator { return NewRK4() },
	"rk45":  func() dynamo.Integrator { return NewRK45() },
}

// ByName returns a fresh integrator registered under name.
func ByName(name string) (dynamo.Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Advance integrates sys from t to t+h holding u constant. Fixed-step
// integrators take equal sub-steps no longer than tol.MaxStep; adaptive ones
// control their own step inside the same bound.
func Advance(integ dynamo.Integrator, sys dynamo.System, x dynamo.State, u dynamo.Control, t, h float64, tol dynamo.Tolerances) (dynamo.State, error) {
	if len(x) != sys.StateDim() {
		return nil, dynamo.ErrDimensionMismatch
	}
	if h <= 0 || len(x) == 0 {
		return x.Clone(), nil
	}
	maxStep := tol.MaxStep
	if maxStep <= 0 || maxStep > h {
		maxStep = h
	}

	if adaptive, ok := integ.(dynamo.AdaptiveIntegrator); ok {
		return advanceAdaptive(adaptive, sys, x, u, t, h, maxStep, tol)
	}

	steps := int(math.Ceil(h/maxStep - 1e-9))
	dt := h / float64(steps)
	for i := 0; i < steps; i++ {
		x = integ.Step(sys, x, u, t+float64(i)*dt, dt)
		if !x.IsValid() {
			return nil, &dynamo.StepError{Time: t + float64(i)*dt, Dt: dt, Wrapped: dynamo.ErrInvalidState}
		}
	}
	return x, nil
}

func advanceAdaptive(integ dynamo.AdaptiveIntegrator, sys dynamo.System, x dynamo.State, u dynamo.Control, t, h, maxStep float64, tol dynamo.Tolerances) (dynamo.State, error) {
	end := t + h
	dt := maxStep
	for t < end {
		if t+dt > end {
			dt = end - t
		}
		next, proposed, err := integ.StepAdaptive(sys, x, u, t, dt, tol.Relative)
		if errors.Is(err, dynamo.ErrStepRejected) {
			if proposed < tol.MinStep {
				return nil, &dynamo.StepError{Time: t, Dt: proposed, Wrapped: dynamo.ErrStepTooSmall}
			}
			dt = proposed
			continue
		}
		if err != nil {
			return nil, &dynamo.StepError{Time: t, Dt: dt, Wrapped: err}
		}
		if !next.IsValid() {
			return nil, &dynamo.StepError{Time: t, Dt: dt, Wrapped: dynamo.ErrInvalidState}
		}
		x = next
		t += dt
		dt = math.Min(proposed, maxStep)
	}
	return x, nil
}

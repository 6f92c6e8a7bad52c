package dynamo

import (
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Axpy returns s + a*other. Missing entries of other count as zero.
func (s State) Axpy(a float64, other State) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i]
		if i < len(other) {
			result[i] += a * other[i]
		}
	}
	return result
}

func (s State) Sub(other State) State {
	return s.Axpy(-1, other)
}

type Control []float64

// System is an ODE dx/dt = f(x, u, t) with the control held fixed over a step.
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Name() string
	Step(sys System, x State, u Control, t, dt float64) State
}

// AdaptiveIntegrator proposes the next step size. A step whose error estimate
// exceeds tol is returned together with ErrStepRejected and must be retried
// with the proposed size.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys System, x State, u Control, t, dt, tol float64) (State, float64, error)
}

// Tolerances bounds the internal step taken by Advance.
type Tolerances struct {
	MaxStep  float64
	MinStep  float64
	Relative float64
}

func DefaultTolerances() Tolerances {
	return Tolerances{
		MaxStep:  0.01,
		MinStep:  1e-10,
		Relative: 1e-6,
	}
}

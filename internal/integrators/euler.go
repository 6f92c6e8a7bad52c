package integrators

import "github.com/tianwei1989/EstimationPy/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "euler" }

func (e *Euler) Step(sys dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	return x.Axpy(dt, sys.Derive(x, u, t))
}

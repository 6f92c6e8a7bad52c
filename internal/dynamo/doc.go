// Package dynamo provides the numerical primitives the reference engine is
// built from:
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator] and [AdaptiveIntegrator]: single-step solvers
//   - [Tolerances]: bounds on the internal step size
//
// Concrete solvers live in the integrators package.
package dynamo

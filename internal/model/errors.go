package model

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors for model operations.
var (
	// ErrLoad indicates a description that is missing, unreadable or malformed.
	ErrLoad = errors.New("model: cannot load model description")

	// ErrNotReady indicates an operation that needs a loaded simulator.
	ErrNotReady = errors.New("model: no simulator loaded")

	// ErrNotInitialized indicates Simulate before InitializeSimulator.
	ErrNotInitialized = errors.New("model: simulator not initialized")

	// ErrInvalidVariable indicates a variable that is not part of the loaded simulator.
	ErrInvalidVariable = errors.New("model: variable does not belong to the loaded simulator")

	// ErrUnboundInput indicates an input without data under strict input checking.
	ErrUnboundInput = errors.New("model: input has no data bound")

	// ErrSimulation indicates an engine failure while initializing or stepping.
	ErrSimulation = errors.New("model: simulation failed")

	// ErrNoTimeBounds indicates omitted start or final time with no bound input to derive it from.
	ErrNoTimeBounds = errors.New("model: simulation bounds cannot be derived without bound inputs")

	// ErrInvalidInterval indicates a final time before the start time.
	ErrInvalidInterval = errors.New("model: invalid simulation interval")
)

// LoadError wraps the cause of a failed load with the description path.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("model: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

type UnboundInputError struct {
	Name string
}

func (e *UnboundInputError) Error() string {
	return fmt.Sprintf("model: input %q has no data bound", e.Name)
}

func (e *UnboundInputError) Is(target error) bool { return target == ErrUnboundInput }

// SimulationError reports the communication step an engine failed at.
type SimulationError struct {
	Step int
	Time time.Time
	Err  error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("model: simulation failed at step %d (%s): %v", e.Step, e.Time.Format(time.RFC3339Nano), e.Err)
}

func (e *SimulationError) Unwrap() error { return e.Err }

func (e *SimulationError) Is(target error) bool { return target == ErrSimulation }

package statespace

import "errors"

var (
	// ErrMalformed indicates a description that cannot describe a linear system.
	ErrMalformed = errors.New("statespace: malformed model description")

	// ErrUnknownReference indicates a value reference outside the instance.
	ErrUnknownReference = errors.New("statespace: unknown value reference")

	// ErrReadOnly indicates an attempt to set a computed output.
	ErrReadOnly = errors.New("statespace: variable is computed and cannot be set")

	// ErrNotInitialized indicates DoStep before Initialize.
	ErrNotInitialized = errors.New("statespace: instance not initialized")
)

// Package errs holds the error taxonomy shared by the optimization engine.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	// ErrConfiguration marks an invalid segment, connection or element composition.
	ErrConfiguration = errors.New("configuration error")
	// ErrValue marks a malformed value, e.g. an empty sequence.
	ErrValue = errors.New("value error")
	// ErrType marks a value of the wrong kind handed to a typed parameter loader.
	ErrType = errors.New("type error")
	// ErrUnset is returned when a tracked parameter is read before it was set.
	ErrUnset = errors.New("unset access")
	// ErrSolverShared is returned when a solver handle is driven by a second model.
	ErrSolverShared = errors.New("solver handle bound to another model")
)

// Configuration returns an ErrConfiguration with context.
func Configuration(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, a...))
}

// Value returns an ErrValue with context.
func Value(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValue, fmt.Sprintf(format, a...))
}

// Type returns an ErrType with context.
func Type(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrType, fmt.Sprintf(format, a...))
}

// BuildError wraps any failure raised while adding an item to a network.
type BuildError struct {
	Item string // "asset", "element" or "connection"
	Name string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to add %s %q: %v", e.Item, e.Name, e.Err)
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped in a BuildError, or nil when err is nil.
func Wrap(item, name string, err error) error {
	if err == nil {
		return nil
	}
	return &BuildError{Item: item, Name: name, Err: err}
}

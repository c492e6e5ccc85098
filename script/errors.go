package script

import "errors"

// Script errors.
var (
	// ErrNoUpdate is returned when a chunk does not define update.
	ErrNoUpdate = errors.New("script: update function not defined")

	// ErrNoFields is returned when a script touches a type without a field layout.
	ErrNoFields = errors.New("script: type has no field layout")

	// ErrRuntime wraps errors raised while update runs.
	ErrRuntime = errors.New("script: runtime error")

	// ErrOutsideUpdate is raised when the component API is used while the
	// chunk loads.
	ErrOutsideUpdate = errors.New("script: component access outside update")

	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("script: closed")
)

package gecs

import "errors"

// Engine errors.
var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("gecs: engine closed")

	// ErrUnknownViewport is returned for a viewport that is not live.
	ErrUnknownViewport = errors.New("gecs: unknown viewport")

	// ErrUnknownEntity is returned for a destroyed or never created entity.
	ErrUnknownEntity = errors.New("gecs: unknown entity")
)
